// Package apitoken issues and verifies short-lived HS256 bearer tokens for
// the API namespace. The access gate never intercepts /api requests; API
// handlers authorize each call themselves by verifying one of these tokens,
// minted from a live session cookie via Engine.IssueAPIToken.
//
// # Architecture boundaries
//
// This package owns JWT mechanics only. It does not know about sessions,
// cookies, or stores; the habitauth Engine decides when a caller is entitled
// to a token.
package apitoken
