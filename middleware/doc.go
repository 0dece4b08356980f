// Package middleware exposes the HTTP access gate that classifies every
// request path and enforces session-based redirects on top of
// habitauth.Engine resolution.
//
// # Gate
//
//   - [Gate.Evaluate] — pure routing decision for a path and cookie value.
//   - [Gate.Handler] — net/http middleware applying the decision: bypass,
//     allow with claims in context, or a 303 redirect.
//
// The gate reads the session cookie, calls Engine.Resolve, and injects
// resolved claims into the request context for downstream handlers.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself — all token decisions are delegated
// to Engine.Resolve.
//
// # What this package must NOT do
//
//   - Decrypt or create session tokens directly (delegates to Engine).
//   - Access Redis (Engine.Resolve never touches the store).
//   - Guard the API namespace (bypassed here; API endpoints carry their own
//     authentication).
package middleware
