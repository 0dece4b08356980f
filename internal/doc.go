// Package internal contains helper utilities that are intentionally private
// to habitauth, currently secure OTP generation and hashing.
//
// # Sub-packages
//
//   - limiters — Redis fixed-window throttles for OTP issue and consume
//   - stores — Redis-backed session and OTP record stores
//
// # What this package must NOT do
//
//   - Export types that appear in the public habitauth API.
//   - Be imported by any package outside the habitauth module.
package internal
