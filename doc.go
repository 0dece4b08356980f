// Package habitauth provides the session-based authentication engine for the
// habitloop habit-tracking web application: encrypted session cookies,
// one-time-password (OTP) email verification, and route-level access gating.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// habitauth is the public surface. It exposes [Engine], [Builder], [Config],
// the store and email capabilities ([SessionStore], [OTPStore],
// [EmailSender]), and value types (MetricsSnapshot, SessionClaims, etc.).
// Internal coordination — OTP record encoding, Redis key layout, rate
// limiting — lives under internal/ and is never exported. The session token
// codec lives in the token subpackage and the per-request access gate in the
// middleware subpackage.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its
//     public API.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//   - Import any sub-package that re-imports habitauth (no import cycles).
//
// # Performance contract
//
// Resolve is the hot path: it runs on every gated request and must complete
// without a store round-trip. The session token is self-contained; a revoked
// session therefore stays accepted until its embedded expiry passes. That
// staleness window is bounded by the session TTL and is an accepted
// trade-off, not a latent bug. IssueOTP, ConsumeOTP, CreateSession, and
// RevokeSessions are allowed store round-trips.
package habitauth
