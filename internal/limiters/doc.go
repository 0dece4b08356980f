// Package limiters provides the Redis fixed-window throttles guarding OTP
// issuance and consumption.
//
// The limiter is nil-safe at the Engine layer: throttling is opt-in via
// config, and a disabled dimension is simply skipped.
//
// # Architecture boundaries
//
// The limiter owns its Redis key namespace and error types. Policy
// thresholds come from the Config struct supplied at construction time.
//
// # What this package must NOT do
//
//   - Import habitauth or any sibling internal package.
//   - Make policy decisions beyond counting — the Engine decides
//     consequences.
package limiters
