// Package token implements the encrypted session token codec: a versioned
// binary payload sealed with AES-256-GCM and rendered as a padding-free
// base64url string suitable for a cookie value.
//
// # Decode contract
//
// Decrypt never returns an error. Every failure mode — absent token, bad
// encoding, truncated ciphertext, failed integrity check, unknown payload
// version — collapses to [StatusInvalid], and a structurally valid token
// whose embedded expiry has passed yields [StatusExpired]. Callers are
// expected to treat both the same as "no session"; the distinction exists
// only for observability.
//
// # What this package must NOT do
//
//   - Perform store or network I/O (crypto/rand for the nonce is the only
//     external input besides the clock the caller passes in).
//   - Expose the derived AES key or the raw payload encoding.
package token
