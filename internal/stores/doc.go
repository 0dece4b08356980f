// Package stores holds the Redis-backed persistence for session records and
// one-time codes. Records are encoded in a compact versioned binary layout
// so the OTP consume path can validate and mutate them atomically inside a
// Lua script without a read-modify-write race.
//
// Nothing here is exported outside the module; the public surface wires
// these stores behind the habitauth.SessionStore and habitauth.OTPStore
// interfaces.
package stores
