package habitauth

import "errors"

var (
	// ErrEngineNotReady is an exported constant or variable used by the authentication engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrEmailInvalid is an exported constant or variable used by the authentication engine.
	ErrEmailInvalid = errors.New("invalid email address")
	// ErrOTPFormat is an exported constant or variable used by the authentication engine.
	ErrOTPFormat = errors.New("invalid otp format")
	// ErrOTPInvalid is an exported constant or variable used by the authentication engine.
	ErrOTPInvalid = errors.New("invalid otp code")
	// ErrOTPNotFound is the store-level miss contract: [OTPStore.Consume]
	// returns it for an unknown, expired, superseded, or already-used code.
	// The Engine collapses it into ErrOTPInvalid before it reaches a caller.
	ErrOTPNotFound = errors.New("otp record not found")
	// ErrOTPRateLimited is an exported constant or variable used by the authentication engine.
	ErrOTPRateLimited = errors.New("otp rate limited")
	// ErrOTPDeliveryFailed is an exported constant or variable used by the authentication engine.
	ErrOTPDeliveryFailed = errors.New("otp delivery failed")
	// ErrOTPUnavailable is an exported constant or variable used by the authentication engine.
	ErrOTPUnavailable = errors.New("otp backend unavailable")
	// ErrSessionCreationFailed is an exported constant or variable used by the authentication engine.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrSessionRevocationFailed is an exported constant or variable used by the authentication engine.
	ErrSessionRevocationFailed = errors.New("session revocation failed")
	// ErrSessionUnavailable is an exported constant or variable used by the authentication engine.
	ErrSessionUnavailable = errors.New("session backend unavailable")
	// ErrUnauthorized is an exported constant or variable used by the authentication engine.
	ErrUnauthorized = errors.New("unauthorized")
)
