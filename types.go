package habitauth

import (
	"context"
	"time"
)

// SessionRecord is the server-side session row persisted by [SessionStore].
// Records are immutable once written; revocation deletes them.
//
// SessionRecord instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionRecord struct {
	SessionID string
	UserID    string
	CreatedAt int64
	ExpiresAt int64
}

// OTPRecord is a single one-time code issued for an email address. The code
// itself is never persisted; only its SHA-256 hash is.
//
// OTPRecord instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type OTPRecord struct {
	Email     string
	CodeHash  [32]byte
	ExpiresAt int64
	Used      bool
}

// SessionClaims is the decrypted view of a session token returned by
// [Engine.Resolve]. It carries only what the token itself carries.
//
// SessionClaims instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionClaims struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

// SessionStore is the persistence capability for session records. The
// default Redis implementation is wired by [Builder.WithRedis]; callers with
// their own storage implement this interface and wire it through
// [Builder.WithSessionStore].
type SessionStore interface {
	// Save persists a new session record until its expiry.
	Save(ctx context.Context, record *SessionRecord) error
	// DeleteAll removes every session record for userID and reports how
	// many existed. Deleting a user with zero sessions is a no-op, not an
	// error.
	DeleteAll(ctx context.Context, userID string) (int64, error)
	// Exists reports whether the session record is still present. Used only
	// by [Engine.ResolveStrict]; the default resolve path never calls it.
	Exists(ctx context.Context, userID, sessionID string) (bool, error)
}

// OTPStore is the persistence capability for one-time codes. Implementations
// must keep at most one unused, unexpired code live per email: Invalidate
// marks every unused code for the email as used, and Consume marks the
// matching code used exactly once.
type OTPStore interface {
	// Invalidate marks all unused codes for email as used. Missing email is
	// a no-op.
	Invalidate(ctx context.Context, email string) error
	// Save persists a fresh code record with the given retention TTL. An
	// existing record for the email must not be destroyed; the default
	// implementation moves it to a versioned archive slot for the rest of
	// its retention.
	Save(ctx context.Context, record *OTPRecord, ttl time.Duration) error
	// Consume atomically looks up the unused record matching email and
	// codeHash and marks it used. It returns [ErrOTPNotFound] when no such
	// record exists or its expiry has passed; the two cases must be
	// indistinguishable to the caller.
	Consume(ctx context.Context, email string, codeHash [32]byte, now time.Time) error
}

// EmailSender delivers an issued OTP code out-of-band. Delivery failure is
// surfaced to the IssueOTP caller; the stored code survives so that a retry
// supersedes it.
type EmailSender interface {
	SendOTPEmail(ctx context.Context, email, code string) error
}

// EmailSenderFunc adapts a plain function to the [EmailSender] interface.
type EmailSenderFunc func(ctx context.Context, email, code string) error

// SendOTPEmail describes the sendotpemail operation and its observable behavior.
//
// SendOTPEmail may return an error when input validation, dependency calls, or security checks fail.
// SendOTPEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (f EmailSenderFunc) SendOTPEmail(ctx context.Context, email, code string) error {
	return f(ctx, email, code)
}
