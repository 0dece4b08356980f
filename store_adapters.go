package habitauth

import (
	"context"
	"errors"
	"time"

	"github.com/habitloop/habitauth/internal/stores"
)

// redisSessionStore adapts the internal Redis store to the public
// [SessionStore] contract so the two record types stay decoupled.
type redisSessionStore struct {
	inner *stores.SessionStore
}

func (s *redisSessionStore) Save(ctx context.Context, record *SessionRecord) error {
	return s.inner.Save(ctx, &stores.SessionRecord{
		SessionID: record.SessionID,
		UserID:    record.UserID,
		CreatedAt: record.CreatedAt,
		ExpiresAt: record.ExpiresAt,
	})
}

func (s *redisSessionStore) DeleteAll(ctx context.Context, userID string) (int64, error) {
	return s.inner.DeleteAll(ctx, userID)
}

func (s *redisSessionStore) Exists(ctx context.Context, userID, sessionID string) (bool, error) {
	return s.inner.Exists(ctx, userID, sessionID)
}

// redisOTPStore adapts the internal Redis store to the public [OTPStore]
// contract, translating its miss sentinel into [ErrOTPNotFound].
type redisOTPStore struct {
	inner *stores.OTPStore
}

func (s *redisOTPStore) Invalidate(ctx context.Context, email string) error {
	return s.inner.Invalidate(ctx, email)
}

func (s *redisOTPStore) Save(ctx context.Context, record *OTPRecord, ttl time.Duration) error {
	return s.inner.Save(ctx, &stores.OTPRecord{
		Email:     record.Email,
		CodeHash:  record.CodeHash,
		ExpiresAt: record.ExpiresAt,
		Used:      record.Used,
	}, ttl)
}

func (s *redisOTPStore) Consume(ctx context.Context, email string, codeHash [32]byte, now time.Time) error {
	err := s.inner.Consume(ctx, email, codeHash, now)
	if errors.Is(err, stores.ErrOTPNotFound) {
		return ErrOTPNotFound
	}
	return err
}
