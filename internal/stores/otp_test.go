package stores

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"
)

func testOTPRecord(email, code string, ttl time.Duration) *OTPRecord {
	return &OTPRecord{
		Email:     email,
		CodeHash:  sha256.Sum256([]byte(code)),
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}
}

func TestOTPStoreConsumeSucceedsOnce(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := NewOTPStore(rdb, "ho")
	ctx := context.Background()
	hash := sha256.Sum256([]byte("123456"))

	if err := store.Save(ctx, testOTPRecord("a@example.com", "123456", 10*time.Minute), 24*time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.Consume(ctx, "a@example.com", hash, time.Now()); err != nil {
		t.Fatalf("first Consume failed: %v", err)
	}

	err := store.Consume(ctx, "a@example.com", hash, time.Now())
	if !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound on replay, got %v", err)
	}
}

func TestOTPStoreConsumedRecordIsRetainedAsUsed(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := NewOTPStore(rdb, "ho")
	ctx := context.Background()
	hash := sha256.Sum256([]byte("123456"))

	if err := store.Save(ctx, testOTPRecord("a@example.com", "123456", 10*time.Minute), 24*time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Consume(ctx, "a@example.com", hash, time.Now()); err != nil {
		t.Fatalf("Consume failed: %v", err)
	}

	// The record survives consumption, flipped to used, for audit.
	record, err := store.Get(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !record.Used {
		t.Fatal("expected consumed record to be marked used")
	}
	if record.Email != "a@example.com" {
		t.Fatalf("unexpected email %q", record.Email)
	}
}

func TestOTPStoreConsumeRejectsWrongCode(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := NewOTPStore(rdb, "ho")
	ctx := context.Background()

	if err := store.Save(ctx, testOTPRecord("a@example.com", "123456", 10*time.Minute), 24*time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	wrong := sha256.Sum256([]byte("654321"))
	if err := store.Consume(ctx, "a@example.com", wrong, time.Now()); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound for wrong code, got %v", err)
	}

	// A mismatch must not burn the real code.
	right := sha256.Sum256([]byte("123456"))
	if err := store.Consume(ctx, "a@example.com", right, time.Now()); err != nil {
		t.Fatalf("correct code rejected after mismatch: %v", err)
	}
}

func TestOTPStoreConsumeRejectsExpiredCode(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := NewOTPStore(rdb, "ho")
	ctx := context.Background()
	hash := sha256.Sum256([]byte("123456"))

	if err := store.Save(ctx, testOTPRecord("a@example.com", "123456", 10*time.Minute), 24*time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Logical expiry inside the record, well before the retention TTL.
	later := time.Now().Add(11 * time.Minute)
	if err := store.Consume(ctx, "a@example.com", hash, later); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound for expired code, got %v", err)
	}
}

func TestOTPStoreConsumeUnknownEmail(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := NewOTPStore(rdb, "ho")
	hash := sha256.Sum256([]byte("123456"))

	if err := store.Consume(context.Background(), "ghost@example.com", hash, time.Now()); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound for unknown email, got %v", err)
	}
}

func TestOTPStoreInvalidateBlocksConsume(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := NewOTPStore(rdb, "ho")
	ctx := context.Background()
	hash := sha256.Sum256([]byte("123456"))

	if err := store.Save(ctx, testOTPRecord("a@example.com", "123456", 10*time.Minute), 24*time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Invalidate(ctx, "a@example.com"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	if err := store.Consume(ctx, "a@example.com", hash, time.Now()); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound after invalidation, got %v", err)
	}
}

func TestOTPStoreInvalidateMissingEmailIsNoOp(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := NewOTPStore(rdb, "ho")
	if err := store.Invalidate(context.Background(), "ghost@example.com"); err != nil {
		t.Fatalf("Invalidate on missing email failed: %v", err)
	}
}

func TestOTPStoreReissueSupersedesPriorCode(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := NewOTPStore(rdb, "ho")
	ctx := context.Background()

	if err := store.Save(ctx, testOTPRecord("a@example.com", "111111", 10*time.Minute), 24*time.Hour); err != nil {
		t.Fatalf("Save first failed: %v", err)
	}

	// Invalidate-then-create, the engine's reissue sequence.
	if err := store.Invalidate(ctx, "a@example.com"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if err := store.Save(ctx, testOTPRecord("a@example.com", "222222", 10*time.Minute), 24*time.Hour); err != nil {
		t.Fatalf("Save second failed: %v", err)
	}

	first := sha256.Sum256([]byte("111111"))
	if err := store.Consume(ctx, "a@example.com", first, time.Now()); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected first code rejected after reissue, got %v", err)
	}

	second := sha256.Sum256([]byte("222222"))
	if err := store.Consume(ctx, "a@example.com", second, time.Now()); err != nil {
		t.Fatalf("second code rejected: %v", err)
	}
}

func TestOTPStoreSaveArchivesSupersededRecord(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := NewOTPStore(rdb, "ho")
	ctx := context.Background()

	if err := store.Save(ctx, testOTPRecord("a@example.com", "111111", 10*time.Minute), 24*time.Hour); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
	if err := store.Invalidate(ctx, "a@example.com"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if err := store.Save(ctx, testOTPRecord("a@example.com", "222222", 10*time.Minute), 24*time.Hour); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	// The superseded record moved to the first archive slot instead of
	// being destroyed, still marked used from the invalidation.
	raw, err := mr.Get("ho:a@example.com:v1")
	if err != nil {
		t.Fatalf("expected archived record, got %v", err)
	}
	archived, err := decodeOTPRecord([]byte(raw))
	if err != nil {
		t.Fatalf("decoding archived record failed: %v", err)
	}
	if !archived.Used {
		t.Fatal("archived record should carry the used flag")
	}
	if archived.CodeHash != sha256.Sum256([]byte("111111")) {
		t.Fatal("archived record should hold the superseded code hash")
	}

	// The active slot holds the fresh code.
	active, err := store.Get(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if active.Used || active.CodeHash != sha256.Sum256([]byte("222222")) {
		t.Fatalf("active slot should hold the fresh unused code, got %+v", active)
	}

	// Archives carry the remaining retention TTL, not a fresh one.
	if ttl := mr.TTL("ho:a@example.com:v1"); ttl <= 0 || ttl > 24*time.Hour {
		t.Fatalf("unexpected archive ttl %v", ttl)
	}
}

func TestOTPStoreUnavailableBackend(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewOTPStore(rdb, "ho")
	mr.Close()

	hash := sha256.Sum256([]byte("123456"))
	if err := store.Save(context.Background(), testOTPRecord("a@example.com", "123456", time.Minute), time.Hour); err == nil {
		t.Fatal("expected error from closed backend")
	}
	err := store.Consume(context.Background(), "a@example.com", hash, time.Now())
	if err == nil || errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected backend error, got %v", err)
	}
}
