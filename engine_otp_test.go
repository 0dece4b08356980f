package habitauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/habitloop/habitauth/internal"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

// captureSender records every delivery and can be told to fail.
type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
	calls int
	fail  error
}

func newCaptureSender() *captureSender {
	return &captureSender{codes: map[string]string{}}
}

func (s *captureSender) SendOTPEmail(_ context.Context, email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	s.codes[email] = code
	return s.fail
}

func (s *captureSender) lastCode(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[email]
}

func (s *captureSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Session.Secret = "0123456789abcdef0123456789abcdef"
	return cfg
}

func newTestEngine(t *testing.T, rdb *redis.Client, sender EmailSender, mutate func(*Config)) *Engine {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithEmailSender(sender).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine
}

func TestIssueOTPDeliversNumericCode(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	sender := newCaptureSender()
	engine := newTestEngine(t, rdb, sender, nil)

	if err := engine.IssueOTP(ctx, "alice@habitloop.dev"); err != nil {
		t.Fatalf("IssueOTP failed: %v", err)
	}

	code := sender.lastCode("alice@habitloop.dev")
	if len(code) != engine.Config().OTP.Digits {
		t.Fatalf("expected %d digit code, got %q", engine.Config().OTP.Digits, code)
	}
	if !internal.IsNumericString(code) {
		t.Fatalf("expected numeric code, got %q", code)
	}
}

func TestIssueOTPRejectsMalformedEmail(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	sender := newCaptureSender()
	engine := newTestEngine(t, rdb, sender, nil)

	for _, email := range []string{"", "no-at-sign", "a b@x.dev", "alice@nodot", "@x.dev"} {
		if err := engine.IssueOTP(ctx, email); !errors.Is(err, ErrEmailInvalid) {
			t.Fatalf("email %q: expected ErrEmailInvalid, got %v", email, err)
		}
	}

	if sender.callCount() != 0 {
		t.Fatalf("expected no deliveries for rejected emails, got %d", sender.callCount())
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("expected no store writes for rejected emails, got keys %v", keys)
	}
}

func TestConsumeOTPSucceedsExactlyOnce(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	sender := newCaptureSender()
	engine := newTestEngine(t, rdb, sender, nil)

	if err := engine.IssueOTP(ctx, "alice@habitloop.dev"); err != nil {
		t.Fatalf("IssueOTP failed: %v", err)
	}
	code := sender.lastCode("alice@habitloop.dev")

	if err := engine.ConsumeOTP(ctx, "alice@habitloop.dev", code); err != nil {
		t.Fatalf("first consume failed: %v", err)
	}
	if err := engine.ConsumeOTP(ctx, "alice@habitloop.dev", code); !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("second consume: expected ErrOTPInvalid, got %v", err)
	}
}

func TestReissueSupersedesPriorCode(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	sender := newCaptureSender()
	engine := newTestEngine(t, rdb, sender, nil)

	if err := engine.IssueOTP(ctx, "alice@habitloop.dev"); err != nil {
		t.Fatalf("first IssueOTP failed: %v", err)
	}
	first := sender.lastCode("alice@habitloop.dev")

	if err := engine.IssueOTP(ctx, "alice@habitloop.dev"); err != nil {
		t.Fatalf("second IssueOTP failed: %v", err)
	}
	second := sender.lastCode("alice@habitloop.dev")

	if err := engine.ConsumeOTP(ctx, "alice@habitloop.dev", first); !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("superseded code: expected ErrOTPInvalid, got %v", err)
	}
	if err := engine.ConsumeOTP(ctx, "alice@habitloop.dev", second); err != nil {
		t.Fatalf("latest code should consume, got %v", err)
	}
}

func TestConsumeOTPWrongGuessDoesNotBurnCode(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	sender := newCaptureSender()
	engine := newTestEngine(t, rdb, sender, nil)

	if err := engine.IssueOTP(ctx, "alice@habitloop.dev"); err != nil {
		t.Fatalf("IssueOTP failed: %v", err)
	}
	code := sender.lastCode("alice@habitloop.dev")

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	if err := engine.ConsumeOTP(ctx, "alice@habitloop.dev", wrong); !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("wrong guess: expected ErrOTPInvalid, got %v", err)
	}

	if err := engine.ConsumeOTP(ctx, "alice@habitloop.dev", code); err != nil {
		t.Fatalf("real code after wrong guess failed: %v", err)
	}
}

func TestConsumeOTPUnknownEmailIndistinguishable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine := newTestEngine(t, rdb, newCaptureSender(), nil)

	if err := engine.ConsumeOTP(ctx, "nobody@habitloop.dev", "123456"); !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("unknown email: expected ErrOTPInvalid, got %v", err)
	}
}

func TestConsumeOTPRejectsMalformedCode(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine := newTestEngine(t, rdb, newCaptureSender(), nil)

	for _, code := range []string{"", "12345", "1234567", "12a456", "12 456"} {
		if err := engine.ConsumeOTP(ctx, "alice@habitloop.dev", code); !errors.Is(err, ErrOTPFormat) {
			t.Fatalf("code %q: expected ErrOTPFormat, got %v", code, err)
		}
	}
}

func TestConsumeOTPExpiredCode(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine := newTestEngine(t, rdb, newCaptureSender(), nil)

	// Seed a record whose logical expiry already passed; the retention TTL
	// keeps it physically present.
	record := &OTPRecord{
		Email:     "alice@habitloop.dev",
		CodeHash:  internal.HashOTP("123456"),
		ExpiresAt: time.Now().Add(-time.Minute).Unix(),
	}
	if err := engine.otpStore.Save(ctx, record, time.Hour); err != nil {
		t.Fatalf("seeding expired record failed: %v", err)
	}

	if err := engine.ConsumeOTP(ctx, "alice@habitloop.dev", "123456"); !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("expired code: expected ErrOTPInvalid, got %v", err)
	}
}

func TestIssueOTPDeliveryFailureKeepsRecord(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	sender := newCaptureSender()
	sender.fail = errors.New("smtp connection refused")
	engine := newTestEngine(t, rdb, sender, nil)

	if err := engine.IssueOTP(ctx, "alice@habitloop.dev"); !errors.Is(err, ErrOTPDeliveryFailed) {
		t.Fatalf("expected ErrOTPDeliveryFailed, got %v", err)
	}

	// The stored code survives the delivery failure. A user who somehow got
	// the code anyway may still use it; a retry replaces it.
	code := sender.lastCode("alice@habitloop.dev")
	if err := engine.ConsumeOTP(ctx, "alice@habitloop.dev", code); err != nil {
		t.Fatalf("code from failed delivery should still consume: %v", err)
	}
}

func TestIssueOTPEmailThrottle(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	sender := newCaptureSender()
	engine := newTestEngine(t, rdb, sender, func(cfg *Config) {
		cfg.OTP.EnableEmailThrottle = true
		cfg.OTP.MaxRequests = 2
	})

	for i := 0; i < 2; i++ {
		if err := engine.IssueOTP(ctx, "alice@habitloop.dev"); err != nil {
			t.Fatalf("issue %d within budget failed: %v", i+1, err)
		}
	}

	if err := engine.IssueOTP(ctx, "alice@habitloop.dev"); !errors.Is(err, ErrOTPRateLimited) {
		t.Fatalf("expected ErrOTPRateLimited after budget, got %v", err)
	}

	// Other emails keep their own budget.
	if err := engine.IssueOTP(ctx, "bob@habitloop.dev"); err != nil {
		t.Fatalf("unrelated email should not be throttled: %v", err)
	}
}

func TestIssueOTPThrottleWindowIndependentOfTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	sender := newCaptureSender()
	engine := newTestEngine(t, rdb, sender, func(cfg *Config) {
		cfg.OTP.EnableEmailThrottle = true
		cfg.OTP.MaxRequests = 1
		cfg.OTP.ThrottleWindow = time.Minute
	})

	if err := engine.IssueOTP(ctx, "alice@habitloop.dev"); err != nil {
		t.Fatalf("first issue failed: %v", err)
	}
	if err := engine.IssueOTP(ctx, "alice@habitloop.dev"); !errors.Is(err, ErrOTPRateLimited) {
		t.Fatalf("expected ErrOTPRateLimited within window, got %v", err)
	}

	// The throttle key expires with the one-minute window; the ten-minute
	// code TTL plays no part.
	mr.FastForward(2 * time.Minute)

	if err := engine.IssueOTP(ctx, "alice@habitloop.dev"); err != nil {
		t.Fatalf("issue after window lapsed failed: %v", err)
	}
	code := sender.lastCode("alice@habitloop.dev")
	if err := engine.ConsumeOTP(ctx, "alice@habitloop.dev", code); err != nil {
		t.Fatalf("latest code should still consume: %v", err)
	}
}

func TestOTPBackendUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)

	ctx := context.Background()
	engine := newTestEngine(t, rdb, newCaptureSender(), nil)

	mr.Close()

	if err := engine.IssueOTP(ctx, "alice@habitloop.dev"); !errors.Is(err, ErrOTPUnavailable) {
		t.Fatalf("issue with dead backend: expected ErrOTPUnavailable, got %v", err)
	}
	if err := engine.ConsumeOTP(ctx, "alice@habitloop.dev", "123456"); !errors.Is(err, ErrOTPUnavailable) {
		t.Fatalf("consume with dead backend: expected ErrOTPUnavailable, got %v", err)
	}
}

func TestOTPMetrics(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	sender := newCaptureSender()
	engine := newTestEngine(t, rdb, sender, nil)

	if err := engine.IssueOTP(ctx, "alice@habitloop.dev"); err != nil {
		t.Fatalf("IssueOTP failed: %v", err)
	}
	if err := engine.ConsumeOTP(ctx, "alice@habitloop.dev", sender.lastCode("alice@habitloop.dev")); err != nil {
		t.Fatalf("ConsumeOTP failed: %v", err)
	}
	_ = engine.ConsumeOTP(ctx, "alice@habitloop.dev", "000000")

	snap := engine.Metrics()
	if snap.Counters[MetricOTPIssued] != 1 {
		t.Fatalf("expected 1 issued, got %d", snap.Counters[MetricOTPIssued])
	}
	if snap.Counters[MetricOTPConsumed] != 1 {
		t.Fatalf("expected 1 consumed, got %d", snap.Counters[MetricOTPConsumed])
	}
	if snap.Counters[MetricOTPConsumeFailure] != 1 {
		t.Fatalf("expected 1 consume failure, got %d", snap.Counters[MetricOTPConsumeFailure])
	}
}
