package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrOTPRateLimited        = errors.New("otp rate limited")
	ErrOTPLimiterUnavailable = errors.New("otp limiter unavailable")
)

type OTPConfig struct {
	EnableEmailThrottle bool
	EnableIPThrottle    bool
	Window              time.Duration
	MaxRequests         int
}

// OTPLimiter enforces fixed-window budgets on OTP issuance and consumption,
// keyed per email and per client IP.
type OTPLimiter struct {
	redis  redis.UniversalClient
	config OTPConfig
}

func NewOTPLimiter(redisClient redis.UniversalClient, cfg OTPConfig) *OTPLimiter {
	return &OTPLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *OTPLimiter) CheckIssue(ctx context.Context, email, ip string) error {
	if l.config.EnableEmailThrottle {
		if err := l.enforceFixedWindow(ctx, otpIssueEmailKey(email)); err != nil {
			return err
		}
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforceFixedWindow(ctx, otpIssueIPKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

func (l *OTPLimiter) CheckConsume(ctx context.Context, email, ip string) error {
	if l.config.EnableEmailThrottle {
		if err := l.enforceFixedWindow(ctx, otpConsumeEmailKey(email)); err != nil {
			return err
		}
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforceFixedWindow(ctx, otpConsumeIPKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

func (l *OTPLimiter) enforceFixedWindow(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOTPLimiterUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrOTPLimiterUnavailable, err)
		}
	}

	if count > int64(l.config.MaxRequests) {
		return ErrOTPRateLimited
	}

	return nil
}

func otpIssueEmailKey(email string) string {
	return "hoi:" + email
}

func otpIssueIPKey(ip string) string {
	return "hoip:" + ip
}

func otpConsumeEmailKey(email string) string {
	return "hoc:" + email
}

func otpConsumeIPKey(ip string) string {
	return "hocip:" + ip
}
