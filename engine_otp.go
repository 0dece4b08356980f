package habitauth

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/habitloop/habitauth/internal"
	"github.com/habitloop/habitauth/internal/limiters"
)

// emailPattern is deliberately loose: local-part@domain with at least one
// dot in the domain. Real validation happens by delivering to the address.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// IssueOTP describes the issueotp operation and its observable behavior.
//
// IssueOTP may return an error when input validation, dependency calls, or security checks fail.
// IssueOTP does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The code is communicated out-of-band only: it is handed to the
// EmailSender and never returned to the caller. Issuing supersedes any
// prior unused code for the email, and a delivery failure leaves the stored
// record in place so a client retry correctly replaces it.
func (e *Engine) IssueOTP(ctx context.Context, email string) error {
	if e == nil || e.otpStore == nil || e.emailSender == nil {
		return ErrEngineNotReady
	}

	if !emailPattern.MatchString(email) {
		e.metricInc(MetricOTPIssueFailure)
		e.emitAudit(ctx, auditEventOTPIssue, false, "", email, "", ErrEmailInvalid, func() map[string]string {
			return map[string]string{
				"reason": "malformed_email",
			}
		})
		return ErrEmailInvalid
	}

	if e.otpLimiter != nil {
		if err := e.otpLimiter.CheckIssue(ctx, email, clientIPFromContext(ctx)); err != nil {
			mapped := mapOTPLimiterError(err)
			e.metricInc(MetricOTPIssueFailure)
			if errors.Is(mapped, ErrOTPRateLimited) {
				e.emitRateLimit(ctx, "otp_issue", email)
			} else {
				e.emitAudit(ctx, auditEventOTPIssue, false, "", email, "", mapped, nil)
			}
			return mapped
		}
	}

	// Invalidate-then-create keeps at most one live code per email. The two
	// store operations are sequential, not transactional; a consume racing
	// between them can still burn the old code. That window is narrow,
	// bounded, and accepted.
	if err := e.otpStore.Invalidate(ctx, email); err != nil {
		e.metricInc(MetricOTPIssueFailure)
		e.emitAudit(ctx, auditEventOTPIssue, false, "", email, "", ErrOTPUnavailable, nil)
		return ErrOTPUnavailable
	}

	code, err := internal.NewOTP(e.config.OTP.Digits)
	if err != nil {
		e.metricInc(MetricOTPIssueFailure)
		e.emitAudit(ctx, auditEventOTPIssue, false, "", email, "", ErrOTPUnavailable, func() map[string]string {
			return map[string]string{
				"reason": "generation_failed",
			}
		})
		return ErrOTPUnavailable
	}

	record := &OTPRecord{
		Email:     email,
		CodeHash:  internal.HashOTP(code),
		ExpiresAt: time.Now().Add(e.config.OTP.TTL).Unix(),
	}
	if err := e.otpStore.Save(ctx, record, e.config.OTP.RetentionTTL); err != nil {
		e.metricInc(MetricOTPIssueFailure)
		e.emitAudit(ctx, auditEventOTPIssue, false, "", email, "", ErrOTPUnavailable, nil)
		return ErrOTPUnavailable
	}

	if err := e.emailSender.SendOTPEmail(ctx, email, code); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		e.metricInc(MetricOTPDeliveryFailure)
		e.emitAudit(ctx, auditEventOTPIssue, false, "", email, "", ErrOTPDeliveryFailed, nil)
		return ErrOTPDeliveryFailed
	}

	e.metricInc(MetricOTPIssued)
	e.emitAudit(ctx, auditEventOTPIssue, true, "", email, "", nil, nil)
	return nil
}

// ConsumeOTP describes the consumeotp operation and its observable behavior.
//
// ConsumeOTP may return an error when input validation, dependency calls, or security checks fail.
// ConsumeOTP does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// A wrong code, an expired code, and an unknown email all surface as
// ErrOTPInvalid. Keeping them indistinguishable denies enumeration. On
// success the caller is expected to create a session for the verified user.
func (e *Engine) ConsumeOTP(ctx context.Context, email, code string) error {
	if e == nil || e.otpStore == nil {
		return ErrEngineNotReady
	}

	if !emailPattern.MatchString(email) {
		e.metricInc(MetricOTPConsumeFailure)
		e.emitAudit(ctx, auditEventOTPConsume, false, "", email, "", ErrEmailInvalid, func() map[string]string {
			return map[string]string{
				"reason": "malformed_email",
			}
		})
		return ErrEmailInvalid
	}
	if len(code) != e.config.OTP.Digits || !internal.IsNumericString(code) {
		e.metricInc(MetricOTPConsumeFailure)
		e.emitAudit(ctx, auditEventOTPConsume, false, "", email, "", ErrOTPFormat, func() map[string]string {
			return map[string]string{
				"reason": "malformed_code",
			}
		})
		return ErrOTPFormat
	}

	if e.otpLimiter != nil {
		if err := e.otpLimiter.CheckConsume(ctx, email, clientIPFromContext(ctx)); err != nil {
			mapped := mapOTPLimiterError(err)
			e.metricInc(MetricOTPConsumeFailure)
			if errors.Is(mapped, ErrOTPRateLimited) {
				e.emitRateLimit(ctx, "otp_consume", email)
			} else {
				e.emitAudit(ctx, auditEventOTPConsume, false, "", email, "", mapped, nil)
			}
			return mapped
		}
	}

	if err := e.otpStore.Consume(ctx, email, internal.HashOTP(code), time.Now()); err != nil {
		mapped := mapOTPStoreError(err)
		e.metricInc(MetricOTPConsumeFailure)
		e.emitAudit(ctx, auditEventOTPConsume, false, "", email, "", mapped, nil)
		return mapped
	}

	e.metricInc(MetricOTPConsumed)
	e.emitAudit(ctx, auditEventOTPConsume, true, "", email, "", nil, nil)
	return nil
}

func mapOTPLimiterError(err error) error {
	switch {
	case errors.Is(err, limiters.ErrOTPRateLimited):
		return ErrOTPRateLimited
	case errors.Is(err, limiters.ErrOTPLimiterUnavailable):
		return ErrOTPUnavailable
	default:
		return ErrOTPUnavailable
	}
}

func mapOTPStoreError(err error) error {
	switch {
	case errors.Is(err, ErrOTPNotFound):
		return ErrOTPInvalid
	default:
		return ErrOTPUnavailable
	}
}
