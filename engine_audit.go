package habitauth

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventOTPIssue      = "otp_issue"
	auditEventOTPConsume    = "otp_consume"
	auditEventSessionCreate = "session_create"
	auditEventSessionRevoke = "session_revoke"
	auditEventAPITokenIssue = "api_token_issue"
	auditEventRateLimitHit  = "rate_limit_triggered"
)

// AuditErrorCode defines a public type used by habitauth APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrEmailInvalid    AuditErrorCode = "email_invalid"
	auditErrOTPFormat       AuditErrorCode = "otp_format"
	auditErrOTPInvalid      AuditErrorCode = "otp_invalid"
	auditErrRateLimited     AuditErrorCode = "rate_limited"
	auditErrDeliveryFailed  AuditErrorCode = "delivery_failed"
	auditErrUnauthorized    AuditErrorCode = "unauthorized"
	auditErrSessionCreation AuditErrorCode = "session_creation_failed"
	auditErrSessionRevoke   AuditErrorCode = "session_revocation_failed"
	auditErrUnavailable     AuditErrorCode = "backend_unavailable"
	auditErrInternal        AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	email string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(
	ctx context.Context,
	scope string,
	email string,
) {
	e.metricInc(MetricOTPRateLimited)
	e.emitAudit(ctx, auditEventRateLimitHit, false, "", email, "", nil, func() map[string]string {
		return map[string]string{
			"scope": scope,
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrEmailInvalid):
		return auditErrEmailInvalid
	case errors.Is(err, ErrOTPFormat):
		return auditErrOTPFormat
	case errors.Is(err, ErrOTPInvalid), errors.Is(err, ErrOTPNotFound):
		return auditErrOTPInvalid
	case errors.Is(err, ErrOTPRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrOTPDeliveryFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrSessionCreationFailed):
		return auditErrSessionCreation
	case errors.Is(err, ErrSessionRevocationFailed):
		return auditErrSessionRevoke
	case errors.Is(err, ErrOTPUnavailable), errors.Is(err, ErrSessionUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
