package habitauth

import (
	"github.com/habitloop/habitauth/apitoken"
	"github.com/habitloop/habitauth/internal/limiters"
	"github.com/habitloop/habitauth/token"
)

// Engine defines a public type used by habitauth APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config       Config
	codec        *token.Codec
	sessionStore SessionStore
	otpStore     OTPStore
	otpLimiter   *limiters.OTPLimiter
	emailSender  EmailSender
	apiTokens    *apitoken.Manager
	audit        *auditDispatcher
	metrics      *Metrics
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns the effective configuration the engine was built with.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByEvent reports lost audit events broken down by event type,
// or nil when auditing is disabled.
func (e *Engine) AuditDroppedByEvent() map[string]uint64 {
	if e == nil {
		return nil
	}
	return e.audit.DroppedByEvent()
}

// Metrics describes the metrics operation and its observable behavior.
//
// Metrics may return an error when input validation, dependency calls, or security checks fail.
// Metrics does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Metrics() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}
