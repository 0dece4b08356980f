package habitauth

import (
	"errors"

	"github.com/habitloop/habitauth/apitoken"
	"github.com/habitloop/habitauth/internal/limiters"
	"github.com/habitloop/habitauth/internal/stores"
	"github.com/habitloop/habitauth/token"
	"github.com/redis/go-redis/v9"
)

// Builder defines a public type used by habitauth APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  *redis.Client

	sessionStore SessionStore
	otpStore     OTPStore
	emailSender  EmailSender
	auditSink    AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the Redis client backing the default session store, OTP
// store, and throttles. Not needed when both stores are supplied explicitly
// and throttling is disabled.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithSessionStore overrides the Redis-backed session store with a custom
// implementation.
func (b *Builder) WithSessionStore(store SessionStore) *Builder {
	b.sessionStore = store
	return b
}

// WithOTPStore overrides the Redis-backed OTP store with a custom
// implementation.
func (b *Builder) WithOTPStore(store OTPStore) *Builder {
	b.otpStore = store
	return b
}

// WithEmailSender supplies the out-of-band delivery capability for OTP
// codes. Required.
func (b *Builder) WithEmailSender(sender EmailSender) *Builder {
	b.emailSender = sender
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = true
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	if b.emailSender == nil {
		return nil, errors.New("email sender is required")
	}

	codec, err := token.NewCodec([]byte(b.config.Session.Secret))
	if err != nil {
		return nil, err
	}

	sessionStore := b.sessionStore
	if sessionStore == nil {
		if b.redis == nil {
			return nil, errors.New("redis client or session store is required")
		}
		sessionStore = &redisSessionStore{inner: stores.NewSessionStore(b.redis, b.config.Session.RedisPrefix)}
	}

	otpStore := b.otpStore
	if otpStore == nil {
		if b.redis == nil {
			return nil, errors.New("redis client or otp store is required")
		}
		otpStore = &redisOTPStore{inner: stores.NewOTPStore(b.redis, b.config.OTP.RedisPrefix)}
	}

	var otpLimiter *limiters.OTPLimiter
	if b.config.OTP.EnableEmailThrottle || b.config.OTP.EnableIPThrottle {
		if b.redis == nil {
			return nil, errors.New("otp throttling requires a redis client")
		}
		window := b.config.OTP.ThrottleWindow
		if window == 0 {
			window = b.config.OTP.TTL
		}
		otpLimiter = limiters.NewOTPLimiter(b.redis, limiters.OTPConfig{
			EnableEmailThrottle: b.config.OTP.EnableEmailThrottle,
			EnableIPThrottle:    b.config.OTP.EnableIPThrottle,
			Window:              window,
			MaxRequests:         b.config.OTP.MaxRequests,
		})
	}

	var apiTokens *apitoken.Manager
	if b.config.APIToken.Enabled {
		signingKey := b.config.APIToken.SigningKey
		if signingKey == "" {
			signingKey = b.config.Session.Secret
		}
		apiTokens, err = apitoken.NewManager(apitoken.Config{
			TTL:        b.config.APIToken.TTL,
			Issuer:     b.config.APIToken.Issuer,
			Audience:   b.config.APIToken.Audience,
			Leeway:     b.config.APIToken.Leeway,
			SigningKey: []byte(signingKey),
		})
		if err != nil {
			return nil, err
		}
	}

	engine := &Engine{
		config:       b.config,
		codec:        codec,
		sessionStore: sessionStore,
		otpStore:     otpStore,
		otpLimiter:   otpLimiter,
		emailSender:  b.emailSender,
		apiTokens:    apiTokens,
		audit:        newAuditDispatcher(b.config.Audit, b.auditSink),
		metrics:      NewMetrics(b.config.Metrics),
	}

	b.built = true
	return engine, nil
}
