package habitauth

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config defines a public type used by habitauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Session  SessionConfig  `envPrefix:"SESSION_"`
	OTP      OTPConfig      `envPrefix:"OTP_"`
	Gate     GateConfig     `envPrefix:"GATE_"`
	APIToken APITokenConfig `envPrefix:"API_TOKEN_"`
	Audit    AuditConfig    `envPrefix:"AUDIT_"`
	Metrics  MetricsConfig  `envPrefix:"METRICS_"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by habitauth APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	// Secret is the operator-supplied key material for the token codec. The
	// actual AES key is derived from it with HKDF-SHA256; rotating the
	// secret invalidates every outstanding token.
	Secret      string        `env:"SECRET"`
	TTL         time.Duration `env:"TTL" envDefault:"168h"`
	CookieName  string        `env:"COOKIE_NAME" envDefault:"session"`
	RedisPrefix string        `env:"REDIS_PREFIX" envDefault:"hs"`
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig defines a public type used by habitauth APIs.
//
// OTPConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type OTPConfig struct {
	Digits int           `env:"DIGITS" envDefault:"6"`
	TTL    time.Duration `env:"TTL" envDefault:"10m"`
	// RetentionTTL bounds how long a used or superseded record stays in the
	// store for audit and throttling. Must be >= TTL.
	RetentionTTL        time.Duration `env:"RETENTION_TTL" envDefault:"24h"`
	EnableEmailThrottle bool          `env:"ENABLE_EMAIL_THROTTLE"`
	EnableIPThrottle    bool          `env:"ENABLE_IP_THROTTLE"`
	// ThrottleWindow is the fixed-window length for the issue/consume
	// throttles. Zero means "use TTL", keeping the throttle window aligned
	// with code validity unless the operator decouples them.
	ThrottleWindow time.Duration `env:"THROTTLE_WINDOW"`
	// MaxRequests is the fixed-window throttle budget per email/IP.
	MaxRequests int    `env:"MAX_REQUESTS" envDefault:"5"`
	RedisPrefix string `env:"REDIS_PREFIX" envDefault:"ho"`
}

/*
====================================
GATE CONFIG
====================================
*/

// GateConfig defines a public type used by habitauth APIs.
//
// GateConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type GateConfig struct {
	ProtectedPrefixes []string `env:"PROTECTED_PREFIXES" envDefault:"/dashboard,/habits"`
	PublicPaths       []string `env:"PUBLIC_PATHS" envDefault:"/login,/"`
	BypassPrefixes    []string `env:"BYPASS_PREFIXES" envDefault:"/api,/static"`
	BypassExtensions  []string `env:"BYPASS_EXTENSIONS" envDefault:".png,.jpg,.jpeg,.gif,.svg,.ico,.webp"`
	LoginPath         string   `env:"LOGIN_PATH" envDefault:"/login"`
	HomePath          string   `env:"HOME_PATH" envDefault:"/dashboard"`
}

/*
====================================
API TOKEN CONFIG
====================================
*/

// APITokenConfig defines a public type used by habitauth APIs.
//
// APITokenConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type APITokenConfig struct {
	Enabled  bool          `env:"ENABLED"`
	TTL      time.Duration `env:"TTL" envDefault:"15m"`
	Issuer   string        `env:"ISSUER" envDefault:"habitauth"`
	Audience string        `env:"AUDIENCE" envDefault:"habitloop-api"`
	Leeway   time.Duration `env:"LEEWAY" envDefault:"30s"`
	// SigningKey defaults to Session.Secret when empty; a dedicated key
	// keeps API token rotation independent of cookie rotation.
	SigningKey string `env:"SIGNING_KEY"`
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig defines a public type used by habitauth APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int  `env:"BUFFER_SIZE" envDefault:"256"`
	DropIfFull bool `env:"DROP_IF_FULL" envDefault:"true"`
}

// MetricsConfig defines a public type used by habitauth APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`
}

// DefaultConfig returns the baseline configuration: seven-day sessions, six
// digit OTP codes valid for ten minutes, the habitloop route tables, audit
// and throttles off, metrics on. The session secret is intentionally left
// empty and must be supplied before Build.
func DefaultConfig() Config {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Environment: map[string]string{}})
	if err != nil {
		// Only reachable through a broken envDefault tag, which no input
		// can trigger at runtime.
		panic("habitauth: parsing default config: " + err.Error())
	}
	return cfg
}

// ConfigFromEnv builds a Config from HABITAUTH_* environment variables,
// falling back to the DefaultConfig values for anything unset.
func ConfigFromEnv() (Config, error) {
	return env.ParseAsWithOptions[Config](env.Options{Prefix: "HABITAUTH_"})
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c Config) Validate() error {
	if len(c.Session.Secret) < 16 {
		return errors.New("session secret must be at least 16 bytes")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session ttl must be positive")
	}
	if c.Session.CookieName == "" {
		return errors.New("session cookie name must not be empty")
	}
	if c.OTP.Digits < 6 || c.OTP.Digits > 10 {
		return errors.New("otp digits must be between 6 and 10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("otp ttl must be positive")
	}
	if c.OTP.RetentionTTL < c.OTP.TTL {
		return errors.New("otp retention ttl must not be shorter than otp ttl")
	}
	if (c.OTP.EnableEmailThrottle || c.OTP.EnableIPThrottle) && c.OTP.MaxRequests <= 0 {
		return errors.New("otp throttle requires a positive request budget")
	}
	if c.OTP.ThrottleWindow < 0 {
		return errors.New("otp throttle window must not be negative")
	}
	if c.Gate.LoginPath == "" || c.Gate.HomePath == "" {
		return errors.New("gate login and home paths must not be empty")
	}
	if c.Gate.LoginPath[0] != '/' || c.Gate.HomePath[0] != '/' {
		return errors.New("gate login and home paths must be absolute")
	}
	if c.APIToken.Enabled {
		if c.APIToken.TTL <= 0 {
			return errors.New("api token ttl must be positive")
		}
		if c.APIToken.Leeway < 0 || c.APIToken.Leeway > 2*time.Minute {
			return errors.New("api token leeway must be between 0 and 2 minutes")
		}
		if c.APIToken.SigningKey == "" && len(c.Session.Secret) < 16 {
			return errors.New("api token signing key must be set")
		}
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit buffer size must be positive")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Gate.ProtectedPrefixes = append([]string(nil), cfg.Gate.ProtectedPrefixes...)
	out.Gate.PublicPaths = append([]string(nil), cfg.Gate.PublicPaths...)
	out.Gate.BypassPrefixes = append([]string(nil), cfg.Gate.BypassPrefixes...)
	out.Gate.BypassExtensions = append([]string(nil), cfg.Gate.BypassExtensions...)
	return out
}
