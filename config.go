package finauth

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config defines the tunable surface of the client.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable unless documented otherwise.
type Config struct {
	API     APIConfig
	Keys    KeyConfig
	Session SessionConfig
	Limiter LimiterConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig describes the remote endpoint and the credential that
// identifies this client to it.
type APIConfig struct {
	// BaseURL of the remote API, e.g. "https://api.example.com/".
	BaseURL string
	// Key is the API key exchanged for session tokens. It also derives the
	// stable storage identity under which client state persists.
	Key string
	// UserAgent sent on every request.
	UserAgent string
}

/*
====================================
KEY CONFIG
====================================
*/

// KeyConfig controls client keypair generation.
type KeyConfig struct {
	// Bits is the RSA modulus size. Minimum and default 2048.
	Bits int
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session renewal behavior.
type SessionConfig struct {
	// SelfRenew enables the expiry-driven renewal scheduler. When false the
	// scheduler never arms and any armed timer is cancelled; callers then
	// renew explicitly through EnsureSession.
	SelfRenew bool
}

/*
====================================
LIMITER CONFIG
====================================
*/

// LimiterConfig bounds calls to the unauthenticated handshake endpoints,
// per (path, method) key.
type LimiterConfig struct {
	MaxConcurrent int
	MaxPerWindow  int
	Window        time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit event dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the settings a production client starts from. The
// API section has no usable defaults and must be filled in.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			UserAgent: "finauth-go",
		},
		Keys: KeyConfig{
			Bits: 2048,
		},
		Session: SessionConfig{
			SelfRenew: true,
		},
		Limiter: LimiterConfig{
			MaxConcurrent: 1,
			MaxPerWindow:  3,
			Window:        3 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("finauth: API.BaseURL is required")
	}
	parsed, err := url.Parse(c.API.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return errors.New("finauth: API.BaseURL is not an absolute URL")
	}
	if strings.TrimSpace(c.API.Key) == "" {
		return errors.New("finauth: API.Key is required")
	}
	if c.Keys.Bits == 0 {
		c.Keys.Bits = 2048
	}
	if c.API.UserAgent == "" {
		c.API.UserAgent = "finauth-go"
	}
	if c.Limiter.MaxConcurrent <= 0 {
		c.Limiter.MaxConcurrent = 1
	}
	if c.Limiter.MaxPerWindow <= 0 {
		c.Limiter.MaxPerWindow = 3
	}
	if c.Limiter.Window <= 0 {
		c.Limiter.Window = 3 * time.Second
	}
	if c.Audit.BufferSize <= 0 {
		c.Audit.BufferSize = 256
	}
	return nil
}
