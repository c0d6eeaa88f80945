package finauth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/finauthio/finauth/internal/limits"
	"github.com/finauthio/finauth/keys"
	"github.com/finauthio/finauth/session"
	"github.com/finauthio/finauth/signing"
)

// Request headers of the signed-session protocol.
const (
	headerUserAgent       = "User-Agent"
	headerRequestID       = "X-Client-Request-Id"
	headerAuth            = "X-Client-Auth"
	headerClientSignature = "X-Client-Signature"
	headerServerSignature = "X-Server-Signature"
)

// Endpoint families of the remote API.
const (
	pathInstallation      = "v1/installation"
	pathDeviceServer      = "v1/device-server"
	pathSessionServer     = "v1/session-server"
	pathPrincipal         = "v1/principal"
	pathCredentialRequest = "v1/credential-password-ip-request"
)

// Client is the signed-session manager for one API key: it owns the
// keypair, drives the install/device/session state machine, signs requests,
// verifies responses, and keeps the session renewed ahead of expiry.
//
// Client instances are built through [Builder]. All methods are safe for
// concurrent use after Build.
type Client struct {
	config    Config
	transport Transport
	limiter   *limits.Limiter
	keys      *keys.Manager
	store     *session.Store
	logger    Logger
	audit     *auditDispatcher
	metrics   *Metrics
	scheduler *renewalScheduler
	selfRenew atomic.Bool

	// mu guards state and serverKey. Network calls never run under mu;
	// every mutation re-reads state after the round trip completes.
	mu        sync.Mutex
	loaded    bool
	state     *session.State
	serverKey *rsa.PublicKey

	// handshakeMu serializes Install and RegisterDevice. Session renewal
	// has its own single-flight discipline.
	handshakeMu sync.Mutex
	renew       singleflight.Group
	renewJoined atomic.Uint64
}

// Close stops background work: the renewal timer and the audit dispatcher.
// The remote session, if any, stays valid; use [Client.CloseSession] to end
// it.
func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.scheduler != nil {
		c.scheduler.Disarm()
	}
	if c.audit != nil {
		c.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded due to a full
// dispatch buffer.
func (c *Client) AuditDropped() uint64 {
	if c == nil || c.audit == nil {
		return 0
	}
	return c.audit.Dropped()
}

// MetricsSnapshot copies the current counter values.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	if c == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return c.metrics.Snapshot()
}

// SetSelfRenew toggles the expiry-driven renewal scheduler at runtime.
// Disabling cancels any armed timer; enabling re-arms from the current
// session if one is valid. The flag is also re-checked when an armed timer
// fires, so a disable always wins even against a pending timer.
func (c *Client) SetSelfRenew(enabled bool) {
	c.selfRenew.Store(enabled)
	if !enabled {
		c.scheduler.Disarm()
		return
	}
	c.mu.Lock()
	sess := currentSession(c.state)
	c.mu.Unlock()
	if sess != nil {
		c.scheduler.Arm(sess.ExpiresAt, sess.Timeout, false)
	}
}

// EnsureKeyPair returns the client keypair, generating and persisting one
// when absent or when force is set.
func (c *Client) EnsureKeyPair(ctx context.Context, force bool) (*keys.KeyPair, error) {
	return c.keys.EnsureKeyPair(ctx, force)
}

// Bootstrap runs the whole startup sequence in order: ensure a keypair,
// install, register this device, and open a session. Each step is
// idempotent, so Bootstrap is safe to call on every process start.
func (c *Client) Bootstrap(ctx context.Context, description string, permittedIPs []string) error {
	if _, err := c.EnsureKeyPair(ctx, false); err != nil {
		return err
	}
	if err := c.Install(ctx); err != nil {
		return err
	}
	if err := c.RegisterDevice(ctx, description, permittedIPs); err != nil {
		return err
	}
	return c.EnsureSession(ctx)
}

// handleExpiry is the armed timer's callback: a best-effort background
// refresh, then an unconditional short re-arm regardless of the refresh
// outcome.
func (c *Client) handleExpiry() {
	c.metricInc(MetricSchedulerFired)
	c.refreshSession()

	c.mu.Lock()
	sess := currentSession(c.state)
	c.mu.Unlock()
	if sess != nil {
		c.scheduler.Arm(sess.ExpiresAt, sess.Timeout, true)
	}
}

func currentSession(state *session.State) *session.Session {
	if state == nil {
		return nil
	}
	return state.Session
}

// ensureLoaded reads persisted state once per process and resumes from it:
// a still-valid session re-arms the renewal timer with its real remaining
// lifetime.
func (c *Client) ensureLoaded(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}

	state, err := c.store.Load(ctx)
	if err != nil {
		return err
	}
	if state.Installed() {
		serverKey, err := keys.ParsePublicPEM(state.Installation.ServerPublicKeyPEM)
		if err != nil {
			return err
		}
		c.serverKey = serverKey
	}
	c.state = state
	c.loaded = true

	if state.SessionValidAt(time.Now()) && c.selfRenew.Load() {
		c.scheduler.Arm(state.Session.ExpiresAt, state.Session.Timeout, false)
	}
	return nil
}

func (c *Client) persistLocked(ctx context.Context) error {
	return c.store.Save(ctx, c.state)
}

func (c *Client) serverKeyRef() *rsa.PublicKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverKey
}

func (c *Client) emitAudit(event AuditEvent) {
	c.audit.emit(event)
}

func (c *Client) metricInc(id MetricID) {
	c.metrics.Inc(id)
}

type callOptions struct {
	method string
	path   string
	auth   string // token header value; empty for unauthenticated calls
	signed bool
	// limited routes the call through the per-endpoint limiter. limitKey
	// overrides the limiter key when the path embeds a resource id; it
	// defaults to path.
	limited  bool
	limitKey string
}

// errorBody is the remote's error envelope.
type errorBody struct {
	Error struct {
		Description string `json:"description"`
	} `json:"error"`
}

// call performs one round trip: header assembly, optional request signing,
// optional limiter scheduling, response verification, status classification,
// and decode. Network failures pass through unchanged; protocol rejections
// come back as *APIError.
func (c *Client) call(ctx context.Context, opts callOptions, body []byte, out any) error {
	requestID := requestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	headers := map[string]string{
		headerUserAgent: c.config.API.UserAgent,
		headerRequestID: requestID,
	}
	if opts.auth != "" {
		headers[headerAuth] = opts.auth
	}
	if opts.signed {
		pair, err := c.keys.LoadKeyPair(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNoKeyPair, err)
		}
		codec, err := signing.NewCodec(pair.Private)
		if err != nil {
			return err
		}
		// Signature over the exact bytes handed to the transport.
		sig, err := codec.Sign(body)
		if err != nil {
			return err
		}
		headers[headerClientSignature] = sig
	}

	req := &Request{
		Method:  opts.method,
		Path:    opts.path,
		Headers: headers,
		Body:    body,
	}

	var res *Response
	roundTrip := func() error {
		var err error
		res, err = c.transport.RoundTrip(ctx, req)
		return err
	}

	var err error
	if opts.limited {
		limitKey := opts.limitKey
		if limitKey == "" {
			limitKey = opts.path
		}
		err = c.limiter.Do(ctx, limitKey, opts.method, roundTrip)
	} else {
		err = roundTrip()
	}
	if err != nil {
		// Transport failure: no response, no state change, no wrapping.
		return err
	}

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		if serverKey := c.serverKeyRef(); serverKey != nil {
			if err := signing.Verify(res.Body, res.Header(headerServerSignature), serverKey); err != nil {
				c.metricInc(MetricVerificationFailed)
				c.emitAudit(AuditEvent{
					EventType: auditEventVerificationFailed,
					Success:   false,
					Error:     err.Error(),
					Metadata:  map[string]string{"path": opts.path},
				})
				return err
			}
		}
		if out != nil {
			if err := json.Unmarshal(res.Body, out); err != nil {
				return fmt.Errorf("finauth: decode %s response: %w", opts.path, err)
			}
		}
		return nil
	}

	apiErr := &APIError{
		StatusCode: res.StatusCode,
		Body:       res.Body,
	}
	var envelope errorBody
	if json.Unmarshal(res.Body, &envelope) == nil {
		apiErr.Message = envelope.Error.Description
	}
	return apiErr
}
