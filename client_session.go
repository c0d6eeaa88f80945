package finauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/finauthio/finauth/principal"
	"github.com/finauthio/finauth/session"
)

type sessionRequest struct {
	Secret string `json:"secret"`
}

type sessionResponse struct {
	ID        int64           `json:"id"`
	Token     tokenBody       `json:"token"`
	Created   time.Time       `json:"created"`
	Principal json.RawMessage `json:"principal"`
}

type principalListResponse struct {
	Principals []json.RawMessage `json:"principals"`
}

const renewalFlightKey = "session-renewal"

// EnsureSession makes sure a usable session exists: installation, device
// registration, and an unexpired token. When the current session is valid
// it returns immediately with zero network calls.
//
// Renewal is single-flight: while one renewal round trip is in progress,
// every other caller attaches to it and observes the same outcome. The
// in-flight marker is cleared on success and failure alike, so a call after
// a failure starts a fresh attempt instead of replaying the rejection.
func (c *Client) EnsureSession(ctx context.Context) error {
	if err := c.ensureLoaded(ctx); err != nil {
		return err
	}
	if c.sessionValid() {
		return nil
	}

	var executed bool
	_, err, _ := c.renew.Do(renewalFlightKey, func() (any, error) {
		executed = true
		// Re-validate inside the flight: a caller that raced a completed
		// renewal must not trigger a second round trip.
		if c.sessionValid() {
			return nil, nil
		}
		return nil, c.generateSession(ctx)
	})
	if !executed {
		c.renewJoined.Add(1)
		c.metricInc(MetricRenewalJoined)
	}
	return err
}

// StartSession creates a session explicitly and refuses to stomp on a live
// one: if the installation already has an unexpired session it returns
// [ErrSessionAlreadyActive]. Use [Client.EnsureSession] for the idempotent
// variant.
func (c *Client) StartSession(ctx context.Context) error {
	if err := c.ensureLoaded(ctx); err != nil {
		return err
	}
	if c.sessionValid() {
		return ErrSessionAlreadyActive
	}

	_, err, _ := c.renew.Do(renewalFlightKey, func() (any, error) {
		if c.sessionValid() {
			return nil, nil
		}
		return nil, c.generateSession(ctx)
	})
	return err
}

func (c *Client) sessionValid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != nil && c.state.SessionValidAt(time.Now())
}

// generateSession performs one renewal round trip. Only ever reached from
// inside the single-flight group.
func (c *Client) generateSession(ctx context.Context) error {
	c.mu.Lock()
	installed := c.state.Installed()
	registered := c.state.DeviceRegistered()
	var installToken string
	if installed {
		installToken = c.state.Installation.Token
	}
	c.mu.Unlock()

	if !installed {
		return ErrNotInstalled
	}
	if !registered {
		return ErrDeviceNotRegistered
	}

	body, err := json.Marshal(sessionRequest{Secret: c.config.API.Key})
	if err != nil {
		return err
	}

	var res sessionResponse
	if err := c.call(ctx, callOptions{
		method: http.MethodPost,
		path:   pathSessionServer,
		auth:   installToken,
		signed: true,
	}, body, &res); err != nil {
		c.metricInc(MetricSessionCreationFailed)
		c.emitAudit(AuditEvent{
			EventType: auditEventSessionRenewalFailed,
			Success:   false,
			Error:     err.Error(),
		})
		return fmt.Errorf("%w: %w", ErrSessionCreationFailed, err)
	}

	p, err := principal.Decode(res.Principal)
	if err != nil {
		// Remote contract change. Fail fast; no partial state is committed.
		return err
	}

	timeout := time.Duration(p.SessionTimeout) * time.Second
	created := res.Created
	if created.IsZero() {
		created = time.Now()
	}
	expiry := created.Add(timeout)

	sess := &session.Session{
		ID:        res.ID,
		Token:     res.Token.Token,
		TokenID:   res.Token.ID,
		CreatedAt: created,
		ExpiresAt: expiry,
		Timeout:   timeout,
		Principal: p,
	}
	if p.IsOAuth() {
		sess.GrantedBy = p.GrantedBy
	}

	c.mu.Lock()
	c.state.Session = sess
	persistErr := c.persistLocked(ctx)
	c.mu.Unlock()
	if persistErr != nil {
		return persistErr
	}

	c.metricInc(MetricSessionCreated)
	c.emitAudit(AuditEvent{
		EventType: auditEventSessionCreated,
		SessionID: sess.ID,
		Principal: p.Kind.String(),
		Success:   true,
	})
	c.logger.Debug("session created, expires " + expiry.Format(time.RFC3339))

	// Fresh sessions re-arm with the short cap rather than the full
	// remaining lifetime.
	if c.selfRenew.Load() {
		c.scheduler.Arm(expiry, timeout, true)
	}
	return nil
}

// CloseSession ends the current session: it deletes the remote session,
// cancels the renewal timer, clears the local session stage, and persists.
// Returns [ErrNoSession] when there is nothing to close. A transport-level
// failure is returned unchanged and leaves the local session intact so the
// caller can retry; a protocol rejection still clears locally, since the
// remote no longer honors the token either way.
func (c *Client) CloseSession(ctx context.Context) error {
	if err := c.ensureLoaded(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	sess := currentSession(c.state)
	c.mu.Unlock()
	if sess == nil {
		return ErrNoSession
	}

	c.scheduler.Disarm()

	callErr := c.call(ctx, callOptions{
		method: http.MethodDelete,
		path:   pathSessionServer + "/" + strconv.FormatInt(sess.ID, 10),
		auth:   sess.Token,
		signed: true,
	}, nil, nil)
	if callErr != nil {
		if _, ok := asAPIError(callErr); !ok {
			return callErr
		}
	}

	c.mu.Lock()
	c.state.ClearSession()
	persistErr := c.persistLocked(ctx)
	c.mu.Unlock()
	if persistErr != nil {
		return persistErr
	}

	c.metricInc(MetricSessionClosed)
	c.emitAudit(AuditEvent{
		EventType: auditEventSessionClosed,
		SessionID: sess.ID,
		Success:   callErr == nil,
	})
	return callErr
}

// ListPrincipals fetches the principals visible to the session, renewing
// the session first when needed.
func (c *Client) ListPrincipals(ctx context.Context) ([]*principal.Principal, error) {
	if err := c.EnsureSession(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	sess := currentSession(c.state)
	c.mu.Unlock()
	if sess == nil {
		return nil, ErrNoSession
	}

	var res principalListResponse
	if err := c.call(ctx, callOptions{
		method: http.MethodGet,
		path:   pathPrincipal,
		auth:   sess.Token,
		signed: true,
	}, nil, &res); err != nil {
		return nil, err
	}

	principals := make([]*principal.Principal, 0, len(res.Principals))
	for _, raw := range res.Principals {
		p, err := principal.Decode(raw)
		if err != nil {
			return nil, err
		}
		principals = append(principals, p)
	}
	return principals, nil
}

// refreshSession is the timer-driven best-effort renewal path. No caller
// waits on it, so failures are logged and audited but never propagated.
func (c *Client) refreshSession() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := c.EnsureSession(ctx); err != nil {
		c.logger.Error("background session refresh failed: " + err.Error())
		c.emitAudit(AuditEvent{
			EventType: auditEventSessionRenewalFailed,
			Success:   false,
			Error:     err.Error(),
			Metadata:  map[string]string{"trigger": "scheduler"},
		})
	}
}
