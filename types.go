package finauth

import (
	"context"
	"time"

	"github.com/finauthio/finauth/principal"
)

// StageUninstalled through StageDeviceRegistered describe how far the
// handshake state machine has progressed.
type Stage uint8

const (
	// StageUninstalled means no key exchange has completed.
	StageUninstalled Stage = iota
	// StageInstalled means the key exchange completed but no device is
	// registered.
	StageInstalled
	// StageDeviceRegistered means the full handshake is complete and
	// sessions can be created.
	StageDeviceRegistered
)

// String implements fmt.Stringer.
func (s Stage) String() string {
	switch s {
	case StageUninstalled:
		return "uninstalled"
	case StageInstalled:
		return "installed"
	case StageDeviceRegistered:
		return "device_registered"
	default:
		return "unknown"
	}
}

// SessionInfo is a read-only snapshot of the current session.
type SessionInfo struct {
	ID        int64
	ExpiresAt time.Time
	Timeout   time.Duration
	Principal *principal.Principal
	GrantedBy *principal.Principal
	OAuth     bool
}

// Stage reports the current handshake stage. It reads persisted state on
// first use, like every other client operation.
func (c *Client) Stage(ctx context.Context) (Stage, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return StageUninstalled, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.state.DeviceRegistered():
		return StageDeviceRegistered, nil
	case c.state.Installed():
		return StageInstalled, nil
	default:
		return StageUninstalled, nil
	}
}

// SessionInfo returns a snapshot of the current session and whether it is
// valid right now.
func (c *Client) SessionInfo(ctx context.Context) (SessionInfo, bool, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return SessionInfo{}, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := currentSession(c.state)
	if sess == nil {
		return SessionInfo{}, false, nil
	}
	info := SessionInfo{
		ID:        sess.ID,
		ExpiresAt: sess.ExpiresAt,
		Timeout:   sess.Timeout,
		Principal: sess.Principal,
		GrantedBy: sess.GrantedBy,
		OAuth:     sess.Principal.IsOAuth(),
	}
	return info, c.state.SessionValidAt(time.Now()), nil
}
