package finauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/finauthio/finauth/keys"
	"github.com/finauthio/finauth/session"
	"github.com/finauthio/finauth/storage"
)

type tokenBody struct {
	ID    int64  `json:"id"`
	Token string `json:"token"`
}

type installRequest struct {
	ClientPublicKey string `json:"client_public_key"`
}

type installResponse struct {
	ID              int64     `json:"id"`
	Token           tokenBody `json:"token"`
	ServerPublicKey string    `json:"server_public_key"`
	Created         time.Time `json:"created"`
}

type deviceRequest struct {
	Description  string   `json:"description"`
	Secret       string   `json:"secret"`
	PermittedIPs []string `json:"permitted_ips"`
}

type deviceResponse struct {
	ID int64 `json:"id"`
}

// Install exchanges public keys with the remote: the client key goes out,
// the server key and an install token come back. A completed installation
// makes Install a no-op with zero network calls.
//
// Install requires an ensured keypair and returns [ErrNoKeyPair] otherwise;
// it never generates one itself, so a deliberately provisioned key is never
// silently replaced.
func (c *Client) Install(ctx context.Context) error {
	if err := c.ensureLoaded(ctx); err != nil {
		return err
	}

	c.handshakeMu.Lock()
	defer c.handshakeMu.Unlock()

	c.mu.Lock()
	installed := c.state.Installed()
	c.mu.Unlock()
	if installed {
		return nil
	}

	pair, err := c.keys.LoadKeyPair(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNoKeyPair
		}
		return err
	}

	body, err := json.Marshal(installRequest{ClientPublicKey: pair.PublicPEM})
	if err != nil {
		return err
	}

	// Unsigned: there is no server key to verify against yet.
	var res installResponse
	if err := c.call(ctx, callOptions{
		method:  http.MethodPost,
		path:    pathInstallation,
		limited: true,
	}, body, &res); err != nil {
		c.metricInc(MetricInstallFailure)
		return err
	}

	serverKey, err := keys.ParsePublicPEM(res.ServerPublicKey)
	if err != nil {
		c.metricInc(MetricInstallFailure)
		return err
	}

	created := res.Created
	if created.IsZero() {
		created = time.Now()
	}

	c.mu.Lock()
	c.state.Installation = &session.Installation{
		Token:              res.Token.Token,
		ServerPublicKeyPEM: res.ServerPublicKey,
		CreatedAt:          created,
		UpdatedAt:          created,
	}
	c.serverKey = serverKey
	persistErr := c.persistLocked(ctx)
	c.mu.Unlock()
	if persistErr != nil {
		return persistErr
	}

	c.metricInc(MetricInstallSuccess)
	c.emitAudit(AuditEvent{
		EventType: auditEventInstalled,
		Success:   true,
	})
	c.logger.Debug("installation handshake completed")
	return nil
}

// RegisterDevice binds the installation to this device and its allow-listed
// source addresses. A completed registration makes it a no-op.
//
// A client-error rejection means the remote refused the key (typically a
// duplicate), which poisons the whole installation: the server key, install
// token, and timestamps are wiped, a fresh keypair is forced, the wiped
// state is persisted, and the original rejection is returned so the caller
// re-runs Install. A transport-level failure is returned unchanged with no
// state mutation.
func (c *Client) RegisterDevice(ctx context.Context, description string, permittedIPs []string) error {
	if err := c.ensureLoaded(ctx); err != nil {
		return err
	}

	c.handshakeMu.Lock()
	defer c.handshakeMu.Unlock()

	c.mu.Lock()
	registered := c.state.DeviceRegistered()
	installed := c.state.Installed()
	var installToken string
	if installed {
		installToken = c.state.Installation.Token
	}
	c.mu.Unlock()

	if registered {
		return nil
	}
	if !installed {
		return ErrNotInstalled
	}

	body, err := json.Marshal(deviceRequest{
		Description:  description,
		Secret:       c.config.API.Key,
		PermittedIPs: permittedIPs,
	})
	if err != nil {
		return err
	}

	var res deviceResponse
	callErr := c.call(ctx, callOptions{
		method:  http.MethodPost,
		path:    pathDeviceServer,
		auth:    installToken,
		signed:  true,
		limited: true,
	}, body, &res)
	if callErr != nil {
		if apiErr, ok := asAPIError(callErr); ok && apiErr.ClientError() {
			c.wipeInstallation(ctx, apiErr)
		}
		return callErr
	}

	c.mu.Lock()
	c.state.Device = &session.DeviceRegistration{
		ID:           res.ID,
		Description:  description,
		PermittedIPs: permittedIPs,
	}
	persistErr := c.persistLocked(ctx)
	c.mu.Unlock()
	if persistErr != nil {
		return persistErr
	}

	c.metricInc(MetricDeviceRegistered)
	c.emitAudit(AuditEvent{
		EventType: auditEventDeviceRegistered,
		DeviceID:  res.ID,
		Success:   true,
	})
	c.logger.Debug("device registered")
	return nil
}

// wipeInstallation reverts the state machine to uninstalled after the
// remote rejected the device registration. The remote treats the public key
// as a uniqueness key, so a fresh keypair is forced before any retry.
func (c *Client) wipeInstallation(ctx context.Context, cause *APIError) {
	c.mu.Lock()
	c.state.ClearInstallation()
	c.serverKey = nil
	persistErr := c.persistLocked(ctx)
	c.mu.Unlock()

	if persistErr != nil {
		c.logger.Error("persisting wiped installation failed: " + persistErr.Error())
	}
	if _, err := c.keys.EnsureKeyPair(ctx, true); err != nil {
		c.logger.Error("forced keypair regeneration failed: " + err.Error())
	}

	c.metricInc(MetricDeviceRejected)
	c.emitAudit(AuditEvent{
		EventType: auditEventInstallationWiped,
		Success:   false,
		Error:     cause.Error(),
	})
}
