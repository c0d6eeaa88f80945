package session

import (
	"time"

	"github.com/finauthio/finauth/principal"
)

// Installation records the public-key exchange with the remote server.
type Installation struct {
	Token              string    `json:"token"`
	ServerPublicKeyPEM string    `json:"server_public_key_pem"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Valid reports whether the installation stage is complete.
func (i *Installation) Valid() bool {
	return i != nil && i.Token != "" && i.ServerPublicKeyPEM != ""
}

// DeviceRegistration binds the installation to a named device and its
// allow-listed source addresses.
type DeviceRegistration struct {
	ID           int64    `json:"id"`
	Description  string   `json:"description"`
	PermittedIPs []string `json:"permitted_ips"`
}

// Valid reports whether the device stage is complete.
func (d *DeviceRegistration) Valid() bool {
	return d != nil && d.ID != 0
}

// Session is the short-lived authenticated token plus its computed expiry
// and the classified principal it represents.
type Session struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	TokenID   int64     `json:"token_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	// Timeout is the remote-declared session lifetime; the renewal
	// scheduler uses it for the post-renewal short delay.
	Timeout time.Duration `json:"timeout"`

	Principal *principal.Principal `json:"principal,omitempty"`
	// GrantedBy is set only for OAuth sessions and holds the principal
	// that granted the API key.
	GrantedBy *principal.Principal `json:"granted_by,omitempty"`
}

// ValidAt reports whether the session token is still usable at now.
func (s *Session) ValidAt(now time.Time) bool {
	return s != nil && s.Token != "" && s.ExpiresAt.After(now)
}

// State is the persisted unit: every stage of the install/device/session
// chain. Mutations always go through the root client, which persists the
// whole State afterwards.
type State struct {
	Installation *Installation       `json:"installation,omitempty"`
	Device       *DeviceRegistration `json:"device,omitempty"`
	Session      *Session            `json:"session,omitempty"`
}

// Installed reports whether the installation stage holds.
func (s *State) Installed() bool {
	return s != nil && s.Installation.Valid()
}

// DeviceRegistered reports whether both the installation and device stages
// hold.
func (s *State) DeviceRegistered() bool {
	return s.Installed() && s.Device.Valid()
}

// SessionValidAt reports whether the full chain holds at now: installation,
// device registration, and an unexpired session.
func (s *State) SessionValidAt(now time.Time) bool {
	return s.DeviceRegistered() && s.Session.ValidAt(now)
}

// ClearInstallation wipes the installation stage and everything after it.
// Used when the remote rejects the device registration and the whole
// handshake must restart with a fresh keypair.
func (s *State) ClearInstallation() {
	s.Installation = nil
	s.Device = nil
	s.Session = nil
}

// ClearSession drops only the session stage, keeping installation and
// device registration intact.
func (s *State) ClearSession() {
	s.Session = nil
}
