package finauth

import (
	"errors"
	"fmt"

	"github.com/finauthio/finauth/principal"
	"github.com/finauthio/finauth/signing"
)

var (
	// ErrNoKeyPair is returned by Install when no client keypair has been
	// ensured yet. This is a configuration error: generate or load a
	// keypair (see [Client.EnsureKeyPair] or [Client.Bootstrap]) before
	// installing.
	ErrNoKeyPair = errors.New("finauth: no client keypair for installation")
	// ErrNotInstalled is returned by operations that require a completed
	// installation handshake.
	ErrNotInstalled = errors.New("finauth: installation handshake not completed")
	// ErrDeviceNotRegistered is returned by session operations before the
	// device registration stage is complete.
	ErrDeviceNotRegistered = errors.New("finauth: device not registered")
	// ErrSessionAlreadyActive is returned by StartSession when the
	// installation already has an unexpired session.
	ErrSessionAlreadyActive = errors.New("finauth: installation already has a session")
	// ErrSessionCreationFailed wraps any failure of the session-creation
	// round trip. The underlying cause is preserved and never retried
	// internally.
	ErrSessionCreationFailed = errors.New("finauth: session creation failed")
	// ErrNoSession is returned by CloseSession when there is no session to
	// close.
	ErrNoSession = errors.New("finauth: no active session")

	// ErrVerificationFailed reports a response signature mismatch. Fatal;
	// never a retry signal.
	ErrVerificationFailed = signing.ErrVerificationFailed
	// ErrUnsupportedPrincipal reports a principal payload matching none of
	// the recognized shapes.
	ErrUnsupportedPrincipal = principal.ErrUnsupportedType
)

// APIError is a protocol-level rejection: the transport completed the round
// trip and the remote answered with an error status. Pure network failures
// are never wrapped into an APIError; they surface as the transport's own
// error so callers can tell the two apart.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("finauth: remote rejected request with status %d", e.StatusCode)
	}
	return fmt.Sprintf("finauth: remote rejected request with status %d: %s", e.StatusCode, e.Message)
}

// ClientError reports whether the rejection is in the 4xx class. A 4xx on
// device registration invalidates the whole installation.
func (e *APIError) ClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

func asAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
