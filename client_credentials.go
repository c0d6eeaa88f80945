package finauth

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// CredentialRequest is a pending password-IP credential request. It lives
// outside the main session lifecycle: the endpoints are always unsigned and
// unauthenticated, and only the limiter stands between the caller and the
// remote's abuse protection.
type CredentialRequest struct {
	ID        int64     `json:"id"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Pending reports whether the request is still awaiting a decision.
func (r *CredentialRequest) Pending() bool {
	return r != nil && r.Status == "PENDING"
}

// Accepted reports whether the request was granted.
func (r *CredentialRequest) Accepted() bool {
	return r != nil && r.Status == "ACCEPTED"
}

// RequestCredentialPasswordIP opens a password-IP credential request for
// the configured API key.
func (c *Client) RequestCredentialPasswordIP(ctx context.Context) (*CredentialRequest, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(sessionRequest{Secret: c.config.API.Key})
	if err != nil {
		return nil, err
	}

	var res CredentialRequest
	if err := c.call(ctx, callOptions{
		method:  http.MethodPost,
		path:    pathCredentialRequest,
		limited: true,
	}, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CredentialPasswordIPStatus polls a previously opened credential request.
func (c *Client) CredentialPasswordIPStatus(ctx context.Context, id int64) (*CredentialRequest, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	var res CredentialRequest
	if err := c.call(ctx, callOptions{
		method:   http.MethodGet,
		path:     pathCredentialRequest + "/" + strconv.FormatInt(id, 10),
		limited:  true,
		limitKey: pathCredentialRequest,
	}, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
