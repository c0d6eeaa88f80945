// Package principal decodes the authenticated-identity payload returned by
// the session endpoint into an explicit tagged union.
//
// The remote expresses the variant by which single key is present in the
// payload object: "company", "person", "light_user", or "api_key". The
// api_key variant represents an OAuth grant and nests two further
// principals, the requesting identity and the granting identity.
//
// # What this package must NOT do
//
//   - Guess. A payload matching none of the four shapes is
//     [ErrUnsupportedType], never a partial decode.
package principal

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnsupportedType reports a principal payload matching none of the four
// recognized shapes. It indicates a remote contract change and is fatal.
var ErrUnsupportedType = errors.New("principal: unsupported principal type")

// Kind tags the decoded principal variant.
type Kind uint8

const (
	// KindCompany is a company registered with the remote API.
	KindCompany Kind = iota
	// KindPerson is a natural person.
	KindPerson
	// KindLightUser is a restricted-capability person account.
	KindLightUser
	// KindOAuthAPIKey is an OAuth grant acting on behalf of another
	// principal.
	KindOAuthAPIKey
)

// String implements fmt.Stringer for log and audit output.
func (k Kind) String() string {
	switch k {
	case KindCompany:
		return "company"
	case KindPerson:
		return "person"
	case KindLightUser:
		return "light_user"
	case KindOAuthAPIKey:
		return "api_key"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Principal is the decoded identity behind an API key.
//
// SessionTimeout is in seconds, taken from the principal's own info for
// non-OAuth variants and from the requested-by principal for OAuth grants.
// RequestedBy and GrantedBy are populated only for [KindOAuthAPIKey].
type Principal struct {
	Kind           Kind
	ID             int64
	DisplayName    string
	SessionTimeout int64

	RequestedBy *Principal
	GrantedBy   *Principal
}

// IsOAuth reports whether the principal is an OAuth grant.
func (p *Principal) IsOAuth() bool {
	return p != nil && p.Kind == KindOAuthAPIKey
}

type userInfo struct {
	ID             int64  `json:"id"`
	DisplayName    string `json:"display_name"`
	SessionTimeout int64  `json:"session_timeout"`
}

type apiKeyInfo struct {
	ID          int64           `json:"id"`
	RequestedBy json.RawMessage `json:"requested_by_user"`
	GrantedBy   json.RawMessage `json:"granted_by_user"`
}

type oneOf struct {
	Company   *userInfo   `json:"company"`
	Person    *userInfo   `json:"person"`
	LightUser *userInfo   `json:"light_user"`
	APIKey    *apiKeyInfo `json:"api_key"`
}

// Decode classifies raw into exactly one Principal variant.
func Decode(raw json.RawMessage) (*Principal, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrUnsupportedType)
	}

	var shape oneOf
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, err)
	}

	switch {
	case shape.Company != nil:
		return fromUserInfo(KindCompany, shape.Company), nil
	case shape.Person != nil:
		return fromUserInfo(KindPerson, shape.Person), nil
	case shape.LightUser != nil:
		return fromUserInfo(KindLightUser, shape.LightUser), nil
	case shape.APIKey != nil:
		return decodeOAuth(shape.APIKey)
	default:
		return nil, ErrUnsupportedType
	}
}

func fromUserInfo(kind Kind, info *userInfo) *Principal {
	return &Principal{
		Kind:           kind,
		ID:             info.ID,
		DisplayName:    info.DisplayName,
		SessionTimeout: info.SessionTimeout,
	}
}

func decodeOAuth(info *apiKeyInfo) (*Principal, error) {
	requestedBy, err := Decode(info.RequestedBy)
	if err != nil {
		return nil, fmt.Errorf("requested-by: %w", err)
	}
	grantedBy, err := Decode(info.GrantedBy)
	if err != nil {
		return nil, fmt.Errorf("granted-by: %w", err)
	}

	// The remote omits the granted-by id on some grant types; the outer
	// api_key id stands in for it.
	if grantedBy.ID == 0 {
		grantedBy.ID = info.ID
	}

	return &Principal{
		Kind:           KindOAuthAPIKey,
		ID:             info.ID,
		DisplayName:    requestedBy.DisplayName,
		SessionTimeout: requestedBy.SessionTimeout,
		RequestedBy:    requestedBy,
		GrantedBy:      grantedBy,
	}, nil
}
