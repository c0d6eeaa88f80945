package principal

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeCompany(t *testing.T) {
	raw := json.RawMessage(`{"company":{"id":7,"display_name":"Acme B.V.","session_timeout":600}}`)

	p, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if p.Kind != KindCompany {
		t.Fatalf("expected company, got %s", p.Kind)
	}
	if p.ID != 7 || p.DisplayName != "Acme B.V." || p.SessionTimeout != 600 {
		t.Fatalf("unexpected fields: %+v", p)
	}
	if p.IsOAuth() {
		t.Fatal("company classified as OAuth")
	}
}

func TestDecodePersonAndLightUser(t *testing.T) {
	cases := []struct {
		raw  string
		kind Kind
	}{
		{`{"person":{"id":1,"display_name":"J. Doe","session_timeout":300}}`, KindPerson},
		{`{"light_user":{"id":2,"display_name":"L. User","session_timeout":60}}`, KindLightUser},
	}
	for _, tc := range cases {
		p, err := Decode(json.RawMessage(tc.raw))
		if err != nil {
			t.Fatalf("decode %s failed: %v", tc.kind, err)
		}
		if p.Kind != tc.kind {
			t.Fatalf("expected %s, got %s", tc.kind, p.Kind)
		}
	}
}

func TestDecodeOAuthResolvesNestedPrincipals(t *testing.T) {
	raw := json.RawMessage(`{
		"api_key": {
			"id": 99,
			"requested_by_user": {"person": {"id": 10, "display_name": "Requester", "session_timeout": 120}},
			"granted_by_user": {"company": {"id": 20, "display_name": "Grantor", "session_timeout": 900}}
		}
	}`)

	p, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !p.IsOAuth() {
		t.Fatalf("expected OAuth principal, got %s", p.Kind)
	}
	if p.SessionTimeout != 120 {
		t.Fatalf("session timeout must come from requested-by, got %d", p.SessionTimeout)
	}
	if p.RequestedBy == nil || p.RequestedBy.Kind != KindPerson || p.RequestedBy.ID != 10 {
		t.Fatalf("unexpected requested-by: %+v", p.RequestedBy)
	}
	if p.GrantedBy == nil || p.GrantedBy.Kind != KindCompany || p.GrantedBy.ID != 20 {
		t.Fatalf("unexpected granted-by: %+v", p.GrantedBy)
	}
}

func TestDecodeOAuthSynthesizesGrantedByID(t *testing.T) {
	raw := json.RawMessage(`{
		"api_key": {
			"id": 314,
			"requested_by_user": {"person": {"id": 10, "session_timeout": 120}},
			"granted_by_user": {"company": {"display_name": "No ID"}}
		}
	}`)

	p, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if p.GrantedBy.ID != 314 {
		t.Fatalf("expected granted-by id synthesized from outer id 314, got %d", p.GrantedBy.ID)
	}
}

func TestDecodeUnsupportedShape(t *testing.T) {
	for _, raw := range []string{
		`{"robot":{"id":1}}`,
		`{}`,
		``,
		`[1,2,3]`,
	} {
		if _, err := Decode(json.RawMessage(raw)); !errors.Is(err, ErrUnsupportedType) {
			t.Fatalf("payload %q: expected ErrUnsupportedType, got %v", raw, err)
		}
	}
}

func TestDecodeOAuthWithBrokenNestedShape(t *testing.T) {
	raw := json.RawMessage(`{
		"api_key": {
			"id": 1,
			"requested_by_user": {"droid": {"id": 2}},
			"granted_by_user": {"person": {"id": 3}}
		}
	}`)
	if _, err := Decode(raw); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType for broken nested shape, got %v", err)
	}
}
