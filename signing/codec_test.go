package signing

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key failed: %v", err)
	}
	return key
}

func TestSignVerifyRoundTrip(t *testing.T) {
	key := testKey(t)
	codec, err := NewCodec(key)
	if err != nil {
		t.Fatalf("new codec failed: %v", err)
	}

	body := []byte(`{"secret":"api-key-value"}`)
	sig, err := codec.Sign(body)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	if err := Verify(body, sig, &key.PublicKey); err != nil {
		t.Fatalf("verify failed on untampered payload: %v", err)
	}
}

func TestVerifyRejectsMutatedPayload(t *testing.T) {
	key := testKey(t)
	codec, _ := NewCodec(key)

	body := []byte(`{"secret":"api-key-value"}`)
	sig, err := codec.Sign(body)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	mutated := append([]byte{}, body...)
	mutated[2] ^= 0x01

	if err := Verify(mutated, sig, &key.PublicKey); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
}

func TestVerifyRejectsMismatchedKey(t *testing.T) {
	key := testKey(t)
	other := testKey(t)
	codec, _ := NewCodec(key)

	body := []byte("payload")
	sig, err := codec.Sign(body)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	if err := Verify(body, sig, &other.PublicKey); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
}

func TestVerifyRejectsGarbageSignature(t *testing.T) {
	key := testKey(t)

	if err := Verify([]byte("payload"), "not-base64!!", &key.PublicKey); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
}
