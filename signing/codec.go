// Package signing implements the request/response signature scheme of the
// remote API: a SHA-256 digest of the literal transmitted bytes, signed with
// RSA PKCS #1 v1.5, carried base64-encoded in a header.
//
// Signatures are computed over the exact byte sequence on the wire, never a
// re-serialized logical form. The remote verifies byte-for-byte and so does
// the codec.
package signing

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrVerificationFailed reports a response whose signature does not match
// the server public key learned at installation. This is fatal and never a
// retry signal: either the response was tampered with or the installation
// state is wrong.
var ErrVerificationFailed = errors.New("signing: response signature verification failed")

// Codec signs outgoing bodies with the client private key and verifies
// response bodies against a server public key.
type Codec struct {
	private *rsa.PrivateKey
}

// NewCodec creates a Codec over the client private key.
func NewCodec(private *rsa.PrivateKey) (*Codec, error) {
	if private == nil {
		return nil, errors.New("signing: nil private key")
	}
	return &Codec{private: private}, nil
}

// Sign returns the base64 signature over body.
func (c *Codec) Sign(body []byte) (string, error) {
	digest := sha256.Sum256(body)
	sig, err := rsa.SignPKCS1v15(rand.Reader, c.private, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("signing: sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify checks the base64 signature over body against serverPublic.
// Any mismatch, including an undecodable signature, is reported as
// [ErrVerificationFailed].
func Verify(body []byte, signature string, serverPublic *rsa.PublicKey) error {
	if serverPublic == nil {
		return errors.New("signing: nil server public key")
	}
	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: signature not base64", ErrVerificationFailed)
	}
	digest := sha256.Sum256(body)
	if err := rsa.VerifyPKCS1v15(serverPublic, crypto.SHA256, digest[:], raw); err != nil {
		return ErrVerificationFailed
	}
	return nil
}
