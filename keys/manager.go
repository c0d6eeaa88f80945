package keys

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"sync"

	"github.com/finauthio/finauth/storage"
)

// ErrInvalidKey is returned when persisted or remote key material cannot be
// parsed.
var ErrInvalidKey = errors.New("keys: invalid key material")

const minKeyBits = 2048

// KeyPair couples the client private key with its exchange-ready public
// encoding. The PublicPEM field is exactly what the installation endpoint
// receives.
type KeyPair struct {
	Private   *rsa.PrivateKey
	PublicPEM string
}

// Manager generates, persists, and reloads the client keypair.
//
// Manager instances are intended to be configured during initialization and
// then treated as immutable unless documented otherwise.
type Manager struct {
	store      storage.Interface
	storageKey string
	bits       int

	mu      sync.Mutex
	current *KeyPair
}

// NewManager creates a key Manager persisting under storageKey. Bit sizes
// below 2048 are rejected.
func NewManager(store storage.Interface, storageKey string, bits int) (*Manager, error) {
	if store == nil {
		return nil, errors.New("keys: nil storage")
	}
	if storageKey == "" {
		return nil, errors.New("keys: empty storage key")
	}
	if bits < minKeyBits {
		return nil, fmt.Errorf("keys: key size %d below minimum %d", bits, minKeyBits)
	}
	return &Manager{
		store:      store,
		storageKey: storageKey,
		bits:       bits,
	}, nil
}

// EnsureKeyPair returns the client keypair. When force is false a cached or
// persisted key is reused; when force is true a fresh keypair is generated
// and persisted regardless of what exists. Storage errors propagate
// unchanged.
func (m *Manager) EnsureKeyPair(ctx context.Context, force bool) (*KeyPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !force {
		if m.current != nil {
			return m.current, nil
		}
		pair, err := m.load(ctx)
		if err == nil {
			m.current = pair
			return pair, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}

	pair, err := m.generate(ctx)
	if err != nil {
		return nil, err
	}
	m.current = pair
	return pair, nil
}

// LoadKeyPair returns the cached or persisted keypair without ever
// generating one. Returns [storage.ErrNotFound] when none exists.
func (m *Manager) LoadKeyPair(ctx context.Context) (*KeyPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return m.current, nil
	}
	pair, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	m.current = pair
	return pair, nil
}

// Current returns the cached keypair without touching storage, or nil when
// none has been ensured yet.
func (m *Manager) Current() *KeyPair {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manager) load(ctx context.Context) (*KeyPair, error) {
	encoded, err := m.store.Get(ctx, m.storageKey)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode([]byte(encoded))
	if block == nil {
		return nil, fmt.Errorf("%w: persisted private key is not PEM", ErrInvalidKey)
	}
	private, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	publicPEM, err := EncodePublicPEM(&private.PublicKey)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Private: private, PublicPEM: publicPEM}, nil
}

func (m *Manager) generate(ctx context.Context) (*KeyPair, error) {
	private, err := rsa.GenerateKey(rand.Reader, m.bits)
	if err != nil {
		return nil, fmt.Errorf("keys: generate: %w", err)
	}

	encoded := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(private),
	})
	if err := m.store.Set(ctx, m.storageKey, string(encoded)); err != nil {
		return nil, err
	}

	publicPEM, err := EncodePublicPEM(&private.PublicKey)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Private: private, PublicPEM: publicPEM}, nil
}

// EncodePublicPEM renders an RSA public key in the PKIX PEM form the
// installation endpoint expects.
func EncodePublicPEM(public *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(public)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// ParsePublicPEM parses a PKIX PEM public key, such as the server key
// returned by the installation endpoint.
func ParsePublicPEM(encoded string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(encoded))
	if block == nil {
		return nil, fmt.Errorf("%w: not PEM encoded", ErrInvalidKey)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	public, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidKey)
	}
	return public, nil
}
