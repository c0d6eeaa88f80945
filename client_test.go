package finauth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/finauthio/finauth/keys"
	"github.com/finauthio/finauth/storage"
)

// testRemoteKey is generated once; RSA keygen is too slow to repeat per
// test.
var (
	testRemoteKeyOnce sync.Once
	testRemoteKey     *rsa.PrivateKey
	testRemoteKeyErr  error
)

func remoteKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testRemoteKeyOnce.Do(func() {
		testRemoteKey, testRemoteKeyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	if testRemoteKeyErr != nil {
		t.Fatalf("generate remote key failed: %v", testRemoteKeyErr)
	}
	return testRemoteKey
}

func remotePublicPEM(t *testing.T) string {
	t.Helper()
	encoded, err := keys.EncodePublicPEM(&remoteKey(t).PublicKey)
	if err != nil {
		t.Fatalf("encode remote public key failed: %v", err)
	}
	return encoded
}

// signedResponse builds a 2xx response whose body is signed by the remote
// key, the way the live API signs everything after installation.
func signedResponse(t *testing.T, status int, body []byte) *Response {
	t.Helper()
	digest := sha256.Sum256(body)
	sig, err := rsa.SignPKCS1v15(rand.Reader, remoteKey(t), crypto.SHA256, digest[:])
	if err != nil {
		t.Fatalf("sign response failed: %v", err)
	}
	headers := http.Header{}
	headers.Set(headerServerSignature, base64.StdEncoding.EncodeToString(sig))
	return &Response{
		StatusCode: status,
		Headers:    headers,
		Body:       body,
	}
}

func plainResponse(status int, body []byte) *Response {
	return &Response{
		StatusCode: status,
		Headers:    http.Header{},
		Body:       body,
	}
}

// fakeTransport records every request and routes it through a handler. An
// optional gate blocks session-server round trips until released, which is
// how the single-flight tests hold a renewal in flight.
type fakeTransport struct {
	mu      sync.Mutex
	calls   []*Request
	handler func(req *Request) (*Response, error)
	gate    chan struct{}
}

func (f *fakeTransport) RoundTrip(_ context.Context, req *Request) (*Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil && req.Path == pathSessionServer && req.Method == http.MethodPost {
		<-gate
	}
	return f.handler(req)
}

func (f *fakeTransport) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.calls {
		if call.Method == method && strings.HasPrefix(call.Path, path) {
			n++
		}
	}
	return n
}

func (f *fakeTransport) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func installBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(installResponse{
		ID:              1,
		Token:           tokenBody{ID: 2, Token: "install-token"},
		ServerPublicKey: remotePublicPEM(t),
		Created:         time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("marshal install body failed: %v", err)
	}
	return body
}

func sessionBody(t *testing.T, created time.Time, principalJSON string) []byte {
	t.Helper()
	body, err := json.Marshal(sessionResponse{
		ID:        77,
		Token:     tokenBody{ID: 78, Token: "session-token"},
		Created:   created,
		Principal: json.RawMessage(principalJSON),
	})
	if err != nil {
		t.Fatalf("marshal session body failed: %v", err)
	}
	return body
}

const companyPrincipalJSON = `{"company":{"id":5,"display_name":"Acme B.V.","session_timeout":600}}`

// defaultHandler answers the full handshake happy path.
func defaultHandler(t *testing.T) func(req *Request) (*Response, error) {
	t.Helper()
	return func(req *Request) (*Response, error) {
		switch {
		case req.Method == http.MethodPost && req.Path == pathInstallation:
			return plainResponse(200, installBody(t)), nil
		case req.Method == http.MethodPost && req.Path == pathDeviceServer:
			return signedResponse(t, 200, []byte(`{"id":42}`)), nil
		case req.Method == http.MethodPost && req.Path == pathSessionServer:
			return signedResponse(t, 200, sessionBody(t, time.Now().UTC(), companyPrincipalJSON)), nil
		case req.Method == http.MethodGet && req.Path == pathPrincipal:
			return signedResponse(t, 200, []byte(`{"principals":[`+companyPrincipalJSON+`]}`)), nil
		default:
			t.Fatalf("unexpected request %s %s", req.Method, req.Path)
			return nil, nil
		}
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.API.BaseURL = "https://api.test.example"
	cfg.API.Key = "test-api-key"
	// Keep timers out of tests unless a test opts back in.
	cfg.Session.SelfRenew = false
	// Fast limiter so handshake tests never sleep on the rate window.
	cfg.Limiter.MaxPerWindow = 100
	cfg.Limiter.Window = time.Second
	return cfg
}

func newSharedStore() *storage.MemoryStore {
	return storage.NewMemoryStore()
}

func newTestClient(t *testing.T, cfg Config, ft *fakeTransport, store storage.Interface) *Client {
	t.Helper()
	if store == nil {
		store = storage.NewMemoryStore()
	}
	client, err := New().
		WithConfig(cfg).
		WithTransport(ft).
		WithStorage(store).
		Build()
	if err != nil {
		t.Fatalf("build client failed: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

// bootstrapped returns a client that has completed install + device
// registration against the fake remote.
func bootstrapped(t *testing.T, cfg Config, ft *fakeTransport, store storage.Interface) *Client {
	t.Helper()
	client := newTestClient(t, cfg, ft, store)
	ctx := context.Background()
	if _, err := client.EnsureKeyPair(ctx, false); err != nil {
		t.Fatalf("ensure keypair failed: %v", err)
	}
	if err := client.Install(ctx); err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if err := client.RegisterDevice(ctx, "test device", []string{"203.0.113.9"}); err != nil {
		t.Fatalf("register device failed: %v", err)
	}
	return client
}
