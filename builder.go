package finauth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/finauthio/finauth/internal/limits"
	"github.com/finauthio/finauth/keys"
	"github.com/finauthio/finauth/session"
	"github.com/finauthio/finauth/storage"
)

// Builder assembles a [Client]. Construction is allocation-only; no storage
// or network I/O happens until the first Client method runs.
type Builder struct {
	config    Config
	store     storage.Interface
	transport Transport
	logger    Logger
	auditSink AuditSink

	built bool
}

// New starts a Builder with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithAPIKey sets the API key without replacing the rest of the config.
func (b *Builder) WithAPIKey(key string) *Builder {
	b.config.API.Key = key
	return b
}

// WithBaseURL sets the remote base URL without replacing the rest of the
// config.
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.API.BaseURL = baseURL
	return b
}

// WithStorage sets the persistence backend. Defaults to an in-process
// [storage.MemoryStore], which does not survive restarts; production
// clients want [storage.RedisStore] or an equivalent.
func (b *Builder) WithStorage(store storage.Interface) *Builder {
	b.store = store
	return b
}

// WithTransport replaces the default net/http transport.
func (b *Builder) WithTransport(t Transport) *Builder {
	b.transport = t
	return b
}

// WithLogger sets the logging sink. Defaults to [NoOpLogger].
func (b *Builder) WithLogger(logger Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit sink used when auditing is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// identityKey derives the stable storage identity from the API key. The key
// itself never appears in storage key names.
func identityKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:8])
}

// Build validates the configuration and assembles the Client.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("finauth: builder already used")
	}
	if err := b.config.validate(); err != nil {
		return nil, err
	}

	store := b.store
	if store == nil {
		store = storage.NewMemoryStore()
	}
	transport := b.transport
	if transport == nil {
		transport = NewHTTPTransport(b.config.API.BaseURL, nil)
	}
	logger := b.logger
	if logger == nil {
		logger = NoOpLogger{}
	}

	identity := identityKey(b.config.API.Key)
	keyManager, err := keys.NewManager(store, identity+"/private-key", b.config.Keys.Bits)
	if err != nil {
		return nil, err
	}

	c := &Client{
		config:    b.config,
		transport: transport,
		limiter: limits.New(limits.Config{
			MaxConcurrent: b.config.Limiter.MaxConcurrent,
			MaxPerWindow:  b.config.Limiter.MaxPerWindow,
			Window:        b.config.Limiter.Window,
		}),
		keys:    keyManager,
		store:   session.NewStore(store, identity+"/state"),
		logger:  logger,
		audit:   newAuditDispatcher(b.config.Audit, b.auditSink),
		metrics: newMetrics(b.config.Metrics),
	}
	c.selfRenew.Store(b.config.Session.SelfRenew)
	c.scheduler = newRenewalScheduler(c.selfRenew.Load, c.handleExpiry)

	b.built = true
	return c, nil
}
