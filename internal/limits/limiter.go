package limits

import (
	"context"
	"sync"
	"time"
)

// Config holds limiter tuning parameters. Both caps apply per
// (path, method) key.
type Config struct {
	MaxConcurrent int
	MaxPerWindow  int
	Window        time.Duration
}

// Limiter schedules calls per (path, method) key under a concurrency cap
// and a fixed-rate window.
type Limiter struct {
	config Config

	mu   sync.Mutex
	keys map[string]*keyLimiter
}

type keyLimiter struct {
	// Blocked senders on a full channel are released in FIFO order by the
	// runtime, which is the queuing discipline callers are promised.
	slots chan struct{}

	mu          sync.Mutex
	windowStart time.Time
	count       int
}

// New creates a Limiter. Non-positive values fall back to a cap of one call
// and a one-second window.
func New(cfg Config) *Limiter {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxPerWindow <= 0 {
		cfg.MaxPerWindow = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	return &Limiter{
		config: cfg,
		keys:   make(map[string]*keyLimiter),
	}
}

func (l *Limiter) forKey(path, method string) *keyLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := method + " " + path
	kl, ok := l.keys[key]
	if !ok {
		kl = &keyLimiter{
			slots: make(chan struct{}, l.config.MaxConcurrent),
		}
		l.keys[key] = kl
	}
	return kl
}

// Do runs fn for the given endpoint once capacity allows. The error returned
// by fn passes through unchanged; the only error Do introduces itself is
// ctx's, when the caller gives up while queued.
func (l *Limiter) Do(ctx context.Context, path, method string, fn func() error) error {
	kl := l.forKey(path, method)

	select {
	case kl.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-kl.slots }()

	if err := kl.waitRate(ctx, l.config.MaxPerWindow, l.config.Window); err != nil {
		return err
	}
	return fn()
}

func (kl *keyLimiter) waitRate(ctx context.Context, maxPerWindow int, window time.Duration) error {
	for {
		kl.mu.Lock()
		now := time.Now()
		if kl.windowStart.IsZero() || now.Sub(kl.windowStart) >= window {
			kl.windowStart = now
			kl.count = 0
		}
		if kl.count < maxPerWindow {
			kl.count++
			kl.mu.Unlock()
			return nil
		}
		sleep := window - now.Sub(kl.windowStart)
		kl.mu.Unlock()

		timer := time.NewTimer(sleep)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
