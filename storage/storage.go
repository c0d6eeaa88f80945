package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value exists for the key.
var ErrNotFound = errors.New("storage: key not found")

// ErrUnavailable is returned when the backing store cannot be reached.
var ErrUnavailable = errors.New("storage: backend unavailable")

// Interface is the storage contract consumed by the finauth client.
//
// Values are opaque strings addressed by stable keys. Implementations must be
// safe for concurrent use; the client persists its state after every
// mutation and reads it back once at startup.
type Interface interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
