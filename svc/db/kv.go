// Package db provides the key-value backends pastes persist to. The store
// core only ever talks to the KV interface; which backend serves it is a
// deployment decision.
package db

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrKeyNotFound is returned by Get when a key is absent or its native TTL
// has elapsed.
var ErrKeyNotFound = errors.New("kv: key not found")

// KV is the persistence contract for paste payloads. A ttl of zero or less
// on Set means no backend-side expiry; the sweep is then the sole
// reclamation mechanism.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Keys returns all live keys. Used to rebuild the store index on
	// startup against durable backends.
	Keys(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// Purger is implemented by backends that can reclaim expired rows in bulk.
// The sweep calls it opportunistically after its own pass.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}
