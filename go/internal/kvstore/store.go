// Package kvstore is the shared low-latency keyed store behind sessions,
// timers and executor locks.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is missing or expired.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is a keyed byte store with per-key expiry.
//
// Keys are dot separated ("session.<id>", "timer.<id>.showing") so that a
// prefix scan maps onto NATS subject wildcards.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes a value. A zero ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX writes only if the key is absent or expired.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	// CompareAndDelete removes the key only if it still holds expected.
	CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
	Apply(ctx context.Context, ops []Op) error
}

// Op is one write in a batch.
type Op struct {
	Delete bool
	Key    string
	Value  []byte
	TTL    time.Duration
}

// Sweeper is implemented by stores that must purge expired keys themselves.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

func applyOps(ctx context.Context, s Store, ops []Op) error {
	for _, op := range ops {
		var err error
		if op.Delete {
			err = s.Delete(ctx, op.Key)
		} else {
			err = s.Set(ctx, op.Key, op.Value, op.TTL)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
