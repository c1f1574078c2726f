package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/mcdev12/quizhall/go/internal/kvstore"
	"github.com/rs/zerolog/log"
)

const lockPrefix = "lock."

// Locker is a shared acquire-with-TTL lock. A holder is identified by its
// token so a late release never frees a lock someone else took over.
type Locker interface {
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, token string) error
}

// LockKey returns the lock key guarding a session.
func LockKey(sessionID string) string {
	return lockPrefix + sessionID
}

// StoreLocker keeps locks in the shared keyed store.
type StoreLocker struct {
	kv kvstore.Store
}

func NewStoreLocker(kv kvstore.Store) *StoreLocker {
	return &StoreLocker{kv: kv}
}

func (l *StoreLocker) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := l.kv.SetNX(ctx, key, []byte(token), ttl)
	if err != nil {
		return false, fmt.Errorf("failed to acquire %s: %w", key, err)
	}
	return ok, nil
}

func (l *StoreLocker) Release(ctx context.Context, key, token string) error {
	ok, err := l.kv.CompareAndDelete(ctx, key, []byte(token))
	if err != nil {
		return fmt.Errorf("failed to release %s: %w", key, err)
	}
	if !ok {
		log.Warn().Str("key", key).Msg("lock expired before release")
	}
	return nil
}
