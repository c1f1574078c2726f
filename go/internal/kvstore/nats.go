package kvstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// NATSConfig configures the JetStream key-value bucket.
type NATSConfig struct {
	Bucket   string
	Replicas int
	Storage  jetstream.StorageType
}

// DefaultNATSConfig returns the bucket used by the game server.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		Bucket:   "QUIZHALL_STATE",
		Replicas: 1,
		Storage:  jetstream.FileStorage,
	}
}

// envelope carries the per-key expiry; JetStream KV only supports a
// bucket-wide TTL.
type envelope struct {
	Value     []byte     `json:"v"`
	ExpiresAt *time.Time `json:"exp,omitempty"`
}

// NATS is a Store backed by a JetStream key-value bucket. Conditional writes
// use KV revisions, so SetNX and CompareAndDelete are safe across processes.
type NATS struct {
	kv    jetstream.KeyValue
	clock clockwork.Clock
}

// NewNATS creates or updates the bucket and returns a store over it.
func NewNATS(ctx context.Context, js jetstream.JetStream, cfg NATSConfig) (*NATS, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "quizhall sessions, timers and locks",
		History:     1,
		Replicas:    cfg.Replicas,
		Storage:     cfg.Storage,
	})
	if err != nil {
		return nil, fmt.Errorf("create key-value bucket %s: %w", cfg.Bucket, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Msg("key-value bucket ready")
	return &NATS{kv: kv, clock: clockwork.NewRealClock()}, nil
}

func (n *NATS) encode(value []byte, ttl time.Duration) ([]byte, error) {
	env := envelope{Value: value}
	if ttl > 0 {
		exp := n.clock.Now().Add(ttl)
		env.ExpiresAt = &exp
	}
	return json.Marshal(env)
}

func (n *NATS) decode(raw []byte) (envelope, bool, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, false, fmt.Errorf("decode envelope: %w", err)
	}
	live := env.ExpiresAt == nil || n.clock.Now().Before(*env.ExpiresAt)
	return env, live, nil
}

// load returns the raw entry and whether it is still live.
func (n *NATS) load(ctx context.Context, key string) (jetstream.KeyValueEntry, envelope, bool, error) {
	entry, err := n.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, envelope{}, false, nil
		}
		return nil, envelope{}, false, fmt.Errorf("get %s: %w", key, err)
	}
	env, live, err := n.decode(entry.Value())
	if err != nil {
		return nil, envelope{}, false, err
	}
	return entry, env, live, nil
}

func (n *NATS) Get(ctx context.Context, key string) ([]byte, error) {
	_, env, live, err := n.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if !live {
		return nil, ErrNotFound
	}
	return env.Value, nil
}

func (n *NATS) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	raw, err := n.encode(value, ttl)
	if err != nil {
		return err
	}
	if _, err := n.kv.Put(ctx, key, raw); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (n *NATS) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	raw, err := n.encode(value, ttl)
	if err != nil {
		return false, err
	}
	entry, _, live, err := n.load(ctx, key)
	if err != nil {
		return false, err
	}
	if live {
		return false, nil
	}
	if entry == nil {
		if _, err := n.kv.Create(ctx, key, raw); err != nil {
			if errors.Is(err, jetstream.ErrKeyExists) {
				return false, nil
			}
			return false, fmt.Errorf("create %s: %w", key, err)
		}
		return true, nil
	}
	// Expired but still stored: replace it only if nobody else did first.
	if _, err := n.kv.Update(ctx, key, raw, entry.Revision()); err != nil {
		if isWrongRevision(err) {
			return false, nil
		}
		return false, fmt.Errorf("update %s: %w", key, err)
	}
	return true, nil
}

func (n *NATS) Delete(ctx context.Context, key string) error {
	if err := n.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (n *NATS) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	entry, env, live, err := n.load(ctx, key)
	if err != nil {
		return false, err
	}
	if entry == nil || !live || !bytes.Equal(env.Value, expected) {
		return false, nil
	}
	if err := n.kv.Delete(ctx, key, jetstream.LastRevision(entry.Revision())); err != nil {
		if isWrongRevision(err) {
			return false, nil
		}
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	return true, nil
}

// Keys lists stored keys under prefix. Expired keys are included until swept;
// callers read the value anyway.
func (n *NATS) Keys(ctx context.Context, prefix string) ([]string, error) {
	lister, err := n.kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer lister.Stop()

	var keys []string
	for k := range lister.Keys() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func (n *NATS) Apply(ctx context.Context, ops []Op) error {
	return applyOps(ctx, n, ops)
}

// Sweep deletes expired envelopes. Deletes are revision-checked so a key
// rewritten since it was read survives.
func (n *NATS) Sweep(ctx context.Context) (int, error) {
	keys, err := n.Keys(ctx, "")
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, key := range keys {
		entry, _, live, err := n.load(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("sweep: failed to read key")
			continue
		}
		if entry == nil || live {
			continue
		}
		if err := n.kv.Delete(ctx, key, jetstream.LastRevision(entry.Revision())); err != nil {
			if !isWrongRevision(err) {
				log.Warn().Err(err).Str("key", key).Msg("sweep: failed to delete expired key")
			}
			continue
		}
		removed++
	}
	return removed, nil
}

func isWrongRevision(err error) bool {
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}
	return false
}
