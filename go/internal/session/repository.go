package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizhall/go/internal/kvstore"
	"github.com/mcdev12/quizhall/go/internal/models"
)

// ErrNotFound is returned when a session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

const (
	sessionPrefix = "session."
	indexPrefix   = "sessionidx."
)

// Key returns the store key of a session document.
func Key(id string) string { return sessionPrefix + id }

func indexKey(id string) string { return indexPrefix + id }

// Summary is the listing index entry of a session.
type Summary struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Private      bool         `json:"private"`
	PackageID    string       `json:"package_id"`
	Phase        models.Phase `json:"phase"`
	Participants int          `json:"participants"`
	CreatedAt    time.Time    `json:"created_at"`
}

// ListFilter narrows ListSessions.
type ListFilter struct {
	TitlePrefix    string
	IncludePrivate bool
	Limit          int
}

// Repository persists sessions as whole documents. The store TTL is
// refreshed on every save, so abandoned sessions expire on their own.
type Repository struct {
	kv    kvstore.Store
	ttl   time.Duration
	clock clockwork.Clock
}

func NewRepository(kv kvstore.Store, ttl time.Duration, clock clockwork.Clock) *Repository {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Repository{kv: kv, ttl: ttl, clock: clock}
}

func (r *Repository) Load(ctx context.Context, id string) (*models.GameSession, error) {
	raw, err := r.kv.Get(ctx, Key(id))
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	var s models.GameSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &s, nil
}

// LoadMany returns the sessions that exist, skipping missing ids.
func (r *Repository) LoadMany(ctx context.Context, ids []string) ([]*models.GameSession, error) {
	out := make([]*models.GameSession, 0, len(ids))
	for _, id := range ids {
		s, err := r.Load(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Save bumps the version, stamps UpdatedAt and writes the document together
// with its index entry.
func (r *Repository) Save(ctx context.Context, s *models.GameSession) error {
	ops, err := r.saveOps(s)
	if err != nil {
		return err
	}
	if err := r.kv.Apply(ctx, ops); err != nil {
		return fmt.Errorf("failed to save session %s: %w", s.ID, err)
	}
	return nil
}

func (r *Repository) SaveMany(ctx context.Context, sessions []*models.GameSession) error {
	var ops []kvstore.Op
	for _, s := range sessions {
		sOps, err := r.saveOps(s)
		if err != nil {
			return err
		}
		ops = append(ops, sOps...)
	}
	if err := r.kv.Apply(ctx, ops); err != nil {
		return fmt.Errorf("failed to save %d sessions: %w", len(sessions), err)
	}
	return nil
}

func (r *Repository) saveOps(s *models.GameSession) ([]kvstore.Op, error) {
	s.Version++
	s.UpdatedAt = r.clock.Now()

	doc, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session %s: %w", s.ID, err)
	}
	idx, err := json.Marshal(summarize(s))
	if err != nil {
		return nil, fmt.Errorf("failed to encode session index %s: %w", s.ID, err)
	}
	return []kvstore.Op{
		{Key: Key(s.ID), Value: doc, TTL: r.ttl},
		{Key: indexKey(s.ID), Value: idx, TTL: r.ttl},
	}, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	err := r.kv.Apply(ctx, []kvstore.Op{
		{Key: Key(id), Delete: true},
		{Key: indexKey(id), Delete: true},
	})
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// IDs returns the ids of every stored session.
func (r *Repository) IDs(ctx context.Context) ([]string, error) {
	keys, err := r.kv.Keys(ctx, sessionPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, sessionPrefix))
	}
	return ids, nil
}

// List reads the index, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Summary, error) {
	keys, err := r.kv.Keys(ctx, indexPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list session index: %w", err)
	}
	var out []Summary
	for _, k := range keys {
		raw, err := r.kv.Get(ctx, k)
		if errors.Is(err, kvstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read session index: %w", err)
		}
		var sum Summary
		if err := json.Unmarshal(raw, &sum); err != nil {
			return nil, fmt.Errorf("failed to decode session index %s: %w", k, err)
		}
		if sum.Private && !filter.IncludePrivate {
			continue
		}
		if filter.TitlePrefix != "" && !strings.HasPrefix(strings.ToLower(sum.Title), strings.ToLower(filter.TitlePrefix)) {
			continue
		}
		out = append(out, sum)
	}
	slices.SortFunc(out, func(a, b Summary) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func summarize(s *models.GameSession) Summary {
	return Summary{
		ID:           s.ID,
		Title:        s.Title,
		Private:      s.Private,
		PackageID:    s.PackageID,
		Phase:        s.Phase,
		Participants: len(s.Participants),
		CreatedAt:    s.CreatedAt,
	}
}
