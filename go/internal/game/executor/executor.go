// Package executor serializes every mutation of a session across all
// processes that serve it.
//
// Each session has a shared TTL lock and, per process, an in-memory FIFO
// queue. A single drainer goroutine per session takes callbacks off the
// queue in arrival order and runs each one under the lock.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrCallbackPanic wraps a panic recovered from a callback.
var ErrCallbackPanic = errors.New("action callback panicked")

type Config struct {
	// LockTTL must exceed the slowest callback. A crashed holder's lock
	// frees itself after this long.
	LockTTL time.Duration
	// PollInterval is how often a contended lock is retried.
	PollInterval time.Duration
}

func DefaultConfig() Config {
	return Config{LockTTL: 10 * time.Second, PollInterval: 20 * time.Millisecond}
}

// Action is the work run while a session is held.
type Action func(ctx context.Context) error

type job struct {
	ctx  context.Context
	fn   Action
	done chan error
}

type Executor struct {
	locker     Locker
	clock      clockwork.Clock
	cfg        Config
	instanceID string

	mu     sync.Mutex
	queues map[string][]*job
}

func New(locker Locker, clock clockwork.Clock, cfg Config) *Executor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultConfig().LockTTL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	return &Executor{
		locker:     locker,
		clock:      clock,
		cfg:        cfg,
		instanceID: uuid.New().String()[:8],
		queues:     make(map[string][]*job),
	}
}

// Submit runs fn with exclusive access to the session and returns its
// error. Callbacks for one session run one at a time, in submission order.
// An empty sessionID has no affinity and runs fn directly.
//
// A queued callback is not cancelled with ctx; it runs once its turn comes.
func (e *Executor) Submit(ctx context.Context, sessionID string, fn Action) error {
	if sessionID == "" {
		return e.run(ctx, fn)
	}
	j := &job{ctx: ctx, fn: fn, done: make(chan error, 1)}

	e.mu.Lock()
	pending, draining := e.queues[sessionID]
	e.queues[sessionID] = append(pending, j)
	e.mu.Unlock()

	if !draining {
		go e.drain(sessionID)
	}
	return <-j.done
}

// Pending returns how many callbacks wait behind the running one.
func (e *Executor) Pending(sessionID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.queues[sessionID])
	if n > 0 {
		n--
	}
	return n
}

// drain runs queued callbacks until the session's queue is empty. The head
// job stays queued while it runs so Submit knows a drainer exists.
func (e *Executor) drain(sessionID string) {
	for {
		e.mu.Lock()
		jobs := e.queues[sessionID]
		if len(jobs) == 0 {
			delete(e.queues, sessionID)
			e.mu.Unlock()
			return
		}
		j := jobs[0]
		e.mu.Unlock()

		j.done <- e.execute(sessionID, j)

		e.mu.Lock()
		e.queues[sessionID] = e.queues[sessionID][1:]
		e.mu.Unlock()
	}
}

func (e *Executor) execute(sessionID string, j *job) error {
	key := LockKey(sessionID)
	token := uuid.NewString()
	ctx := context.WithoutCancel(j.ctx)

	if err := e.acquire(ctx, key, token); err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.LockTTL)
	err := e.run(runCtx, j.fn)
	cancel()

	if relErr := e.locker.Release(ctx, key, token); relErr != nil {
		log.Error().Err(relErr).Str("session_id", sessionID).Str("instance", e.instanceID).Msg("failed to release session lock")
	}
	return err
}

func (e *Executor) acquire(ctx context.Context, key, token string) error {
	for attempt := 0; ; attempt++ {
		ok, err := e.locker.Acquire(ctx, key, token, e.cfg.LockTTL)
		if err != nil {
			return err
		}
		if ok {
			if attempt > 0 {
				log.Debug().Str("key", key).Int("attempts", attempt+1).Str("instance", e.instanceID).Msg("acquired contended lock")
			}
			return nil
		}
		<-e.clock.After(e.cfg.PollInterval)
	}
}

func (e *Executor) run(ctx context.Context, fn Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("instance", e.instanceID).Msg("recovered panic in action callback")
			err = fmt.Errorf("%w: %v", ErrCallbackPanic, r)
		}
	}()
	return fn(ctx)
}
