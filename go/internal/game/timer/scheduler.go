package timer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizhall/go/internal/kvstore"
	"github.com/rs/zerolog/log"
)

// Expirer runs a TIMER_EXPIRED trigger for a claimed record.
type Expirer interface {
	HandleTimerExpired(ctx context.Context, rec Record) error
}

// Pauser pauses a session whose countdown was running before a restart.
type Pauser interface {
	PauseForRecovery(ctx context.Context, sessionID string) error
}

type Config struct {
	Workers      int
	PollInterval time.Duration
}

func DefaultConfig() Config {
	return Config{Workers: 8, PollInterval: time.Second}
}

type armed struct {
	timer clockwork.Timer
	stop  chan struct{}
}

// Scheduler persists timer directives and reaps expired countdowns.
//
// Every process runs a reaper. Records are claimed with a compare-and-delete
// on the exact stored bytes, so one expiry fires on exactly one process and a
// record rewritten after it was read is never claimed.
type Scheduler struct {
	kv         kvstore.Store
	clock      clockwork.Clock
	cfg        Config
	instanceID string

	expirerMu sync.RWMutex
	expirer   Expirer

	wakeCh chan struct{}
	workCh chan Record

	// local wake-ups for deadlines written by this process
	activeTimers   map[string]armed
	activeTimersMu sync.Mutex
}

func NewScheduler(kv kvstore.Store, clock clockwork.Clock, cfg Config) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	return &Scheduler{
		kv:           kv,
		clock:        clock,
		cfg:          cfg,
		instanceID:   uuid.New().String()[:8],
		wakeCh:       make(chan struct{}, 1),
		workCh:       make(chan Record, cfg.Workers*2),
		activeTimers: make(map[string]armed),
	}
}

// SetExpirer wires the component that handles expiries.
func (s *Scheduler) SetExpirer(e Expirer) {
	s.expirerMu.Lock()
	defer s.expirerMu.Unlock()
	s.expirer = e
}

func (s *Scheduler) getExpirer() Expirer {
	s.expirerMu.RLock()
	defer s.expirerMu.RUnlock()
	return s.expirer
}

// Apply writes directives in order and arms local wake-ups for running
// countdowns.
func (s *Scheduler) Apply(ctx context.Context, dirs []Directive) error {
	if len(dirs) == 0 {
		return nil
	}
	ops := make([]kvstore.Op, 0, len(dirs))
	for _, d := range dirs {
		switch d.Op {
		case OpSet:
			if d.Record == nil {
				return fmt.Errorf("timer directive for %s has no record", d.Key)
			}
			raw, err := json.Marshal(d.Record)
			if err != nil {
				return fmt.Errorf("failed to encode timer %s: %w", d.Key, err)
			}
			ops = append(ops, kvstore.Op{Key: d.Key, Value: raw, TTL: d.TTL})
		case OpDelete:
			ops = append(ops, kvstore.Op{Key: d.Key, Delete: true})
		default:
			return fmt.Errorf("unknown timer op %q", d.Op)
		}
	}
	if err := s.kv.Apply(ctx, ops); err != nil {
		return fmt.Errorf("failed to apply timer directives: %w", err)
	}

	for _, d := range dirs {
		sessionID, suffix, ok := ParseKey(d.Key)
		if !ok || suffix != "" {
			continue
		}
		if d.Op == OpSet && d.Record.Deadline != nil {
			s.arm(sessionID, *d.Record.Deadline)
		} else {
			s.cancelTimer(sessionID)
		}
	}
	return nil
}

// Clear removes every timer key of a session.
func (s *Scheduler) Clear(ctx context.Context, sessionID string) error {
	s.cancelTimer(sessionID)
	return s.Apply(ctx, []Directive{Delete(sessionID, ""), Delete(sessionID, SuffixShowing)})
}

// Load returns the record stored under (sessionID, suffix).
func (s *Scheduler) Load(ctx context.Context, sessionID, suffix string) (*Record, error) {
	raw, err := s.kv.Get(ctx, Key(sessionID, suffix))
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode timer %s: %w", Key(sessionID, suffix), err)
	}
	return &rec, nil
}

// Running lists active records whose countdown is running.
func (s *Scheduler) Running(ctx context.Context) ([]Record, error) {
	keys, err := s.kv.Keys(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list timers: %w", err)
	}
	var out []Record
	for _, key := range keys {
		sessionID, suffix, ok := ParseKey(key)
		if !ok || suffix != "" {
			continue
		}
		rec, err := s.Load(ctx, sessionID, "")
		if errors.Is(err, kvstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if rec.Deadline != nil {
			out = append(out, *rec)
		}
	}
	return out, nil
}

// Recover pauses every session that had a running countdown. It is called
// once at startup, before the reaper runs.
func (s *Scheduler) Recover(ctx context.Context, p Pauser) (int, error) {
	recs, err := s.Running(ctx)
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, rec := range recs {
		if err := p.PauseForRecovery(ctx, rec.SessionID); err != nil {
			log.Error().Err(err).Str("session_id", rec.SessionID).Msg("failed to recover session timer")
			continue
		}
		recovered++
	}
	log.Info().Int("recovered", recovered).Int("found", len(recs)).Msg("timer recovery finished")
	return recovered, nil
}

// claimDue claims every expired active record and returns the nearest
// future deadline, zero if none.
func (s *Scheduler) claimDue(ctx context.Context) ([]Record, time.Time, error) {
	keys, err := s.kv.Keys(ctx, keyPrefix)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to list timers: %w", err)
	}
	now := s.clock.Now()
	var (
		claimed []Record
		next    time.Time
	)
	for _, key := range keys {
		sessionID, suffix, ok := ParseKey(key)
		if !ok || suffix != "" {
			continue
		}
		raw, err := s.kv.Get(ctx, key)
		if errors.Is(err, kvstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return claimed, next, fmt.Errorf("failed to read timer %s: %w", key, err)
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("dropping undecodable timer record")
			_ = s.kv.Delete(ctx, key)
			continue
		}
		if rec.Deadline == nil {
			continue
		}
		if rec.Deadline.After(now) {
			if next.IsZero() || rec.Deadline.Before(next) {
				next = *rec.Deadline
			}
			continue
		}
		ok, err = s.kv.CompareAndDelete(ctx, key, raw)
		if err != nil {
			return claimed, next, fmt.Errorf("failed to claim timer %s: %w", key, err)
		}
		if !ok {
			log.Debug().Str("session_id", sessionID).Str("instance", s.instanceID).Msg("timer claimed elsewhere")
			continue
		}
		s.cancelTimer(sessionID)
		claimed = append(claimed, rec)
	}
	return claimed, next, nil
}

// Run reaps expired timers until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().Str("instance", s.instanceID).Int("workers", s.cfg.Workers).Msg("timer reaper started")

	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go s.worker(workerCtx, &wg, i)
	}

	defer func() {
		log.Info().Str("instance", s.instanceID).Msg("shutting down timer workers")
		cancelWorkers()
		wg.Wait()

		s.activeTimersMu.Lock()
		for id, a := range s.activeTimers {
			close(a.stop)
			stopAndDrainTimer(a.timer)
			delete(s.activeTimers, id)
		}
		s.activeTimersMu.Unlock()
	}()

	timer := s.clock.NewTimer(s.cfg.PollInterval)
	defer timer.Stop()

	for {
		claimed, next, err := s.claimDue(ctx)
		if err != nil {
			log.Error().Err(err).Str("instance", s.instanceID).Msg("timer sweep failed")
		}
		for _, rec := range claimed {
			select {
			case s.workCh <- rec:
				log.Debug().Str("session_id", rec.SessionID).Str("instance", s.instanceID).Msg("queued timer expiry for worker")
			case <-ctx.Done():
				return nil
			}
		}

		wait := s.cfg.PollInterval
		if !next.IsZero() {
			if until := next.Sub(s.clock.Now()); until < wait {
				wait = max(until, 0)
			}
		}
		stopAndDrainTimer(timer)
		timer.Reset(wait)
		select {
		case <-timer.Chan():
		case <-s.wakeCh:
			stopAndDrainTimer(timer)
		case <-ctx.Done():
			log.Info().Str("instance", s.instanceID).Msg("timer reaper shutdown requested")
			return nil
		}
	}
}

func (s *Scheduler) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-s.workCh:
			expirer := s.getExpirer()
			if expirer == nil {
				log.Warn().Str("session_id", rec.SessionID).Msg("timer expired with no handler wired")
				continue
			}
			if err := expirer.HandleTimerExpired(ctx, rec); err != nil {
				log.Error().
					Err(err).
					Str("session_id", rec.SessionID).
					Str("instance", s.instanceID).
					Int("worker_id", workerID).
					Msg("timer expiry handling failed")
			}
		}
	}
}

func (s *Scheduler) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// arm replaces the local wake-up for a session.
func (s *Scheduler) arm(sessionID string, deadline time.Time) {
	d := deadline.Sub(s.clock.Now())
	if d <= 0 {
		s.cancelTimer(sessionID)
		s.wake()
		return
	}
	a := armed{timer: s.clock.NewTimer(d), stop: make(chan struct{})}
	s.replaceTimer(sessionID, a)

	go func(id string, a armed) {
		select {
		case <-a.timer.Chan():
			s.removeTimer(id, a)
			s.wake()
		case <-a.stop:
		}
	}(sessionID, a)
}

func (s *Scheduler) replaceTimer(sessionID string, a armed) {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()
	if existing, ok := s.activeTimers[sessionID]; ok {
		close(existing.stop)
		stopAndDrainTimer(existing.timer)
	}
	s.activeTimers[sessionID] = a
}

func (s *Scheduler) cancelTimer(sessionID string) {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()
	if existing, ok := s.activeTimers[sessionID]; ok {
		close(existing.stop)
		stopAndDrainTimer(existing.timer)
		delete(s.activeTimers, sessionID)
	}
}

// removeTimer forgets a wake-up that fired, unless it was already replaced.
func (s *Scheduler) removeTimer(sessionID string, a armed) {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()
	if existing, ok := s.activeTimers[sessionID]; ok && existing.stop == a.stop {
		delete(s.activeTimers, sessionID)
	}
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
