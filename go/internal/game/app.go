// Package game is the session service: it validates actions, runs them
// through the router under the per-session executor, persists the result and
// publishes events.
package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizhall/go/internal/events"
	"github.com/mcdev12/quizhall/go/internal/game/departure"
	"github.com/mcdev12/quizhall/go/internal/game/executor"
	"github.com/mcdev12/quizhall/go/internal/game/router"
	"github.com/mcdev12/quizhall/go/internal/game/timer"
	"github.com/mcdev12/quizhall/go/internal/kvstore"
	"github.com/mcdev12/quizhall/go/internal/models"
	"github.com/mcdev12/quizhall/go/internal/quizpack"
	"github.com/mcdev12/quizhall/go/internal/session"
)

// SessionRepository defines what the app layer needs from session storage
type SessionRepository interface {
	Load(ctx context.Context, id string) (*models.GameSession, error)
	LoadMany(ctx context.Context, ids []string) ([]*models.GameSession, error)
	Save(ctx context.Context, s *models.GameSession) error
	Delete(ctx context.Context, id string) error
	IDs(ctx context.Context) ([]string, error)
	List(ctx context.Context, filter session.ListFilter) ([]session.Summary, error)
}

// Timers persists countdowns and recovers them after a restart
type Timers interface {
	Apply(ctx context.Context, dirs []timer.Directive) error
	Clear(ctx context.Context, sessionID string) error
	Recover(ctx context.Context, p timer.Pauser) (int, error)
}

// Serializer runs callbacks one at a time per session
type Serializer interface {
	Submit(ctx context.Context, sessionID string, fn executor.Action) error
}

// Emitter delivers events to connected clients
type Emitter interface {
	Emit(ctx context.Context, d events.Directive) error
}

// CompletionPublisher is told about every finished match
type CompletionPublisher interface {
	PublishMatchCompleted(ctx context.Context, m events.MatchCompletedPayload) error
}

type Config struct {
	// DefaultRules fill whatever a create request leaves unset.
	DefaultRules models.Rules
	// IdleTimeout is how long a session may go without a save before the
	// janitor deletes it. Zero disables the janitor sweep.
	IdleTimeout     time.Duration
	JanitorInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		DefaultRules:    models.DefaultRules(),
		IdleTimeout:     6 * time.Hour,
		JanitorInterval: 5 * time.Minute,
	}
}

// Deps are the collaborators of an App. Completions and Sweeper are optional.
type Deps struct {
	Sessions    SessionRepository
	Packages    quizpack.Provider
	Executor    Serializer
	Timers      Timers
	Router      *router.Router
	Departures  *departure.Reconciler
	Emitter     Emitter
	Completions CompletionPublisher
	Sweeper     kvstore.Sweeper
	Clock       clockwork.Clock
}

// App handles session business logic
type App struct {
	sessions    SessionRepository
	packages    quizpack.Provider
	exec        Serializer
	timers      Timers
	router      *router.Router
	departures  *departure.Reconciler
	emitter     Emitter
	completions CompletionPublisher
	sweeper     kvstore.Sweeper
	clock       clockwork.Clock
	cfg         Config
}

func NewApp(deps Deps, cfg Config) *App {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{
		sessions:    deps.Sessions,
		packages:    deps.Packages,
		exec:        deps.Executor,
		timers:      deps.Timers,
		router:      deps.Router,
		departures:  deps.Departures,
		emitter:     deps.Emitter,
		completions: deps.Completions,
		sweeper:     deps.Sweeper,
		clock:       clock,
		cfg:         cfg,
	}
}

// change collects what one mutation produced.
type change struct {
	events    []events.Directive
	timers    []timer.Directive
	completed bool
	deleted   bool
}

func (c *change) add(res *router.TransitionResult) {
	c.events = append(c.events, res.Events...)
	c.timers = append(c.timers, res.Timers...)
	c.completed = c.completed || res.Completed
}

func (c *change) addOutcome(out *departure.Outcome) {
	c.events = append(c.events, out.Events...)
	c.timers = append(c.timers, out.Timers...)
	c.completed = c.completed || out.Completed
}

func (c *change) emit(d events.Directive) {
	c.events = append(c.events, d)
}

type mutation func(s *models.GameSession, pkg *models.Package, ch *change) error

// mutate loads a session under its executor lock, applies fn and persists
// the result. Timer records are written before the session document; events
// go out only after the lock is released. A failing fn leaves nothing behind.
func (a *App) mutate(ctx context.Context, sessionID string, fn mutation) (*models.GameSession, error) {
	var (
		ch       change
		snapshot *models.GameSession
	)
	err := a.exec.Submit(ctx, sessionID, func(ctx context.Context) error {
		s, err := a.sessions.Load(ctx, sessionID)
		if err != nil {
			return err
		}
		// A withdrawn package leaves pkg nil: the router applies nothing,
		// but roster changes and deletion still work.
		pkg, err := a.packages.Get(ctx, s.PackageID)
		if errors.Is(err, quizpack.ErrPackageNotFound) {
			log.Warn().Str("session_id", sessionID).Str("package_id", s.PackageID).Msg("session package is gone")
		} else if err != nil {
			return fmt.Errorf("failed to load package %s for session %s: %w", s.PackageID, sessionID, err)
		}
		// Set clones the timers, so fn may change s freely.
		committed := timer.Committed(s, a.clock.Now())
		if err := fn(s, pkg, &ch); err != nil {
			return err
		}
		if err := a.persist(ctx, s, &ch); err != nil {
			a.rollbackTimers(ctx, sessionID, committed)
			return err
		}
		snapshot = s
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	a.publish(ctx, ch.events)
	if ch.completed {
		a.publishCompletion(ctx, snapshot)
	}
	if ch.deleted {
		log.Info().Str("session_id", sessionID).Msg("session deleted")
	}
	return snapshot, nil
}

// persist writes the timer directives and then the session document, or
// deletes the session when nobody is left.
func (a *App) persist(ctx context.Context, s *models.GameSession, ch *change) error {
	if err := a.timers.Apply(ctx, ch.timers); err != nil {
		return fmt.Errorf("failed to write timers for session %s: %w", s.ID, err)
	}
	if !ch.deleted && !s.HasActiveParticipants() && !s.Phase.Ongoing() {
		ch.deleted = true
		ch.emit(events.ToAll(s.ID, events.KindSessionDeleted, nil))
	}
	if ch.deleted {
		if err := a.timers.Clear(ctx, s.ID); err != nil {
			return fmt.Errorf("failed to clear timers for session %s: %w", s.ID, err)
		}
		return a.sessions.Delete(ctx, s.ID)
	}
	return a.sessions.Save(ctx, s)
}

// rollbackTimers puts back the records of the last saved session after a
// failed write, so its countdown still fires.
func (a *App) rollbackTimers(ctx context.Context, sessionID string, committed []timer.Directive) {
	if err := a.timers.Apply(context.WithoutCancel(ctx), committed); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to restore timers after a failed write")
	}
}

func (a *App) publish(ctx context.Context, dirs []events.Directive) {
	for _, d := range dirs {
		if err := a.emitter.Emit(ctx, d); err != nil {
			log.Error().
				Err(err).
				Str("session_id", d.SessionID).
				Str("kind", string(d.Kind)).
				Msg("failed to emit event")
		}
	}
}

func (a *App) publishCompletion(ctx context.Context, s *models.GameSession) {
	if a.completions == nil {
		return
	}
	started := s.StartedAt
	if started.IsZero() {
		started = s.CreatedAt
	}
	m := events.MatchCompletedPayload{
		SessionID:  s.ID,
		Title:      s.Title,
		PackageID:  s.PackageID,
		StartedAt:  started,
		FinishedAt: a.clock.Now(),
		Scores:     events.Scores(s),
	}
	if err := a.completions.PublishMatchCompleted(ctx, m); err != nil {
		log.Error().Err(err).Str("session_id", s.ID).Msg("failed to publish match completion")
		return
	}
	log.Info().Str("session_id", s.ID).Int("players", len(m.Scores)).Msg("match completed")
}

// transition runs the router and fails when nothing applies.
func (a *App) transition(s *models.GameSession, pkg *models.Package, ch *change, by string, payload any) error {
	res := a.router.TryTransition(s, pkg, router.TriggerUserAction, by, payload)
	if res == nil {
		return reject(CodeNotApplicable, "%T does not apply in phase %s", payload, s.Phase)
	}
	ch.add(res)
	return nil
}

// CreateRequest describes a new session.
type CreateRequest struct {
	Title     string        `json:"title"`
	Private   bool          `json:"private"`
	PackageID string        `json:"package_id"`
	Rules     *models.Rules `json:"rules,omitempty"`
}

// CreateSession stores an empty lobby. The creator joins separately.
func (a *App) CreateSession(ctx context.Context, req CreateRequest) (*models.GameSession, error) {
	if req.PackageID == "" {
		return nil, reject(CodeInvalid, "package_id is required")
	}
	if _, err := a.packages.Get(ctx, req.PackageID); err != nil {
		if errors.Is(err, quizpack.ErrPackageNotFound) {
			return nil, reject(CodeInvalid, "unknown package %s", req.PackageID)
		}
		return nil, fmt.Errorf("failed to load package %s: %w", req.PackageID, err)
	}

	rules := a.cfg.DefaultRules
	if req.Rules != nil {
		rules = *req.Rules
	}
	title := req.Title
	if title == "" {
		title = "Quiz"
	}
	now := a.clock.Now()
	s := &models.GameSession{
		ID:        uuid.New().String(),
		Title:     title,
		Private:   req.Private,
		PackageID: req.PackageID,
		CreatedAt: now,
		Rules:     rules.WithDefaults(),
		Phase:     models.PhaseLobby,
	}
	if err := a.sessions.Save(ctx, s); err != nil {
		return nil, err
	}
	log.Info().
		Str("session_id", s.ID).
		Str("package_id", s.PackageID).
		Bool("private", s.Private).
		Msg("session created")
	return s, nil
}

// GetSession returns the stored snapshot without taking the lock.
func (a *App) GetSession(ctx context.Context, sessionID string) (*models.GameSession, error) {
	return a.sessions.Load(ctx, sessionID)
}

func (a *App) ListSessions(ctx context.Context, filter session.ListFilter) ([]session.Summary, error) {
	return a.sessions.List(ctx, filter)
}

// DeleteSession removes a session. An empty by means the caller is trusted.
func (a *App) DeleteSession(ctx context.Context, sessionID, by string) error {
	_, err := a.mutate(ctx, sessionID, func(s *models.GameSession, _ *models.Package, ch *change) error {
		if by != "" {
			if _, err := requireHost(s, by); err != nil {
				return err
			}
		}
		ch.deleted = true
		ch.emit(events.ToAll(s.ID, events.KindSessionDeleted, nil))
		return nil
	})
	return err
}
