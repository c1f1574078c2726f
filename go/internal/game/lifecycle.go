package game

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizhall/go/internal/events"
	"github.com/mcdev12/quizhall/go/internal/game/router"
	"github.com/mcdev12/quizhall/go/internal/game/timer"
	"github.com/mcdev12/quizhall/go/internal/models"
	"github.com/mcdev12/quizhall/go/internal/session"
)

// AdjustScore is a manual host correction, clamped like any other change.
func (a *App) AdjustScore(ctx context.Context, sessionID, by, target string, delta int) error {
	_, err := a.mutate(ctx, sessionID, func(s *models.GameSession, _ *models.Package, ch *change) error {
		if _, err := requireHost(s, by); err != nil {
			return err
		}
		p, err := requireParticipant(s, target)
		if err != nil {
			return err
		}
		if p.Role != models.RolePlayer {
			return reject(CodeInvalid, "%s is not a player", target)
		}
		applied := router.ApplyScore(p, delta, s.Rules, false)
		if applied == 0 {
			return errUnchanged
		}
		ch.emit(events.ToAll(s.ID, events.KindScoreChanged, events.ScoreChangedPayload{
			ParticipantID: target,
			Delta:         applied,
			Score:         p.Score,
			Reason:        "HOST_ADJUSTMENT",
		}))
		return nil
	})
	return err
}

// Pause freezes the running countdown. Gameplay actions are refused until
// Unpause.
func (a *App) Pause(ctx context.Context, sessionID, by string) error {
	_, err := a.mutate(ctx, sessionID, func(s *models.GameSession, _ *models.Package, ch *change) error {
		if _, err := requireHost(s, by); err != nil {
			return err
		}
		if !s.Phase.Ongoing() {
			return reject(CodeWrongPhase, "no match in progress")
		}
		if s.Paused {
			return errUnchanged
		}
		ch.timers = append(ch.timers, timer.Pause(s, a.clock.Now())...)
		ch.emit(events.ToAll(s.ID, events.KindGamePaused, events.PausedPayload{Paused: true, Reason: "HOST", Timer: s.Timer.Clone()}))
		return nil
	})
	return err
}

// Unpause resumes the countdown for whatever time it had left.
func (a *App) Unpause(ctx context.Context, sessionID, by string) error {
	_, err := a.mutate(ctx, sessionID, func(s *models.GameSession, _ *models.Package, ch *change) error {
		if _, err := requireHost(s, by); err != nil {
			return err
		}
		if !s.Paused {
			return errUnchanged
		}
		ch.timers = append(ch.timers, timer.Resume(s, a.clock.Now())...)
		ch.emit(events.ToAll(s.ID, events.KindGameResumed, events.PausedPayload{Paused: false, Timer: s.Timer.Clone()}))
		return nil
	})
	return err
}

// HandleTimerExpired runs TIMER_EXPIRED for a claimed record. Records that
// no longer match the session's countdown are dropped. When the session
// cannot be processed the record is written back so the reaper retries it.
func (a *App) HandleTimerExpired(ctx context.Context, rec timer.Record) error {
	_, err := a.mutate(ctx, rec.SessionID, func(s *models.GameSession, pkg *models.Package, ch *change) error {
		if !timer.IsCurrent(s, rec, a.clock.Now()) {
			log.Debug().
				Str("session_id", s.ID).
				Str("timer_id", rec.Timer.ID).
				Str("phase", string(s.Phase)).
				Msg("dropping stale timer expiry")
			return errUnchanged
		}
		res := a.router.TryTransition(s, pkg, router.TriggerTimerExpired, "", nil)
		if res == nil {
			log.Warn().
				Str("session_id", s.ID).
				Str("phase", string(s.Phase)).
				Msg("timer expired with no transition")
			return errUnchanged
		}
		ch.add(res)
		return nil
	})
	if errors.Is(err, session.ErrNotFound) {
		return nil
	}
	if err != nil {
		now := a.clock.Now()
		if rerr := a.timers.Apply(ctx, []timer.Directive{timer.Set(rec.SessionID, rec.Suffix, &rec.Timer, now)}); rerr != nil {
			log.Error().Err(rerr).Str("session_id", rec.SessionID).Msg("failed to re-arm timer")
		}
		return err
	}
	return nil
}

// PauseForRecovery handles a countdown found running at startup: elapsed
// time is discarded and the session waits paused for the host.
func (a *App) PauseForRecovery(ctx context.Context, sessionID string) error {
	_, err := a.mutate(ctx, sessionID, func(s *models.GameSession, _ *models.Package, ch *change) error {
		ch.timers = append(ch.timers, timer.ResetForRecovery(s, a.clock.Now())...)
		ch.emit(events.ToAll(s.ID, events.KindGamePaused, events.PausedPayload{Paused: true, Reason: "RECOVERY", Timer: s.Timer.Clone()}))
		return nil
	})
	if errors.Is(err, session.ErrNotFound) {
		return a.timers.Clear(ctx, sessionID)
	}
	return err
}

// RecoverTimers pauses every session whose countdown was running when the
// previous process stopped. Run it before the reaper starts.
func (a *App) RecoverTimers(ctx context.Context) error {
	n, err := a.timers.Recover(ctx, a)
	if err != nil {
		return err
	}
	log.Info().Int("sessions", n).Msg("recovered running timers")
	return nil
}
