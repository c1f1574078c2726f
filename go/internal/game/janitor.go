package game

import (
	"context"

	"github.com/rs/zerolog/log"
)

// RunJanitor periodically deletes sessions nobody has touched for
// IdleTimeout and lets the store purge expired keys. It blocks until ctx is
// cancelled.
func (a *App) RunJanitor(ctx context.Context) error {
	if a.cfg.JanitorInterval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := a.clock.NewTicker(a.cfg.JanitorInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", a.cfg.JanitorInterval).Dur("idle_timeout", a.cfg.IdleTimeout).Msg("janitor started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("janitor stopped")
			return nil
		case <-ticker.Chan():
			a.sweep(ctx)
		}
	}
}

func (a *App) sweep(ctx context.Context) {
	if a.sweeper != nil {
		if n, err := a.sweeper.Sweep(ctx); err != nil {
			log.Error().Err(err).Msg("failed to sweep expired keys")
		} else if n > 0 {
			log.Debug().Int("keys", n).Msg("swept expired keys")
		}
	}

	if a.cfg.IdleTimeout <= 0 {
		return
	}
	n, err := a.DeleteIdle(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to delete idle sessions")
		return
	}
	if n > 0 {
		log.Info().Int("sessions", n).Msg("deleted idle sessions")
	}
}

// DeleteIdle removes every session whose last save is older than
// IdleTimeout and returns how many were removed.
func (a *App) DeleteIdle(ctx context.Context) (int, error) {
	ids, err := a.sessions.IDs(ctx)
	if err != nil {
		return 0, err
	}
	sessions, err := a.sessions.LoadMany(ctx, ids)
	if err != nil {
		return 0, err
	}
	cutoff := a.clock.Now().Add(-a.cfg.IdleTimeout)
	deleted := 0
	for _, s := range sessions {
		if s.UpdatedAt.After(cutoff) {
			continue
		}
		if err := a.DeleteSession(ctx, s.ID, ""); err != nil {
			log.Warn().Err(err).Str("session_id", s.ID).Msg("failed to delete idle session")
			continue
		}
		deleted++
	}
	return deleted, nil
}
