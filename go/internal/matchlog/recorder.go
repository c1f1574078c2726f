package matchlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/quizhall/go/internal/events"
)

const schema = `
CREATE TABLE IF NOT EXISTS match_results (
    session_id  TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    package_id  TEXT NOT NULL,
    started_at  TIMESTAMPTZ,
    finished_at TIMESTAMPTZ NOT NULL,
    winner_ids  TEXT[] NOT NULL,
    top_score   INTEGER NOT NULL,
    scores      JSONB NOT NULL,
    recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const insertMatch = `
INSERT INTO match_results (
  session_id, title, package_id, started_at, finished_at,
  winner_ids, top_score, scores
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (session_id) DO NOTHING`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Recorder writes match results to Postgres.
type Recorder struct {
	db execer
}

func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{db: pool}
}

// EnsureSchema creates the results table if missing.
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create match_results: %w", err)
	}
	return nil
}

func (r *Recorder) RecordMatch(ctx context.Context, m events.MatchCompletedPayload) error {
	scores, err := json.Marshal(m.Scores)
	if err != nil {
		return fmt.Errorf("failed to encode scores: %w", err)
	}
	winners, top := Winners(m.Scores)

	var startedAt any
	if !m.StartedAt.IsZero() {
		startedAt = m.StartedAt
	}
	if _, err := r.db.Exec(ctx, insertMatch,
		m.SessionID, m.Title, m.PackageID, startedAt, m.FinishedAt,
		winners, top, scores,
	); err != nil {
		return fmt.Errorf("failed to insert match %s: %w", m.SessionID, err)
	}
	return nil
}

// Winners returns every player sharing the highest score, and that score.
func Winners(scores []events.FinalScore) ([]string, int) {
	winners := []string{}
	top := 0
	for i, s := range scores {
		switch {
		case i == 0 || s.Score > top:
			top = s.Score
			winners = []string{s.ParticipantID}
		case s.Score == top:
			winners = append(winners, s.ParticipantID)
		}
	}
	return winners, top
}
