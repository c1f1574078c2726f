package quizpack

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/quizhall/go/internal/models"
	"github.com/mcdev12/quizhall/go/internal/sqlutil"
)

// Schema creates the package table.
const Schema = `
CREATE TABLE IF NOT EXISTS quiz_packages (
    id         TEXT PRIMARY KEY,
    title      TEXT NOT NULL,
    author     TEXT,
    rounds     JSONB NOT NULL,
    metadata   JSONB,
    created_at TIMESTAMPTZ
)`

const getPackage = `
SELECT id, title, author, rounds, metadata, created_at
FROM quiz_packages
WHERE id = $1`

const upsertPackage = `
INSERT INTO quiz_packages (id, title, author, rounds, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    title = EXCLUDED.title,
    author = EXCLUDED.author,
    rounds = EXCLUDED.rounds,
    metadata = EXCLUDED.metadata`

// Postgres reads packages from the quiz_packages table.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Get(ctx context.Context, id string) (*models.Package, error) {
	var (
		pkg       models.Package
		author    sql.NullString
		rounds    []byte
		metadata  pqtype.NullRawMessage
		createdAt sql.NullTime
	)
	err := p.db.QueryRowContext(ctx, getPackage, id).Scan(&pkg.ID, &pkg.Title, &author, &rounds, &metadata, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get package %s: %w", id, err)
	}

	pkg.Author = sqlutil.FromSqlString(author, "")
	pkg.CreatedAt = sqlutil.FromSqlTime(createdAt)
	if err := json.Unmarshal(rounds, &pkg.Rounds); err != nil {
		return nil, fmt.Errorf("failed to decode rounds of package %s: %w", id, err)
	}
	if metadata.Valid {
		if err := json.Unmarshal(metadata.RawMessage, &pkg.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata of package %s: %w", id, err)
		}
	}
	pkg.Normalize()
	if err := pkg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid package %s: %w", id, err)
	}
	return &pkg, nil
}

// Put upserts packages in one transaction.
func (p *Postgres) Put(ctx context.Context, pkgs ...*models.Package) error {
	return sqlutil.Run(ctx, p.db, func(tx *sql.Tx) error {
		for _, pkg := range pkgs {
			rounds, err := json.Marshal(pkg.Rounds)
			if err != nil {
				return fmt.Errorf("failed to encode rounds of package %s: %w", pkg.ID, err)
			}
			var metadata pqtype.NullRawMessage
			if len(pkg.Metadata) > 0 {
				raw, err := json.Marshal(pkg.Metadata)
				if err != nil {
					return fmt.Errorf("failed to encode metadata of package %s: %w", pkg.ID, err)
				}
				metadata = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
			}
			_, err = tx.ExecContext(ctx, upsertPackage,
				pkg.ID, pkg.Title, sqlutil.ToSqlString(pkg.Author), rounds, metadata, sqlutil.ToSqlTime(pkg.CreatedAt))
			if err != nil {
				return fmt.Errorf("failed to save package %s: %w", pkg.ID, err)
			}
		}
		return nil
	})
}
