package sink

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/oshokin/driver-guard/internal/config"
	"github.com/oshokin/driver-guard/internal/logger"
)

// postgresTimeout bounds every statement.
const postgresTimeout = 5 * time.Second

// Postgres journals every alert as a row of the alerts table.
type Postgres struct {
	db     *sql.DB
	insert string
}

// NewPostgres opens the database described by cfg and creates the alerts table if needed.
func NewPostgres(ctx context.Context, cfg config.PostgresConfig) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open PostgreSQL: %w", err)
	}

	p, err := newPostgres(ctx, db, cfg.Table)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	logger.InfoKV(ctx, "Journaling alerts to PostgreSQL", "table", cfg.Table)

	return p, nil
}

// newPostgres prepares the journal on an open database.
func newPostgres(ctx context.Context, db *sql.DB, table string) (*Postgres, error) {
	if table == "" {
		table = config.DefaultPostgresTable
	}

	quoted := pq.QuoteIdentifier(table)

	schema := `CREATE TABLE IF NOT EXISTS ` + quoted + ` (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL,
		class TEXT NOT NULL,
		frame_index INTEGER NOT NULL,
		stream_offset_ms BIGINT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		frames INTEGER NOT NULL,
		raised_at TIMESTAMPTZ NOT NULL
	)`

	execCtx, cancel := context.WithTimeout(ctx, postgresTimeout)
	defer cancel()

	if _, err := db.ExecContext(execCtx, schema); err != nil {
		return nil, fmt.Errorf("create table %s: %w", table, err)
	}

	return &Postgres{
		db: db,
		insert: `INSERT INTO ` + quoted + ` (session_id, class, frame_index, stream_offset_ms, confidence, frames, raised_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	}, nil
}

// Present inserts the alerts of the frame.
func (p *Postgres) Present(ctx context.Context, r *Result) error {
	if r == nil {
		return nil
	}

	for _, a := range r.Alerts {
		execCtx, cancel := context.WithTimeout(ctx, postgresTimeout)

		_, err := p.db.ExecContext(execCtx, p.insert,
			a.SessionID,
			a.Class,
			a.FrameIndex,
			a.Timestamp.Milliseconds(),
			a.Confidence,
			a.Frames,
			a.RaisedAt,
		)

		cancel()

		if err != nil {
			return writeError("postgres", fmt.Errorf("insert alert: %w", err))
		}
	}

	return nil
}

// Close closes the database.
func (p *Postgres) Close() error {
	return p.db.Close()
}
