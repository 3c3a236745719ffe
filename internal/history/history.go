package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one closed upload service instance.
type Entry struct {
	TokenID    string
	Kind       string
	Target     string
	Outcome    string
	Files      int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Recorder persists upload outcomes.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

// PostgresRecorder appends entries to the uploads table.
type PostgresRecorder struct {
	pool *pgxpool.Pool
}

// NewPostgresRecorder connects to dsn and makes sure the uploads table exists.
func NewPostgresRecorder(ctx context.Context, dsn string) (*PostgresRecorder, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &PostgresRecorder{pool: pool}, nil
}

func (r *PostgresRecorder) Record(ctx context.Context, e Entry) error {
	const query = `
        INSERT INTO uploads (id, token_id, kind, target, outcome, files, error, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`
	_, err := r.pool.Exec(ctx, query, uuid.New(), e.TokenID, e.Kind, e.Target, e.Outcome, e.Files, e.Error, e.StartedAt, e.FinishedAt)
	return err
}

// Recent returns the latest entries for target, newest first.
func (r *PostgresRecorder) Recent(ctx context.Context, target string, limit int) ([]Entry, error) {
	const query = `
        SELECT token_id, kind, target, outcome, files, error, started_at, finished_at
        FROM uploads WHERE target = $1
        ORDER BY finished_at DESC LIMIT $2;`
	rows, err := r.pool.Query(ctx, query, target, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.TokenID, &e.Kind, &e.Target, &e.Outcome, &e.Files, &e.Error, &e.StartedAt, &e.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRecorder) Close() {
	r.pool.Close()
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
        CREATE TABLE IF NOT EXISTS uploads (
            id UUID PRIMARY KEY,
            token_id TEXT NOT NULL,
            kind TEXT NOT NULL,
            target TEXT NOT NULL,
            outcome TEXT NOT NULL,
            files INTEGER NOT NULL DEFAULT 0,
            error TEXT NOT NULL DEFAULT '',
            started_at TIMESTAMPTZ NOT NULL,
            finished_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`
	_, err := pool.Exec(ctx, stmt)
	return err
}
