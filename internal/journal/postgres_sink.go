package journal

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink writes journal records to a `kestrel_journal` table, for
// deployments that want queryable run history shared across engine
// instances rather than per-host log files.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects to dsn and ensures the journal table exists.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS kestrel_journal (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			kind TEXT NOT NULL,
			host TEXT,
			play TEXT,
			task TEXT,
			handler TEXT,
			attempt INT,
			changed BOOLEAN,
			failed BOOLEAN,
			msg TEXT,
			data JSONB
		)`); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresSink{pool: pool}, nil
}

func (s *PostgresSink) Write(ctx context.Context, r Record) error {
	var data any
	if len(r.Data) > 0 {
		data = json.RawMessage(r.Data)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kestrel_journal (run_id, ts, kind, host, play, task, handler, attempt, changed, failed, msg, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.RunID, r.Timestamp, r.Kind, r.Host, r.Play, r.Task, r.Handler, r.Attempt, r.Changed, r.Failed, r.Msg, data)
	return err
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
