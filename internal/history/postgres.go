package history

import (
	"context"
	"errors"
	"fmt"

	"jpe-compiler/internal/build"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS jpec_builds (
	build_id    TEXT PRIMARY KEY,
	success     BOOLEAN NOT NULL,
	timestamp   TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL,
	diagnostics INTEGER NOT NULL,
	outputs     INTEGER NOT NULL,
	report      JSONB NOT NULL
)`

// PostgresStore keeps history in a shared PostgreSQL database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to PostgreSQL and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping PostgreSQL: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init PostgreSQL history: %w", err)
	}
	log.Info().Str("dsn", redact(dsn)).Msg("Connected to PostgreSQL")
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Record(ctx context.Context, r *build.Report) error {
	data, err := encodeReport(r)
	if err != nil {
		return err
	}
	e := entryOf(r)
	_, err = s.pool.Exec(ctx, `INSERT INTO jpec_builds
		(build_id, success, timestamp, duration_ms, diagnostics, outputs, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (build_id) DO UPDATE SET
			success = EXCLUDED.success,
			timestamp = EXCLUDED.timestamp,
			duration_ms = EXCLUDED.duration_ms,
			diagnostics = EXCLUDED.diagnostics,
			outputs = EXCLUDED.outputs,
			report = EXCLUDED.report`,
		e.BuildID, e.Success, e.Timestamp, e.DurationMS, e.Diagnostics, e.Outputs, data)
	if err != nil {
		return fmt.Errorf("record build %s: %w", e.BuildID, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `SELECT build_id, success, timestamp, duration_ms, diagnostics, outputs
		FROM jpec_builds ORDER BY timestamp DESC, build_id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.BuildID, &e.Success, &e.Timestamp, &e.DurationMS, &e.Diagnostics, &e.Outputs); err != nil {
			return nil, fmt.Errorf("scan build: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, buildID string) (*build.Report, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT report FROM jpec_builds WHERE build_id = $1`, buildID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get build %s: %w", buildID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get build %s: %w", buildID, err)
	}
	return decodeReport(data)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
