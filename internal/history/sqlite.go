package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"jpe-compiler/internal/build"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS builds (
	build_id    TEXT PRIMARY KEY,
	success     INTEGER NOT NULL,
	timestamp   TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	diagnostics INTEGER NOT NULL,
	outputs     INTEGER NOT NULL,
	report      TEXT NOT NULL
)`

// timeLayout is fixed width so timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore keeps history in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database named by a sqlite://
// DSN and ensures the schema exists.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	path, err := parseSQLiteDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse sqlite DSN: %w", err)
	}
	if path != ":memory:" {
		file, _, _ := strings.Cut(path, "?")
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	for _, stmt := range []string{
		"PRAGMA busy_timeout = 30000;",
		"PRAGMA journal_mode = WAL;",
		sqliteSchema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init sqlite history: %w", err)
		}
	}

	log.Debug().Str("path", path).Msg("Opened SQLite history")
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Record(ctx context.Context, r *build.Report) error {
	data, err := encodeReport(r)
	if err != nil {
		return err
	}
	e := entryOf(r)
	_, err = s.db.ExecContext(ctx, `INSERT INTO builds
		(build_id, success, timestamp, duration_ms, diagnostics, outputs, report)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(build_id) DO UPDATE SET
			success = excluded.success,
			timestamp = excluded.timestamp,
			duration_ms = excluded.duration_ms,
			diagnostics = excluded.diagnostics,
			outputs = excluded.outputs,
			report = excluded.report`,
		e.BuildID, e.Success, e.Timestamp.Format(timeLayout), e.DurationMS, e.Diagnostics, e.Outputs, string(data))
	if err != nil {
		return fmt.Errorf("record build %s: %w", e.BuildID, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT build_id, success, timestamp, duration_ms, diagnostics, outputs
		FROM builds ORDER BY timestamp DESC, build_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.BuildID, &e.Success, &ts, &e.DurationMS, &e.Diagnostics, &e.Outputs); err != nil {
			return nil, fmt.Errorf("scan build: %w", err)
		}
		e.Timestamp, err = time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp of %s: %w", e.BuildID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Get(ctx context.Context, buildID string) (*build.Report, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT report FROM builds WHERE build_id = ?`, buildID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get build %s: %w", buildID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get build %s: %w", buildID, err)
	}
	return decodeReport([]byte(data))
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func parseSQLiteDSN(dsn string) (string, error) {
	rest, ok := strings.CutPrefix(dsn, "sqlite://")
	if !ok {
		return "", fmt.Errorf("invalid sqlite DSN scheme, expected sqlite://")
	}
	if rest == "" {
		return "", fmt.Errorf("sqlite DSN has no path")
	}
	if rest == ":memory:" {
		return rest, nil
	}

	path, query, hasQuery := strings.Cut(rest, "?")
	path, err := url.PathUnescape(path)
	if err != nil {
		return "", fmt.Errorf("unescape path: %w", err)
	}
	if !filepath.IsAbs(path) && !strings.HasPrefix(path, "./") {
		path = "./" + path
	}
	if hasQuery {
		return path + "?" + query, nil
	}
	return path, nil
}
