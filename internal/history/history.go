// Package history persists build reports so past builds can be listed.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"jpe-compiler/internal/build"
)

var (
	// ErrUnsupportedDSN is returned by Open for unknown DSN schemes.
	ErrUnsupportedDSN = errors.New("unsupported history DSN")
	// ErrNotFound is returned by Get for an unknown build id.
	ErrNotFound = errors.New("build not found")
)

// Entry is one row of build history.
type Entry struct {
	BuildID     string
	Success     bool
	Timestamp   time.Time
	DurationMS  int64
	Diagnostics int
	Outputs     int
}

// Store records and lists build reports.
type Store interface {
	Record(ctx context.Context, r *build.Report) error
	// List returns the most recent entries first.
	List(ctx context.Context, limit int) ([]Entry, error)
	Get(ctx context.Context, buildID string) (*build.Report, error)
	Close() error
}

// Open connects to the store named by dsn: sqlite://path or
// postgres://... (postgresql:// is accepted too).
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return OpenSQLite(ctx, dsn)
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("open history %q: %w", redact(dsn), ErrUnsupportedDSN)
	}
}

func entryOf(r *build.Report) Entry {
	return Entry{
		BuildID:     r.BuildID,
		Success:     r.Success,
		Timestamp:   r.Timestamp.UTC(),
		DurationMS:  r.DurationMS,
		Diagnostics: len(r.Diagnostics),
		Outputs:     len(r.Outputs),
	}
}

func encodeReport(r *build.Report) ([]byte, error) {
	if r == nil || r.BuildID == "" {
		return nil, fmt.Errorf("record build: report has no build id")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return data, nil
}

func decodeReport(data []byte) (*build.Report, error) {
	var r build.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}

// redact hides credentials in a DSN before it is logged or wrapped in an
// error.
func redact(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = "***" + rest[at:]
	}
	return scheme + "://" + rest
}
