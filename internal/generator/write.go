package generator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// maxParallelWrites bounds concurrent artifact writes.
const maxParallelWrites = 4

// WriteAll writes every artifact under dir and returns the written names in
// sorted order. Each file is written to a temp file in the same directory and
// renamed into place, so a crash never leaves a partially written artifact.
// The first failure cancels the writes that have not started yet; files
// already renamed stay in place and are still returned alongside the error.
func WriteAll(ctx context.Context, dir string, artifacts map[string][]byte) ([]string, error) {
	if len(artifacts) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	names := make([]string, 0, len(artifacts))
	for name := range artifacts {
		names = append(names, name)
	}
	sort.Strings(names)

	written := make([]bool, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelWrites)
	for i, name := range names {
		data := artifacts[name]
		path := filepath.Join(dir, name)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := WriteAtomic(path, data); err != nil {
				return err
			}
			written[i] = true
			log.Debug().Str("path", path).Int("bytes", len(data)).Msg("Artifact written")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		committed := make([]string, 0, len(names))
		for i, ok := range written {
			if ok {
				committed = append(committed, names[i])
			}
		}
		return committed, err
	}
	return names, nil
}

// WriteAtomic replaces path with data via a temp file and rename.
func WriteAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
