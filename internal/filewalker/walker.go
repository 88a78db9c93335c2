// Package filewalker discovers source files under a project tree.
package filewalker

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"jpe-compiler/internal/parser"

	"github.com/rs/zerolog/log"
)

// skipDirs are directory names never descended into.
var skipDirs = map[string]bool{
	".git":  true,
	".jpec": true,
}

// Walker traverses a source tree and pairs each file with the parser
// registered for its extension.
type Walker struct {
	parsers []parser.Parser
	exclude []string
}

// NewWalker creates a Walker. Directories listed in exclude (absolute paths)
// are skipped along with their contents.
func NewWalker(parsers []parser.Parser, exclude ...string) *Walker {
	w := &Walker{parsers: parsers}
	for _, dir := range exclude {
		if abs, err := filepath.Abs(dir); err == nil {
			w.exclude = append(w.exclude, abs)
		}
	}
	return w
}

// FileEntry represents a discovered file ready for parsing.
type FileEntry struct {
	Path   string
	Rel    string
	Ext    string
	Parser parser.Parser
}

// Walk discovers all parseable files under root. Entries are sorted by
// their slash-separated path relative to root.
func (w *Walker) Walk(root string) ([]FileEntry, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", root)
	}

	var entries []FileEntry
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Error walking path")
			return nil
		}
		if d.IsDir() {
			if path != root && (skipDirs[d.Name()] || w.excluded(path)) {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		p := w.parserFor(ext)
		if p == nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		entries = append(entries, FileEntry{
			Path:   path,
			Rel:    filepath.ToSlash(rel),
			Ext:    ext,
			Parser: p,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Rel < entries[j].Rel })
	log.Info().Int("count", len(entries)).Str("root", root).Msg("Discovered files")
	return entries, nil
}

func (w *Walker) parserFor(ext string) parser.Parser {
	for _, p := range w.parsers {
		if p.CanParse(ext) {
			return p
		}
	}
	return nil
}

func (w *Walker) excluded(path string) bool {
	for _, ex := range w.exclude {
		if path == ex {
			return true
		}
	}
	return false
}
