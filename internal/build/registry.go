package build

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"jpe-compiler/internal/generator"
	"jpe-compiler/internal/ir"
	"jpe-compiler/internal/parser"
	"jpe-compiler/internal/validator"
)

// ErrAlreadyRegistered is returned when a plugin slot is taken.
var ErrAlreadyRegistered = errors.New("plugin already registered")

// Registry is the explicit extension-point table. Parsers are keyed by file
// extension and generators by format name; validator checks run in
// registration order after the built-in checks.
type Registry struct {
	parsers    map[string]parser.Parser
	generators map[string]generator.Plugin
	checks     []validator.Check
	kinds      []ir.Kind
}

// NewRegistry returns a registry holding the built-in XML generator. The
// built-in JPE parser is added by the Builder unless a plugin claims ".jpe".
func NewRegistry() *Registry {
	return &Registry{
		parsers: make(map[string]parser.Parser),
		generators: map[string]generator.Plugin{
			generator.FormatXML: generator.XML{},
		},
	}
}

// RegisterParser routes files with extension ext to p.
func (r *Registry) RegisterParser(ext string, p parser.Parser) error {
	ext = normalizeExt(ext)
	if ext == "" || p == nil {
		return fmt.Errorf("register parser: extension and parser are required")
	}
	if _, ok := r.parsers[ext]; ok {
		return fmt.Errorf("register parser %s: %w", ext, ErrAlreadyRegistered)
	}
	r.parsers[ext] = p
	return nil
}

// RegisterGenerator makes format available to builds that list it.
func (r *Registry) RegisterGenerator(format string, g generator.Plugin) error {
	if format == "" || g == nil {
		return fmt.Errorf("register generator: format and generator are required")
	}
	if _, ok := r.generators[format]; ok {
		return fmt.Errorf("register generator %s: %w", format, ErrAlreadyRegistered)
	}
	r.generators[format] = g
	return nil
}

// RegisterValidator appends an extra validation check.
func (r *Registry) RegisterValidator(c validator.Check) {
	if c != nil {
		r.checks = append(r.checks, c)
	}
}

// RegisterKind lets JPE sections named after kind parse into generic
// entities instead of being skipped as unknown. Built-in kinds are ignored.
func (r *Registry) RegisterKind(kinds ...ir.Kind) {
	for _, k := range kinds {
		if k != "" && !ir.IsBuiltin(k) {
			r.kinds = append(r.kinds, k)
		}
	}
}

// Generator looks up the plugin for format.
func (r *Registry) Generator(format string) (generator.Plugin, bool) {
	g, ok := r.generators[format]
	return g, ok
}

// Formats lists registered generator formats in sorted order.
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.generators))
	for f := range r.generators {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// parserList snapshots the parser table for one Builder.
func (r *Registry) parserList() []parser.Parser {
	var out []parser.Parser
	if _, ok := r.parsers[parser.Extension]; !ok {
		out = append(out, parser.NewJPEParser(parser.WithKinds(r.kinds...)))
	}
	exts := make([]string, 0, len(r.parsers))
	for ext := range r.parsers {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	for _, ext := range exts {
		out = append(out, extParser{ext: ext, Parser: r.parsers[ext]})
	}
	return out
}

func (r *Registry) handles(ext string) bool {
	ext = normalizeExt(ext)
	if ext == parser.Extension {
		return true
	}
	_, ok := r.parsers[ext]
	return ok
}

// extParser pins a plugin to the extension it was registered under.
type extParser struct {
	ext string
	parser.Parser
}

func (p extParser) CanParse(ext string) bool { return strings.EqualFold(ext, p.ext) }

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
