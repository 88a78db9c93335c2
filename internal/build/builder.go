// Package build runs the compiler pipeline: discover, parse, merge,
// validate, then generate or abort, always ending in a Report.
package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"jpe-compiler/internal/cache"
	"jpe-compiler/internal/config"
	"jpe-compiler/internal/diag"
	"jpe-compiler/internal/filewalker"
	"jpe-compiler/internal/generator"
	"jpe-compiler/internal/ir"
	"jpe-compiler/internal/parser"
	"jpe-compiler/internal/validator"
	"jpe-compiler/internal/worker"

	"github.com/rs/zerolog/log"
)

// Builder owns everything one project needs across builds: configuration,
// the plugin table snapshot and the parse cache.
type Builder struct {
	cfg     *config.Config
	reg     *Registry
	parsers []parser.Parser
	cache   *cache.ParseCache
}

// NewBuilder creates a Builder. A nil registry means built-ins only. The
// registry must not be changed after this call.
func NewBuilder(cfg *config.Config, reg *Registry) *Builder {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Builder{
		cfg:     cfg,
		reg:     reg,
		parsers: reg.parserList(),
		cache:   cache.NewParseCache(cfg.CacheSize, cfg.CacheTTL),
	}
}

// Analysis is the outcome of the front half of the pipeline.
type Analysis struct {
	Project     *ir.ProjectIR
	Diagnostics []diag.Diagnostic
	Files       int
}

// Build runs the full pipeline. It never returns nil; every failure is a
// diagnostic in the report. An empty buildID gets a generated one.
func (b *Builder) Build(ctx context.Context, buildID string) *Report {
	start := time.Now()
	if buildID == "" {
		buildID = NewBuildID()
	}
	rep := newReport(buildID, start)

	a := b.Analyze(ctx)
	rep.Counts = a.Project.Counts()
	diags := a.Diagnostics

	if diag.HasAtLeast(diags, diag.SeverityCritical) {
		log.Warn().Int("critical", diag.Count(diags, diag.SeverityCritical)).Msg("Build aborted, no artifacts generated")
	} else {
		outputs, gdiags := b.generate(ctx, a)
		rep.Outputs = outputs
		diags = append(diags, gdiags...)
	}

	rep.finish(diags, start)
	log.Info().
		Str("build_id", rep.BuildID).
		Bool("success", rep.Success).
		Int("diagnostics", len(rep.Diagnostics)).
		Int("outputs", len(rep.Outputs)).
		Dur("duration", time.Since(start)).
		Msg("Build complete")
	b.cache.LogStats()
	return rep
}

// Validate runs discovery, parsing, merge and validation without
// generating anything.
func (b *Builder) Validate(ctx context.Context) *Report {
	start := time.Now()
	rep := newReport(NewBuildID(), start)
	a := b.Analyze(ctx)
	rep.Counts = a.Project.Counts()
	rep.finish(a.Diagnostics, start)
	return rep
}

// Analyze runs Discover, Parse, Merge and Validate. The returned project is
// never nil.
func (b *Builder) Analyze(ctx context.Context) Analysis {
	var diags []diag.Diagnostic
	for _, ext := range b.cfg.Extensions {
		if !b.reg.handles(ext) {
			diags = append(diags, diag.At(ir.Location{}, diag.SeverityWarning, diag.CategoryIO, diag.CodeParserMissing,
				"no parser registered for configured extension %s; files are ignored", ext))
		}
	}

	walker := filewalker.NewWalker(b.parsers, b.cfg.OutputDir)
	files, err := walker.Walk(b.cfg.SourceDir)
	if err != nil {
		diags = append(diags, diag.At(ir.Location{}, diag.SeverityCritical, diag.CategoryIO, diag.CodeReadFailed,
			"discover sources: %v", err))
		return Analysis{Project: ir.NewProjectIR(b.cfg.Namespace), Diagnostics: diags}
	}

	partials, pdiags := b.parseAll(ctx, files)
	diags = append(diags, pdiags...)

	project := ir.Merge(b.cfg.Namespace, partials)
	log.Info().
		Int("entities", project.Len()).
		Int("collisions", len(project.Collisions)).
		Str("namespace", project.Namespace()).
		Msg("Merge complete")

	diags = append(diags, validator.Validate(project, b.reg.checks...)...)
	diag.Sort(diags)
	log.Info().
		Int("critical", diag.Count(diags, diag.SeverityCritical)).
		Int("errors", diag.Count(diags, diag.SeverityError)).
		Int("warnings", diag.Count(diags, diag.SeverityWarning)).
		Msg("Validation complete")

	return Analysis{Project: project, Diagnostics: diags, Files: len(files)}
}

func (b *Builder) parseAll(ctx context.Context, files []filewalker.FileEntry) ([]*ir.Partial, []diag.Diagnostic) {
	pool := worker.NewPool(b.cfg.Workers, func(ctx context.Context, f filewalker.FileEntry) (cache.ParseResult, error) {
		if err := ctx.Err(); err != nil {
			return cache.ParseResult{}, err
		}
		src, err := os.ReadFile(f.Path)
		if err != nil {
			return cache.ParseResult{}, fmt.Errorf("read source: %w", err)
		}
		name := b.fileID(f)
		if res, ok := b.cache.Get(name, src); ok {
			return res, nil
		}
		partial, diags := f.Parser.Parse(src, name)
		res := cache.ParseResult{Partial: partial, Diagnostics: diags}
		b.cache.Set(name, src, res)
		return res, nil
	})

	var partials []*ir.Partial
	var diags []diag.Diagnostic
	cancelled := false
	for _, t := range pool.Execute(ctx, files) {
		if t.Err != nil {
			if ctx.Err() != nil && errors.Is(t.Err, ctx.Err()) {
				cancelled = true
				continue
			}
			diags = append(diags, diag.At(ir.Location{File: b.fileID(t.Input)}, diag.SeverityError, diag.CategoryIO,
				diag.CodeReadFailed, "%v", t.Err))
			continue
		}
		partials = append(partials, t.Result.Partial)
		diags = append(diags, t.Result.Diagnostics...)
	}
	if cancelled {
		diags = append(diags, diag.At(ir.Location{}, diag.SeverityCritical, diag.CategoryIO, diag.CodeCancelled,
			"build cancelled: %v", ctx.Err()))
	}
	log.Info().Int("files", len(files)).Int("parsed", len(partials)).Msg("Parse complete")
	return partials, diags
}

// fileID is the project-relative, slash-separated name used in diagnostics.
func (b *Builder) fileID(f filewalker.FileEntry) string {
	rel, err := filepath.Rel(b.cfg.ProjectRoot, f.Path)
	if err != nil {
		return f.Rel
	}
	return filepath.ToSlash(rel)
}

// generate emits artifacts for every entity not implicated by an
// Error-severity diagnostic. Entities referencing a dropped entity are
// dropped with it.
func (b *Builder) generate(ctx context.Context, a Analysis) ([]string, []diag.Diagnostic) {
	drop := make(map[ir.ResourceID]bool)
	for _, d := range a.Diagnostics {
		if d.Severity == diag.SeverityError && d.Subject != nil {
			drop[*d.Subject] = true
		}
	}
	project := a.Project
	if len(drop) > 0 {
		project = project.Prune(drop)
		log.Info().Int("skipped", a.Project.Len()-project.Len()).Msg("Skipping entities with errors")
	}

	artifacts := make(map[string][]byte)
	owner := make(map[string]string)
	for _, format := range b.cfg.Formats {
		gen, ok := b.reg.Generator(format)
		if !ok {
			return nil, []diag.Diagnostic{diag.At(ir.Location{}, diag.SeverityCritical, diag.CategoryGeneration,
				diag.CodeGeneratorMissing, "no generator registered for format %q", format).Suggest(b.reg.Formats()...)}
		}
		out, err := gen.Generate(project)
		if err != nil {
			return nil, []diag.Diagnostic{generationDiagnostic(format, err)}
		}
		for name, data := range out {
			if prev, dup := owner[name]; dup {
				return nil, []diag.Diagnostic{diag.At(ir.Location{}, diag.SeverityCritical, diag.CategoryGeneration,
					diag.CodeWriteFailed, "artifact %s produced by both %s and %s", name, prev, format)}
			}
			owner[name] = format
			artifacts[name] = data
		}
	}

	if contains(b.cfg.Formats, generator.FormatXML) {
		b.removeStale(artifacts)
	}

	names, err := generator.WriteAll(ctx, b.cfg.OutputDir, artifacts)
	outputs := make([]string, 0, len(names))
	for _, name := range names {
		outputs = append(outputs, b.outputID(name))
	}
	if err != nil {
		return outputs, []diag.Diagnostic{diag.At(ir.Location{}, diag.SeverityCritical, diag.CategoryIO,
			diag.CodeWriteFailed, "write artifacts: %v", err)}
	}
	log.Info().Int("artifacts", len(outputs)).Str("dir", b.cfg.OutputDir).Msg("Artifacts written")
	return outputs, nil
}

func generationDiagnostic(format string, err error) diag.Diagnostic {
	var ge *generator.GenerationError
	if errors.As(err, &ge) {
		return diag.At(ge.Ref.Loc, diag.SeverityCritical, diag.CategoryGeneration, diag.CodeInconsistentIR,
			"%v", ge).About(ge.Entity)
	}
	return diag.At(ir.Location{}, diag.SeverityCritical, diag.CategoryGeneration, diag.CodeInconsistentIR,
		"generate %s: %v", format, err)
}

// removeStale deletes built-in artifacts left over from an earlier build
// whose kind produced nothing this time.
func (b *Builder) removeStale(artifacts map[string][]byte) {
	for _, info := range ir.BuiltinKinds() {
		if _, ok := artifacts[info.File]; ok {
			continue
		}
		path := filepath.Join(b.cfg.OutputDir, info.File)
		if err := os.Remove(path); err == nil {
			log.Debug().Str("path", path).Msg("Removed stale artifact")
		}
	}
}

func (b *Builder) outputID(name string) string {
	rel, err := filepath.Rel(b.cfg.ProjectRoot, filepath.Join(b.cfg.OutputDir, name))
	if err != nil {
		return filepath.ToSlash(filepath.Join(b.cfg.OutputDir, name))
	}
	return filepath.ToSlash(rel)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
