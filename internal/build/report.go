package build

import (
	"encoding/json"
	"fmt"
	"time"

	"jpe-compiler/internal/diag"
	"jpe-compiler/internal/generator"

	"github.com/oklog/ulid/v2"
)

// Report is the terminal summary of one pipeline run.
type Report struct {
	BuildID     string            `json:"build_id"`
	Success     bool              `json:"success"`
	Timestamp   time.Time         `json:"timestamp"`
	DurationMS  int64             `json:"duration_ms"`
	Diagnostics []diag.Diagnostic `json:"diagnostics"`
	Outputs     []string          `json:"outputs"`
	Counts      map[string]int    `json:"counts"`
}

// NewBuildID returns a fresh sortable build identifier.
func NewBuildID() string {
	return ulid.Make().String()
}

func newReport(buildID string, start time.Time) *Report {
	return &Report{
		BuildID:     buildID,
		Timestamp:   start.UTC(),
		Diagnostics: []diag.Diagnostic{},
		Outputs:     []string{},
		Counts:      map[string]int{},
	}
}

func (r *Report) finish(diags []diag.Diagnostic, start time.Time) {
	diag.Sort(diags)
	if diags != nil {
		r.Diagnostics = diags
	}
	r.Success = !diag.HasAtLeast(r.Diagnostics, diag.SeverityError)
	r.DurationMS = time.Since(start).Milliseconds()
}

// Summary returns the number of diagnostics per severity.
func (r *Report) Summary() map[diag.Severity]int {
	out := make(map[diag.Severity]int)
	for _, d := range r.Diagnostics {
		out[d.Severity]++
	}
	return out
}

// Critical reports whether the build was aborted.
func (r *Report) Critical() bool {
	return diag.HasAtLeast(r.Diagnostics, diag.SeverityCritical)
}

// MarshalIndent renders the report as indented JSON.
func (r *Report) MarshalIndent() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteFile stores the report as JSON at path.
func (r *Report) WriteFile(path string) error {
	data, err := r.MarshalIndent()
	if err != nil {
		return err
	}
	if err := generator.WriteAtomic(path, data); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
