// Package diag defines the diagnostics reported by every stage of a build.
package diag

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"jpe-compiler/internal/ir"
)

// Severity is the five-level band used from parsing through reporting.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityCaution
	SeverityWarning
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityCaution:
		return "caution"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// MarshalText renders the severity by name in reports.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (s *Severity) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "info":
		*s = SeverityInfo
	case "caution":
		*s = SeverityCaution
	case "warning":
		*s = SeverityWarning
	case "error":
		*s = SeverityError
	case "critical":
		*s = SeverityCritical
	default:
		return fmt.Errorf("unknown severity %q", string(b))
	}
	return nil
}

// Category is the error taxonomy a diagnostic belongs to.
type Category string

const (
	CategoryParse      Category = "parse"
	CategoryReference  Category = "reference"
	CategoryRange      Category = "range"
	CategoryDuplicate  Category = "duplicate"
	CategoryRequired   Category = "required"
	CategoryLocale     Category = "locale"
	CategoryConsistent Category = "consistency"
	CategoryGeneration Category = "generation"
	CategoryIO         Category = "io"
)

// Diagnostic codes. P = parser, V = validator, G = generator, B = build.
const (
	CodeUnexpectedContent = "JPE-P001"
	CodeMalformedHeader   = "JPE-P002"
	CodeMalformedProperty = "JPE-P003"
	CodeMixedIndent       = "JPE-P004"
	CodeOddIndent         = "JPE-P005"
	CodeBadQuote          = "JPE-P006"
	CodeBadList           = "JPE-P007"
	CodeBadValue          = "JPE-P008"
	CodeBadEncoding       = "JPE-P009"
	CodeUnknownSection    = "JPE-P010"
	CodeUnknownProperty   = "JPE-P011"
	CodeDuplicateProperty = "JPE-P020"

	CodeDuplicateID      = "JPE-V001"
	CodeMissingRequired  = "JPE-V002"
	CodeOutOfRange       = "JPE-V003"
	CodeInvalidEnum      = "JPE-V004"
	CodeUnresolvedRef    = "JPE-V010"
	CodeBadLocale        = "JPE-V020"
	CodeAsymmetricTrait  = "JPE-V030"
	CodeOrphanLoot       = "JPE-V031"
	CodeUnusedTestSet    = "JPE-V032"
	CodeBadVersion       = "JPE-V033"
	CodeIgnoredProject   = "JPE-V034"
	CodePlaceholders     = "JPE-V035"
	CodeInconsistentIR   = "JPE-G001"
	CodeReadFailed       = "JPE-B001"
	CodeWriteFailed      = "JPE-B002"
	CodeGeneratorMissing = "JPE-B003"
	CodeParserMissing    = "JPE-B004"
	CodeCancelled        = "JPE-B005"
)

// Diagnostic is a single finding tied to a source location.
type Diagnostic struct {
	Code        string         `json:"code"`
	Severity    Severity       `json:"severity"`
	Category    Category       `json:"category"`
	Message     string         `json:"message"`
	File        string         `json:"file"`
	Line        int            `json:"line"`
	Column      int            `json:"column"`
	Suggestions []string       `json:"suggestions"`
	Related     []ir.Location  `json:"related,omitempty"`
	Subject     *ir.ResourceID `json:"subject,omitempty"`
}

// MarshalJSON always emits suggestions as an array, empty when there are none.
func (d Diagnostic) MarshalJSON() ([]byte, error) {
	type plain Diagnostic
	p := plain(d)
	if p.Suggestions == nil {
		p.Suggestions = []string{}
	}
	return json.Marshal(p)
}

// At builds a diagnostic positioned at loc.
func At(loc ir.Location, sev Severity, cat Category, code, format string, args ...any) Diagnostic {
	return Diagnostic{
		Code:     code,
		Severity: sev,
		Category: cat,
		Message:  fmt.Sprintf(format, args...),
		File:     loc.File,
		Line:     loc.Line,
		Column:   loc.Column,
	}
}

// About attaches the entity the diagnostic concerns.
func (d Diagnostic) About(id ir.ResourceID) Diagnostic {
	d.Subject = &id
	return d
}

// Suggest appends fix suggestions.
func (d Diagnostic) Suggest(s ...string) Diagnostic {
	d.Suggestions = append(d.Suggestions, s...)
	return d
}

// Location returns the diagnostic position as an ir.Location.
func (d Diagnostic) Location() ir.Location {
	return ir.Location{File: d.File, Line: d.Line, Column: d.Column}
}

func (d Diagnostic) String() string {
	var b strings.Builder
	if d.File != "" {
		fmt.Fprintf(&b, "%s:%d:%d: ", d.File, d.Line, d.Column)
	}
	fmt.Fprintf(&b, "%s %s: %s", d.Severity, d.Code, d.Message)
	if len(d.Suggestions) > 0 {
		fmt.Fprintf(&b, " (did you mean %s?)", strings.Join(d.Suggestions, ", "))
	}
	return b.String()
}

// Sort orders diagnostics by file, line, column, then code and message so
// reports are stable regardless of the order parsing finished in.
func Sort(ds []Diagnostic) {
	sort.SliceStable(ds, func(i, j int) bool {
		a, b := ds[i], ds[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Message < b.Message
	})
}

// Count returns how many diagnostics have exactly the given severity.
func Count(ds []Diagnostic, sev Severity) int {
	n := 0
	for _, d := range ds {
		if d.Severity == sev {
			n++
		}
	}
	return n
}

// HasAtLeast reports whether any diagnostic is at or above sev.
func HasAtLeast(ds []Diagnostic, sev Severity) bool {
	for _, d := range ds {
		if d.Severity >= sev {
			return true
		}
	}
	return false
}

// WithCode filters diagnostics by code.
func WithCode(ds []Diagnostic, code string) []Diagnostic {
	var out []Diagnostic
	for _, d := range ds {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}
