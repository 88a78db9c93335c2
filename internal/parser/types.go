package parser

import (
	"jpe-compiler/internal/diag"
	"jpe-compiler/internal/ir"
)

// Extension is the file extension of JPE sources.
const Extension = ".jpe"

// Parser is the interface for all source format parsers. Implementations
// must be pure functions of their input so files can be parsed concurrently.
type Parser interface {
	// CanParse returns true if this parser handles the given file extension.
	CanParse(ext string) bool
	// Parse turns one file's contents into a partial IR. It never fails on
	// malformed input; problems come back as diagnostics.
	Parse(src []byte, file string) (*ir.Partial, []diag.Diagnostic)
}
