package diag

import (
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"jpe-compiler/internal/ir"
)

func TestSortIsStableByLocation(t *testing.T) {
	ds := []Diagnostic{
		{File: "b.jpe", Line: 1, Column: 1, Code: CodeBadList},
		{File: "a.jpe", Line: 9, Column: 1, Code: CodeBadList},
		{File: "a.jpe", Line: 2, Column: 5, Code: CodeOddIndent},
		{File: "a.jpe", Line: 2, Column: 5, Code: CodeMixedIndent},
		{Code: CodeParserMissing},
	}
	Sort(ds)
	want := []string{"", "a.jpe:2:JPE-P004", "a.jpe:2:JPE-P005", "a.jpe:9:JPE-P007", "b.jpe:1:JPE-P007"}
	for i, d := range ds {
		got := ""
		if d.File != "" {
			got = d.File + ":" + strconv.Itoa(d.Line) + ":" + d.Code
		}
		if got != want[i] {
			t.Errorf("position %d = %q, want %q", i, got, want[i])
		}
	}
}

func TestSeverityCounts(t *testing.T) {
	ds := []Diagnostic{
		{Severity: SeverityInfo},
		{Severity: SeverityWarning},
		{Severity: SeverityWarning},
	}
	if Count(ds, SeverityWarning) != 2 {
		t.Error("Count")
	}
	if HasAtLeast(ds, SeverityError) {
		t.Error("no errors expected")
	}
	if !HasAtLeast(append(ds, Diagnostic{Severity: SeverityCritical}), SeverityError) {
		t.Error("critical should count as at least error")
	}
}

func TestSeverityJSON(t *testing.T) {
	id := ir.ResourceID{Namespace: "mod", Kind: ir.KindBuff, Instance: 7}
	d := At(ir.Location{File: "a.jpe", Line: 3, Column: 2}, SeverityCritical, CategoryDuplicate, CodeDuplicateID, "dup %s", "glow").About(id)
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"suggestions":[]`) {
		t.Errorf("suggestions not emitted as an empty array: %s", data)
	}
	var back Diagnostic
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.Severity != SeverityCritical || back.Message != "dup glow" || back.Subject == nil || *back.Subject != id {
		t.Errorf("round trip = %+v from %s", back, data)
	}

	var s Severity
	if err := s.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("expected error for unknown severity")
	}
}

func TestString(t *testing.T) {
	d := At(ir.Location{File: "a.jpe", Line: 4, Column: 1}, SeverityWarning, CategoryParse, CodeUnknownSection, "unknown section [Buffz]").Suggest("Buffs")
	want := "a.jpe:4:1: warning JPE-P010: unknown section [Buffz] (did you mean Buffs?)"
	if d.String() != want {
		t.Errorf("String = %q, want %q", d.String(), want)
	}
}
