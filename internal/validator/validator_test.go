package validator

import (
	"testing"

	"jpe-compiler/internal/diag"
	"jpe-compiler/internal/ir"
	"jpe-compiler/internal/parser"
)

// project parses each source as its own file and merges the results.
func project(t *testing.T, files map[string]string) *ir.ProjectIR {
	t.Helper()
	p := parser.NewJPEParser()
	var partials []*ir.Partial
	for name, src := range files {
		partial, diags := p.Parse([]byte(src), name)
		if diag.HasAtLeast(diags, diag.SeverityWarning) {
			t.Fatalf("parse %s: %v", name, diags)
		}
		partials = append(partials, partial)
	}
	return ir.Merge(ir.DefaultNamespace, partials)
}

func TestBuffIntensityRange(t *testing.T) {
	tests := []struct {
		intensity string
		wantErr   bool
	}{
		{"0", true},
		{"1", false},
		{"4", false},
		{"5", true},
	}
	for _, tt := range tests {
		t.Run("intensity "+tt.intensity, func(t *testing.T) {
			p := project(t, map[string]string{"buffs.jpe": "[Buff]\nid: glow\ndisplay_name: Glow\nintensity: " + tt.intensity + "\nend\n"})
			got := diag.WithCode(Validate(p), diag.CodeOutOfRange)
			if !tt.wantErr {
				if len(got) != 0 {
					t.Fatalf("unexpected range diagnostics %v", got)
				}
				return
			}
			if len(got) != 1 {
				t.Fatalf("expected exactly one %s, got %v", diag.CodeOutOfRange, got)
			}
			d := got[0]
			if d.Severity != diag.SeverityError || d.Category != diag.CategoryRange {
				t.Errorf("severity/category = %s/%s", d.Severity, d.Category)
			}
			if d.File != "buffs.jpe" || d.Line != 4 {
				t.Errorf("diagnostic at %s:%d, want buffs.jpe:4", d.File, d.Line)
			}
			if d.Subject == nil || d.Subject.Kind != ir.KindBuff {
				t.Errorf("subject = %v", d.Subject)
			}
		})
	}
}

func TestNegativeDurationAndCost(t *testing.T) {
	p := project(t, map[string]string{"a.jpe": `[Interaction]
id: chat
display_name: Chat
duration: -1
end

[Trait]
id: shy
display_name: Shy
cost: -3
end
`})
	got := diag.WithCode(Validate(p), diag.CodeOutOfRange)
	if len(got) != 2 {
		t.Fatalf("expected 2 range diagnostics, got %v", got)
	}
	if got[0].Line != 4 || got[1].Line != 10 {
		t.Errorf("lines = %d, %d", got[0].Line, got[1].Line)
	}
}

func TestInvalidEnumFieldSuggests(t *testing.T) {
	p := project(t, map[string]string{"a.jpe": `[Buff]
id: glow
display_name: Glow
mood: positve
end
`})
	got := diag.WithCode(Validate(p), diag.CodeInvalidEnum)
	if len(got) != 1 {
		t.Fatalf("diagnostics = %v", got)
	}
	if len(got[0].Suggestions) == 0 || got[0].Suggestions[0] != "positive" {
		t.Errorf("suggestions = %v", got[0].Suggestions)
	}
}

func TestUnresolvedReference(t *testing.T) {
	p := project(t, map[string]string{"a.jpe": `[Interaction]
id: chat
display_name: Chat
tests: [is_adlt]
end

[TestSet]
id: is_adult
condition: type:age, min:18
end
`})
	diags := Validate(p)
	got := diag.WithCode(diags, diag.CodeUnresolvedRef)
	if len(got) != 1 {
		t.Fatalf("expected one unresolved reference, got %v", diags)
	}
	d := got[0]
	if d.Severity != diag.SeverityError || d.Line != 4 {
		t.Errorf("unexpected diagnostic %v", d)
	}
	if len(d.Suggestions) == 0 || d.Suggestions[0] != "is_adult" {
		t.Errorf("suggestions = %v", d.Suggestions)
	}
	if len(diag.WithCode(diags, diag.CodeUnusedTestSet)) != 1 {
		t.Errorf("expected the unreferenced test set to be reported")
	}
}

func TestReferencesResolveCaseInsensitively(t *testing.T) {
	p := project(t, map[string]string{"a.jpe": `[Interaction]
id: chat
display_name: Chat
tests: [Is_Adult]
end

[TestSet]
id: is_adult
condition: type:age
end
`})
	diags := Validate(p)
	if n := len(diag.WithCode(diags, diag.CodeUnresolvedRef)); n != 0 {
		t.Errorf("expected reference to resolve, got %v", diags)
	}
	if n := len(diag.WithCode(diags, diag.CodeUnusedTestSet)); n != 0 {
		t.Errorf("referenced test set reported as unused")
	}
}

func TestDuplicateAcrossFiles(t *testing.T) {
	buff := "[Buff]\nid: glow\ndisplay_name: Glow\nend\n"
	p := project(t, map[string]string{"a.jpe": buff, "b.jpe": buff})
	got := diag.WithCode(Validate(p), diag.CodeDuplicateID)
	if len(got) != 1 {
		t.Fatalf("diagnostics = %v", got)
	}
	d := got[0]
	if d.Severity != diag.SeverityCritical || d.File != "b.jpe" {
		t.Errorf("unexpected diagnostic %v", d)
	}
	if len(d.Related) != 2 || d.Related[0].File != "a.jpe" {
		t.Errorf("related = %v", d.Related)
	}
}

func TestMissingRequiredFields(t *testing.T) {
	p := project(t, map[string]string{"a.jpe": `[Buff]
id: glow
end

[Loot]
id: give
action: add_buff
end
`})
	got := diag.WithCode(Validate(p), diag.CodeMissingRequired)
	if len(got) != 2 {
		t.Fatalf("diagnostics = %v", got)
	}
	for _, d := range got {
		if d.Severity != diag.SeverityCritical {
			t.Errorf("severity = %s", d.Severity)
		}
	}
}

func TestLootTargetMustExist(t *testing.T) {
	p := project(t, map[string]string{"a.jpe": `[Interaction]
id: hug
display_name: Hug
loot: [give_glow, train]
end

[Loot]
id: give_glow
action: add_buff
target: happy_glw
end

[Loot]
id: train
action: increase_skill
target: skill:charisma
end

[Buff]
id: happy_glow
display_name: Happy Glow
end
`})
	diags := Validate(p)
	got := diag.WithCode(diags, diag.CodeUnresolvedRef)
	if len(got) != 1 {
		t.Fatalf("expected one unresolved target, got %v", diags)
	}
	if got[0].Line != 10 || len(got[0].Suggestions) == 0 || got[0].Suggestions[0] != "happy_glow" {
		t.Errorf("unexpected diagnostic %v", got[0])
	}
	if n := len(diag.WithCode(diags, diag.CodeOrphanLoot)); n != 0 {
		t.Errorf("referenced loot reported as orphan")
	}
}

func TestLocales(t *testing.T) {
	tests := []struct {
		locale  string
		wantBad bool
		suggest string
	}{
		{"en", false, ""},
		{"en-US", false, ""},
		{"fil", false, ""},
		{"en_us", true, "en-US"},
		{"english", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			p := project(t, map[string]string{"s.jpe": "[String]\nkey: greet\nlocale: " + tt.locale + "\ntext: Hi\nend\n"})
			got := diag.WithCode(Validate(p), diag.CodeBadLocale)
			if !tt.wantBad {
				if len(got) != 0 {
					t.Errorf("unexpected %v", got)
				}
				return
			}
			if len(got) != 1 {
				t.Fatalf("diagnostics = %v", got)
			}
			if got[0].Severity != diag.SeverityWarning || got[0].Line != 3 {
				t.Errorf("unexpected diagnostic %v", got[0])
			}
			if tt.suggest != "" && (len(got[0].Suggestions) == 0 || got[0].Suggestions[0] != tt.suggest) {
				t.Errorf("suggestions = %v, want %s", got[0].Suggestions, tt.suggest)
			}
		})
	}
}

func TestPlaceholderMismatch(t *testing.T) {
	p := project(t, map[string]string{"s.jpe": `[String]
key: greet
locale: fr
text: Bonjour
end

[String]
key: greet
locale: en
text: "Hello {0}, you have %d friends"
end

[String]
key: greet
locale: de
text: "%d Freunde, hallo {0}"
end
`})
	got := diag.WithCode(Validate(p), diag.CodePlaceholders)
	if len(got) != 1 {
		t.Fatalf("expected one placeholder mismatch, got %v", got)
	}
	d := got[0]
	if d.Severity != diag.SeverityWarning || d.Category != diag.CategoryLocale || d.Line != 4 {
		t.Errorf("unexpected diagnostic %v", d)
	}
}

func TestAsymmetricTraitConflict(t *testing.T) {
	p := project(t, map[string]string{"t.jpe": `[Trait]
id: shy
display_name: Shy
conflicts: [outgoing]
end

[Trait]
id: outgoing
display_name: Outgoing
end
`})
	got := diag.WithCode(Validate(p), diag.CodeAsymmetricTrait)
	if len(got) != 1 || got[0].Severity != diag.SeverityCaution {
		t.Fatalf("diagnostics = %v", got)
	}
}

func TestProjectConsistency(t *testing.T) {
	p := project(t, map[string]string{
		"a.jpe": "[Project]\nname: Demo\nversion: one\nend\n",
		"b.jpe": "[Project]\nname: Other\nend\n",
	})
	diags := Validate(p)
	if n := len(diag.WithCode(diags, diag.CodeBadVersion)); n != 1 {
		t.Errorf("bad version diagnostics = %d", n)
	}
	ignored := diag.WithCode(diags, diag.CodeIgnoredProject)
	if len(ignored) != 1 || ignored[0].File != "b.jpe" {
		t.Errorf("ignored project diagnostics = %v", ignored)
	}
}

func TestExtraChecksRunAfterBuiltins(t *testing.T) {
	p := project(t, map[string]string{"a.jpe": "[Buff]\nid: glow\ndisplay_name: Glow\nend\n"})
	called := false
	check := CheckFunc{ID: "no-glow", Fn: func(p *ir.ProjectIR) []diag.Diagnostic {
		called = true
		id, ok := p.Resolve(ir.KindBuff, "glow")
		if !ok {
			return nil
		}
		return []diag.Diagnostic{diag.At(p.Buffs[id].Loc, diag.SeverityWarning, diag.CategoryConsistent, "X-001", "glow is banned")}
	}}
	diags := Validate(p, check)
	if !called {
		t.Fatal("extra check was not run")
	}
	if len(diag.WithCode(diags, "X-001")) != 1 {
		t.Errorf("diagnostics = %v", diags)
	}
}

func TestValidateSortsByLocation(t *testing.T) {
	p := project(t, map[string]string{
		"b.jpe": "[Buff]\nid: b\nintensity: 9\nend\n",
		"a.jpe": "[Buff]\nid: a\nintensity: 9\nend\n",
	})
	diags := Validate(p)
	for i := 1; i < len(diags); i++ {
		if diags[i].Location().Before(diags[i-1].Location()) {
			t.Fatalf("diagnostics not sorted: %v", diags)
		}
	}
}
