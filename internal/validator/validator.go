// Package validator checks a merged ProjectIR for structural and
// cross-reference consistency.
package validator

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"jpe-compiler/internal/diag"
	"jpe-compiler/internal/interpolation"
	"jpe-compiler/internal/ir"

	"github.com/antzucaro/matchr"
	"golang.org/x/mod/semver"
	"golang.org/x/text/language"
)

// Check is an additional validation pass. Plugins register checks that run
// after the built-in ones; they must not mutate the project.
type Check interface {
	Name() string
	Check(p *ir.ProjectIR) []diag.Diagnostic
}

// CheckFunc adapts a function to the Check interface.
type CheckFunc struct {
	ID string
	Fn func(p *ir.ProjectIR) []diag.Diagnostic
}

func (c CheckFunc) Name() string                            { return c.ID }
func (c CheckFunc) Check(p *ir.ProjectIR) []diag.Diagnostic { return c.Fn(p) }

// Validate runs every check to completion and returns all diagnostics,
// sorted by location. It never decides whether the build may continue.
func Validate(p *ir.ProjectIR, extra ...Check) []diag.Diagnostic {
	if p == nil {
		return nil
	}
	var out []diag.Diagnostic
	out = append(out, checkDuplicates(p)...)
	out = append(out, checkRequired(p)...)
	out = append(out, checkRanges(p)...)
	out = append(out, checkReferences(p)...)
	out = append(out, checkLocales(p)...)
	out = append(out, checkConsistency(p)...)
	for _, c := range extra {
		out = append(out, c.Check(p)...)
	}
	diag.Sort(out)
	return out
}

func checkDuplicates(p *ir.ProjectIR) []diag.Diagnostic {
	var out []diag.Diagnostic
	for _, c := range p.Collisions {
		d := diag.At(c.Second, diag.SeverityCritical, diag.CategoryDuplicate, diag.CodeDuplicateID,
			"%s %q is defined twice (first at %s, again at %s)", c.ID.Kind, c.Name, c.First, c.Second)
		d.Related = []ir.Location{c.First, c.Second}
		out = append(out, d.About(c.ID))
	}
	return out
}

func missing(loc ir.Location, kind ir.Kind, name, field string) diag.Diagnostic {
	subject := name
	if subject == "" {
		subject = "(unnamed)"
	}
	return diag.At(loc, diag.SeverityCritical, diag.CategoryRequired, diag.CodeMissingRequired,
		"%s %s is missing required field %q", kind, subject, field)
}

func checkRequired(p *ir.ProjectIR) []diag.Diagnostic {
	var out []diag.Diagnostic
	if m := p.Metadata; m != nil && strings.TrimSpace(m.Name) == "" {
		out = append(out, missing(m.Loc, ir.KindProject, m.ID, "name"))
	}

	for _, e := range p.Unkeyed {
		h := e.Head()
		if s, ok := e.(*ir.LocalizedString); ok {
			if s.Key == "" {
				out = append(out, missing(h.Loc, h.Kind, "", "key"))
			}
			if s.Locale == "" {
				out = append(out, missing(h.Loc, h.Kind, s.Key, "locale"))
			}
			continue
		}
		out = append(out, missing(h.Loc, h.Kind, "", "id"))
	}

	for _, e := range p.All() {
		h := e.Head()
		var fields []string
		switch v := e.(type) {
		case *ir.Interaction:
			if strings.TrimSpace(v.DisplayName) == "" {
				fields = append(fields, "display_name")
			}
		case *ir.Buff:
			if strings.TrimSpace(v.DisplayName) == "" {
				fields = append(fields, "display_name")
			}
		case *ir.Trait:
			if strings.TrimSpace(v.DisplayName) == "" {
				fields = append(fields, "display_name")
			}
		case *ir.EnumDefinition:
			if len(v.Values) == 0 {
				fields = append(fields, "value")
			}
		case *ir.TestSet:
			if len(v.Conditions) == 0 {
				fields = append(fields, "condition")
			}
		case *ir.LootAction:
			if v.Action == "" {
				fields = append(fields, "action")
			}
			if v.Target == "" {
				fields = append(fields, "target")
			}
		case *ir.LocalizedString:
			if !v.Has("text") {
				fields = append(fields, "text")
			}
		}
		for _, f := range fields {
			out = append(out, missing(h.Loc, h.Kind, h.Name, f).About(h.ID))
		}
	}
	return out
}

func outOfRange(h *ir.Header, field, format string, args ...any) diag.Diagnostic {
	return diag.At(h.FieldLoc(field), diag.SeverityError, diag.CategoryRange, diag.CodeOutOfRange,
		"%s %q field %s: %s", h.Kind, h.Name, field, fmt.Sprintf(format, args...)).About(h.ID)
}

func invalid(h *ir.Header, field, got string, allowed ...string) diag.Diagnostic {
	d := diag.At(h.FieldLoc(field), diag.SeverityError, diag.CategoryRange, diag.CodeInvalidEnum,
		"%s %q field %s: %q is not one of %s", h.Kind, h.Name, field, got, strings.Join(allowed, ", ")).About(h.ID)
	return d.Suggest(suggest(got, allowed)...)
}

func checkRanges(p *ir.ProjectIR) []diag.Diagnostic {
	var out []diag.Diagnostic
	for _, e := range p.All() {
		switch v := e.(type) {
		case *ir.Interaction:
			if !v.Type.Valid() {
				out = append(out, invalid(&v.Header, "type", string(v.Type), "social", "object", "autonomous", "looping"))
			}
			if v.Duration < 0 {
				out = append(out, outOfRange(&v.Header, "duration", "must be >= 0, got %g", v.Duration))
			}
		case *ir.Buff:
			if v.Intensity < ir.MinIntensity || v.Intensity > ir.MaxIntensity {
				out = append(out, outOfRange(&v.Header, "intensity", "must be between %d and %d, got %d", ir.MinIntensity, ir.MaxIntensity, v.Intensity))
			}
			if v.Duration < 0 {
				out = append(out, outOfRange(&v.Header, "duration", "must be >= 0, got %g", v.Duration))
			}
			if !v.Mood.Valid() {
				out = append(out, invalid(&v.Header, "mood", string(v.Mood), "positive", "negative", "neutral"))
			}
		case *ir.Trait:
			if v.Cost < 0 {
				out = append(out, outOfRange(&v.Header, "cost", "must be >= 0, got %g", v.Cost))
			}
		case *ir.EnumDefinition:
			out = append(out, checkEnumValues(v)...)
		case *ir.TestSet:
			for i, c := range v.Conditions {
				if strings.TrimSpace(c.Type) == "" {
					d := diag.At(c.Loc, diag.SeverityError, diag.CategoryRange, diag.CodeInvalidEnum,
						"TestSet %q condition %d has no type", v.Name, i+1)
					out = append(out, d.About(v.ID))
				}
			}
		case *ir.LootAction:
			if v.Action != "" && !v.Action.Valid() {
				out = append(out, invalid(&v.Header, "action", string(v.Action),
					"modify_buff", "add_buff", "remove_buff", "add_trait", "remove_trait", "increase_skill", "decrease_skill"))
				continue
			}
			want, resolvable := v.Action.TargetKind()
			if v.TargetKind != "" && resolvable && v.TargetKind != want {
				out = append(out, outOfRange(&v.Header, "target", "action %s needs a %s target, got a %s", v.Action, want, v.TargetKind))
			}
		}
	}
	return out
}

func checkEnumValues(e *ir.EnumDefinition) []diag.Diagnostic {
	var out []diag.Diagnostic
	byValue := make(map[int64]ir.EnumValue)
	byName := make(map[string]ir.EnumValue)
	for _, v := range e.Values {
		if prev, dup := byValue[v.Value]; dup {
			d := diag.At(v.Loc, diag.SeverityError, diag.CategoryRange, diag.CodeOutOfRange,
				"Enum %q: value %d of %s is already used by %s", e.Name, v.Value, v.Name, prev.Name)
			d.Related = []ir.Location{prev.Loc}
			out = append(out, d.About(e.ID))
		} else {
			byValue[v.Value] = v
		}
		key := strings.ToUpper(v.Name)
		if prev, dup := byName[key]; dup {
			d := diag.At(v.Loc, diag.SeverityError, diag.CategoryRange, diag.CodeOutOfRange,
				"Enum %q: name %s is declared twice", e.Name, v.Name)
			d.Related = []ir.Location{prev.Loc}
			out = append(out, d.About(e.ID))
		} else {
			byName[key] = v
		}
	}
	return out
}

func checkReferences(p *ir.ProjectIR) []diag.Diagnostic {
	var out []diag.Diagnostic
	for _, e := range p.All() {
		h := e.Head()
		for _, ref := range e.References() {
			if _, ok := p.Resolve(ref.Kind, ref.Name); ok {
				continue
			}
			d := diag.At(ref.Loc, diag.SeverityError, diag.CategoryReference, diag.CodeUnresolvedRef,
				"%s %q field %s references unknown %s %q", h.Kind, h.Name, ref.Field, ref.Kind, ref.Name)
			out = append(out, d.About(h.ID).Suggest(suggest(ref.Name, p.Names(ref.Kind))...))
		}
	}
	return out
}

// suggestThreshold is the minimum Jaro-Winkler score for a "did you mean".
const suggestThreshold = 0.85

func suggest(got string, candidates []string) []string {
	type hit struct {
		name  string
		score float64
	}
	var hits []hit
	for _, c := range candidates {
		if s := matchr.JaroWinkler(strings.ToLower(got), strings.ToLower(c), false); s >= suggestThreshold {
			hits = append(hits, hit{c, s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].name < hits[j].name
	})
	var out []string
	for i := 0; i < len(hits) && i < 3; i++ {
		out = append(out, hits[i].name)
	}
	return out
}

var localePattern = regexp.MustCompile(`^[a-z]{2,3}(-[A-Z]{2})?$`)

func checkLocales(p *ir.ProjectIR) []diag.Diagnostic {
	var out []diag.Diagnostic
	for _, e := range p.OfKind(ir.KindLocalizedString) {
		s := e.(*ir.LocalizedString)
		if localePattern.MatchString(s.Locale) {
			if _, err := language.Parse(s.Locale); err == nil {
				continue
			}
		}
		d := diag.At(s.FieldLoc("locale"), diag.SeverityWarning, diag.CategoryLocale, diag.CodeBadLocale,
			"string %q has malformed locale %q; expected xx, xxx or xx-XX", s.Key, s.Locale).About(s.ID)
		if fixed := normalizeLocale(s.Locale); fixed != "" && fixed != s.Locale {
			d = d.Suggest(fixed)
		}
		out = append(out, d)
	}
	return append(out, checkPlaceholders(p)...)
}

// checkPlaceholders compares the runtime placeholders of every translation
// of a key against a reference translation: English when present,
// otherwise the alphabetically first locale.
func checkPlaceholders(p *ir.ProjectIR) []diag.Diagnostic {
	byKey := make(map[string][]*ir.LocalizedString)
	var keys []string
	for _, e := range p.OfKind(ir.KindLocalizedString) {
		s := e.(*ir.LocalizedString)
		if _, ok := byKey[s.Key]; !ok {
			keys = append(keys, s.Key)
		}
		byKey[s.Key] = append(byKey[s.Key], s)
	}
	sort.Strings(keys)

	var out []diag.Diagnostic
	for _, key := range keys {
		group := byKey[key]
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].Locale < group[j].Locale })
		ref := group[0]
		for _, s := range group {
			if s.Locale == "en" || strings.HasPrefix(s.Locale, "en-") {
				ref = s
				break
			}
		}
		want := interpolation.Signature(ref.Text)
		for _, s := range group {
			if s == ref || interpolation.Signature(s.Text) == want {
				continue
			}
			d := diag.At(s.FieldLoc("text"), diag.SeverityWarning, diag.CategoryLocale, diag.CodePlaceholders,
				"string %q (%s) has placeholders [%s] but the %s text has [%s]",
				key, s.Locale, interpolation.Signature(s.Text), ref.Locale, want)
			out = append(out, d.About(s.ID))
		}
	}
	return out
}

// normalizeLocale proposes the canonical spelling of a near-miss locale such
// as "en_us" or "EN-us".
func normalizeLocale(s string) string {
	tag, err := language.Parse(strings.ReplaceAll(s, "_", "-"))
	if err != nil {
		return ""
	}
	base, _ := tag.Base()
	region, conf := tag.Region()
	if conf == language.Exact {
		return base.String() + "-" + region.String()
	}
	return base.String()
}

func checkConsistency(p *ir.ProjectIR) []diag.Diagnostic {
	var out []diag.Diagnostic

	if m := p.Metadata; m != nil && m.Version != "" && !semver.IsValid("v"+strings.TrimPrefix(m.Version, "v")) {
		out = append(out, diag.At(m.FieldLoc("version"), diag.SeverityWarning, diag.CategoryConsistent, diag.CodeBadVersion,
			"project version %q is not a semantic version", m.Version).Suggest("1.0.0"))
	}
	for _, extra := range p.ExtraProjects {
		d := diag.At(extra.Loc, diag.SeverityWarning, diag.CategoryConsistent, diag.CodeIgnoredProject,
			"additional [Project] section ignored; the one at %s is used", p.Metadata.Loc)
		out = append(out, d)
	}

	for _, e := range p.OfKind(ir.KindTrait) {
		t := e.(*ir.Trait)
		for _, ref := range t.Conflicts {
			otherID, ok := p.Resolve(ir.KindTrait, ref.Name)
			if !ok || otherID == t.ID {
				continue
			}
			other := p.Traits[otherID]
			if !conflictsWith(other, t.Name) {
				d := diag.At(ref.Loc, diag.SeverityCaution, diag.CategoryConsistent, diag.CodeAsymmetricTrait,
					"trait %q conflicts with %q but %q does not list %q", t.Name, other.Name, other.Name, t.Name)
				out = append(out, d.About(t.ID))
			}
		}
	}

	usedLoot := make(map[ir.ResourceID]bool)
	usedTests := make(map[ir.ResourceID]bool)
	for _, e := range p.OfKind(ir.KindInteraction) {
		it := e.(*ir.Interaction)
		for _, ref := range it.Loot {
			if id, ok := p.Resolve(ir.KindLootAction, ref.Name); ok {
				usedLoot[id] = true
			}
		}
		for _, ref := range it.Tests {
			if id, ok := p.Resolve(ir.KindTestSet, ref.Name); ok {
				usedTests[id] = true
			}
		}
	}
	for _, e := range p.OfKind(ir.KindLootAction) {
		if h := e.Head(); !usedLoot[h.ID] {
			out = append(out, diag.At(h.Loc, diag.SeverityInfo, diag.CategoryConsistent, diag.CodeOrphanLoot,
				"loot action %q is not referenced by any interaction", h.Name).About(h.ID))
		}
	}
	for _, e := range p.OfKind(ir.KindTestSet) {
		if h := e.Head(); !usedTests[h.ID] {
			out = append(out, diag.At(h.Loc, diag.SeverityInfo, diag.CategoryConsistent, diag.CodeUnusedTestSet,
				"test set %q is not referenced by any interaction", h.Name).About(h.ID))
		}
	}
	return out
}

func conflictsWith(t *ir.Trait, name string) bool {
	for _, ref := range t.Conflicts {
		if strings.EqualFold(ref.Name, name) {
			return true
		}
	}
	return false
}
