package parser

import (
	"fmt"
	"strconv"
	"strings"

	"jpe-compiler/internal/diag"
	"jpe-compiler/internal/ir"
)

// builder converts one section's properties into an IR entity. A conversion
// error marks the section malformed and the entity is dropped.
type builder struct {
	st   *parseState
	sec  *section
	ok   bool
	used map[string]bool
}

func build(st *parseState, sec *section) {
	b := &builder{st: st, sec: sec, ok: true, used: make(map[string]bool)}
	var e ir.Entity
	switch sec.kind {
	case ir.KindProject:
		meta := b.project()
		b.warnUnknown()
		if b.ok {
			st.partial.Projects = append(st.partial.Projects, meta)
		}
		return
	case ir.KindInteraction:
		e = b.interaction()
	case ir.KindBuff:
		e = b.buff()
	case ir.KindTrait:
		e = b.trait()
	case ir.KindEnum:
		e = b.enum()
	case ir.KindTestSet:
		e = b.testSet()
	case ir.KindLootAction:
		e = b.loot()
	case ir.KindLocalizedString:
		e = b.localized()
	default:
		e = b.generic()
	}
	b.warnUnknown()
	if b.ok {
		st.partial.Entities = append(st.partial.Entities, e)
	}
}

func (b *builder) fail(loc ir.Location, code, format string, args ...any) {
	b.ok = false
	b.st.errorf(loc, code, format, args...)
}

func (b *builder) get(key string) (prop, bool) {
	b.used[key] = true
	p, ok := b.sec.props[key]
	return p, ok
}

func (b *builder) fields() map[string]ir.Location {
	out := make(map[string]ir.Location, len(b.sec.props)+len(b.sec.repeated))
	for k, p := range b.sec.props {
		out[k] = p.loc
	}
	for k, ps := range b.sec.repeated {
		out[k] = ps[0].loc
	}
	return out
}

func (b *builder) header() ir.Header {
	h := ir.Header{
		Kind:   b.sec.kind,
		Name:   b.str("id"),
		Loc:    b.sec.loc,
		Fields: b.fields(),
	}
	if p, ok := b.get("instance_id"); ok {
		s, _ := b.scalar(p.val, "instance_id")
		n, err := strconv.ParseUint(s, 0, 64)
		if err != nil || n == 0 {
			b.fail(p.val.loc, diag.CodeBadValue, "instance_id must be a positive 64-bit integer, got %q", s)
		}
		h.Instance = n
	}
	return h
}

func (b *builder) scalar(v value, key string) (string, bool) {
	switch v.kind {
	case valScalar, valQuoted:
		return v.text, true
	}
	b.fail(v.loc, diag.CodeBadValue, "%s must be a single value, got a %s", key, v.kind)
	return "", false
}

func (b *builder) str(key string) string {
	p, ok := b.get(key)
	if !ok {
		return ""
	}
	s, _ := b.scalar(p.val, key)
	return s
}

func (b *builder) float(key string, def float64) float64 {
	p, ok := b.get(key)
	if !ok {
		return def
	}
	s, ok := b.scalar(p.val, key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		b.fail(p.val.loc, diag.CodeBadValue, "%s must be a number, got %q", key, s)
		return def
	}
	return f
}

func (b *builder) integer(key string, def int64) int64 {
	p, ok := b.get(key)
	if !ok {
		return def
	}
	s, ok := b.scalar(p.val, key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		b.fail(p.val.loc, diag.CodeBadValue, "%s must be an integer, got %q", key, s)
		return def
	}
	return n
}

func parseBool(s string) (bool, error) {
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("expected true or false, got %q", s)
}

// list returns the items of a list-valued property. A single scalar counts as
// a one-item list.
func (b *builder) list(key string) []value {
	p, ok := b.get(key)
	if !ok {
		return nil
	}
	switch p.val.kind {
	case valList:
		return p.val.items
	case valObject:
		b.fail(p.val.loc, diag.CodeBadValue, "%s must be a list, got an object", key)
		return nil
	}
	if p.val.isEmpty() {
		return nil
	}
	return []value{p.val}
}

// refs reads a list of entity names into references of kind.
func (b *builder) refs(key string, kind ir.Kind) []ir.Ref {
	var out []ir.Ref
	for _, item := range b.list(key) {
		name, ok := b.scalar(item, key)
		if !ok {
			continue
		}
		out = append(out, ir.Ref{Kind: kind, Name: name, Field: key, Loc: item.loc})
	}
	return out
}

// maps collects repeated inline-map properties and list-of-map properties.
func (b *builder) maps(single, plural, bareKey string) [][]prop {
	var vals []value
	b.used[single] = true
	for _, p := range b.sec.repeated[single] {
		vals = append(vals, p.val)
	}
	if p, ok := b.sec.props[single]; ok {
		vals = append(vals, p.val)
	}
	vals = append(vals, b.list(plural)...)

	var out [][]prop
	for _, v := range vals {
		m, err := inlineMap(v, bareKey)
		if err != nil {
			b.fail(ir.Location{File: v.loc.File, Line: v.loc.Line, Column: err.col}, err.code, "%s", err.msg)
			continue
		}
		out = append(out, m)
	}
	return out
}

func (b *builder) warnUnknown() {
	known := knownKeys[b.sec.kind]
	if known == nil {
		return
	}
	for _, key := range b.sec.order {
		if b.used[key] {
			continue
		}
		p := b.sec.props[key]
		d := diag.At(p.loc, diag.SeverityWarning, diag.CategoryParse, diag.CodeUnknownProperty,
			"unknown property %q in [%s] section ignored", key, b.sec.kind)
		b.st.report(d.Suggest(closest(key, known)...))
	}
}

var knownKeys = map[ir.Kind][]string{
	ir.KindProject:         {"name", "id", "version", "author", "game_version", "namespace"},
	ir.KindInteraction:     {"id", "instance_id", "display_name", "description", "type", "duration", "participant", "participants", "tests", "loot", "animation", "sound"},
	ir.KindBuff:            {"id", "instance_id", "display_name", "description", "mood", "intensity", "duration", "mood_delta"},
	ir.KindTrait:           {"id", "instance_id", "display_name", "description", "category", "cost", "conflicts", "interactions"},
	ir.KindEnum:            {"id", "instance_id", "value", "values"},
	ir.KindTestSet:         {"id", "instance_id", "condition", "conditions"},
	ir.KindLootAction:      {"id", "instance_id", "action", "target", "amount"},
	ir.KindLocalizedString: {"key", "locale", "text"},
}

func (b *builder) project() *ir.ProjectMetadata {
	m := &ir.ProjectMetadata{
		Name:        b.str("name"),
		ID:          b.str("id"),
		Version:     b.str("version"),
		Author:      b.str("author"),
		GameVersion: b.str("game_version"),
		Namespace:   b.str("namespace"),
		Loc:         b.sec.loc,
		Fields:      b.fields(),
	}
	if m.Namespace != "" && !keyPattern.MatchString(m.Namespace) {
		b.fail(m.FieldLoc("namespace"), diag.CodeBadValue, "namespace %q must be an identifier", m.Namespace)
	}
	return m
}

func (b *builder) interaction() ir.Entity {
	it := &ir.Interaction{
		Header:      b.header(),
		DisplayName: b.str("display_name"),
		Description: b.str("description"),
		Type:        ir.InteractionType(strings.ToLower(b.str("type"))),
		Duration:    b.float("duration", 0),
		Tests:       b.refs("tests", ir.KindTestSet),
		Loot:        b.refs("loot", ir.KindLootAction),
		Animation:   b.str("animation"),
		Sound:       b.str("sound"),
	}
	if it.Type == "" {
		it.Type = ir.InteractionSocial
	}
	for _, m := range b.maps("participant", "participants", "role") {
		var part ir.Participant
		for _, f := range m {
			s, _ := b.scalar(f.val, "participant."+f.key)
			switch f.key {
			case "role":
				part.Role = s
			case "description":
				part.Description = s
			default:
				b.st.warnf(f.loc, diag.CodeUnknownProperty, "unknown participant field %q ignored", f.key)
			}
		}
		it.Participants = append(it.Participants, part)
	}
	return it
}

func (b *builder) buff() ir.Entity {
	bf := &ir.Buff{
		Header:      b.header(),
		DisplayName: b.str("display_name"),
		Description: b.str("description"),
		Mood:        ir.MoodPolarity(strings.ToLower(b.str("mood"))),
		Intensity:   int(b.integer("intensity", ir.MinIntensity)),
		Duration:    b.float("duration", 0),
		MoodDelta:   int(b.integer("mood_delta", 0)),
	}
	if bf.Mood == "" {
		bf.Mood = ir.MoodNeutral
	}
	return bf
}

func (b *builder) trait() ir.Entity {
	return &ir.Trait{
		Header:       b.header(),
		DisplayName:  b.str("display_name"),
		Description:  b.str("description"),
		Category:     b.str("category"),
		Cost:         b.float("cost", 0),
		Conflicts:    b.refs("conflicts", ir.KindTrait),
		Interactions: b.refs("interactions", ir.KindInteraction),
	}
}

func (b *builder) enum() ir.Entity {
	en := &ir.EnumDefinition{Header: b.header()}

	var entries []value
	b.used["value"] = true
	for _, p := range b.sec.repeated["value"] {
		entries = append(entries, p.val)
	}
	if p, ok := b.get("values"); ok {
		switch p.val.kind {
		case valObject:
			for _, f := range p.val.fields {
				n, ok := b.enumNumber(f.val)
				if ok {
					en.Values = append(en.Values, ir.EnumValue{Name: f.key, Value: n, Loc: f.loc})
				}
			}
		case valList:
			entries = append(entries, p.val.items...)
		default:
			if !p.val.isEmpty() {
				entries = append(entries, p.val)
			}
		}
	}
	for _, v := range entries {
		if ev, ok := b.enumEntry(v); ok {
			en.Values = append(en.Values, ev)
		}
	}
	return en
}

// enumEntry accepts "NAME = 3" or "name:NAME, value:3".
func (b *builder) enumEntry(v value) (ir.EnumValue, bool) {
	if v.kind == valScalar {
		if name, num, found := strings.Cut(v.text, "="); found {
			name = strings.TrimSpace(name)
			n, ok := b.enumNumber(value{kind: valScalar, text: strings.TrimSpace(num), loc: v.loc})
			if name == "" {
				b.fail(v.loc, diag.CodeBadValue, "enum value is missing a name")
				return ir.EnumValue{}, false
			}
			return ir.EnumValue{Name: name, Value: n, Loc: v.loc}, ok
		}
	}
	m, err := inlineMap(v, "")
	if err != nil {
		b.fail(v.loc, err.code, "enum value must be 'NAME = number' or 'name:NAME, value:number': %s", err.msg)
		return ir.EnumValue{}, false
	}
	ev := ir.EnumValue{Loc: v.loc}
	var haveValue, ok bool
	for _, f := range m {
		switch f.key {
		case "name":
			ev.Name, _ = b.scalar(f.val, "name")
		case "value":
			ev.Value, ok = b.enumNumber(f.val)
			if !ok {
				return ev, false
			}
			haveValue = true
		}
	}
	if ev.Name == "" || !haveValue {
		b.fail(v.loc, diag.CodeBadValue, "enum value needs both a name and a value")
		return ev, false
	}
	return ev, true
}

func (b *builder) enumNumber(v value) (int64, bool) {
	s, ok := b.scalar(v, "enum value")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		b.fail(v.loc, diag.CodeBadValue, "enum value must be an integer, got %q", s)
		return 0, false
	}
	return n, true
}

func (b *builder) testSet() ir.Entity {
	ts := &ir.TestSet{Header: b.header()}
	for _, m := range b.maps("condition", "conditions", "type") {
		cond := ir.TestCondition{Params: make(map[string]string)}
		for i, f := range m {
			if i == 0 {
				cond.Loc = f.loc
			}
			s, _ := b.scalar(f.val, "condition."+f.key)
			switch f.key {
			case "type":
				cond.Type = s
			case "negate":
				neg, err := parseBool(s)
				if err != nil {
					b.fail(f.val.loc, diag.CodeBadValue, "negate: %v", err)
				}
				cond.Negate = neg
			default:
				cond.Params[f.key] = s
			}
		}
		ts.Conditions = append(ts.Conditions, cond)
	}
	return ts
}

func (b *builder) loot() ir.Entity {
	la := &ir.LootAction{
		Header: b.header(),
		Action: ir.LootKind(strings.ToLower(b.str("action"))),
		Amount: b.float("amount", 0),
	}
	target := b.str("target")
	if prefix, name, found := strings.Cut(target, ":"); found {
		switch strings.ToLower(strings.TrimSpace(prefix)) {
		case "buff":
			la.TargetKind = ir.KindBuff
		case "trait":
			la.TargetKind = ir.KindTrait
		case "skill":
		default:
			b.fail(la.FieldLoc("target"), diag.CodeBadValue, "unknown target prefix %q; use buff: or trait:", prefix)
		}
		target = strings.TrimSpace(name)
	} else if k, ok := la.Action.TargetKind(); ok {
		la.TargetKind = k
	}
	la.Target = target
	return la
}

func (b *builder) localized() ir.Entity {
	s := &ir.LocalizedString{
		Key:    b.str("key"),
		Locale: b.str("locale"),
		Text:   b.str("text"),
	}
	s.Header = ir.Header{
		Kind:   ir.KindLocalizedString,
		Name:   ir.StringName(s.Key, s.Locale),
		Loc:    b.sec.loc,
		Fields: b.fields(),
	}
	return s
}

func (b *builder) generic() ir.Entity {
	g := &ir.Generic{Header: b.header(), Props: make(map[string]string)}
	for _, key := range b.sec.order {
		if key == "id" || key == "instance_id" {
			continue
		}
		p := b.sec.props[key]
		switch p.val.kind {
		case valScalar, valQuoted:
			g.Props[key] = p.val.text
		case valList:
			var items []string
			for _, it := range p.val.items {
				s, _ := b.scalar(it, key)
				items = append(items, s)
			}
			g.Props[key] = strings.Join(items, ",")
		default:
			b.fail(p.val.loc, diag.CodeBadValue, "%s: nested objects are not supported in [%s] sections", key, b.sec.kind)
		}
	}
	return g
}
