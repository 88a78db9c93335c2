package parser

import (
	"sort"
	"strings"

	"jpe-compiler/internal/diag"
	"jpe-compiler/internal/ir"
	"jpe-compiler/internal/textutil"

	"github.com/antzucaro/matchr"
)

// JPEParser parses "Just Plain English" section files.
type JPEParser struct {
	// extra maps lowercased section names to plugin-registered kinds.
	extra map[string]ir.Kind
}

// Option configures a JPEParser.
type Option func(*JPEParser)

// WithKinds lets sections named after plugin kinds parse into ir.Generic
// entities instead of being ignored as unknown.
func WithKinds(kinds ...ir.Kind) Option {
	return func(p *JPEParser) {
		for _, k := range kinds {
			p.extra[strings.ToLower(string(k))] = k
		}
	}
}

func NewJPEParser(opts ...Option) *JPEParser {
	p := &JPEParser{extra: make(map[string]ir.Kind)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *JPEParser) CanParse(ext string) bool {
	return strings.EqualFold(ext, Extension)
}

// Parse never fails: malformed sections are reported and skipped up to the
// next boundary so the rest of the file still yields entities.
func (p *JPEParser) Parse(src []byte, file string) (*ir.Partial, []diag.Diagnostic) {
	st := &parseState{
		parser:  p,
		file:    file,
		lines:   splitLines(src),
		partial: &ir.Partial{File: file},
	}
	for st.pos < len(st.lines) {
		st.step()
	}
	st.close()
	return st.partial, st.diags
}

var sectionKinds = map[string]ir.Kind{
	"project":           ir.KindProject,
	"interaction":       ir.KindInteraction,
	"interactions":      ir.KindInteraction,
	"buff":              ir.KindBuff,
	"buffs":             ir.KindBuff,
	"trait":             ir.KindTrait,
	"traits":            ir.KindTrait,
	"enum":              ir.KindEnum,
	"enums":             ir.KindEnum,
	"enumdefinition":    ir.KindEnum,
	"enumdefinitions":   ir.KindEnum,
	"testset":           ir.KindTestSet,
	"testsets":          ir.KindTestSet,
	"test_set":          ir.KindTestSet,
	"test_sets":         ir.KindTestSet,
	"loot":              ir.KindLootAction,
	"lootaction":        ir.KindLootAction,
	"lootactions":       ir.KindLootAction,
	"loot_action":       ir.KindLootAction,
	"loot_actions":      ir.KindLootAction,
	"string":            ir.KindLocalizedString,
	"strings":           ir.KindLocalizedString,
	"localizedstring":   ir.KindLocalizedString,
	"localizedstrings":  ir.KindLocalizedString,
	"localized_string":  ir.KindLocalizedString,
	"localized_strings": ir.KindLocalizedString,
}

func (p *JPEParser) lookupKind(name string) (ir.Kind, bool) {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", ""))
	if k, ok := sectionKinds[key]; ok {
		return k, true
	}
	if k, ok := p.extra[key]; ok {
		return k, true
	}
	if k, ok := p.extra[strings.TrimSuffix(key, "s")]; ok {
		return k, true
	}
	return "", false
}

// KindNamed resolves a section-style kind name such as "interaction",
// "Buffs" or "loot_action" to its IR kind.
func (p *JPEParser) KindNamed(name string) (ir.Kind, bool) {
	return p.lookupKind(name)
}

// suggestKinds returns the closest known section names for an unknown one.
func (p *JPEParser) suggestKinds(name string) []string {
	canonical := []string{"Project", "Interactions", "Buffs", "Traits", "Enums", "TestSets", "LootActions", "Strings"}
	for _, k := range p.extra {
		canonical = append(canonical, string(k))
	}
	return closest(name, canonical)
}

// closest ranks candidates by Jaro-Winkler similarity to s.
func closest(s string, candidates []string) []string {
	type scored struct {
		name  string
		score float64
	}
	var hits []scored
	for _, c := range candidates {
		score := matchr.JaroWinkler(strings.ToLower(s), strings.ToLower(c), false)
		if score >= 0.8 {
			hits = append(hits, scored{c, score})
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

type skipMode int

const (
	skipNone skipMode = iota
	// skipRecover follows a syntax error and stops at any section boundary,
	// including a blank line.
	skipRecover
	// skipIgnore drops the body of an unknown section; blank lines do not
	// end it.
	skipIgnore
)

type parseState struct {
	parser  *JPEParser
	file    string
	lines   []srcLine
	pos     int
	diags   []diag.Diagnostic
	partial *ir.Partial

	cur *section
	// pending is the kind a sibling entity takes after '---'.
	pending ir.Kind
	// lastKind is the kind of the most recently closed section.
	lastKind    ir.Kind
	mode        skipMode
	recoverKind ir.Kind
	// resumed is set when a blank line ended recovery; the next block opens
	// an implicit sibling that is kept only if it names itself.
	resumed bool
	// indentStyle is the first indentation character seen in the file.
	indentStyle byte
}

func (st *parseState) loc(l srcLine, col int) ir.Location {
	return ir.Location{File: st.file, Line: l.num, Column: col}
}

func (st *parseState) report(d diag.Diagnostic) {
	st.diags = append(st.diags, d)
}

func (st *parseState) errorf(loc ir.Location, code, format string, args ...any) {
	st.report(diag.At(loc, diag.SeverityError, diag.CategoryParse, code, format, args...))
}

func (st *parseState) warnf(loc ir.Location, code, format string, args ...any) {
	st.report(diag.At(loc, diag.SeverityWarning, diag.CategoryParse, code, format, args...))
}

func (st *parseState) step() {
	l := st.lines[st.pos]
	if st.mode != skipNone {
		st.skip(l)
		return
	}
	if l.blank || l.isComment() {
		st.pos++
		return
	}
	if !st.checkIndent(l) {
		st.pos++
		st.abandon()
		return
	}

	top := l.indent == 0
	switch {
	case top && l.text == "end":
		if st.cur == nil && !st.resumed {
			st.errorf(st.loc(l, 1), diag.CodeUnexpectedContent, "'end' outside of a section")
		}
		st.close()
		st.pending = ""
		st.resumed = false
		st.pos++
	case top && l.text == "---":
		if st.cur != nil {
			st.close()
		}
		st.pending = st.lastKind
		st.resumed = false
		st.pos++
	case top && strings.HasPrefix(l.text, "["):
		st.close()
		st.pending = ""
		st.resumed = false
		st.pos++
		st.header(l)
	default:
		if st.cur == nil {
			if st.pending == "" || !top {
				st.errorf(st.loc(l, l.indent+1), diag.CodeUnexpectedContent, "content outside of a section: %q", textutil.Truncate(l.text, 40))
				st.pos++
				st.abandon()
				return
			}
			st.open(st.pending, st.loc(l, 1))
			st.cur.implicit = st.resumed
			st.pending = ""
			st.resumed = false
		}
		if !top {
			st.errorf(st.loc(l, l.indent+1), diag.CodeMalformedProperty, "unexpected indentation; nested values must follow a 'key:' line")
			st.pos++
			st.abandon()
			return
		}
		st.property(l)
	}
}

// checkIndent rejects mixed tab/space indentation and odd space counts.
func (st *parseState) checkIndent(l srcLine) bool {
	if l.ws == "" {
		return true
	}
	if strings.ContainsRune(l.ws, ' ') && strings.ContainsRune(l.ws, '\t') {
		st.errorf(st.loc(l, 1), diag.CodeMixedIndent, "indentation mixes tabs and spaces")
		return false
	}
	style := l.ws[0]
	if st.indentStyle == 0 {
		st.indentStyle = style
	} else if st.indentStyle != style {
		st.errorf(st.loc(l, 1), diag.CodeMixedIndent, "indentation uses %s but the file is indented with %s", indentName(style), indentName(st.indentStyle))
		return false
	}
	if style == ' ' && len(l.ws)%2 != 0 {
		st.errorf(st.loc(l, 1), diag.CodeOddIndent, "indentation of %d spaces is not a multiple of two", len(l.ws))
		return false
	}
	return true
}

func indentName(c byte) string {
	if c == '\t' {
		return "tabs"
	}
	return "spaces"
}

// abandon drops the section in progress and skips to the next boundary.
func (st *parseState) abandon() {
	st.recoverKind = st.pending
	if st.cur != nil {
		st.recoverKind = st.cur.kind
		st.cur = nil
	}
	st.pending = ""
	st.resumed = false
	st.mode = skipRecover
}

func (st *parseState) skip(l srcLine) {
	top := l.indent == 0
	switch {
	case l.blank && st.mode == skipRecover:
		st.pending = st.recoverKind
		st.resumed = true
		st.pos++
	case top && l.text == "end":
		st.lastKind = st.recoverKind
		st.pos++
	case top && l.text == "---":
		st.lastKind = st.recoverKind
		st.pending = st.recoverKind
		st.pos++
	case top && strings.HasPrefix(l.text, "["):
		// Headers are processed, not consumed, by the skip.
	default:
		st.pos++
		return
	}
	st.mode = skipNone
	st.recoverKind = ""
}

func (st *parseState) header(l srcLine) {
	end := strings.IndexByte(l.text, ']')
	if end < 0 {
		st.errorf(st.loc(l, 1), diag.CodeMalformedHeader, "section header is missing its closing ']'")
		st.abandon()
		return
	}
	if rest := strings.TrimSpace(l.text[end+1:]); rest != "" {
		st.errorf(st.loc(l, end+2), diag.CodeMalformedHeader, "unexpected %q after section header", rest)
		st.abandon()
		return
	}
	name := strings.TrimSpace(l.text[1:end])
	if name == "" {
		st.errorf(st.loc(l, 1), diag.CodeMalformedHeader, "empty section header")
		st.abandon()
		return
	}
	kind, ok := st.parser.lookupKind(name)
	if !ok {
		d := diag.At(st.loc(l, 2), diag.SeverityWarning, diag.CategoryParse, diag.CodeUnknownSection,
			"unknown section kind %q ignored", name)
		st.report(d.Suggest(st.parser.suggestKinds(name)...))
		st.mode = skipIgnore
		st.recoverKind = ""
		return
	}
	st.open(kind, st.loc(l, 1))
}

func (st *parseState) open(kind ir.Kind, loc ir.Location) {
	st.cur = &section{
		kind:     kind,
		loc:      loc,
		props:    make(map[string]prop),
		repeated: make(map[string][]prop),
	}
}

// close builds the entity for the current section, if any. An implicit
// sibling without its naming key is the tail of the section that failed
// before it and is dropped with that section.
func (st *parseState) close() {
	if st.cur == nil {
		return
	}
	sec := st.cur
	st.cur = nil
	st.lastKind = sec.kind
	if sec.implicit && !sec.named() {
		return
	}
	build(st, sec)
}

func (st *parseState) property(l srcLine) {
	key, rest, offset, ok := splitKey(l.text)
	st.pos++
	if !ok {
		st.errorf(st.loc(l, l.indent+1), diag.CodeMalformedProperty, "expected 'key: value', got %q", l.text)
		st.abandon()
		return
	}
	keyLoc := st.loc(l, l.indent+1)
	valLoc := st.loc(l, len(l.ws)+offset+1)

	var v value
	if rest == "" {
		nested, ok := st.nested(l.indent)
		if !ok {
			st.abandon()
			return
		}
		v = nested
		if v.isEmpty() {
			v.loc = valLoc
		}
	} else {
		dv, err := decodeInline(rest, valLoc)
		if err != nil {
			st.errorf(st.loc(l, err.col), err.code, "%s", err.msg)
			st.abandon()
			return
		}
		v = dv
	}
	st.cur.set(st, prop{key: key, val: v, loc: keyLoc})
}

// nextContentIndent returns the indent of the next non-blank, non-comment
// line after pos, or -1 at end of input.
func (st *parseState) nextContentIndent(from int) int {
	for i := from; i < len(st.lines); i++ {
		if l := st.lines[i]; !l.blank && !l.isComment() {
			return l.indent
		}
	}
	return -1
}

// nested reads the block indented under a 'key:' line at base. It returns an
// empty scalar when nothing is indented below the key.
func (st *parseState) nested(base int) (value, bool) {
	v := value{kind: valScalar}
	child := -1
	for st.pos < len(st.lines) {
		l := st.lines[st.pos]
		if l.isComment() {
			st.pos++
			continue
		}
		if l.blank {
			if st.nextContentIndent(st.pos+1) > base && child >= 0 {
				st.pos++
				continue
			}
			break
		}
		if l.indent <= base {
			break
		}
		if !st.checkIndent(l) {
			st.pos++
			return v, false
		}
		if child < 0 {
			if l.indent != base+2 {
				st.errorf(st.loc(l, 1), diag.CodeOddIndent, "nested block must be indented two spaces deeper than its key")
				st.pos++
				return v, false
			}
			child = l.indent
			v.loc = st.loc(l, len(l.ws)+1)
		}
		if l.indent != child {
			st.errorf(st.loc(l, 1), diag.CodeOddIndent, "inconsistent indentation in nested block")
			st.pos++
			return v, false
		}

		if l.text == "-" || strings.HasPrefix(l.text, "- ") {
			if v.kind == valObject {
				st.errorf(st.loc(l, len(l.ws)+1), diag.CodeBadList, "list item inside an object block")
				st.pos++
				return v, false
			}
			v.kind = valList
			item, ok := st.listItem(l)
			if !ok {
				return v, false
			}
			v.items = append(v.items, item)
			continue
		}

		if v.kind == valList {
			st.errorf(st.loc(l, len(l.ws)+1), diag.CodeBadList, "expected '- item' in list block, got %q", l.text)
			st.pos++
			return v, false
		}
		v.kind = valObject
		key, rest, offset, ok := splitKey(l.text)
		st.pos++
		if !ok {
			st.errorf(st.loc(l, len(l.ws)+1), diag.CodeMalformedProperty, "expected 'key: value', got %q", l.text)
			return v, false
		}
		field, ok := st.fieldValue(l, rest, offset)
		if !ok {
			return v, false
		}
		v.fields = append(v.fields, prop{key: key, val: field, loc: st.loc(l, len(l.ws)+1)})
	}
	return v, true
}

// fieldValue decodes the value part of a nested 'key: value' line.
func (st *parseState) fieldValue(l srcLine, rest string, offset int) (value, bool) {
	valLoc := st.loc(l, len(l.ws)+offset+1)
	if rest == "" {
		v, ok := st.nested(l.indent)
		if v.isEmpty() {
			v.loc = valLoc
		}
		return v, ok
	}
	v, err := decodeInline(rest, valLoc)
	if err != nil {
		st.errorf(st.loc(l, err.col), err.code, "%s", err.msg)
		return value{}, false
	}
	return v, true
}

// listItem decodes "- item". Lines indented below the item turn it into an
// object whose first field is written on the dash line.
func (st *parseState) listItem(l srcLine) (value, bool) {
	text := strings.TrimSpace(strings.TrimPrefix(l.text, "-"))
	itemCol := len(l.ws) + (len(l.text) - len(text)) + 1
	st.pos++

	continued := st.nextContentIndent(st.pos) > l.indent
	if !continued {
		if text == "" {
			st.errorf(st.loc(l, len(l.ws)+1), diag.CodeBadList, "empty list item")
			return value{}, false
		}
		v, err := decodeInline(text, st.loc(l, itemCol))
		if err != nil {
			st.errorf(st.loc(l, err.col), err.code, "%s", err.msg)
			return value{}, false
		}
		return v, true
	}

	obj := value{kind: valObject, loc: st.loc(l, itemCol)}
	if text != "" {
		key, rest, offset, ok := splitKey(text)
		if !ok {
			st.errorf(st.loc(l, itemCol), diag.CodeMalformedProperty, "list item followed by an indented block must start with 'key: value'")
			return value{}, false
		}
		first, ok := st.fieldValueAt(l, rest, itemCol+offset)
		if !ok {
			return value{}, false
		}
		obj.fields = append(obj.fields, prop{key: key, val: first, loc: st.loc(l, itemCol)})
	}
	more, ok := st.nested(l.indent)
	if !ok {
		return value{}, false
	}
	if more.kind == valList {
		st.errorf(more.loc, diag.CodeBadList, "list item block must contain 'key: value' lines")
		return value{}, false
	}
	obj.fields = append(obj.fields, more.fields...)
	return obj, true
}

func (st *parseState) fieldValueAt(l srcLine, rest string, col int) (value, bool) {
	loc := st.loc(l, col)
	if rest == "" {
		return value{kind: valScalar, loc: loc}, true
	}
	v, err := decodeInline(rest, loc)
	if err != nil {
		st.errorf(st.loc(l, err.col), err.code, "%s", err.msg)
		return value{}, false
	}
	return v, true
}

// section collects the properties of one entity definition.
type section struct {
	kind     ir.Kind
	loc      ir.Location
	props    map[string]prop
	order    []string
	repeated map[string][]prop
	// implicit marks a sibling opened by a blank line after a syntax error.
	implicit bool
}

// named reports whether the section set the key that identifies its entity.
func (s *section) named() bool {
	key := "id"
	switch s.kind {
	case ir.KindLocalizedString:
		key = "key"
	case ir.KindProject:
		if _, ok := s.props["name"]; ok {
			return true
		}
	}
	_, ok := s.props[key]
	return ok
}

// repeatable keys accumulate instead of overwriting.
var repeatable = map[ir.Kind]map[string]bool{
	ir.KindInteraction: {"participant": true},
	ir.KindTestSet:     {"condition": true},
	ir.KindEnum:        {"value": true},
}

func (s *section) set(st *parseState, p prop) {
	if repeatable[s.kind][p.key] {
		s.repeated[p.key] = append(s.repeated[p.key], p)
		return
	}
	if old, ok := s.props[p.key]; ok {
		st.warnf(p.loc, diag.CodeDuplicateProperty,
			"duplicate property %q overrides the value set on line %d", p.key, old.loc.Line)
	} else {
		s.order = append(s.order, p.key)
	}
	s.props[p.key] = p
}
