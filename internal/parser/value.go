package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"jpe-compiler/internal/diag"
	"jpe-compiler/internal/ir"
)

type valueKind int

const (
	valScalar valueKind = iota
	valQuoted
	valList
	valObject
)

func (k valueKind) String() string {
	switch k {
	case valScalar, valQuoted:
		return "scalar"
	case valList:
		return "list"
	case valObject:
		return "object"
	}
	return "value"
}

// value is a decoded property value.
type value struct {
	kind   valueKind
	text   string
	items  []value
	fields []prop
	loc    ir.Location
}

type prop struct {
	key string
	val value
	loc ir.Location
}

func (v value) isEmpty() bool {
	return v.kind == valScalar && v.text == ""
}

// syntaxError is a value-level problem with its code and exact position.
type syntaxError struct {
	code string
	col  int
	msg  string
}

func (e *syntaxError) Error() string { return e.msg }

// decodeInline decodes a value written on the same line as its key.
func decodeInline(raw string, loc ir.Location) (value, *syntaxError) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return value{kind: valScalar, loc: loc}, nil
	case raw[0] == '"':
		s, err := unquote(raw, loc.Column)
		if err != nil {
			return value{}, err
		}
		if _, reason, bad := badText(s); bad {
			return value{}, &syntaxError{diag.CodeBadEncoding, loc.Column, "quoted string contains " + reason}
		}
		return value{kind: valQuoted, text: s, loc: loc}, nil
	case raw[0] == '[':
		return decodeInlineList(raw, loc)
	default:
		if strings.Count(raw, "\"")%2 != 0 {
			return value{}, &syntaxError{diag.CodeBadQuote, loc.Column + strings.IndexByte(raw, '"'), "unterminated quoted string"}
		}
		if at, reason, bad := badText(raw); bad {
			return value{}, &syntaxError{diag.CodeBadEncoding, loc.Column + at, "value contains " + reason}
		}
		return value{kind: valScalar, text: raw, loc: loc}, nil
	}
}

// badText finds the first byte offset in s that cannot be written as XML 1.0
// character data.
func badText(s string) (int, string, bool) {
	for i, r := range s {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(s[i:]); size == 1 {
				return i, "invalid UTF-8", true
			}
		}
		if !xmlChar(r) {
			return i, fmt.Sprintf("control character %U", r), true
		}
	}
	return 0, "", false
}

func xmlChar(r rune) bool {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	}
	return r >= 0x10000 && r <= 0x10FFFF
}

func decodeInlineList(raw string, loc ir.Location) (value, *syntaxError) {
	if !strings.HasSuffix(raw, "]") {
		return value{}, &syntaxError{diag.CodeBadList, loc.Column, "inline list is missing its closing ']'"}
	}
	body := strings.TrimSpace(raw[1 : len(raw)-1])
	v := value{kind: valList, loc: loc}
	if body == "" {
		return v, nil
	}
	offset := loc.Column + 1
	for _, part := range splitTopLevel(body, ',') {
		item := strings.TrimSpace(part)
		itemLoc := loc
		itemLoc.Column = offset + strings.Index(part, item)
		offset += len(part) + 1
		if item == "" {
			return value{}, &syntaxError{diag.CodeBadList, itemLoc.Column, "empty item in inline list"}
		}
		if item[0] == '[' {
			return value{}, &syntaxError{diag.CodeBadList, itemLoc.Column, "inline lists cannot be nested"}
		}
		if strings.ContainsAny(item, "[]") && item[0] != '"' {
			return value{}, &syntaxError{diag.CodeBadList, itemLoc.Column, fmt.Sprintf("reserved character in unquoted list item %q", item)}
		}
		dv, err := decodeInline(item, itemLoc)
		if err != nil {
			return value{}, err
		}
		v.items = append(v.items, dv)
	}
	return v, nil
}

// unquote decodes a double-quoted string that must span the whole value.
func unquote(raw string, col int) (string, *syntaxError) {
	end := -1
	for i := 1; i < len(raw); i++ {
		if raw[i] == '\\' {
			i++
			continue
		}
		if raw[i] == '"' {
			end = i
			break
		}
	}
	if end < 0 {
		return "", &syntaxError{diag.CodeBadQuote, col, "unterminated quoted string"}
	}
	if rest := strings.TrimSpace(raw[end+1:]); rest != "" {
		return "", &syntaxError{diag.CodeBadQuote, col + end + 1, fmt.Sprintf("unexpected %q after closing quote", rest)}
	}
	s, err := strconv.Unquote(raw[:end+1])
	if err != nil {
		return "", &syntaxError{diag.CodeBadQuote, col, fmt.Sprintf("invalid escape in quoted string: %v", err)}
	}
	return s, nil
}

// inlineMap reads "k:v, k2:v2" pairs from a scalar. Values may be quoted.
// A bare item without a colon is returned under bareKey when it is set.
func inlineMap(v value, bareKey string) ([]prop, *syntaxError) {
	if v.kind == valObject {
		return v.fields, nil
	}
	if v.kind != valScalar {
		if v.kind == valQuoted && bareKey != "" {
			return []prop{{key: bareKey, val: v, loc: v.loc}}, nil
		}
		return nil, &syntaxError{diag.CodeBadValue, v.loc.Column, fmt.Sprintf("expected key:value pairs, got a %s", v.kind)}
	}
	var out []prop
	offset := v.loc.Column
	for _, part := range splitTopLevel(v.text, ',') {
		item := strings.TrimSpace(part)
		itemLoc := v.loc
		itemLoc.Column = offset + strings.Index(part, item)
		offset += len(part) + 1
		if item == "" {
			continue
		}
		idx := strings.IndexByte(item, ':')
		if idx < 0 {
			if bareKey != "" && len(out) == 0 {
				out = append(out, prop{key: bareKey, val: value{kind: valScalar, text: item, loc: itemLoc}, loc: itemLoc})
				continue
			}
			return nil, &syntaxError{diag.CodeBadValue, itemLoc.Column, fmt.Sprintf("expected key:value, got %q", item)}
		}
		key := strings.ToLower(strings.TrimSpace(item[:idx]))
		if !keyPattern.MatchString(key) {
			return nil, &syntaxError{diag.CodeBadValue, itemLoc.Column, fmt.Sprintf("invalid key %q", key)}
		}
		val, err := decodeInline(item[idx+1:], ir.Location{File: itemLoc.File, Line: itemLoc.Line, Column: itemLoc.Column + idx + 1})
		if err != nil {
			return nil, err
		}
		out = append(out, prop{key: key, val: val, loc: itemLoc})
	}
	return out, nil
}
