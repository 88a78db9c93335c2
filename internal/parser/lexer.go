package parser

import (
	"bytes"
	"regexp"
	"strings"
)

// srcLine is one physical line after comment stripping.
type srcLine struct {
	num int
	// indent is measured in columns; a tab counts as one two-space level.
	indent int
	ws     string
	// text is the content without indentation, comments or trailing space.
	text string
	// blank is true only for lines holding nothing but whitespace. A
	// comment-only line has empty text but is not blank.
	blank bool
}

func (l srcLine) isComment() bool { return !l.blank && l.text == "" }

func splitLines(src []byte) []srcLine {
	src = bytes.TrimPrefix(src, []byte("\ufeff"))
	raw := strings.Split(strings.ReplaceAll(string(src), "\r\n", "\n"), "\n")
	// A trailing newline does not start another line.
	if len(raw) > 0 && raw[len(raw)-1] == "" {
		raw = raw[:len(raw)-1]
	}

	lines := make([]srcLine, 0, len(raw))
	for i, r := range raw {
		r = strings.TrimRight(r, "\r")
		body := strings.TrimLeft(r, " \t")
		ws := r[:len(r)-len(body)]
		indent := 0
		for _, c := range ws {
			if c == '\t' {
				indent += 2
			} else {
				indent++
			}
		}
		lines = append(lines, srcLine{
			num:    i + 1,
			indent: indent,
			ws:     ws,
			text:   strings.TrimRight(stripComment(body), " \t"),
			blank:  strings.TrimSpace(r) == "",
		})
	}
	return lines
}

// stripComment cuts the line at the first '#' or ';' outside double quotes.
func stripComment(s string) string {
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if inQuote {
				i++
			}
		case '"':
			inQuote = !inQuote
		case '#', ';':
			if !inQuote {
				return s[:i]
			}
		}
	}
	return s
}

var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// splitKey splits "key: value". The value keeps its internal spacing.
func splitKey(text string) (key, rest string, restOffset int, ok bool) {
	idx := strings.IndexByte(text, ':')
	if idx <= 0 {
		return "", "", 0, false
	}
	key = strings.TrimSpace(text[:idx])
	if !keyPattern.MatchString(key) {
		return "", "", 0, false
	}
	after := text[idx+1:]
	trimmed := strings.TrimLeft(after, " \t")
	return strings.ToLower(key), trimmed, idx + 1 + len(after) - len(trimmed), true
}

// splitTopLevel splits s on sep outside double quotes and brackets.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	inQuote := false
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\' && inQuote:
			i++
		case c == '"':
			inQuote = !inQuote
		case c == '[' && !inQuote:
			depth++
		case c == ']' && !inQuote:
			depth--
		case c == sep && !inQuote && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
