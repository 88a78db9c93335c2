// Package interpolation finds runtime placeholders such as {0}, ${name} and
// %d inside localized text.
package interpolation

import (
	"regexp"
	"sort"
	"strings"
)

var patterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\{[a-zA-Z_][a-zA-Z0-9_]*\}`),         // ${value}
	regexp.MustCompile(`\{[0-9]+\}`),                           // {0}, {1}
	regexp.MustCompile(`%[-+0-9]*\.?[0-9]*[dsfieEgGxXoubcpq]`), // %d, %s, %2d
	regexp.MustCompile(`%%`),                                   // escaped percent
}

type span struct {
	start, end int
}

// Extract returns the placeholders of text in order of appearance. Where two
// patterns overlap the earlier, longer match wins. Escaped percent signs are
// not placeholders and are left out.
func Extract(text string) []string {
	var spans []span
	for _, p := range patterns {
		for _, loc := range p.FindAllStringIndex(text, -1) {
			spans = append(spans, span{loc[0], loc[1]})
		}
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	var out []string
	lastEnd := -1
	for _, s := range spans {
		if s.start < lastEnd {
			continue
		}
		lastEnd = s.end
		if tok := text[s.start:s.end]; tok != "%%" {
			out = append(out, tok)
		}
	}
	return out
}

// Signature is an order-independent fingerprint of the placeholders in
// text. Two translations are compatible when their signatures are equal.
func Signature(text string) string {
	toks := Extract(text)
	sort.Strings(toks)
	return strings.Join(toks, " ")
}
