package generator

import (
	"bytes"
	"strconv"
	"strings"
)

// escaper covers the five XML reserved characters with named entities. The
// same escaper serves text and attribute values.
var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// Escape returns s with XML reserved characters replaced.
func Escape(s string) string {
	return escaper.Replace(s)
}

// attr is one name/value attribute; order is preserved as written.
type attr struct {
	name, value string
}

// tuningWriter emits the engine's compact tuning dialect with two-space
// indentation and a fixed attribute order.
type tuningWriter struct {
	buf   bytes.Buffer
	depth int
}

func (w *tuningWriter) indent() {
	for i := 0; i < w.depth; i++ {
		w.buf.WriteString("  ")
	}
}

func (w *tuningWriter) openTag(tag string, attrs ...attr) {
	w.indent()
	w.buf.WriteByte('<')
	w.buf.WriteString(tag)
	writeAttrs(&w.buf, attrs)
	w.buf.WriteString(">\n")
	w.depth++
}

func (w *tuningWriter) closeTag(tag string) {
	w.depth--
	w.indent()
	w.buf.WriteString("</")
	w.buf.WriteString(tag)
	w.buf.WriteString(">\n")
}

func (w *tuningWriter) leaf(tag, text string, attrs ...attr) {
	w.indent()
	w.buf.WriteByte('<')
	w.buf.WriteString(tag)
	writeAttrs(&w.buf, attrs)
	w.buf.WriteByte('>')
	w.buf.WriteString(Escape(text))
	w.buf.WriteString("</")
	w.buf.WriteString(tag)
	w.buf.WriteString(">\n")
}

func writeAttrs(buf *bytes.Buffer, attrs []attr) {
	for _, a := range attrs {
		buf.WriteByte(' ')
		buf.WriteString(a.name)
		buf.WriteString(`="`)
		buf.WriteString(Escape(a.value))
		buf.WriteByte('"')
	}
}

// T writes a named typed value.
func (w *tuningWriter) T(name, text string) {
	w.leaf("T", text, attr{"n", name})
}

// TOpt writes a named value only when it is non-empty.
func (w *tuningWriter) TOpt(name, text string) {
	if text != "" {
		w.T(name, text)
	}
}

func (w *tuningWriter) num(name string, f float64) {
	w.T(name, formatFloat(f))
}

func (w *tuningWriter) integer(name string, n int64) {
	w.T(name, strconv.FormatInt(n, 10))
}

func (w *tuningWriter) boolean(name string, b bool) {
	w.T(name, strconv.FormatBool(b))
}

// formatFloat prints the shortest representation that round-trips, so 30
// stays "30" and 2.5 stays "2.5".
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
