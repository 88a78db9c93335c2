package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// HashBytes computes a SHA-256 hex hash of file contents for
// content-addressed caching.
func HashBytes(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// InstanceID derives the stable 64-bit tuning instance for an entity that has
// no author-supplied instance_id. The high bit is always set so derived ids
// never collide with the engine's low, hand-assigned range.
func InstanceID(namespace, name string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(strings.ToLower(namespace)))
	h.Write([]byte{':'})
	h.Write([]byte(strings.ToLower(name)))
	return h.Sum64() | 1<<63
}

// PascalName converts a snake/kebab/space separated identifier into the
// generated tuning name, e.g. "greet_neighbor" -> "GreetNeighbor". Letters
// after the first of each part keep their case, so "NPCGreeting" stays intact.
func PascalName(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '.' || r == '@'
	})
	// Casers carry state and must not be shared across goroutines.
	titler := cases.Title(language.Und, cases.NoLower)
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(titler.String(p))
	}
	return b.String()
}

// Truncate shortens s to maxLen runes, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	return string(r[:maxLen]) + "..."
}
