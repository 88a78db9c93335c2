package interpolation

import (
	"strings"
	"testing"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"none", "Hello there", nil},
		{"indexed", "Hello {0}, meet {1}", []string{"{0}", "{1}"}},
		{"named", "Hi ${name}!", []string{"${name}"}},
		{"printf", "%d of %s at %2.1f", []string{"%d", "%s", "%2.1f"}},
		{"escaped percent", "100%% sure, %d left", []string{"%d"}},
		{"mixed in order", "%s: ${who} sent {0}", []string{"%s", "${who}", "{0}"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.text)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("Extract(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestSignatureIgnoresOrder(t *testing.T) {
	a := Signature("Hello {0}, you have %d friends")
	b := Signature("%d Freunde, hallo {0}")
	if a != b {
		t.Errorf("signatures differ: %q vs %q", a, b)
	}
	if Signature("Bonjour") == a {
		t.Error("missing placeholders not detected")
	}
}
