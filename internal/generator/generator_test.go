package generator

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"jpe-compiler/internal/ir"
	"jpe-compiler/internal/parser"
	"jpe-compiler/internal/textutil"
)

func mustProject(t *testing.T, srcs ...string) *ir.ProjectIR {
	t.Helper()
	p := parser.NewJPEParser(parser.WithKinds("Recipe"))
	var partials []*ir.Partial
	for i, src := range srcs {
		partial, diags := p.Parse([]byte(src), "f"+strconv.Itoa(i)+".jpe")
		if len(diags) != 0 {
			t.Fatalf("parse: %v", diags)
		}
		partials = append(partials, partial)
	}
	return ir.Merge(ir.DefaultNamespace, partials)
}

const greetNeighbor = `[Interactions]
id: greet_neighbor
display_name: Greet Neighbor
description: Politely greet a nearby neighbor
participant: role:Actor, description:The person initiating the greeting
participant: role:Target, description:The neighbor being greeted
end
`

func TestGenerateGreetNeighbor(t *testing.T) {
	out, err := Generate(mustProject(t, greetNeighbor))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("artifacts = %v", len(out))
	}
	doc := string(out["interactions.xml"])
	inst := strconv.FormatUint(textutil.InstanceID("mod", "greet_neighbor"), 10)
	for _, want := range []string{
		`<?xml version="1.0" encoding="utf-8"?>` + "\n",
		`<M n="mod.Interaction">`,
		`<I c="mod.Interaction.GreetNeighbor">`,
		`<T n="id">mod:greet_neighbor</T>`,
		`<T n="instance">` + inst + `</T>`,
		`<T n="display_name">Greet Neighbor</T>`,
		`<T n="type">social</T>`,
		`<L n="participants">`,
		`<T n="role">Actor</T>`,
		`<T n="description">The neighbor being greeted</T>`,
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("output missing %q\n%s", want, doc)
		}
	}
	if !strings.HasSuffix(doc, "</M>\n") {
		t.Errorf("document does not end with </M>")
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	srcs := []string{
		"[Buff]\nid: b\ndisplay_name: B\nend\n[Buff]\nid: a\ndisplay_name: A\nend\n",
		"[TestSet]\nid: ok\ncondition: type:mood, min:2, max:4\nend\n",
	}
	first, err := Generate(mustProject(t, srcs...))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := Generate(mustProject(t, srcs...))
		if err != nil {
			t.Fatal(err)
		}
		for name, doc := range first {
			if !bytes.Equal(doc, again[name]) {
				t.Fatalf("%s differs between runs", name)
			}
		}
	}
	ts := string(first["test_sets.xml"])
	if strings.Index(ts, `<T n="max">`) > strings.Index(ts, `<T n="min">`) {
		t.Errorf("params not sorted by key:\n%s", ts)
	}
}

func TestEscape(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{`A & B`, "A &amp; B"},
		{`<tag attr="x">`, "&lt;tag attr=&quot;x&quot;&gt;"},
		{"it's", "it&apos;s"},
		{"&amp;", "&amp;amp;"},
	}
	for _, tt := range tests {
		if got := Escape(tt.in); got != tt.want {
			t.Errorf("Escape(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGenerateEscapesText(t *testing.T) {
	out, err := Generate(mustProject(t, "[Buff]\nid: glow\ndisplay_name: \"Fish & <Chips>\"\nend\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out["buffs.xml"]), `<T n="display_name">Fish &amp; &lt;Chips&gt;</T>`) {
		t.Errorf("unescaped output:\n%s", out["buffs.xml"])
	}
}

func TestGenerateWellFormedXML(t *testing.T) {
	out, err := Generate(mustProject(t, greetNeighbor, `[Buff]
id: glow
display_name: "Tab\there & <Zoë> \u2603"
description: it's "fine"
end

[Trait]
id: shy
display_name: Shy
conflicts: [loud]
end

[Trait]
id: loud
display_name: Loud
end

[String]
key: greet
locale: ja
text: "こんにちは {0}"
end
`))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 4 {
		t.Fatalf("artifacts = %d", len(out))
	}
	for name, doc := range out {
		dec := xml.NewDecoder(bytes.NewReader(doc))
		for {
			_, err := dec.Token()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Errorf("%s: %v\n%s", name, err, doc)
				break
			}
		}
	}
}

func TestGenerateResolvesReferences(t *testing.T) {
	p := mustProject(t, `[Loot]
id: give
action: add_buff
target: glow
amount: 2.5
end

[Buff]
id: glow
display_name: Glow
end
`)
	out, err := Generate(p)
	if err != nil {
		t.Fatal(err)
	}
	id, _ := p.Resolve(ir.KindBuff, "glow")
	want := `<T n="target" r="glow">` + strconv.FormatUint(id.Instance, 10) + `</T>`
	doc := string(out["loot_actions.xml"])
	if !strings.Contains(doc, want) || !strings.Contains(doc, `<T n="amount">2.5</T>`) {
		t.Errorf("loot output:\n%s", doc)
	}
}

func TestGenerateUnresolvedIsGenerationError(t *testing.T) {
	p := mustProject(t, "[Trait]\nid: shy\ndisplay_name: Shy\nconflicts: [ghost]\nend\n")
	_, err := Generate(p)
	var ge *GenerationError
	if !errors.As(err, &ge) {
		t.Fatalf("err = %v, want *GenerationError", err)
	}
	if ge.Name != "shy" || ge.Ref.Name != "ghost" || ge.Ref.Loc.Line != 4 {
		t.Errorf("GenerationError = %+v", ge)
	}
}

func TestGeneratePluginKind(t *testing.T) {
	out, err := Generate(mustProject(t, "[Recipe]\nid: soup\ncolor: green\nend\n"))
	if err != nil {
		t.Fatal(err)
	}
	doc := string(out["recipes.xml"])
	if !strings.Contains(doc, `<I c="mod.Recipe.Soup">`) || !strings.Contains(doc, `<T n="color">green</T>`) {
		t.Errorf("plugin output:\n%s", doc)
	}
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{30, "30"},
		{2.5, "2.5"},
		{-0.125, "-0.125"},
		{0, "0"},
	}
	for _, tt := range tests {
		if got := formatFloat(tt.in); got != tt.want {
			t.Errorf("formatFloat(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	names, err := WriteAll(context.Background(), dir, map[string][]byte{
		"b.xml": []byte("<b/>"),
		"a.xml": []byte("<a/>"),
	})
	if err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if len(names) != 2 || names[0] != "a.xml" || names[1] != "b.xml" {
		t.Errorf("names = %v", names)
	}
	got, err := os.ReadFile(filepath.Join(dir, "a.xml"))
	if err != nil || string(got) != "<a/>" {
		t.Errorf("a.xml = %q, %v", got, err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("leftover files in output: %d entries", len(entries))
	}
}

func TestWriteAllReportsCommittedNames(t *testing.T) {
	dir := t.TempDir()
	// A non-empty directory in the way makes the rename of b.xml fail.
	if err := os.MkdirAll(filepath.Join(dir, "b.xml", "keep"), 0o755); err != nil {
		t.Fatal(err)
	}
	names, err := WriteAll(context.Background(), dir, map[string][]byte{
		"a.xml": []byte("<a/>"),
		"b.xml": []byte("<b/>"),
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, name := range names {
		if name == "b.xml" {
			t.Errorf("failed artifact reported as written: %v", names)
		}
	}
	_, statErr := os.Stat(filepath.Join(dir, "a.xml"))
	onDisk := statErr == nil
	listed := len(names) == 1 && names[0] == "a.xml"
	if onDisk != listed {
		t.Errorf("names = %v but a.xml on disk = %v", names, onDisk)
	}
}

func TestWriteAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := WriteAll(ctx, t.TempDir(), map[string][]byte{"a.xml": []byte("x")})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
