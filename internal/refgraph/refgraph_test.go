package refgraph

import (
	"testing"

	"jpe-compiler/internal/ir"
)

func TestProject(t *testing.T) {
	loc := func(line int) ir.Location { return ir.Location{File: "a.jpe", Line: line, Column: 1} }
	shy := &ir.Trait{Header: ir.Header{Kind: ir.KindTrait, Name: "shy", Loc: loc(1)}, DisplayName: "Shy",
		Conflicts: []ir.Ref{
			{Kind: ir.KindTrait, Name: "loud", Field: "conflicts", Loc: loc(3)},
			{Kind: ir.KindTrait, Name: "LOUD", Field: "conflicts", Loc: loc(4)},
			{Kind: ir.KindTrait, Name: "ghost", Field: "conflicts", Loc: loc(5)},
		}}
	loud := &ir.Trait{Header: ir.Header{Kind: ir.KindTrait, Name: "loud", Loc: loc(10)}, DisplayName: "Loud"}
	hello := &ir.LocalizedString{Header: ir.Header{Kind: ir.KindLocalizedString, Loc: loc(20)}, Key: "hello", Locale: "en", Text: "Hi"}

	p := ir.Merge("mod", []*ir.Partial{{File: "a.jpe", Entities: []ir.Entity{shy, loud, hello}}})
	nodes, edges := Project(p)

	if len(nodes) != 3 {
		t.Fatalf("nodes = %+v", nodes)
	}
	var sawString bool
	for _, n := range nodes {
		if n.Namespace != "mod" {
			t.Errorf("node %+v has wrong namespace", n)
		}
		if n.Kind == string(ir.KindLocalizedString) && n.Name == "hello@en" {
			sawString = true
		}
	}
	if !sawString {
		t.Errorf("localized string node not named key@locale: %+v", nodes)
	}

	shyID, _ := p.Resolve(ir.KindTrait, "shy")
	loudID, _ := p.Resolve(ir.KindTrait, "loud")
	if len(edges) != 1 {
		t.Fatalf("edges = %+v, want one deduplicated resolved edge", edges)
	}
	want := Edge{From: shyID.String(), To: loudID.String(), Field: "conflicts"}
	if edges[0] != want {
		t.Errorf("edge = %+v, want %+v", edges[0], want)
	}
}

func TestProjectEmpty(t *testing.T) {
	nodes, edges := Project(ir.NewProjectIR(""))
	if len(nodes) != 0 || len(edges) != 0 {
		t.Errorf("nodes=%v edges=%v", nodes, edges)
	}
}
