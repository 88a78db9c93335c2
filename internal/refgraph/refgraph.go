// Package refgraph exports the cross-reference graph of a project to Neo4j
// so modders can query which entities depend on which.
package refgraph

import (
	"sort"

	"jpe-compiler/internal/ir"
)

// Node is one entity in the graph.
type Node struct {
	RID       string
	Kind      string
	Name      string
	Namespace string
}

// Edge is a resolved reference from one entity field to another entity.
type Edge struct {
	From  string
	To    string
	Field string
}

// Project flattens p into nodes and resolved reference edges, both in a
// stable order. Unresolved references are left out.
func Project(p *ir.ProjectIR) ([]Node, []Edge) {
	var nodes []Node
	var edges []Edge
	for _, e := range p.All() {
		h := e.Head()
		nodes = append(nodes, Node{
			RID:       h.ID.String(),
			Kind:      string(h.Kind),
			Name:      nodeName(e),
			Namespace: h.ID.Namespace,
		})
		for _, ref := range e.References() {
			target, ok := p.Resolve(ref.Kind, ref.Name)
			if !ok {
				continue
			}
			edges = append(edges, Edge{From: h.ID.String(), To: target.String(), Field: ref.Field})
		}
	}
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		if edges[i].Field != edges[j].Field {
			return edges[i].Field < edges[j].Field
		}
		return edges[i].To < edges[j].To
	})
	return nodes, dedupe(edges)
}

func nodeName(e ir.Entity) string {
	if s, ok := e.(*ir.LocalizedString); ok {
		return ir.StringName(s.Key, s.Locale)
	}
	return e.Head().Name
}

// dedupe drops repeated edges; MERGE would collapse them anyway.
func dedupe(edges []Edge) []Edge {
	out := edges[:0]
	for i, e := range edges {
		if i > 0 && e == edges[i-1] {
			continue
		}
		out = append(out, e)
	}
	return out
}
