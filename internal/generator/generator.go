// Package generator serializes a validated ProjectIR into the engine's XML
// tuning format.
package generator

import (
	"fmt"
	"sort"
	"strconv"

	"jpe-compiler/internal/ir"
	"jpe-compiler/internal/textutil"
)

// Plugin produces artifacts in one output format.
type Plugin interface {
	Format() string
	Generate(p *ir.ProjectIR) (map[string][]byte, error)
}

// FormatXML is the built-in tuning XML format.
const FormatXML = "xml"

// XML is the built-in tuning generator.
type XML struct{}

func (XML) Format() string { return FormatXML }

func (XML) Generate(p *ir.ProjectIR) (map[string][]byte, error) { return Generate(p) }

// GenerationError reports a reference that could not be resolved while
// emitting XML. It means validation let an inconsistent IR through and is
// always fatal.
type GenerationError struct {
	Entity ir.ResourceID
	Name   string
	Ref    ir.Ref
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate %s %q: unresolved %s reference %q in field %s at %s",
		e.Entity.Kind, e.Name, e.Ref.Kind, e.Ref.Name, e.Ref.Field, e.Ref.Loc)
}

// Generate emits one document per non-empty entity kind, keyed by file name.
// Entities are ordered by ResourceID, so the same IR always yields the same
// bytes.
func Generate(p *ir.ProjectIR) (map[string][]byte, error) {
	out := make(map[string][]byte)
	for _, kind := range p.Kinds() {
		doc, err := generateKind(p, kind)
		if err != nil {
			return nil, err
		}
		out[ir.Info(kind).File] = doc
	}
	return out, nil
}

// ClassName is the generated class attribute for an entity.
func ClassName(namespace string, kind ir.Kind, name string) string {
	return namespace + "." + string(kind) + "." + textutil.PascalName(name)
}

type emitter struct {
	w *tuningWriter
	p *ir.ProjectIR
}

func generateKind(p *ir.ProjectIR, kind ir.Kind) ([]byte, error) {
	ns := p.Namespace()
	em := &emitter{w: &tuningWriter{}, p: p}
	em.w.buf.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	em.w.openTag("M", attr{"n", ns + "." + string(kind)})
	for _, e := range p.OfKind(kind) {
		h := e.Head()
		em.w.openTag("I", attr{"c", ClassName(ns, kind, h.Name)})
		em.w.T("id", ns+":"+h.Name)
		em.w.T("instance", strconv.FormatUint(h.ID.Instance, 10))
		if err := em.entity(e); err != nil {
			return nil, err
		}
		em.w.closeTag("I")
	}
	em.w.closeTag("M")
	return em.w.buf.Bytes(), nil
}

func (em *emitter) entity(e ir.Entity) error {
	w := em.w
	switch v := e.(type) {
	case *ir.Interaction:
		w.T("display_name", v.DisplayName)
		w.TOpt("description", v.Description)
		w.T("type", string(v.Type))
		w.num("duration", v.Duration)
		if len(v.Participants) > 0 {
			w.openTag("L", attr{"n", "participants"})
			for _, part := range v.Participants {
				w.openTag("U")
				w.T("role", part.Role)
				w.TOpt("description", part.Description)
				w.closeTag("U")
			}
			w.closeTag("L")
		}
		if err := em.refs(e, "tests", v.Tests); err != nil {
			return err
		}
		if err := em.refs(e, "loot", v.Loot); err != nil {
			return err
		}
		w.TOpt("animation", v.Animation)
		w.TOpt("sound", v.Sound)
	case *ir.Buff:
		w.T("display_name", v.DisplayName)
		w.TOpt("description", v.Description)
		w.T("mood", string(v.Mood))
		w.integer("intensity", int64(v.Intensity))
		w.num("duration", v.Duration)
		w.integer("mood_delta", int64(v.MoodDelta))
	case *ir.Trait:
		w.T("display_name", v.DisplayName)
		w.TOpt("description", v.Description)
		w.TOpt("category", v.Category)
		w.num("cost", v.Cost)
		if err := em.refs(e, "conflicts", v.Conflicts); err != nil {
			return err
		}
		if err := em.refs(e, "interactions", v.Interactions); err != nil {
			return err
		}
	case *ir.EnumDefinition:
		w.openTag("L", attr{"n", "values"})
		for _, ev := range v.Values {
			w.openTag("U")
			w.T("name", ev.Name)
			w.integer("value", ev.Value)
			w.closeTag("U")
		}
		w.closeTag("L")
	case *ir.TestSet:
		w.openTag("L", attr{"n", "conditions"})
		for _, c := range v.Conditions {
			w.openTag("U")
			w.T("type", c.Type)
			if c.Negate {
				w.boolean("negate", true)
			}
			if len(c.Params) > 0 {
				w.openTag("U", attr{"n", "params"})
				for _, k := range sortedKeys(c.Params) {
					w.T(k, c.Params[k])
				}
				w.closeTag("U")
			}
			w.closeTag("U")
		}
		w.closeTag("L")
	case *ir.LootAction:
		w.T("action", string(v.Action))
		if refs := v.References(); len(refs) > 0 {
			id, err := em.resolve(e, refs[0])
			if err != nil {
				return err
			}
			w.leaf("T", strconv.FormatUint(id.Instance, 10), attr{"n", "target"}, attr{"r", v.Target})
		} else {
			w.T("target", v.Target)
		}
		w.num("amount", v.Amount)
	case *ir.LocalizedString:
		w.T("key", v.Key)
		w.T("locale", v.Locale)
		w.T("text", v.Text)
	case *ir.Generic:
		for _, k := range sortedKeys(v.Props) {
			w.T(k, v.Props[k])
		}
		if err := em.refs(e, "refs", v.Refs); err != nil {
			return err
		}
	}
	return nil
}

func (em *emitter) resolve(owner ir.Entity, ref ir.Ref) (ir.ResourceID, error) {
	id, ok := em.p.Resolve(ref.Kind, ref.Name)
	if !ok {
		h := owner.Head()
		return ir.ResourceID{}, &GenerationError{Entity: h.ID, Name: h.Name, Ref: ref}
	}
	return id, nil
}

// refs writes a reference list as the targets' instance ids, keeping the
// author-facing name in the r attribute.
func (em *emitter) refs(owner ir.Entity, name string, refs []ir.Ref) error {
	if len(refs) == 0 {
		return nil
	}
	em.w.openTag("L", attr{"n", name})
	for _, ref := range refs {
		id, err := em.resolve(owner, ref)
		if err != nil {
			return err
		}
		em.w.leaf("T", strconv.FormatUint(id.Instance, 10), attr{"r", ref.Name})
	}
	em.w.closeTag("L")
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
