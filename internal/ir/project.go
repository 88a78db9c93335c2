package ir

import (
	"sort"
	"strings"

	"jpe-compiler/internal/textutil"
)

// DefaultNamespace is used when no [Project] section names one.
const DefaultNamespace = "mod"

// Partial is the result of parsing a single source file.
type Partial struct {
	File string
	// Projects holds every [Project] section of the file in source order.
	Projects []*ProjectMetadata
	// Entities are in source order with unassigned ResourceIDs.
	Entities []Entity
}

// Collision records two definitions that map to the same ResourceID.
type Collision struct {
	ID     ResourceID
	Name   string
	First  Location
	Second Location
}

// ProjectIR is the merged, build-wide aggregate root.
type ProjectIR struct {
	Metadata      *ProjectMetadata
	ExtraProjects []*ProjectMetadata

	Interactions map[ResourceID]*Interaction
	Buffs        map[ResourceID]*Buff
	Traits       map[ResourceID]*Trait
	Enums        map[ResourceID]*EnumDefinition
	TestSets     map[ResourceID]*TestSet
	LootActions  map[ResourceID]*LootAction
	Strings      map[ResourceID]*LocalizedString
	Others       map[ResourceID]*Generic

	// Unkeyed holds entities missing the fields their ResourceID derives from.
	Unkeyed    []Entity
	Collisions []Collision

	namespace string
	byName    map[Kind]map[string]ResourceID
}

// NewProjectIR returns an empty project in the given namespace.
func NewProjectIR(namespace string) *ProjectIR {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &ProjectIR{
		Interactions: make(map[ResourceID]*Interaction),
		Buffs:        make(map[ResourceID]*Buff),
		Traits:       make(map[ResourceID]*Trait),
		Enums:        make(map[ResourceID]*EnumDefinition),
		TestSets:     make(map[ResourceID]*TestSet),
		LootActions:  make(map[ResourceID]*LootAction),
		Strings:      make(map[ResourceID]*LocalizedString),
		Others:       make(map[ResourceID]*Generic),
		namespace:    namespace,
		byName:       make(map[Kind]map[string]ResourceID),
	}
}

// Namespace is the namespace every ResourceID in the project was derived in.
func (p *ProjectIR) Namespace() string { return p.namespace }

// Merge folds per-file parse results into one ProjectIR. Partials and their
// entities are visited in (file, line, column) order, so the outcome does not
// depend on the order in which files finished parsing. The first definition
// of a ResourceID wins; every later one is recorded as a Collision.
func Merge(defaultNamespace string, partials []*Partial) *ProjectIR {
	sorted := make([]*Partial, 0, len(partials))
	for _, pt := range partials {
		if pt != nil {
			sorted = append(sorted, pt)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].File < sorted[j].File })

	var projects []*ProjectMetadata
	for _, pt := range sorted {
		projects = append(projects, pt.Projects...)
	}
	sort.SliceStable(projects, func(i, j int) bool { return projects[i].Loc.Before(projects[j].Loc) })

	ns := defaultNamespace
	var meta *ProjectMetadata
	if len(projects) > 0 {
		meta = projects[0]
		if meta.Namespace != "" {
			ns = meta.Namespace
		}
	}

	p := NewProjectIR(ns)
	p.Metadata = meta
	if len(projects) > 1 {
		p.ExtraProjects = projects[1:]
	}

	var entities []Entity
	for _, pt := range sorted {
		entities = append(entities, pt.Entities...)
	}
	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].Head().Loc.Before(entities[j].Head().Loc)
	})

	firstLoc := make(map[ResourceID]Location)
	firstName := make(map[Kind]map[string]ResourceID)
	for _, e := range entities {
		h := e.Head()
		name := entityName(e)
		if name == "" {
			p.Unkeyed = append(p.Unkeyed, e)
			continue
		}
		inst := h.Instance
		if inst == 0 {
			inst = textutil.InstanceID(p.namespace, name)
		}
		id := ResourceID{Namespace: p.namespace, Kind: h.Kind, Instance: inst}
		if first, dup := firstLoc[id]; dup {
			p.Collisions = append(p.Collisions, Collision{ID: id, Name: name, First: first, Second: h.Loc})
			continue
		}
		// Names that generate the same tuning class collide, as does the
		// same name under a second explicit instance_id.
		key := classKey(name)
		if prev, dup := firstName[h.Kind][key]; dup {
			p.Collisions = append(p.Collisions, Collision{ID: prev, Name: name, First: firstLoc[prev], Second: h.Loc})
			continue
		}
		firstLoc[id] = h.Loc
		if firstName[h.Kind] == nil {
			firstName[h.Kind] = make(map[string]ResourceID)
		}
		firstName[h.Kind][key] = id
		p.add(withID(e, id), name)
	}
	return p
}

// classKey folds a name to its generated class name, ignoring case, so
// "greet_neighbor", "greet-neighbor" and "GreetNeighbor" share one key.
func classKey(name string) string {
	return strings.ToLower(textutil.PascalName(name))
}

func entityName(e Entity) string {
	if s, ok := e.(*LocalizedString); ok {
		if s.Key == "" || s.Locale == "" {
			return ""
		}
		return StringName(s.Key, s.Locale)
	}
	return e.Head().Name
}

func (p *ProjectIR) add(e Entity, name string) {
	h := e.Head()
	switch v := e.(type) {
	case *Interaction:
		p.Interactions[h.ID] = v
	case *Buff:
		p.Buffs[h.ID] = v
	case *Trait:
		p.Traits[h.ID] = v
	case *EnumDefinition:
		p.Enums[h.ID] = v
	case *TestSet:
		p.TestSets[h.ID] = v
	case *LootAction:
		p.LootActions[h.ID] = v
	case *LocalizedString:
		p.Strings[h.ID] = v
	case *Generic:
		p.Others[h.ID] = v
	default:
		return
	}
	idx, ok := p.byName[h.Kind]
	if !ok {
		idx = make(map[string]ResourceID)
		p.byName[h.Kind] = idx
	}
	key := strings.ToLower(name)
	if _, taken := idx[key]; !taken {
		idx[key] = h.ID
	}
}

// Get looks an entity up by ResourceID.
func (p *ProjectIR) Get(id ResourceID) (Entity, bool) {
	var e Entity
	var ok bool
	switch id.Kind {
	case KindInteraction:
		e, ok = lookup(p.Interactions, id)
	case KindBuff:
		e, ok = lookup(p.Buffs, id)
	case KindTrait:
		e, ok = lookup(p.Traits, id)
	case KindEnum:
		e, ok = lookup(p.Enums, id)
	case KindTestSet:
		e, ok = lookup(p.TestSets, id)
	case KindLootAction:
		e, ok = lookup(p.LootActions, id)
	case KindLocalizedString:
		e, ok = lookup(p.Strings, id)
	default:
		e, ok = lookup(p.Others, id)
	}
	return e, ok
}

func lookup[T Entity](m map[ResourceID]T, id ResourceID) (Entity, bool) {
	v, ok := m[id]
	if !ok {
		return nil, false
	}
	return v, true
}

// Resolve finds the entity of kind named name. Names match case-insensitively.
func (p *ProjectIR) Resolve(kind Kind, name string) (ResourceID, bool) {
	id, ok := p.byName[kind][strings.ToLower(name)]
	return id, ok
}

// Names returns every entity name of kind, sorted.
func (p *ProjectIR) Names(kind Kind) []string {
	var out []string
	for _, e := range p.OfKind(kind) {
		out = append(out, entityName(e))
	}
	sort.Strings(out)
	return out
}

// All returns every keyed entity ordered by ResourceID.
func (p *ProjectIR) All() []Entity {
	var out []Entity
	for _, m := range []map[ResourceID]Entity{
		collect(p.Interactions), collect(p.Buffs), collect(p.Traits), collect(p.Enums),
		collect(p.TestSets), collect(p.LootActions), collect(p.Strings), collect(p.Others),
	} {
		for _, e := range m {
			out = append(out, e)
		}
	}
	sortEntities(out)
	return out
}

// OfKind returns the entities of one kind ordered by ResourceID.
func (p *ProjectIR) OfKind(kind Kind) []Entity {
	var out []Entity
	for _, e := range p.All() {
		if e.Head().Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Kinds returns the kinds that have at least one entity, built-ins first in
// generation order, then plugin kinds alphabetically.
func (p *ProjectIR) Kinds() []Kind {
	var out []Kind
	for _, ki := range builtinKinds {
		if len(p.OfKind(ki.Kind)) > 0 {
			out = append(out, ki.Kind)
		}
	}
	seen := make(map[Kind]bool)
	var extra []Kind
	for _, g := range p.Others {
		if !seen[g.Kind] {
			seen[g.Kind] = true
			extra = append(extra, g.Kind)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

// Len is the number of keyed entities.
func (p *ProjectIR) Len() int {
	return len(p.Interactions) + len(p.Buffs) + len(p.Traits) + len(p.Enums) +
		len(p.TestSets) + len(p.LootActions) + len(p.Strings) + len(p.Others)
}

// Counts returns per-kind entity counts keyed by KindInfo.Plural. Every
// built-in kind is present, even at zero.
func (p *ProjectIR) Counts() map[string]int {
	counts := map[string]int{
		Info(KindInteraction).Plural:     len(p.Interactions),
		Info(KindBuff).Plural:            len(p.Buffs),
		Info(KindTrait).Plural:           len(p.Traits),
		Info(KindEnum).Plural:            len(p.Enums),
		Info(KindTestSet).Plural:         len(p.TestSets),
		Info(KindLootAction).Plural:      len(p.LootActions),
		Info(KindLocalizedString).Plural: len(p.Strings),
	}
	for _, g := range p.Others {
		counts[Info(g.Kind).Plural]++
	}
	return counts
}

// Prune returns a copy of p without the given entities and without every
// entity that references them, directly or transitively. Collisions and
// unkeyed entities are dropped from the copy; it is meant for best-effort
// generation only.
func (p *ProjectIR) Prune(drop map[ResourceID]bool) *ProjectIR {
	removed := make(map[ResourceID]bool, len(drop))
	for id := range drop {
		removed[id] = true
	}
	for changed := true; changed; {
		changed = false
		for _, e := range p.All() {
			id := e.Head().ID
			if removed[id] {
				continue
			}
			for _, ref := range e.References() {
				target, ok := p.Resolve(ref.Kind, ref.Name)
				if ok && removed[target] {
					removed[id] = true
					changed = true
					break
				}
			}
		}
	}

	out := NewProjectIR(p.namespace)
	out.Metadata = p.Metadata
	for _, e := range p.All() {
		if removed[e.Head().ID] {
			continue
		}
		out.add(e, entityName(e))
	}
	return out
}

func collect[T Entity](m map[ResourceID]T) map[ResourceID]Entity {
	out := make(map[ResourceID]Entity, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortEntities(es []Entity) {
	sort.Slice(es, func(i, j int) bool { return es[i].Head().ID.Less(es[j].Head().ID) })
}
