// Package ir holds the typed intermediate representation that sits between
// parsing and XML generation.
package ir

import (
	"fmt"
	"strings"
)

// Kind names an entity kind. The built-in kinds form a closed set; plugin
// parsers may introduce further kinds carried by Generic entities.
type Kind string

const (
	KindProject         Kind = "Project"
	KindInteraction     Kind = "Interaction"
	KindBuff            Kind = "Buff"
	KindTrait           Kind = "Trait"
	KindEnum            Kind = "Enum"
	KindTestSet         Kind = "TestSet"
	KindLootAction      Kind = "LootAction"
	KindLocalizedString Kind = "LocalizedString"
)

// KindInfo describes how a kind is counted and where its artifact lands.
type KindInfo struct {
	Kind Kind
	// Plural is the key used in report counts.
	Plural string
	// File is the generated artifact name.
	File string
}

var builtinKinds = []KindInfo{
	{KindInteraction, "interactions", "interactions.xml"},
	{KindBuff, "buffs", "buffs.xml"},
	{KindTrait, "traits", "traits.xml"},
	{KindEnum, "enums", "enums.xml"},
	{KindTestSet, "test_sets", "test_sets.xml"},
	{KindLootAction, "loot_actions", "loot_actions.xml"},
	{KindLocalizedString, "strings", "strings.xml"},
}

// BuiltinKinds returns the built-in entity kinds in generation order.
func BuiltinKinds() []KindInfo {
	out := make([]KindInfo, len(builtinKinds))
	copy(out, builtinKinds)
	return out
}

// Info returns the KindInfo for k. Unknown kinds get a derived lowercase entry.
func Info(k Kind) KindInfo {
	for _, ki := range builtinKinds {
		if ki.Kind == k {
			return ki
		}
	}
	plural := strings.ToLower(string(k)) + "s"
	return KindInfo{Kind: k, Plural: plural, File: plural + ".xml"}
}

// IsBuiltin reports whether k belongs to the closed built-in set.
func IsBuiltin(k Kind) bool {
	if k == KindProject {
		return true
	}
	for _, ki := range builtinKinds {
		if ki.Kind == k {
			return true
		}
	}
	return false
}

// ResourceID is the composite key that addresses every IR entity.
type ResourceID struct {
	Namespace string `json:"namespace"`
	Kind      Kind   `json:"kind"`
	Instance  uint64 `json:"instance"`
}

func (id ResourceID) String() string {
	return fmt.Sprintf("%s:%s:%016x", id.Namespace, id.Kind, id.Instance)
}

// IsZero reports whether the id was never assigned.
func (id ResourceID) IsZero() bool {
	return id == ResourceID{}
}

// Less orders ids by namespace, kind, then instance.
func (id ResourceID) Less(o ResourceID) bool {
	if id.Namespace != o.Namespace {
		return id.Namespace < o.Namespace
	}
	if id.Kind != o.Kind {
		return id.Kind < o.Kind
	}
	return id.Instance < o.Instance
}

// Location is a 1-based position in a source file.
type Location struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Before orders locations by file, line and column.
func (l Location) Before(o Location) bool {
	if l.File != o.File {
		return l.File < o.File
	}
	if l.Line != o.Line {
		return l.Line < o.Line
	}
	return l.Column < o.Column
}

// Ref is a by-name reference from one entity field to another entity.
// It stays unresolved until validation and generation look it up.
type Ref struct {
	Kind  Kind
	Name  string
	Field string
	Loc   Location
}
