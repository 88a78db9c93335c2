package ir

// Entity is implemented by every keyed IR entity.
type Entity interface {
	Head() *Header
	References() []Ref
}

// Header carries the identity and source positions shared by all entities.
type Header struct {
	Kind Kind
	ID   ResourceID
	// Name is the author-facing id ("greet_neighbor").
	Name string
	// Instance is the author-supplied instance_id, zero when derived.
	Instance uint64
	Loc      Location
	Fields   map[string]Location
}

func (h *Header) Head() *Header { return h }

// FieldLoc returns where field was written, falling back to the section header.
func (h *Header) FieldLoc(field string) Location {
	if loc, ok := h.Fields[field]; ok {
		return loc
	}
	return h.Loc
}

// Has reports whether field was present in the source.
func (h *Header) Has(field string) bool {
	_, ok := h.Fields[field]
	return ok
}

// InteractionType enumerates the engine's interaction classes.
type InteractionType string

const (
	InteractionSocial     InteractionType = "social"
	InteractionObject     InteractionType = "object"
	InteractionAutonomous InteractionType = "autonomous"
	InteractionLooping    InteractionType = "looping"
)

// Valid reports whether t is one of the known interaction classes.
func (t InteractionType) Valid() bool {
	switch t {
	case InteractionSocial, InteractionObject, InteractionAutonomous, InteractionLooping:
		return true
	}
	return false
}

// Participant is one role taking part in an interaction.
type Participant struct {
	Role        string
	Description string
}

type Interaction struct {
	Header
	DisplayName  string
	Description  string
	Type         InteractionType
	Duration     float64
	Participants []Participant
	Tests        []Ref
	Loot         []Ref
	Animation    string
	Sound        string
}

func (i *Interaction) References() []Ref {
	refs := make([]Ref, 0, len(i.Tests)+len(i.Loot))
	refs = append(refs, i.Tests...)
	return append(refs, i.Loot...)
}

// MoodPolarity is the emotional direction of a buff.
type MoodPolarity string

const (
	MoodPositive MoodPolarity = "positive"
	MoodNegative MoodPolarity = "negative"
	MoodNeutral  MoodPolarity = "neutral"
)

// Valid reports whether p is a known polarity.
func (p MoodPolarity) Valid() bool {
	switch p {
	case MoodPositive, MoodNegative, MoodNeutral:
		return true
	}
	return false
}

const (
	MinIntensity = 1
	MaxIntensity = 4
)

type Buff struct {
	Header
	DisplayName string
	Description string
	Mood        MoodPolarity
	Intensity   int
	// Duration is in seconds.
	Duration  float64
	MoodDelta int
}

func (b *Buff) References() []Ref { return nil }

type Trait struct {
	Header
	DisplayName  string
	Description  string
	Category     string
	Cost         float64
	Conflicts    []Ref
	Interactions []Ref
}

func (t *Trait) References() []Ref {
	refs := make([]Ref, 0, len(t.Conflicts)+len(t.Interactions))
	refs = append(refs, t.Conflicts...)
	return append(refs, t.Interactions...)
}

type EnumValue struct {
	Name  string
	Value int64
	Loc   Location
}

type EnumDefinition struct {
	Header
	Values []EnumValue
}

func (e *EnumDefinition) References() []Ref { return nil }

// TestCondition is one clause of a TestSet; clauses are ANDed.
type TestCondition struct {
	Type   string
	Params map[string]string
	Negate bool
	Loc    Location
}

type TestSet struct {
	Header
	Conditions []TestCondition
}

func (t *TestSet) References() []Ref { return nil }

// LootKind is the operation a loot action performs.
type LootKind string

const (
	LootModifyBuff    LootKind = "modify_buff"
	LootAddBuff       LootKind = "add_buff"
	LootRemoveBuff    LootKind = "remove_buff"
	LootAddTrait      LootKind = "add_trait"
	LootRemoveTrait   LootKind = "remove_trait"
	LootIncreaseSkill LootKind = "increase_skill"
	LootDecreaseSkill LootKind = "decrease_skill"
)

// TargetKind returns the entity kind the action's target must resolve to.
// Skill actions address engine skills and return ok=false.
func (k LootKind) TargetKind() (Kind, bool) {
	switch k {
	case LootModifyBuff, LootAddBuff, LootRemoveBuff:
		return KindBuff, true
	case LootAddTrait, LootRemoveTrait:
		return KindTrait, true
	}
	return "", false
}

// Valid reports whether k is a known loot operation.
func (k LootKind) Valid() bool {
	switch k {
	case LootModifyBuff, LootAddBuff, LootRemoveBuff, LootAddTrait, LootRemoveTrait,
		LootIncreaseSkill, LootDecreaseSkill:
		return true
	}
	return false
}

type LootAction struct {
	Header
	Action LootKind
	Target string
	// TargetKind is empty when the target is an engine skill.
	TargetKind Kind
	Amount     float64
}

func (l *LootAction) References() []Ref {
	if l.TargetKind == "" || l.Target == "" {
		return nil
	}
	return []Ref{{Kind: l.TargetKind, Name: l.Target, Field: "target", Loc: l.FieldLoc("target")}}
}

// LocalizedString is one (key, locale) text entry. Its Name is key@locale.
type LocalizedString struct {
	Header
	Key    string
	Locale string
	Text   string
}

func (s *LocalizedString) References() []Ref { return nil }

// StringName is the entity name used for a localized string.
func StringName(key, locale string) string {
	return key + "@" + locale
}

// Generic carries entities of plugin-registered kinds.
type Generic struct {
	Header
	Props map[string]string
	Refs  []Ref
}

func (g *Generic) References() []Ref { return g.Refs }

// ProjectMetadata comes from the topmost [Project] section of a build.
type ProjectMetadata struct {
	Name        string
	ID          string
	Version     string
	Author      string
	GameVersion string
	Namespace   string
	Loc         Location
	Fields      map[string]Location
}

// FieldLoc returns where field was written, falling back to the header.
func (m *ProjectMetadata) FieldLoc(field string) Location {
	if loc, ok := m.Fields[field]; ok {
		return loc
	}
	return m.Loc
}

// withID returns a shallow copy of e carrying id. Parsed entities may be
// shared through the parse cache, so merge never writes into them.
func withID(e Entity, id ResourceID) Entity {
	switch v := e.(type) {
	case *Interaction:
		c := *v
		c.ID = id
		return &c
	case *Buff:
		c := *v
		c.ID = id
		return &c
	case *Trait:
		c := *v
		c.ID = id
		return &c
	case *EnumDefinition:
		c := *v
		c.ID = id
		return &c
	case *TestSet:
		c := *v
		c.ID = id
		return &c
	case *LootAction:
		c := *v
		c.ID = id
		return &c
	case *LocalizedString:
		c := *v
		c.ID = id
		return &c
	case *Generic:
		c := *v
		c.ID = id
		return &c
	}
	return e
}
