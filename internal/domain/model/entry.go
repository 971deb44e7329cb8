package model

// EntryType classifies a world-model Entry (spec §3).
type EntryType string

const (
	EntryCharacter EntryType = "character"
	EntryLocation  EntryType = "location"
	EntryItem      EntryType = "item"
	EntryFaction   EntryType = "faction"
	EntryConcept   EntryType = "concept"
	EntryEvent     EntryType = "event"
)

// InjectionMode controls whether an Entry is eligible for Narrator Pipeline
// prompt injection without going through Tier 1/2/3 selection (spec §3, §4.7).
type InjectionMode string

const (
	InjectionAlways   InjectionMode = "always"
	InjectionKeyword  InjectionMode = "keyword"
	InjectionRelevant InjectionMode = "relevant"
	InjectionNever    InjectionMode = "never"
)

// InjectionPolicy is an Entry's prompt-injection policy (spec §3).
type InjectionPolicy struct {
	Mode     InjectionMode
	Keywords []string
	Priority int
}

// Provenance tracks where and when an Entry came from (spec §3).
type Provenance struct {
	FirstMentioned string // id of the StoryEntry that introduced it
	LastMentioned  string // id of the StoryEntry that most recently referenced it
	MentionCount   int
	CreatedBy      string // "classifier" | "seed" | manual tooling name
}

// CharacterState is the per-type state union for EntryCharacter (spec §3).
type CharacterState struct {
	IsPresent         bool
	InInventory       bool // characters can carry items too in some rulesets; always false for NPCs without inventories
	RelationshipLevel int  // clamped to [-100, 100]
	Disposition       string
	Mood              string
}

// LocationState is the per-type state union for EntryLocation (spec §3).
type LocationState struct {
	IsCurrentLocation bool
	Connections       []string // names/ids of adjacent locations
}

// ItemState is the per-type state union for EntryItem (spec §3).
type ItemState struct {
	InInventory bool
	IsPresent   bool // lying in the current scene but not yet picked up
	OwnerID     string
}

// Entry is a world-model record: a character, location, item, faction,
// concept, or event (spec §3).
type Entry struct {
	ID          string
	Name        string
	Type        EntryType
	Description string
	Aliases     []string // unique within a story, case-insensitive

	Character *CharacterState
	Location  *LocationState
	Item      *ItemState

	Injection  InjectionPolicy
	Provenance Provenance
}

// ClampRelationship enforces the [-100, 100] invariant (spec §3).
func ClampRelationship(level int) int {
	if level < -100 {
		return -100
	}
	if level > 100 {
		return 100
	}
	return level
}
