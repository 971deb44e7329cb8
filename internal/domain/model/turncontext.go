package model

// TurnContext is the ephemeral per-turn state the Turn Coordinator assembles
// and discards once the turn completes (spec §3). It is never persisted.
type TurnContext struct {
	UserInput              string
	RetrievedChapterContext *string // nil when Memory skipped retrieval
	SelectedEntries        []Entry
	WorldSnapshot          WorldSnapshot
}

// WorldSnapshot is the immutable, consistent view of the entry table and
// chapter list captured at the Phase-1/Phase-2 boundary (spec §5). Phase 2/3
// readers see this snapshot; Phase 4 writers mutate the live collections
// only after it was captured.
type WorldSnapshot struct {
	Entries      []Entry
	ChapterCount int
	LastChapterEndSeq int // -1 if no chapters exist yet
}

// EntryByID returns the entry with the given id from the snapshot, or false.
func (s WorldSnapshot) EntryByID(id string) (Entry, bool) {
	for _, e := range s.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// EntryByNameOrAlias performs the case-insensitive name/alias lookup the
// Classifier rule (ii) and the Entry Engine's Tier 2 both rely on.
func (s WorldSnapshot) EntryByNameOrAlias(name string) (Entry, bool) {
	lower := lowerFold(name)
	for _, e := range s.Entries {
		if lowerFold(e.Name) == lower {
			return e, true
		}
		for _, alias := range e.Aliases {
			if lowerFold(alias) == lower {
				return e, true
			}
		}
	}
	return Entry{}, false
}
