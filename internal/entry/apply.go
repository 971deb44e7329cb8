package entry

import (
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/google/uuid"

	"aventura/internal/domain/model"
)

// fuzzyDuplicateThreshold is the Jaro-Winkler similarity above which a
// proposed new entry name is treated as the same entity as an existing
// one, even when it does not match by exact case-insensitive name/alias
// (a supplemented safeguard beyond spec §4.6 rule (ii), since classifiers
// occasionally vary capitalization or punctuation on a name they already
// introduced).
const fuzzyDuplicateThreshold = 0.92

// findExistingByNameOrAlias performs the exact case-insensitive lookup
// spec §4.6 rule (ii) requires, then falls back to fuzzy matching against
// every known name and alias.
func findExistingByNameOrAlias(snapshot model.WorldSnapshot, name string) (model.Entry, bool) {
	if e, ok := snapshot.EntryByNameOrAlias(name); ok {
		return e, true
	}

	lowerName := strings.ToLower(strings.TrimSpace(name))
	var best model.Entry
	var bestScore float64
	for _, e := range snapshot.Entries {
		candidates := append([]string{e.Name}, e.Aliases...)
		for _, c := range candidates {
			score := matchr.JaroWinkler(lowerName, strings.ToLower(strings.TrimSpace(c)), true)
			if score > bestScore {
				bestScore = score
				best = e
			}
		}
	}
	if bestScore >= fuzzyDuplicateThreshold {
		return best, true
	}
	return model.Entry{}, false
}

// Apply implements Phase-4 application (spec §4.7): updates, then
// newEntries, then the scene block, in that fixed order. It returns the
// full post-apply entry set. narrationID is the Story Entry id that
// triggered classification, used as newEntries' provenance.firstMentioned.
//
// Apply is idempotent: re-applying the same result to its own output
// yields the same final state (spec §8), because updates only assign
// fields explicitly present in changes, newEntries are only created when
// no matching entry already exists, and the scene block is a total
// reassignment of presence/location flags rather than a toggle.
func (e *Engine) Apply(snapshot model.WorldSnapshot, result model.ClassificationResult, narrationID string) []model.Entry {
	byID := make(map[string]model.Entry, len(snapshot.Entries))
	order := make([]string, 0, len(snapshot.Entries))
	for _, ent := range snapshot.Entries {
		byID[ent.ID] = ent
		order = append(order, ent.ID)
	}

	for _, u := range result.EntryUpdates.Updates {
		ent, ok := byID[u.EntryID]
		if !ok {
			// Unknown entryIds are skipped (spec §4.7); also covers
			// InvalidReference (spec §7), which the Entry Engine drops
			// silently.
			continue
		}
		byID[u.EntryID] = applyChanges(ent, u.Changes)
	}

	for _, ne := range result.EntryUpdates.NewEntries {
		snapshotView := model.WorldSnapshot{Entries: mapValues(byID, order)}
		if _, exists := findExistingByNameOrAlias(snapshotView, ne.Name); exists {
			continue
		}
		id := uuid.NewString()
		ent := newEntryFromSpec(id, ne, narrationID)
		byID[id] = ent
		order = append(order, id)
	}

	applyScene(byID, result.EntryUpdates.Scene)

	return mapValues(byID, order)
}

func mapValues(byID map[string]model.Entry, order []string) []model.Entry {
	out := make([]model.Entry, 0, len(order))
	for _, id := range order {
		if ent, ok := byID[id]; ok {
			out = append(out, ent)
		}
	}
	return out
}

// applyChanges assigns only the fields explicitly present in changes
// (spec §4.7). Recognized keys cover the dynamic, classifier-writable
// portion of each per-type state union; unrecognized keys are ignored
// rather than erroring, matching the "unknown fields are ignored" rule
// for boundary JSON (spec §9).
func applyChanges(ent model.Entry, changes map[string]any) model.Entry {
	if v, ok := changes["description"].(string); ok {
		ent.Description = v
	}
	if v, ok := changes["aliases"].([]any); ok {
		ent.Aliases = toStringSlice(v)
	}

	if ent.Character != nil {
		c := *ent.Character
		if v, ok := changes["isPresent"].(bool); ok {
			c.IsPresent = v
		}
		if v, ok := changes["disposition"].(string); ok {
			c.Disposition = v
		}
		if v, ok := changes["mood"].(string); ok {
			c.Mood = v
		}
		if v, ok := changes["relationshipLevel"].(float64); ok {
			c.RelationshipLevel = model.ClampRelationship(int(v))
		}
		if v, ok := changes["inInventory"].(bool); ok {
			c.InInventory = v
		}
		ent.Character = &c
	}

	if ent.Location != nil {
		l := *ent.Location
		if v, ok := changes["isCurrentLocation"].(bool); ok {
			l.IsCurrentLocation = v
		}
		if v, ok := changes["connections"].([]any); ok {
			l.Connections = toStringSlice(v)
		}
		ent.Location = &l
	}

	if ent.Item != nil {
		it := *ent.Item
		if v, ok := changes["isPresent"].(bool); ok {
			it.IsPresent = v
		}
		if v, ok := changes["inInventory"].(bool); ok {
			it.InInventory = v
		}
		if v, ok := changes["ownerId"].(string); ok {
			it.OwnerID = v
		}
		ent.Item = &it
	}

	return ent
}

func toStringSlice(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// newEntryFromSpec creates an Entry for a NewEntrySpec with fresh
// provenance and its initialState merged over type defaults (spec §4.7).
func newEntryFromSpec(id string, spec model.NewEntrySpec, narrationID string) model.Entry {
	ent := model.Entry{
		ID:          id,
		Name:        spec.Name,
		Type:        spec.Type,
		Description: spec.Description,
		Aliases:     spec.Aliases,
		Provenance: model.Provenance{
			FirstMentioned: narrationID,
			LastMentioned:  narrationID,
			MentionCount:   1,
			CreatedBy:      "classifier",
		},
	}

	switch spec.Type {
	case model.EntryCharacter:
		c := model.CharacterState{}
		mergeCharacterState(&c, spec.InitialState)
		ent.Character = &c
	case model.EntryLocation:
		l := model.LocationState{}
		mergeLocationState(&l, spec.InitialState)
		ent.Location = &l
	case model.EntryItem:
		it := model.ItemState{}
		mergeItemState(&it, spec.InitialState)
		ent.Item = &it
	}

	return ent
}

func mergeCharacterState(c *model.CharacterState, initial map[string]any) {
	if v, ok := initial["isPresent"].(bool); ok {
		c.IsPresent = v
	}
	if v, ok := initial["disposition"].(string); ok {
		c.Disposition = v
	}
	if v, ok := initial["mood"].(string); ok {
		c.Mood = v
	}
	if v, ok := initial["relationshipLevel"].(float64); ok {
		c.RelationshipLevel = model.ClampRelationship(int(v))
	}
}

func mergeLocationState(l *model.LocationState, initial map[string]any) {
	if v, ok := initial["isCurrentLocation"].(bool); ok {
		l.IsCurrentLocation = v
	}
	if v, ok := initial["connections"].([]any); ok {
		l.Connections = toStringSlice(v)
	}
}

func mergeItemState(it *model.ItemState, initial map[string]any) {
	if v, ok := initial["isPresent"].(bool); ok {
		it.IsPresent = v
	}
	if v, ok := initial["inInventory"].(bool); ok {
		it.InInventory = v
	}
	if v, ok := initial["ownerId"].(string); ok {
		it.OwnerID = v
	}
}

// applyScene applies the scene block (spec §4.7): when newLocationName is
// non-null, sets the matching location's isCurrentLocation=true and
// clears all others; presentCharacterIds sets isPresent=true on the named
// characters and false on all other characters (absence implies
// departure).
func applyScene(byID map[string]model.Entry, scene model.SceneUpdate) {
	if scene.NewLocationName != nil {
		target := strings.ToLower(strings.TrimSpace(*scene.NewLocationName))
		for id, ent := range byID {
			if ent.Location == nil {
				continue
			}
			l := *ent.Location
			l.IsCurrentLocation = strings.ToLower(ent.Name) == target
			ent.Location = &l
			byID[id] = ent
		}
	}

	if scene.PresentCharacterIDs != nil {
		present := resolvePresentCharacterIDs(byID, scene.PresentCharacterIDs)
		for id, ent := range byID {
			if ent.Character == nil {
				continue
			}
			c := *ent.Character
			c.IsPresent = present[id]
			ent.Character = &c
			byID[id] = ent
		}
	}
}

// resolvePresentCharacterIDs resolves each entry in presentCharacterIds to
// an existing entity id. The classifier cannot know the id of a character
// it is introducing in the same response (the Entry Engine hasn't minted
// one yet), so spec §4.6 rule (iv)/§4.7 require matching those entries by
// name against both pre-existing entries and the ones newEntries just
// created earlier in this same Apply call — byID already reflects both by
// the time applyScene runs. A reference that matches neither an id nor a
// known name/alias is a dangling reference and is dropped, same as an
// unknown entryId in EntryUpdates.
func resolvePresentCharacterIDs(byID map[string]model.Entry, presentCharacterIDs []string) map[string]bool {
	present := make(map[string]bool, len(presentCharacterIDs))
	for _, ref := range presentCharacterIDs {
		if _, ok := byID[ref]; ok {
			present[ref] = true
			continue
		}
		if ent, ok := findExistingByNameOrAlias(model.WorldSnapshot{Entries: valuesOf(byID)}, ref); ok {
			present[ent.ID] = true
		}
	}
	return present
}

func valuesOf(byID map[string]model.Entry) []model.Entry {
	out := make([]model.Entry, 0, len(byID))
	for _, ent := range byID {
		out = append(out, ent)
	}
	return out
}
