package entry

import (
	"testing"

	"aventura/internal/config"
	"aventura/internal/domain/model"
)

func TestApplyUpdatesOnlyAssignsPresentFields(t *testing.T) {
	e := NewEngine(&fakeProvider{}, "model", config.EntryConfig{}, nil)

	snapshot := model.WorldSnapshot{Entries: []model.Entry{
		{ID: "1", Name: "Thornwick", Type: model.EntryCharacter, Description: "a wanderer", Character: &model.CharacterState{Mood: "calm"}},
	}}
	result := model.ClassificationResult{
		EntryUpdates: model.EntryUpdates{
			Updates: []model.EntryUpdate{{EntryID: "1", Changes: map[string]any{"mood": "anxious"}}},
		},
	}

	got := e.Apply(snapshot, result, "narration-1")
	if got[0].Character.Mood != "anxious" {
		t.Errorf("Mood = %q, want anxious", got[0].Character.Mood)
	}
	if got[0].Description != "a wanderer" {
		t.Errorf("Description changed unexpectedly: %q", got[0].Description)
	}
}

func TestApplySkipsUnknownEntryID(t *testing.T) {
	e := NewEngine(&fakeProvider{}, "model", config.EntryConfig{}, nil)
	snapshot := model.WorldSnapshot{Entries: []model.Entry{{ID: "1", Name: "Thornwick"}}}
	result := model.ClassificationResult{
		EntryUpdates: model.EntryUpdates{
			Updates: []model.EntryUpdate{{EntryID: "does-not-exist", Changes: map[string]any{"description": "x"}}},
		},
	}
	got := e.Apply(snapshot, result, "narration-1")
	if len(got) != 1 || got[0].Description != "" {
		t.Errorf("unexpected mutation from unknown entryId: %+v", got)
	}
}

func TestApplyNewEntrySkippedWhenNameAlreadyExists(t *testing.T) {
	e := NewEngine(&fakeProvider{}, "model", config.EntryConfig{}, nil)
	snapshot := model.WorldSnapshot{Entries: []model.Entry{{ID: "1", Name: "Thornwick"}}}
	result := model.ClassificationResult{
		EntryUpdates: model.EntryUpdates{
			NewEntries: []model.NewEntrySpec{{Name: "thornwick", Type: model.EntryCharacter}},
		},
	}
	got := e.Apply(snapshot, result, "narration-1")
	if len(got) != 1 {
		t.Errorf("expected no new entry for a case-insensitive duplicate name, got %d entries", len(got))
	}
}

func TestApplyNewEntrySkippedOnFuzzyDuplicate(t *testing.T) {
	e := NewEngine(&fakeProvider{}, "model", config.EntryConfig{}, nil)
	snapshot := model.WorldSnapshot{Entries: []model.Entry{{ID: "1", Name: "Thornwick"}}}
	result := model.ClassificationResult{
		EntryUpdates: model.EntryUpdates{
			NewEntries: []model.NewEntrySpec{{Name: "Thornwickk", Type: model.EntryCharacter}},
		},
	}
	got := e.Apply(snapshot, result, "narration-1")
	if len(got) != 1 {
		t.Errorf("expected fuzzy-duplicate name to be suppressed, got %d entries", len(got))
	}
}

func TestApplyCreatesNewEntryWithProvenance(t *testing.T) {
	e := NewEngine(&fakeProvider{}, "model", config.EntryConfig{}, nil)
	result := model.ClassificationResult{
		EntryUpdates: model.EntryUpdates{
			NewEntries: []model.NewEntrySpec{{Name: "Captain Vale", Type: model.EntryCharacter, Description: "a stern officer"}},
		},
	}
	got := e.Apply(model.WorldSnapshot{}, result, "narration-42")
	if len(got) != 1 {
		t.Fatalf("expected 1 new entry, got %d", len(got))
	}
	if got[0].ID == "" {
		t.Error("expected a fresh id")
	}
	if got[0].Provenance.FirstMentioned != "narration-42" || got[0].Provenance.MentionCount != 1 {
		t.Errorf("unexpected provenance: %+v", got[0].Provenance)
	}
}

func TestApplySceneSetsExactlyOneCurrentLocation(t *testing.T) {
	e := NewEngine(&fakeProvider{}, "model", config.EntryConfig{}, nil)
	snapshot := model.WorldSnapshot{Entries: []model.Entry{
		{ID: "1", Name: "Tavern", Location: &model.LocationState{IsCurrentLocation: true}},
		{ID: "2", Name: "Forest", Location: &model.LocationState{IsCurrentLocation: false}},
	}}
	newLoc := "Forest"
	result := model.ClassificationResult{
		EntryUpdates: model.EntryUpdates{Scene: model.SceneUpdate{NewLocationName: &newLoc}},
	}

	got := e.Apply(snapshot, result, "narration-1")
	var currentCount int
	for _, ent := range got {
		if ent.Location != nil && ent.Location.IsCurrentLocation {
			currentCount++
			if ent.Name != "Forest" {
				t.Errorf("unexpected current location: %s", ent.Name)
			}
		}
	}
	if currentCount != 1 {
		t.Errorf("currentCount = %d, want exactly 1", currentCount)
	}
}

func TestApplySceneAbsenceImpliesDeparture(t *testing.T) {
	e := NewEngine(&fakeProvider{}, "model", config.EntryConfig{}, nil)
	snapshot := model.WorldSnapshot{Entries: []model.Entry{
		{ID: "1", Name: "Alice", Character: &model.CharacterState{IsPresent: true}},
		{ID: "2", Name: "Bob", Character: &model.CharacterState{IsPresent: false}},
	}}
	result := model.ClassificationResult{
		EntryUpdates: model.EntryUpdates{Scene: model.SceneUpdate{PresentCharacterIDs: []string{"2"}}},
	}

	got := e.Apply(snapshot, result, "narration-1")
	byID := map[string]model.Entry{}
	for _, ent := range got {
		byID[ent.ID] = ent
	}
	if byID["1"].Character.IsPresent {
		t.Error("Alice should have departed (absent from presentCharacterIds)")
	}
	if !byID["2"].Character.IsPresent {
		t.Error("Bob should now be present")
	}
}

func TestApplySceneMarksFreshlyCreatedCharacterPresentByName(t *testing.T) {
	e := NewEngine(&fakeProvider{}, "model", config.EntryConfig{}, nil)
	snapshot := model.WorldSnapshot{Entries: []model.Entry{
		{ID: "1", Name: "Alice", Character: &model.CharacterState{IsPresent: true}},
	}}
	result := model.ClassificationResult{
		EntryUpdates: model.EntryUpdates{
			NewEntries: []model.NewEntrySpec{{Name: "Captain Vale", Type: model.EntryCharacter}},
			Scene:      model.SceneUpdate{PresentCharacterIDs: []string{"Captain Vale"}},
		},
	}

	got := e.Apply(snapshot, result, "narration-1")
	var vale model.Entry
	for _, ent := range got {
		if ent.Name == "Captain Vale" {
			vale = ent
		}
	}
	if vale.ID == "" {
		t.Fatalf("expected Captain Vale to be created, got %+v", got)
	}
	if vale.Character == nil || !vale.Character.IsPresent {
		t.Error("Captain Vale should be present: the classifier named her in presentCharacterIds before the Entry Engine minted her id")
	}
	for _, ent := range got {
		if ent.Name == "Alice" && ent.Character.IsPresent {
			t.Error("Alice should have departed: she is absent from presentCharacterIds")
		}
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	e := NewEngine(&fakeProvider{}, "model", config.EntryConfig{}, nil)
	snapshot := model.WorldSnapshot{Entries: []model.Entry{
		{ID: "1", Name: "Thornwick", Character: &model.CharacterState{Mood: "calm"}},
	}}
	result := model.ClassificationResult{
		EntryUpdates: model.EntryUpdates{
			Updates: []model.EntryUpdate{{EntryID: "1", Changes: map[string]any{"mood": "anxious"}}},
		},
	}

	once := e.Apply(snapshot, result, "narration-1")
	twice := e.Apply(model.WorldSnapshot{Entries: once}, result, "narration-1")

	if len(once) != len(twice) {
		t.Fatalf("entry count changed across repeated apply: %d vs %d", len(once), len(twice))
	}
	if once[0].Character.Mood != twice[0].Character.Mood {
		t.Errorf("repeated apply changed state: %q vs %q", once[0].Character.Mood, twice[0].Character.Mood)
	}
}
