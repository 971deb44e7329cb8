package entry

import (
	"context"
	"fmt"
	"testing"

	"aventura/internal/config"
	"aventura/internal/domain/model"
	"aventura/internal/llmwire"
)

type fakeProvider struct {
	response string
	err      error
	calls    int
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Complete(ctx context.Context, req llmwire.GenerateRequest) (llmwire.GenerateResponse, error) {
	f.calls++
	if f.err != nil {
		return llmwire.GenerateResponse{}, f.err
	}
	return llmwire.GenerateResponse{Content: f.response}, nil
}
func (f *fakeProvider) CompleteWithTools(ctx context.Context, req llmwire.GenerateRequest) (llmwire.GenerateResponse, error) {
	return f.Complete(ctx, req)
}
func (f *fakeProvider) Stream(ctx context.Context, req llmwire.GenerateRequest) (<-chan llmwire.StreamEvent, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeProvider) ListModels(ctx context.Context) ([]llmwire.Model, error) { return nil, nil }
func (f *fakeProvider) ValidateCredentials(ctx context.Context) error           { return nil }

func charEntry(id, name string, present bool) model.Entry {
	return model.Entry{
		ID:        id,
		Name:      name,
		Type:      model.EntryCharacter,
		Character: &model.CharacterState{IsPresent: present},
	}
}

func TestTier1SelectsStateActiveEntries(t *testing.T) {
	entries := []model.Entry{
		charEntry("1", "Thornwick", true),
		charEntry("2", "Bystander", false),
	}
	got := tier1(entries)
	if _, ok := got["1"]; !ok {
		t.Error("expected present character to be Tier-1 selected")
	}
	if _, ok := got["2"]; ok {
		t.Error("expected absent character to be excluded from Tier-1")
	}
}

func TestTier1SelectsInjectionAlways(t *testing.T) {
	e := model.Entry{ID: "1", Injection: model.InjectionPolicy{Mode: model.InjectionAlways}}
	got := tier1([]model.Entry{e})
	if _, ok := got["1"]; !ok {
		t.Error("expected injection.mode=always entry to be Tier-1 selected")
	}
}

func TestTier2WholeWordMatch(t *testing.T) {
	entries := []model.Entry{
		{ID: "1", Name: "Thornwick"},
		{ID: "2", Name: "Thorn"},
	}
	got := tier2(entries, nil, "Remember Thornwick?")
	if _, ok := got["1"]; !ok {
		t.Error("expected Thornwick to match")
	}
	if _, ok := got["2"]; ok {
		t.Error("expected partial-word 'Thorn' not to match inside 'Thornwick'")
	}
}

func TestTier2MatchesAliases(t *testing.T) {
	entries := []model.Entry{{ID: "1", Name: "The Wanderer", Aliases: []string{"Thornwick"}}}
	got := tier2(entries, nil, "have you seen thornwick")
	if _, ok := got["1"]; !ok {
		t.Error("expected case-insensitive alias match")
	}
}

func TestSelectOrdersByPriorityThenMentionCount(t *testing.T) {
	e := NewEngine(&fakeProvider{}, "model", config.EntryConfig{}, nil)

	entries := []model.Entry{
		{ID: "low", Injection: model.InjectionPolicy{Mode: model.InjectionAlways, Priority: 1}, Provenance: model.Provenance{MentionCount: 5}},
		{ID: "high", Injection: model.InjectionPolicy{Mode: model.InjectionAlways, Priority: 10}, Provenance: model.Provenance{MentionCount: 1}},
	}
	snapshot := model.WorldSnapshot{Entries: entries}

	got, err := e.Select(context.Background(), snapshot, nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "high" {
		t.Errorf("got = %+v, want high-priority entry first", got)
	}
}

func TestSelectSkipsTier3BelowThreshold(t *testing.T) {
	p := &fakeProvider{}
	e := NewEngine(p, "model", config.EntryConfig{EnableLLMSelection: true, LLMThreshold: 30}, nil)

	entries := []model.Entry{charEntry("1", "Alice", false)}
	_, err := e.Select(context.Background(), model.WorldSnapshot{Entries: entries}, nil, "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.calls != 0 {
		t.Errorf("expected no Provider call below llmThreshold, got %d calls", p.calls)
	}
}

func TestSelectUsesTier3AboveThreshold(t *testing.T) {
	entries := make([]model.Entry, 35)
	for i := range entries {
		entries[i] = charEntry(fmt.Sprintf("e%d", i), fmt.Sprintf("Character%d", i), false)
	}
	p := &fakeProvider{response: `{"entryIds":["e0","e1","unknown-id"]}`}
	e := NewEngine(p, "model", config.EntryConfig{EnableLLMSelection: true, LLMThreshold: 30}, nil)

	got, err := e.Select(context.Background(), model.WorldSnapshot{Entries: entries}, nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.calls != 1 {
		t.Errorf("expected exactly one Tier-3 Provider call, got %d", p.calls)
	}

	ids := map[string]bool{}
	for _, e := range got {
		ids[e.ID] = true
	}
	if !ids["e0"] || !ids["e1"] {
		t.Errorf("expected tier-3 picks e0 and e1 to be selected, got %+v", got)
	}
	if ids["unknown-id"] {
		t.Error("unknown tier-3 id should have been discarded")
	}
}
