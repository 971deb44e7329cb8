package classifier

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"aventura/internal/domain"
	"aventura/internal/domain/model"
	"aventura/internal/llmwire"
)

type fakeProvider struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Complete(ctx context.Context, req llmwire.GenerateRequest) (llmwire.GenerateResponse, error) {
	idx := f.calls
	f.calls++
	if f.err != nil {
		return llmwire.GenerateResponse{}, f.err
	}
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return llmwire.GenerateResponse{Content: f.responses[idx]}, nil
}
func (f *fakeProvider) CompleteWithTools(ctx context.Context, req llmwire.GenerateRequest) (llmwire.GenerateResponse, error) {
	return f.Complete(ctx, req)
}
func (f *fakeProvider) Stream(ctx context.Context, req llmwire.GenerateRequest) (<-chan llmwire.StreamEvent, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeProvider) ListModels(ctx context.Context) ([]llmwire.Model, error) { return nil, nil }
func (f *fakeProvider) ValidateCredentials(ctx context.Context) error           { return nil }

const validResponse = `{
  "visualElements": [],
  "entryUpdates": {
    "updates": [{"entryId": "1", "changes": {"mood": "anxious"}}],
    "newEntries": [],
    "scene": {"newLocationName": null, "presentCharacterIds": [], "timeProgression": "none"}
  },
  "chapterAnalysis": {"shouldCreateChapter": false, "reason": "", "suggestedTitle": null},
  "voiceContext": {"primarySpeaker": null, "mood": "tense"}
}`

func TestClassifyParsesValidResponse(t *testing.T) {
	p := &fakeProvider{responses: []string{validResponse}}
	c := New(p, "model")

	got, err := c.Classify(context.Background(), Input{NarrationText: "x", Snapshot: model.WorldSnapshot{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.EntryUpdates.Updates) != 1 || got.EntryUpdates.Updates[0].EntryID != "1" {
		t.Errorf("unexpected updates: %+v", got.EntryUpdates.Updates)
	}
	if got.VoiceContext.Mood != "tense" {
		t.Errorf("Mood = %q", got.VoiceContext.Mood)
	}
	if p.calls != 1 {
		t.Errorf("expected exactly one call for a valid first response, got %d", p.calls)
	}
}

func TestClassifyRetriesOnInvalidJSONThenSucceeds(t *testing.T) {
	p := &fakeProvider{responses: []string{`Sure! here's the JSON: {"entryUpdates":`, validResponse}}
	c := New(p, "model")

	got, err := c.Classify(context.Background(), Input{NarrationText: "x", Snapshot: model.WorldSnapshot{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.calls != 2 {
		t.Errorf("expected 2 calls (1 retry), got %d", p.calls)
	}
	if got.VoiceContext.Mood != "tense" {
		t.Errorf("Mood = %q", got.VoiceContext.Mood)
	}
}

func TestClassifyStripsMarkdownFence(t *testing.T) {
	fenced := "```json\n" + validResponse + "\n```"
	p := &fakeProvider{responses: []string{fenced}}
	c := New(p, "model")

	got, err := c.Classify(context.Background(), Input{NarrationText: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.VoiceContext.Mood != "tense" {
		t.Errorf("Mood = %q", got.VoiceContext.Mood)
	}
}

func TestClassifyExhaustsRetriesAndReturnsSchemaParseError(t *testing.T) {
	p := &fakeProvider{responses: []string{"not json", "still not json", "nope", "nope", "nope"}}
	c := New(p, "model")

	_, err := c.Classify(context.Background(), Input{NarrationText: "x"})
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if !errors.Is(err, domain.ErrSchemaParse) {
		t.Errorf("expected error to wrap domain.ErrSchemaParse, got %v", err)
	}
	if p.calls != 5 {
		t.Errorf("expected exactly 5 attempts, got %d", p.calls)
	}
}

func TestClassifyEmptyArraysProduceNoOpApply(t *testing.T) {
	empty := `{
  "visualElements": [],
  "entryUpdates": {"updates": [], "newEntries": [], "scene": {"newLocationName": null, "presentCharacterIds": [], "timeProgression": "none"}},
  "chapterAnalysis": {"shouldCreateChapter": false, "reason": "", "suggestedTitle": null},
  "voiceContext": {"primarySpeaker": null, "mood": "neutral"}
}`
	p := &fakeProvider{responses: []string{empty}}
	c := New(p, "model")

	got, err := c.Classify(context.Background(), Input{NarrationText: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.EntryUpdates.Updates) != 0 || len(got.EntryUpdates.NewEntries) != 0 {
		t.Errorf("expected empty deltas, got %+v", got.EntryUpdates)
	}
}

func TestClassifyPropagatesProviderErrorWithoutSchemaRetry(t *testing.T) {
	p := &fakeProvider{err: fmt.Errorf("boom")}
	c := New(p, "model")

	_, err := c.Classify(context.Background(), Input{NarrationText: "x"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if p.calls != 1 {
		t.Errorf("expected Provider error to short-circuit without schema-parse retries, got %d calls", p.calls)
	}
}

func TestClassifyRejectsUnknownEntryTypeAsSchemaParseError(t *testing.T) {
	badType := `{
  "visualElements": [],
  "entryUpdates": {
    "updates": [],
    "newEntries": [{"name": "Mystery Box", "type": "not-a-real-type", "description": "", "aliases": [], "initialState": {}}],
    "scene": {"newLocationName": null, "presentCharacterIds": [], "timeProgression": "none"}
  },
  "chapterAnalysis": {"shouldCreateChapter": false, "reason": "", "suggestedTitle": null},
  "voiceContext": {"primarySpeaker": null, "mood": "neutral"}
}`
	p := &fakeProvider{responses: []string{badType, badType, badType, badType, badType}}
	c := New(p, "model")

	_, err := c.Classify(context.Background(), Input{NarrationText: "x"})
	if err == nil {
		t.Fatal("expected an error for an out-of-schema entry type")
	}
	if !errors.Is(err, domain.ErrSchemaParse) {
		t.Errorf("expected error to wrap domain.ErrSchemaParse, got %v", err)
	}
}

func TestClassifyRejectsUnknownTimeProgression(t *testing.T) {
	badTime := `{
  "visualElements": [],
  "entryUpdates": {
    "updates": [],
    "newEntries": [],
    "scene": {"newLocationName": null, "presentCharacterIds": [], "timeProgression": "decades"}
  },
  "chapterAnalysis": {"shouldCreateChapter": false, "reason": "", "suggestedTitle": null},
  "voiceContext": {"primarySpeaker": null, "mood": "neutral"}
}`
	p := &fakeProvider{responses: []string{badTime, badTime, badTime, badTime, badTime}}
	c := New(p, "model")

	_, err := c.Classify(context.Background(), Input{NarrationText: "x"})
	if err == nil {
		t.Fatal("expected an error for an out-of-schema time progression")
	}
	if !errors.Is(err, domain.ErrSchemaParse) {
		t.Errorf("expected error to wrap domain.ErrSchemaParse, got %v", err)
	}
}
