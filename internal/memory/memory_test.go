package memory

import (
	"context"
	"fmt"
	"testing"

	"aventura/internal/config"
	"aventura/internal/llmwire"
)

// fakeProvider returns a scripted response for every Complete call, in
// call order; it is not safe for concurrent test scenarios that assert
// ordering, but retrieval's per-chapter queries only assert on content.
type fakeProvider struct {
	responses []string
	calls     int
	failOn    map[int]bool
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, req llmwire.GenerateRequest) (llmwire.GenerateResponse, error) {
	i := f.calls
	f.calls++
	if f.failOn[i] {
		return llmwire.GenerateResponse{}, fmt.Errorf("fake failure on call %d", i)
	}
	if i >= len(f.responses) {
		return llmwire.GenerateResponse{}, fmt.Errorf("fakeProvider: no scripted response for call %d", i)
	}
	return llmwire.GenerateResponse{Content: f.responses[i]}, nil
}

func (f *fakeProvider) CompleteWithTools(ctx context.Context, req llmwire.GenerateRequest) (llmwire.GenerateResponse, error) {
	return f.Complete(ctx, req)
}

func (f *fakeProvider) Stream(ctx context.Context, req llmwire.GenerateRequest) (<-chan llmwire.StreamEvent, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeProvider) ListModels(ctx context.Context) ([]llmwire.Model, error) { return nil, nil }
func (f *fakeProvider) ValidateCredentials(ctx context.Context) error           { return nil }

func TestRetrieveSkipsWhenNoChapters(t *testing.T) {
	p := &fakeProvider{}
	e := NewEngine(p, "test-model", config.MemoryConfig{EnableRetrieval: true, MaxChaptersPerRetrieval: 4}, nil)

	ctx, err := e.Retrieve(context.Background(), nil, "I open the door.", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx != nil {
		t.Errorf("expected nil retrievedContext, got %v", *ctx)
	}
	if p.calls != 0 {
		t.Errorf("expected zero Provider calls, got %d", p.calls)
	}
}

func TestRetrieveEmptyDecisionIsNonFatal(t *testing.T) {
	p := &fakeProvider{responses: []string{"[]"}}
	e := NewEngine(p, "test-model", config.MemoryConfig{EnableRetrieval: true, MaxChaptersPerRetrieval: 4}, nil)

	chapters := []ChapterSummary{{Number: 1, Summary: "The hero arrives in town."}}
	ctx, err := e.Retrieve(context.Background(), nil, "hi", chapters, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx != nil {
		t.Errorf("expected nil retrievedContext, got %v", *ctx)
	}
}

func TestRetrieveCombinesSegmentsInChapterOrder(t *testing.T) {
	p := &fakeProvider{responses: []string{
		`[{"chapterNumber":2,"question":"who arrived?"},{"chapterNumber":1,"question":"where?"}]`,
		"Thornwick arrived.",
		"The tavern.",
	}}
	e := NewEngine(p, "test-model", config.MemoryConfig{EnableRetrieval: true, MaxChaptersPerRetrieval: 4}, nil)

	chapters := []ChapterSummary{
		{Number: 1, Summary: "setup"},
		{Number: 2, Summary: "arrival"},
	}
	fetch := func(ctx context.Context, n int) (string, error) { return fmt.Sprintf("chapter %d text", n), nil }

	got, err := e.Retrieve(context.Background(), nil, "hi", chapters, fetch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("expected non-nil retrievedContext")
	}
	if idx1, idx2 := indexOf(*got, "Chapter 1"), indexOf(*got, "Chapter 2"); idx1 == -1 || idx2 == -1 || idx1 > idx2 {
		t.Errorf("segments not combined in chapter order: %q", *got)
	}
}

func TestRetrievePerChapterFailureIsSkippedNotFatal(t *testing.T) {
	p := &fakeProvider{
		responses: []string{
			`[{"chapterNumber":1,"question":"q1"},{"chapterNumber":2,"question":"q2"}]`,
			"",
			"answer for chapter 2",
		},
		failOn: map[int]bool{1: true},
	}
	e := NewEngine(p, "test-model", config.MemoryConfig{EnableRetrieval: true, MaxChaptersPerRetrieval: 4}, nil)

	chapters := []ChapterSummary{{Number: 1, Summary: "a"}, {Number: 2, Summary: "b"}}
	fetch := func(ctx context.Context, n int) (string, error) { return "content", nil }

	got, err := e.Retrieve(context.Background(), nil, "hi", chapters, fetch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("expected non-nil retrievedContext despite one chapter failing")
	}
}

func TestCapAndPreferRecentKeepsHighestChapterNumbers(t *testing.T) {
	queries := []chapterQuery{{ChapterNumber: 1}, {ChapterNumber: 5}, {ChapterNumber: 3}, {ChapterNumber: 2}}
	capped := capAndPreferRecent(queries, 2)
	if len(capped) != 2 {
		t.Fatalf("len(capped) = %d, want 2", len(capped))
	}
	if capped[0].ChapterNumber != 5 || capped[1].ChapterNumber != 3 {
		t.Errorf("capped = %v, want chapters [5 3] (recency preferred)", capped)
	}
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
