package suggestions

import (
	"context"
	"fmt"
	"testing"

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

func TestGenerateReturnsThreeTaggedSuggestions(t *testing.T) {
	p := &fakeProvider{response: `["She draws her sword.", "\"Wait,\" he whispers.", "The letter was a forgery all along."]`}
	g := New(p, "model")

	got := g.Generate(context.Background(), "The door creaks open.")
	if len(got) != 3 {
		t.Fatalf("got %d suggestions, want 3", len(got))
	}
	if got[0].Type != TypeAction {
		t.Errorf("got[0].Type = %q, want action", got[0].Type)
	}
	if got[1].Type != TypeDialogue {
		t.Errorf("got[1].Type = %q, want dialogue", got[1].Type)
	}
}

func TestGenerateOnParseFailureReturnsEmptyList(t *testing.T) {
	p := &fakeProvider{response: "not json"}
	g := New(p, "model")

	got := g.Generate(context.Background(), "x")
	if got != nil {
		t.Errorf("got %+v, want nil on parse failure", got)
	}
}

func TestGenerateOnProviderErrorReturnsEmptyList(t *testing.T) {
	p := &fakeProvider{err: fmt.Errorf("boom")}
	g := New(p, "model")

	got := g.Generate(context.Background(), "x")
	if got != nil {
		t.Errorf("got %+v, want nil on provider error", got)
	}
}

func TestGenerateStripsMarkdownFence(t *testing.T) {
	p := &fakeProvider{response: "```json\n[\"a\", \"b\", \"c\"]\n```"}
	g := New(p, "model")

	got := g.Generate(context.Background(), "x")
	if len(got) != 3 {
		t.Fatalf("got %d suggestions, want 3", len(got))
	}
}

func TestGenerateSkipsBlankEntries(t *testing.T) {
	p := &fakeProvider{response: `["a", "", "c"]`}
	g := New(p, "model")

	got := g.Generate(context.Background(), "x")
	if len(got) != 2 {
		t.Errorf("got %d suggestions, want 2 (blank skipped)", len(got))
	}
}
