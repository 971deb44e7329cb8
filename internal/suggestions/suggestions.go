// Package suggestions implements the creative-mode follow-up generator
// (spec §4.8): three distinct single-sentence continuations tagged by type,
// requested after NarrativeResponse when running in creative-writing mode.
package suggestions

import (
	"context"
	"encoding/json"
	"strings"

	"aventura/internal/llmwire"
	"aventura/internal/provider"
)

// Type is one of the fixed suggestion categories (spec §4.8).
type Type string

const (
	TypeAction     Type = "action"
	TypeDialogue   Type = "dialogue"
	TypeRevelation Type = "revelation"
	TypeTwist      Type = "twist"
)

var allTypes = []Type{TypeAction, TypeDialogue, TypeRevelation, TypeTwist}

// Suggestion is one tagged continuation.
type Suggestion struct {
	Text string
	Type Type
}

// Generator produces suggestions from a completed narration passage. The
// zero value is not usable; construct with New.
type Generator struct {
	provider provider.Provider
	model    string
}

// New constructs a Generator. modelID is the provider model used for the
// "suggestions" role (spec §6 providerModels).
func New(p provider.Provider, modelID string) *Generator {
	return &Generator{provider: p, model: modelID}
}

// Generate requests 3 distinct single-sentence continuations for narration
// and pairs the returned strings round-robin, by position, with the fixed
// types action, dialogue, revelation, twist; the text itself is not
// inspected to choose a type. A parse failure
// produces an empty list rather than an error, since Suggestions is
// fire-and-forget and non-fatal (spec §4.8).
func (g *Generator) Generate(ctx context.Context, narration string) []Suggestion {
	resp, err := g.provider.Complete(ctx, llmwire.GenerateRequest{
		Model: g.model,
		Messages: []llmwire.Message{
			{Role: llmwire.RoleUser, Content: prompt(narration)},
		},
	})
	if err != nil {
		return nil
	}

	var lines []string
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &lines); err != nil {
		return nil
	}

	suggestions := make([]Suggestion, 0, len(lines))
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		suggestions = append(suggestions, Suggestion{Text: line, Type: allTypes[i%len(allTypes)]})
	}
	return suggestions
}

func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

func prompt(narration string) string {
	var b strings.Builder
	b.WriteString("Given the following narration passage, propose exactly 3 distinct single-sentence ways " +
		"the story could continue next. Vary their nature: an action, a line of dialogue, a revelation, or a " +
		"twist. Return a JSON array of 3 strings and nothing else.\n\nNarration:\n")
	b.WriteString(narration)
	return b.String()
}
