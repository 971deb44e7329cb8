// Package entry implements the Entry Engine (spec §4.7): tiered,
// latency-aware selection of world-model Entries for prompt injection, and
// idempotent application of classifier-produced deltas.
package entry

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"aventura/internal/config"
	"aventura/internal/domain/model"
	"aventura/internal/llmwire"
	"aventura/internal/provider"
	"aventura/internal/tokenbudget"
)

// Engine is the Entry Engine. The zero value is not usable; construct with
// NewEngine.
type Engine struct {
	provider provider.Provider
	model    string
	cfg      config.EntryConfig
	counter  *tokenbudget.Counter
}

// NewEngine constructs an Engine. counter is shared with the Narrator
// Pipeline so both enforce the same token accounting.
func NewEngine(p provider.Provider, modelID string, cfg config.EntryConfig, counter *tokenbudget.Counter) *Engine {
	return &Engine{provider: p, model: modelID, cfg: cfg, counter: counter}
}

// isStateActive reports whether e qualifies for Tier 1 by its own dynamic
// state (spec §4.7): current location, present, or carried.
func isStateActive(e model.Entry) bool {
	if e.Location != nil && e.Location.IsCurrentLocation {
		return true
	}
	if e.Character != nil && e.Character.IsPresent {
		return true
	}
	if e.Item != nil && (e.Item.IsPresent || e.Item.InInventory) {
		return true
	}
	return false
}

// tier1 selects every entry active by state or with injection.mode=always.
func tier1(entries []model.Entry) map[string]model.Entry {
	out := make(map[string]model.Entry)
	for _, e := range entries {
		if isStateActive(e) || e.Injection.Mode == model.InjectionAlways {
			out[e.ID] = e
		}
	}
	return out
}

var wordBoundary = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// containsWhole reports whether needle appears in haystack as a whole
// word, case-insensitively (spec §4.7 Tier 2: "whole-word match").
func containsWhole(haystack, needle string) bool {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return false
	}
	haystackWords := wordBoundary.Split(strings.ToLower(haystack), -1)
	needleWords := wordBoundary.Split(strings.ToLower(needle), -1)
	if len(needleWords) == 0 {
		return false
	}
	for i := 0; i+len(needleWords) <= len(haystackWords); i++ {
		match := true
		for j, nw := range needleWords {
			if haystackWords[i+j] != nw {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// tier2 selects entries whose name or any alias whole-word-matches the
// concatenation of the recent window and the new user input.
func tier2(entries []model.Entry, recentWindow []string, userInput string) map[string]model.Entry {
	haystack := strings.Join(recentWindow, " ") + " " + userInput

	out := make(map[string]model.Entry)
	for _, e := range entries {
		if containsWhole(haystack, e.Name) {
			out[e.ID] = e
			continue
		}
		for _, alias := range e.Aliases {
			if containsWhole(haystack, alias) {
				out[e.ID] = e
				break
			}
		}
	}
	return out
}

type tier3Candidate struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type tier3Selection struct {
	EntryIDs []string `json:"entryIds"`
}

// tier3 asks the Provider to pick up to k relevant entries from the
// remaining pool when it exceeds llmThreshold (spec §4.7). It runs
// concurrently with Memory.retrieve by virtue of being invoked the same
// way from the Turn Coordinator's Phase-1 fan-out; it adds no additional
// synchronous step of its own here.
func (e *Engine) tier3(ctx context.Context, remaining []model.Entry, recentWindow []string, userInput string, k int) (map[string]model.Entry, error) {
	if !e.cfg.EnableLLMSelection || len(remaining) <= e.cfg.LLMThreshold {
		return nil, nil
	}

	candidates := make([]tier3Candidate, len(remaining))
	byID := make(map[string]model.Entry, len(remaining))
	for i, e2 := range remaining {
		candidates[i] = tier3Candidate{ID: e2.ID, Name: e2.Name, Description: e2.Description}
		byID[e2.ID] = e2
	}
	candidateJSON, err := json.Marshal(candidates)
	if err != nil {
		return nil, fmt.Errorf("entry: marshal tier-3 candidates: %w", err)
	}

	prompt := fmt.Sprintf(
		"Recent conversation: %s\nNew user input: %s\n\nCandidate entries:\n%s\n\n"+
			"Select up to %d entry ids most relevant to continuing the story. "+
			"Return JSON only: {\"entryIds\": [string, ...]}.",
		strings.Join(recentWindow, " "), userInput, string(candidateJSON), k,
	)

	resp, err := e.provider.Complete(ctx, llmwire.GenerateRequest{
		Model:    e.model,
		Messages: []llmwire.Message{{Role: llmwire.RoleUser, Content: prompt}},
	})
	if err != nil {
		return nil, err
	}

	var sel tier3Selection
	if err := json.Unmarshal([]byte(trimJSONFence(resp.Content)), &sel); err != nil {
		return nil, fmt.Errorf("entry: parse tier-3 selection: %w", err)
	}

	out := make(map[string]model.Entry)
	for _, id := range sel.EntryIDs {
		if e2, ok := byID[id]; ok {
			out[id] = e2
		}
		// Unknown ids are discarded (spec §4.7).
	}
	return out, nil
}

func trimJSONFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// defaultTier3K is the cap on model-assisted selections when the caller
// does not specify one explicitly.
const defaultTier3K = 10

// Select runs the full Phase-1 tiered selection and returns the final
// entry list ordered by injection.priority descending, then mentionCount
// descending, truncated to maxEntryTokens (spec §4.7).
func (e *Engine) Select(ctx context.Context, snapshot model.WorldSnapshot, recentWindow []string, userInput string) ([]model.Entry, error) {
	selected := tier1(snapshot.Entries)
	for id, ent := range tier2(snapshot.Entries, recentWindow, userInput) {
		selected[id] = ent
	}

	remaining := make([]model.Entry, 0, len(snapshot.Entries))
	for _, ent := range snapshot.Entries {
		if _, ok := selected[ent.ID]; !ok {
			remaining = append(remaining, ent)
		}
	}

	tier3Picks, err := e.tier3(ctx, remaining, recentWindow, userInput, defaultTier3K)
	if err != nil {
		// Tier 3 is an optimization over Tier 1/2; a failure here must not
		// fail selection outright.
		tier3Picks = nil
	}
	for id, ent := range tier3Picks {
		selected[id] = ent
	}

	ordered := make([]model.Entry, 0, len(selected))
	for _, ent := range selected {
		ordered = append(ordered, ent)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Injection.Priority != ordered[j].Injection.Priority {
			return ordered[i].Injection.Priority > ordered[j].Injection.Priority
		}
		return ordered[i].Provenance.MentionCount > ordered[j].Provenance.MentionCount
	})

	return e.truncateToTokenBudget(ordered), nil
}

func (e *Engine) truncateToTokenBudget(ordered []model.Entry) []model.Entry {
	if e.counter == nil || e.cfg.MaxEntryTokens <= 0 {
		return ordered
	}
	var used int
	out := make([]model.Entry, 0, len(ordered))
	for _, ent := range ordered {
		cost := e.counter.Count(ent.Name + " " + ent.Description)
		if used+cost > e.cfg.MaxEntryTokens && len(out) > 0 {
			break
		}
		out = append(out, ent)
		used += cost
	}
	return out
}
