// Package memory implements the Memory/Chapter Engine (spec §4.4): the
// retrieval-decision, parallel per-chapter query execution, and
// auto-chapter-creation responsibilities of the turn orchestration core.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"aventura/internal/config"
	"aventura/internal/domain/model"
	"aventura/internal/llmwire"
	"aventura/internal/provider"
)

// ChapterSummary is the compact {number, summary, characters, locations}
// view of a chapter the retrieval-decision prompt is built from (spec
// §4.4); it deliberately excludes full content, which only
// ChapterContentFetcher provides, one chapter at a time, on demand.
type ChapterSummary struct {
	Number     int
	Summary    string
	Characters []string
	Locations  []string
}

// ChapterContentFetcher loads the full Story Entry text spanning a
// chapter, by number, so the Memory Engine can answer a retrieval
// question against it. The Memory Engine does not hold the entry log, so
// this is always supplied by its caller (the Turn Coordinator, which owns
// the log).
type ChapterContentFetcher func(ctx context.Context, chapterNumber int) (string, error)

// RecentMessage is one entry of the recent-window context fed into the
// retrieval-decision and chapter-analysis prompts.
type RecentMessage struct {
	Role    model.EntryRole
	Content string
}

// Engine is the Memory/Chapter Engine. The zero value is not usable;
// construct with NewEngine.
type Engine struct {
	provider provider.Provider
	model    string
	cfg      config.MemoryConfig
	logger   *slog.Logger
}

// NewEngine constructs an Engine. modelID is the provider model used for
// retrieval-decision, per-chapter queries, and chapter analysis/summary
// calls (the "retrieval" and "summarization" roles of spec §6's
// providerModels).
func NewEngine(p provider.Provider, modelID string, cfg config.MemoryConfig, logger *slog.Logger) *Engine {
	return &Engine{provider: p, model: modelID, cfg: cfg, logger: logger}
}

type chapterQuery struct {
	ChapterNumber int    `json:"chapterNumber"`
	Question      string `json:"question"`
}

// Retrieve performs the Memory Engine's Phase-1 retrieval responsibility.
// It returns a nil retrievedContext (and makes zero Provider calls) when
// there are no chapters yet or retrieval is disabled, per spec §4.4 and
// the retrieval-conservativeness invariant (spec §8).
func (e *Engine) Retrieve(ctx context.Context, recentWindow []RecentMessage, userInput string, chapters []ChapterSummary, fetch ChapterContentFetcher) (*string, error) {
	if len(chapters) == 0 || !e.cfg.EnableRetrieval {
		return nil, nil
	}

	queries, err := e.decideQueries(ctx, recentWindow, userInput, chapters)
	if err != nil {
		e.logf("retrieval decision failed, skipping retrieval: %v", err)
		return nil, nil
	}
	if len(queries) == 0 {
		return nil, nil
	}

	queries = capAndPreferRecent(queries, e.cfg.MaxChaptersPerRetrieval)
	segments := e.runQueries(ctx, queries, fetch)

	sort.Slice(segments, func(i, j int) bool { return segments[i].number < segments[j].number })

	var b strings.Builder
	for _, seg := range segments {
		if seg.text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Chapter %d: %s", seg.number, seg.text)
	}
	if b.Len() == 0 {
		return nil, nil
	}
	combined := b.String()
	return &combined, nil
}

// decideQueries calls the Provider with the retrieval-decision prompt and
// parses the resulting JSON list of {chapterNumber, question} pairs. An
// empty list is a valid, expected result (spec §4.4).
func (e *Engine) decideQueries(ctx context.Context, recentWindow []RecentMessage, userInput string, chapters []ChapterSummary) ([]chapterQuery, error) {
	resp, err := e.provider.Complete(ctx, llmwire.GenerateRequest{
		Model:    e.model,
		Messages: []llmwire.Message{{Role: llmwire.RoleUser, Content: decisionPrompt(recentWindow, userInput, chapters)}},
	})
	if err != nil {
		return nil, err
	}

	var queries []chapterQuery
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &queries); err != nil {
		return nil, fmt.Errorf("memory: retrieval decision parse: %w", err)
	}
	return queries, nil
}

// capAndPreferRecent enforces maxChaptersPerRetrieval by keeping the
// queries with the highest chapter numbers (recency preferred), per spec
// §4.4. Queries carry no priority, so the order in which the model listed
// them plays no part in which are dropped.
func capAndPreferRecent(queries []chapterQuery, max int) []chapterQuery {
	if max <= 0 || len(queries) <= max {
		return queries
	}
	sorted := append([]chapterQuery(nil), queries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ChapterNumber > sorted[j].ChapterNumber })
	return sorted[:max]
}

type querySegment struct {
	number int
	text   string
}

// runQueries executes one Provider call per selected chapter concurrently;
// a per-chapter failure yields a skipped (empty) segment rather than
// failing the whole retrieval (spec §4.4).
func (e *Engine) runQueries(ctx context.Context, queries []chapterQuery, fetch ChapterContentFetcher) []querySegment {
	segments := make([]querySegment, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q chapterQuery) {
			defer wg.Done()
			segments[i] = querySegment{number: q.ChapterNumber, text: e.answerQuery(ctx, q, fetch)}
		}(i, q)
	}
	wg.Wait()
	return segments
}

func (e *Engine) answerQuery(ctx context.Context, q chapterQuery, fetch ChapterContentFetcher) string {
	content, err := fetch(ctx, q.ChapterNumber)
	if err != nil {
		e.logf("chapter %d content fetch failed: %v", q.ChapterNumber, err)
		return ""
	}

	resp, err := e.provider.Complete(ctx, llmwire.GenerateRequest{
		Model: e.model,
		Messages: []llmwire.Message{
			{Role: llmwire.RoleSystem, Content: "Answer the question using only the chapter text provided. Be concise."},
			{Role: llmwire.RoleUser, Content: fmt.Sprintf("Chapter text:\n%s\n\nQuestion: %s", content, q.Question)},
		},
	})
	if err != nil {
		e.logf("chapter %d query failed: %v", q.ChapterNumber, err)
		return ""
	}
	return strings.TrimSpace(resp.Content)
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(fmt.Sprintf(format, args...))
	}
}

// extractJSON strips a markdown code fence around a JSON payload if the
// model wrapped its answer in one; otherwise returns s unchanged.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

func decisionPrompt(recentWindow []RecentMessage, userInput string, chapters []ChapterSummary) string {
	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	for _, m := range recentWindow {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
	}
	fmt.Fprintf(&b, "\nNew user input: %s\n\nKnown chapters:\n", userInput)
	for _, c := range chapters {
		fmt.Fprintf(&b, "%d: %s (characters: %s; locations: %s)\n",
			c.Number, c.Summary, strings.Join(c.Characters, ", "), strings.Join(c.Locations, ", "))
	}
	b.WriteString("\nReturn a JSON array of {\"chapterNumber\": int, \"question\": string} for any chapters worth " +
		"consulting before continuing. An empty array is a valid and frequent answer. Return JSON only.")
	return b.String()
}
