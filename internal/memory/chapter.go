package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"aventura/internal/domain/model"
	"aventura/internal/llmwire"
)

// PendingEntry is one Story Entry not yet enclosed in a chapter, in
// sequence order, as seen by the auto-chapter-creation decision.
type PendingEntry struct {
	ID      string
	Seq     int
	Content string
}

// chapterAnalysisResponse is the {optimalEndIndex, suggestedTitle} JSON
// the Provider returns when asked to find a natural scene break (spec
// §4.4). optimalEndIndex is an index into the pending slice, not a Seq.
type chapterAnalysisResponse struct {
	OptimalEndIndex int    `json:"optimalEndIndex"`
	SuggestedTitle  string `json:"suggestedTitle"`
}

// MaybeCreateChapter implements the auto-chapter-creation rule (spec
// §4.4). pending is every Story Entry since the last chapter boundary, in
// sequence order. classifierRequested mirrors
// ClassificationResult.ChapterAnalysis.ShouldCreateChapter, which
// overrides the threshold check when true. prevChapterNumber is 0 when no
// chapter exists yet.
//
// Returns (nil, nil) when no chapter should be created this turn.
func (e *Engine) MaybeCreateChapter(ctx context.Context, pending []PendingEntry, classifierRequested bool, prevChapterNumber int) (*model.Chapter, error) {
	n := e.cfg.ChapterThreshold
	x := e.cfg.ChapterBuffer
	m := len(pending)

	if !classifierRequested && m < n+x {
		return nil, nil
	}
	if m <= x {
		// Not enough entries to leave the buffer untouched; defer.
		return nil, nil
	}

	candidateLen := m - x
	analysis, err := e.analyzeSceneBreak(ctx, pending[:candidateLen])
	if err != nil {
		return nil, fmt.Errorf("memory: chapter scene-break analysis: %w", err)
	}

	endIndex := analysis.OptimalEndIndex
	if endIndex < 0 || endIndex >= candidateLen {
		endIndex = candidateLen - 1
	}

	span := pending[:endIndex+1]
	summary, err := e.summarize(ctx, span)
	if err != nil {
		return nil, fmt.Errorf("memory: chapter summary: %w", err)
	}

	chapter := &model.Chapter{
		Number:       prevChapterNumber + 1,
		StartEntryID: span[0].ID,
		EndEntryID:   span[len(span)-1].ID,
		StartSeq:     span[0].Seq,
		EndSeq:       span[len(span)-1].Seq,
		EntryCount:   len(span),
		Title:        analysis.SuggestedTitle,
		Summary:      summary,
	}
	return chapter, nil
}

func (e *Engine) analyzeSceneBreak(ctx context.Context, candidates []PendingEntry) (chapterAnalysisResponse, error) {
	var b strings.Builder
	for i, p := range candidates {
		fmt.Fprintf(&b, "[%d] %s\n", i, p.Content)
	}

	resp, err := e.provider.Complete(ctx, llmwire.GenerateRequest{
		Model: e.model,
		Messages: []llmwire.Message{
			{Role: llmwire.RoleSystem, Content: "Find the best natural scene break to close a chapter. " +
				"Return JSON only: {\"optimalEndIndex\": int, \"suggestedTitle\": string}. " +
				"optimalEndIndex is the 0-based index of the last entry to include."},
			{Role: llmwire.RoleUser, Content: b.String()},
		},
	})
	if err != nil {
		return chapterAnalysisResponse{}, err
	}

	var analysis chapterAnalysisResponse
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &analysis); err != nil {
		return chapterAnalysisResponse{}, fmt.Errorf("parse scene-break response: %w", err)
	}
	return analysis, nil
}

func (e *Engine) summarize(ctx context.Context, span []PendingEntry) (string, error) {
	var b strings.Builder
	for _, p := range span {
		b.WriteString(p.Content)
		b.WriteString("\n")
	}

	resp, err := e.provider.Complete(ctx, llmwire.GenerateRequest{
		Model: e.model,
		Messages: []llmwire.Message{
			{Role: llmwire.RoleSystem, Content: "Summarize this chapter of the story for long-term memory retrieval. Be thorough but concise."},
			{Role: llmwire.RoleUser, Content: b.String()},
		},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
