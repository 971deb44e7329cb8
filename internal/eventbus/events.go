package eventbus

import "aventura/internal/domain/model"

// EventType is the closed set of event kinds the bus carries (spec §4.1).
// No other type may be published.
type EventType string

const (
	TypeUserInput             EventType = "user_input"
	TypeContextReady          EventType = "context_ready"
	TypeResponseStreaming     EventType = "response_streaming"
	TypeSentenceComplete      EventType = "sentence_complete"
	TypeNarrativeResponse     EventType = "narrative_response"
	TypeClassificationComplete EventType = "classification_complete"
	TypeSuggestionsReady      EventType = "suggestions_ready"
	TypeStateUpdated          EventType = "state_updated"
	TypeChapterCreated        EventType = "chapter_created"
	TypeSaveComplete          EventType = "save_complete"
)

// Event is an immutable record tagged by one of the EventType constants.
type Event interface {
	Type() EventType
}

// UserInput is emitted once the Turn Coordinator accepts a user submission
// and appends the corresponding user Story Entry.
type UserInput struct {
	TurnID  string
	Content string
	Mode    string // "adventure" | "creative-writing" (config.Mode)
}

func (UserInput) Type() EventType { return TypeUserInput }

// ContextReady is emitted once Memory.retrieve and Entry.select both settle.
// RetrievedContext is nil when Memory skipped retrieval (spec §4.4 invariant).
type ContextReady struct {
	TurnID           string
	RetrievedContext *string
	SelectedEntries  []model.Entry
}

func (ContextReady) Type() EventType { return TypeContextReady }

// ResponseStreaming is emitted for every chunk the Narrator Pipeline forwards,
// strictly in arrival order (spec §8).
type ResponseStreaming struct {
	TurnID     string
	Chunk      string
	Accumulated string
}

func (ResponseStreaming) Type() EventType { return TypeResponseStreaming }

// SentenceComplete is emitted whenever the sentence buffer yields a completed
// sentence, in the order the terminating character arrived (spec §4.5, §8).
type SentenceComplete struct {
	TurnID string
	Text   string
}

func (SentenceComplete) Type() EventType { return TypeSentenceComplete }

// NarrativeResponse is emitted once the stream ends with a non-empty
// accumulated response, after the narration Story Entry is appended.
type NarrativeResponse struct {
	TurnID    string
	MessageID string
	Content   string
}

func (NarrativeResponse) Type() EventType { return TypeNarrativeResponse }

// ClassificationComplete is emitted once the Classifier returns a result
// (spec §4.6).
type ClassificationComplete struct {
	TurnID    string
	MessageID string
	Result    model.ClassificationResult
}

func (ClassificationComplete) Type() EventType { return TypeClassificationComplete }

// Suggestion is one tagged follow-up continuation (spec §4.8).
type Suggestion struct {
	Text string
	Type string // action | dialogue | revelation | twist
}

// SuggestionsReady is emitted after the background Suggestions generator
// finishes in creative mode; fire-and-forget relative to turn completion.
type SuggestionsReady struct {
	TurnID      string
	Suggestions []Suggestion
}

func (SuggestionsReady) Type() EventType { return TypeSuggestionsReady }

// StateUpdated is emitted once Phase 4 finishes applying entry deltas
// (updates, newEntries, scene), reflecting the post-apply entry set.
type StateUpdated struct {
	TurnID  string
	Entries []model.Entry
}

func (StateUpdated) Type() EventType { return TypeStateUpdated }

// ChapterCreated is emitted when the Chapter Engine closes a chapter
// boundary (spec §4.4).
type ChapterCreated struct {
	TurnID  string
	Chapter model.Chapter
}

func (ChapterCreated) Type() EventType { return TypeChapterCreated }

// SaveComplete is emitted by the Persistence collaborator once a turn's
// side effects (entries, chapters, state) have been durably written. The
// core never blocks on it (spec §1 Non-goals: persistence is external).
type SaveComplete struct {
	TurnID string
}

func (SaveComplete) Type() EventType { return TypeSaveComplete }
