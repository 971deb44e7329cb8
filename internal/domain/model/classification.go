package model

// TimeProgression is opaque metadata forwarded unchanged to consumers
// (spec §9 Open Question: semantics beyond this enum are undefined here).
type TimeProgression string

const (
	TimeNone    TimeProgression = "none"
	TimeMinutes TimeProgression = "minutes"
	TimeHours   TimeProgression = "hours"
	TimeDays    TimeProgression = "days"
)

// VisualElement flags a span of narration worth illustrating. The core only
// classifies; image generation itself is an external collaborator (spec §1
// Non-goals).
type VisualElement struct {
	TextSpan           string
	Type               string
	Importance         int
	ImagePrompt        string
	GenerateImmediately bool
}

// EntryUpdate applies a partial change to an existing Entry. Only fields
// present in Changes are assigned (spec §4.7 Phase 4).
type EntryUpdate struct {
	EntryID string
	Changes map[string]any
}

// NewEntrySpec describes an Entry to create (spec §4.6).
type NewEntrySpec struct {
	Name        string
	Type        EntryType
	Description string
	Aliases     []string
	InitialState map[string]any
}

// SceneUpdate captures location/presence/time changes (spec §4.6).
type SceneUpdate struct {
	NewLocationName      *string
	PresentCharacterIDs  []string
	TimeProgression      TimeProgression
}

// EntryUpdates is the entryUpdates block of a Classification Result (spec §4.6).
type EntryUpdates struct {
	Updates    []EntryUpdate
	NewEntries []NewEntrySpec
	Scene      SceneUpdate
}

// ChapterAnalysis is the chapterAnalysis block (spec §4.4, §4.6).
type ChapterAnalysis struct {
	ShouldCreateChapter bool
	Reason              string
	SuggestedTitle      *string
}

// VoiceContext is the voiceContext block (spec §4.6), forwarded to
// TTS/voice external collaborators unchanged.
type VoiceContext struct {
	PrimarySpeaker *string
	Mood           string
}

// ClassificationResult is the fixed JSON schema the Classifier produces
// (spec §4.6). Consumed at most once per narration entry, then discarded.
type ClassificationResult struct {
	VisualElements  []VisualElement
	EntryUpdates    EntryUpdates
	ChapterAnalysis ChapterAnalysis
	VoiceContext    VoiceContext

	// CreativeUpdates is an opaque object forwarded verbatim to creative-mode
	// consumers (spec §9 Open Question: not fully specified).
	CreativeUpdates map[string]any
}
