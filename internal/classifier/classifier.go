// Package classifier implements the Classifier (spec §4.6): structured JSON
// extraction of a narration passage into a ClassificationResult, with
// schema-parse retry and a conservative-delta instruction to the model.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"aventura/internal/domain"
	"aventura/internal/domain/model"
	"aventura/internal/llmwire"
	"aventura/internal/provider"
)

// retryPolicy mirrors the Provider Adapter's schedule (spec §7): base 500ms,
// cap 8s, max 5 attempts. Classifier retries are driven by schema-parse
// failure rather than by Provider error classification.
var retryPolicy = struct {
	base       time.Duration
	cap        time.Duration
	maxRetries uint
}{
	base:       500 * time.Millisecond,
	cap:        8 * time.Second,
	maxRetries: 5,
}

func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryPolicy.base
	b.MaxInterval = retryPolicy.cap
	return b
}

// Input bundles everything the Classifier needs to produce a
// ClassificationResult (spec §4.6).
type Input struct {
	NarrationText string
	UserAction    string
	Snapshot      model.WorldSnapshot
	Mode          string // "adventure" | "creative-writing", forwarded into the prompt only
}

// Classifier produces a ClassificationResult from narration text. The zero
// value is not usable; construct with New.
type Classifier struct {
	provider provider.Provider
	model    string
}

// New constructs a Classifier. modelID is the provider model used for the
// "classifier" role (spec §6 providerModels).
func New(p provider.Provider, modelID string) *Classifier {
	return &Classifier{provider: p, model: modelID}
}

// Classify calls the Provider and parses its response into a
// ClassificationResult, making up to 5 attempts in total: after a parse
// failure it asks again with a stricter "valid JSON only" reminder and
// exponential backoff (spec §4.6, §7).
// After the fifth failed attempt it returns domain.ErrSchemaParse; the caller
// treats that as non-fatal and proceeds without classification.
func (c *Classifier) Classify(ctx context.Context, in Input) (model.ClassificationResult, error) {
	attempt := 0
	op := func() (model.ClassificationResult, error) {
		attempt++
		prompt := basePrompt(in)
		if attempt > 1 {
			prompt = strictReminderPrompt(in)
		}

		temperature := 0.7
		resp, err := c.provider.Complete(ctx, llmwire.GenerateRequest{
			Model:       c.model,
			Messages:    []llmwire.Message{{Role: llmwire.RoleUser, Content: prompt}},
			Temperature: &temperature,
		})
		if err != nil {
			// Provider-level failures (network/HTTP) are not schema-parse
			// retries; surface them immediately rather than burning the
			// parse-retry budget on an error the Provider Adapter already
			// retried internally.
			return model.ClassificationResult{}, backoff.Permanent(err)
		}

		result, parseErr := parseClassification(resp.Content)
		if parseErr != nil {
			return model.ClassificationResult{}, fmt.Errorf("%w: %v", domain.ErrSchemaParse, parseErr)
		}
		return result, nil
	}

	result, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(newBackOff()),
		backoff.WithMaxTries(retryPolicy.maxRetries),
	)
	if err != nil {
		return model.ClassificationResult{}, err
	}
	return result, nil
}

// wireClassification is the JSON shape the Provider is asked to return
// (spec §4.6), decoded with encoding/json's default loose typing (map[string]any
// for changes/initialState, matching spec §9's "unknown fields are ignored").
// The entryUpdates/chapterAnalysis/voiceContext sub-objects are named types
// rather than anonymous structs so validateWireClassification can validate
// each one with ozzo-validation's validation.By.
type wireClassification struct {
	VisualElements  []wireVisualElement `json:"visualElements"`
	EntryUpdates    wireEntryUpdates    `json:"entryUpdates"`
	ChapterAnalysis wireChapterAnalysis `json:"chapterAnalysis"`
	VoiceContext    wireVoiceContext    `json:"voiceContext"`
	CreativeUpdates map[string]any      `json:"creativeUpdates"`
}

type wireVisualElement struct {
	TextSpan            string `json:"textSpan"`
	Type                string `json:"type"`
	Importance          int    `json:"importance"`
	ImagePrompt         string `json:"imagePrompt"`
	GenerateImmediately bool   `json:"generateImmediately"`
}

type wireEntryUpdates struct {
	Updates    []wireEntryUpdate `json:"updates"`
	NewEntries []wireNewEntry    `json:"newEntries"`
	Scene      wireScene         `json:"scene"`
}

type wireEntryUpdate struct {
	EntryID string         `json:"entryId"`
	Changes map[string]any `json:"changes"`
}

type wireNewEntry struct {
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	Description  string         `json:"description"`
	Aliases      []string       `json:"aliases"`
	InitialState map[string]any `json:"initialState"`
}

type wireScene struct {
	NewLocationName     *string  `json:"newLocationName"`
	PresentCharacterIDs []string `json:"presentCharacterIds"`
	TimeProgression     string   `json:"timeProgression"`
}

type wireChapterAnalysis struct {
	ShouldCreateChapter bool    `json:"shouldCreateChapter"`
	Reason              string  `json:"reason"`
	SuggestedTitle      *string `json:"suggestedTitle"`
}

type wireVoiceContext struct {
	PrimarySpeaker *string `json:"primarySpeaker"`
	Mood           string  `json:"mood"`
}

// knownEntryTypes are the schema-valid values for a new entry's "type"
// field (spec §4.6, model.EntryType).
var knownEntryTypes = []interface{}{
	string(model.EntryCharacter), string(model.EntryLocation), string(model.EntryItem),
	string(model.EntryFaction), string(model.EntryConcept), string(model.EntryEvent),
}

// knownTimeProgressions are the schema-valid values for
// entryUpdates.scene.timeProgression (spec §4.6, model.TimeProgression).
// The empty string is allowed since a model that omits the field entirely
// decodes to it and spec §9 treats missing fields as "no change" rather
// than an error.
var knownTimeProgressions = []interface{}{
	"", string(model.TimeNone), string(model.TimeMinutes), string(model.TimeHours), string(model.TimeDays),
}

// validateWireClassification enforces the schema fields the classifier
// prompt constrains the model to (spec §4.6 rule that a classifier
// response must conform to the declared schema): every referenced
// existing-entry id is non-blank, and every new entry has a name and a
// known EntryType. The scene's time progression is checked separately, in
// parseClassification. This runs before the wire shape is translated into
// the domain ClassificationResult, the same validate-at-the-boundary style
// the teacher uses for inbound request structs.
func validateWireClassification(w *wireClassification) error {
	u := &w.EntryUpdates
	return validation.ValidateStruct(u,
		validation.Field(&u.Updates, validation.Each(validation.By(validateWireEntryUpdate))),
		validation.Field(&u.NewEntries, validation.Each(validation.By(validateWireNewEntry))),
	)
}

func validateWireEntryUpdate(value interface{}) error {
	u, ok := value.(wireEntryUpdate)
	if !ok {
		return fmt.Errorf("invalid entry update")
	}
	return validation.ValidateStruct(&u,
		validation.Field(&u.EntryID, validation.Required),
	)
}

func validateWireNewEntry(value interface{}) error {
	ne, ok := value.(wireNewEntry)
	if !ok {
		return fmt.Errorf("invalid new entry")
	}
	return validation.ValidateStruct(&ne,
		validation.Field(&ne.Name, validation.Required),
		validation.Field(&ne.Type, validation.Required, validation.In(knownEntryTypes...)),
	)
}

func parseClassification(raw string) (model.ClassificationResult, error) {
	var w wireClassification
	if err := json.Unmarshal([]byte(extractJSON(raw)), &w); err != nil {
		return model.ClassificationResult{}, err
	}
	if err := validateWireClassification(&w); err != nil {
		return model.ClassificationResult{}, fmt.Errorf("%w: %v", domain.ErrSchemaParse, err)
	}
	if err := validation.Validate(w.EntryUpdates.Scene.TimeProgression, validation.In(knownTimeProgressions...)); err != nil {
		return model.ClassificationResult{}, fmt.Errorf("%w: scene.timeProgression: %v", domain.ErrSchemaParse, err)
	}

	result := model.ClassificationResult{
		ChapterAnalysis: model.ChapterAnalysis{
			ShouldCreateChapter: w.ChapterAnalysis.ShouldCreateChapter,
			Reason:              w.ChapterAnalysis.Reason,
			SuggestedTitle:      w.ChapterAnalysis.SuggestedTitle,
		},
		VoiceContext: model.VoiceContext{
			PrimarySpeaker: w.VoiceContext.PrimarySpeaker,
			Mood:           w.VoiceContext.Mood,
		},
		CreativeUpdates: w.CreativeUpdates,
	}

	for _, v := range w.VisualElements {
		result.VisualElements = append(result.VisualElements, model.VisualElement{
			TextSpan:            v.TextSpan,
			Type:                v.Type,
			Importance:          v.Importance,
			ImagePrompt:         v.ImagePrompt,
			GenerateImmediately: v.GenerateImmediately,
		})
	}

	for _, u := range w.EntryUpdates.Updates {
		result.EntryUpdates.Updates = append(result.EntryUpdates.Updates, model.EntryUpdate{
			EntryID: u.EntryID,
			Changes: u.Changes,
		})
	}
	for _, ne := range w.EntryUpdates.NewEntries {
		result.EntryUpdates.NewEntries = append(result.EntryUpdates.NewEntries, model.NewEntrySpec{
			Name:         ne.Name,
			Type:         model.EntryType(ne.Type),
			Description:  ne.Description,
			Aliases:      ne.Aliases,
			InitialState: ne.InitialState,
		})
	}
	result.EntryUpdates.Scene = model.SceneUpdate{
		NewLocationName:     w.EntryUpdates.Scene.NewLocationName,
		PresentCharacterIDs: w.EntryUpdates.Scene.PresentCharacterIDs,
		TimeProgression:     model.TimeProgression(w.EntryUpdates.Scene.TimeProgression),
	}

	return result, nil
}

// extractJSON strips a markdown code fence, if present, around the JSON
// payload (models frequently wrap structured output in one despite
// instructions not to).
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

const schemaDescription = `{
  "visualElements": [{"textSpan": string, "type": string, "importance": int, "imagePrompt": string, "generateImmediately": bool}],
  "entryUpdates": {
    "updates": [{"entryId": string, "changes": object}],
    "newEntries": [{"name": string, "type": string, "description": string, "aliases": [string], "initialState": object}],
    "scene": {"newLocationName": string|null, "presentCharacterIds": [string], "timeProgression": "none"|"minutes"|"hours"|"days"}
  },
  "chapterAnalysis": {"shouldCreateChapter": bool, "reason": string, "suggestedTitle": string|null},
  "voiceContext": {"primarySpeaker": string|null, "mood": string}
}`

func basePrompt(in Input) string {
	var b strings.Builder
	b.WriteString("Classify the following narration passage into the exact JSON schema below. ")
	b.WriteString("Be conservative: only report deltas clearly supported by the passage. A new entry is ")
	b.WriteString("reported only if no known entry matches it by name or alias. Reference only known entryIds.\n\n")
	fmt.Fprintf(&b, "Preceding user action: %s\n\n", in.UserAction)
	fmt.Fprintf(&b, "Narration:\n%s\n\n", in.NarrationText)
	b.WriteString("Known entries:\n")
	for _, e := range in.Snapshot.Entries {
		fmt.Fprintf(&b, "- id=%s name=%s type=%s aliases=%s\n", e.ID, e.Name, e.Type, strings.Join(e.Aliases, ","))
	}
	b.WriteString("\nSchema:\n")
	b.WriteString(schemaDescription)
	b.WriteString("\n\nReturn JSON only, matching the schema exactly.")
	return b.String()
}

func strictReminderPrompt(in Input) string {
	return "Your previous response was not valid JSON. Respond with VALID JSON ONLY — no prose, no " +
		"markdown fence, no commentary before or after.\n\n" + basePrompt(in)
}
