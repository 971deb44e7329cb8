// Package coordinator implements the Turn Coordinator (spec §4.3): the
// five-phase state machine — Idle → Retrieving → Generating → Classifying →
// Applying → Idle — that drives Memory, Entry, Narrator, Classifier, and
// Suggestions for a single user input.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"aventura/internal/classifier"
	"aventura/internal/config"
	"aventura/internal/domain"
	"aventura/internal/domain/model"
	"aventura/internal/entry"
	"aventura/internal/eventbus"
	"aventura/internal/llmwire"
	"aventura/internal/memory"
	"aventura/internal/narrator"
	"aventura/internal/provider"
	"aventura/internal/suggestions"
)

// State is one of the five-phase state machine's states (spec §4.3).
type State string

const (
	StateIdle        State = "idle"
	StateRetrieving  State = "retrieving"
	StateGenerating  State = "generating"
	StateClassifying State = "classifying"
	StateApplying    State = "applying"
)

// ErrBusy is returned when Submit is called while a turn is already in
// flight (spec §4.3: "concurrent UserInput while busy is rejected").
var ErrBusy = errors.New("coordinator: busy")

// maxUserInputLength bounds a single turn's input so one UserInput can't
// blow the Narrator Pipeline's conversation token budget on its own.
const maxUserInputLength = 8000

// submitRequest is Submit's validated-at-the-boundary input shape, the
// same style the teacher uses for inbound request structs.
type submitRequest struct {
	UserInput string
}

func (r submitRequest) validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserInput, validation.Required, validation.RuneLength(1, maxUserInputLength)),
	)
}

// Deps bundles the Coordinator's collaborators.
type Deps struct {
	Bus         *eventbus.Bus
	Memory      *memory.Engine
	Entry       *entry.Engine
	Classifier  *classifier.Classifier
	Suggestions *suggestions.Generator // nil unless Config.Mode == config.ModeCreative
	Provider    provider.Provider
	Assembler   *narrator.Assembler
	Config      config.Config
	Logger      *slog.Logger
}

// Coordinator drives a turn end to end. It owns the live Story Entry log,
// world-model entry table, and chapter list in memory: Persistence is an
// external collaborator (spec §1 Non-goals) that observes changes only
// through emitted events, never through direct calls into these fields.
type Coordinator struct {
	bus        *eventbus.Bus
	memoryEng  *memory.Engine
	entryEng   *entry.Engine
	classifier *classifier.Classifier
	suggest    *suggestions.Generator
	prov       provider.Provider
	assembler  *narrator.Assembler
	cfg        config.Config
	logger     *slog.Logger

	busy  atomic.Bool
	mu    sync.Mutex
	state State

	storyLog []model.StoryEntry
	world    []model.Entry
	chapters []model.Chapter

	cancelActive context.CancelFunc
}

// New constructs a Coordinator in the Idle state.
func New(d Deps) *Coordinator {
	return &Coordinator{
		bus:        d.Bus,
		memoryEng:  d.Memory,
		entryEng:   d.Entry,
		classifier: d.Classifier,
		suggest:    d.Suggestions,
		prov:       d.Provider,
		assembler:  d.Assembler,
		cfg:        d.Config,
		logger:     d.Logger,
		state:      StateIdle,
	}
}

// IsBusy reports whether a turn is currently in flight (spec §4.3).
func (c *Coordinator) IsBusy() bool { return c.busy.Load() }

// SeedWorld hydrates the in-memory world-model table, chapter list, and
// story log before the first turn is submitted. Intended for Persistence
// to replay a story's durable state at process startup; must not be called
// once a turn is in flight.
func (c *Coordinator) SeedWorld(entries []model.Entry, chapters []model.Chapter, storyLog []model.StoryEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.world = entries
	c.chapters = chapters
	c.storyLog = storyLog
}

// WorldEntries returns a copy of the current world-model entry table.
func (c *Coordinator) WorldEntries() []model.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Entry, len(c.world))
	copy(out, c.world)
	return out
}

// State returns the coordinator's current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Cancel terminates the in-flight turn, if any (spec §5 Cancellation): the
// current stream is aborted, no NarrativeResponse is emitted, and the
// coordinator returns to Idle. Already-appended user entries are not rolled
// back.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	cancel := c.cancelActive
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Submit accepts a new user input and drives it through all five phases,
// blocking until the turn reaches Idle (spec §4.3). Returns ErrBusy if a
// turn is already in flight.
func (c *Coordinator) Submit(ctx context.Context, userInput string) error {
	if err := (submitRequest{UserInput: userInput}).validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if !c.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer c.busy.Store(false)

	turnCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelActive = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancelActive = nil
		c.mu.Unlock()
		cancel()
	}()

	turnID := uuid.NewString()
	c.setState(StateRetrieving)

	c.appendStoryEntry(model.RoleUserAction, userInput)
	c.bus.Publish(eventbus.UserInput{TurnID: turnID, Content: userInput, Mode: string(c.cfg.Mode)})

	retrievedContext, selected, err := c.retrieve(turnCtx, userInput)
	if err != nil {
		c.systemFailure(turnID, fmt.Sprintf("retrieval failed: %v", err))
		return nil
	}
	c.bus.Publish(eventbus.ContextReady{TurnID: turnID, RetrievedContext: retrievedContext, SelectedEntries: selected})

	c.setState(StateGenerating)
	fullResponse, genErr := c.generate(turnCtx, turnID, selected, retrievedContext, userInput)
	if genErr != nil {
		if errors.Is(genErr, domain.ErrCancelled) || turnCtx.Err() != nil {
			c.logf("turn %s cancelled mid-stream", turnID)
			c.setState(StateIdle)
			return nil
		}
		c.systemFailure(turnID, fmt.Sprintf("generation failed: %v", genErr))
		return nil
	}
	if strings.TrimSpace(fullResponse) == "" {
		c.setState(StateIdle)
		return nil
	}

	narrationEntry := c.appendStoryEntry(model.RoleNarration, fullResponse)
	c.bus.Publish(eventbus.NarrativeResponse{TurnID: turnID, MessageID: narrationEntry.ID, Content: fullResponse})

	c.setState(StateClassifying)
	result, classifyErr := c.classifier.Classify(turnCtx, classifier.Input{
		NarrationText: fullResponse,
		UserAction:    userInput,
		Snapshot:      c.snapshot(),
		Mode:          string(c.cfg.Mode),
	})
	if classifyErr != nil {
		// SchemaParseError (or any other classification failure) is
		// non-fatal: the turn proceeds without state updates (spec §4.3,
		// §7).
		c.logf("classification failed, proceeding without state updates: %v", classifyErr)
		c.setState(StateIdle)
		return nil
	}
	c.bus.Publish(eventbus.ClassificationComplete{TurnID: turnID, MessageID: narrationEntry.ID, Result: result})

	c.setState(StateApplying)
	c.apply(turnCtx, turnID, narrationEntry.ID, fullResponse, result)

	c.setState(StateIdle)
	return nil
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Coordinator) systemFailure(turnID, reason string) {
	c.appendStoryEntry(model.RoleSystem, reason)
	c.logf("turn %s: %s", turnID, reason)
	c.setState(StateIdle)
}

func (c *Coordinator) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(fmt.Sprintf(format, args...))
	}
}

// appendStoryEntry appends to the in-memory entry log under the
// monotonicity invariant (spec §8): every new Story Entry's sequence
// exceeds all existing entries'.
func (c *Coordinator) appendStoryEntry(role model.EntryRole, content string) model.StoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq := 1
	if n := len(c.storyLog); n > 0 {
		seq = c.storyLog[n-1].Sequence + 1
	}
	se := model.StoryEntry{
		ID:        uuid.NewString(),
		Role:      role,
		Sequence:  seq,
		Content:   content,
		Timestamp: time.Now(),
	}
	c.storyLog = append(c.storyLog, se)
	return se
}

// snapshot captures the read-only view Phase 2/3 readers operate on (spec
// §5): a consistent pre-turn copy of the world-model entry table.
func (c *Coordinator) snapshot() model.WorldSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]model.Entry, len(c.world))
	copy(entries, c.world)

	lastEnd := -1
	if n := len(c.chapters); n > 0 {
		lastEnd = c.chapters[n-1].EndSeq
	}
	return model.WorldSnapshot{Entries: entries, ChapterCount: len(c.chapters), LastChapterEndSeq: lastEnd}
}

func (c *Coordinator) recentWindowStrings() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := c.cfg.RecentWindow
	if w <= 0 {
		w = 6
	}
	start := len(c.storyLog) - w
	if start < 0 {
		start = 0
	}
	out := make([]string, 0, len(c.storyLog)-start)
	for _, se := range c.storyLog[start:] {
		out = append(out, se.Content)
	}
	return out
}

func (c *Coordinator) recentWindowMessages() []memory.RecentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := c.cfg.RecentWindow
	if w <= 0 {
		w = 6
	}
	start := len(c.storyLog) - w
	if start < 0 {
		start = 0
	}
	out := make([]memory.RecentMessage, 0, len(c.storyLog)-start)
	for _, se := range c.storyLog[start:] {
		out = append(out, memory.RecentMessage{Role: se.Role, Content: se.Content})
	}
	return out
}

func (c *Coordinator) chapterSummaries() []memory.ChapterSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]memory.ChapterSummary, len(c.chapters))
	for i, ch := range c.chapters {
		out[i] = memory.ChapterSummary{
			Number:     ch.Number,
			Summary:    ch.Summary,
			Characters: ch.Retrieval.Characters,
			Locations:  ch.Retrieval.Locations,
		}
	}
	return out
}

// fetchChapterContent implements memory.ChapterContentFetcher against the
// in-memory story log.
func (c *Coordinator) fetchChapterContent(ctx context.Context, chapterNumber int) (string, error) {
	c.mu.Lock()
	var target *model.Chapter
	for i := range c.chapters {
		if c.chapters[i].Number == chapterNumber {
			target = &c.chapters[i]
			break
		}
	}
	if target == nil {
		c.mu.Unlock()
		return "", fmt.Errorf("coordinator: chapter %d not found", chapterNumber)
	}
	startSeq, endSeq := target.StartSeq, target.EndSeq
	var b strings.Builder
	for _, se := range c.storyLog {
		if se.Sequence >= startSeq && se.Sequence <= endSeq {
			fmt.Fprintf(&b, "[%s] %s\n", se.Role, se.Content)
		}
	}
	c.mu.Unlock()
	return b.String(), nil
}

// retrieve runs Phase 1 (spec §4.3 transition 2, §5): Memory.retrieve and
// Entry.select execute concurrently; both must settle before Phase 2
// begins.
func (c *Coordinator) retrieve(ctx context.Context, userInput string) (*string, []model.Entry, error) {
	snapshot := c.snapshot()
	recentStrings := c.recentWindowStrings()
	recentMessages := c.recentWindowMessages()
	chapterSummaries := c.chapterSummaries()

	var retrievedContext *string
	var selected []model.Entry

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		rc, err := c.memoryEng.Retrieve(egCtx, recentMessages, userInput, chapterSummaries, c.fetchChapterContent)
		if err != nil {
			return fmt.Errorf("memory retrieve: %w", err)
		}
		retrievedContext = rc
		return nil
	})
	eg.Go(func() error {
		sel, err := c.entryEng.Select(egCtx, snapshot, recentStrings, userInput)
		if err != nil {
			return fmt.Errorf("entry select: %w", err)
		}
		selected = sel
		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	return retrievedContext, selected, nil
}

// generate runs Phase 2 (spec §4.3 transition 3, §4.5): stream the Narrator
// Pipeline's response, forwarding each chunk as ResponseStreaming and
// segmenting completed sentences as SentenceComplete, strictly in arrival
// order (spec §8).
func (c *Coordinator) generate(ctx context.Context, turnID string, selected []model.Entry, retrievedContext *string, userInput string) (string, error) {
	history := c.historyTurns()
	messages := c.assembler.Assemble(c.cfg.Mode, selected, retrievedContext, history, userInput)

	temperature := 0.8
	maxTokens := 8192
	events, err := c.prov.Stream(ctx, llmwire.GenerateRequest{
		Model:       c.cfg.Models.Narrator,
		Messages:    messages,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return "", err
	}

	var full strings.Builder
	sentenceBuf := narrator.NewSentenceBuffer()

	for ev := range events {
		if ctx.Err() != nil {
			return "", domain.ErrCancelled
		}
		if ev.Err != nil {
			return "", ev.Err
		}
		if ev.Delta != nil && ev.Delta.Content != "" {
			full.WriteString(ev.Delta.Content)
			c.bus.Publish(eventbus.ResponseStreaming{TurnID: turnID, Chunk: ev.Delta.Content, Accumulated: full.String()})
			for _, s := range sentenceBuf.Push(ev.Delta.Content) {
				c.bus.Publish(eventbus.SentenceComplete{TurnID: turnID, Text: s})
			}
		}
		if ev.Done {
			break
		}
	}
	for _, s := range sentenceBuf.Flush() {
		c.bus.Publish(eventbus.SentenceComplete{TurnID: turnID, Text: s})
	}

	if ctx.Err() != nil {
		return "", domain.ErrCancelled
	}
	return full.String(), nil
}

func (c *Coordinator) historyTurns() []narrator.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := c.cfg.RecentWindow
	if w <= 0 {
		w = 6
	}
	start := len(c.storyLog) - w
	if start < 0 {
		start = 0
	}
	out := make([]narrator.Turn, 0, len(c.storyLog)-start)
	for _, se := range c.storyLog[start:] {
		out = append(out, narrator.Turn{Role: se.Role, Content: se.Content})
	}
	return out
}

// apply runs Phase 4 (spec §4.3 transition 5, §5): Entry.apply and
// Chapter.maybe-create run concurrently; both must settle before the turn
// completes. Suggestions, when enabled, is fire-and-forget.
func (c *Coordinator) apply(ctx context.Context, turnID, narrationID, narrationText string, result model.ClassificationResult) {
	snapshot := c.snapshot()
	pending := c.pendingEntries()
	prevChapterNumber := c.lastChapterNumber()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		updated := c.entryEng.Apply(snapshot, result, narrationID)
		c.mu.Lock()
		c.world = updated
		c.mu.Unlock()
		c.bus.Publish(eventbus.StateUpdated{TurnID: turnID, Entries: updated})
		return nil
	})
	eg.Go(func() error {
		chapter, err := c.memoryEng.MaybeCreateChapter(egCtx, pending, result.ChapterAnalysis.ShouldCreateChapter, prevChapterNumber)
		if err != nil {
			c.logf("chapter creation failed: %v", err)
			return nil
		}
		if chapter == nil {
			return nil
		}
		chapter.ID = uuid.NewString()
		c.mu.Lock()
		c.chapters = append(c.chapters, *chapter)
		c.mu.Unlock()
		c.bus.Publish(eventbus.ChapterCreated{TurnID: turnID, Chapter: *chapter})
		return nil
	})
	_ = eg.Wait() // both branches only log; Phase 4 never fails the turn outright

	if c.cfg.Mode == config.ModeCreative && c.suggest != nil {
		go func() {
			suggestionList := c.suggest.Generate(context.Background(), narrationText)
			wire := make([]eventbus.Suggestion, len(suggestionList))
			for i, s := range suggestionList {
				wire[i] = eventbus.Suggestion{Text: s.Text, Type: string(s.Type)}
			}
			c.bus.Publish(eventbus.SuggestionsReady{TurnID: turnID, Suggestions: wire})
		}()
	}
}

func (c *Coordinator) pendingEntries() []memory.PendingEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	lastEnd := 0
	if n := len(c.chapters); n > 0 {
		lastEnd = c.chapters[n-1].EndSeq
	}
	var out []memory.PendingEntry
	for _, se := range c.storyLog {
		if se.Sequence > lastEnd {
			out = append(out, memory.PendingEntry{ID: se.ID, Seq: se.Sequence, Content: se.Content})
		}
	}
	return out
}

func (c *Coordinator) lastChapterNumber() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.chapters); n > 0 {
		return c.chapters[n-1].Number
	}
	return 0
}
