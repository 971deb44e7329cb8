package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"aventura/internal/domain/model"
	"aventura/internal/eventbus"
)

// Sink subscribes to the Event Bus and drives Store from state-change
// events, standing in for the "persistence storage (consumes state-change
// events)" external collaborator named in spec §1 Non-goals. It never
// blocks the publishing goroutine: each event is persisted on its own
// goroutine, and failures are logged rather than surfaced to the core.
type Sink struct {
	store   *Store
	bus     *eventbus.Bus
	storyID string
	logger  *slog.Logger

	seq atomic.Int64
}

// NewSink constructs a Sink for storyID and subscribes it to bus. The
// caller is responsible for having already called store's EnsureStory.
func NewSink(store *Store, bus *eventbus.Bus, storyID string, logger *slog.Logger) *Sink {
	sk := &Sink{store: store, bus: bus, storyID: storyID, logger: logger}
	bus.Subscribe(eventbus.TypeUserInput, sk.onUserInput)
	bus.Subscribe(eventbus.TypeNarrativeResponse, sk.onNarrativeResponse)
	bus.Subscribe(eventbus.TypeStateUpdated, sk.onStateUpdated)
	bus.Subscribe(eventbus.TypeChapterCreated, sk.onChapterCreated)
	return sk
}

func (sk *Sink) nextSeq() int {
	return int(sk.seq.Add(1))
}

func (sk *Sink) onUserInput(e eventbus.Event) {
	ev := e.(eventbus.UserInput)
	se := model.StoryEntry{
		ID:        uuid.NewString(),
		Role:      model.RoleUserAction,
		Sequence:  sk.nextSeq(),
		Content:   ev.Content,
		Timestamp: time.Now(),
	}
	go sk.appendEntry(ev.TurnID, se)
}

func (sk *Sink) onNarrativeResponse(e eventbus.Event) {
	ev := e.(eventbus.NarrativeResponse)
	se := model.StoryEntry{
		ID:        ev.MessageID,
		Role:      model.RoleNarration,
		Sequence:  sk.nextSeq(),
		Content:   ev.Content,
		Timestamp: time.Now(),
	}
	go sk.appendEntry(ev.TurnID, se)
}

func (sk *Sink) appendEntry(turnID string, se model.StoryEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sk.store.AppendStoryEntry(ctx, sk.storyID, se); err != nil {
		sk.logf("turn %s: persist story entry %s failed: %v", turnID, se.ID, err)
	}
}

// onStateUpdated persists the post-apply entry snapshot and, once durable,
// emits SaveComplete (spec §4.1): the one signal Persistence sends back
// into the core, which the core never blocks on.
func (sk *Sink) onStateUpdated(e eventbus.Event) {
	ev := e.(eventbus.StateUpdated)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sk.store.UpsertEntries(ctx, sk.storyID, ev.Entries); err != nil {
			sk.logf("turn %s: persist entries failed: %v", ev.TurnID, err)
			return
		}
		sk.bus.Publish(eventbus.SaveComplete{TurnID: ev.TurnID})
	}()
}

func (sk *Sink) onChapterCreated(e eventbus.Event) {
	ev := e.(eventbus.ChapterCreated)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sk.store.UpsertChapter(ctx, sk.storyID, ev.Chapter); err != nil {
			sk.logf("turn %s: persist chapter %d failed: %v", ev.TurnID, ev.Chapter.Number, err)
		}
	}()
}

func (sk *Sink) logf(format string, args ...any) {
	if sk.logger != nil {
		sk.logger.Warn(fmt.Sprintf(format, args...))
	}
}
