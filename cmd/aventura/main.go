// Command aventura is a small console harness that wires the turn
// orchestration core end to end and drives it from stdin. It stands in for
// the UI rendering layer, an external collaborator per spec §1 Non-goals:
// it prints every emitted event instead of rendering them. Without a
// database URL it holds world state only in the Coordinator's memory for
// the life of the process; with one it loads the story from Postgres and
// attaches a persistence.Sink that writes state-change events back.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"aventura/internal/classifier"
	"aventura/internal/config"
	"aventura/internal/coordinator"
	"aventura/internal/domain/model"
	"aventura/internal/entry"
	"aventura/internal/eventbus"
	"aventura/internal/memory"
	"aventura/internal/narrator"
	"aventura/internal/persistence"
	"aventura/internal/provider"
	"aventura/internal/repository/postgres"
	"aventura/internal/suggestions"
	"aventura/internal/tokenbudget"
)

// demoStoryID is the single story the console harness drives; a real UI
// layer would pass the active story's id instead.
const demoStoryID = "demo-story"

// conversationTokenBudget bounds the conversation window the Narrator
// Pipeline assembles into each prompt (spec §4.5).
const conversationTokenBudget = 4000

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	tiers, err := config.LoadTierRegistry()
	if err != nil {
		log.Fatalf("load quality tiers: %v", err)
	}
	models, err := tiers.ResolveModels(cfg.QualityTier, cfg.Models)
	if err != nil {
		log.Fatalf("resolve models for tier %s: %v", cfg.QualityTier, err)
	}

	prov := selectProvider(cfg, logger)

	counter, err := tokenbudget.NewCounter()
	if err != nil {
		log.Fatalf("init token counter: %v", err)
	}

	memEng := memory.NewEngine(prov, models.Retrieval, cfg.MemoryConfig, logger)
	entryEng := entry.NewEngine(prov, models.Retrieval, cfg.EntryConfig, counter)
	clf := classifier.New(prov, models.Classifier)
	assembler := narrator.NewAssembler(counter, conversationTokenBudget)

	var suggest *suggestions.Generator
	if cfg.Mode == config.ModeCreative {
		suggest = suggestions.New(prov, models.Suggestions)
	}

	bus := eventbus.New(logger, 0)
	subscribeDemoLogging(bus)

	coord := coordinator.New(coordinator.Deps{
		Bus:         bus,
		Memory:      memEng,
		Entry:       entryEng,
		Classifier:  clf,
		Suggestions: suggest,
		Provider:    prov,
		Assembler:   assembler,
		Config:      *cfg,
		Logger:      logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL != "" {
		hydrateFromPersistence(ctx, cfg, coord, bus, logger)
	} else {
		logger.Warn("no DATABASE_URL configured, running with in-memory state only")
		coord.SeedWorld(seedEntries(), nil, nil)
	}

	fmt.Printf("aventura turn-orchestration demo — provider=%s mode=%s tier=%s\n", prov.Name(), cfg.Mode, cfg.QualityTier)
	fmt.Println("type a line and press enter to take a turn; \":trace\" dumps the debug event trace; Ctrl+C to quit.")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if line == ":trace" {
			dumpTrace(bus)
			continue
		}
		if err := coord.Submit(ctx, line); err != nil {
			fmt.Fprintf(os.Stderr, "submit: %v\n", err)
			continue
		}
		fmt.Println()
	}
}

// dumpTrace prints the Event Bus's bounded debug trace (spec §4.1: "a
// bounded ring-buffer of the last K events for debug inspection; K is
// configurable and has no functional effect").
func dumpTrace(bus *eventbus.Bus) {
	for _, e := range bus.Dump() {
		fmt.Printf("  [%s] %+v\n", e.Type(), e)
	}
}

// hydrateFromPersistence connects to Postgres, replays demoStoryID's
// durable state into coord, and attaches a Sink so future turns are
// persisted as their state-change events arrive (spec §1 Non-goals:
// Persistence consumes events, the core never calls into it directly).
func hydrateFromPersistence(ctx context.Context, cfg *config.Config, coord *coordinator.Coordinator, bus *eventbus.Bus, logger *slog.Logger) {
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}

	tables := postgres.NewTableNames(cfg.TablePrefix)
	store := persistence.NewStore(&postgres.RepositoryConfig{Pool: pool, Tables: tables, Logger: logger})

	if err := store.EnsureStory(ctx, demoStoryID); err != nil {
		log.Fatalf("ensure story row: %v", err)
	}

	entries, chapters, storyLog, err := store.LoadStory(ctx, demoStoryID)
	if err != nil {
		log.Fatalf("load story: %v", err)
	}
	if len(entries) == 0 {
		entries = seedEntries()
	}
	coord.SeedWorld(entries, chapters, storyLog)

	persistence.NewSink(store, bus, demoStoryID, logger)
	logger.Info("persistence attached", "story_id", demoStoryID, "entries", len(entries), "chapters", len(chapters))
}

// selectProvider picks a concrete Provider backend from configured
// credentials, falling back to the network-free LoremProvider so the demo
// always runs (spec §4.2: the core is provider-agnostic).
func selectProvider(cfg *config.Config, logger *slog.Logger) provider.Provider {
	switch {
	case cfg.AnthropicAPIKey != "":
		logger.Info("using anthropic provider")
		return provider.NewAnthropicProvider(cfg.AnthropicAPIKey)
	case cfg.OpenRouterAPIKey != "":
		logger.Info("using openrouter provider")
		return provider.NewOpenAICompatibleProvider("openrouter", cfg.OpenRouterAPIKey, "https://openrouter.ai/api/v1")
	default:
		logger.Warn("no provider credentials configured, falling back to lorem provider")
		return provider.NewLoremProvider()
	}
}

// subscribeDemoLogging prints every bus event, standing in for the UI
// rendering layer (spec §1 Non-goals).
func subscribeDemoLogging(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.TypeResponseStreaming, func(e eventbus.Event) {
		ev := e.(eventbus.ResponseStreaming)
		fmt.Print(ev.Chunk)
	})
	bus.Subscribe(eventbus.TypeSentenceComplete, func(e eventbus.Event) {})
	bus.Subscribe(eventbus.TypeClassificationComplete, func(e eventbus.Event) {
		ev := e.(eventbus.ClassificationComplete)
		fmt.Printf("\n[state] mood=%s updates=%d new-entries=%d\n",
			ev.Result.VoiceContext.Mood, len(ev.Result.EntryUpdates.Updates), len(ev.Result.EntryUpdates.NewEntries))
	})
	bus.Subscribe(eventbus.TypeChapterCreated, func(e eventbus.Event) {
		ev := e.(eventbus.ChapterCreated)
		fmt.Printf("[chapter] #%d %q\n", ev.Chapter.Number, ev.Chapter.Title)
	})
	bus.Subscribe(eventbus.TypeSuggestionsReady, func(e eventbus.Event) {
		ev := e.(eventbus.SuggestionsReady)
		for _, s := range ev.Suggestions {
			fmt.Printf("  - (%s) %s\n", s.Type, s.Text)
		}
	})
}

// seedEntries returns a minimal starting world so a fresh story has at
// least one present character and location to reference.
func seedEntries() []model.Entry {
	return []model.Entry{
		{
			ID:          uuid.NewString(),
			Name:        "You",
			Type:        model.EntryCharacter,
			Description: "The protagonist.",
			Character:   &model.CharacterState{IsPresent: true, Disposition: "neutral", Mood: "alert"},
			Injection:   model.InjectionPolicy{Mode: model.InjectionAlways, Priority: 10},
			Provenance:  model.Provenance{CreatedBy: "seed"},
		},
		{
			ID:          uuid.NewString(),
			Name:        "The Threshold",
			Type:        model.EntryLocation,
			Description: "A weathered stone doorway at the edge of known territory.",
			Location:    &model.LocationState{IsCurrentLocation: true},
			Injection:   model.InjectionPolicy{Mode: model.InjectionAlways, Priority: 5},
			Provenance:  model.Provenance{CreatedBy: "seed"},
		},
	}
}
