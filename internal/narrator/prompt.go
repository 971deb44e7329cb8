package narrator

import (
	"fmt"
	"strings"

	"aventura/internal/config"
	"aventura/internal/domain/model"
	"aventura/internal/llmwire"
	"aventura/internal/tokenbudget"
)

const (
	adventureSystemPrompt = "You are the narrator of an interactive text adventure. Describe the " +
		"results of the player's actions vividly but concisely, in second person, present tense. " +
		"Never speak for the player; only narrate the world's response."
	creativeSystemPrompt = "You are a collaborative creative-writing partner continuing a shared " +
		"story. Match the established voice and pacing, and advance the scene meaningfully."
)

func systemPromptFor(mode config.Mode) string {
	if mode == config.ModeCreative {
		return creativeSystemPrompt
	}
	return adventureSystemPrompt
}

// storyContextBlock renders the [STORY CONTEXT] block (spec §4.5): current
// location, present characters with dispositions, inventory, then the
// selected entries ordered by priority then mention count (the ordering
// Entry Engine's Select already returns them in).
func storyContextBlock(selected []model.Entry) string {
	var b strings.Builder
	b.WriteString("[STORY CONTEXT]\n")

	for _, e := range selected {
		if e.Location != nil && e.Location.IsCurrentLocation {
			fmt.Fprintf(&b, "Current location: %s — %s\n", e.Name, e.Description)
		}
	}

	var present []model.Entry
	var inventory []model.Entry
	for _, e := range selected {
		if e.Character != nil && e.Character.IsPresent {
			present = append(present, e)
		}
		if e.Item != nil && e.Item.InInventory {
			inventory = append(inventory, e)
		}
	}

	if len(present) > 0 {
		b.WriteString("Present characters:\n")
		for _, e := range present {
			fmt.Fprintf(&b, "- %s (%s, %s): %s\n", e.Name, e.Character.Disposition, e.Character.Mood, e.Description)
		}
	}
	if len(inventory) > 0 {
		b.WriteString("Inventory:\n")
		for _, e := range inventory {
			fmt.Fprintf(&b, "- %s: %s\n", e.Name, e.Description)
		}
	}

	b.WriteString("Known entries:\n")
	for _, e := range selected {
		fmt.Fprintf(&b, "- %s (%s): %s\n", e.Name, e.Type, e.Description)
	}

	return b.String()
}

// Turn is the minimal conversation history shape PromptAssembler works
// from — Story Entries, but without the full persistence-layer fields the
// prompt has no use for.
type Turn struct {
	Role    model.EntryRole
	Content string
}

// Assembler builds the message list sent to Provider.Stream (spec §4.5).
type Assembler struct {
	counter            *tokenbudget.Counter
	conversationBudget int
}

// NewAssembler constructs an Assembler. conversationBudget is the token
// budget for the conversation window (oldest messages evicted first).
func NewAssembler(counter *tokenbudget.Counter, conversationBudget int) *Assembler {
	return &Assembler{counter: counter, conversationBudget: conversationBudget}
}

// Assemble composes, in order: the mode-specific system prompt, the
// [STORY CONTEXT] block (selected entries plus retrievedContext), then the
// most recent conversation window up to the token budget, never evicting
// the current user input (spec §4.5).
func (a *Assembler) Assemble(mode config.Mode, selected []model.Entry, retrievedContext *string, history []Turn, userInput string) []llmwire.Message {
	var system strings.Builder
	system.WriteString(systemPromptFor(mode))
	system.WriteString("\n\n")
	system.WriteString(storyContextBlock(selected))
	if retrievedContext != nil {
		system.WriteString("\n[RELEVANT HISTORY]\n")
		system.WriteString(*retrievedContext)
	}

	messages := []llmwire.Message{{Role: llmwire.RoleSystem, Content: system.String()}}

	windowed := a.windowConversation(history, userInput)
	for _, t := range windowed {
		messages = append(messages, llmwire.Message{Role: toWireRole(t.Role), Content: t.Content})
	}
	messages = append(messages, llmwire.Message{Role: llmwire.RoleUser, Content: userInput})

	return messages
}

func toWireRole(r model.EntryRole) llmwire.Role {
	switch r {
	case model.RoleNarration:
		return llmwire.RoleAssistant
	case model.RoleSystem:
		return llmwire.RoleSystem
	default:
		return llmwire.RoleUser
	}
}

// windowConversation returns the suffix of history that fits within the
// conversation token budget alongside userInput, which is always kept
// (spec §4.5). EvictOldest drops from the front only, so the number of
// messages it evicts from the combined [history..., userInput] slice maps
// directly onto a prefix of history to drop.
func (a *Assembler) windowConversation(history []Turn, userInput string) []Turn {
	if a.counter == nil || a.conversationBudget <= 0 {
		return history
	}

	messages := make([]tokenbudget.Message, 0, len(history)+1)
	for _, t := range history {
		messages = append(messages, tokenbudget.Message{Content: t.Content})
	}
	messages = append(messages, tokenbudget.Message{Content: userInput, IsCurrentInput: true})

	kept := a.counter.EvictOldest(messages, a.conversationBudget)
	evicted := len(messages) - len(kept)
	return history[evicted:]
}
