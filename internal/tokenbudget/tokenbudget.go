// Package tokenbudget wraps tiktoken-go to give the Entry Engine and
// Narrator Pipeline a shared notion of token count for maxEntryTokens
// truncation (spec §4.7) and conversation-window eviction (spec §4.5).
package tokenbudget

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// defaultEncoding is cl100k_base, the encoding tiktoken-go ships for the
// GPT-4/Claude-adjacent tokenizer family; exact provider tokenizers vary,
// but a single consistent estimator is sufficient for budget enforcement
// and is what the spec's maxEntryTokens/token-budget language calls for.
const defaultEncoding = "cl100k_base"

// Counter estimates token counts for strings. The zero value is not
// usable; construct with NewCounter.
type Counter struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// NewCounter loads the shared encoding once and reuses it for every Count
// call (tiktoken-go's BPE loader is not cheap to repeat per call).
func NewCounter() (*Counter, error) {
	enc, err := tiktoken.GetEncoding(defaultEncoding)
	if err != nil {
		return nil, err
	}
	return &Counter{enc: enc}, nil
}

// Count returns the estimated token count of s.
func (c *Counter) Count(s string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.enc.Encode(s, nil, nil))
}

// TruncateToTokens trims s to at most n tokens, preferring to cut at the
// end (used for maxEntryTokens enforcement on the final assembled entry
// block, spec §4.7).
func (c *Counter) TruncateToTokens(s string, n int) string {
	if n <= 0 {
		return ""
	}
	c.mu.Lock()
	ids := c.enc.Encode(s, nil, nil)
	c.mu.Unlock()
	if len(ids) <= n {
		return s
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.Decode(ids[:n])
}

// Message is the minimal shape EvictOldest needs: enough to measure and to
// identify "the current user input" which must never be evicted.
type Message struct {
	Content        string
	IsCurrentInput bool
}

// EvictOldest drops the oldest messages until the remaining window's total
// token count is at or under budget, without ever evicting the message
// flagged IsCurrentInput (spec §4.5: "never evicting the current user
// input"). Messages are assumed oldest-first.
func (c *Counter) EvictOldest(messages []Message, budget int) []Message {
	total := 0
	counts := make([]int, len(messages))
	for i, m := range messages {
		counts[i] = c.Count(m.Content)
		total += counts[i]
	}

	start := 0
	for total > budget && start < len(messages) {
		if messages[start].IsCurrentInput {
			break
		}
		total -= counts[start]
		start++
	}
	return messages[start:]
}
