package tokenbudget

import "testing"

func TestCountIsPositiveForNonEmptyText(t *testing.T) {
	c, err := NewCounter()
	if err != nil {
		t.Fatalf("NewCounter() error: %v", err)
	}
	if n := c.Count("hello world"); n <= 0 {
		t.Errorf("Count() = %d, want > 0", n)
	}
	if n := c.Count(""); n != 0 {
		t.Errorf("Count(\"\") = %d, want 0", n)
	}
}

func TestTruncateToTokensShortensLongText(t *testing.T) {
	c, err := NewCounter()
	if err != nil {
		t.Fatalf("NewCounter() error: %v", err)
	}
	long := ""
	for i := 0; i < 500; i++ {
		long += "word "
	}
	truncated := c.TruncateToTokens(long, 10)
	if c.Count(truncated) > 10 {
		t.Errorf("truncated token count = %d, want <= 10", c.Count(truncated))
	}
}

func TestTruncateToTokensLeavesShortTextUnchanged(t *testing.T) {
	c, err := NewCounter()
	if err != nil {
		t.Fatalf("NewCounter() error: %v", err)
	}
	short := "hi there"
	if got := c.TruncateToTokens(short, 1000); got != short {
		t.Errorf("TruncateToTokens() = %q, want unchanged %q", got, short)
	}
}

func TestEvictOldestNeverDropsCurrentInput(t *testing.T) {
	c, err := NewCounter()
	if err != nil {
		t.Fatalf("NewCounter() error: %v", err)
	}
	messages := []Message{
		{Content: "old message one that is somewhat long to cost tokens"},
		{Content: "old message two that is somewhat long to cost tokens"},
		{Content: "current user input", IsCurrentInput: true},
	}

	kept := c.EvictOldest(messages, 1)
	if len(kept) == 0 {
		t.Fatal("EvictOldest dropped everything, including current input")
	}
	if !kept[len(kept)-1].IsCurrentInput {
		t.Error("current input was evicted")
	}
}

func TestEvictOldestKeepsEverythingUnderBudget(t *testing.T) {
	c, err := NewCounter()
	if err != nil {
		t.Fatalf("NewCounter() error: %v", err)
	}
	messages := []Message{
		{Content: "a"},
		{Content: "b"},
	}
	kept := c.EvictOldest(messages, 1000)
	if len(kept) != 2 {
		t.Errorf("len(kept) = %d, want 2", len(kept))
	}
}
