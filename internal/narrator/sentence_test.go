package narrator

import "testing"

func TestSentenceBufferEmitsCompleteSentences(t *testing.T) {
	b := NewSentenceBuffer()
	got := b.Push("The door creaked open. A cold wind swept through the hall. ")
	if len(got) != 2 {
		t.Fatalf("got %d sentences, want 2: %+v", len(got), got)
	}
	if got[0] != "The door creaked open." {
		t.Errorf("got[0] = %q", got[0])
	}
	if got[1] != "A cold wind swept through the hall." {
		t.Errorf("got[1] = %q", got[1])
	}
}

func TestSentenceBufferHoldsBackTrailingPartial(t *testing.T) {
	b := NewSentenceBuffer()
	got := b.Push("The door creaked open. A cold wind swe")
	if len(got) != 1 {
		t.Fatalf("got %d sentences, want 1 (partial held back): %+v", len(got), got)
	}
	if got[0] != "The door creaked open." {
		t.Errorf("got[0] = %q", got[0])
	}
}

func TestSentenceBufferCompletesAcrossPushes(t *testing.T) {
	b := NewSentenceBuffer()
	first := b.Push("The door creaked open. A cold wind swe")
	if len(first) != 1 {
		t.Fatalf("first push: got %d sentences, want 1", len(first))
	}
	second := b.Push("pt through the hall. Silence followed")
	if len(second) != 1 {
		t.Fatalf("second push: got %d sentences, want 1: %+v", len(second), second)
	}
	if second[0] != "A cold wind swept through the hall." {
		t.Errorf("second[0] = %q", second[0])
	}
}

func TestSentenceBufferSuppressesAbbreviationFalsePositive(t *testing.T) {
	b := NewSentenceBuffer()
	got := append(b.Push("Dr. Smith arrived at the scene. Everyone fell silent."), b.Flush()...)
	if len(got) != 2 {
		t.Fatalf("got %d sentences, want 2 (abbreviation should not split): %+v", len(got), got)
	}
	if got[0] != "Dr. Smith arrived at the scene." {
		t.Errorf("got[0] = %q, abbreviation incorrectly split the sentence", got[0])
	}
}

func TestSentenceBufferSuppressesInitialFalsePositive(t *testing.T) {
	b := NewSentenceBuffer()
	got := append(b.Push("She turned to J. Smith and frowned. He said nothing."), b.Flush()...)
	if len(got) != 2 {
		t.Fatalf("got %d sentences, want 2: %+v", len(got), got)
	}
	if got[0] != "She turned to J. Smith and frowned." {
		t.Errorf("got[0] = %q, single-letter initial incorrectly split the sentence", got[0])
	}
}

func TestSentenceBufferHandlesQuotedDialogue(t *testing.T) {
	b := NewSentenceBuffer()
	got := append(b.Push(`"We need to leave now," she said. "It isn't safe here."`), b.Flush()...)
	if len(got) != 2 {
		t.Fatalf("got %d sentences, want 2: %+v", len(got), got)
	}
}

func TestSentenceBufferFlushEmitsTrailingPartial(t *testing.T) {
	b := NewSentenceBuffer()
	b.Push("The door creaked open. A cold wind swe")
	got := b.Flush()
	if len(got) != 1 {
		t.Fatalf("got %d sentences from Flush, want 1: %+v", len(got), got)
	}
	if got[0] != "A cold wind swe" {
		t.Errorf("Flush() = %q", got[0])
	}
}

func TestSentenceBufferFlushOnEmptyBufferReturnsNothing(t *testing.T) {
	b := NewSentenceBuffer()
	if got := b.Flush(); got != nil {
		t.Errorf("Flush() on empty buffer = %+v, want nil", got)
	}
}

func TestSentenceBufferEmptyPushIsNoop(t *testing.T) {
	b := NewSentenceBuffer()
	if got := b.Push(""); got != nil {
		t.Errorf("Push(\"\") = %+v, want nil", got)
	}
}
