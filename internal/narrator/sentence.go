package narrator

import (
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/sentences"
)

// abbreviationDenylist holds the small set of tokens the UAX#29 sentence
// segmenter alone cannot be trusted not to split after (spec §4.5).
var abbreviationDenylist = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "st": true, "etc": true, "vs": true,
}

// SentenceBuffer implements the Narrator Pipeline's streaming sentence
// segmentation (spec §4.5): characters are appended to a rolling buffer
// and a sentence is emitted once its boundary is confirmed, holding back
// the trailing partial text until more arrives or the stream ends.
//
// Segmentation itself is UAX#29 (github.com/clipperhouse/uax29/v2), whose
// sentence-break rules already treat trailing quotes/closing punctuation
// as part of the preceding sentence rather than splitting mid-quote; the
// denylist merge pass above only catches the known abbreviation
// false-positives the spec calls out explicitly.
type SentenceBuffer struct {
	pending strings.Builder
}

// NewSentenceBuffer constructs an empty SentenceBuffer.
func NewSentenceBuffer() *SentenceBuffer { return &SentenceBuffer{} }

// Push appends chunk to the rolling buffer and returns any sentences that
// are now confirmed complete, in arrival order.
func (b *SentenceBuffer) Push(chunk string) []string {
	b.pending.WriteString(chunk)
	return b.drain(false)
}

// Flush flushes any trailing partial text as a final sentence at stream
// end (spec §4.5).
func (b *SentenceBuffer) Flush() []string {
	return b.drain(true)
}

func (b *SentenceBuffer) drain(final bool) []string {
	text := b.pending.String()
	if text == "" {
		return nil
	}

	iter := sentences.FromString(text)
	var tokens []string
	for iter.Next() {
		tokens = append(tokens, iter.Value())
	}
	if len(tokens) == 0 {
		if final {
			b.pending.Reset()
			return []string{strings.TrimSpace(text)}
		}
		return nil
	}

	tokens = mergeAbbreviations(tokens)

	emitCount := len(tokens)
	if !final {
		// The last token may still be growing; hold it back until either
		// more text confirms the boundary or Flush is called, unless its
		// terminator (plus any closing quotes) is already followed by
		// whitespace and is not a denylisted abbreviation.
		last := tokens[len(tokens)-1]
		body := strings.TrimRightFunc(last, unicode.IsSpace)
		core := strings.TrimRight(body, "\"'”’)]")
		confirmed := len(body) < len(last) && !endsWithDenylistAbbrev(body) &&
			(strings.HasSuffix(core, ".") || strings.HasSuffix(core, "!") ||
				strings.HasSuffix(core, "?") || strings.HasSuffix(core, "…"))
		if !confirmed {
			emitCount--
		}
	}
	if emitCount <= 0 {
		return nil
	}

	var out []string
	var consumedLen int
	for i := 0; i < emitCount; i++ {
		if s := strings.TrimSpace(tokens[i]); s != "" {
			out = append(out, s)
		}
		consumedLen += len(tokens[i])
	}

	remainder := text[consumedLen:]
	b.pending.Reset()
	if !final {
		b.pending.WriteString(remainder)
	} else if s := strings.TrimSpace(remainder); s != "" {
		out = append(out, s)
	}
	return out
}

// mergeAbbreviations folds a sentence-boundary token back into the
// following token when it ends in a denylisted abbreviation, since UAX#29
// alone cannot distinguish "Dr." the title from "Dr." the sentence end.
func mergeAbbreviations(tokens []string) []string {
	merged := make([]string, 0, len(tokens))
	i := 0
	for i < len(tokens) {
		cur := tokens[i]
		for endsWithDenylistAbbrev(cur) && i+1 < len(tokens) {
			i++
			cur += tokens[i]
		}
		merged = append(merged, cur)
		i++
	}
	return merged
}

func endsWithDenylistAbbrev(s string) bool {
	trimmed := strings.TrimRightFunc(strings.TrimSpace(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return false
	}
	last := fields[len(fields)-1]
	if abbreviationDenylist[strings.ToLower(last)] {
		return true
	}
	// A single uppercase letter, e.g. the "J" in "J. Smith".
	runes := []rune(last)
	return len(runes) == 1 && unicode.IsUpper(runes[0])
}
