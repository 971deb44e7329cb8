package provider

import (
	"context"
	"hash/fnv"
	"math/rand"
	"strings"

	"github.com/bozaro/golorem"

	"aventura/internal/llmwire"
)

// LoremProvider is a deterministic, no-network Provider used for tests and
// local demo wiring (spec §4.2's provider-abstraction is only useful if at
// least one concrete backend needs no credentials at all). Word generation
// is grounded on the teacher's own lorem adapter, which does this same job
// for the teacher's LLM abstraction via a private wrapper around
// `github.com/bozaro/golorem` (`meridian-llm-go`'s lorem provider); that
// wrapper isn't in the pack, but `golorem` itself is a real, public module
// also pulled in (indirectly) by the teacher's go.mod, so it's imported
// here directly instead of hand-rolling a fixed word list.
type LoremProvider struct{}

// NewLoremProvider constructs a LoremProvider.
func NewLoremProvider() *LoremProvider { return &LoremProvider{} }

func (p *LoremProvider) Name() string { return "lorem" }

// loremText generates n words via golorem. golorem draws from the
// package-level math/rand source rather than an injectable one, so
// determinism (spec's demo/test needs, not a spec requirement itself) is
// obtained by reseeding that source from a hash of the request right
// before generating: the same req always starts from the same rand state
// and so always produces the same words.
func (p *LoremProvider) loremText(req llmwire.GenerateRequest) string {
	n := 12
	if req.MaxTokens != nil && *req.MaxTokens > 0 && *req.MaxTokens < n {
		n = *req.MaxTokens
	}

	rand.Seed(loremSeed(req))
	words := make([]string, 0, n)
	for i := 0; i < n; i++ {
		words = append(words, lorem.Word(3, 9))
	}
	text := strings.Join(words, " ")
	return strings.ToUpper(text[:1]) + text[1:] + "."
}

// loremSeed derives a stable seed from the parts of req that shape its
// response, so identical requests reseed golorem's global source to the
// same state and produce identical text.
func loremSeed(req llmwire.GenerateRequest) int64 {
	h := fnv.New64a()
	h.Write([]byte(req.Model))
	for _, m := range req.Messages {
		h.Write([]byte(m.Role))
		h.Write([]byte(m.Content))
	}
	return int64(h.Sum64())
}

func (p *LoremProvider) Complete(ctx context.Context, req llmwire.GenerateRequest) (llmwire.GenerateResponse, error) {
	text := p.loremText(req)
	return llmwire.GenerateResponse{
		Model:        req.Model,
		Content:      text,
		FinishReason: "stop",
		Usage: llmwire.Usage{
			PromptTokens:     len(req.Messages),
			CompletionTokens: len(strings.Fields(text)),
			TotalTokens:      len(req.Messages) + len(strings.Fields(text)),
		},
	}, nil
}

func (p *LoremProvider) CompleteWithTools(ctx context.Context, req llmwire.GenerateRequest) (llmwire.GenerateResponse, error) {
	return p.Complete(ctx, req)
}

func (p *LoremProvider) Stream(ctx context.Context, req llmwire.GenerateRequest) (<-chan llmwire.StreamEvent, error) {
	words := strings.Fields(p.loremText(req))
	out := make(chan llmwire.StreamEvent)

	go func() {
		defer close(out)
		var sent int
		for i, w := range words {
			chunk := w
			if i < len(words)-1 {
				chunk += " "
			}
			if err := ctx.Err(); err != nil {
				out <- llmwire.StreamEvent{Err: err}
				return
			}
			select {
			case <-ctx.Done():
				out <- llmwire.StreamEvent{Err: ctx.Err()}
				return
			case out <- llmwire.StreamEvent{Delta: &llmwire.StreamChunk{Content: chunk}}:
				sent++
			}
		}
		out <- llmwire.StreamEvent{
			Done: true,
			Usage: &llmwire.Usage{
				PromptTokens:     len(req.Messages),
				CompletionTokens: sent,
				TotalTokens:      len(req.Messages) + sent,
			},
		}
	}()

	return out, nil
}

func (p *LoremProvider) ListModels(ctx context.Context) ([]llmwire.Model, error) {
	return []llmwire.Model{{ID: "lorem-fast"}, {ID: "lorem-slow"}}, nil
}

func (p *LoremProvider) ValidateCredentials(ctx context.Context) error {
	return nil
}

var _ Provider = (*LoremProvider)(nil)
