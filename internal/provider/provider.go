// Package provider implements the uniform adapter over LLM providers
// described in the expanded spec's Provider Adapter module: complete,
// stream, completeWithTools, listModels, validateCredentials, each
// returning llmwire types regardless of the concrete backend.
package provider

import (
	"context"

	"aventura/internal/llmwire"
)

// Provider is the uniform interface every concrete adapter satisfies
// (spec §4.2).
type Provider interface {
	// Name identifies the provider for logging and model-routing.
	Name() string

	// Complete performs a single non-streaming completion.
	Complete(ctx context.Context, req llmwire.GenerateRequest) (llmwire.GenerateResponse, error)

	// Stream performs a streaming completion. The returned channel is
	// closed exactly once, after a final event with Done=true or Err set
	// (spec §4.2 streaming contract).
	Stream(ctx context.Context, req llmwire.GenerateRequest) (<-chan llmwire.StreamEvent, error)

	// CompleteWithTools performs a single non-streaming completion that may
	// include tool_calls in the result.
	CompleteWithTools(ctx context.Context, req llmwire.GenerateRequest) (llmwire.GenerateResponse, error)

	// ListModels returns the provider's model catalog.
	ListModels(ctx context.Context) ([]llmwire.Model, error)

	// ValidateCredentials performs a cheap call to confirm the configured
	// credentials are accepted by the provider.
	ValidateCredentials(ctx context.Context) error
}
