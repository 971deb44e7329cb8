package provider

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"aventura/internal/domain"
	"aventura/internal/llmwire"
)

// listModelsTimeout bounds ListModels calls (spec §4.2: "listModels bounded
// at 15s with explicit cancellation").
const listModelsTimeout = 15 * time.Second

// defaultMaxTokens is used when a GenerateRequest does not set MaxTokens;
// Anthropic's API requires the field.
const defaultMaxTokens = 4096

// AnthropicProvider adapts the native Anthropic SDK to the Provider
// interface, converting between llmwire's provider-agnostic types and the
// SDK's message params (grounded on the teacher's AnthropicAdapter, which
// wraps a library provider the same way; here the library is Anthropic's
// own SDK rather than a private wrapper).
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider constructs an AnthropicProvider from an API key.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

func (a *AnthropicProvider) Name() string { return "anthropic" }

func toAnthropicParams(req llmwire.GenerateRequest) anthropic.MessageNewParams {
	maxTokens := int64(defaultMaxTokens)
	if req.MaxTokens != nil {
		maxTokens = int64(*req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
	}

	for _, m := range req.Messages {
		switch m.Role {
		case llmwire.RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case llmwire.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = anthropic.Float(*req.TopP)
	}
	if len(req.Stop) > 0 {
		params.StopSequences = req.Stop
	}

	for _, t := range req.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Function.Name,
				Description: anthropic.String(t.Function.Description),
				InputSchema: toAnthropicSchema(t.Function.Parameters),
			},
		})
	}

	return params
}

func toAnthropicSchema(params map[string]any) anthropic.ToolInputSchemaParam {
	if params == nil {
		return anthropic.ToolInputSchemaParam{}
	}
	properties, _ := params["properties"]
	return anthropic.ToolInputSchemaParam{Properties: properties}
}

func fromAnthropicMessage(msg *anthropic.Message) llmwire.GenerateResponse {
	var content string
	var toolCalls []llmwire.ToolCall

	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += variant.Text
		case anthropic.ToolUseBlock:
			args, _ := json.Marshal(variant.Input)
			toolCalls = append(toolCalls, llmwire.ToolCall{
				ID: variant.ID,
				Function: llmwire.ToolCallFunction{
					Name:      variant.Name,
					Arguments: string(args),
				},
			})
		}
	}

	return llmwire.GenerateResponse{
		Model:        string(msg.Model),
		Content:      content,
		ToolCalls:    toolCalls,
		FinishReason: string(msg.StopReason),
		Usage: llmwire.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
}

func wrapAnthropicErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &domain.ProviderHTTPError{Status: apiErr.StatusCode, Body: apiErr.Error()}
	}
	return &domain.ProviderNetworkError{Err: err}
}

func (a *AnthropicProvider) Complete(ctx context.Context, req llmwire.GenerateRequest) (llmwire.GenerateResponse, error) {
	return withRetry(ctx, func(ctx context.Context) (llmwire.GenerateResponse, error) {
		msg, err := a.client.Messages.New(ctx, toAnthropicParams(req))
		if err != nil {
			return llmwire.GenerateResponse{}, wrapAnthropicErr(err)
		}
		return fromAnthropicMessage(msg), nil
	})
}

func (a *AnthropicProvider) CompleteWithTools(ctx context.Context, req llmwire.GenerateRequest) (llmwire.GenerateResponse, error) {
	return a.Complete(ctx, req)
}

func (a *AnthropicProvider) Stream(ctx context.Context, req llmwire.GenerateRequest) (<-chan llmwire.StreamEvent, error) {
	out := make(chan llmwire.StreamEvent)

	go func() {
		defer close(out)

		stream := a.client.Messages.NewStreaming(ctx, toAnthropicParams(req))
		accumulated := anthropic.Message{}

		for stream.Next() {
			event := stream.Current()
			if err := accumulated.Accumulate(event); err != nil {
				out <- llmwire.StreamEvent{Err: err}
				return
			}

			switch variant := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if textDelta, ok := variant.Delta.AsAny().(anthropic.TextDelta); ok && textDelta.Text != "" {
					select {
					case <-ctx.Done():
						out <- llmwire.StreamEvent{Err: ctx.Err()}
						return
					case out <- llmwire.StreamEvent{Delta: &llmwire.StreamChunk{Content: textDelta.Text}}:
					}
				}
			case anthropic.MessageStopEvent:
				out <- llmwire.StreamEvent{
					Done: true,
					Usage: &llmwire.Usage{
						PromptTokens:     int(accumulated.Usage.InputTokens),
						CompletionTokens: int(accumulated.Usage.OutputTokens),
						TotalTokens:      int(accumulated.Usage.InputTokens + accumulated.Usage.OutputTokens),
					},
				}
			}
		}

		if err := stream.Err(); err != nil {
			out <- llmwire.StreamEvent{Err: wrapAnthropicErr(err)}
		}
	}()

	return out, nil
}

func (a *AnthropicProvider) ListModels(ctx context.Context) ([]llmwire.Model, error) {
	ctx, cancel := context.WithTimeout(ctx, listModelsTimeout)
	defer cancel()

	page, err := a.client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return nil, wrapAnthropicErr(err)
	}
	models := make([]llmwire.Model, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, llmwire.Model{ID: m.ID})
	}
	return models, nil
}

func (a *AnthropicProvider) ValidateCredentials(ctx context.Context) error {
	_, err := a.ListModels(ctx)
	return err
}

var _ Provider = (*AnthropicProvider)(nil)
