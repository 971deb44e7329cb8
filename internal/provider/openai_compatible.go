package provider

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"aventura/internal/domain"
	"aventura/internal/llmwire"
)

// OpenAICompatibleProvider adapts any OpenAI-wire-compatible endpoint (the
// literal {model, messages, ...} / {choices:[{message, finish_reason}]}
// schema in spec §6) via the openai-go client pointed at a custom base URL.
// This is how OpenRouter and similar aggregators are reached: same wire
// shape, different host and API key.
type OpenAICompatibleProvider struct {
	name   string
	client openai.Client
}

// NewOpenAICompatibleProvider constructs a provider named name, talking to
// baseURL with apiKey. For OpenRouter, baseURL is
// "https://openrouter.ai/api/v1".
func NewOpenAICompatibleProvider(name, apiKey, baseURL string) *OpenAICompatibleProvider {
	return &OpenAICompatibleProvider{
		name:   name,
		client: openai.NewClient(option.WithAPIKey(apiKey), option.WithBaseURL(baseURL)),
	}
}

func (o *OpenAICompatibleProvider) Name() string { return o.name }

func toOpenAIMessages(messages []llmwire.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llmwire.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case llmwire.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func toOpenAIParams(req llmwire.GenerateRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: toOpenAIMessages(req.Messages),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*req.MaxTokens))
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}
	if len(req.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: req.Stop}
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Function.Name,
				Description: openai.String(t.Function.Description),
				Parameters:  t.Function.Parameters,
			},
		})
	}
	return params
}

func fromOpenAICompletion(resp *openai.ChatCompletion) llmwire.GenerateResponse {
	out := llmwire.GenerateResponse{Model: resp.Model}
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		out.Content = choice.Message.Content
		out.FinishReason = choice.FinishReason
		for _, tc := range choice.Message.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, llmwire.ToolCall{
				ID: tc.ID,
				Function: llmwire.ToolCallFunction{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
	}
	out.Usage = llmwire.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	return out
}

func wrapOpenAIErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		body, _ := json.Marshal(apiErr)
		return &domain.ProviderHTTPError{Status: apiErr.StatusCode, Body: string(body)}
	}
	return &domain.ProviderNetworkError{Err: err}
}

func (o *OpenAICompatibleProvider) Complete(ctx context.Context, req llmwire.GenerateRequest) (llmwire.GenerateResponse, error) {
	return withRetry(ctx, func(ctx context.Context) (llmwire.GenerateResponse, error) {
		resp, err := o.client.Chat.Completions.New(ctx, toOpenAIParams(req))
		if err != nil {
			return llmwire.GenerateResponse{}, wrapOpenAIErr(err)
		}
		return fromOpenAICompletion(resp), nil
	})
}

func (o *OpenAICompatibleProvider) CompleteWithTools(ctx context.Context, req llmwire.GenerateRequest) (llmwire.GenerateResponse, error) {
	return o.Complete(ctx, req)
}

func (o *OpenAICompatibleProvider) Stream(ctx context.Context, req llmwire.GenerateRequest) (<-chan llmwire.StreamEvent, error) {
	out := make(chan llmwire.StreamEvent)

	go func() {
		defer close(out)

		params := toOpenAIParams(req)
		stream := o.client.Chat.Completions.NewStreaming(ctx, params)

		var promptTokens, completionTokens int
		for stream.Next() {
			chunk := stream.Current()
			if chunk.Usage.TotalTokens > 0 {
				promptTokens = int(chunk.Usage.PromptTokens)
				completionTokens = int(chunk.Usage.CompletionTokens)
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta
			if delta.Content == "" {
				continue
			}
			select {
			case <-ctx.Done():
				out <- llmwire.StreamEvent{Err: ctx.Err()}
				return
			case out <- llmwire.StreamEvent{Delta: &llmwire.StreamChunk{Content: delta.Content}}:
			}
		}

		if err := stream.Err(); err != nil {
			out <- llmwire.StreamEvent{Err: wrapOpenAIErr(err)}
			return
		}

		out <- llmwire.StreamEvent{
			Done: true,
			Usage: &llmwire.Usage{
				PromptTokens:     promptTokens,
				CompletionTokens: completionTokens,
				TotalTokens:      promptTokens + completionTokens,
			},
		}
	}()

	return out, nil
}

func (o *OpenAICompatibleProvider) ListModels(ctx context.Context) ([]llmwire.Model, error) {
	ctx, cancel := context.WithTimeout(ctx, listModelsTimeout)
	defer cancel()

	page, err := o.client.Models.List(ctx)
	if err != nil {
		return nil, wrapOpenAIErr(err)
	}
	models := make([]llmwire.Model, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, llmwire.Model{ID: m.ID})
	}
	return models, nil
}

func (o *OpenAICompatibleProvider) ValidateCredentials(ctx context.Context) error {
	_, err := o.ListModels(ctx)
	return err
}

var _ Provider = (*OpenAICompatibleProvider)(nil)
