package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/voiceconductor/internal/backoff"
	"github.com/haasonsaas/voiceconductor/internal/chunk"
	"github.com/haasonsaas/voiceconductor/internal/session"
)

// AnthropicProvider is the live "anthropic" model-provider variant,
// adapted from the teacher's SSE-streaming + retry pattern in
// agent/providers/anthropic.go.
type AnthropicProvider struct {
	client anthropic.Client
	opts   Options
}

// NewAnthropicProvider constructs a provider against the Anthropic Messages
// API. opts.Model defaults to claude-sonnet-4-20250514 when empty.
func NewAnthropicProvider(opts Options) (*AnthropicProvider, error) {
	if opts.APIKey == "" {
		return nil, errors.New("provider: anthropic requires an API key")
	}
	opts = opts.withDefaults()
	if opts.Model == "" {
		opts.Model = "claude-sonnet-4-20250514"
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(opts.APIKey)),
		opts:   opts,
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) GenerateResponse(ctx context.Context, req Request) (*ModelResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.opts.RequestTimeout)
	defer cancel()

	messages := convertHistoryToAnthropic(req.History)
	tools := convertToolsToAnthropic(req.Tools)

	result, err := backoff.RetryIf(callCtx, backoff.DefaultPolicy(), p.opts.MaxRetries,
		func(err error) bool {
			var pe *ProviderError
			return errors.As(err, &pe) && pe.Reason.IsRetryable()
		},
		func(attempt int) (*ModelResponse, error) {
			fullText, toolCalls, err := p.streamOnce(callCtx, messages, tools)
			if err != nil {
				return nil, NewProviderError(p.Name(), p.opts.Model, err)
			}
			return p.buildResponse(ctx, fullText, toolCalls), nil
		},
	)
	if err != nil {
		return nil, err
	}
	return result.Value, nil
}

func (p *AnthropicProvider) buildResponse(ctx context.Context, fullText string, toolCalls []ToolCall) *ModelResponse {
	chunks := chunk.Text(fullText, p.opts.MinChunk, p.opts.MaxChunk)
	return &ModelResponse{
		FullText:  fullText,
		Chunks:    chunk.Stream(ctx, chunks, p.opts.PartialDelay),
		ToolCalls: toolCalls,
	}
}

func (p *AnthropicProvider) streamOnce(ctx context.Context, messages []anthropic.MessageParam, tools []anthropic.ToolUnionParam) (string, []ToolCall, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.opts.Model),
		MaxTokens: int64(p.opts.MaxTokens),
		Messages:  messages,
	}
	if len(tools) > 0 {
		params.Tools = tools
	}

	stream := p.client.Messages.NewStreaming(ctx, params)

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return "", nil, fmt.Errorf("anthropic: accumulate stream event: %w", err)
		}
	}
	if err := stream.Err(); err != nil {
		return "", nil, fmt.Errorf("anthropic: stream: %w", err)
	}

	var fullText string
	var toolCalls []ToolCall
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			fullText += variant.Text
		case anthropic.ToolUseBlock:
			toolCalls = append(toolCalls, ToolCall{
				ID:    variant.ID,
				Name:  restoreInbound(variant.Name),
				Input: json.RawMessage(variant.Input),
			})
		}
	}

	return fullText, toolCalls, nil
}

func convertHistoryToAnthropic(history []session.ConversationTurn) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(history))
	for _, turn := range history {
		switch turn.Kind {
		case session.TurnUserText:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Text)))
		case session.TurnAssistantText:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Text)))
		case session.TurnAssistantToolUse:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(turn.ToolUseBlocks))
			for _, b := range turn.ToolUseBlocks {
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ID, json.RawMessage(b.Input), normalizeOutbound(b.Name)))
			}
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		case session.TurnToolResult:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewToolResultBlock(turn.ToolUseID, turn.Text, turn.IsError)))
		}
	}
	return messages
}

func convertToolsToAnthropic(tools []ToolSpec) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		var decoded map[string]any
		if len(t.Schema) > 0 {
			if err := json.Unmarshal(t.Schema, &decoded); err == nil {
				if props, ok := decoded["properties"]; ok {
					schema.Properties = props
				}
			}
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        normalizeOutbound(t.Name),
				Description: anthropic.String(t.Description),
				InputSchema: schema,
			},
		})
	}
	return out
}
