package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/voiceconductor/internal/backoff"
	"github.com/haasonsaas/voiceconductor/internal/chunk"
	"github.com/haasonsaas/voiceconductor/internal/session"
)

// OpenAIProvider is the live "openai" model-provider variant, adapted from
// agent/providers/openai.go but standardized onto the shared
// internal/backoff retry loop and ClassifyError taxonomy instead of its own
// ad hoc linear-delay retry and local error matching.
type OpenAIProvider struct {
	client *openai.Client
	opts   Options
}

// NewOpenAIProvider constructs a provider against the Chat Completions API.
func NewOpenAIProvider(opts Options) (*OpenAIProvider, error) {
	if opts.APIKey == "" {
		return nil, errors.New("provider: openai requires an API key")
	}
	opts = opts.withDefaults()
	if opts.Model == "" {
		opts.Model = openai.GPT4o
	}
	return &OpenAIProvider{
		client: openai.NewClient(opts.APIKey),
		opts:   opts,
	}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) GenerateResponse(ctx context.Context, req Request) (*ModelResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.opts.RequestTimeout)
	defer cancel()

	messages := convertHistoryToOpenAI(req.History)
	tools := convertToolsToOpenAI(req.Tools)

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

func (p *OpenAIProvider) buildResponse(ctx context.Context, fullText string, toolCalls []ToolCall) *ModelResponse {
	chunks := chunk.Text(fullText, p.opts.MinChunk, p.opts.MaxChunk)
	return &ModelResponse{
		FullText:  fullText,
		Chunks:    chunk.Stream(ctx, chunks, p.opts.PartialDelay),
		ToolCalls: toolCalls,
	}
}

type accumulatingToolCall struct {
	id        string
	name      string
	arguments string
}

func (p *OpenAIProvider) streamOnce(ctx context.Context, messages []openai.ChatCompletionMessage, tools []openai.Tool) (string, []ToolCall, error) {
	req := openai.ChatCompletionRequest{
		Model:     p.opts.Model,
		Messages:  messages,
		Stream:    true,
		MaxTokens: p.opts.MaxTokens,
	}
	if len(tools) > 0 {
		req.Tools = tools
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", nil, fmt.Errorf("openai: create stream: %w", err)
	}
	defer stream.Close()

	var fullText string
	byIndex := make(map[int]*accumulatingToolCall)

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("openai: stream recv: %w", err)
		}
		for _, choice := range resp.Choices {
			fullText += choice.Delta.Content
			for _, tc := range choice.Delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				acc, ok := byIndex[idx]
				if !ok {
					acc = &accumulatingToolCall{}
					byIndex[idx] = acc
				}
				if tc.ID != "" {
					acc.id = tc.ID
				}
				if tc.Function.Name != "" {
					acc.name = tc.Function.Name
				}
				acc.arguments += tc.Function.Arguments
			}
		}
	}

	indices := make([]int, 0, len(byIndex))
	for idx := range byIndex {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	toolCalls := make([]ToolCall, 0, len(indices))
	for _, idx := range indices {
		acc := byIndex[idx]
		toolCalls = append(toolCalls, ToolCall{
			ID:    acc.id,
			Name:  restoreInbound(acc.name),
			Input: json.RawMessage(acc.arguments),
		})
	}

	return fullText, toolCalls, nil
}

func convertHistoryToOpenAI(history []session.ConversationTurn) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, turn := range history {
		switch turn.Kind {
		case session.TurnUserText:
			messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: turn.Text})
		case session.TurnAssistantText:
			messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: turn.Text})
		case session.TurnAssistantToolUse:
			toolCalls := make([]openai.ToolCall, 0, len(turn.ToolUseBlocks))
			for _, b := range turn.ToolUseBlocks {
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   b.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      normalizeOutbound(b.Name),
						Arguments: string(b.Input),
					},
				})
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				ToolCalls: toolCalls,
			})
		case session.TurnToolResult:
			// The OpenAI tool-message schema has no is_error field; the error
			// taxonomy is conveyed in-band the way the upstream API docs
			// recommend for failed function calls.
			content := turn.Text
			if turn.IsError {
				content = "Error: " + content
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    content,
				ToolCallID: turn.ToolUseID,
			})
		}
	}
	return messages
}

func convertToolsToOpenAI(tools []ToolSpec) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		var params any = map[string]any{"type": "object", "properties": map[string]any{}}
		if len(t.Schema) > 0 {
			var decoded map[string]any
			if err := json.Unmarshal(t.Schema, &decoded); err == nil {
				params = decoded
			}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        normalizeOutbound(t.Name),
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
