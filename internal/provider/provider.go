// Package provider adapts an external LLM into the conductor's
// model-provider contract: a single operation taking conversation history
// plus an optional tool catalog and returning a ModelResponse (spec §4.5).
package provider

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/voiceconductor/internal/session"
)

// ToolSpec is one entry of the optional tool catalog offered to the model.
type ToolSpec struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// ToolCall is one LLM-native tool-use request, in the order the model
// produced it.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Request bundles the inputs to GenerateResponse.
type Request struct {
	History []session.ConversationTurn
	Tools   []ToolSpec
	// CallerContext carries a per-session auxiliary credential or similar
	// out-of-band value; providers may ignore it.
	CallerContext any
}

// ModelResponse is the provider's output for one invocation: the complete
// text, a lazy single-pass chunk stream whose concatenation reproduces
// FullText (up to whitespace trimming), and any tool-use requests.
type ModelResponse struct {
	FullText  string
	Chunks    <-chan string
	ToolCalls []ToolCall
}

// ModelProvider is the capability set named in spec §4.5: {generateResponse}.
type ModelProvider interface {
	// Name is the provider's stable identifier (spec §6).
	Name() string

	// GenerateResponse drives one model invocation. chunks must terminate
	// even when the caller never fully drains it before ctx is done.
	GenerateResponse(ctx context.Context, req Request) (*ModelResponse, error)
}

// singleChunkStream produces a ModelResponse.Chunks satisfying the "at
// least one chunk equal to fullText when fullText is non-empty" contract
// requirement for non-streaming implementations.
func singleChunkStream(fullText string) <-chan string {
	out := make(chan string, 1)
	if fullText != "" {
		out <- fullText
	}
	close(out)
	return out
}
