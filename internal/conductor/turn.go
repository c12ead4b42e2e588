package conductor

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/haasonsaas/voiceconductor/internal/provider"
	"github.com/haasonsaas/voiceconductor/internal/session"
	"github.com/haasonsaas/voiceconductor/internal/wire"
)

// handleTranscriptFinal runs one full conductor turn for a finalized user
// transcript (spec §4.6.1).
func (c *Conductor) handleTranscriptFinal(ctx context.Context, state *session.SessionState, env *wire.Envelope, emit Emitter) error {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return c.emitError(env.SessionID, "invalid_event", "user.audio.transcript.final payload malformed", emit)
	}
	if strings.TrimSpace(payload.Text) == "" {
		return c.emitError(env.SessionID, "invalid_transcript", "user.audio.transcript.final text is empty", emit)
	}

	// Step 1: increment transcriptCount, reset recentTranscriptTrace.
	c.store.ResetTrace(state)

	// Step 2: append the user-text turn to history.
	c.store.AppendTurn(state, session.NewUserTurn(payload.Text))
	c.metrics.TurnStarted()

	// Step 3: emit the thinking/appendMessage bookkeeping tool calls.
	if err := c.emitSetState(state, env.SessionID, stateThinking, emit); err != nil {
		return err
	}
	if err := c.emitAppendMessage(state, env.SessionID, "user", payload.Text, emit); err != nil {
		return err
	}

	// Step 4: invoke the provider.
	resp, err := c.provider.GenerateResponse(ctx, provider.Request{
		History:       state.History(),
		Tools:         c.tools,
		CallerContext: state.Credential(),
	})
	if err != nil {
		return c.failTurn(state, env.SessionID, err, emit)
	}
	return c.processModelResponse(state, env.SessionID, resp, emit)
}

// processModelResponse implements spec §4.6.1 steps 5-9: stream partials,
// then either bridge tool-use blocks (suspending the turn) or finalize with
// the closing tool-call sequence. It is the resumption point named by
// §4.6.2 step 5 and §4.6.3 step 4.
func (c *Conductor) processModelResponse(state *session.SessionState, sessionID string, resp *provider.ModelResponse, emit Emitter) error {
	// Step 5: consume chunks, emitting cumulative partials.
	var responseText strings.Builder
	for chunk := range resp.Chunks {
		responseText.WriteString(chunk)
		if err := c.emitEnvelope(sessionID, wire.TypeAssistantSpeechPartial, map[string]any{"text": responseText.String()}, emit); err != nil {
			return err
		}
	}

	// Step 6: fall back to fullText if nothing was streamed.
	text := responseText.String()
	if text == "" && resp.FullText != "" {
		text = resp.FullText
	}

	// Step 7: tool-use blocks defer finalization to the bridging sub-loop.
	if len(resp.ToolCalls) > 0 {
		return c.bridgeToolCalls(state, sessionID, resp, emit)
	}

	return c.finalizeTurn(state, sessionID, text, emit)
}

// bridgeToolCalls implements spec §4.6.2 steps 1-3: record the model's
// tool-use blocks in history, emit a client-facing tool.call per block
// correlated to the provider's tool_use id, and suspend the turn.
func (c *Conductor) bridgeToolCalls(state *session.SessionState, sessionID string, resp *provider.ModelResponse, emit Emitter) error {
	for _, tc := range resp.ToolCalls {
		if tc.Name == "" {
			return c.failInvalidToolCall(state, sessionID, emit)
		}
	}

	blocks := make([]session.ToolUseBlock, 0, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		blocks = append(blocks, session.ToolUseBlock{ID: tc.ID, Name: tc.Name, Input: tc.Input})
	}
	c.store.AppendTurn(state, session.NewAssistantToolUseTurn(blocks))

	for _, tc := range resp.ToolCalls {
		callID := newCallID()
		c.store.RecordPendingToolCall(state, session.PendingToolCall{
			CallID:            callID,
			ToolName:          tc.Name,
			ProviderToolUseID: tc.ID,
			EmittedAt:         time.Now(),
		})
		c.store.RecordTrace(state, "tool.call:"+tc.Name)
		c.metrics.ToolCallEmitted(tc.Name)

		if err := c.emitEnvelope(sessionID, wire.TypeToolCall, map[string]any{
			"callId":    callID,
			"name":      tc.Name,
			"arguments": string(tc.Input),
		}, emit); err != nil {
			return err
		}
	}
	return nil
}

// failInvalidToolCall implements spec §7's invalid_tool_call error: the
// provider produced a tool-use block with no usable name. Treated as a
// whole-turn failure, matching the "failed turn always ends with
// convo.setState{idle}" propagation rule — nothing from this response is
// bridged or added to history.
func (c *Conductor) failInvalidToolCall(state *session.SessionState, sessionID string, emit Emitter) error {
	c.store.ClearPendingToolCalls(state)
	c.metrics.TurnFailed("invalid_tool_call")

	if err := c.emitError(sessionID, "invalid_tool_call", "provider produced a tool-use block without a usable name", emit); err != nil {
		return err
	}
	return c.emitSetState(state, sessionID, stateIdle, emit)
}

// finalizeTurn implements spec §4.6.1 step 8: trim the response text, emit
// the final transcript, append it to history, and emit the closing
// tool-call sequence that returns the client UI to idle.
func (c *Conductor) finalizeTurn(state *session.SessionState, sessionID, text string, emit Emitter) error {
	trimmed := strings.TrimSpace(text)

	if err := c.emitEnvelope(sessionID, wire.TypeAssistantSpeechFinal, map[string]any{"text": trimmed}, emit); err != nil {
		return err
	}
	c.store.AppendTurn(state, session.NewAssistantTextTurn(trimmed))
	c.store.RecordTrace(state, "assistant.speech.final")

	if err := c.emitAppendMessage(state, sessionID, "assistant", trimmed, emit); err != nil {
		return err
	}
	if err := c.emitSetState(state, sessionID, stateSpeaking, emit); err != nil {
		return err
	}
	if err := c.emitSpeak(state, sessionID, trimmed, emit); err != nil {
		return err
	}
	if err := c.emitSetState(state, sessionID, stateIdle, emit); err != nil {
		return err
	}

	c.log.Info("conductor turn completed", "sessionId", sessionID, "trace", state.Trace())
	c.metrics.TurnCompleted()
	return nil
}

// failTurn implements spec §4.6.1 step 4 and §7: emit the error event,
// return the client UI to idle, and clear any pending calls left over from
// the failed turn.
func (c *Conductor) failTurn(state *session.SessionState, sessionID string, err error, emit Emitter) error {
	c.store.ClearPendingToolCalls(state)

	reason := "model_provider_failed"
	c.metrics.TurnFailed(reason)
	c.metrics.ProviderFailure(c.provider.Name())

	if emitErr := c.emitError(sessionID, reason, err.Error(), emit); emitErr != nil {
		return emitErr
	}
	return c.emitSetState(state, sessionID, stateIdle, emit)
}
