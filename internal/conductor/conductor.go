// Package conductor implements the per-event reducer and multi-turn
// tool-call loop that drives a voice-assistant dialogue (spec §4.6–§4.8).
package conductor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/voiceconductor/internal/provider"
	"github.com/haasonsaas/voiceconductor/internal/session"
	"github.com/haasonsaas/voiceconductor/internal/wire"
)

// Emitter serializes one outbound envelope to the transport if the
// connection is still open. Implementations must preserve call order.
type Emitter = func(env *wire.Envelope) error

// Client-side tool names the conductor emits on its own behalf as part of
// turn bookkeeping (spec §4.6.1/§6).
const (
	toolConvoSetState  = "convo.setState"
	toolConvoAppendMsg = "convo.appendMessage"
	toolTTSSpeak       = "tts.speak"
	stateThinking      = "thinking"
	stateSpeaking      = "speaking"
	stateIdle          = "idle"
)

// Conductor is a reducer over inbound events, with one outbound-emitter
// callback per invocation. It holds a session store and a model provider.
type Conductor struct {
	store    *session.Store
	provider provider.ModelProvider
	tools    []provider.ToolSpec
	log      *slog.Logger
	metrics  Metrics
}

// Metrics is the subset of observability hooks the conductor drives.
// Implementations may no-op any method.
type Metrics interface {
	TurnStarted()
	TurnCompleted()
	TurnFailed(reason string)
	ToolCallEmitted(name string)
	ProviderFailure(providerName string)
	RecordInboundEnvelope(disposition string)
}

// New builds a Conductor.
func New(store *session.Store, modelProvider provider.ModelProvider, tools []provider.ToolSpec, log *slog.Logger, metrics Metrics) *Conductor {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Conductor{store: store, provider: modelProvider, tools: tools, log: log, metrics: metrics}
}

type noopMetrics struct{}

func (noopMetrics) TurnStarted()                {}
func (noopMetrics) TurnCompleted()              {}
func (noopMetrics) TurnFailed(string)           {}
func (noopMetrics) ToolCallEmitted(string)       {}
func (noopMetrics) ProviderFailure(string)       {}
func (noopMetrics) RecordInboundEnvelope(string) {}

// Handle dispatches one inbound envelope through the reducer table (spec
// §4.6). Dedup and session-turn serialization happen here, before any
// handler runs.
func (c *Conductor) Handle(ctx context.Context, env *wire.Envelope, emit Emitter) error {
	state := c.store.GetOrCreate(env.SessionID)

	state.Lock()
	defer state.Unlock()

	if c.store.IsDuplicate(state, env.ID) {
		c.log.Debug("dropping duplicate inbound event", "id", env.ID, "sessionId", env.SessionID)
		c.metrics.RecordInboundEnvelope("duplicate")
		return nil
	}
	c.metrics.RecordInboundEnvelope("admitted")

	switch env.Type {
	case wire.TypeSessionStart:
		return c.handleSessionStart(state, env, emit)
	case wire.TypeUserTranscriptFinal:
		return c.handleTranscriptFinal(ctx, state, env, emit)
	case wire.TypeToolResult:
		return c.handleToolResult(ctx, state, env, emit)
	case wire.TypeAudioOutputInterrupted:
		c.log.Info("audio output interrupted", "sessionId", env.SessionID)
		return nil
	default:
		c.log.Debug("ignoring event type", "type", env.Type, "sessionId", env.SessionID)
		return nil
	}
}

func (c *Conductor) handleSessionStart(state *session.SessionState, env *wire.Envelope, emit Emitter) error {
	var payload struct {
		SessionID  string `json:"sessionId"`
		Credential string `json:"credential"`
	}
	_ = json.Unmarshal(env.Payload, &payload)
	if payload.Credential != "" {
		c.store.SetCredential(state, payload.Credential)
	}

	return c.emitEnvelope(env.SessionID, wire.TypeSessionStarted, map[string]any{"sessionId": env.SessionID}, emit)
}

// handleToolResult implements spec §4.6.3: resolve a pending call, and if it
// was the last outstanding bridged call for the current model turn, resume
// generation.
func (c *Conductor) handleToolResult(ctx context.Context, state *session.SessionState, env *wire.Envelope, emit Emitter) error {
	var payload struct {
		CallID string  `json:"callId"`
		Result *string `json:"result"`
		Error  *string `json:"error"`
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return c.emitError(env.SessionID, "invalid_event", "tool.result payload malformed", emit)
	}

	pending, ok := c.store.ResolvePendingToolCall(state, payload.CallID)
	if !ok {
		return c.emitError(env.SessionID, "no_pending_tool_call", fmt.Sprintf("no pending tool call for callId %s", payload.CallID), emit)
	}

	if env.SessionID != state.SessionID {
		// Defense in depth: §4.6.3 step 2. The connection handler's session
		// binding (§4.7) should already have prevented this.
		c.log.Warn("tool.result session mismatch against pending entry", "envelopeSession", env.SessionID, "stateSession", state.SessionID)
	}

	if ttl := c.store.PendingToolCallTTL(); ttl > 0 && !pending.EmittedAt.IsZero() {
		if age := time.Since(pending.EmittedAt); age > ttl {
			// §9 Open Question 3: late arrivals still resolve normally (no
			// active sweep); this is observability only.
			c.log.Warn("tool.result arrived after pending-call TTL elapsed", "callId", payload.CallID, "toolName", pending.ToolName, "age", age, "ttl", ttl)
		}
	}

	if pending.ProviderToolUseID == "" {
		// Administrative tool.call (convo.setState/appendMessage/tts.speak)
		// acked by the client. Not LLM-visible, no turn to resume.
		return nil
	}

	isError := payload.Error != nil && *payload.Error != ""
	content := "{}"
	if isError {
		content = *payload.Error
	} else if payload.Result != nil {
		content = *payload.Result
	}
	c.store.AppendTurn(state, session.NewToolResultTurn(pending.ProviderToolUseID, content, isError))

	if c.store.PendingBridgedCount(state) > 0 {
		// Other tool-use blocks from the same model turn are still
		// outstanding; stay suspended.
		return nil
	}

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

func (c *Conductor) emitEnvelope(sessionID, eventType string, payload any, emit Emitter) error {
	env, err := wire.Make(eventType, sessionID, payload)
	if err != nil {
		return err
	}
	return emit(env)
}

func (c *Conductor) emitError(sessionID, code, message string, emit Emitter) error {
	return c.emitEnvelope(sessionID, wire.TypeError, map[string]any{"code": code, "message": message}, emit)
}

// newCallID mints a fresh client-facing callId for a tool.call event.
func newCallID() string {
	return uuid.NewString()
}

// emitToolCallTracked emits a tool.call and records it in pendingToolCalls
// with no providerToolUseId, marking it administrative (spec §4.6.1 step 3:
// "Each tool.call is recorded in pendingToolCalls").
func (c *Conductor) emitToolCallTracked(state *session.SessionState, sessionID, name string, arguments any, emit Emitter) error {
	callID := newCallID()
	raw, err := json.Marshal(arguments)
	if err != nil {
		return err
	}
	c.store.RecordPendingToolCall(state, session.PendingToolCall{CallID: callID, ToolName: name, EmittedAt: time.Now()})
	c.store.RecordTrace(state, "tool.call:"+name)
	c.metrics.ToolCallEmitted(name)
	return c.emitEnvelope(sessionID, wire.TypeToolCall, map[string]any{
		"callId":    callID,
		"name":      name,
		"arguments": string(raw),
	}, emit)
}

func (c *Conductor) emitSetState(state *session.SessionState, sessionID, newState string, emit Emitter) error {
	return c.emitToolCallTracked(state, sessionID, toolConvoSetState, map[string]any{"state": newState}, emit)
}

func (c *Conductor) emitAppendMessage(state *session.SessionState, sessionID, role, text string, emit Emitter) error {
	return c.emitToolCallTracked(state, sessionID, toolConvoAppendMsg, map[string]any{
		"role": role, "text": text, "isPartial": false,
	}, emit)
}

func (c *Conductor) emitSpeak(state *session.SessionState, sessionID, text string, emit Emitter) error {
	return c.emitToolCallTracked(state, sessionID, toolTTSSpeak, map[string]any{"text": text}, emit)
}
