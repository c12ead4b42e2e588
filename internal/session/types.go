// Package session owns the per-session state the conductor mutates across a
// multi-turn dialogue: conversation history, pending tool-call correlations,
// and deduplicated inbound event ids.
package session

import (
	"encoding/json"
	"sync"
	"time"
)

// TurnKind discriminates the ConversationTurn sum type (spec §3).
type TurnKind string

const (
	TurnUserText         TurnKind = "user_text"
	TurnAssistantText    TurnKind = "assistant_text"
	TurnAssistantToolUse TurnKind = "assistant_tool_use"
	TurnToolResult       TurnKind = "tool_result"
)

// ToolUseBlock is one LLM-native tool-use record inside an assistant
// tool-use turn: {id, name, input}.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ConversationTurn is a tagged variant over the four turn kinds named in
// spec §3. Only the fields relevant to Kind are populated.
type ConversationTurn struct {
	Kind TurnKind
	Role string // "user", "assistant", or "tool"

	// Text holds the content for TurnUserText, TurnAssistantText, and
	// TurnToolResult (the tool result's string content).
	Text string

	// ToolUseBlocks holds the ordered block list for TurnAssistantToolUse.
	ToolUseBlocks []ToolUseBlock

	// ToolUseID is the provider tool_use id this turn answers, set on
	// TurnToolResult.
	ToolUseID string

	// IsError reports whether a TurnToolResult's content came from the
	// tool.result envelope's error field rather than its result field
	// (spec §4.6.3 step 3: "status = error iff error != null").
	IsError bool
}

// NewUserTurn builds a text user turn.
func NewUserTurn(text string) ConversationTurn {
	return ConversationTurn{Kind: TurnUserText, Role: "user", Text: text}
}

// NewAssistantTextTurn builds a text assistant turn.
func NewAssistantTextTurn(text string) ConversationTurn {
	return ConversationTurn{Kind: TurnAssistantText, Role: "assistant", Text: text}
}

// NewAssistantToolUseTurn builds an assistant tool-use turn from the
// ordered block list the provider returned.
func NewAssistantToolUseTurn(blocks []ToolUseBlock) ConversationTurn {
	return ConversationTurn{Kind: TurnAssistantToolUse, Role: "assistant", ToolUseBlocks: blocks}
}

// NewToolResultTurn builds a tool-result turn answering toolUseID. isError
// marks the result as having come from the tool.result envelope's error
// field (spec §4.6.3 step 3).
func NewToolResultTurn(toolUseID, content string, isError bool) ConversationTurn {
	return ConversationTurn{Kind: TurnToolResult, Role: "tool", Text: content, ToolUseID: toolUseID, IsError: isError}
}

// PendingToolCall correlates a client-facing callId with the LLM-native
// tool_use block it was bridged from.
type PendingToolCall struct {
	CallID            string
	ToolName          string
	EmittedAt         time.Time
	ProviderToolUseID string
}

// seenIDSet is a FIFO-evicted bounded set, used for inbound dedup (spec
// §4.6.4: "bounded to at least 256 recent entries").
type seenIDSet struct {
	capacity int
	order    []string
	present  map[string]struct{}
}

func newSeenIDSet(capacity int) *seenIDSet {
	if capacity < 256 {
		capacity = 256
	}
	return &seenIDSet{capacity: capacity, present: make(map[string]struct{}, capacity)}
}

// seenBefore reports whether id was already recorded, and records it if not.
func (s *seenIDSet) seenBefore(id string) bool {
	if _, ok := s.present[id]; ok {
		return true
	}
	s.present[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.present, oldest)
	}
	return false
}

// SessionState is the live state for one session id. turnMu serializes all
// conductor-turn processing for this session per spec §5: "at most one
// turn-processing routine runs at any instant" for a given session.
type SessionState struct {
	SessionID string

	turnMu sync.Mutex

	mu                    sync.Mutex
	history               []ConversationTurn
	pendingToolCalls      map[string]*PendingToolCall
	recentTranscriptTrace []string
	transcriptCount       int
	seenIDs               *seenIDSet
	credential            string
}

const maxTraceMarkers = 24

func newSessionState(sessionID string) *SessionState {
	return &SessionState{
		SessionID:        sessionID,
		pendingToolCalls: make(map[string]*PendingToolCall),
		seenIDs:          newSeenIDSet(256),
	}
}

// Lock acquires the session's turn-serializer. Callers must hold it for the
// full duration of a conductor-turn invocation.
func (s *SessionState) Lock() { s.turnMu.Lock() }

// Unlock releases the session's turn-serializer.
func (s *SessionState) Unlock() { s.turnMu.Unlock() }

// History returns a snapshot copy of the conversation history.
func (s *SessionState) History() []ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ConversationTurn, len(s.history))
	copy(out, s.history)
	return out
}

// TranscriptCount returns the number of user turns processed so far.
func (s *SessionState) TranscriptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcriptCount
}

// Trace returns a snapshot copy of the current turn's trace markers.
func (s *SessionState) Trace() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.recentTranscriptTrace))
	copy(out, s.recentTranscriptTrace)
	return out
}

// PendingToolCall looks up a pending call by callId.
func (s *SessionState) PendingToolCall(callID string) (PendingToolCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pendingToolCalls[callID]
	if !ok {
		return PendingToolCall{}, false
	}
	return *p, true
}

// PendingToolCallCount reports how many calls remain unresolved.
func (s *SessionState) PendingToolCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pendingToolCalls)
}

// markSeen checks and records an inbound event id, reporting whether it was
// already seen.
func (s *SessionState) markSeen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seenIDs.seenBefore(id)
}
