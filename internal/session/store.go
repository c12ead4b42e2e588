package session

import (
	"sync"
	"time"

	"github.com/haasonsaas/voiceconductor/internal/ratelimit"
)

// Store owns every SessionState, keyed by session id, for the process
// lifetime (spec §4.3: "retained for the process lifetime; a pluggable
// store can provide eviction").
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*SessionState

	maxTurns           int
	limiterFactory     *ratelimit.Factory
	pendingToolCallTTL time.Duration
}

// NewStore creates an empty Store. maxTurns bounds history to 2*maxTurns
// turns (spec §3); limiterConfig configures every per-connection limiter
// minted by CreateRateLimiter; pendingToolCallTTL is held by the store (not
// copied onto each PendingToolCall) and surfaced via PendingToolCallTTL so
// callers can compare it with a call's EmittedAt for staleness
// observability (spec §9 Open Question 3: recorded, not actively swept).
func NewStore(maxTurns int, limiterConfig ratelimit.Config, pendingToolCallTTL time.Duration) *Store {
	if maxTurns <= 0 {
		maxTurns = 20
	}
	return &Store{
		sessions:           make(map[string]*SessionState),
		maxTurns:           maxTurns,
		limiterFactory:     ratelimit.NewFactory(limiterConfig),
		pendingToolCallTTL: pendingToolCallTTL,
	}
}

// PendingToolCallTTL returns the configured staleness threshold for pending
// tool calls. Callers may use it to log a warning on a late tool.result;
// the store itself never sweeps expired entries.
func (st *Store) PendingToolCallTTL() time.Duration {
	return st.pendingToolCallTTL
}

// GetOrCreate returns the SessionState for sessionID, creating it on first
// reference.
func (st *Store) GetOrCreate(sessionID string) *SessionState {
	st.mu.RLock()
	state, ok := st.sessions[sessionID]
	st.mu.RUnlock()
	if ok {
		return state
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if state, ok := st.sessions[sessionID]; ok {
		return state
	}
	state = newSessionState(sessionID)
	st.sessions[sessionID] = state
	return state
}

// Delete tears down a session's state entirely (used on explicit session
// teardown; reconnect does not call this — sessions outlive connections).
func (st *Store) Delete(sessionID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, sessionID)
}

// CreateRateLimiter mints a fresh per-connection Limiter (spec §4.3).
func (st *Store) CreateRateLimiter() *ratelimit.Limiter {
	return st.limiterFactory.New()
}

// AppendTurn appends a turn to state's history, enforcing the 2*MAX_TURNS
// bound by dropping the oldest turns on overflow (spec §3 invariant).
func (st *Store) AppendTurn(state *SessionState, turn ConversationTurn) {
	state.mu.Lock()
	defer state.mu.Unlock()

	state.history = append(state.history, turn)
	bound := 2 * st.maxTurns
	if len(state.history) > bound {
		excess := len(state.history) - bound
		state.history = state.history[excess:]
	}
}

// RecordTrace appends a human-readable marker to the bounded trace deque,
// dropping the oldest marker on overflow (spec §3: "bounded deque of ≤24").
func (st *Store) RecordTrace(state *SessionState, marker string) {
	state.mu.Lock()
	defer state.mu.Unlock()

	state.recentTranscriptTrace = append(state.recentTranscriptTrace, marker)
	if len(state.recentTranscriptTrace) > maxTraceMarkers {
		excess := len(state.recentTranscriptTrace) - maxTraceMarkers
		state.recentTranscriptTrace = state.recentTranscriptTrace[excess:]
	}
}

// ResetTrace clears the trace deque and increments the transcript counter;
// called at conductor-turn step 1 (spec §4.6.1).
func (st *Store) ResetTrace(state *SessionState) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.transcriptCount++
	state.recentTranscriptTrace = nil
}

// RecordPendingToolCall inserts a newly emitted tool.call into pendingToolCalls.
func (st *Store) RecordPendingToolCall(state *SessionState, call PendingToolCall) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.pendingToolCalls[call.CallID] = &call
}

// ResolvePendingToolCall removes and returns the pending call matching
// callID, if any.
func (st *Store) ResolvePendingToolCall(state *SessionState, callID string) (PendingToolCall, bool) {
	state.mu.Lock()
	defer state.mu.Unlock()
	p, ok := state.pendingToolCalls[callID]
	if !ok {
		return PendingToolCall{}, false
	}
	delete(state.pendingToolCalls, callID)
	return *p, true
}

// ClearPendingToolCalls discards every outstanding pending call for state;
// called when a turn errors out (spec §7: "Pending tool calls whose turn
// errored are cleared for that session").
func (st *Store) ClearPendingToolCalls(state *SessionState) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.pendingToolCalls = make(map[string]*PendingToolCall)
}

// IsDuplicate checks eventID against state's bounded seen-id set, recording
// it if new (spec §4.6.4).
func (st *Store) IsDuplicate(state *SessionState, eventID string) bool {
	return state.markSeen(eventID)
}

// PendingBridgedCount reports how many outstanding pending calls originated
// from an LLM tool-use block (as opposed to an administrative tool.call
// such as convo.setState). This brackets the tool-bridging suspension
// window: it is zero exactly when no turn is currently suspended awaiting
// tool results (spec §4.6.2/§4.6.3).
func (st *Store) PendingBridgedCount(state *SessionState) int {
	state.mu.Lock()
	defer state.mu.Unlock()
	count := 0
	for _, p := range state.pendingToolCalls {
		if p.ProviderToolUseID != "" {
			count++
		}
	}
	return count
}

// SetCredential records an optional ancillary credential from a
// session.start payload (spec §4.6: "optionally record an ancillary
// credential from the payload").
func (st *Store) SetCredential(state *SessionState, credential string) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.credential = credential
}

// Credential returns the session's recorded ancillary credential, if any.
func (state *SessionState) Credential() string {
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.credential
}
