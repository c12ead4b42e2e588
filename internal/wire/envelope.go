// Package wire implements the conductor's event envelope codec: the sole
// wire unit exchanged between a client and the conductor over the
// bidirectional event-framed channel.
package wire

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire-level message: id, type, timestamp, session id, and
// an unordered payload mapping.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	SessionID string          `json:"sessionId"`
	Payload   json.RawMessage `json:"payload"`
}

// ParseError is a codec failure with a stable error code for the `error`
// envelope taxonomy (spec §7).
type ParseError struct {
	Code    string
	Message string
}

func (e *ParseError) Error() string {
	return e.Message
}

func newParseError(code, message string) *ParseError {
	return &ParseError{Code: code, Message: message}
}

// rawEnvelope mirrors Envelope but with pointer string fields so
// missing-field detection can distinguish "absent" from "null"/"zero value".
type rawEnvelope struct {
	ID        *string         `json:"id"`
	Type      *string         `json:"type"`
	Timestamp *string         `json:"timestamp"`
	SessionID *string         `json:"sessionId"`
	Payload   json.RawMessage `json:"payload"`
}

// Parse decodes and validates raw bytes into an Envelope. It rejects frames
// exceeding maxBytes, frames that are not valid JSON, frames that are not a
// JSON object, and frames missing any required field.
func Parse(raw []byte, maxBytes int) (*Envelope, *ParseError) {
	if maxBytes > 0 && len(raw) > maxBytes {
		return nil, newParseError("event_too_large", "frame exceeds maximum size")
	}

	var probe any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, newParseError("invalid_json", "frame is not valid JSON")
	}
	if _, ok := probe.(map[string]any); !ok {
		return nil, newParseError("invalid_event_envelope", "envelope is not a JSON object")
	}

	var re rawEnvelope
	if err := json.Unmarshal(raw, &re); err != nil {
		return nil, newParseError("invalid_event_envelope", "envelope is not a JSON object")
	}

	if re.ID == nil || *re.ID == "" {
		return nil, newParseError("missing_id", "envelope is missing a non-empty id")
	}
	if re.Type == nil || *re.Type == "" {
		return nil, newParseError("missing_type", "envelope is missing a type")
	}
	if re.Timestamp == nil || *re.Timestamp == "" {
		return nil, newParseError("missing_timestamp", "envelope is missing a timestamp")
	}
	if re.SessionID == nil || *re.SessionID == "" {
		return nil, newParseError("missing_session_id", "envelope is missing a sessionId")
	}
	if len(re.Payload) == 0 {
		return nil, newParseError("missing_payload", "envelope is missing a payload")
	}

	var payloadProbe any
	if err := json.Unmarshal(re.Payload, &payloadProbe); err != nil {
		return nil, newParseError("invalid_event_envelope", "payload is not valid JSON")
	}
	if _, isArray := payloadProbe.([]any); isArray {
		return nil, newParseError("invalid_event_envelope", "payload must be an object, not an array")
	}

	env := &Envelope{
		ID:        *re.ID,
		Type:      *re.Type,
		Timestamp: *re.Timestamp,
		SessionID: *re.SessionID,
		Payload:   re.Payload,
	}

	if err := validatePayloadShape(env.Type, env.Payload); err != nil {
		return nil, err
	}

	return env, nil
}

// Make constructs a well-formed outbound Envelope, generating an id and
// timestamp when not supplied.
func Make(eventType, sessionID string, payload any, idAndTimestamp ...string) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	id := ""
	timestamp := ""
	if len(idAndTimestamp) > 0 {
		id = idAndTimestamp[0]
	}
	if len(idAndTimestamp) > 1 {
		timestamp = idAndTimestamp[1]
	}
	if id == "" {
		id = uuid.NewString()
	}
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	return &Envelope{
		ID:        id,
		Type:      eventType,
		Timestamp: timestamp,
		SessionID: sessionID,
		Payload:   raw,
	}, nil
}

// Encode serializes an Envelope to its wire JSON form.
func Encode(env *Envelope) ([]byte, error) {
	return json.Marshal(env)
}
