package wire

import (
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Closed event-type catalog (spec §3). Unknown types are acknowledged but
// ignored — they never reach payload validation.
const (
	TypeSessionStart           = "session.start"
	TypeSessionStarted         = "session.started"
	TypeUserTranscriptPartial  = "user.audio.transcript.partial"
	TypeUserTranscriptFinal    = "user.audio.transcript.final"
	TypeAssistantSpeechPartial = "assistant.speech.partial"
	TypeAssistantSpeechFinal   = "assistant.speech.final"
	TypeAssistantUIPatch       = "assistant.ui.patch"
	TypeAudioOutputInterrupted = "audio.output.interrupted"
	TypeToolCall               = "tool.call"
	TypeToolResult             = "tool.result"
	TypeError                  = "error"
)

// payloadSchemas holds the per-type required-key schema literals, compiled
// once on first use (mirrors the teacher's per-method schema registry).
var payloadSchemas = map[string]string{
	TypeSessionStart: `{
		"type": "object",
		"required": ["sessionId"],
		"properties": {"sessionId": {"type": "string"}}
	}`,
	TypeSessionStarted: `{
		"type": "object",
		"required": ["sessionId"],
		"properties": {"sessionId": {"type": "string"}}
	}`,
	TypeUserTranscriptPartial: `{
		"type": "object",
		"required": ["text"],
		"properties": {"text": {"type": "string"}}
	}`,
	TypeUserTranscriptFinal: `{
		"type": "object",
		"required": ["text"],
		"properties": {"text": {"type": "string"}}
	}`,
	TypeAssistantSpeechPartial: `{
		"type": "object",
		"required": ["text"],
		"properties": {"text": {"type": "string"}}
	}`,
	TypeAssistantSpeechFinal: `{
		"type": "object",
		"required": ["text"],
		"properties": {"text": {"type": "string"}}
	}`,
	TypeAssistantUIPatch: `{
		"type": "object",
		"required": ["patch"]
	}`,
	TypeAudioOutputInterrupted: `{
		"type": "object",
		"required": ["reason"]
	}`,
	TypeToolCall: `{
		"type": "object",
		"required": ["callId", "name", "arguments"],
		"properties": {
			"callId": {"type": "string"},
			"name": {"type": "string"},
			"arguments": {"type": "string"}
		}
	}`,
	TypeToolResult: `{
		"type": "object",
		"required": ["callId", "result", "error"],
		"properties": {
			"callId": {"type": "string"}
		}
	}`,
	TypeError: `{
		"type": "object",
		"required": ["code", "message"],
		"properties": {
			"code": {"type": "string"},
			"message": {"type": "string"}
		}
	}`,
}

type schemaRegistry struct {
	once    sync.Once
	initErr error
	byType  map[string]*jsonschema.Schema
}

var registry schemaRegistry

func (r *schemaRegistry) init() {
	r.byType = make(map[string]*jsonschema.Schema, len(payloadSchemas))
	for eventType, raw := range payloadSchemas {
		compiler := jsonschema.NewCompiler()
		resource := "payload://" + eventType
		if err := compiler.AddResource(resource, mustJSONReader(raw)); err != nil {
			r.initErr = fmt.Errorf("wire: compile schema for %s: %w", eventType, err)
			return
		}
		schema, err := compiler.Compile(resource)
		if err != nil {
			r.initErr = fmt.Errorf("wire: compile schema for %s: %w", eventType, err)
			return
		}
		r.byType[eventType] = schema
	}
}

func validatePayloadShape(eventType string, payload []byte) *ParseError {
	registry.once.Do(registry.init)
	if registry.initErr != nil {
		return newParseError("invalid_event_envelope", registry.initErr.Error())
	}

	schema, known := registry.byType[eventType]
	if !known {
		// Closed-set catalog: unknown types are acknowledged but ignored.
		return nil
	}

	var payloadValue any
	if err := jsonUnmarshal(payload, &payloadValue); err != nil {
		return newParseError("invalid_event_envelope", "payload is not valid JSON")
	}
	if err := schema.Validate(payloadValue); err != nil {
		return newParseError("invalid_event_envelope", err.Error())
	}
	return nil
}
