package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Codec errors.
var (
	// ErrMalformedMessage means the text is not parseable JSON.
	ErrMalformedMessage = errors.New("protocol: malformed message")

	// ErrUnknownMessageType means type is absent or outside the
	// closed set of ten kinds.
	ErrUnknownMessageType = errors.New("protocol: unknown message type")

	// ErrInvalidPayload means payload is absent, not a JSON object,
	// or missing a field its kind requires.
	ErrInvalidPayload = errors.New("protocol: invalid payload")
)

// envelope is the outer wire shape {type, payload}.
type envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode serializes a message to its JSON wire form. It is total
// over well-formed messages: any message built with the New*
// constructors encodes without error.
func Encode(m Message) ([]byte, error) {
	if !m.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, m.Type)
	}
	if m.Payload == nil {
		return nil, fmt.Errorf("%w: nil payload for %q", ErrInvalidPayload, m.Type)
	}
	if m.Payload.messageType() != m.Type {
		return nil, fmt.Errorf("%w: payload kind %q does not match message type %q",
			ErrInvalidPayload, m.Payload.messageType(), m.Type)
	}

	payload, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %q: %w", m.Type, err)
	}
	return json.Marshal(envelope{Type: m.Type, Payload: payload})
}

// Decode parses a message from its JSON wire form and validates the
// payload fields for its kind. Round-trip law: Decode(Encode(m)) == m
// for every well-formed m.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	if env.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrUnknownMessageType)
	}
	if !env.Type.Valid() {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}

	if !isJSONObject(env.Payload) {
		return Message{}, fmt.Errorf("%w: payload for %q is missing or not an object", ErrInvalidPayload, env.Type)
	}

	payload, err := decodePayload(env.Type, env.Payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: env.Type, Payload: payload}, nil
}

// isJSONObject reports whether raw is a JSON object literal.
// "null", arrays, strings, and numbers all fail.
func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// decodePayload unmarshals and validates the payload for one kind.
// Validation is presence-based: required fields must appear in the
// JSON, so a canonical-markdown without its markdown field is
// rejected rather than admitted as an empty string.
func decodePayload(mt MessageType, raw json.RawMessage) (Payload, error) {
	switch mt {
	case TypeRequestMarkdown:
		var p struct {
			RequestID *string `json:"requestId"`
		}
		if err := unmarshalStrict(mt, raw, &p); err != nil {
			return nil, err
		}
		if p.RequestID == nil || *p.RequestID == "" {
			return nil, missingField(mt, "requestId")
		}
		return RequestMarkdownPayload{RequestID: *p.RequestID}, nil

	case TypeCanonicalMarkdown:
		var p struct {
			RequestID *string `json:"requestId"`
			Markdown  *string `json:"markdown"`
		}
		if err := unmarshalStrict(mt, raw, &p); err != nil {
			return nil, err
		}
		if p.RequestID == nil || *p.RequestID == "" {
			return nil, missingField(mt, "requestId")
		}
		if p.Markdown == nil {
			return nil, missingField(mt, "markdown")
		}
		return CanonicalMarkdownPayload{RequestID: *p.RequestID, Markdown: *p.Markdown}, nil

	case TypeNeedsInit:
		var p struct {
			GistID   *string `json:"gistId"`
			Filename *string `json:"filename"`
		}
		if err := unmarshalStrict(mt, raw, &p); err != nil {
			return nil, err
		}
		if p.GistID == nil || *p.GistID == "" {
			return nil, missingField(mt, "gistId")
		}
		if p.Filename == nil {
			return nil, missingField(mt, "filename")
		}
		return NeedsInitPayload{GistID: *p.GistID, Filename: *p.Filename}, nil

	case TypeReloadRemote:
		var p struct {
			Markdown *string `json:"markdown"`
		}
		if err := unmarshalStrict(mt, raw, &p); err != nil {
			return nil, err
		}
		if p.Markdown == nil {
			return nil, missingField(mt, "markdown")
		}
		return ReloadRemotePayload{Markdown: *p.Markdown}, nil

	case TypeRemoteChanged:
		var p struct {
			RemoteMarkdown *string `json:"remoteMarkdown"`
		}
		if err := unmarshalStrict(mt, raw, &p); err != nil {
			return nil, err
		}
		if p.RemoteMarkdown == nil {
			return nil, missingField(mt, "remoteMarkdown")
		}
		return RemoteChangedPayload{RemoteMarkdown: *p.RemoteMarkdown}, nil

	case TypeSyncStatus:
		var p struct {
			State  *SyncState `json:"state"`
			Detail string     `json:"detail"`
		}
		if err := unmarshalStrict(mt, raw, &p); err != nil {
			return nil, err
		}
		if p.State == nil {
			return nil, missingField(mt, "state")
		}
		if !p.State.Valid() {
			return nil, fmt.Errorf("%w: %s: unknown sync state %q", ErrInvalidPayload, mt, *p.State)
		}
		return SyncStatusPayload{State: *p.State, Detail: p.Detail}, nil

	case TypeErrorRetrying:
		var p struct {
			Attempt     *int   `json:"attempt"`
			NextRetryAt *int64 `json:"nextRetryAt"`
		}
		if err := unmarshalStrict(mt, raw, &p); err != nil {
			return nil, err
		}
		if p.Attempt == nil {
			return nil, missingField(mt, "attempt")
		}
		if *p.Attempt < 0 {
			return nil, fmt.Errorf("%w: %s: negative attempt", ErrInvalidPayload, mt)
		}
		if p.NextRetryAt == nil {
			return nil, missingField(mt, "nextRetryAt")
		}
		return ErrorRetryingPayload{Attempt: *p.Attempt, NextRetryAt: *p.NextRetryAt}, nil

	case TypeConflict:
		var p struct {
			LocalMarkdown  *string `json:"localMarkdown"`
			RemoteMarkdown *string `json:"remoteMarkdown"`
		}
		if err := unmarshalStrict(mt, raw, &p); err != nil {
			return nil, err
		}
		if p.LocalMarkdown == nil {
			return nil, missingField(mt, "localMarkdown")
		}
		if p.RemoteMarkdown == nil {
			return nil, missingField(mt, "remoteMarkdown")
		}
		return ConflictPayload{LocalMarkdown: *p.LocalMarkdown, RemoteMarkdown: *p.RemoteMarkdown}, nil

	case TypePushLocal:
		return PushLocalPayload{}, nil

	case TypeDiscardLocal:
		return DiscardLocalPayload{}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, mt)
}

// unmarshalStrict unmarshals a payload object, mapping JSON type
// mismatches onto ErrInvalidPayload.
func unmarshalStrict(mt MessageType, raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, mt, err)
	}
	return nil
}

func missingField(mt MessageType, field string) error {
	return fmt.Errorf("%w: %s: missing %s", ErrInvalidPayload, mt, field)
}
