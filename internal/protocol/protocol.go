// Package protocol implements the wire format of the chat socket.
// Outgoing client intents and inbound server events are JSON objects;
// inbound payloads are discriminated by which fields are present rather
// than by an explicit type tag.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedPayload is returned when an inbound payload cannot be
// classified as any known event. Decode errors never terminate the
// receive loop; callers report them and keep reading.
var ErrMalformedPayload = errors.New("malformed payload")

// Intent is an outgoing prompt submission. SessionID is empty when the
// prompt should open a new session on the server.
type Intent struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id,omitempty"`
}

// EncodeIntent serializes an intent for transmission.
func EncodeIntent(in Intent) ([]byte, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode intent: %w", err)
	}
	return data, nil
}

// EventKind identifies an inbound event type.
type EventKind int

const (
	// KindHeartbeat is a keep-alive with no conversational payload.
	KindHeartbeat EventKind = iota + 1
	// KindSessionTitle creates a session or updates its title.
	KindSessionTitle
	// KindResponseChunk carries an incremental piece of an assistant response.
	KindResponseChunk
	// KindResponseFinal carries the complete assistant response.
	KindResponseFinal
)

// String returns the event kind name for logging and metrics labels.
func (k EventKind) String() string {
	switch k {
	case KindHeartbeat:
		return "heartbeat"
	case KindSessionTitle:
		return "session_title"
	case KindResponseChunk:
		return "response_chunk"
	case KindResponseFinal:
		return "response_final"
	default:
		return "unknown"
	}
}

// Event is a decoded inbound server event.
type Event struct {
	Kind      EventKind
	SessionID string
	// Title is set for KindSessionTitle events.
	Title string
	// Text is set for response events: a fragment for chunks, the full
	// content for finals.
	Text string
}

// wirePayload mirrors the server's inbound frame. A single frame may
// carry several logical events at once (the server piggybacks a
// session_title on the first response frame of a new session).
type wirePayload struct {
	Heartbeat    bool    `json:"heartbeat,omitempty"`
	SessionTitle string  `json:"session_title,omitempty"`
	Response     *string `json:"response,omitempty"`
	IsFinal      bool    `json:"is_final,omitempty"`
	SessionID    string  `json:"session_id,omitempty"`
}

// Decode parses an inbound frame into its logical events, in apply
// order: heartbeat, then session title, then response. A frame carrying
// none of the known fields is rejected with ErrMalformedPayload.
func Decode(data []byte) ([]Event, error) {
	var p wirePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var events []Event
	if p.Heartbeat {
		events = append(events, Event{Kind: KindHeartbeat})
	}
	if p.SessionTitle != "" && p.SessionID != "" {
		events = append(events, Event{
			Kind:      KindSessionTitle,
			SessionID: p.SessionID,
			Title:     p.SessionTitle,
		})
	}
	if p.Response != nil && *p.Response != "" && p.SessionID != "" {
		kind := KindResponseChunk
		if p.IsFinal {
			kind = KindResponseFinal
		}
		events = append(events, Event{
			Kind:      kind,
			SessionID: p.SessionID,
			Text:      *p.Response,
		})
	}

	if len(events) == 0 {
		return nil, ErrMalformedPayload
	}
	return events, nil
}
