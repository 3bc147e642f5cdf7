package protocol

import (
	"errors"
	"testing"
)

func TestEncodeIntent(t *testing.T) {
	tests := []struct {
		name   string
		intent Intent
		want   string
	}{
		{
			name:   "new session omits session_id",
			intent: Intent{Prompt: "hello"},
			want:   `{"prompt":"hello"}`,
		},
		{
			name:   "existing session",
			intent: Intent{Prompt: "hello", SessionID: "s1"},
			want:   `{"prompt":"hello","session_id":"s1"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeIntent(tt.intent)
			if err != nil {
				t.Fatalf("EncodeIntent() error = %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("EncodeIntent() = %s, want %s", data, tt.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    []Event
		wantErr bool
	}{
		{
			name: "heartbeat",
			data: `{"heartbeat":true}`,
			want: []Event{{Kind: KindHeartbeat}},
		},
		{
			name: "session title",
			data: `{"session_title":"Groceries","session_id":"s1"}`,
			want: []Event{{Kind: KindSessionTitle, SessionID: "s1", Title: "Groceries"}},
		},
		{
			name: "response chunk",
			data: `{"response":"Hel","is_final":false,"session_id":"s1"}`,
			want: []Event{{Kind: KindResponseChunk, SessionID: "s1", Text: "Hel"}},
		},
		{
			name: "response final",
			data: `{"response":"Hello there","is_final":true,"session_id":"s1"}`,
			want: []Event{{Kind: KindResponseFinal, SessionID: "s1", Text: "Hello there"}},
		},
		{
			name: "title piggybacked on first final",
			data: `{"session_title":"Groceries","response":"Hello","is_final":true,"session_id":"s1"}`,
			want: []Event{
				{Kind: KindSessionTitle, SessionID: "s1", Title: "Groceries"},
				{Kind: KindResponseFinal, SessionID: "s1", Text: "Hello"},
			},
		},
		{
			name:    "empty object",
			data:    `{}`,
			wantErr: true,
		},
		{
			name:    "response without session id",
			data:    `{"response":"Hello","is_final":true}`,
			wantErr: true,
		},
		{
			name:    "empty response",
			data:    `{"response":"","session_id":"s1"}`,
			wantErr: true,
		},
		{
			name:    "unknown fields only",
			data:    `{"typ":"ping"}`,
			wantErr: true,
		},
		{
			name:    "invalid json",
			data:    `{not json`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := Decode([]byte(tt.data))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Decode() expected error, got %v", events)
				}
				if !errors.Is(err, ErrMalformedPayload) {
					t.Errorf("Decode() error = %v, want ErrMalformedPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if len(events) != len(tt.want) {
				t.Fatalf("Decode() returned %d events, want %d", len(events), len(tt.want))
			}
			for i, ev := range events {
				if ev != tt.want[i] {
					t.Errorf("event[%d] = %+v, want %+v", i, ev, tt.want[i])
				}
			}
		})
	}
}

func TestDecodeHeartbeatAlongsideResponse(t *testing.T) {
	events, err := Decode([]byte(`{"heartbeat":true,"response":"hi","is_final":true,"session_id":"s1"}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Kind != KindHeartbeat {
		t.Errorf("first event = %v, want heartbeat", events[0].Kind)
	}
	if events[1].Kind != KindResponseFinal {
		t.Errorf("second event = %v, want response_final", events[1].Kind)
	}
}
