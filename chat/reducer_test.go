package chat

import (
	"strings"
	"testing"
	"time"

	"github.com/receiptly/receiptly-go/internal/protocol"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func chunk(sid, text string) protocol.Event {
	return protocol.Event{Kind: protocol.KindResponseChunk, SessionID: sid, Text: text}
}

func final(sid, text string) protocol.Event {
	return protocol.Event{Kind: protocol.KindResponseFinal, SessionID: sid, Text: text}
}

func title(sid, text string) protocol.Event {
	return protocol.Event{Kind: protocol.KindSessionTitle, SessionID: sid, Title: text}
}

func TestReduceHeartbeatIsNoop(t *testing.T) {
	s := NewState("u1")
	next := Reduce(s, protocol.Event{Kind: protocol.KindHeartbeat}, t0)
	if len(next.Messages) != 0 || len(next.Sessions) != 0 || next.Current != nil {
		t.Errorf("heartbeat mutated state: %+v", next)
	}
}

func TestReduceChunkAccumulation(t *testing.T) {
	s := NewState("u1")
	for _, text := range []string{"A", "B", "C"} {
		s = Reduce(s, chunk("s1", text), t0)
	}

	if len(s.Messages) != 1 {
		t.Fatalf("got %d messages, want 1 streaming message", len(s.Messages))
	}
	m := s.Messages[0]
	if m.Content != "ABC" {
		t.Errorf("content = %q, want %q", m.Content, "ABC")
	}
	if !m.Streaming {
		t.Error("message should still be streaming")
	}
	if m.Role != RoleAssistant {
		t.Errorf("role = %q, want %q", m.Role, RoleAssistant)
	}
	if !strings.HasPrefix(m.ID, "streaming_") {
		t.Errorf("id = %q, want streaming_ prefix", m.ID)
	}
}

func TestReduceFinalReplacesStreaming(t *testing.T) {
	s := NewState("u1")
	s = Reduce(s, chunk("s1", "partial resp"), t0)
	streamingID := s.Messages[0].ID

	s = Reduce(s, final("s1", "the full response"), t0)

	if len(s.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(s.Messages))
	}
	m := s.Messages[0]
	if m.Content != "the full response" {
		t.Errorf("content = %q, final must override accumulated chunks", m.Content)
	}
	if m.Streaming {
		t.Error("finalized message still flagged streaming")
	}
	if m.ID == streamingID {
		t.Error("final must replace the provisional streaming id")
	}
	if !strings.HasPrefix(m.ID, "final_") {
		t.Errorf("id = %q, want final_ prefix", m.ID)
	}
}

func TestReduceFinalWithoutChunks(t *testing.T) {
	s := NewState("u1")
	s.Current = &Session{ID: "s1", Title: "T"}
	s = Reduce(s, final("s1", "whole answer"), t0)

	if len(s.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(s.Messages))
	}
	if s.Messages[0].Content != "whole answer" || s.Messages[0].Streaming {
		t.Errorf("unexpected message %+v", s.Messages[0])
	}
}

func TestReduceTitleCreatesSessionAtFront(t *testing.T) {
	s := NewState("u1")
	s.Sessions = []Session{{ID: "old", Title: "Old"}}
	s.Current = &Session{ID: "old", Title: "Old"}

	s = Reduce(s, title("s2", "Fresh"), t0)

	if len(s.Sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(s.Sessions))
	}
	if s.Sessions[0].ID != "s2" {
		t.Errorf("new session must be prepended, front is %q", s.Sessions[0].ID)
	}
	if s.Sessions[0].Title != "Fresh" {
		t.Errorf("title = %q", s.Sessions[0].Title)
	}
	// An existing conversation stays active.
	if s.Current.ID != "old" {
		t.Errorf("current switched to %q, want old", s.Current.ID)
	}
}

func TestReduceTitleAdoptsSessionWhenDrafting(t *testing.T) {
	s := NewState("u1")
	s = Reduce(s, title("s1", "Groceries"), t0)

	if s.Current == nil || s.Current.ID != "s1" {
		t.Fatalf("draft must adopt the new session, current = %+v", s.Current)
	}
	if s.Current.Title != "Groceries" {
		t.Errorf("current title = %q", s.Current.Title)
	}
}

func TestReduceTitleRetargetsTempUserMessages(t *testing.T) {
	s := NewState("u1")
	s.Messages = append(s.Messages, NewUserMessage(TempSessionID, "u1", "hi", t0))

	s = Reduce(s, title("s1", "Greetings"), t0)

	if s.Messages[0].SessionID != "s1" {
		t.Errorf("user message session = %q, want s1", s.Messages[0].SessionID)
	}
}

func TestReduceTitlePatchesKnownSession(t *testing.T) {
	s := NewState("u1")
	created := t0.Add(-time.Hour)
	s.Sessions = []Session{{ID: "s1", Title: "Old", CreatedAt: created, UpdatedAt: created}}
	s.Current = &Session{ID: "s1", Title: "Old", CreatedAt: created, UpdatedAt: created}

	s = Reduce(s, title("s1", "New"), t0)

	if len(s.Sessions) != 1 {
		t.Fatalf("patch must not add a session, got %d", len(s.Sessions))
	}
	if s.Sessions[0].Title != "New" || s.Current.Title != "New" {
		t.Errorf("title not patched: list=%q current=%q", s.Sessions[0].Title, s.Current.Title)
	}
	if !s.Sessions[0].UpdatedAt.Equal(created) {
		t.Error("title patch must leave UpdatedAt alone")
	}
}

func TestReduceDropsBackgroundSessionEvents(t *testing.T) {
	s := NewState("u1")
	s.Current = &Session{ID: "active"}
	s = Reduce(s, chunk("other", "stray"), t0)
	s = Reduce(s, final("other", "stray"), t0)

	if len(s.Messages) != 0 {
		t.Errorf("events for background sessions must be dropped, got %+v", s.Messages)
	}
}

func TestReduceNewSessionScenario(t *testing.T) {
	// First exchange of a fresh draft: optimistic user message with the
	// placeholder id, then title + chunks + final from the server.
	s := NewState("u1")
	s.Messages = append(s.Messages, NewUserMessage(TempSessionID, "u1", "what did I spend?", t0))

	s = Reduce(s, title("s9", "Spending"), t0)
	s = Reduce(s, chunk("s9", "You "), t0)
	s = Reduce(s, chunk("s9", "spent"), t0)
	s = Reduce(s, final("s9", "You spent 40 EUR."), t0)

	if s.Current == nil || s.Current.ID != "s9" {
		t.Fatalf("current = %+v, want s9", s.Current)
	}
	if len(s.Messages) != 2 {
		t.Fatalf("got %d messages, want user + assistant", len(s.Messages))
	}
	if got := s.Messages[1].Content; got != "You spent 40 EUR." {
		t.Errorf("assistant content = %q", got)
	}
}

func TestReduceFinalRetargetsTempUserMessages(t *testing.T) {
	// The title frame can lose the race: a final for an unknown session
	// still claims the pending draft messages.
	s := NewState("u1")
	s.Messages = append(s.Messages, NewUserMessage(TempSessionID, "u1", "hi", t0))

	s = Reduce(s, final("s3", "hello"), t0)

	if s.Messages[0].SessionID != "s3" {
		t.Errorf("user message session = %q, want s3", s.Messages[0].SessionID)
	}
}

func TestReduceAtMostOneStreamingMessage(t *testing.T) {
	// However chunks and finals interleave, the message list never
	// holds more than one streaming entry.
	s := NewState("u1")
	s.Messages = append(s.Messages, NewUserMessage(TempSessionID, "u1", "hi", t0))

	events := []protocol.Event{
		chunk("s1", "A"),
		chunk("s1", "B"),
		final("s1", "AB"),
		chunk("s1", "C"),
		chunk("s1", "D"),
		final("s1", "CD"),
		chunk("s1", "E"),
	}
	for i, ev := range events {
		s = Reduce(s, ev, t0)
		streaming := 0
		for _, m := range s.Messages {
			if m.Streaming {
				streaming++
			}
		}
		if streaming > 1 {
			t.Fatalf("after event %d (%v): %d streaming messages, want at most 1", i, ev.Kind, streaming)
		}
	}

	// The trailing chunk after a final opens a new streaming message
	// rather than reviving the finalized one.
	last := s.Messages[len(s.Messages)-1]
	if !last.Streaming || last.Content != "E" {
		t.Errorf("last message = %+v, want fresh streaming message with %q", last, "E")
	}
	if prev := s.Messages[len(s.Messages)-2]; prev.Streaming {
		t.Errorf("finalized message revived: %+v", prev)
	}
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	s := NewState("u1")
	s = Reduce(s, chunk("s1", "A"), t0)
	before := s.Messages[0].Content

	_ = Reduce(s, chunk("s1", "B"), t0)

	if s.Messages[0].Content != before {
		t.Errorf("input state mutated: %q", s.Messages[0].Content)
	}
}
