package chat

import (
	"time"

	"github.com/receiptly/receiptly-go/internal/protocol"
)

// Reduce applies one inbound event to the state and returns the next
// state. It is a total, pure function: unknown or inapplicable events
// are no-ops, never errors. Events are assumed delivered in send order
// per session; no reordering happens here.
func Reduce(s State, ev protocol.Event, now time.Time) State {
	switch ev.Kind {
	case protocol.KindHeartbeat:
		return s
	case protocol.KindSessionTitle:
		return reduceTitle(s, ev, now)
	case protocol.KindResponseChunk:
		return reduceChunk(s, ev, now)
	case protocol.KindResponseFinal:
		return reduceFinal(s, ev, now)
	default:
		return s
	}
}

// reduceTitle creates the session when it is unknown, prepending it to
// the directory; otherwise it patches the title in place. A title-only
// patch leaves updated_at alone.
func reduceTitle(s State, ev protocol.Event, now time.Time) State {
	if !s.knowsSession(ev.SessionID) {
		sess := Session{
			ID:        ev.SessionID,
			Title:     ev.Title,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.Sessions = append([]Session{sess}, s.Sessions...)
		// A title for an unknown session while composing a draft means
		// the server just materialized the draft: adopt it as current
		// and claim the pending placeholder messages.
		if s.Current == nil {
			cur := sess
			s.Current = &cur
			msgs := append([]Message(nil), s.Messages...)
			for i := range msgs {
				if msgs[i].Role == RoleUser && msgs[i].SessionID == TempSessionID {
					msgs[i].SessionID = ev.SessionID
				}
			}
			s.Messages = msgs
		}
		return s
	}

	if s.Current != nil && s.Current.ID == ev.SessionID {
		cur := *s.Current
		cur.Title = ev.Title
		s.Current = &cur
	}
	sessions := append([]Session(nil), s.Sessions...)
	for i := range sessions {
		if sessions[i].ID == ev.SessionID {
			sessions[i].Title = ev.Title
		}
	}
	s.Sessions = sessions
	return s
}

// targetMatches applies the single-active-session rule: response events
// are only processed when they belong to the tracked session, or when
// no session is tracked yet (a brand-new session streaming its first
// answer). Events for background sessions are dropped.
func targetMatches(s State, sid string) bool {
	return s.Current == nil || s.Current.ID == sid
}

// reduceChunk appends text to the trailing streaming assistant message,
// or opens a new one. The match is keyed off "is the tail a live
// streaming assistant message for this session", not off message ids:
// streaming ids are provisional and regenerated at finalize time.
func reduceChunk(s State, ev protocol.Event, now time.Time) State {
	if !targetMatches(s, ev.SessionID) {
		return s
	}

	msgs := append([]Message(nil), s.Messages...)
	s.Messages = msgs
	if last := s.LastMessage(); last != nil &&
		last.Role == RoleAssistant && last.Streaming && last.SessionID == ev.SessionID {
		last.Content += ev.Text
		return s
	}

	s.Messages = append(msgs, Message{
		ID:        newStreamingID(),
		SessionID: ev.SessionID,
		UserID:    s.UserID,
		Content:   ev.Text,
		Role:      RoleAssistant,
		CreatedAt: now,
		Streaming: true,
	})
	return s
}

// reduceFinal replaces the trailing streaming message with the final
// content under a fresh stable id, or appends a finalized message when
// the final arrived with no preceding chunk. When this final is the
// first event of a brand-new session, optimistic user messages still
// tagged with the temp placeholder are retargeted to the real id.
func reduceFinal(s State, ev protocol.Event, now time.Time) State {
	if !targetMatches(s, ev.SessionID) {
		return s
	}
	hadCurrent := s.Current != nil

	msgs := append([]Message(nil), s.Messages...)
	s.Messages = msgs
	if last := s.LastMessage(); last != nil &&
		last.Role == RoleAssistant && last.Streaming && last.SessionID == ev.SessionID {
		last.ID = newFinalID()
		last.Content = ev.Text
		last.Streaming = false
	} else {
		s.Messages = append(msgs, Message{
			ID:        newFinalID(),
			SessionID: ev.SessionID,
			UserID:    s.UserID,
			Content:   ev.Text,
			Role:      RoleAssistant,
			CreatedAt: now,
		})
	}

	if !hadCurrent {
		for i := range s.Messages {
			if s.Messages[i].Role == RoleUser && s.Messages[i].SessionID == TempSessionID {
				s.Messages[i].SessionID = ev.SessionID
			}
		}
	}
	return s
}
