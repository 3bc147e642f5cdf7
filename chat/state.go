package chat

// State is the in-memory conversation state owned by a single identity:
// the session directory (most-recent-first), the active session and its
// message list. The reducer treats State as immutable and returns a new
// value; slices are copied before modification so snapshots handed to a
// consumer stay stable.
type State struct {
	// UserID is the identity this state belongs to. It is stamped onto
	// messages the reducer constructs.
	UserID string

	// Sessions is the cached session directory, most recent first.
	Sessions []Session

	// Current is the active session, nil when composing a new draft.
	Current *Session

	// Messages is the ordered message list of the active session.
	Messages []Message
}

// NewState returns an empty state for the given identity.
func NewState(userID string) State {
	return State{UserID: userID}
}

// Clone returns a deep copy safe to hand to a consumer.
func (s State) Clone() State {
	out := State{UserID: s.UserID}
	if s.Sessions != nil {
		out.Sessions = append([]Session(nil), s.Sessions...)
	}
	if s.Messages != nil {
		out.Messages = append([]Message(nil), s.Messages...)
	}
	if s.Current != nil {
		cur := *s.Current
		out.Current = &cur
	}
	return out
}

// knowsSession reports whether sid is the current session or appears in
// the directory.
func (s State) knowsSession(sid string) bool {
	if s.Current != nil && s.Current.ID == sid {
		return true
	}
	for _, sess := range s.Sessions {
		if sess.ID == sid {
			return true
		}
	}
	return false
}

// LastMessage returns a pointer into s.Messages, or nil when empty.
// Callers must have copied the slice before mutating through it.
func (s *State) LastMessage() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return &s.Messages[len(s.Messages)-1]
}
