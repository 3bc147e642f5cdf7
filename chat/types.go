// Package chat defines the conversation data model and the state
// reducer that reconstructs ordered conversation state from inbound
// socket events.
package chat

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	// RoleUser marks a message written by the user.
	RoleUser Role = "user"
	// RoleAssistant marks a message produced by the assistant.
	RoleAssistant Role = "ai"
)

// TempSessionID tags optimistic local messages sent before the server
// has assigned a session. The reducer retargets them when the first
// final response establishes the real session id.
const TempSessionID = "temp"

// Session is a persisted conversation thread. The id is server-assigned
// and opaque; the title is absent until the server derives one from the
// first exchange.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Deleted   bool      `json:"is_deleted,omitempty"`
}

// Message is a single conversation message. Ids are client-generated
// for optimistic and streaming messages and replaced with a stable id
// at finalize time; persisted history carries server ids.
type Message struct {
	ID                string    `json:"id"`
	SessionID         string    `json:"session_id"`
	UserID            string    `json:"user_id"`
	Content           string    `json:"content"`
	Role              Role      `json:"role"`
	CreatedAt         time.Time `json:"created_at"`
	PreviousMessageID string    `json:"previous_message_id,omitempty"`

	// Streaming is true while the message is still receiving
	// incremental content. At most one streaming message exists per
	// session, always at the tail of the message list.
	Streaming bool `json:"-"`
}

// NewUserMessage builds an optimistic local user message with a
// provisional id. sessionID may be TempSessionID when no session is
// active yet.
func NewUserMessage(sessionID, userID, content string, now time.Time) Message {
	return Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		UserID:    userID,
		Content:   content,
		Role:      RoleUser,
		CreatedAt: now,
	}
}

// Provisional and final assistant message ids keep their origin visible
// in logs. The streaming id is regenerated at finalize time because the
// server never pre-allocates an id before the first chunk.
func newStreamingID() string { return "streaming_" + uuid.New().String() }
func newFinalID() string     { return "final_" + uuid.New().String() }
