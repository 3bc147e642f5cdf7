package chat

import "github.com/receiptly/receiptly-go/internal/protocol"

// Event aliases the decoded socket event so consumers can observe the
// stream without reaching into internal packages.
type Event = protocol.Event

// EventKind aliases the event discriminator.
type EventKind = protocol.EventKind

const (
	EventHeartbeat     = protocol.KindHeartbeat
	EventSessionTitle  = protocol.KindSessionTitle
	EventResponseChunk = protocol.KindResponseChunk
	EventResponseFinal = protocol.KindResponseFinal
)
