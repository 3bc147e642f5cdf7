package chat

// ErrorKind classifies a reported client error.
type ErrorKind string

const (
	// KindTransport covers connect failures, unexpected closes and
	// send-while-disconnected. Recovered automatically up to the
	// reconnect bound.
	KindTransport ErrorKind = "transport"
	// KindDecode covers malformed inbound payloads. The payload is
	// dropped and the receive loop continues.
	KindDecode ErrorKind = "decode"
	// KindCollaborator covers REST failures for session listing,
	// history and deletion. Local state is left unmodified.
	KindCollaborator ErrorKind = "collaborator"
	// KindTerminal means the reconnect budget is exhausted; no further
	// automatic retries happen until an explicit reconnect.
	KindTerminal ErrorKind = "terminal"
)

// Error is the single error shape surfaced through the client's error
// callback. Nothing crosses the module boundary as a panic.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified client error.
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}
