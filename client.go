// Package receiptly is a Go client for the Receiptly backend. It keeps
// a live chat socket with bounded reconnects, folds streamed assistant
// events into conversation state, and mirrors the backend's session and
// receipt REST surface.
package receiptly

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/receiptly/receiptly-go/chat"
	"github.com/receiptly/receiptly-go/internal/directory"
	"github.com/receiptly/receiptly-go/internal/protocol"
	"github.com/receiptly/receiptly-go/internal/transport"
	"github.com/receiptly/receiptly-go/pkg/api"
	"github.com/receiptly/receiptly-go/pkg/config"
	"github.com/receiptly/receiptly-go/pkg/observability"
)

// ConnectionState mirrors the transport's connection lifecycle.
type ConnectionState = transport.State

// Re-exported for callers that only import the root package.
const (
	Disconnected = transport.Disconnected
	Connecting   = transport.Connecting
	Connected    = transport.Connected
)

// Client is the chat facade for one identity. All methods are safe for
// concurrent use.
type Client struct {
	identity string
	cfg      *config.Config

	api *api.Client
	dir *directory.Directory
	tm  *transport.Manager

	limiter *rate.Limiter

	onChange func(chat.State)
	onError  func(*chat.Error)
	onEvent  func(chat.Event)

	dialer transport.Dialer

	mu        sync.Mutex
	state     chat.State
	connState ConnectionState
	epoch     uint64
	closed    bool
}

// Option configures a Client.
type Option func(*Client)

// WithOnChange registers a callback invoked with a snapshot after every
// state transition. The callback must not call back into the Client.
func WithOnChange(fn func(chat.State)) Option {
	return func(c *Client) { c.onChange = fn }
}

// WithOnError registers a callback for transport, decode and backend
// errors. The callback must not call back into the Client.
func WithOnError(fn func(*chat.Error)) Option {
	return func(c *Client) { c.onError = fn }
}

// WithOnEvent registers a callback invoked for every decoded socket
// event, after it has been applied to state. Useful for streaming
// display. The callback must not call back into the Client.
func WithOnEvent(fn func(chat.Event)) Option {
	return func(c *Client) { c.onEvent = fn }
}

// WithAPIClient overrides the REST client. Intended for tests.
func WithAPIClient(a *api.Client) Option {
	return func(c *Client) { c.api = a }
}

// WithDialer overrides the socket dialer. Intended for tests.
func WithDialer(d transport.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// New creates a client for the given identity. cache may be nil.
func New(cfg *config.Config, identity string, cache directory.Cache, opts ...Option) (*Client, error) {
	if identity == "" {
		return nil, errors.New("identity is required")
	}

	c := &Client{
		identity: identity,
		cfg:      cfg,
		state:    chat.NewState(identity),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.api == nil {
		c.api = api.NewClient(cfg.APIBaseURL)
	}
	c.dir = directory.New(c.api, cache, identity)

	if cfg.SendRatePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.SendRatePerSecond), cfg.SendBurst)
	}

	retryDelay, err := cfg.RetryDelay()
	if err != nil {
		return nil, err
	}
	dialer := c.dialer
	if dialer == nil {
		dialer = &transport.WebsocketDialer{}
	}
	c.tm = transport.NewManager(dialer, cfg.ChatSocketURL(identity), transport.Callbacks{
		OnMessage:     c.handleFrame,
		OnStateChange: c.handleConnState,
		OnError:       c.handleTransportError,
	},
		transport.WithMaxAttempts(cfg.Reconnect.MaxAttempts),
		transport.WithRetryDelay(retryDelay),
	)

	// Warm the sidebar from the last cached listing, if any.
	if cached := c.dir.WarmStart(context.Background()); len(cached) > 0 {
		c.mu.Lock()
		c.state.Sessions = cached
		c.mu.Unlock()
	}

	return c, nil
}

// Identity returns the identity this client was created for.
func (c *Client) Identity() string { return c.identity }

// Connect opens the chat socket. No-op when already connected or
// connecting.
func (c *Client) Connect() { c.tm.Connect() }

// Disconnect closes the socket and cancels any pending reconnect.
// Idempotent; never reports an error.
func (c *Client) Disconnect() { c.tm.Disconnect() }

// Close disconnects and releases the directory cache. The client must
// not be used afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.epoch++
	c.mu.Unlock()
	c.tm.Disconnect()
	return c.dir.Close()
}

// ConnectionState reports the current socket state.
func (c *Client) ConnectionState() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connState
}

// Snapshot returns a deep copy of the current conversation state.
func (c *Client) Snapshot() chat.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// SendMessage appends an optimistic user message and sends the prompt
// over the socket. An empty sessionID targets the active session; with
// no session open the placeholder session id is used until the backend
// names the session.
func (c *Client) SendMessage(ctx context.Context, content, sessionID string) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("send rate limit: %w", err)
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("client is closed")
	}
	target := sessionID
	if target == "" {
		if c.state.Current != nil {
			target = c.state.Current.ID
		} else {
			target = chat.TempSessionID
		}
	}
	msg := chat.NewUserMessage(target, c.identity, content, time.Now())
	if last := c.state.LastMessage(); last != nil {
		msg.PreviousMessageID = last.ID
	}
	c.state.Messages = append(c.state.Messages, msg)
	wireSession := target
	if wireSession == chat.TempSessionID {
		wireSession = ""
	}
	notify := c.changeNotificationLocked()
	c.mu.Unlock()
	notify()

	payload, err := protocol.EncodeIntent(protocol.Intent{Prompt: content, SessionID: wireSession})
	if err != nil {
		return fmt.Errorf("encode intent: %w", err)
	}
	// Send without holding the state mutex; the transport serializes
	// writes internally.
	if err := c.tm.Send(payload); err != nil {
		return err
	}
	return nil
}

// NewDraft clears the active conversation so the next SendMessage
// starts a fresh session.
func (c *Client) NewDraft() {
	c.mu.Lock()
	c.state.Current = nil
	c.state.Messages = nil
	notify := c.changeNotificationLocked()
	c.mu.Unlock()
	notify()
}

// RefreshSessions fetches the session listing and replaces the local
// directory. Concurrent calls are coalesced into one request.
func (c *Client) RefreshSessions(ctx context.Context) ([]chat.Session, error) {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	sessions, err := c.dir.Refresh(ctx)
	if err != nil {
		c.report(chat.NewError(chat.KindCollaborator, "session listing failed", err))
		return nil, err
	}

	c.mu.Lock()
	if c.epoch != epoch {
		// Identity rotated or client closed while in flight; the
		// result belongs to a previous lifetime.
		c.mu.Unlock()
		return sessions, nil
	}
	c.state.Sessions = sessions
	notify := c.changeNotificationLocked()
	c.mu.Unlock()
	notify()
	return sessions, nil
}

// LoadSession makes sessionID the active conversation and loads its
// message history, oldest first.
func (c *Client) LoadSession(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	session, err := c.api.GetSession(ctx, sessionID)
	if err != nil {
		c.report(chat.NewError(chat.KindCollaborator, "session load failed", err))
		return err
	}
	messages, err := c.api.SessionMessages(ctx, sessionID)
	if err != nil {
		c.report(chat.NewError(chat.KindCollaborator, "message history load failed", err))
		return err
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return nil
	}
	c.state.Current = session
	c.state.Messages = messages
	notify := c.changeNotificationLocked()
	c.mu.Unlock()
	notify()
	return nil
}

// DeleteSession removes a session server-side and prunes it from local
// state. Deleting the active session clears the conversation.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	if err := c.dir.Delete(ctx, sessionID); err != nil {
		c.report(chat.NewError(chat.KindCollaborator, "session delete failed", err))
		return err
	}

	c.mu.Lock()
	kept := c.state.Sessions[:0:0]
	for _, s := range c.state.Sessions {
		if s.ID != sessionID {
			kept = append(kept, s)
		}
	}
	c.state.Sessions = kept
	if c.state.Current != nil && c.state.Current.ID == sessionID {
		c.state.Current = nil
		c.state.Messages = nil
	}
	notify := c.changeNotificationLocked()
	c.mu.Unlock()
	notify()
	return nil
}

// API exposes the underlying REST client for non-chat surfaces such as
// receipts.
func (c *Client) API() *api.Client { return c.api }

func (c *Client) handleFrame(data []byte) {
	events, err := protocol.Decode(data)
	if err != nil {
		observability.RecordDecodeError()
		c.report(chat.NewError(chat.KindDecode, "malformed socket payload", err))
		return
	}

	c.mu.Lock()
	now := time.Now()
	for _, ev := range events {
		c.state = chat.Reduce(c.state, ev, now)
		observability.RecordEvent(ev.Kind.String())
	}
	notify := c.changeNotificationLocked()
	c.mu.Unlock()
	notify()

	if c.onEvent != nil {
		for _, ev := range events {
			c.onEvent(ev)
		}
	}
}

func (c *Client) handleConnState(s transport.State) {
	c.mu.Lock()
	c.connState = s
	notify := c.changeNotificationLocked()
	c.mu.Unlock()
	notify()
}

func (c *Client) handleTransportError(err error) {
	kind := chat.KindTransport
	msg := "socket error"
	if errors.Is(err, transport.ErrReconnectExhausted) {
		kind = chat.KindTerminal
		msg = "reconnect budget exhausted"
	}
	c.report(chat.NewError(kind, msg, err))
}

func (c *Client) report(err *chat.Error) {
	if c.onError != nil {
		c.onError(err)
		return
	}
	log.Printf("receiptly: %v", err)
}

// changeNotificationLocked captures a snapshot for the change callback.
// The returned closure must be invoked after the mutex is released.
func (c *Client) changeNotificationLocked() func() {
	if c.onChange == nil {
		return func() {}
	}
	snapshot := c.state.Clone()
	return func() { c.onChange(snapshot) }
}
