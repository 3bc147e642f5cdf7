package transport

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/receiptly/receiptly-go/pkg/observability"
)

// Manager maintains at most one live connection and at most one pending
// reconnect timer for its identity. All transitions happen under a
// single mutex; callbacks fire after the lock is released so they may
// take their own locks freely.
type Manager struct {
	dialer Dialer
	url    string
	cb     Callbacks

	maxAttempts int
	retryDelay  time.Duration

	mu sync.Mutex
	// wmu serializes frame writes; gorilla connections allow only one
	// concurrent writer.
	wmu        sync.Mutex
	state      State
	conn       Conn
	attempts   int
	retryTimer *time.Timer
	exhausted  bool
	// gen guards against stale dial results and read-loop exits after a
	// voluntary Disconnect or a newer connection.
	gen int
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxAttempts overrides the reconnect budget.
func WithMaxAttempts(n int) Option {
	return func(m *Manager) { m.maxAttempts = n }
}

// WithRetryDelay overrides the fixed reconnect delay.
func WithRetryDelay(d time.Duration) Option {
	return func(m *Manager) { m.retryDelay = d }
}

// NewManager creates a manager for the socket at url. Nothing connects
// until Connect is called.
func NewManager(dialer Dialer, url string, cb Callbacks, opts ...Option) *Manager {
	m := &Manager{
		dialer:      dialer,
		url:         url,
		cb:          cb,
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect opens the connection. It is a no-op while Connected or
// Connecting. An explicit Connect resets the reconnect budget,
// distinguishing it from the automatic retry path.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.state != Disconnected {
		m.mu.Unlock()
		return
	}
	m.attempts = 0
	m.exhausted = false
	notify := m.beginConnectLocked()
	m.mu.Unlock()
	notify()
}

// beginConnectLocked transitions to Connecting and starts the dial
// goroutine. It returns the deferred state-change notification.
func (m *Manager) beginConnectLocked() func() {
	notify := m.setStateLocked(Connecting)
	gen := m.gen
	go m.dial(gen)
	return notify
}

func (m *Manager) dial(gen int) {
	conn, err := m.dialer.Dial(context.Background(), m.url)

	m.mu.Lock()
	if gen != m.gen {
		// Disconnected while dialing; abandon the result.
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}

	if err != nil {
		observability.RecordConnect("error")
		notify := m.setStateLocked(Disconnected)
		report := m.scheduleRetryLocked(err)
		m.mu.Unlock()
		notify()
		report()
		return
	}

	m.conn = conn
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})
	observability.RecordConnect("ok")
	notify := m.setStateLocked(Connected)
	m.mu.Unlock()
	notify()

	go m.readLoop(conn, gen)
}

func (m *Manager) readLoop(conn Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(gen, err)
			return
		}
		// Any inbound traffic, heartbeats included, counts as liveness.
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		if m.cb.OnMessage != nil {
			m.cb.OnMessage(data)
		}
	}
}

// handleClose processes an unexpected close of the given connection
// generation. Voluntary disconnects bump the generation first, so they
// never reach the retry path.
func (m *Manager) handleClose(gen int, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.gen++
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	notify := m.setStateLocked(Disconnected)

	var reportClose func()
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		e := err
		cb := m.cb.OnError
		reportClose = func() {
			log.Printf("websocket closed unexpectedly: %v", e)
			if cb != nil {
				cb(e)
			}
		}
	}
	reportRetry := m.scheduleRetryLocked(err)
	m.mu.Unlock()

	notify()
	if reportClose != nil {
		reportClose()
	}
	reportRetry()
}

// scheduleRetryLocked arms the reconnect timer while the budget lasts,
// and reports terminal exhaustion exactly once when it is spent. It
// returns the deferred error report.
func (m *Manager) scheduleRetryLocked(cause error) func() {
	if m.attempts < m.maxAttempts {
		m.attempts++
		attempt := m.attempts
		observability.RecordReconnectScheduled()
		gen := m.gen
		m.retryTimer = time.AfterFunc(m.retryDelay, func() {
			m.mu.Lock()
			// Disconnect bumps the generation while the timer may
			// already be firing; a stale closure must not redial.
			if gen != m.gen || m.state != Disconnected {
				m.mu.Unlock()
				return
			}
			m.retryTimer = nil
			log.Printf("websocket reconnect attempt %d/%d", attempt, m.maxAttempts)
			notify := m.beginConnectLocked()
			m.mu.Unlock()
			notify()
		})
		return func() {}
	}

	if m.exhausted {
		return func() {}
	}
	m.exhausted = true
	cb := m.cb.OnError
	return func() {
		log.Printf("websocket reconnect budget exhausted: %v", cause)
		if cb != nil {
			cb(ErrReconnectExhausted)
		}
	}
}

// Disconnect cancels any pending reconnect, closes the connection and
// resets the reconnect budget. It is idempotent and never reports an
// error.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.attempts = 0
	m.exhausted = false
	m.gen++
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	notify := m.setStateLocked(Disconnected)
	m.mu.Unlock()
	notify()
}

// Send writes one text frame. While not Connected the frame is dropped
// and the condition reported through the error callback as well as the
// return value.
func (m *Manager) Send(data []byte) error {
	m.mu.Lock()
	if m.state != Connected || m.conn == nil {
		cb := m.cb.OnError
		m.mu.Unlock()
		observability.RecordSend("dropped")
		if cb != nil {
			cb(ErrNotConnected)
		}
		return ErrNotConnected
	}
	conn := m.conn
	m.mu.Unlock()

	m.wmu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := conn.WriteMessage(websocket.TextMessage, data)
	m.wmu.Unlock()
	if err != nil {
		observability.RecordSend("error")
		if m.cb.OnError != nil {
			m.cb.OnError(err)
		}
		return err
	}
	observability.RecordSend("ok")
	return nil
}

// setStateLocked records a transition and returns the deferred
// state-change notification (a no-op when the state did not change).
func (m *Manager) setStateLocked(s State) func() {
	if m.state == s {
		return func() {}
	}
	m.state = s
	observability.SetConnectionState(s.String())
	cb := m.cb.OnStateChange
	if cb == nil {
		return func() {}
	}
	return func() { cb(s) }
}
