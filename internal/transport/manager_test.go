package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeConn is a scriptable connection. ReadMessage blocks on the frames
// channel until a frame or an error is injected.
type fakeConn struct {
	frames chan []byte
	errs   chan error

	mu      sync.Mutex
	written [][]byte
	closed  bool

	writeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 16),
		errs:   make(chan error, 1),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.frames:
		return websocket.TextMessage, data, nil
	case err := <-c.errs:
		return 0, nil, err
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) writtenFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) SetReadLimit(int64) {}
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		// Unblock a pending ReadMessage.
		select {
		case c.errs <- errors.New("use of closed connection"):
		default:
		}
	}
	return nil
}

// fakeDialer returns scripted results in order, repeating the last one.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
	dials int32
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	atomic.AddInt32(&d.dials, 1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	conn := d.conns[0]
	if len(d.conns) > 1 {
		d.conns = d.conns[1:]
	}
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	return int(atomic.LoadInt32(&d.dials))
}

// recorder captures callback invocations.
type recorder struct {
	mu       sync.Mutex
	states   []State
	errors   []error
	messages [][]byte
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnMessage: func(data []byte) {
			r.mu.Lock()
			r.messages = append(r.messages, append([]byte(nil), data...))
			r.mu.Unlock()
		},
		OnStateChange: func(s State) {
			r.mu.Lock()
			r.states = append(r.states, s)
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errors = append(r.errors, err)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) errorCount(target error) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, err := range r.errors {
		if errors.Is(err, target) {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestConnectDeliversMessages(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	rec := &recorder{}
	m := NewManager(dialer, "ws://test/ws/u1/chat", rec.callbacks())

	m.Connect()
	waitFor(t, time.Second, func() bool { return m.State() == Connected })

	conn.frames <- []byte(`{"heartbeat":true}`)
	waitFor(t, time.Second, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.messages) == 1
	})

	m.Disconnect()
}

func TestConnectIsNoopWhileConnected(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	m := NewManager(dialer, "ws://test", Callbacks{})

	m.Connect()
	waitFor(t, time.Second, func() bool { return m.State() == Connected })

	m.Connect()
	m.Connect()
	if got := dialer.dialCount(); got != 1 {
		t.Errorf("dial count = %d, want 1", got)
	}

	m.Disconnect()
}

func TestSendWhileDisconnected(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("refused")}
	rec := &recorder{}
	m := NewManager(dialer, "ws://test", rec.callbacks(), WithMaxAttempts(0))

	err := m.Send([]byte("hello"))
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Send() error = %v, want ErrNotConnected", err)
	}
	if got := rec.errorCount(ErrNotConnected); got != 1 {
		t.Errorf("ErrNotConnected reported %d times, want 1", got)
	}
}

func TestSendWritesTextFrame(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	m := NewManager(dialer, "ws://test", Callbacks{})

	m.Connect()
	waitFor(t, time.Second, func() bool { return m.State() == Connected })

	if err := m.Send([]byte(`{"prompt":"hi"}`)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	frames := conn.writtenFrames()
	if len(frames) != 1 || string(frames[0]) != `{"prompt":"hi"}` {
		t.Errorf("written frames = %q", frames)
	}

	m.Disconnect()
}

func TestReconnectAfterUnexpectedClose(t *testing.T) {
	first := newFakeConn()
	second := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{first, second}}
	rec := &recorder{}
	m := NewManager(dialer, "ws://test", rec.callbacks(), WithRetryDelay(time.Millisecond))

	m.Connect()
	waitFor(t, time.Second, func() bool { return m.State() == Connected })

	first.errs <- &websocket.CloseError{Code: websocket.CloseAbnormalClosure, Text: "gone"}
	waitFor(t, time.Second, func() bool { return dialer.dialCount() == 2 })
	waitFor(t, time.Second, func() bool { return m.State() == Connected })

	// The replacement connection works.
	if err := m.Send([]byte("after")); err != nil {
		t.Fatalf("Send() after reconnect error = %v", err)
	}

	m.Disconnect()
}

func TestReconnectBudgetExhaustion(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("refused")}
	rec := &recorder{}
	m := NewManager(dialer, "ws://test", rec.callbacks(),
		WithMaxAttempts(5), WithRetryDelay(time.Millisecond))

	m.Connect()

	// 1 explicit dial + 5 scheduled retries, then terminal.
	waitFor(t, 2*time.Second, func() bool {
		return rec.errorCount(ErrReconnectExhausted) == 1
	})
	if got := dialer.dialCount(); got != 6 {
		t.Errorf("dial count = %d, want 6 (initial + 5 retries)", got)
	}

	// No further attempts are scheduled.
	time.Sleep(20 * time.Millisecond)
	if got := dialer.dialCount(); got != 6 {
		t.Errorf("dial count after settling = %d, want 6", got)
	}
	if got := rec.errorCount(ErrReconnectExhausted); got != 1 {
		t.Errorf("terminal error reported %d times, want exactly 1", got)
	}
	if m.State() != Disconnected {
		t.Errorf("state = %v, want Disconnected", m.State())
	}
}

func TestConnectResetsBudgetAfterExhaustion(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("refused")}
	rec := &recorder{}
	m := NewManager(dialer, "ws://test", rec.callbacks(),
		WithMaxAttempts(1), WithRetryDelay(time.Millisecond))

	m.Connect()
	waitFor(t, time.Second, func() bool {
		return rec.errorCount(ErrReconnectExhausted) == 1
	})

	conn := newFakeConn()
	dialer.mu.Lock()
	dialer.err = nil
	dialer.conns = []*fakeConn{conn}
	dialer.mu.Unlock()

	m.Connect()
	waitFor(t, time.Second, func() bool { return m.State() == Connected })

	m.Disconnect()
}

func TestDisconnectIsIdempotent(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	rec := &recorder{}
	m := NewManager(dialer, "ws://test", rec.callbacks())

	m.Connect()
	waitFor(t, time.Second, func() bool { return m.State() == Connected })

	m.Disconnect()
	m.Disconnect()

	if m.State() != Disconnected {
		t.Errorf("state = %v, want Disconnected", m.State())
	}
	// Voluntary disconnects never surface errors or reconnects.
	time.Sleep(10 * time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.errors) != 0 {
		t.Errorf("unexpected errors after Disconnect: %v", rec.errors)
	}
	if got := dialer.dialCount(); got != 1 {
		t.Errorf("dial count = %d, want 1 (no reconnect after voluntary close)", got)
	}
}

func TestDisconnectCancelsPendingRetry(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("refused")}
	m := NewManager(dialer, "ws://test", Callbacks{},
		WithRetryDelay(20*time.Millisecond))

	m.Connect()
	waitFor(t, time.Second, func() bool { return dialer.dialCount() == 1 })

	m.Disconnect()
	time.Sleep(50 * time.Millisecond)
	if got := dialer.dialCount(); got != 1 {
		t.Errorf("dial count = %d, want 1 (retry cancelled)", got)
	}
}

func TestDisconnectWhileRetryTimerFires(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("refused")}
	m := NewManager(dialer, "ws://test", Callbacks{},
		WithRetryDelay(time.Millisecond), WithMaxAttempts(1000))

	// Line Disconnect up with the timer firing repeatedly; no dial may
	// ever follow a voluntary disconnect, even when the timer callback
	// has already started.
	for i := 0; i < 50; i++ {
		m.Connect()
		waitFor(t, time.Second, func() bool { return dialer.dialCount() > 0 })
		time.Sleep(time.Millisecond)
		m.Disconnect()

		// A dial goroutine started before Disconnect may still land;
		// give it a moment, then require the count to stay put.
		time.Sleep(5 * time.Millisecond)
		settled := dialer.dialCount()
		time.Sleep(10 * time.Millisecond)
		if got := dialer.dialCount(); got != settled {
			t.Fatalf("iteration %d: dial count grew from %d to %d after Disconnect", i, settled, got)
		}
		if got := m.State(); got != Disconnected {
			t.Fatalf("iteration %d: state = %v after Disconnect, want Disconnected", i, got)
		}
		atomic.StoreInt32(&dialer.dials, 0)
	}
}

func TestStateTransitions(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	rec := &recorder{}
	m := NewManager(dialer, "ws://test", rec.callbacks())

	m.Connect()
	waitFor(t, time.Second, func() bool { return m.State() == Connected })
	m.Disconnect()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	want := []State{Connecting, Connected, Disconnected}
	if len(rec.states) != len(want) {
		t.Fatalf("states = %v, want %v", rec.states, want)
	}
	for i, s := range want {
		if rec.states[i] != s {
			t.Errorf("state[%d] = %v, want %v", i, rec.states[i], s)
		}
	}
}
