package realtime_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendora/realtime-backend/client/realtime"
	"github.com/vendora/realtime-backend/contract"
)

// readResult is a single scripted outcome for fakeConn.ReadFrame.
type readResult struct {
	frame contract.Frame
	err   error
}

// fakeConn is a scriptable connection: tests push frames or errors and the
// read loop consumes them.
type fakeConn struct {
	reads chan readResult
	done  chan struct{}
	once  sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		reads: make(chan readResult, 16),
		done:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadFrame() (contract.Frame, error) {
	select {
	case r := <-c.reads:
		return r.frame, r.err
	case <-c.done:
		return contract.Frame{}, fmt.Errorf("read: %w", realtime.ErrTransport)
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *fakeConn) deliver(t *testing.T, event contract.EventName, payload any) {
	t.Helper()
	frame, err := contract.NewFrame(event, payload)
	require.NoError(t, err)
	c.reads <- readResult{frame: frame}
}

func (c *fakeConn) failRead(err error) {
	c.reads <- readResult{err: err}
}

// fakeTransport hands out fakeConns and can be scripted to fail dials.
type fakeTransport struct {
	mu        sync.Mutex
	conns     []*fakeConn
	dials     int
	failDials int
	dialErr   error
	dialed    chan *fakeConn
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		dialed:  make(chan *fakeConn, 16),
		dialErr: fmt.Errorf("dial: %w", realtime.ErrTransport),
	}
}

func (t *fakeTransport) Dial(_ context.Context, _ realtime.Credentials) (realtime.Conn, error) {
	t.mu.Lock()
	t.dials++
	if t.failDials != 0 {
		if t.failDials > 0 {
			t.failDials--
		}
		err := t.dialErr
		t.mu.Unlock()
		return nil, err
	}
	conn := newFakeConn()
	t.conns = append(t.conns, conn)
	t.mu.Unlock()

	t.dialed <- conn
	return conn, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) liveConns() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	live := 0
	for _, c := range t.conns {
		if !c.closed() {
			live++
		}
	}
	return live
}

func waitDialed(t *testing.T, transport *fakeTransport) *fakeConn {
	t.Helper()
	select {
	case conn := <-transport.dialed:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dial")
		return nil
	}
}

func waitStatus(t *testing.T, statuses <-chan realtime.ConnStatus, want realtime.ConnStatus) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-statuses:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %q", want)
		}
	}
}

func newTestManager(transport realtime.Transport, cfg realtime.ConnManagerConfig) (*realtime.ConnManager, chan realtime.ConnStatus) {
	m := realtime.NewConnManager(transport, cfg, testLogger())
	statuses := make(chan realtime.ConnStatus, 32)
	m.OnStatusChange(func(s realtime.ConnStatus) { statuses <- s })
	return m, statuses
}

var testCreds = realtime.Credentials{UserID: "U1", SessionToken: "token"}

func TestConnManager_ConnectIsIdempotent(t *testing.T) {
	transport := newFakeTransport()
	m, statuses := newTestManager(transport, realtime.ConnManagerConfig{})

	m.Connect(testCreds)
	m.Connect(testCreds)
	m.Connect(testCreds)

	waitStatus(t, statuses, realtime.StatusConnected)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, transport.dialCount())
	assert.Equal(t, 1, transport.liveConns())

	m.Disconnect()
}

func TestConnManager_NeverHoldsMoreThanOneLiveTransport(t *testing.T) {
	transport := newFakeTransport()
	m, statuses := newTestManager(transport, realtime.ConnManagerConfig{})

	for i := 0; i < 3; i++ {
		m.Connect(testCreds)
		waitStatus(t, statuses, realtime.StatusConnected)
		assert.Equal(t, 1, transport.liveConns())
		m.Disconnect()
		waitStatus(t, statuses, realtime.StatusClosed)
		assert.Equal(t, 0, transport.liveConns())
	}

	assert.Equal(t, 3, transport.dialCount())
}

func TestConnManager_DisconnectIsIdempotent(t *testing.T) {
	transport := newFakeTransport()
	m, statuses := newTestManager(transport, realtime.ConnManagerConfig{})

	m.Connect(testCreds)
	waitStatus(t, statuses, realtime.StatusConnected)

	m.Disconnect()
	require.NotPanics(t, func() { m.Disconnect() })
	assert.Equal(t, realtime.StatusClosed, m.Status())
}

func TestConnManager_DispatchesFramesInDeliveryOrder(t *testing.T) {
	transport := newFakeTransport()
	m, statuses := newTestManager(transport, realtime.ConnManagerConfig{})

	var mu sync.Mutex
	var seen []contract.EventName
	m.SetFrameHandler(func(frame contract.Frame) {
		mu.Lock()
		seen = append(seen, frame.Event)
		mu.Unlock()
	})

	m.Connect(testCreds)
	conn := waitDialed(t, transport)
	waitStatus(t, statuses, realtime.StatusConnected)

	conn.deliver(t, contract.EventMessageNew, nil)
	conn.deliver(t, contract.EventTypingStart, contract.TypingPayload{UserID: "U2", ConversationID: "C1"})
	conn.deliver(t, contract.EventMessageNew, nil)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []contract.EventName{
		contract.EventMessageNew,
		contract.EventTypingStart,
		contract.EventMessageNew,
	}, seen)
	mu.Unlock()

	m.Disconnect()
}

func TestConnManager_MalformedFrameDoesNotKillConnection(t *testing.T) {
	transport := newFakeTransport()
	m, statuses := newTestManager(transport, realtime.ConnManagerConfig{})

	var mu sync.Mutex
	var seen []contract.EventName
	m.SetFrameHandler(func(frame contract.Frame) {
		mu.Lock()
		seen = append(seen, frame.Event)
		mu.Unlock()
	})

	m.Connect(testCreds)
	conn := waitDialed(t, transport)
	waitStatus(t, statuses, realtime.StatusConnected)

	conn.failRead(fmt.Errorf("decode frame: %w", realtime.ErrProtocol))
	conn.deliver(t, contract.EventMessageNew, nil)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, realtime.StatusConnected, m.Status())
	m.Disconnect()
}

func TestConnManager_ReconnectsAfterUnexpectedDrop(t *testing.T) {
	transport := newFakeTransport()
	m, statuses := newTestManager(transport, realtime.ConnManagerConfig{
		ReconnectAttempts: 3,
		ReconnectDelay:    10 * time.Millisecond,
	})

	m.Connect(testCreds)
	first := waitDialed(t, transport)
	waitStatus(t, statuses, realtime.StatusConnected)

	first.failRead(fmt.Errorf("reset by peer: %w", realtime.ErrTransport))

	waitStatus(t, statuses, realtime.StatusReconnecting)
	waitDialed(t, transport)
	waitStatus(t, statuses, realtime.StatusConnected)

	assert.Equal(t, 2, transport.dialCount())
	assert.Equal(t, 1, transport.liveConns())

	m.Disconnect()
}

func TestConnManager_GivesUpAfterAttemptCap(t *testing.T) {
	transport := newFakeTransport()
	transport.failDials = -1 // every dial fails
	m, statuses := newTestManager(transport, realtime.ConnManagerConfig{
		ReconnectAttempts: 3,
		ReconnectDelay:    5 * time.Millisecond,
	})

	m.Connect(testCreds)
	waitStatus(t, statuses, realtime.StatusClosed)

	dials := transport.dialCount()
	assert.Equal(t, 3, dials)

	// Persistent-disconnected: no further automatic attempts.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, dials, transport.dialCount())
	assert.Equal(t, realtime.StatusClosed, m.Status())
}

func TestConnManager_AuthRejectionIsNotRetried(t *testing.T) {
	transport := newFakeTransport()
	transport.failDials = -1
	transport.dialErr = realtime.ErrAuth
	m, statuses := newTestManager(transport, realtime.ConnManagerConfig{
		ReconnectAttempts: 5,
		ReconnectDelay:    5 * time.Millisecond,
	})

	m.Connect(testCreds)
	waitStatus(t, statuses, realtime.StatusClosed)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, transport.dialCount())
}

func TestConnManager_PendingReconnectTimerIsCancelledOnDisconnect(t *testing.T) {
	transport := newFakeTransport()
	transport.failDials = -1
	m, statuses := newTestManager(transport, realtime.ConnManagerConfig{
		ReconnectAttempts: 100,
		ReconnectDelay:    30 * time.Millisecond,
	})

	m.Connect(testCreds)
	waitStatus(t, statuses, realtime.StatusReconnecting)

	m.Disconnect()
	dials := transport.dialCount()

	// The fired timer must notice the teardown and stay a no-op.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, dials, transport.dialCount())
	assert.Equal(t, realtime.StatusClosed, m.Status())
}

func TestConnManager_DisconnectWaitsForInFlightDispatch(t *testing.T) {
	transport := newFakeTransport()
	m, statuses := newTestManager(transport, realtime.ConnManagerConfig{})

	entered := make(chan struct{})
	release := make(chan struct{})
	m.SetFrameHandler(func(contract.Frame) {
		entered <- struct{}{}
		<-release
	})

	m.Connect(testCreds)
	conn := waitDialed(t, transport)
	waitStatus(t, statuses, realtime.StatusConnected)

	conn.deliver(t, contract.EventMessageNew, nil)
	<-entered

	done := make(chan struct{})
	go func() {
		m.Disconnect()
		close(done)
	}()

	// The handler is still running, so Disconnect must not have returned:
	// a caller tearing down handler targets relies on that.
	select {
	case <-done:
		t.Fatal("Disconnect returned while a frame handler was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect did not return after the handler finished")
	}

	assert.Equal(t, realtime.StatusClosed, m.Status())
}

func TestConnManager_NoDispatchAfterDisconnect(t *testing.T) {
	transport := newFakeTransport()
	m, statuses := newTestManager(transport, realtime.ConnManagerConfig{})

	var mu sync.Mutex
	dispatched := 0
	m.SetFrameHandler(func(contract.Frame) {
		mu.Lock()
		dispatched++
		mu.Unlock()
	})

	m.Connect(testCreds)
	conn := waitDialed(t, transport)
	waitStatus(t, statuses, realtime.StatusConnected)

	m.Disconnect()

	// Frames still in flight at teardown must not reach the handler.
	select {
	case conn.reads <- readResult{frame: contract.Frame{Event: contract.EventMessageNew}}:
	default:
	}
	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 0, dispatched)
	mu.Unlock()
}
