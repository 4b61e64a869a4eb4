package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vendora/realtime-backend/contract"
)

// ConnStatus is the observable state of the managed connection.
type ConnStatus string

const (
	StatusIdle         ConnStatus = "idle"
	StatusConnecting   ConnStatus = "connecting"
	StatusConnected    ConnStatus = "connected"
	StatusReconnecting ConnStatus = "reconnecting"

	// StatusClosed is reached on explicit disconnect, on a rejected
	// handshake, or when reconnection attempts are exhausted. No further
	// automatic attempts happen until the next Connect.
	StatusClosed ConnStatus = "closed"
)

// ConnManagerConfig holds the reconnection policy.
type ConnManagerConfig struct {
	// ReconnectAttempts caps consecutive failed dials before giving up.
	ReconnectAttempts int
	// ReconnectDelay is the fixed wait between attempts.
	ReconnectDelay time.Duration
}

// ConnManager owns the one transport connection per session and drives the
// Idle -> Connecting -> Connected <-> Reconnecting -> Closed state machine.
// It is the sole holder of the transport handle; frames are handed off to
// the registered frame handler in delivery order.
//
// Transport errors never escape this type: they are logged, retried per the
// reconnection policy, and ultimately reflected in the status.
type ConnManager struct {
	transport Transport
	cfg       ConnManagerConfig
	logger    *slog.Logger

	mu      sync.Mutex
	status  ConnStatus
	conn    Conn
	cancel  context.CancelFunc
	handler func(contract.Frame)

	// dispatchMu is held around every [generation check, handler call]
	// pair in the read loop. Disconnect takes it once after bumping the
	// generation, so a frame that passed the check before the bump has
	// finished dispatching by the time Disconnect returns.
	dispatchMu sync.Mutex

	// generation increments on every Connect and Disconnect. Goroutines
	// and timers belonging to an earlier generation find themselves stale
	// and become no-ops instead of mutating replacement-session state.
	generation int

	observers []func(ConnStatus)
}

// NewConnManager creates a manager in the Idle state.
func NewConnManager(transport Transport, cfg ConnManagerConfig, logger *slog.Logger) *ConnManager {
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = 5
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	return &ConnManager{
		transport: transport,
		cfg:       cfg,
		status:    StatusIdle,
		logger:    logger.With("component", "conn_manager"),
	}
}

// SetFrameHandler registers the function that receives every inbound frame.
// The dispatcher registers itself here during client wiring.
func (m *ConnManager) SetFrameHandler(fn func(contract.Frame)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = fn
}

// OnStatusChange registers an observer called synchronously after every
// status transition.
func (m *ConnManager) OnStatusChange(fn func(ConnStatus)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Status returns the current connection status.
func (m *ConnManager) Status() ConnStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Connect opens the transport unless a connection already exists or is in
// progress; a second call while connected or connecting is a no-op. The
// dial happens asynchronously and never blocks the caller. Failures are
// retried per the reconnection policy and surface only through the status.
func (m *ConnManager) Connect(creds Credentials) {
	m.mu.Lock()
	switch m.status {
	case StatusConnecting, StatusConnected, StatusReconnecting:
		m.mu.Unlock()
		return
	}
	m.generation++
	gen := m.generation
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.status = StatusConnecting
	observers := m.cloneObserversLocked()
	m.mu.Unlock()

	for _, fn := range observers {
		fn(StatusConnecting)
	}
	go m.run(ctx, gen, creds)
}

// Disconnect tears down the transport and invalidates any pending
// reconnection timer. Safe to call when already disconnected.
func (m *ConnManager) Disconnect() {
	m.mu.Lock()
	m.generation++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	conn := m.conn
	m.conn = nil
	changed := m.status != StatusClosed
	m.status = StatusClosed
	observers := m.cloneObserversLocked()
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	// Wait out any dispatch that passed the generation check before the
	// bump above. After this, no frame handler from the old session is
	// running or will run. Calling Disconnect from inside a frame
	// handler would deadlock here.
	m.dispatchMu.Lock()
	m.dispatchMu.Unlock()

	if changed {
		for _, fn := range observers {
			fn(StatusClosed)
		}
	}
}

// run is the per-generation connection loop: dial, pump frames, and on
// unexpected drops retry with a fixed delay up to the attempt cap.
func (m *ConnManager) run(ctx context.Context, gen int, creds Credentials) {
	attempt := 0
	for {
		conn, err := m.transport.Dial(ctx, creds)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrAuth) {
				m.logger.Warn("handshake rejected, not retrying", "error", err)
				m.transition(gen, StatusClosed)
				return
			}

			attempt++
			m.logger.Warn("connection attempt failed",
				"attempt", attempt,
				"max_attempts", m.cfg.ReconnectAttempts,
				"error", err,
			)
			if attempt >= m.cfg.ReconnectAttempts {
				m.logger.Error("reconnection attempts exhausted, giving up")
				m.transition(gen, StatusClosed)
				return
			}
			if !m.transition(gen, StatusReconnecting) {
				return
			}
			if !m.sleep(ctx, gen) {
				return
			}
			continue
		}

		if !m.adopt(gen, conn) {
			// A disconnect raced the dial; this connection must not live.
			_ = conn.Close()
			return
		}
		attempt = 0

		err = m.readLoop(gen, conn)
		m.releaseConn(gen)

		if ctx.Err() != nil || !m.isCurrent(gen) {
			return
		}

		m.logger.Warn("connection dropped unexpectedly", "error", err)
		if !m.transition(gen, StatusReconnecting) {
			return
		}
		if !m.sleep(ctx, gen) {
			return
		}
	}
}

// readLoop pumps frames in delivery order into the frame handler. Protocol
// violations are dropped and logged; any other read error ends the loop.
func (m *ConnManager) readLoop(gen int, conn Conn) error {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			if errors.Is(err, ErrProtocol) {
				m.logger.Warn("dropping malformed frame", "error", err)
				continue
			}
			_ = conn.Close()
			return err
		}

		m.dispatchMu.Lock()
		m.mu.Lock()
		current := gen == m.generation
		handler := m.handler
		m.mu.Unlock()

		if !current {
			// Torn down mid-read: this frame belongs to a dead session
			// and must not reach the registries.
			m.dispatchMu.Unlock()
			_ = conn.Close()
			return nil
		}
		if handler != nil {
			handler(frame)
		}
		m.dispatchMu.Unlock()
	}
}

// adopt installs the connection and moves to Connected, unless the
// generation went stale while dialing.
func (m *ConnManager) adopt(gen int, conn Conn) bool {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return false
	}
	m.conn = conn
	m.status = StatusConnected
	observers := m.cloneObserversLocked()
	m.mu.Unlock()

	for _, fn := range observers {
		fn(StatusConnected)
	}
	return true
}

// releaseConn drops the connection reference if this generation still owns it.
func (m *ConnManager) releaseConn(gen int) {
	m.mu.Lock()
	if gen == m.generation {
		m.conn = nil
	}
	m.mu.Unlock()
}

// transition moves to the given status if the generation is still current.
func (m *ConnManager) transition(gen int, status ConnStatus) bool {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return false
	}
	if m.status == status {
		m.mu.Unlock()
		return true
	}
	m.status = status
	observers := m.cloneObserversLocked()
	m.mu.Unlock()

	for _, fn := range observers {
		fn(status)
	}
	return true
}

// sleep waits out the reconnect delay. Returns false if the manager was
// torn down while waiting, in which case the caller must stop.
func (m *ConnManager) sleep(ctx context.Context, gen int) bool {
	timer := time.NewTimer(m.cfg.ReconnectDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}
	return m.isCurrent(gen)
}

func (m *ConnManager) isCurrent(gen int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.generation
}

func (m *ConnManager) cloneObserversLocked() []func(ConnStatus) {
	observers := make([]func(ConnStatus), len(m.observers))
	copy(observers, m.observers)
	return observers
}
