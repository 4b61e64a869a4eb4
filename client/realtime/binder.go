package realtime

import (
	"log/slog"
	"sync"
)

// SessionBinder observes the application's authentication state and drives
// the connection manager, enforcing the single-connection and
// state-clearing invariants.
//
// SetAuth is guarded against duplicate invocation for the same identity:
// concurrent observers of the same auth transition produce exactly one
// transport connection. ClearAuth and Close clear both registries
// synchronously before returning, so no stale-session data is ever visible
// to whatever renders against the new state.
type SessionBinder struct {
	manager  *ConnManager
	presence *PresenceRegistry
	typing   *TypingRegistry
	logger   *slog.Logger

	mu       sync.Mutex
	authed   bool
	identity string
	closed   bool
}

// NewSessionBinder wires the binder to the manager and registries it drives.
func NewSessionBinder(
	manager *ConnManager,
	presence *PresenceRegistry,
	typing *TypingRegistry,
	logger *slog.Logger,
) *SessionBinder {
	return &SessionBinder{
		manager:  manager,
		presence: presence,
		typing:   typing,
		logger:   logger.With("component", "session_binder"),
	}
}

// SetAuth reacts to a transition into the authenticated state. Repeated
// calls with the same identity are no-ops. A call with a different identity
// tears the previous session down, clears registries, and connects fresh.
func (b *SessionBinder) SetAuth(identity, sessionToken string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	if b.authed && b.identity == identity {
		return
	}
	if b.authed {
		b.logger.Info("identity changed, replacing session",
			"previous", b.identity,
			"next", identity,
		)
		b.teardownLocked()
	}

	b.authed = true
	b.identity = identity
	b.manager.Connect(Credentials{UserID: identity, SessionToken: sessionToken})
}

// ClearAuth reacts to a transition into the unauthenticated state. The
// registries are empty by the time it returns.
func (b *SessionBinder) ClearAuth() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.authed = false
	b.identity = ""
	b.teardownLocked()
}

// Close tears the session down unconditionally, even if an auth-driven
// disconnect already happened. Double disconnect is a safe no-op. The
// binder accepts no further auth transitions afterwards.
func (b *SessionBinder) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.authed = false
	b.identity = ""
	b.teardownLocked()
}

// teardownLocked disconnects and clears registries, in that order:
// Disconnect invalidates the session generation and waits for any
// frame already past the generation check to finish dispatching, so
// nothing can repopulate the registries after they are cleared.
func (b *SessionBinder) teardownLocked() {
	b.manager.Disconnect()
	b.presence.Clear()
	b.typing.Clear()
}
