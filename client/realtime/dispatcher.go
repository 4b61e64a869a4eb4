package realtime

import (
	"log/slog"
	"sync"

	"github.com/vendora/realtime-backend/contract"
)

// Dispatcher classifies inbound frames by event name and routes them to the
// registered handlers. Dispatch is synchronous and runs handlers in
// registration order, so registry updates always complete before any
// consumer notification that follows them.
//
// Unrecognized event names are ignored with a debug log: future server
// event types must not require a client upgrade just to avoid crashing.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[contract.EventName][]Handler
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher with no routes.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[contract.EventName][]Handler),
		logger:   logger.With("component", "realtime_dispatcher"),
	}
}

// RegisterHandler associates an event name with a handler. Multiple
// handlers for the same name run in registration order.
func (d *Dispatcher) RegisterHandler(event contract.EventName, fn Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[event] = append(d.handlers[event], fn)
}

// Dispatch delivers the frame exactly once to every handler registered for
// its event name.
func (d *Dispatcher) Dispatch(frame contract.Frame) {
	d.mu.RLock()
	handlers := make([]Handler, len(d.handlers[frame.Event]))
	copy(handlers, d.handlers[frame.Event])
	d.mu.RUnlock()

	if len(handlers) == 0 {
		d.logger.Debug("ignoring unrecognized event", "event", frame.Event)
		return
	}

	for _, fn := range handlers {
		fn(frame)
	}
}
