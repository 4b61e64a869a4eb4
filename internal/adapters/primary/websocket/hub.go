package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/vendora/realtime-backend/contract"
	"github.com/vendora/realtime-backend/internal/core/ports"
)

// Hub maintains the set of active sessions and fans events out to them.
type Hub struct {
	// sessions maps user IDs to their single active session.
	// A user opening a second connection replaces the first: the platform
	// multiplexes everything over one socket per signed-in identity.
	sessions map[uuid.UUID]*Session

	// Broadcast channel for frames published by platform services
	broadcast chan contract.Frame

	// Register requests from sessions
	Register chan *Session

	// Unregister requests from sessions
	Unregister chan *Session

	// mu protects the sessions map
	mu sync.RWMutex

	// logger for the hub
	logger *slog.Logger
}

// Ensure Hub implements the broadcaster and presence ports.
var (
	_ ports.EventBroadcaster = (*Hub)(nil)
	_ ports.PresenceTracker  = (*Hub)(nil)
)

// NewHub creates a new WebSocket hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		sessions:   make(map[uuid.UUID]*Session),
		broadcast:  make(chan contract.Frame, 256),
		Register:   make(chan *Session),
		Unregister: make(chan *Session),
		logger:     logger.With("component", "websocket_hub"),
	}
}

// Broadcast sends a frame to the hub's internal broadcast channel.
// This method implements the ports.EventBroadcaster interface.
func (h *Hub) Broadcast(frame contract.Frame) error {
	select {
	case h.broadcast <- frame:
		return nil
	default:
		h.logger.Warn("broadcast channel full, dropping frame",
			"event", frame.Event,
		)
		return nil
	}
}

// Run starts the hub's event loop. This MUST be run as a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case session := <-h.Register:
			h.registerSession(session)

		case session := <-h.Unregister:
			h.unregisterSession(session)

		case frame := <-h.broadcast:
			h.broadcastFrame(frame)
		}
	}
}

// registerSession adds a session to the hub, displacing any previous
// session held by the same user.
func (h *Hub) registerSession(session *Session) {
	h.mu.Lock()
	previous := h.sessions[session.UserID]
	h.sessions[session.UserID] = session
	h.mu.Unlock()

	if previous != nil {
		// The old connection is dead to us; closing its send channel makes
		// the write pump send a close frame and tear the socket down. Its
		// unregister will be a no-op because the map now points at the
		// replacement.
		previous.CloseSend()
		h.logger.Info("session replaced",
			"user_id", session.UserID,
			"old_connection_id", previous.ID,
			"new_connection_id", session.ID,
		)
	}

	h.logger.Info("session registered",
		"user_id", session.UserID,
		"connection_id", session.ID,
	)

	// Catch the newcomer up on who is already online, then announce them
	// to everyone else. A replacement connection is not a presence change.
	h.sendPresenceSnapshot(session)
	if previous == nil {
		h.fanOut(h.presenceFrame(session.UserID, contract.StatusOnline), session)
	}
}

// unregisterSession removes a session from the hub. A session that was
// displaced by a newer connection for the same user is skipped.
func (h *Hub) unregisterSession(session *Session) {
	h.mu.Lock()
	current, ok := h.sessions[session.UserID]
	if !ok || current != session {
		h.mu.Unlock()
		session.CloseSend()
		return
	}
	delete(h.sessions, session.UserID)
	h.mu.Unlock()

	session.CloseSend()

	h.logger.Info("session unregistered",
		"user_id", session.UserID,
		"connection_id", session.ID,
	)

	h.fanOut(h.presenceFrame(session.UserID, contract.StatusOffline), nil)
}

// broadcastFrame sends a frame to every connected session
func (h *Hub) broadcastFrame(frame contract.Frame) {
	h.fanOut(frame, nil)
}

// relayTyping forwards a typing frame to every session except the sender
func (h *Hub) relayTyping(sender *Session, frame contract.Frame) {
	h.fanOut(frame, sender)
}

// fanOut queues a frame on every session's send buffer, skipping exclude.
// Sessions with a full buffer are unregistered; a peer that cannot drain
// its socket is indistinguishable from a dead one.
func (h *Hub) fanOut(frame contract.Frame, exclude *Session) {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, session := range h.sessions {
		if session != exclude {
			sessions = append(sessions, session)
		}
	}
	h.mu.RUnlock()

	var stalled []*Session
	for _, session := range sessions {
		select {
		case session.Send <- frame:
			// Successfully queued
		default:
			h.logger.Warn("session send buffer full, unregistering",
				"user_id", session.UserID,
				"connection_id", session.ID,
			)
			stalled = append(stalled, session)
		}
	}

	// Unregister inline rather than via the channel: fanOut runs on the
	// hub goroutine, and sending to Unregister from here would deadlock.
	for _, session := range stalled {
		h.unregisterSession(session)
	}
}

// sendPresenceSnapshot queues one presence frame per connected user so a
// fresh session can build its presence view without a dedicated sync call.
func (h *Hub) sendPresenceSnapshot(session *Session) {
	h.mu.RLock()
	online := lo.Keys(h.sessions)
	h.mu.RUnlock()

	for _, userID := range online {
		if userID == session.UserID {
			continue
		}
		select {
		case session.Send <- h.presenceFrame(userID, contract.StatusOnline):
		default:
			return
		}
	}
}

func (h *Hub) presenceFrame(userID uuid.UUID, status contract.PresenceStatus) contract.Frame {
	payload, _ := json.Marshal(contract.PresencePayload{
		UserID: userID.String(),
		Status: status,
	})
	return contract.Frame{Event: contract.EventPresenceUpdated, Payload: payload}
}

// SessionCount returns the number of connected sessions
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// IsUserConnected checks if a user has an active session
func (h *Hub) IsUserConnected(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.sessions[userID]
	return ok
}

// ConnectedUsers returns the IDs of all users with an active session
func (h *Hub) ConnectedUsers() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return lo.Keys(h.sessions)
}

// SendToUser queues a frame for a specific user's session, if connected
func (h *Hub) SendToUser(userID uuid.UUID, frame contract.Frame) {
	h.mu.RLock()
	session, ok := h.sessions[userID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case session.Send <- frame:
	default:
		// Buffer full, skip this session
	}
}
