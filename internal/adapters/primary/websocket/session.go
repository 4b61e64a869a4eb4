package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vendora/realtime-backend/contract"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer. Inbound traffic is typing
	// signals and pings only, so the cap can be tight.
	maxMessageSize = 4096
)

// Session is a middleman between one authenticated websocket connection
// and the hub.
type Session struct {
	Hub *Hub

	// The websocket connection.
	Conn *websocket.Conn

	// Buffered channel of outbound frames.
	Send chan contract.Frame

	// User this session belongs to.
	UserID uuid.UUID

	// Connection ID, unique per socket. A user reconnecting gets a new one.
	ID uuid.UUID

	// pongWait and pingPeriod come from config via the handler
	pongWait   time.Duration
	pingPeriod time.Duration

	// typingAllowed rate-limits inbound typing frames for this user
	typingAllowed func() bool

	// closeOnce ensures the Send channel is only closed once
	closeOnce sync.Once

	// logger for this session
	logger *slog.Logger
}

// SessionOptions carries the per-deployment knobs for a session.
type SessionOptions struct {
	PongWait       time.Duration
	PingInterval   time.Duration
	SendBufferSize int
	TypingAllowed  func() bool
}

// NewSession creates a session for an upgraded connection
func NewSession(hub *Hub, conn *websocket.Conn, userID uuid.UUID, opts SessionOptions, logger *slog.Logger) *Session {
	id := uuid.New()
	if opts.TypingAllowed == nil {
		opts.TypingAllowed = func() bool { return true }
	}
	return &Session{
		Hub:           hub,
		Conn:          conn,
		Send:          make(chan contract.Frame, opts.SendBufferSize),
		UserID:        userID,
		ID:            id,
		pongWait:      opts.PongWait,
		pingPeriod:    opts.PingInterval,
		typingAllowed: opts.TypingAllowed,
		logger: logger.With(
			"user_id", userID.String(),
			"connection_id", id.String(),
		),
	}
}

// CloseSend safely closes the Send channel exactly once
func (s *Session) CloseSend() {
	s.closeOnce.Do(func() {
		close(s.Send)
	})
}

// ReadPump pumps frames from the websocket connection to the hub.
// This method runs in its own goroutine.
func (s *Session) ReadPump() {
	defer func() {
		s.Hub.Unregister <- s
		_ = s.Conn.Close()
	}()

	s.Conn.SetReadLimit(maxMessageSize)
	if err := s.Conn.SetReadDeadline(time.Now().Add(s.pongWait)); err != nil {
		s.logger.Error("failed to set read deadline", "error", err)
		return
	}

	s.Conn.SetPongHandler(func(string) error {
		if err := s.Conn.SetReadDeadline(time.Now().Add(s.pongWait)); err != nil {
			s.logger.Error("failed to set read deadline in pong handler", "error", err)
		}
		return nil
	})

	for {
		_, message, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "error", err)
			}
			break
		}

		s.handleIncomingFrame(message)
	}
}

// WritePump pumps frames from the hub to the websocket connection.
// This method runs in its own goroutine.
func (s *Session) WritePump() {
	ticker := time.NewTicker(s.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.Send:
			if err := s.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.logger.Error("failed to set write deadline", "error", err)
				return
			}

			if !ok {
				// The hub closed the channel. Send close message.
				if err := s.Conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					s.logger.Debug("failed to send close message", "error", err)
				}
				return
			}

			if err := s.writeJSON(frame); err != nil {
				s.logger.Error("failed to write frame", "error", err)
				return
			}

		case <-ticker.C:
			if err := s.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.logger.Error("failed to set write deadline for ping", "error", err)
				return
			}

			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}

// writeJSON writes a frame to the websocket connection
func (s *Session) writeJSON(frame contract.Frame) error {
	w, err := s.Conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}

	if err := json.NewEncoder(w).Encode(frame); err != nil {
		_ = w.Close()
		return err
	}

	return w.Close()
}

// handleIncomingFrame processes frames received from the client. The only
// client-originated events are typing signals and keep-alive pings;
// anything else is dropped without killing the connection.
func (s *Session) handleIncomingFrame(message []byte) {
	var frame contract.Frame
	if err := json.Unmarshal(message, &frame); err != nil {
		s.logger.Warn("failed to unmarshal client frame", "error", err)
		return
	}

	switch frame.Event {
	case contract.EventTypingStart, contract.EventTypingStop:
		s.handleTyping(frame)

	case contract.EventPing:
		// Client-side keep-alive, respond with pong
		s.sendPong()

	default:
		s.logger.Debug("received unexpected client event", "event", frame.Event)
	}
}

func (s *Session) handleTyping(frame contract.Frame) {
	var p contract.TypingPayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil {
		s.logger.Warn("failed to unmarshal typing payload", "error", err)
		return
	}

	if p.ConversationID == "" {
		s.logger.Warn("typing frame missing conversation id")
		return
	}

	// Clients don't get to type as somebody else.
	if p.UserID != s.UserID.String() {
		s.logger.Warn("typing frame user mismatch", "claimed_user_id", p.UserID)
		return
	}

	if !s.typingAllowed() {
		s.logger.Debug("typing frame rate limited")
		return
	}

	s.Hub.relayTyping(s, frame)
}

func (s *Session) sendPong() {
	select {
	case s.Send <- contract.Frame{Event: contract.EventPong}:
	default:
		// Channel full, skip pong response
	}
}
