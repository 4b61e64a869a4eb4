package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	mw "github.com/vendora/realtime-backend/internal/adapters/primary/http/middleware"
	wsAdapter "github.com/vendora/realtime-backend/internal/adapters/primary/websocket"
	"github.com/vendora/realtime-backend/internal/auth"
	"github.com/vendora/realtime-backend/internal/config"
	"github.com/vendora/realtime-backend/internal/core/ports"
)

// Inbound typing frames per user. Enough for a fast typist, not enough
// to let one session spam every other.
const (
	typingFramesPerSecond = 5
	typingBurst           = 10
)

// WebSocketHandler authenticates and upgrades realtime connections
type WebSocketHandler struct {
	hub           *wsAdapter.Hub
	tm            *auth.TokenManager
	sessions      ports.SessionStore
	cookieName    string
	sessionOpts   wsAdapter.SessionOptions
	typingLimiter *mw.RateLimitByKey
	upgrader      websocket.Upgrader
	logger        *slog.Logger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	hub *wsAdapter.Hub,
	tm *auth.TokenManager,
	sessions ports.SessionStore,
	cfg *config.Config,
	logger *slog.Logger,
) *WebSocketHandler {
	handler := &WebSocketHandler{
		hub:        hub,
		tm:         tm,
		sessions:   sessions,
		cookieName: cfg.Session.CookieName,
		sessionOpts: wsAdapter.SessionOptions{
			PongWait:       cfg.WebSocket.PongWait,
			PingInterval:   cfg.WebSocket.PingInterval,
			SendBufferSize: cfg.WebSocket.SendBufferSize,
		},
		typingLimiter: mw.NewRateLimitByKey(typingFramesPerSecond, typingBurst),
		logger:        logger,
	}

	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		CheckOrigin:     handler.makeOriginChecker(cfg),
	}

	return handler
}

// makeOriginChecker creates an origin checking function based on configuration
func (h *WebSocketHandler) makeOriginChecker(cfg *config.Config) func(r *http.Request) bool {
	allowedOrigins := cfg.WebSocket.AllowedOrigins

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		// In development mode, allow all origins (but log a warning)
		if cfg.IsDevelopment() {
			if origin != "" {
				h.logger.Warn("allowing websocket connection in development mode",
					"origin", origin,
					"remote_addr", r.RemoteAddr,
				)
			}
			return true
		}

		// No origin header (same-origin request or non-browser client)
		if origin == "" {
			return true
		}

		// Check against allowed origins
		parsedOrigin, err := url.Parse(origin)
		if err != nil {
			h.logger.Warn("failed to parse websocket origin",
				"origin", origin,
				"error", err,
			)
			return false
		}

		originHost := parsedOrigin.Host

		for _, allowed := range allowedOrigins {
			// Support wildcard subdomains like "*.vendora.io"
			if strings.HasPrefix(allowed, "*.") {
				suffix := allowed[1:] // Remove the "*", keep ".vendora.io"
				if strings.HasSuffix(originHost, suffix) || originHost == allowed[2:] {
					return true
				}
			} else if originHost == allowed {
				return true
			}
		}

		h.logger.Warn("websocket connection rejected due to origin",
			"origin", origin,
			"remote_addr", r.RemoteAddr,
			"allowed_origins", allowedOrigins,
		)
		return false
	}
}

// ServeHTTP handles WebSocket connection requests
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	// 1. Authenticate the connection via the session cookie
	cookie, err := r.Cookie(h.cookieName)
	if err != nil || cookie.Value == "" {
		h.logger.Warn("websocket connection rejected: missing session cookie",
			"request_id", requestID,
			"remote_addr", r.RemoteAddr,
		)
		http.Error(w, "Missing session", http.StatusUnauthorized)
		return
	}

	claims, err := h.tm.ValidateSessionToken(cookie.Value)
	if err != nil {
		h.logger.Warn("websocket connection rejected: invalid session token",
			"request_id", requestID,
			"remote_addr", r.RemoteAddr,
			"error", err,
		)
		http.Error(w, "Invalid or expired session", http.StatusUnauthorized)
		return
	}

	// 2. A signed token is not enough: the session must still be live in
	// the store (not revoked by a sign-out elsewhere, not expired).
	session, err := h.sessions.Validate(r.Context(), cookie.Value)
	if err != nil {
		h.logger.Warn("websocket connection rejected: session not live",
			"request_id", requestID,
			"user_id", claims.UserID,
			"error", err,
		)
		http.Error(w, "Invalid or expired session", http.StatusUnauthorized)
		return
	}

	// 3. Upgrade the connection
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket connection",
			"request_id", requestID,
			"user_id", session.UserID,
			"error", err,
		)
		return
	}

	h.logger.Info("websocket connection established",
		"request_id", requestID,
		"user_id", session.UserID,
		"remote_addr", r.RemoteAddr,
	)

	// 4. Create and register the new session
	opts := h.sessionOpts
	userID := session.UserID
	opts.TypingAllowed = func() bool {
		return h.typingLimiter.Allow(userID.String())
	}
	wsSession := wsAdapter.NewSession(h.hub, conn, userID, opts, h.logger)
	h.hub.Register <- wsSession

	// 5. Start the I/O pumps in new goroutines
	go wsSession.WritePump()
	go wsSession.ReadPump()
}
