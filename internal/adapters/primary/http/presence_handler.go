package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/vendora/realtime-backend/internal/core/ports"
)

// PresenceHandler exposes connected-user introspection to platform
// services (support tooling, the admin dashboard).
type PresenceHandler struct {
	tracker ports.PresenceTracker
	logger  *slog.Logger
}

// NewPresenceHandler creates a new presence handler
func NewPresenceHandler(tracker ports.PresenceTracker, logger *slog.Logger) *PresenceHandler {
	return &PresenceHandler{tracker: tracker, logger: logger}
}

// PresenceResponse lists the users currently holding a realtime session
type PresenceResponse struct {
	Users []string `json:"users"`
	Count int      `json:"count"`
}

// HandleList returns every connected user
func (h *PresenceHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users := lo.Map(h.tracker.ConnectedUsers(), func(id uuid.UUID, _ int) string {
		return id.String()
	})

	WriteJSON(w, http.StatusOK, PresenceResponse{
		Users: users,
		Count: len(users),
	})
}

// HandleCheck reports whether one user is connected
func (h *PresenceHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "Invalid user ID",
			Code:  "BAD_REQUEST",
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"userId":    userID.String(),
		"connected": h.tracker.IsUserConnected(userID),
	})
}
