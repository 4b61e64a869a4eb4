package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/vendora/realtime-backend/contract"
	apperrors "github.com/vendora/realtime-backend/internal/core/errors"
	"github.com/vendora/realtime-backend/internal/core/ports"
)

// EventHandler exposes the internal publish endpoint used by platform
// services (order pipeline, notification workers) to push events to
// connected clients.
type EventHandler struct {
	publisher    ports.EventPublisher
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler(publisher ports.EventPublisher, errorHandler *ErrorHandler, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		publisher:    publisher,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// PublishRequest is the body of POST /api/v1/events
type PublishRequest struct {
	Event   contract.EventName `json:"event"`
	Payload json.RawMessage    `json:"payload"`
}

// HandlePublish validates and broadcasts an event to connected clients
func (h *EventHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(err, "Invalid request body"))
		return
	}

	if req.Event == "" {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(apperrors.ErrBadRequest, "Event name is required"))
		return
	}

	err := h.publisher.Publish(r.Context(), ports.PublishParams{
		Event:   req.Event,
		Payload: req.Payload,
	})
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteAccepted(w, "event queued for broadcast")
}
