package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vendora/realtime-backend/contract"
	apperrors "github.com/vendora/realtime-backend/internal/core/errors"
	"github.com/vendora/realtime-backend/internal/core/ports"
)

// EventService validates domain events published by platform services and
// fans them out to connected realtime sessions via the broadcaster.
type EventService struct {
	broadcaster ports.EventBroadcaster
	logger      *slog.Logger
}

// Ensure EventService implements the EventPublisher port.
var _ ports.EventPublisher = (*EventService)(nil)

// NewEventService creates the publisher service.
func NewEventService(broadcaster ports.EventBroadcaster, logger *slog.Logger) *EventService {
	return &EventService{
		broadcaster: broadcaster,
		logger:      logger.With("component", "event_service"),
	}
}

// Publish checks the event against the wire contract and broadcasts it.
// Unknown event names are rejected: the publish endpoint is the one place
// where strictness is cheap, and it keeps typos out of the fan-out path.
func (s *EventService) Publish(ctx context.Context, params ports.PublishParams) error {
	if !contract.Known(params.Event) {
		return apperrors.NewValidationError(
			apperrors.ErrUnknownEvent,
			fmt.Sprintf("event %q is not part of the realtime contract", params.Event),
			map[string]interface{}{"event": string(params.Event)},
		)
	}

	if err := validatePayload(params.Event, params.Payload); err != nil {
		return err
	}

	frame := contract.Frame{Event: params.Event, Payload: params.Payload}
	if err := s.broadcaster.Broadcast(frame); err != nil {
		s.logger.Error("broadcast failed", "event", params.Event, "error", err)
		return apperrors.NewInternalError(err)
	}

	s.logger.Debug("event published", "event", params.Event)
	return nil
}

// validatePayload enforces the payload shapes the contract pins down.
// Opaque events (message:new, business:update) pass through untouched.
func validatePayload(event contract.EventName, payload json.RawMessage) error {
	switch event {
	case contract.EventPresenceUpdated, contract.EventTypingStart, contract.EventTypingStop,
		contract.EventNotification, contract.EventOrderUpdate:
		if len(payload) == 0 || string(payload) == "null" {
			return apperrors.NewValidationError(
				apperrors.ErrPayloadRequired,
				fmt.Sprintf("event %q requires a payload", event),
				map[string]interface{}{"event": string(event)},
			)
		}
	}

	switch event {
	case contract.EventPresenceUpdated:
		var p contract.PresencePayload
		if err := json.Unmarshal(payload, &p); err != nil || p.UserID == "" {
			return invalidPayload(event, "userId is required")
		}
		if !p.Status.Valid() {
			return invalidPayload(event, "status must be online, away or offline")
		}

	case contract.EventTypingStart, contract.EventTypingStop:
		var p contract.TypingPayload
		if err := json.Unmarshal(payload, &p); err != nil || p.UserID == "" || p.ConversationID == "" {
			return invalidPayload(event, "userId and conversationId are required")
		}

	case contract.EventNotification:
		var p contract.NotificationPayload
		if err := json.Unmarshal(payload, &p); err != nil || p.Title == "" {
			return invalidPayload(event, "title is required")
		}

	case contract.EventOrderUpdate:
		var p contract.OrderUpdatePayload
		if err := json.Unmarshal(payload, &p); err != nil || p.ID == "" {
			return invalidPayload(event, "id is required")
		}
	}
	return nil
}

func invalidPayload(event contract.EventName, message string) error {
	return apperrors.NewValidationError(
		apperrors.ErrInvalidPayload,
		message,
		map[string]interface{}{"event": string(event)},
	)
}
