package ports

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/vendora/realtime-backend/contract"
	"github.com/vendora/realtime-backend/internal/core/domain"
)

// SessionStore validates the server-held session credentials presented
// during the realtime handshake.
type SessionStore interface {
	// Validate resolves the raw session token to a live session, or one
	// of the session errors (not found, expired, revoked).
	Validate(ctx context.Context, token string) (*domain.Session, error)

	// Revoke marks the session unusable. Called by the platform's logout
	// path; idempotent.
	Revoke(ctx context.Context, token string) error
}

// EventBroadcaster fans a frame out to connected realtime sessions.
type EventBroadcaster interface {
	Broadcast(frame contract.Frame) error
}

// PublishParams is the input for publishing a domain event toward
// connected clients.
type PublishParams struct {
	Event   contract.EventName
	Payload json.RawMessage
}

// EventPublisher is the core operation exposed to platform services: push
// one domain event to every connected session.
type EventPublisher interface {
	Publish(ctx context.Context, params PublishParams) error
}

// PresenceTracker reports which identities currently hold a live realtime
// session, for the hub's presence fan-out and for admin introspection.
type PresenceTracker interface {
	IsUserConnected(userID uuid.UUID) bool
	ConnectedUsers() []uuid.UUID
}
