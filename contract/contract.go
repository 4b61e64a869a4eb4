// Package contract defines the wire contract shared by the realtime server
// and the Go client core: event names, the frame envelope, and the payload
// shapes carried over the per-session websocket connection.
package contract

import (
	"encoding/json"
	"fmt"
)

// EventName tags every frame exchanged over the realtime connection.
type EventName string

const (
	// Server -> client events.
	EventNotification    EventName = "notification"
	EventPresenceUpdated EventName = "presence:updated"
	EventTypingStart     EventName = "typing:start"
	EventTypingStop      EventName = "typing:stop"
	EventMessageNew      EventName = "message:new"
	EventBusinessUpdate  EventName = "business:update"
	EventOrderUpdate     EventName = "order:update"

	// Client -> server keep-alive and its reply.
	EventPing EventName = "ping"
	EventPong EventName = "pong"
)

// knownEvents lists every event name the server will accept on the publish
// endpoint. Inbound dispatch is deliberately NOT restricted to this list:
// unrecognized names are ignored so older clients survive newer servers.
var knownEvents = map[EventName]bool{
	EventNotification:    true,
	EventPresenceUpdated: true,
	EventTypingStart:     true,
	EventTypingStop:      true,
	EventMessageNew:      true,
	EventBusinessUpdate:  true,
	EventOrderUpdate:     true,
}

// Known reports whether the event name is part of the published contract.
func Known(name EventName) bool {
	return knownEvents[name]
}

// Frame is the envelope for every message on the wire.
type Frame struct {
	Event   EventName       `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewFrame marshals the payload into a frame envelope.
func NewFrame(event EventName, payload any) (Frame, error) {
	if payload == nil {
		return Frame{Event: event}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return Frame{Event: event, Payload: raw}, nil
}

// PresenceStatus is the coarse three-state liveness indicator.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusAway    PresenceStatus = "away"
	StatusOffline PresenceStatus = "offline"
)

// Valid reports whether the status is one of the three recognized states.
func (s PresenceStatus) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusOffline:
		return true
	}
	return false
}

// PresencePayload is the body of a presence:updated frame.
type PresencePayload struct {
	UserID string         `json:"userId"`
	Status PresenceStatus `json:"status"`
}

// TypingPayload is the body of typing:start and typing:stop frames.
type TypingPayload struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

// NotificationPayload is the body of a notification frame, rendered by the
// application as an ephemeral toast.
type NotificationPayload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// OrderUpdatePayload is the body of an order:update frame. Extra fields set
// by the platform's order service travel through Raw untouched.
type OrderUpdatePayload struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
