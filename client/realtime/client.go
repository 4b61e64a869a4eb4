// Package realtime is the client core for the Vendora realtime connection:
// one multiplexed websocket per authenticated session, presence and typing
// registries kept current from inbound events, and an in-process bus that
// fans domain events out to decoupled consumers.
package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/vendora/realtime-backend/contract"
)

// Config holds the client-side tunables. Zero values fall back to defaults.
type Config struct {
	// URL is the realtime endpoint, e.g. wss://api.vendora.io/api/v1/ws.
	URL string

	// ReconnectAttempts and ReconnectDelay define the bounded retry
	// policy after transport failure.
	ReconnectAttempts int
	ReconnectDelay    time.Duration

	// TypingTTL evicts typing entries whose stop event was lost. Zero
	// disables eviction.
	TypingTTL time.Duration
}

// Client assembles the realtime core and exposes the surface the rest of
// the application consumes: auth transitions in, subscriptions and registry
// reads out. Construct one at application startup and Close it at shutdown.
type Client struct {
	bus        *Bus
	presence   *PresenceRegistry
	typing     *TypingRegistry
	dispatcher *Dispatcher
	manager    *ConnManager
	binder     *SessionBinder
	logger     *slog.Logger
}

// New builds a client over the default websocket transport.
func New(cfg Config, logger *slog.Logger) *Client {
	return NewWithTransport(cfg, NewWebsocketTransport(cfg.URL), logger)
}

// NewWithTransport builds a client over a caller-supplied transport.
func NewWithTransport(cfg Config, transport Transport, logger *slog.Logger) *Client {
	c := &Client{
		bus:      NewBus(logger),
		presence: NewPresenceRegistry(),
		typing:   NewTypingRegistry(cfg.TypingTTL),
		logger:   logger,
	}
	c.dispatcher = NewDispatcher(logger)
	c.manager = NewConnManager(transport, ConnManagerConfig{
		ReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectDelay:    cfg.ReconnectDelay,
	}, logger)
	c.binder = NewSessionBinder(c.manager, c.presence, c.typing, logger)

	c.registerRoutes()
	c.manager.SetFrameHandler(c.dispatcher.Dispatch)
	return c
}

// registerRoutes installs the default frame routing: presence and typing
// frames mutate the registries, everything addressed to UI consumers is
// republished on the bus. Registry updates run before bus delivery, so
// consumers always observe post-update state.
func (c *Client) registerRoutes() {
	c.dispatcher.RegisterHandler(contract.EventPresenceUpdated, c.handlePresence)
	c.dispatcher.RegisterHandler(contract.EventTypingStart, c.typingHandler(c.typing.Start))
	c.dispatcher.RegisterHandler(contract.EventTypingStop, c.typingHandler(c.typing.Stop))

	c.dispatcher.RegisterHandler(contract.EventMessageNew, c.bus.Publish)
	c.dispatcher.RegisterHandler(contract.EventBusinessUpdate, c.bus.Publish)
	c.dispatcher.RegisterHandler(contract.EventNotification, c.bus.Publish)
	c.dispatcher.RegisterHandler(contract.EventOrderUpdate, c.handleOrderUpdate)
}

func (c *Client) handlePresence(frame contract.Frame) {
	var p contract.PresencePayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil || p.UserID == "" {
		c.logger.Warn("dropping malformed presence payload", "error", err)
		return
	}
	if !p.Status.Valid() {
		c.logger.Warn("dropping presence update with unknown status", "status", p.Status)
		return
	}
	c.presence.Apply(p.UserID, p.Status)
	c.bus.Publish(frame)
}

func (c *Client) typingHandler(apply func(conversationID, userID string)) Handler {
	return func(frame contract.Frame) {
		var p contract.TypingPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil || p.UserID == "" || p.ConversationID == "" {
			c.logger.Warn("dropping malformed typing payload", "event", frame.Event, "error", err)
			return
		}
		apply(p.ConversationID, p.UserID)
		c.bus.Publish(frame)
	}
}

// handleOrderUpdate republishes the order event and additionally surfaces
// it as a notification, so the toast surface needs no order-specific code.
func (c *Client) handleOrderUpdate(frame contract.Frame) {
	c.bus.Publish(frame)

	var p contract.OrderUpdatePayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil || p.ID == "" {
		c.logger.Warn("dropping malformed order payload", "error", err)
		return
	}
	note, err := contract.NewFrame(contract.EventNotification, contract.NotificationPayload{
		Title:   "Order update",
		Message: fmt.Sprintf("Order %s is now %s", p.ID, p.Status),
	})
	if err != nil {
		c.logger.Warn("failed to build order notification", "error", err)
		return
	}
	c.bus.Publish(note)
}

// SetAuth is called when the application observes a transition into the
// authenticated state.
func (c *Client) SetAuth(identity, sessionToken string) {
	c.binder.SetAuth(identity, sessionToken)
}

// ClearAuth is called when the application observes a transition into the
// unauthenticated state.
func (c *Client) ClearAuth() {
	c.binder.ClearAuth()
}

// Subscribe registers a consumer for an event kind and returns its
// unsubscribe function.
func (c *Client) Subscribe(event contract.EventName, fn Handler) func() {
	return c.bus.Subscribe(event, fn)
}

// GetPresence returns the last known status for a user, StatusOffline if
// never observed.
func (c *Client) GetPresence(userID string) contract.PresenceStatus {
	return c.presence.Get(userID)
}

// GetTypingUsers returns the users currently typing in a conversation.
func (c *Client) GetTypingUsers(conversationID string) []string {
	return c.typing.Users(conversationID)
}

// ConnectionStatus returns the current connection state.
func (c *Client) ConnectionStatus() ConnStatus {
	return c.manager.Status()
}

// OnStatusChange registers an observer for connection status transitions.
func (c *Client) OnStatusChange(fn func(ConnStatus)) {
	c.manager.OnStatusChange(fn)
}

// Close tears down the session unconditionally. Safe to call after an
// auth-driven disconnect already happened.
func (c *Client) Close() {
	c.binder.Close()
}
