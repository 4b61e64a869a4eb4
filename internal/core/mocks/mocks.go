package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/vendora/realtime-backend/contract"
	"github.com/vendora/realtime-backend/internal/core/domain"
)

// MockSessionStore is a mock implementation of ports.SessionStore
type MockSessionStore struct {
	mock.Mock
}

func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{}
}

func (m *MockSessionStore) Validate(ctx context.Context, token string) (*domain.Session, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionStore) Revoke(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

// MockEventBroadcaster is a mock implementation of ports.EventBroadcaster
type MockEventBroadcaster struct {
	mock.Mock
}

func NewMockEventBroadcaster() *MockEventBroadcaster {
	return &MockEventBroadcaster{}
}

func (m *MockEventBroadcaster) Broadcast(frame contract.Frame) error {
	args := m.Called(frame)
	return args.Error(0)
}

// MockPresenceTracker is a mock implementation of ports.PresenceTracker
type MockPresenceTracker struct {
	mock.Mock
}

func NewMockPresenceTracker() *MockPresenceTracker {
	return &MockPresenceTracker{}
}

func (m *MockPresenceTracker) IsUserConnected(userID uuid.UUID) bool {
	args := m.Called(userID)
	return args.Bool(0)
}

func (m *MockPresenceTracker) ConnectedUsers() []uuid.UUID {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]uuid.UUID)
}
