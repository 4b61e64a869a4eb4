package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendora/realtime-backend/internal/core/domain"
	apperrors "github.com/vendora/realtime-backend/internal/core/errors"
)

const testSecret = "store-test-secret"

func newStore(t *testing.T) *SessionStore {
	t.Helper()
	require.NotNil(t, testPool, "test pool not initialised")
	return NewSessionStore(testPool, testSecret)
}

func seedSession(t *testing.T, store *SessionStore, token string, expiresAt time.Time) *domain.Session {
	t.Helper()
	session := &domain.Session{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.Create(context.Background(), session, token))
	return session
}

func TestSessionStoreValidateReturnsLiveSession(t *testing.T) {
	store := newStore(t)
	token := uuid.NewString()
	seeded := seedSession(t, store, token, time.Now().Add(time.Hour))

	got, err := store.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, got.ID)
	assert.Equal(t, seeded.UserID, got.UserID)
	assert.Nil(t, got.RevokedAt)
}

func TestSessionStoreValidateUnknownToken(t *testing.T) {
	store := newStore(t)

	_, err := store.Validate(context.Background(), "never-issued")
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	assert.True(t, apperrors.IsAuthFailure(err))
}

func TestSessionStoreValidateExpiredToken(t *testing.T) {
	store := newStore(t)
	token := uuid.NewString()
	seedSession(t, store, token, time.Now().Add(-time.Minute))

	_, err := store.Validate(context.Background(), token)
	assert.ErrorIs(t, err, apperrors.ErrSessionExpired)
}

func TestSessionStoreRevoke(t *testing.T) {
	store := newStore(t)
	token := uuid.NewString()
	seedSession(t, store, token, time.Now().Add(time.Hour))

	require.NoError(t, store.Revoke(context.Background(), token))

	_, err := store.Validate(context.Background(), token)
	assert.ErrorIs(t, err, apperrors.ErrSessionRevoked)

	// Revoking again is a no-op, not an error.
	assert.NoError(t, store.Revoke(context.Background(), token))
}

func TestSessionStoreRevokeUnknownToken(t *testing.T) {
	store := newStore(t)

	err := store.Revoke(context.Background(), "never-issued")
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestSessionStoreTokensAreDigestedAtRest(t *testing.T) {
	store := newStore(t)
	token := uuid.NewString()
	seedSession(t, store, token, time.Now().Add(time.Hour))

	// The raw token must not appear anywhere in the table.
	var count int
	err := testPool.QueryRow(context.Background(),
		`SELECT count(*) FROM sessions WHERE token_digest = $1`, token,
	).Scan(&count)
	require.NoError(t, err)
	assert.Zero(t, count)

	// A store keyed with a different secret cannot find the session.
	other := NewSessionStore(testPool, "a-different-secret")
	_, err = other.Validate(context.Background(), token)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestSessionStoreDeleteExpired(t *testing.T) {
	store := newStore(t)
	liveToken := uuid.NewString()
	seedSession(t, store, liveToken, time.Now().Add(time.Hour))
	seedSession(t, store, uuid.NewString(), time.Now().Add(-2*time.Hour))

	deleted, err := store.DeleteExpired(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deleted, int64(1))

	_, err = store.Validate(context.Background(), liveToken)
	assert.NoError(t, err)
}
