package postgres

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/blake2b"

	"github.com/vendora/realtime-backend/internal/core/domain"
	apperrors "github.com/vendora/realtime-backend/internal/core/errors"
	"github.com/vendora/realtime-backend/internal/core/ports"
)

// SessionStore persists session liveness in postgres. Raw tokens never
// touch the database; rows are keyed by a keyed blake2b digest so a dumped
// table cannot be replayed against the websocket endpoint.
type SessionStore struct {
	pool      *pgxpool.Pool
	digestKey []byte
}

// Ensure implementation matches the interface.
var _ ports.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates a session store. The digest key is derived from
// the deployment secret, so digests are stable across restarts but useless
// without it.
func NewSessionStore(pool *pgxpool.Pool, secret string) *SessionStore {
	key := blake2b.Sum256([]byte(secret))
	return &SessionStore{
		pool:      pool,
		digestKey: key[:],
	}
}

// digest computes the keyed blake2b digest of a raw session token.
func (s *SessionStore) digest(token string) string {
	h, _ := blake2b.New256(s.digestKey)
	h.Write([]byte(token))
	return hex.EncodeToString(h.Sum(nil))
}

// Create inserts a session row for a freshly issued token.
func (s *SessionStore) Create(ctx context.Context, session *domain.Session, token string) error {
	query := `
		INSERT INTO sessions (id, token_digest, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query,
		session.ID,
		s.digest(token),
		session.UserID,
		session.ExpiresAt,
		session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// Validate looks up the session for a raw token and checks it is live.
func (s *SessionStore) Validate(ctx context.Context, token string) (*domain.Session, error) {
	query := `
		SELECT id, user_id, expires_at, revoked_at, created_at
		FROM sessions
		WHERE token_digest = $1
	`

	var session domain.Session
	err := s.pool.QueryRow(ctx, query, s.digest(token)).Scan(
		&session.ID,
		&session.UserID,
		&session.ExpiresAt,
		&session.RevokedAt,
		&session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrSessionNotFound
		}
		return nil, fmt.Errorf("querying session: %w", err)
	}

	if session.RevokedAt != nil {
		return nil, apperrors.ErrSessionRevoked
	}
	if !session.ExpiresAt.After(time.Now()) {
		return nil, apperrors.ErrSessionExpired
	}

	return &session, nil
}

// Revoke marks the session for a raw token as revoked. Revoking an already
// revoked session is a no-op.
func (s *SessionStore) Revoke(ctx context.Context, token string) error {
	query := `
		UPDATE sessions
		SET revoked_at = now()
		WHERE token_digest = $1 AND revoked_at IS NULL
	`

	tag, err := s.pool.Exec(ctx, query, s.digest(token))
	if err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Either unknown or already revoked; distinguish for the caller.
		var exists bool
		err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM sessions WHERE token_digest = $1)`,
			s.digest(token),
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("checking session existence: %w", err)
		}
		if !exists {
			return apperrors.ErrSessionNotFound
		}
	}

	return nil
}

// DeleteExpired removes sessions that expired before the cutoff. Meant to
// be called periodically so the table does not grow without bound.
func (s *SessionStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM sessions WHERE expires_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
