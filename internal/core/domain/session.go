package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session is a server-held authentication session. The platform's login
// flow creates it; this service only validates it during the realtime
// handshake and marks it revoked on logout. The client never asserts an
// identity to the transport — the session row is the source of truth.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Live reports whether the session is still usable at the given instant.
func (s *Session) Live(now time.Time) bool {
	if s.RevokedAt != nil {
		return false
	}
	return now.Before(s.ExpiresAt)
}
