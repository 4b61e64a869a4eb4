package realtime

import (
	"sync"
	"time"

	"github.com/vendora/realtime-backend/contract"
)

// PresenceRecord is the last observed liveness state for a user.
type PresenceRecord struct {
	UserID    string
	Status    contract.PresenceStatus
	UpdatedAt time.Time
}

// PresenceRegistry tracks the current presence status per user. Updates are
// last-write-wins; the registry holds no history. The dispatcher is the
// only writer, any number of UI consumers read.
type PresenceRegistry struct {
	mu      sync.RWMutex
	records map[string]PresenceRecord
}

// NewPresenceRegistry creates an empty registry.
func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		records: make(map[string]PresenceRecord),
	}
}

// Apply overwrites the stored status for the user.
func (r *PresenceRegistry) Apply(userID string, status contract.PresenceStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[userID] = PresenceRecord{
		UserID:    userID,
		Status:    status,
		UpdatedAt: time.Now(),
	}
}

// Get returns the last known status for the user, or StatusOffline if the
// user has never been observed.
func (r *PresenceRegistry) Get(userID string) contract.PresenceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rec, ok := r.records[userID]; ok {
		return rec.Status
	}
	return contract.StatusOffline
}

// Record returns the full presence record for a user, if one exists.
func (r *PresenceRegistry) Record(userID string) (PresenceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[userID]
	return rec, ok
}

// Len returns the number of tracked users.
func (r *PresenceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Clear drops all records. The session binder calls this on disconnect,
// before any replacement session may populate the registry.
func (r *PresenceRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[string]PresenceRecord)
}
