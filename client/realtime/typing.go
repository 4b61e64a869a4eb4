package realtime

import (
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

// TypingRegistry tracks which users are currently composing input, per
// conversation. Start and Stop are idempotent in both directions.
//
// A lost typing:stop (client crash mid-typing) would otherwise leave an
// indicator stuck forever, so entries older than ttl are evicted lazily on
// read. A ttl of zero disables eviction.
type TypingRegistry struct {
	mu            sync.Mutex
	conversations map[string]map[string]time.Time
	ttl           time.Duration
}

// NewTypingRegistry creates an empty registry with the given eviction TTL.
func NewTypingRegistry(ttl time.Duration) *TypingRegistry {
	return &TypingRegistry{
		conversations: make(map[string]map[string]time.Time),
		ttl:           ttl,
	}
}

// Start marks the user as typing in the conversation. Duplicate starts
// refresh the entry's timestamp and are otherwise no-ops.
func (r *TypingRegistry) Start(conversationID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.conversations[conversationID]
	if !ok {
		members = make(map[string]time.Time)
		r.conversations[conversationID] = members
	}
	members[userID] = time.Now()
}

// Stop removes the user from the conversation's typing set. Removing an
// absent member is a no-op.
func (r *TypingRegistry) Stop(conversationID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.conversations[conversationID]
	if !ok {
		return
	}
	delete(members, userID)
	if len(members) == 0 {
		delete(r.conversations, conversationID)
	}
}

// Users returns the users currently typing in the conversation, sorted for
// stable rendering. The result is a copy.
func (r *TypingRegistry) Users(conversationID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictLocked(conversationID)

	members, ok := r.conversations[conversationID]
	if !ok {
		return nil
	}

	users := lo.Keys(members)
	sort.Strings(users)
	return users
}

// evictLocked drops entries older than the TTL. Caller holds r.mu.
func (r *TypingRegistry) evictLocked(conversationID string) {
	if r.ttl <= 0 {
		return
	}

	members, ok := r.conversations[conversationID]
	if !ok {
		return
	}

	cutoff := time.Now().Add(-r.ttl)
	for userID, startedAt := range members {
		if startedAt.Before(cutoff) {
			delete(members, userID)
		}
	}
	if len(members) == 0 {
		delete(r.conversations, conversationID)
	}
}

// Len returns the number of conversations with at least one typing user.
func (r *TypingRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conversations)
}

// Clear drops all typing state. The session binder calls this on
// disconnect, before any replacement session may populate the registry.
func (r *TypingRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations = make(map[string]map[string]time.Time)
}
