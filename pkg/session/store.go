package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long a session survives without activity before it
// destroys itself. Clients wishing to resume must re-subscribe before
// expiry; there is no persistence of live sessions.
const DefaultTTL = 30 * time.Minute

// Store is the process-wide registry of in-flight sessions, keyed by
// session id. Sessions are created by a single writer (the HTTP handler)
// and read by reconnecting subscribers. Entries are TTL-bounded.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
}

// NewStore creates a session store. A non-positive ttl falls back to
// DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
}

// Create mints a session with a fresh UUID and an armed TTL timer.
func (st *Store) Create() *Session {
	s := newSession(uuid.New().String())
	s.armTTL(st.ttl, func() { st.expire(s.id) })

	st.mu.Lock()
	st.sessions[s.id] = s
	st.mu.Unlock()
	return s
}

// Get returns the session for the given id.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return s, nil
}

// Delete removes and destroys a session.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if ok {
		s.destroy()
	}
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// ExpireIdle destroys sessions whose TTL deadline has silently passed, as a
// backstop for timers lost to clock adjustments. Returns the number removed.
// Intended to be driven by the cleanup service.
func (st *Store) ExpireIdle(now time.Time) int {
	st.mu.Lock()
	var stale []*Session
	for id, s := range st.sessions {
		if now.Sub(s.CreatedAt()) > 2*st.ttl {
			stale = append(stale, s)
			delete(st.sessions, id)
		}
	}
	st.mu.Unlock()

	for _, s := range stale {
		s.destroy()
	}
	return len(stale)
}

func (st *Store) expire(id string) {
	st.Delete(id)
}
