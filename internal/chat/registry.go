package chat

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// Registry owns the live sessions of the process.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	seq       atomic.Uint64
	scheduler *Scheduler
}

// NewRegistry creates an empty registry. Unregistering a session disarms its
// suggestion timer on scheduler.
func NewRegistry(scheduler *Scheduler) *Registry {
	return &Registry{
		sessions:  make(map[string]*Session),
		scheduler: scheduler,
	}
}

// Register creates a session for a new connection and returns its id.
func (r *Registry) Register(sink Sink, visitor string) string {
	id := "conn-" + strconv.FormatUint(r.seq.Add(1), 10)

	r.mu.Lock()
	r.sessions[id] = newSession(id, visitor, sink)
	r.mu.Unlock()
	return id
}

// Lookup returns the session for id.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Unregister removes the session and cancels its pending suggestion. Calling
// it for an unknown or already removed id does nothing.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return
	}
	s.close()
	if r.scheduler != nil {
		r.scheduler.Disarm(id)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
