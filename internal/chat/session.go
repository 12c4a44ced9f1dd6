package chat

import (
	"sync"
	"sync/atomic"

	"github.com/ashureev/portfolio/internal/domain"
)

// Sink delivers outbound messages to one connection. Implementations must be
// safe for concurrent use.
type Sink interface {
	Send(msg Message) error
}

// Session is the conversational state of one connection.
type Session struct {
	id      string
	visitor string
	sink    Sink

	mu      sync.Mutex
	history []domain.Turn
	page    *domain.PageContext

	closed atomic.Bool
}

func newSession(id, visitor string, sink Sink) *Session {
	return &Session{id: id, visitor: visitor, sink: sink}
}

// ID returns the connection identifier.
func (s *Session) ID() string { return s.id }

// Visitor returns the anonymous visitor the connection belongs to.
func (s *Session) Visitor() string { return s.visitor }

// History returns a copy of the recorded turns, oldest first.
func (s *Session) History() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Turn, len(s.history))
	copy(out, s.history)
	return out
}

// Page returns a copy of the last known page context, or nil.
func (s *Session) Page() *domain.PageContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page == nil {
		return nil
	}
	p := *s.page
	return &p
}

// Closed reports whether the connection has been unregistered.
func (s *Session) Closed() bool { return s.closed.Load() }

func (s *Session) appendTurn(t domain.Turn, limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = domain.AppendTurn(s.history, t, limit)
}

func (s *Session) setPage(p domain.PageContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.page = &p
}

func (s *Session) close() { s.closed.Store(true) }

// send delivers msg unless the session is closed.
func (s *Session) send(msg Message) error {
	if s.Closed() {
		return nil
	}
	return s.sink.Send(msg)
}
