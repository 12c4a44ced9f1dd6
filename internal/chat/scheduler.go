package chat

import (
	"context"
	"sync"
	"time"
)

// Producer is the delayed action run by the Scheduler. Its context is
// canceled when the action is disarmed, replaced or the scheduler stops.
type Producer func(ctx context.Context)

type pendingCall struct {
	timer  *time.Timer
	ctx    context.Context
	cancel context.CancelFunc
}

// Scheduler runs at most one delayed Producer per session.
type Scheduler struct {
	mu      sync.Mutex
	pending map[string]*pendingCall
	stopped bool
}

// NewScheduler creates an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{pending: make(map[string]*pendingCall)}
}

// Arm cancels any pending call for id and schedules producer to run once
// after delay.
func (s *Scheduler) Arm(id string, delay time.Duration, producer Producer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.cancelLocked(id)

	ctx, cancel := context.WithCancel(context.Background())
	call := &pendingCall{ctx: ctx, cancel: cancel}
	call.timer = time.AfterFunc(delay, func() { s.fire(id, call, producer) })
	s.pending[id] = call
}

// Disarm cancels the pending or running call for id. It is a no-op when
// nothing is armed.
func (s *Scheduler) Disarm(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(id)
}

// Pending reports whether a call for id is armed or running.
func (s *Scheduler) Pending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	return ok
}

// Stop cancels every call and rejects further Arm calls.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id := range s.pending {
		s.cancelLocked(id)
	}
}

func (s *Scheduler) cancelLocked(id string) {
	call, ok := s.pending[id]
	if !ok {
		return
	}
	call.timer.Stop()
	call.cancel()
	delete(s.pending, id)
}

func (s *Scheduler) fire(id string, call *pendingCall, producer Producer) {
	s.mu.Lock()
	current, ok := s.pending[id]
	s.mu.Unlock()
	// A replaced or disarmed call may still fire if Stop lost the race.
	if !ok || current != call || call.ctx.Err() != nil {
		return
	}

	producer(call.ctx)

	s.mu.Lock()
	if s.pending[id] == call {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	call.cancel()
}
