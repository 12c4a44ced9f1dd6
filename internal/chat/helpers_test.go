package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ashureev/portfolio/internal/domain"
)

type recordingSink struct {
	mu   sync.Mutex
	msgs []Message
}

func (s *recordingSink) Send(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingSink) messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *recordingSink) ofType(tag string) []Message {
	var out []Message
	for _, m := range s.messages() {
		if m.Type() == tag {
			out = append(out, m)
		}
	}
	return out
}

type fakeGateway struct {
	mu           sync.Mutex
	reply        string
	replyErr     error
	suggestions  []string
	suggestErr   error
	replyCalls   int
	suggestCalls int
	release      chan struct{}
	lastHistory  []domain.Turn
	lastPage     domain.PageContext
}

func (g *fakeGateway) GenerateReply(ctx context.Context, _ string, history []domain.Turn, _ *domain.PageContext) (string, error) {
	g.mu.Lock()
	g.replyCalls++
	g.lastHistory = history
	release := g.release
	reply, err := g.reply, g.replyErr
	g.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return reply, err
}

func (g *fakeGateway) GenerateSuggestions(_ context.Context, page domain.PageContext, _ []domain.Turn) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.suggestCalls++
	g.lastPage = page
	return g.suggestions, g.suggestErr
}

func (g *fakeGateway) replyCallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.replyCalls
}

func (g *fakeGateway) suggestionCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suggestCalls
}

type testEnv struct {
	svc       *Service
	registry  *Registry
	scheduler *Scheduler
	gateway   *fakeGateway
}

func newTestEnv(t *testing.T, gw *fakeGateway, cfg Config) *testEnv {
	t.Helper()
	scheduler := NewScheduler()
	t.Cleanup(scheduler.Stop)
	registry := NewRegistry(scheduler)
	return &testEnv{
		svc:       NewService(gw, registry, scheduler, cfg, nil),
		registry:  registry,
		scheduler: scheduler,
		gateway:   gw,
	}
}

func (e *testEnv) connect(t *testing.T) (*Session, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	id := e.registry.Register(sink, "visitor-1")
	sess, ok := e.registry.Lookup(id)
	require.True(t, ok)
	return sess, sink
}

// fastConfig keeps suggestion delays short enough for tests.
func fastConfig() Config {
	return Config{
		HistoryLimit:           10,
		ReplyTimeout:           time.Second,
		SuggestionAfterChat:    40 * time.Millisecond,
		SuggestionAfterContext: 20 * time.Millisecond,
	}
}
