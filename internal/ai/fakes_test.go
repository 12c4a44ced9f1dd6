package ai

import (
	"context"
	"sync"

	"github.com/ashureev/portfolio/internal/domain"
	"github.com/ashureev/portfolio/internal/store"
)

type fakeModel struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []CompletionRequest
	embeds   int
}

func (m *fakeModel) Complete(_ context.Context, req CompletionRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return m.reply, m.err
}

func (m *fakeModel) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embeds++
	if m.err != nil {
		return nil, m.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (m *fakeModel) lastRequest() CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

type fakeSource struct {
	projects  map[string]*domain.Project
	matches   []*domain.Project
	searchErr error
	listed    []domain.ListOptions
}

func (s *fakeSource) SearchProjects(context.Context, string, float64, int) ([]*domain.Project, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.matches, nil
}

func (s *fakeSource) GetProject(_ context.Context, id string) (*domain.Project, error) {
	p, ok := s.projects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (s *fakeSource) ListProjects(_ context.Context, opts domain.ListOptions) ([]*domain.Project, error) {
	s.listed = append(s.listed, opts)
	var out []*domain.Project
	for _, p := range s.projects {
		if opts.FeaturedOnly && !p.IsFeatured {
			continue
		}
		out = append(out, p)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}
