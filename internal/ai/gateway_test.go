package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/portfolio/internal/domain"
)

type recordingObserver struct {
	ops  []string
	errs []error
}

func (o *recordingObserver) ObserveGatewayCall(op string, _ time.Duration, err error) {
	o.ops = append(o.ops, op)
	o.errs = append(o.errs, err)
}

func testProjects() map[string]*domain.Project {
	return map[string]*domain.Project{
		"p1": {ID: "p1", Title: "Shell Labs", Description: "Browser terminals", Content: "Go and Docker", TechStack: []string{"Go", "Docker"}, IsFeatured: true},
		"p2": {ID: "p2", Title: "Witty", Description: "Chat cat", Content: "Gemini", TechStack: []string{"Go"}},
	}
}

func TestGenerateReplyGroundsOnSearchResults(t *testing.T) {
	projects := testProjects()
	model := &fakeModel{reply: "Purr, Shell Labs runs terminals."}
	source := &fakeSource{projects: projects, matches: []*domain.Project{projects["p1"]}}
	obs := &recordingObserver{}
	g := NewGateway(model, source, GatewayConfig{Observer: obs}, nil)

	history := []domain.Turn{{Role: domain.RoleUser, Text: "What is Shell Labs?"}}
	reply, err := g.GenerateReply(context.Background(), "What is Shell Labs?", history, &domain.PageContext{CurrentPage: "/"})
	require.NoError(t, err)
	assert.Equal(t, "Purr, Shell Labs runs terminals.", reply)

	req := model.lastRequest()
	assert.Contains(t, req.System, `named "Witty"`)
	assert.Contains(t, req.System, "PROJECT: Shell Labs")
	assert.Contains(t, req.System, "Current context: The user is currently on the homepage.")
	require.Len(t, req.Turns, 1, "query already present in history must not be duplicated")
	assert.Equal(t, 0.7, req.Temperature)
	assert.Equal(t, 1024, req.MaxTokens)
	assert.Equal(t, []string{"reply"}, obs.ops)
}

func TestGenerateReplyAppendsQueryWhenMissing(t *testing.T) {
	model := &fakeModel{reply: "ok"}
	g := NewGateway(model, &fakeSource{}, GatewayConfig{}, nil)

	_, err := g.GenerateReply(context.Background(), "hi", nil, nil)
	require.NoError(t, err)

	req := model.lastRequest()
	require.Len(t, req.Turns, 1)
	assert.Equal(t, domain.Turn{Role: domain.RoleUser, Text: "hi"}, req.Turns[0])
	assert.Contains(t, req.System, "No specific project information available.")
	assert.NotContains(t, req.System, "Current context:")
}

func TestGenerateReplyMovesCurrentProjectToFront(t *testing.T) {
	projects := testProjects()
	model := &fakeModel{reply: "ok"}
	source := &fakeSource{projects: projects, matches: []*domain.Project{projects["p2"], projects["p1"]}}
	g := NewGateway(model, source, GatewayConfig{}, nil)

	page := &domain.PageContext{CurrentPage: "/projects/p1", ProjectID: "p1"}
	_, err := g.GenerateReply(context.Background(), "tell me", nil, page)
	require.NoError(t, err)

	system := model.lastRequest().System
	first := strings.Index(system, "PROJECT: Shell Labs")
	second := strings.Index(system, "PROJECT: Witty")
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, second)
	assert.Less(t, first, second)
	assert.Equal(t, 1, strings.Count(system, "PROJECT: Shell Labs"))
	assert.Contains(t, system, `The user is currently viewing the project "Shell Labs".`)
}

func TestGenerateReplyPrependsCurrentProjectWhenNotMatched(t *testing.T) {
	projects := testProjects()
	model := &fakeModel{reply: "ok"}
	source := &fakeSource{projects: projects, searchErr: errors.New("index down")}
	g := NewGateway(model, source, GatewayConfig{}, nil)

	page := &domain.PageContext{CurrentPage: "/projects/p2", ProjectID: "p2"}
	_, err := g.GenerateReply(context.Background(), "tell me", nil, page)
	require.NoError(t, err, "grounding failures must not fail the reply")
	assert.Contains(t, model.lastRequest().System, "PROJECT: Witty")
}

func TestGenerateReplyModelFailure(t *testing.T) {
	boom := errors.New("quota exceeded")
	obs := &recordingObserver{}
	g := NewGateway(&fakeModel{err: boom}, &fakeSource{}, GatewayConfig{Observer: obs}, nil)

	_, err := g.GenerateReply(context.Background(), "hi", nil, nil)
	require.ErrorIs(t, err, boom)
	require.Len(t, obs.errs, 1)
	assert.ErrorIs(t, obs.errs[0], boom)
}

func TestGenerateSuggestionsPageContext(t *testing.T) {
	tests := []struct {
		name     string
		page     domain.PageContext
		contains string
		listed   []domain.ListOptions
	}{
		{
			name:     "homepage lists featured",
			page:     domain.PageContext{CurrentPage: "/"},
			contains: "homepage of the portfolio website",
			listed:   []domain.ListOptions{{FeaturedOnly: true, Limit: 3}},
		},
		{
			name:     "projects page lists five",
			page:     domain.PageContext{CurrentPage: "/projects"},
			contains: "projects list page",
			listed:   []domain.ListOptions{{Limit: 5}},
		},
		{
			name:     "project page names tech stack",
			page:     domain.PageContext{CurrentPage: "/projects/p1", ProjectID: "p1"},
			contains: `viewing the project "Shell Labs" which uses technologies: Go, Docker.`,
		},
		{
			name:     "about page",
			page:     domain.PageContext{CurrentPage: "/about"},
			contains: "about page",
		},
		{
			name:     "contact page",
			page:     domain.PageContext{CurrentPage: "/contact"},
			contains: "contact form",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &fakeModel{reply: `["a","b"]`}
			source := &fakeSource{projects: testProjects()}
			g := NewGateway(model, source, GatewayConfig{}, nil)

			got, err := g.GenerateSuggestions(context.Background(), tt.page, nil)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, got)

			req := model.lastRequest()
			assert.Empty(t, req.System)
			require.Len(t, req.Turns, 1)
			assert.Contains(t, req.Turns[0].Text, tt.contains)
			assert.Contains(t, req.Turns[0].Text, "No conversation history yet.")
			assert.Equal(t, tt.listed, source.listed)
		})
	}
}

func TestGenerateSuggestionsIncludesHistory(t *testing.T) {
	model := &fakeModel{reply: `["a"]`}
	g := NewGateway(model, &fakeSource{}, GatewayConfig{}, nil)
	history := []domain.Turn{
		{Role: domain.RoleUser, Text: "what stack?"},
		{Role: domain.RoleAssistant, Text: "Go, meow"},
	}

	_, err := g.GenerateSuggestions(context.Background(), domain.PageContext{CurrentPage: "/about"}, history)
	require.NoError(t, err)
	prompt := model.lastRequest().Turns[0].Text
	assert.Contains(t, prompt, "User: what stack?\nAI: Go, meow")
}

func TestGenerateSuggestionsModelFailure(t *testing.T) {
	g := NewGateway(&fakeModel{err: errors.New("down")}, &fakeSource{}, GatewayConfig{}, nil)
	_, err := g.GenerateSuggestions(context.Background(), domain.PageContext{CurrentPage: "/"}, nil)
	require.Error(t, err)
}

func TestParseSuggestions(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "plain array", raw: `["a","b","c"]`, want: []string{"a", "b", "c"}},
		{name: "wrapped in prose", raw: "Sure!\n```json\n[\"a\", \"b\"]\n```\nEnjoy", want: []string{"a", "b"}},
		{name: "truncates to three", raw: `["a","b","c","d"]`, want: []string{"a", "b", "c"}},
		{name: "drops non strings", raw: `["a", 1, {"x":2}, "b"]`, want: []string{"a", "b"}},
		{name: "repairs trailing comma", raw: `["a","b",]`, want: []string{"a", "b"}},
		{name: "repairs single quotes", raw: `['a','b']`, want: []string{"a", "b"}},
		{name: "ignores brackets in trailing prose", raw: "Sure! [\"a\",\"b\"] Hope these help [1].", want: []string{"a", "b"}},
		{name: "keeps first of two arrays", raw: "[\"a\",\"b\",\"c\"] and also [\"x\"]", want: []string{"a", "b", "c"}},
		{name: "skips bracketed prose before array", raw: "[note] here you go: [\"a\"]", want: []string{"a"}},
		{name: "no array", raw: "I have no ideas today", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseSuggestions(tt.raw)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDisabledModelFailsEveryCall(t *testing.T) {
	ctx := context.Background()
	g := NewGateway(DisabledModel{}, &fakeSource{}, GatewayConfig{}, nil)

	_, err := g.GenerateReply(ctx, "hi", nil, nil)
	assert.ErrorIs(t, err, ErrModelDisabled)
	_, err = g.GenerateSuggestions(ctx, domain.PageContext{CurrentPage: "/about"}, nil)
	assert.ErrorIs(t, err, ErrModelDisabled)
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.True(t, IsTimeout(errors.Join(errors.New("generate reply"), context.Canceled)))
	assert.False(t, IsTimeout(errors.New("quota exceeded")))
}
