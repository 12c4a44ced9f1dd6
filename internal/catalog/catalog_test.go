package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/portfolio/internal/domain"
	"github.com/ashureev/portfolio/internal/search"
	"github.com/ashureev/portfolio/internal/store"
)

// keywordEmbedder places texts on axes by keyword so similarity is predictable.
type keywordEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  string
}

func (e *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.fail != "" && strings.Contains(text, e.fail) {
		return nil, errors.New("embedding unavailable")
	}
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "terminal"):
		return []float32{1, 0, 0}, nil
	case strings.Contains(lower, "cat"):
		return []float32{0, 1, 0}, nil
	default:
		return []float32{0, 0, 1}, nil
	}
}

type countingObserver struct {
	mu       sync.Mutex
	ok, fail int
}

func (o *countingObserver) ObserveEmbeddingRegenerated(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.fail++
		return
	}
	o.ok++
}

func newTestCatalog(t *testing.T, embedder *keywordEmbedder, obs Observer) (*Catalog, store.Repository) {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	index, err := search.NewIndex(embedder.Embed)
	require.NoError(t, err)
	return New(repo, index, embedder, Options{Observer: obs}, nil), repo
}

func createProject(t *testing.T, c *Catalog, title, content string) *domain.Project {
	t.Helper()
	p := &domain.Project{
		Title:       title,
		Description: title,
		TechStack:   []string{"Go"},
		Content:     content,
	}
	require.NoError(t, c.CreateProject(context.Background(), p))
	return p
}

func TestSearchProjectsAfterRegenerate(t *testing.T) {
	ctx := context.Background()
	obs := &countingObserver{}
	c, _ := newTestCatalog(t, &keywordEmbedder{}, obs)

	shell := createProject(t, c, "Shell Labs", "browser terminal sandboxes")
	createProject(t, c, "Witty", "a cat that chats")

	got, err := c.SearchProjects(ctx, "terminal", 0.7, 3)
	require.NoError(t, err)
	assert.Empty(t, got, "nothing is indexed before embeddings exist")

	n, err := c.RegenerateAllEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, c.IndexedCount())
	assert.Equal(t, 2, obs.ok)

	got, err = c.SearchProjects(ctx, "terminal", 0.7, 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, shell.ID, got[0].ID)
	assert.True(t, got[0].HasEmbedding)
}

func TestDeleteProjectRemovesFromIndex(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCatalog(t, &keywordEmbedder{}, nil)

	p := createProject(t, c, "Shell Labs", "terminal")
	require.NoError(t, c.RegenerateEmbedding(ctx, p.ID))
	require.Equal(t, 1, c.IndexedCount())

	require.NoError(t, c.DeleteProject(ctx, p.ID))
	assert.Equal(t, 0, c.IndexedCount())

	_, err := c.GetProject(ctx, p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRegenerateEmbeddingMissingProject(t *testing.T) {
	obs := &countingObserver{}
	c, _ := newTestCatalog(t, &keywordEmbedder{}, obs)

	err := c.RegenerateEmbedding(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 1, obs.fail)
}

func TestRegenerateAllEmbeddingsReportsFailure(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCatalog(t, &keywordEmbedder{fail: "broken"}, nil)

	createProject(t, c, "Broken", "broken content")
	_, err := c.RegenerateAllEmbeddings(ctx)
	require.Error(t, err)
}

func TestRegenerateAllEmbeddingsEmptyCatalog(t *testing.T) {
	c, _ := newTestCatalog(t, &keywordEmbedder{}, nil)
	n, err := c.RegenerateAllEmbeddings(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLoadIndexFromStoredEmbeddings(t *testing.T) {
	ctx := context.Background()
	embedder := &keywordEmbedder{}
	c, repo := newTestCatalog(t, embedder, nil)

	p := createProject(t, c, "Shell Labs", "terminal")
	require.NoError(t, repo.UpdateEmbedding(ctx, p.ID, []float32{1, 0, 0}))

	fresh, err := search.NewIndex(embedder.Embed)
	require.NoError(t, err)
	restarted := New(repo, fresh, embedder, Options{}, nil)

	n, err := restarted.LoadIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := restarted.SearchProjects(ctx, "terminal", 0.7, 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Shell Labs", got[0].Title)
}

func TestEmbeddingsDisabledWithoutEmbedder(t *testing.T) {
	ctx := context.Background()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	index, err := search.NewIndex((&keywordEmbedder{}).Embed)
	require.NoError(t, err)

	c := New(repo, index, nil, Options{}, nil)
	p := createProject(t, c, "Offline", "content")

	assert.ErrorIs(t, c.RegenerateEmbedding(ctx, p.ID), ErrEmbeddingsDisabled)
	_, err = c.RegenerateAllEmbeddings(ctx)
	assert.ErrorIs(t, err, ErrEmbeddingsDisabled)

	found, err := c.SearchProjects(ctx, "anything", 0, 3)
	require.NoError(t, err)
	assert.Empty(t, found)
}
