// Package catalog is the project catalog: persistent project records plus the
// semantic index used to ground chat replies.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ashureev/portfolio/internal/domain"
	"github.com/ashureev/portfolio/internal/search"
	"github.com/ashureev/portfolio/internal/store"
)

// regenerateWorkers bounds concurrent embedding calls during a full rebuild.
const regenerateWorkers = 4

// ErrEmbeddingsDisabled is returned by embedding operations when no embedder
// is configured.
var ErrEmbeddingsDisabled = errors.New("embeddings are disabled")

// Embedder produces document embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Observer records embedding regeneration outcomes. A nil Observer is allowed.
type Observer interface {
	ObserveEmbeddingRegenerated(err error)
}

// Options tune a Catalog.
type Options struct {
	EmbedTimeout time.Duration
	Observer     Observer
}

// Catalog composes the repository, the similarity index and the embedder.
type Catalog struct {
	repo     store.Repository
	index    *search.Index
	embedder Embedder
	opts     Options
	logger   *slog.Logger
}

// New creates a Catalog.
func New(repo store.Repository, index *search.Index, embedder Embedder, opts Options, logger *slog.Logger) *Catalog {
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{repo: repo, index: index, embedder: embedder, opts: opts, logger: logger}
}

// ListProjects returns projects matching opts, newest first.
func (c *Catalog) ListProjects(ctx context.Context, opts domain.ListOptions) ([]*domain.Project, error) {
	return c.repo.ListProjects(ctx, opts)
}

// GetProject returns a project by ID or store.ErrNotFound.
func (c *Catalog) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	return c.repo.GetProject(ctx, id)
}

// CreateProject stores a new project. Its embedding is not generated until
// RegenerateEmbedding is called.
func (c *Catalog) CreateProject(ctx context.Context, p *domain.Project) error {
	if err := c.repo.CreateProject(ctx, p); err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

// UpdateProject replaces the editable fields of a project.
func (c *Catalog) UpdateProject(ctx context.Context, p *domain.Project) error {
	if err := c.repo.UpdateProject(ctx, p); err != nil {
		return fmt.Errorf("update project %s: %w", p.ID, err)
	}
	return nil
}

// DeleteProject removes a project and its index entry.
func (c *Catalog) DeleteProject(ctx context.Context, id string) error {
	if err := c.repo.DeleteProject(ctx, id); err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	if err := c.index.Remove(ctx, id); err != nil {
		c.logger.Warn("failed to remove project from index", "project_id", id, "error", err)
	}
	return nil
}

// SearchProjects returns up to limit projects whose similarity to text is at
// least threshold, best match first. Index entries whose project no longer
// exists are skipped.
func (c *Catalog) SearchProjects(ctx context.Context, text string, threshold float64, limit int) ([]*domain.Project, error) {
	if c.index.Count() == 0 {
		return nil, nil
	}

	matches, err := c.index.Query(ctx, text, float32(threshold), limit)
	if err != nil {
		return nil, fmt.Errorf("search projects: %w", err)
	}

	projects := make([]*domain.Project, 0, len(matches))
	for _, m := range matches {
		p, err := c.repo.GetProject(ctx, m.ProjectID)
		if errors.Is(err, store.ErrNotFound) {
			c.logger.Debug("skipping stale index entry", "project_id", m.ProjectID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load matched project %s: %w", m.ProjectID, err)
		}
		projects = append(projects, p)
	}
	return projects, nil
}

// RegenerateEmbedding embeds a project's text, stores the vector and updates
// the index.
func (c *Catalog) RegenerateEmbedding(ctx context.Context, id string) (err error) {
	defer func() {
		if c.opts.Observer != nil {
			c.opts.Observer.ObserveEmbeddingRegenerated(err)
		}
	}()

	if c.embedder == nil {
		return ErrEmbeddingsDisabled
	}
	p, err := c.repo.GetProject(ctx, id)
	if err != nil {
		return fmt.Errorf("load project %s: %w", id, err)
	}

	text := p.EmbeddingText()
	embedCtx, cancel := context.WithTimeout(ctx, c.opts.EmbedTimeout)
	defer cancel()
	vector, err := c.embedder.Embed(embedCtx, text)
	if err != nil {
		return fmt.Errorf("embed project %s: %w", id, err)
	}

	if err := c.repo.UpdateEmbedding(ctx, id, vector); err != nil {
		return fmt.Errorf("store embedding for %s: %w", id, err)
	}
	if err := c.index.Upsert(ctx, id, text, vector); err != nil {
		return fmt.Errorf("index project %s: %w", id, err)
	}

	c.logger.Info("Regenerated project embedding", "project_id", id, "dimensions", len(vector))
	return nil
}

// RegenerateAllEmbeddings rebuilds the embedding of every project and returns
// how many succeeded. The first failure cancels the remaining work.
func (c *Catalog) RegenerateAllEmbeddings(ctx context.Context) (int, error) {
	if c.embedder == nil {
		return 0, ErrEmbeddingsDisabled
	}
	projects, err := c.repo.ListProjects(ctx, domain.ListOptions{})
	if err != nil {
		return 0, fmt.Errorf("list projects: %w", err)
	}
	if len(projects) == 0 {
		c.logger.Info("No projects found to generate embeddings for")
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(regenerateWorkers)

	var done atomic.Int64
	for _, p := range projects {
		id := p.ID
		g.Go(func() error {
			if err := c.RegenerateEmbedding(gctx, id); err != nil {
				return err
			}
			done.Add(1)
			return nil
		})
	}

	err = g.Wait()
	n := int(done.Load())
	if err != nil {
		return n, err
	}
	c.logger.Info("Regenerated all project embeddings", "count", n)
	return n, nil
}

// LoadIndex fills the similarity index from stored embeddings and returns the
// number of indexed projects.
func (c *Catalog) LoadIndex(ctx context.Context) (int, error) {
	embeddings, err := c.repo.ListEmbeddings(ctx)
	if err != nil {
		return 0, fmt.Errorf("list embeddings: %w", err)
	}
	for _, e := range embeddings {
		if err := c.index.Upsert(ctx, e.ProjectID, e.Text, e.Vector); err != nil {
			return 0, fmt.Errorf("index project %s: %w", e.ProjectID, err)
		}
	}
	return len(embeddings), nil
}

// IndexedCount returns the number of projects in the similarity index.
func (c *Catalog) IndexedCount() int {
	return c.index.Count()
}
