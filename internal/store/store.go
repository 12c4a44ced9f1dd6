// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/ashureev/portfolio/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Repository defines the interface for persisting projects and usage samples.
type Repository interface {
	// ListProjects returns projects ordered by creation time, newest first.
	ListProjects(ctx context.Context, opts domain.ListOptions) ([]*domain.Project, error)

	// GetProject retrieves a project by ID. Returns ErrNotFound if it does not exist.
	GetProject(ctx context.Context, id string) (*domain.Project, error)

	// CreateProject inserts a new project. ID and timestamps are assigned by the store
	// when empty.
	CreateProject(ctx context.Context, p *domain.Project) error

	// UpdateProject replaces the editable fields of an existing project.
	// Returns ErrNotFound if it does not exist.
	UpdateProject(ctx context.Context, p *domain.Project) error

	// DeleteProject removes a project. Deleting a missing project is not an error.
	DeleteProject(ctx context.Context, id string) error

	// UpdateEmbedding stores the embedding vector for a project.
	UpdateEmbedding(ctx context.Context, id string, vector []float32) error

	// ListEmbeddings returns every project that has a stored embedding.
	ListEmbeddings(ctx context.Context) ([]domain.ProjectEmbedding, error)

	// ProjectStats returns record count and approximate embedding storage size.
	ProjectStats(ctx context.Context) (domain.ProjectStats, error)

	// InsertUsageSample records a usage measurement.
	InsertUsageSample(ctx context.Context, sample *domain.UsageSample) error

	// ListUsageSamples returns the newest samples first, at most limit.
	ListUsageSamples(ctx context.Context, limit int) ([]*domain.UsageSample, error)

	// TrimUsageSamples keeps the newest keep samples and deletes the rest.
	TrimUsageSamples(ctx context.Context, keep int) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
