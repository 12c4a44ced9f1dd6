// Package search keeps an in-memory vector index of project embeddings for
// semantic lookup.
package search

import (
	"context"
	"errors"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
)

const collectionName = "projects"

// EmbedFunc turns query text into a vector.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Match is a single search hit.
type Match struct {
	ProjectID  string
	Similarity float32
}

// Index is a cosine-similarity index over project embeddings.
type Index struct {
	collection *chromem.Collection
}

// NewIndex creates an empty index that embeds query text with embed.
func NewIndex(embed EmbedFunc) (*Index, error) {
	if embed == nil {
		return nil, errors.New("embed function is required")
	}
	db := chromem.NewDB()
	collection, err := db.GetOrCreateCollection(collectionName, nil, chromem.EmbeddingFunc(embed))
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &Index{collection: collection}, nil
}

// Upsert stores a precomputed vector for a project, replacing any previous one.
func (i *Index) Upsert(ctx context.Context, projectID, text string, vector []float32) error {
	if projectID == "" {
		return errors.New("project id is required")
	}
	if len(vector) == 0 {
		return errors.New("vector is empty")
	}
	err := i.collection.AddDocument(ctx, chromem.Document{
		ID:        projectID,
		Content:   text,
		Embedding: vector,
	})
	if err != nil {
		return fmt.Errorf("add document %s: %w", projectID, err)
	}
	return nil
}

// Remove deletes a project from the index. Removing a missing project is not an error.
func (i *Index) Remove(ctx context.Context, projectID string) error {
	if err := i.collection.Delete(ctx, nil, nil, projectID); err != nil {
		return fmt.Errorf("delete document %s: %w", projectID, err)
	}
	return nil
}

// Query returns up to limit matches with similarity at least threshold, best first.
func (i *Index) Query(ctx context.Context, text string, threshold float32, limit int) ([]Match, error) {
	if limit <= 0 {
		return nil, nil
	}
	count := i.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	results, err := i.collection.Query(ctx, text, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		if r.Similarity < threshold {
			continue
		}
		matches = append(matches, Match{ProjectID: r.ID, Similarity: r.Similarity})
	}
	return matches, nil
}

// Count returns the number of indexed projects.
func (i *Index) Count() int {
	return i.collection.Count()
}
