// Package domain contains core domain types for the portfolio server.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Project is a portfolio catalog entry.
type Project struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	TechStack    []string  `json:"tech_stack"`
	LiveLink     string    `json:"live_link,omitempty"`
	RepoLink     string    `json:"repo_link,omitempty"`
	Content      string    `json:"content,omitempty"`
	CodeSnippets []string  `json:"code_snippets,omitempty"`
	IsFeatured   bool      `json:"is_featured"`
	HasEmbedding bool      `json:"has_embedding"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasRequiredFields reports whether the fields needed to publish a project are set.
func (p *Project) HasRequiredFields() bool {
	return strings.TrimSpace(p.Title) != "" &&
		strings.TrimSpace(p.Description) != "" &&
		len(p.TechStack) > 0 &&
		strings.TrimSpace(p.Content) != ""
}

// EmbeddingText returns the text that represents the project in the similarity index.
func (p *Project) EmbeddingText() string {
	return fmt.Sprintf("Title: %s\nDescription: %s\nContent: %s", p.Title, p.Description, p.Content)
}

// ProjectEmbedding pairs a project with its stored embedding vector.
type ProjectEmbedding struct {
	ProjectID string
	Text      string
	Vector    []float32
}

// ListOptions filters project listings.
type ListOptions struct {
	FeaturedOnly bool
	Limit        int
}

// ProjectStats summarizes catalog size for usage monitoring.
type ProjectStats struct {
	RecordCount    int64
	EmbeddingBytes int64
}
