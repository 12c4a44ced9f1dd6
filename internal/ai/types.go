// Package ai talks to the hosted generative model and turns visitor
// questions and page context into replies and follow-up suggestions.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ashureev/portfolio/internal/domain"
)

// ErrEmptyResponse is returned when the model answers without usable content.
var ErrEmptyResponse = errors.New("model returned empty response")

// ErrModelDisabled is returned by DisabledModel.
var ErrModelDisabled = errors.New("no model API key configured")

// StatusError is returned for non-2xx responses from the model API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model api returned %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed if sent again.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// CompletionRequest is a single text-generation call.
type CompletionRequest struct {
	System      string
	Turns       []domain.Turn
	Temperature float64
	MaxTokens   int
}

// Model is the hosted text-generation and embedding service.
type Model interface {
	// Complete generates a reply to the given turns.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// Embed returns an embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Embedder produces embedding vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ProjectSource is the project catalog as seen by the gateway.
type ProjectSource interface {
	// SearchProjects returns up to limit projects whose similarity to text is at
	// least threshold, best match first.
	SearchProjects(ctx context.Context, text string, threshold float64, limit int) ([]*domain.Project, error)

	// GetProject returns the project with the given ID.
	GetProject(ctx context.Context, id string) (*domain.Project, error)

	// ListProjects returns projects matching opts.
	ListProjects(ctx context.Context, opts domain.ListOptions) ([]*domain.Project, error)
}

// Observer records gateway call telemetry. A nil Observer is allowed.
type Observer interface {
	ObserveGatewayCall(operation string, duration time.Duration, err error)
}

// DisabledModel stands in for the hosted model when no API key is set. Every
// call fails, so replies fall back and suggestions are skipped.
type DisabledModel struct{}

func (DisabledModel) Complete(context.Context, CompletionRequest) (string, error) {
	return "", ErrModelDisabled
}

func (DisabledModel) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrModelDisabled
}
