package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/portfolio/internal/domain"
)

// maxErrorBody caps how much of a failed response body is kept in StatusError.
const maxErrorBody = 512

// GeminiConfig configures the hosted Gemini REST client.
type GeminiConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	MaxRetries     int
	RetryBaseDelay time.Duration
	HTTPClient     *http.Client
}

// GeminiClient implements Model against the Gemini generateContent and
// embedContent endpoints.
type GeminiClient struct {
	cfg        GeminiConfig
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Model = (*GeminiClient)(nil)

// NewGeminiClient creates a client. It performs no network I/O.
func NewGeminiClient(cfg GeminiConfig, logger *slog.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-pro"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-004"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 200 * time.Millisecond
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiClient{cfg: cfg, httpClient: httpClient, logger: logger}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	Contents          []geminiContent  `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type embedRequest struct {
	Model   string        `json:"model"`
	Content geminiContent `json:"content"`
}

type embedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// Complete requests a text completion for the given turns.
func (c *GeminiClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if len(req.Turns) == 0 {
		return "", errors.New("completion request has no turns")
	}

	body := generateRequest{
		Contents: make([]geminiContent, 0, len(req.Turns)),
		GenerationConfig: generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	for _, t := range req.Turns {
		role := "user"
		if t.Role == domain.RoleAssistant {
			role = "model"
		}
		body.Contents = append(body.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: t.Text}}})
	}

	var resp generateResponse
	if err := c.post(ctx, "models/"+c.cfg.Model+":generateContent", body, &resp); err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	if resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked (%s)", ErrEmptyResponse, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

// Embed returns the embedding vector for text.
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	body := embedRequest{
		Model:   "models/" + c.cfg.EmbeddingModel,
		Content: geminiContent{Parts: []geminiPart{{Text: text}}},
	}
	var resp embedResponse
	if err := c.post(ctx, "models/"+c.cfg.EmbeddingModel+":embedContent", body, &resp); err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if len(resp.Embedding.Values) == 0 {
		return nil, ErrEmptyResponse
	}
	return resp.Embedding.Values, nil
}

// Probe sends a tiny prompt to verify the model answers.
func (c *GeminiClient) Probe(ctx context.Context) (string, error) {
	return c.Complete(ctx, CompletionRequest{
		Turns:       []domain.Turn{{Role: domain.RoleUser, Text: "Hello, are you working?"}},
		Temperature: 0.7,
		MaxTokens:   50,
	})
}

// post sends body as JSON and decodes the response into out, retrying
// rate-limit and server errors with exponential backoff.
func (c *GeminiClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.cfg.RetryBaseDelay * time.Duration(1<<(attempt-1))
			c.logger.Debug("Retrying Gemini request", "path", path, "attempt", attempt+1, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = c.doPost(ctx, path, payload, out)
		if lastErr == nil {
			return nil
		}
		var statusErr *StatusError
		if !errors.As(lastErr, &statusErr) || !statusErr.Retryable() {
			return lastErr
		}
	}
	return lastErr
}

func (c *GeminiClient) doPost(ctx context.Context, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/"+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close Gemini response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
