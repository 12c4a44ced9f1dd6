package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ashureev/portfolio/internal/ai"
	"github.com/ashureev/portfolio/internal/catalog"
	"github.com/ashureev/portfolio/internal/domain"
	"github.com/ashureev/portfolio/internal/identity"
	"github.com/ashureev/portfolio/internal/store"
)

// ReplyGenerator answers a visitor query given prior turns.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, query string, history []domain.Turn, page *domain.PageContext) (string, error)
}

// EmbeddingRegenerator rebuilds project embeddings.
type EmbeddingRegenerator interface {
	RegenerateEmbedding(ctx context.Context, id string) error
	RegenerateAllEmbeddings(ctx context.Context) (int, error)
}

// ChatOptions tune ChatHandler.
type ChatOptions struct {
	HistoryLimit int
	Sessions     int
	ReplyTimeout time.Duration
}

// ChatHandler serves the request/response chat endpoint and embedding
// maintenance.
type ChatHandler struct {
	gateway    ReplyGenerator
	embeddings EmbeddingRegenerator
	sessions   *lru.Cache[string, []domain.Turn]
	opts       ChatOptions
	logger     *slog.Logger
}

// NewChatHandler creates a ChatHandler. History of the least recently used
// sessions is evicted beyond opts.Sessions.
func NewChatHandler(gateway ReplyGenerator, embeddings EmbeddingRegenerator, opts ChatOptions, logger *slog.Logger) (*ChatHandler, error) {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 10
	}
	if opts.Sessions <= 0 {
		opts.Sessions = 1000
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	sessions, err := lru.New[string, []domain.Turn](opts.Sessions)
	if err != nil {
		return nil, fmt.Errorf("create chat session cache: %w", err)
	}
	return &ChatHandler{gateway: gateway, embeddings: embeddings, sessions: sessions, opts: opts, logger: logger}, nil
}

// RegisterRoutes mounts the chat routes. limit guards the chat endpoint and
// admin guards embedding maintenance.
func (h *ChatHandler) RegisterRoutes(r chi.Router, limit, admin Middleware) {
	r.With(orPassthrough(limit)).Post("/api/chat", h.Chat)
	r.Group(func(r chi.Router) {
		r.Use(orPassthrough(admin))
		r.Post("/api/chat/embeddings", h.RegenerateAll)
		r.Post("/api/chat/embeddings/{id}", h.RegenerateOne)
	})
}

type chatRequest struct {
	Message   string              `json:"message"`
	SessionID string              `json:"sessionId"`
	Context   *domain.PageContext `json:"context,omitempty"`
}

type chatResponse struct {
	Response string `json:"response"`
}

// Chat answers one message and records it in the session history.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		Error(w, http.StatusBadRequest, "Message is required")
		return
	}

	key := h.sessionKey(r.Context(), req.SessionID)
	history, _ := h.sessions.Get(key)
	history = domain.AppendTurn(history, domain.Turn{Role: domain.RoleUser, Text: message}, h.opts.HistoryLimit)

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.ReplyTimeout)
	defer cancel()
	reply, err := h.gateway.GenerateReply(ctx, message, history, req.Context)
	if err != nil {
		if ai.IsTimeout(err) {
			h.logger.Warn("Chat reply timed out", "session", key, "timeout", h.opts.ReplyTimeout)
		} else {
			h.logger.Error("Failed to generate chat reply", "session", key, "error", err)
		}
		h.sessions.Add(key, history)
		JSON(w, http.StatusOK, chatResponse{Response: ai.FallbackReply})
		return
	}

	history = domain.AppendTurn(history, domain.Turn{Role: domain.RoleAssistant, Text: reply}, h.opts.HistoryLimit)
	h.sessions.Add(key, history)
	JSON(w, http.StatusOK, chatResponse{Response: reply})
}

// sessionKey scopes an explicit session id to the calling visitor so one
// visitor cannot read another's history.
func (h *ChatHandler) sessionKey(ctx context.Context, sessionID string) string {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return identity.ConversationKey(ctx)
	}
	return identity.VisitorIDFromContext(ctx) + ":" + sessionID
}

// RegenerateAll rebuilds every project embedding.
func (h *ChatHandler) RegenerateAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.embeddings.RegenerateAllEmbeddings(r.Context())
	if err != nil {
		h.logger.Error("Failed to regenerate embeddings", "completed", n, "error", err)
		Error(w, embeddingErrorStatus(err), "Error generating embeddings")
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"message": "Embeddings generated successfully for all projects",
		"count":   n,
	})
}

// RegenerateOne rebuilds the embedding of a single project.
func (h *ChatHandler) RegenerateOne(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.embeddings.RegenerateEmbedding(r.Context(), id); err != nil {
		h.logger.Error("Failed to regenerate embedding", "project_id", id, "error", err)
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "Project not found")
			return
		}
		Error(w, embeddingErrorStatus(err), "Error generating embedding")
		return
	}
	JSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Embedding generated successfully for project %s", id),
	})
}

func embeddingErrorStatus(err error) int {
	if errors.Is(err, catalog.ErrEmbeddingsDisabled) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
