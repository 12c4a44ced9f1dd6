package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/portfolio/internal/domain"
	"github.com/ashureev/portfolio/internal/store"
)

// ProjectCatalog is the project storage used by ProjectHandler.
type ProjectCatalog interface {
	ListProjects(ctx context.Context, opts domain.ListOptions) ([]*domain.Project, error)
	GetProject(ctx context.Context, id string) (*domain.Project, error)
	CreateProject(ctx context.Context, p *domain.Project) error
	UpdateProject(ctx context.Context, p *domain.Project) error
	DeleteProject(ctx context.Context, id string) error
}

// Renderer turns project markdown into safe HTML.
type Renderer interface {
	HTML(markdown string) (string, error)
}

// ProjectHandler serves the project catalog.
type ProjectHandler struct {
	catalog  ProjectCatalog
	renderer Renderer
	logger   *slog.Logger
}

// NewProjectHandler creates a ProjectHandler.
func NewProjectHandler(catalog ProjectCatalog, renderer Renderer, logger *slog.Logger) *ProjectHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectHandler{catalog: catalog, renderer: renderer, logger: logger}
}

// RegisterRoutes mounts the project routes. Writes go through admin.
func (h *ProjectHandler) RegisterRoutes(r chi.Router, admin Middleware) {
	r.Route("/api/projects", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Group(func(r chi.Router) {
			r.Use(orPassthrough(admin))
			r.Post("/", h.Create)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
		})
	})
}

type projectRequest struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	TechStack    []string `json:"tech_stack"`
	LiveLink     string   `json:"live_link"`
	RepoLink     string   `json:"repo_link"`
	Content      string   `json:"content"`
	CodeSnippets []string `json:"code_snippets"`
	IsFeatured   bool     `json:"is_featured"`
}

func (req projectRequest) project(id string) *domain.Project {
	return &domain.Project{
		ID:           id,
		Title:        req.Title,
		Description:  req.Description,
		TechStack:    req.TechStack,
		LiveLink:     req.LiveLink,
		RepoLink:     req.RepoLink,
		Content:      req.Content,
		CodeSnippets: req.CodeSnippets,
		IsFeatured:   req.IsFeatured,
	}
}

type projectDetail struct {
	*domain.Project
	ContentHTML string `json:"content_html"`
}

// List returns project summaries, optionally only featured ones.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := domain.ListOptions{FeaturedOnly: r.URL.Query().Get("featured") == "true"}
	projects, err := h.catalog.ListProjects(r.Context(), opts)
	if err != nil {
		h.logger.Error("Failed to list projects", "error", err)
		Error(w, http.StatusInternalServerError, "Error fetching projects")
		return
	}

	summaries := make([]domain.Project, 0, len(projects))
	for _, p := range projects {
		s := *p
		s.Content = ""
		s.CodeSnippets = nil
		summaries = append(summaries, s)
	}
	JSON(w, http.StatusOK, summaries)
}

// Get returns a single project with its content rendered to HTML.
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.catalog.GetProject(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "Project not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to fetch project", "project_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "Error fetching project")
		return
	}

	detail := projectDetail{Project: p}
	if h.renderer != nil {
		html, err := h.renderer.HTML(p.Content)
		if err != nil {
			h.logger.Warn("Failed to render project content", "project_id", id, "error", err)
		}
		detail.ContentHTML = html
	}
	JSON(w, http.StatusOK, detail)
}

// Create adds a project.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p := req.project("")
	if !p.HasRequiredFields() {
		Error(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if err := h.catalog.CreateProject(r.Context(), p); err != nil {
		h.logger.Error("Failed to create project", "error", err)
		Error(w, http.StatusInternalServerError, "Error creating project")
		return
	}
	h.logger.Info("Project created", "project_id", p.ID)
	JSON(w, http.StatusCreated, p)
}

// Update replaces a project's editable fields.
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req projectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p := req.project(id)
	if !p.HasRequiredFields() {
		Error(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	err := h.catalog.UpdateProject(r.Context(), p)
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "Project not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to update project", "project_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "Error updating project")
		return
	}

	updated, err := h.catalog.GetProject(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to reload project", "project_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "Error updating project")
		return
	}
	JSON(w, http.StatusOK, updated)
}

// Delete removes a project.
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.catalog.GetProject(r.Context(), id); errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "Project not found")
		return
	} else if err != nil {
		h.logger.Error("Failed to fetch project", "project_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "Error deleting project")
		return
	}
	if err := h.catalog.DeleteProject(r.Context(), id); err != nil {
		h.logger.Error("Failed to delete project", "project_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "Error deleting project")
		return
	}
	h.logger.Info("Project deleted", "project_id", id)
	w.WriteHeader(http.StatusNoContent)
}
