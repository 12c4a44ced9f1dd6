package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ashureev/portfolio/internal/ai"
	"github.com/ashureev/portfolio/internal/api"
	"github.com/ashureev/portfolio/internal/catalog"
	"github.com/ashureev/portfolio/internal/config"
	"github.com/ashureev/portfolio/internal/metrics"
	"github.com/ashureev/portfolio/internal/search"
	"github.com/ashureev/portfolio/internal/store"
)

// app holds the dependencies shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	repo    store.Repository
	metrics *metrics.Metrics
	model   ai.Model
	prober  api.ModelProber
	catalog *catalog.Catalog
	gateway *ai.Gateway
}

// newApp opens the database and builds the catalog and AI gateway. Without a
// model API key the gateway runs against ai.DisabledModel.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	if err := repo.Ping(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("database health check: %w", err)
	}
	logger.Info("Database connected", "path", cfg.DBPath)

	m, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, repo: repo, metrics: m, model: ai.DisabledModel{}}

	var docEmbedder catalog.Embedder
	queryEmbed := search.EmbedFunc(ai.DisabledModel{}.Embed)
	if cfg.AIEnabled() {
		client, err := ai.NewGeminiClient(ai.GeminiConfig{
			APIKey:         cfg.AI.APIKey,
			BaseURL:        cfg.AI.BaseURL,
			Model:          cfg.AI.Model,
			EmbeddingModel: cfg.AI.EmbeddingModel,
		}, logger)
		if err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("initialize model client: %w", err)
		}
		cached, err := ai.NewCachedEmbedder(client, cfg.Search.EmbeddingCacheSize)
		if err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("initialize embedding cache: %w", err)
		}
		a.model = client
		a.prober = client
		docEmbedder = client
		queryEmbed = cached.Embed
		logger.Info("AI features enabled", "model", cfg.AI.Model, "embedding_model", cfg.AI.EmbeddingModel)
	} else {
		logger.Info("AI features disabled (GEMINI_API_KEY not set)")
	}

	index, err := search.NewIndex(queryEmbed)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("initialize similarity index: %w", err)
	}
	a.catalog = catalog.New(repo, index, docEmbedder, catalog.Options{
		EmbedTimeout: cfg.AI.EmbedTimeout,
		Observer:     m,
	}, logger)

	a.gateway = ai.NewGateway(a.model, a.catalog, ai.GatewayConfig{
		Threshold: cfg.Search.Threshold,
		Limit:     cfg.Search.Limit,
		Observer:  m,
	}, logger)

	return a, nil
}

// Close releases the database.
func (a *app) Close() {
	if err := a.repo.Close(); err != nil {
		a.logger.Error("Failed to close repository", "error", err)
	}
}
