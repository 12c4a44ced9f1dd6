package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/portfolio/internal/domain"
	"github.com/ashureev/portfolio/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db         *sql.DB
	maxRetries int
	baseDelay  time.Duration
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	return newSQLiteStore(dbPath)
}

func newSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Pragmas are applied to every pooled connection.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, maxRetries: 3, baseDelay: 50 * time.Millisecond}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		tech_stack TEXT NOT NULL DEFAULT '[]',
		live_link TEXT,
		repo_link TEXT,
		content TEXT NOT NULL,
		code_snippets TEXT NOT NULL DEFAULT '[]',
		is_featured INTEGER NOT NULL DEFAULT 0,
		embedding TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_projects_created ON projects(created_at);
	CREATE INDEX IF NOT EXISTS idx_projects_featured ON projects(is_featured) WHERE is_featured = 1;

	CREATE TABLE IF NOT EXISTS usage_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		record_count INTEGER NOT NULL,
		approx_size_kb INTEGER NOT NULL,
		sampled_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

const projectColumns = `id, title, description, tech_stack, live_link, repo_link,
	content, code_snippets, is_featured, embedding IS NOT NULL, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*domain.Project, error) {
	var p domain.Project
	var techStack, snippets string
	var liveLink, repoLink sql.NullString
	var createdAt, updatedAt int64

	if err := row.Scan(
		&p.ID, &p.Title, &p.Description, &techStack, &liveLink, &repoLink,
		&p.Content, &snippets, &p.IsFeatured, &p.HasEmbedding, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(techStack), &p.TechStack); err != nil {
		return nil, fmt.Errorf("decode tech_stack: %w", err)
	}
	if err := json.Unmarshal([]byte(snippets), &p.CodeSnippets); err != nil {
		return nil, fmt.Errorf("decode code_snippets: %w", err)
	}
	p.LiveLink = liveLink.String
	p.RepoLink = repoLink.String
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}

// ListProjects returns projects ordered newest first.
func (s *SQLiteStore) ListProjects(ctx context.Context, opts domain.ListOptions) ([]*domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	var args []any
	if opts.FeaturedOnly {
		query += ` WHERE is_featured = 1`
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close project rows", "error", closeErr)
		}
	}()

	projects := make([]*domain.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project row: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

// GetProject retrieves a project by ID.
func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}
	return p, nil
}

// CreateProject inserts a new project.
func (s *SQLiteStore) CreateProject(ctx context.Context, p *domain.Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	techStack, snippets, err := encodeLists(p)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO projects (id, title, description, tech_stack, live_link, repo_link,
		content, code_snippets, is_featured, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return s.withRetry(ctx, "create project", func() error {
		_, err := s.db.ExecContext(ctx, query,
			p.ID, p.Title, p.Description, techStack, nullable(p.LiveLink), nullable(p.RepoLink),
			p.Content, snippets, p.IsFeatured, p.CreatedAt.Unix(), p.UpdatedAt.Unix(),
		)
		return err
	})
}

// UpdateProject replaces the editable fields of an existing project.
func (s *SQLiteStore) UpdateProject(ctx context.Context, p *domain.Project) error {
	techStack, snippets, err := encodeLists(p)
	if err != nil {
		return err
	}
	p.UpdatedAt = time.Now()

	query := `
	UPDATE projects SET title = ?, description = ?, tech_stack = ?, live_link = ?, repo_link = ?,
		content = ?, code_snippets = ?, is_featured = ?, updated_at = ?
	WHERE id = ?`

	var rows int64
	err = s.withRetry(ctx, "update project", func() error {
		result, err := s.db.ExecContext(ctx, query,
			p.Title, p.Description, techStack, nullable(p.LiveLink), nullable(p.RepoLink),
			p.Content, snippets, p.IsFeatured, p.UpdatedAt.Unix(), p.ID,
		)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteProject removes a project.
func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) error {
	return s.withRetry(ctx, "delete project", func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
		return err
	})
}

// UpdateEmbedding stores the embedding vector for a project.
func (s *SQLiteStore) UpdateEmbedding(ctx context.Context, id string, vector []float32) error {
	data, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}

	var rows int64
	err = s.withRetry(ctx, "update embedding", func() error {
		result, err := s.db.ExecContext(ctx,
			`UPDATE projects SET embedding = ?, updated_at = ? WHERE id = ?`,
			string(data), time.Now().Unix(), id)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListEmbeddings returns every project that has a stored embedding.
func (s *SQLiteStore) ListEmbeddings(ctx context.Context) ([]domain.ProjectEmbedding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, content, embedding FROM projects WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close embedding rows", "error", closeErr)
		}
	}()

	var out []domain.ProjectEmbedding
	for rows.Next() {
		var p domain.Project
		var raw string
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.Content, &raw); err != nil {
			return nil, fmt.Errorf("scan embedding row: %w", err)
		}
		var vec []float32
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			slog.Warn("skipping project with unreadable embedding", "project_id", p.ID, "error", err)
			continue
		}
		out = append(out, domain.ProjectEmbedding{ProjectID: p.ID, Text: p.EmbeddingText(), Vector: vec})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return out, nil
}

// ProjectStats returns record count and approximate embedding storage size.
func (s *SQLiteStore) ProjectStats(ctx context.Context) (domain.ProjectStats, error) {
	var stats domain.ProjectStats
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(embedding)), 0) FROM projects`)
	if err := row.Scan(&stats.RecordCount, &stats.EmbeddingBytes); err != nil {
		return stats, fmt.Errorf("scan project stats: %w", err)
	}
	return stats, nil
}

// InsertUsageSample records a usage measurement.
func (s *SQLiteStore) InsertUsageSample(ctx context.Context, sample *domain.UsageSample) error {
	if sample.SampledAt.IsZero() {
		sample.SampledAt = time.Now()
	}
	return s.withRetry(ctx, "insert usage sample", func() error {
		result, err := s.db.ExecContext(ctx,
			`INSERT INTO usage_samples (record_count, approx_size_kb, sampled_at) VALUES (?, ?, ?)`,
			sample.RecordCount, sample.ApproxSizeKB, sample.SampledAt.Unix())
		if err != nil {
			return err
		}
		sample.ID, err = result.LastInsertId()
		return err
	})
}

// ListUsageSamples returns the newest samples first.
func (s *SQLiteStore) ListUsageSamples(ctx context.Context, limit int) ([]*domain.UsageSample, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, record_count, approx_size_kb, sampled_at FROM usage_samples ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query usage samples: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close usage rows", "error", closeErr)
		}
	}()

	samples := make([]*domain.UsageSample, 0)
	for rows.Next() {
		var u domain.UsageSample
		var sampledAt int64
		if err := rows.Scan(&u.ID, &u.RecordCount, &u.ApproxSizeKB, &sampledAt); err != nil {
			return nil, fmt.Errorf("scan usage sample: %w", err)
		}
		u.SampledAt = time.Unix(sampledAt, 0)
		samples = append(samples, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage samples: %w", err)
	}
	return samples, nil
}

// TrimUsageSamples keeps the newest keep samples.
func (s *SQLiteStore) TrimUsageSamples(ctx context.Context, keep int) (int64, error) {
	var deleted int64
	err := s.withRetry(ctx, "trim usage samples", func() error {
		result, err := s.db.ExecContext(ctx, `
			DELETE FROM usage_samples WHERE id NOT IN (
				SELECT id FROM usage_samples ORDER BY id DESC LIMIT ?
			)`, keep)
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted, err
}

// withRetry runs op, retrying with exponential backoff on SQLITE_BUSY errors.
func (s *SQLiteStore) withRetry(ctx context.Context, what string, op func() error) error {
	var err error
	for i := 0; i < s.maxRetries; i++ {
		err = op()
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || i == s.maxRetries-1 {
			break
		}

		delay := s.baseDelay * time.Duration(1<<i) // 50ms, 100ms, 200ms
		slog.Debug("Database locked, retrying", "op", what, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", what, ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

func encodeLists(p *domain.Project) (string, string, error) {
	techStack := p.TechStack
	if techStack == nil {
		techStack = []string{}
	}
	snippets := p.CodeSnippets
	if snippets == nil {
		snippets = []string{}
	}
	ts, err := json.Marshal(techStack)
	if err != nil {
		return "", "", fmt.Errorf("encode tech_stack: %w", err)
	}
	cs, err := json.Marshal(snippets)
	if err != nil {
		return "", "", fmt.Errorf("encode code_snippets: %w", err)
	}
	return string(ts), string(cs), nil
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
