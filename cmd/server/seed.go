package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ashureev/portfolio/internal/catalog"
	"github.com/ashureev/portfolio/internal/domain"
)

var (
	seedFile  string
	seedEmbed bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load projects from a YAML file",
	Long: `Create the projects listed in a YAML file:

  projects:
    - title: Witty
      description: Portfolio chat cat
      tech_stack: [Go, SQLite]
      content: |
        # Witty
      is_featured: true

With --embed the embedding of each new project is generated as well.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "projects.yaml", "YAML file to load")
	seedCmd.Flags().BoolVar(&seedEmbed, "embed", false, "generate embeddings for the seeded projects")
}

type seedDocument struct {
	Projects []seedProject `yaml:"projects"`
}

type seedProject struct {
	Title        string   `yaml:"title"`
	Description  string   `yaml:"description"`
	TechStack    []string `yaml:"tech_stack"`
	LiveLink     string   `yaml:"live_link"`
	RepoLink     string   `yaml:"repo_link"`
	Content      string   `yaml:"content"`
	CodeSnippets []string `yaml:"code_snippets"`
	IsFeatured   bool     `yaml:"is_featured"`
}

// parseSeed decodes a seed document and validates every project.
func parseSeed(r io.Reader) ([]*domain.Project, error) {
	var doc seedDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode seed file: %w", err)
	}

	projects := make([]*domain.Project, 0, len(doc.Projects))
	for i, sp := range doc.Projects {
		p := &domain.Project{
			Title:        sp.Title,
			Description:  sp.Description,
			TechStack:    sp.TechStack,
			LiveLink:     sp.LiveLink,
			RepoLink:     sp.RepoLink,
			Content:      sp.Content,
			CodeSnippets: sp.CodeSnippets,
			IsFeatured:   sp.IsFeatured,
		}
		if !p.HasRequiredFields() {
			return nil, fmt.Errorf("project %d (%q): missing required fields", i+1, sp.Title)
		}
		projects = append(projects, p)
	}
	return projects, nil
}

func runSeed(cmd *cobra.Command, _ []string) error {
	f, err := os.Open(seedFile)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	projects, err := parseSeed(f)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, p := range projects {
		if err := a.catalog.CreateProject(ctx, p); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", p.Title, p.ID)

		if !seedEmbed {
			continue
		}
		if err := a.catalog.RegenerateEmbedding(ctx, p.ID); err != nil {
			if errors.Is(err, catalog.ErrEmbeddingsDisabled) {
				logger.Warn("Skipping embeddings, no model configured")
				seedEmbed = false
				continue
			}
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d projects\n", len(projects))
	return nil
}
