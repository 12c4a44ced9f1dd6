package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashureev/portfolio/internal/monitor"
)

var embeddingProjectID string

var embeddingsCmd = &cobra.Command{
	Use:   "embeddings",
	Short: "Regenerate project embeddings",
	Long: `Regenerate the embedding of every project, or of a single project
with --project. Requires GEMINI_API_KEY.`,
	RunE: runEmbeddings,
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Record one usage sample and print it",
	RunE:  runUsage,
}

func init() {
	embeddingsCmd.Flags().StringVar(&embeddingProjectID, "project", "", "regenerate only this project ID")
}

func runEmbeddings(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if embeddingProjectID != "" {
		if err := a.catalog.RegenerateEmbedding(ctx, embeddingProjectID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Embedding generated for project %s\n", embeddingProjectID)
		return nil
	}

	n, err := a.catalog.RegenerateAllEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("regenerated %d embeddings before failing: %w", n, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Embeddings generated for %d projects\n", n)
	return nil
}

func runUsage(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	sample, err := monitor.SampleOnce(ctx, a.repo, a.metrics)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Date:          %s\n", sample.SampledAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Database size: ~%d KB\n", sample.ApproxSizeKB)
	fmt.Fprintf(out, "Record count:  %d\n", sample.RecordCount)
	return nil
}
