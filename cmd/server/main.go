// Portfolio server: project catalog API and the Witty chat assistant.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashureev/portfolio/internal/config"
	"github.com/ashureev/portfolio/internal/logging"
)

var (
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Portfolio API and chat assistant server",
	Long: `Serves the portfolio project catalog, the request/response chat
endpoint and the WebSocket chat widget with proactive suggestions.

Running without a subcommand starts the server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if err := godotenv.Load(); err != nil {
			slog.Info("No .env file found, using environment variables")
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		logger, logCloser = logging.New(cfg.Log)
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, embeddingsCmd, usageCmd, seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
