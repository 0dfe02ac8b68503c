// Package commands defines all Cobra CLI commands for the edurag binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/edurag/edurag-go/internal/audit"
	"github.com/edurag/edurag-go/internal/config"
	"github.com/edurag/edurag-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "edurag",
		Short: "edurag: retrieval service for educational documents",
		Long: `edurag ingests educational documents (PDF and plain text), splits them
into semantically coherent chunks, embeds the chunks, and serves filtered
similarity search over the result.

The embedding backend (Ollama or a TF-IDF fallback) and the vector index
(Qdrant or Postgres/pgvector) are selected via environment variables or a
YAML config file (~/.edurag/config.yaml).
See 'edurag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.edurag/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewSearchCmd(),
		NewStatsCmd(),
		NewVersionCmd(),
	)

	return root
}
