package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/edurag/edurag-go/internal/logging"
	"github.com/edurag/edurag-go/internal/server"
)

// NewServeCmd constructs the `edurag serve` command, which starts the HTTP
// API over the document pipeline.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the edurag HTTP API server",
		Long: `Start the edurag HTTP server.

The server exposes document ingest, filtered similarity search,
similar-document discovery, deletion, and stats under /api, protected by
Bearer token authentication (EDURAG_API_KEY) and per-IP rate limiting.
Liveness, readiness, and Prometheus metrics endpoints stay open.

Examples:
  edurag serve
  edurag serve --port 9090
  INDEX_BACKEND=pgvector POSTGRES_DSN=postgres://... edurag serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			svcs, err := buildServices(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer svcs.close()

			if cmd.Flags().Changed("host") || svcs.cfg.Server.Host == "" {
				svcs.cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") || svcs.cfg.Server.Port == 0 {
				svcs.cfg.Server.Port = port
			}

			srv, err := server.New(svcs.orch, &server.Config{
				Host:      svcs.cfg.Server.Host,
				Port:      svcs.cfg.Server.Port,
				Logger:    log,
				APIKey:    svcs.cfg.Server.APIKey,
				RateLimit: svcs.cfg.Server.RateLimit,
				RateBurst: svcs.cfg.Server.RateBurst,
				Pingers: []server.Pinger{
					server.NewIndexPinger(svcs.index),
					server.NewEmbedderPinger(svcs.backend),
				},
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
