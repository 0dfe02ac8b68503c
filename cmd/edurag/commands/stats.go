package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edurag/edurag-go/internal/logging"
)

// NewStatsCmd constructs the `edurag stats` command, which prints usage
// counters and the current state of the vector index.
func NewStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show usage counters and vector index state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			svcs, err := buildServices(ctx, log)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			defer svcs.close()

			stats, err := svcs.orch.Stats(ctx)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}

			docs, err := svcs.docs.CountDocuments(ctx)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}

			fmt.Printf("index backend:   %s\n", stats.Index.Backend)
			fmt.Printf("collections:     %d\n", stats.Index.TotalCollections)
			fmt.Printf("points:          %d\n", stats.Index.TotalPoints)
			for _, c := range stats.Index.PerCollection {
				fmt.Printf("  %s: %d points, %d dims, %s\n",
					c.Name, c.PointCount, c.VectorSize, c.DistanceMetric)
			}
			fmt.Printf("documents:       %d\n", docs)
			fmt.Printf("this process:    %d ingested, %d chunks, %d searches\n",
				stats.Usage.DocumentsProcessed, stats.Usage.ChunksGenerated,
				stats.Usage.SearchesPerformed)
			return nil
		},
	}
}
