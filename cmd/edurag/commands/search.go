package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edurag/edurag-go/internal/logging"
	"github.com/edurag/edurag-go/internal/rag"
	"github.com/edurag/edurag-go/internal/vectorindex"
)

// NewSearchCmd constructs the `edurag search` command, which runs one
// retrieval query against the vector index and prints the ranked results.
func NewSearchCmd() *cobra.Command {
	var subjectID string
	var topicID string
	var subtopicID string
	var documentID string
	var limit int
	var threshold float64

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed documents",
		Long: `Embed the query, retrieve the most similar chunks under the given
filters, re-rank them with structural heuristics, and print the results.

Examples:
  edurag search "photosynthesis light reactions"
  edurag search --subject biology --topic cells "mitochondria function"
  edurag search --limit 3 --threshold 0.3 "quadratic formula"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			svcs, err := buildServices(ctx, log)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer svcs.close()

			resp, err := svcs.orch.Search(ctx, rag.SearchRequest{
				Query: strings.Join(args, " "),
				Filter: vectorindex.Filter{
					SubjectID:  subjectID,
					TopicID:    topicID,
					SubtopicID: subtopicID,
					DocumentID: documentID,
				},
				Limit:     limit,
				Threshold: threshold,
			})
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if len(resp.Results) == 0 {
				fmt.Println("no results")
				return nil
			}

			for i, r := range resp.Results {
				header := fmt.Sprintf("%d. [%.3f] document %s, chunk %d", i+1, r.RerankedScore, r.DocumentID, r.ChunkIndex)
				if r.SectionTitle != "" {
					header += fmt.Sprintf(" (%s)", r.SectionTitle)
				}
				fmt.Println(header)
				fmt.Println("   " + strings.ReplaceAll(strings.TrimSpace(r.Text), "\n", "\n   "))
			}
			fmt.Printf("\n%d of %d candidates returned in %d ms\n",
				resp.Stats.Returned, resp.Stats.TotalFound, resp.Stats.SearchTimeMs)
			return nil
		},
	}

	cmd.Flags().StringVarP(&subjectID, "subject", "s", "", "Restrict to a subject")
	cmd.Flags().StringVarP(&topicID, "topic", "t", "", "Restrict to a topic")
	cmd.Flags().StringVar(&subtopicID, "subtopic", "", "Restrict to a subtopic")
	cmd.Flags().StringVar(&documentID, "document", "", "Restrict to one document")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum results (default from config)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Minimum similarity (default from config)")

	return cmd
}
