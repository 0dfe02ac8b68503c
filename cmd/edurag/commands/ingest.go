package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edurag/edurag-go/internal/chunker"
	"github.com/edurag/edurag-go/internal/logging"
	"github.com/edurag/edurag-go/internal/rag"
)

// NewIngestCmd constructs the `edurag ingest` command, which runs local
// files through the full pipeline: extraction, analysis, chunking,
// embedding, and indexing.
func NewIngestCmd() *cobra.Command {
	var subjectID string
	var topicID string
	var subtopicID string
	var uploaderID string

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Ingest documents into the vector index",
		Long: `Process one or more local documents (PDF or plain text) and index their
chunks for retrieval.

Every document is classified by subject and topic; these become the filter
keys for later searches. Re-ingesting the same content under a new run
creates a new document with fresh chunk points.

Examples:
  edurag ingest --subject biology --topic cells lesson1.pdf lesson2.pdf
  edurag ingest --subject math --topic algebra --subtopic equations notes.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if subjectID == "" || topicID == "" {
				return fmt.Errorf("ingest: --subject and --topic are required")
			}

			svcs, err := buildServices(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer svcs.close()

			eduCtx := chunker.Context{
				SubjectID:  subjectID,
				TopicID:    topicID,
				SubtopicID: subtopicID,
				UploaderID: uploaderID,
			}

			var failed int
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					log.Error("ingest: read failed", slog.String("file", path), slog.Any("error", err))
					failed++
					continue
				}

				result, err := svcs.orch.ProcessDocument(ctx, rag.IngestInput{
					Data:      data,
					Filename:  filepath.Base(path),
					MediaType: mediaTypeFor(path),
					Context:   eduCtx,
				})
				if err != nil {
					log.Error("ingest: pipeline failed", slog.String("file", path), slog.Any("error", err))
					failed++
					continue
				}

				fmt.Printf("%s: document %s, %d chunks, %d pages, quality %s (%d ms)\n",
					filepath.Base(path), result.DocumentID, result.Chunks,
					result.Pages, result.Quality, result.ProcessingTimeMs)
			}

			if failed > 0 {
				return fmt.Errorf("ingest: %d of %d documents failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&subjectID, "subject", "s", "", "Subject the documents belong to (required)")
	cmd.Flags().StringVarP(&topicID, "topic", "t", "", "Topic within the subject (required)")
	cmd.Flags().StringVar(&subtopicID, "subtopic", "", "Optional subtopic")
	cmd.Flags().StringVar(&uploaderID, "uploader", "", "Optional uploader identifier")

	return cmd
}

// mediaTypeFor derives the declared MIME type from the file extension.
// Unknown extensions are treated as plain text and left to validation.
func mediaTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	default:
		return "text/plain"
	}
}
