package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/factlens/internal/ingest"
)

var (
	ingestFollow  int
	ingestTimeout time.Duration
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest <url|file>...",
	Short: "Add evidence passages to the corpus",
	Long: `Ingest fetches web pages or reads local files, splits them into passages,
embeds the passages and stores them for retrieval.

Local files ending in .jsonl hold one passage per line:
  {"id": "...", "content": "...", "source_url": "...", "created_at": "..."}
Any other file is read as plain text.

Example:
  factlens ingest https://en.wikipedia.org/wiki/Eiffel_Tower
  factlens ingest --follow 5 https://example.com/report
  factlens ingest --tenant acme notes.txt evidence.jsonl`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().IntVar(&ingestFollow, "follow", 0, "also ingest up to N external pages linked from each URL")
	ingestCmd.Flags().DurationVar(&ingestTimeout, "timeout", 10*time.Minute, "total timeout for ingestion")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), ingestTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app, err := NewApp(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	var failed int
	for _, src := range args {
		var (
			report *ingest.Report
			err    error
		)
		if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
			report, err = app.Ingester.IngestURL(ctx, tenantID, src, ingestFollow)
		} else {
			report, err = app.Ingester.IngestFile(ctx, tenantID, src)
		}
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", src, err)
			continue
		}
		fmt.Fprintf(os.Stderr, "✓ %s: %d passages (%d embedded", src, report.Passages, report.Embedded)
		if report.Links > 0 {
			fmt.Fprintf(os.Stderr, ", %d linked pages", report.Links)
		}
		fmt.Fprintf(os.Stderr, ") in %v\n", report.Duration.Round(time.Millisecond))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d sources failed", failed, len(args))
	}
	return nil
}
