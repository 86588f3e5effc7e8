package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/factlens/internal/extract"
	"github.com/ppiankov/factlens/internal/ingest"
	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/worker"
)

var (
	concurrency  int
	batchOutput  string
	batchTimeout time.Duration
	batchFromURL bool
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file|url>",
	Short: "Verify many claims in parallel",
	Long: `Batch verifies claims concurrently:
- Read claims from a file (one per line, # comments, duplicates skipped)
- Or, with --from-url, extract candidate claims from a web page
- Verify claims in parallel with a configurable worker count
- Write all results as one JSON document

Example:
  factlens batch claims.txt
  factlens batch claims.txt --concurrency 8 --output results.json
  factlens batch --from-url https://en.wikipedia.org/wiki/Laksa`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent workers")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "write results as JSON to this path (- for stdout)")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for the batch")
	batchCmd.Flags().BoolVar(&batchFromURL, "from-url", false, "treat the argument as a URL and extract claims from the page")
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
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

	var claims []string
	if batchFromURL {
		claims, err = claimsFromURL(ctx, cfg, args[0])
	} else {
		claims, err = worker.ReadClaimsFromFile(args[0])
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  factlens batch verification\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input:    %s\n", args[0])
	fmt.Fprintf(os.Stderr, "  Claims:   %d\n", len(claims))
	fmt.Fprintf(os.Stderr, "  Workers:  %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Tenant:   %s\n", tenantID)
	fmt.Fprintf(os.Stderr, "\n")

	verifier := worker.NewBatchVerifier(func(ctx context.Context, claim string) (*model.VerificationResult, error) {
		return app.Pipeline.Verify(ctx, tenantID, claim)
	}, concurrency)
	results := verifier.ProcessClaims(ctx, claims)

	counts := map[model.Verdict]int{}
	failures := 0
	for _, r := range results {
		if r.Error != nil {
			failures++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", snippet(r.Claim, 60), r.Error)
			continue
		}
		counts[r.Result.Verdict]++
		fmt.Fprintf(os.Stderr, "✓ %-12s %.2f  %s\n", r.Result.Verdict, r.Result.Confidence, snippet(r.Claim, 60))
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Supported:     %d\n", counts[model.VerdictSupported])
	fmt.Fprintf(os.Stderr, "  Refuted:       %d\n", counts[model.VerdictRefuted])
	fmt.Fprintf(os.Stderr, "  Insufficient:  %d\n", counts[model.VerdictInsufficient])
	fmt.Fprintf(os.Stderr, "  Failures:      %d\n", failures)
	fmt.Fprintf(os.Stderr, "\n")

	if batchOutput != "" {
		return writeJSON(batchOutput, results)
	}
	return nil
}

// claimsFromURL fetches a page and returns its candidate claims
func claimsFromURL(ctx context.Context, cfg model.Config, rawURL string) ([]string, error) {
	fetcher := ingest.NewFetcher(ingest.FetcherConfig{
		Timeout:       cfg.Ingest.Timeout,
		UserAgent:     cfg.Ingest.UserAgent,
		MaxBodyBytes:  cfg.Ingest.MaxBodyBytes,
		RespectRobots: cfg.Ingest.RespectRobots,
		HTTPProxy:     cfg.Ingest.HTTPProxy,
		HTTPSProxy:    cfg.Ingest.HTTPSProxy,
		NoProxy:       cfg.Ingest.NoProxy,
	}, nil, slog.Default())

	page, err := fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	found, err := extract.NewClaimExtractor().Extract(page.HTML, tenantID)
	if err != nil {
		return nil, fmt.Errorf("extract claims: %w", err)
	}
	claims := make([]string, len(found))
	for i, c := range found {
		claims[i] = c.Text
	}
	return claims, nil
}
