package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	verifyJSON     string
	verifyTopK     int
	verifyNoCache  bool
	verifyNoStore  bool
	verifySource   string
	verifyEvidence int
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify <claim>",
	Short: "Verify a single claim against the evidence corpus",
	Long: `Verify embeds the claim, retrieves matching evidence passages, judges
each passage with the NLI model and prints the aggregated verdict.

Example:
  factlens verify "The Eiffel Tower is in Paris"
  factlens verify --tenant acme --top-k 5 "Water boils at 100 degrees Celsius"
  factlens verify --json result.json "The Amazon is the longest river"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVar(&verifyJSON, "json", "", "write the full result as JSON to this path (- for stdout)")
	verifyCmd.Flags().IntVar(&verifyTopK, "top-k", 0, "evidence passages to judge (default from config)")
	verifyCmd.Flags().BoolVar(&verifyNoCache, "no-cache", false, "bypass the result cache")
	verifyCmd.Flags().BoolVar(&verifyNoStore, "no-store", false, "do not persist the result")
	verifyCmd.Flags().StringVar(&verifySource, "source", "", "only use evidence from this source URL")
	verifyCmd.Flags().IntVar(&verifyEvidence, "show-evidence", 3, "evidence passages to print")
}

func runVerify(cmd *cobra.Command, args []string) error {
	claim := strings.Join(args, " ")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Pipeline.Timeout+10*time.Second)
	defer cancel()

	app, err := NewApp(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	req := app.Pipeline.NewRequest(tenantID, claim)
	if verifyTopK > 0 {
		req.TopK = verifyTopK
	}
	if verifyNoCache {
		req.UseCache = false
	}
	if verifyNoStore {
		req.StoreResult = false
	}
	if verifySource != "" {
		req.SourceURL = &verifySource
	}

	result, err := app.Pipeline.VerifyClaim(ctx, req)
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	if verifyJSON == "-" {
		return writeJSON("-", result)
	}
	renderSummary(os.Stdout, result, verifyEvidence)
	if verifyJSON != "" {
		if err := writeJSON(verifyJSON, result); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", verifyJSON)
	}
	return nil
}
