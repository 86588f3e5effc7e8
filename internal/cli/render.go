package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ppiankov/factlens/internal/model"
)

// renderSummary writes a human-readable verdict summary
func renderSummary(w io.Writer, r *model.VerificationResult, showEvidence int) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "  %s  (confidence %.2f)\n", r.Verdict, r.Confidence)
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  Claim:      %s\n", r.ClaimText)
	fmt.Fprintf(w, "  Support:    %.3f\n", r.SupportScore)
	fmt.Fprintf(w, "  Refute:     %.3f\n", r.RefuteScore)
	fmt.Fprintf(w, "  Neutral:    %.3f\n", r.NeutralScore)
	fmt.Fprintf(w, "  Retrieval:  %s\n", r.RetrievalMethod)
	if r.FromCache {
		fmt.Fprintf(w, "  Source:     cache\n")
	} else {
		fmt.Fprintf(w, "  Duration:   %v\n", r.Duration.Round(1e6))
	}
	fmt.Fprintf(w, "\n  %s\n", r.Rationale)

	if showEvidence > 0 && len(r.Judgments) > 0 {
		fmt.Fprintf(w, "\n  Evidence:\n")
		for i, j := range r.Judgments {
			if i >= showEvidence {
				fmt.Fprintf(w, "    ... %d more\n", len(r.Judgments)-showEvidence)
				break
			}
			fmt.Fprintf(w, "    %d. [%s %.2f] %s\n", i+1, j.Label, j.Confidence, snippet(j.Evidence.Content, 100))
			if j.Evidence.SourceURL != "" {
				fmt.Fprintf(w, "       %s\n", j.Evidence.SourceURL)
			}
		}
	}
	fmt.Fprintf(w, "\n")
}

// writeJSON writes v as indented JSON to path, or stdout when path is "-"
func writeJSON(path string, v any) (err error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	data = append(data, '\n')

	if path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
