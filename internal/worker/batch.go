package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/factlens/internal/model"
)

// VerifyFunc verifies one claim
type VerifyFunc func(ctx context.Context, claim string) (*model.VerificationResult, error)

// ClaimJob verifies a single claim
type ClaimJob struct {
	Claim  string
	Verify VerifyFunc
}

// Execute runs the verification
func (j *ClaimJob) Execute(ctx context.Context) Result {
	start := time.Now()
	result, err := j.Verify(ctx, j.Claim)
	return &ClaimResult{
		Claim:    j.Claim,
		Result:   result,
		Error:    err,
		Duration: time.Since(start),
	}
}

// ClaimResult is the outcome of one ClaimJob
type ClaimResult struct {
	Claim    string                    `json:"claim"`
	Result   *model.VerificationResult `json:"result,omitempty"`
	Error    error                     `json:"-"`
	Duration time.Duration             `json:"duration"`
}

// GetError returns the verification error
func (r *ClaimResult) GetError() error {
	return r.Error
}

// MarshalJSON includes the error message, which error values do not carry
// through encoding/json on their own.
func (r *ClaimResult) MarshalJSON() ([]byte, error) {
	type plain ClaimResult
	out := struct {
		*plain
		Error string `json:"error,omitempty"`
	}{plain: (*plain)(r)}
	if r.Error != nil {
		out.Error = r.Error.Error()
	}
	return json.Marshal(out)
}

// BatchVerifier verifies many claims concurrently
type BatchVerifier struct {
	verify      VerifyFunc
	concurrency int
}

// NewBatchVerifier creates a batch verifier
func NewBatchVerifier(verify VerifyFunc, concurrency int) *BatchVerifier {
	return &BatchVerifier{
		verify:      verify,
		concurrency: concurrency,
	}
}

// ProcessClaims verifies claims and returns one result per claim, in input order
func (b *BatchVerifier) ProcessClaims(ctx context.Context, claims []string) []*ClaimResult {
	if len(claims) == 0 {
		return []*ClaimResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for _, claim := range claims {
		if !pool.Submit(&ClaimJob{Claim: claim, Verify: b.verify}) {
			break
		}
	}

	results := pool.Wait()

	out := make([]*ClaimResult, len(claims))
	for i, claim := range claims {
		if i < len(results) && results[i] != nil {
			out[i] = results[i].(*ClaimResult)
			continue
		}
		err := ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		out[i] = &ClaimResult{Claim: claim, Error: fmt.Errorf("not verified: %w", err)}
	}
	return out
}

// ProcessFile reads claims from a file and verifies them
func (b *BatchVerifier) ProcessFile(ctx context.Context, filePath string) ([]*ClaimResult, error) {
	claims, err := ReadClaimsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read claims: %w", err)
	}

	return b.ProcessClaims(ctx, claims), nil
}

// ReadClaimsFromFile reads claims from a file (one per line)
func ReadClaimsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return ReadClaims(file)
}

// ReadClaims reads one claim per line, skipping blanks and # comments.
// Claims that normalize to the same text are kept once.
func ReadClaims(r io.Reader) ([]string, error) {
	var claims []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key := model.NormalizeClaimText(line)
		if !seen[key] {
			seen[key] = true
			claims = append(claims, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return claims, nil
}
