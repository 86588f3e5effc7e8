package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/factlens/internal/llm"
	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/retry"
	"github.com/ppiankov/factlens/internal/telemetry"
	"github.com/ppiankov/factlens/internal/worker"
)

// inferenceOutcome holds the judgments that succeeded, in evidence order
type inferenceOutcome struct {
	judged []model.JudgedEvidence
	failed int
}

// batchJob judges one slice of evidence against the claim
type batchJob struct {
	nli      llm.NLIProvider
	claim    string
	evidence []model.RankedEvidence
	policy   retry.Policy
	metrics  *telemetry.Metrics
}

// batchResult is the outcome of one batchJob. Judged holds one slot per
// evidence item; Errs[i] is set when slot i could not be judged.
type batchResult struct {
	judged   []model.JudgedEvidence
	errs     []error
	attempts int
	err      error
}

func (r *batchResult) GetError() error { return r.err }

// Execute calls the provider for the whole batch, retrying when the call
// itself fails. Individual pair failures are recorded, not retried.
func (j *batchJob) Execute(ctx context.Context) worker.Result {
	pairs := make([]llm.NLIPair, len(j.evidence))
	for i, ev := range j.evidence {
		pairs[i] = llm.NLIPair{Premise: ev.Content, Hypothesis: j.claim}
	}

	items, attempts, err := retry.Do(ctx, j.policy, func(ctx context.Context) ([]llm.NLIBatchItem, error) {
		callStart := time.Now()
		items, err := j.nli.InferBatch(ctx, pairs)
		if err == nil && len(items) != len(pairs) {
			err = fmt.Errorf("expected %d judgments, got %d", len(pairs), len(items))
		}
		j.metrics.ProviderCall(j.nli.Name(), "infer", time.Since(callStart), err)
		if err != nil {
			var ie *model.InferenceError
			if !errors.As(err, &ie) {
				err = &model.InferenceError{Provider: j.nli.Name(), Err: err}
			}
		}
		return items, err
	})

	res := &batchResult{
		judged:   make([]model.JudgedEvidence, len(j.evidence)),
		errs:     make([]error, len(j.evidence)),
		attempts: attempts,
		err:      err,
	}
	if err != nil {
		for i := range res.errs {
			res.errs[i] = err
		}
		return res
	}

	for i, item := range items {
		if item.Err != nil {
			res.errs[i] = item.Err
			continue
		}
		if !item.Output.Label.Valid() {
			res.errs[i] = &model.InferenceError{Provider: j.nli.Name(), Err: fmt.Errorf("unknown label %q", item.Output.Label)}
			continue
		}
		res.judged[i] = model.JudgedEvidence{
			InferenceJudgment: model.InferenceJudgment{
				EvidenceID: j.evidence[i].ID,
				Label:      item.Output.Label,
				Confidence: item.Output.Confidence,
				Scores:     item.Output.Scores,
			},
			Evidence: j.evidence[i],
		}
	}
	return res
}

// infer judges every evidence passage against the claim. Batches run
// concurrently on a worker pool. Judgments keep the evidence's rank order.
// The stage fails only when no pair could be judged.
func (p *Pipeline) infer(ctx context.Context, r *run, evidence []model.RankedEvidence) (inferenceOutcome, error) {
	r.stage = model.StageInfer
	stageStart := time.Now()
	ctx, span := telemetry.StartSpan(ctx, tracer, "pipeline.Infer")

	pool := worker.NewPool(ctx, p.config.Concurrency)
	pool.Start()

	policy := p.policy(model.StageInfer, r)
	var batches [][]model.RankedEvidence
	for start := 0; start < len(evidence); start += p.config.BatchSize {
		end := min(start+p.config.BatchSize, len(evidence))
		batch := evidence[start:end]
		batches = append(batches, batch)
		pool.Submit(&batchJob{
			nli:      p.nli,
			claim:    r.req.ClaimText,
			evidence: batch,
			policy:   policy,
			metrics:  p.metrics,
		})
	}
	results := pool.Wait()

	var (
		out      inferenceOutcome
		firstErr error
		attempts int
	)
	for i, batch := range batches {
		var res *batchResult
		if i < len(results) && results[i] != nil {
			res = results[i].(*batchResult)
		}
		if res == nil {
			// Never ran: the pool was cancelled.
			out.failed += len(batch)
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			continue
		}
		attempts = max(attempts, res.attempts)
		for k := range batch {
			if res.errs[k] != nil {
				out.failed++
				if firstErr == nil {
					firstErr = res.errs[k]
				}
				continue
			}
			out.judged = append(out.judged, res.judged[k])
		}
	}
	r.attempts[model.StageInfer] = attempts
	p.metrics.NLIPairs(len(out.judged), out.failed)

	var err error
	switch {
	case ctx.Err() != nil:
		err = ctx.Err()
	case len(out.judged) == 0:
		if firstErr == nil {
			firstErr = errors.New("no judgments produced")
		}
		err = firstErr
	}
	telemetry.EndSpan(span, err)
	p.metrics.Stage(string(model.StageInfer), time.Since(stageStart), err)
	if err != nil {
		return inferenceOutcome{}, p.fail(ctx, r, err)
	}

	if out.failed > 0 {
		r.logger.Warn("partial inference", "judged", len(out.judged), "failed", out.failed)
	}
	return out, nil
}
