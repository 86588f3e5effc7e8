package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/telemetry"
)

var tracer = telemetry.Tracer("search")

const (
	// DefaultCandidateMultiplier is how many candidates per path are fetched
	// relative to TopK.
	DefaultCandidateMultiplier = 3

	// DefaultCallTimeout bounds a single index or lookup call.
	DefaultCallTimeout = 10 * time.Second
)

// Request describes one hybrid search
type Request struct {
	QueryText   string
	QueryVector []float32
	TopK        int

	// Relative weights of the two paths; they need not sum to 1.
	VectorWeight  float64
	KeywordWeight float64

	// MinVectorSimilarity drops vector hits below this cosine similarity.
	MinVectorSimilarity float64

	Filters model.Filters
}

// Result is a fused ranking plus how it was obtained
type Result struct {
	Evidence []model.RankedEvidence
	Elapsed  time.Duration
	Method   model.RetrievalMethod

	// Errors of a path that failed while the other succeeded.
	VectorErr  error
	KeywordErr error
}

// Engine runs vector and keyword retrieval concurrently and fuses them
type Engine struct {
	vector  VectorIndex
	keyword KeywordIndex
	lookup  EvidenceLookup

	k           float64
	multiplier  int
	callTimeout time.Duration
	logger      *slog.Logger
	metrics    *telemetry.Metrics
}

// Option configures an Engine
type Option func(*Engine)

// WithRRFK overrides the fusion constant
func WithRRFK(k float64) Option {
	return func(e *Engine) {
		if k > 0 {
			e.k = k
		}
	}
}

// WithCandidateMultiplier sets how many candidates per path are fetched
// relative to TopK
func WithCandidateMultiplier(m int) Option {
	return func(e *Engine) {
		if m > 0 {
			e.multiplier = m
		}
	}
}

// WithCallTimeout bounds each index and lookup call. A path that exceeds
// it counts as failed, so a hung index degrades the search instead of
// stalling it.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates a hybrid search engine. Either index may be nil, in
// which case that path is treated as failing.
func NewEngine(vector VectorIndex, keyword KeywordIndex, lookup EvidenceLookup, opts ...Option) *Engine {
	e := &Engine{
		vector:     vector,
		keyword:    keyword,
		lookup:     lookup,
		k:           DefaultRRFK,
		multiplier:  DefaultCandidateMultiplier,
		callTimeout: DefaultCallTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search returns up to TopK evidence passages ranked by weighted RRF.
// A path whose weight is zero is not queried. If one queried path fails the
// other's ranking is returned and Method records the degradation; if every
// queried path fails a *model.RetrievalError is returned.
func (e *Engine) Search(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, tracer, "search.Hybrid", "tenant_id", req.Filters.TenantID)
	res, err := e.search(ctx, req)
	telemetry.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	res.Elapsed = time.Since(start)
	e.metrics.Search(string(res.Method), res.Elapsed)
	return res, nil
}

// VectorOnly ranks by the vector path alone
func (e *Engine) VectorOnly(ctx context.Context, req Request) (*Result, error) {
	if req.VectorWeight <= 0 {
		req.VectorWeight = 1
	}
	req.KeywordWeight = 0
	return e.Search(ctx, req)
}

// KeywordOnly ranks by the keyword path alone
func (e *Engine) KeywordOnly(ctx context.Context, req Request) (*Result, error) {
	if req.KeywordWeight <= 0 {
		req.KeywordWeight = 1
	}
	req.VectorWeight = 0
	return e.Search(ctx, req)
}

func (e *Engine) search(ctx context.Context, req Request) (*Result, error) {
	candidates := req.TopK * e.multiplier
	useVector := req.VectorWeight > 0
	useKeyword := req.KeywordWeight > 0

	var (
		vecHits []VectorHit
		kwHits  []KeywordHit
		vecErr  error
		kwErr   error
	)

	// A failing path is recorded, not returned, so it never cancels the
	// other one. Only the caller's context ending aborts the group.
	g, gctx := errgroup.WithContext(ctx)
	if useVector {
		g.Go(func() error {
			vecHits, vecErr = e.searchVector(gctx, req, candidates)
			return ctx.Err()
		})
	}
	if useKeyword {
		g.Go(func() error {
			kwHits, kwErr = e.searchKeyword(gctx, req, candidates)
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{}
	switch {
	case useVector && useKeyword && vecErr == nil && kwErr == nil:
		res.Method = model.RetrievalHybrid
	case useVector && vecErr == nil:
		res.Method = model.RetrievalVectorOnly
		if useKeyword {
			res.KeywordErr = kwErr
			e.metrics.Degraded("keyword")
			e.logger.Warn("keyword search failed, using vector ranking only",
				"tenant_id", req.Filters.TenantID, "error", kwErr)
		}
	case useKeyword && kwErr == nil:
		res.Method = model.RetrievalKeywordOnly
		if useVector {
			res.VectorErr = vecErr
			e.metrics.Degraded("vector")
			e.logger.Warn("vector search failed, using keyword ranking only",
				"tenant_id", req.Filters.TenantID, "error", vecErr)
		}
	default:
		return nil, &model.RetrievalError{VectorErr: vecErr, KeywordErr: kwErr}
	}

	vw, kw := req.VectorWeight, req.KeywordWeight
	if res.Method == model.RetrievalVectorOnly {
		kwHits, kw = nil, 0
	}
	if res.Method == model.RetrievalKeywordOnly {
		vecHits, vw = nil, 0
	}

	fused := Fuse(vecHits, kwHits, vw, kw, e.k)
	evidence, err := e.resolve(ctx, req.Filters, fused)
	if err != nil {
		return nil, err
	}
	if len(evidence) > req.TopK {
		evidence = evidence[:req.TopK]
	}
	res.Evidence = evidence
	return res, nil
}

func (e *Engine) searchVector(ctx context.Context, req Request, candidates int) ([]VectorHit, error) {
	if e.vector == nil {
		return nil, fmt.Errorf("no vector index configured")
	}
	ctx, span := telemetry.StartSpan(ctx, tracer, "search.Vector")
	ctx, cancel := e.callContext(ctx)
	hits, err := e.vector.SearchVector(ctx, req.QueryVector, candidates, req.Filters)
	cancel()
	telemetry.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	if req.MinVectorSimilarity <= 0 {
		return hits, nil
	}
	kept := hits[:0:0]
	for _, h := range hits {
		if h.Similarity >= req.MinVectorSimilarity {
			kept = append(kept, h)
		}
	}
	return kept, nil
}

func (e *Engine) searchKeyword(ctx context.Context, req Request, candidates int) ([]KeywordHit, error) {
	if e.keyword == nil {
		return nil, fmt.Errorf("no keyword index configured")
	}
	ctx, span := telemetry.StartSpan(ctx, tracer, "search.Keyword")
	ctx, cancel := e.callContext(ctx)
	hits, err := e.keyword.SearchKeyword(ctx, req.QueryText, candidates, req.Filters)
	cancel()
	telemetry.EndSpan(span, err)
	return hits, err
}

// resolve attaches stored passages to fused IDs, keeping rank order and
// dropping IDs that are unknown or fall outside the filters.
func (e *Engine) resolve(ctx context.Context, filters model.Filters, fused []model.RankedEvidence) ([]model.RankedEvidence, error) {
	if len(fused) == 0 {
		return nil, nil
	}
	ids := make([]string, len(fused))
	for i, re := range fused {
		ids[i] = re.ID
	}

	ctx, cancel := e.callContext(ctx)
	defer cancel()
	refs, err := e.lookup.LookupEvidence(ctx, filters.TenantID, ids)
	if err != nil {
		return nil, &model.StorageError{Op: "lookup evidence", Err: err}
	}

	out := make([]model.RankedEvidence, 0, len(fused))
	for _, re := range fused {
		ref, ok := refs[re.ID]
		if !ok || !filters.Match(ref) {
			continue
		}
		re.EvidenceRef = ref
		out = append(out, re)
	}
	return out, nil
}

func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.callTimeout)
}

func validate(req Request) error {
	switch {
	case req.TopK < 1:
		return model.NewValidationError("top_k", "must be at least 1")
	case req.Filters.TenantID == "":
		return model.NewValidationError("tenant_id", "is required")
	case req.VectorWeight < 0 || req.KeywordWeight < 0:
		return model.NewValidationError("weights", "must be non-negative")
	case req.VectorWeight == 0 && req.KeywordWeight == 0:
		return model.NewValidationError("weights", "vector and keyword weight cannot both be zero")
	case req.VectorWeight > 0 && len(req.QueryVector) == 0:
		return model.NewValidationError("query_vector", "is required when vector weight is positive")
	case req.KeywordWeight > 0 && req.QueryText == "":
		return model.NewValidationError("query_text", "is required when keyword weight is positive")
	case req.Filters.DateFrom != nil && req.Filters.DateTo != nil && req.Filters.DateFrom.After(*req.Filters.DateTo):
		return model.NewValidationError("filters", "date_from is after date_to")
	}
	return nil
}
