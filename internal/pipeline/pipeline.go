// Package pipeline verifies claims: cache check, claim embedding, hybrid
// retrieval, batched NLI, verdict aggregation, persistence and cache write.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/factlens/internal/llm"
	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/retry"
	"github.com/ppiankov/factlens/internal/search"
	"github.com/ppiankov/factlens/internal/telemetry"
	"github.com/ppiankov/factlens/internal/verdict"
)

var tracer = telemetry.Tracer("pipeline")

// Searcher ranks evidence for a claim
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Result, error)
}

// ResultCache stores finished verifications by (tenant, claim text)
type ResultCache interface {
	Get(ctx context.Context, tenantID, claimText string) (*model.VerificationResult, bool)
	Put(ctx context.Context, tenantID, claimText string, result *model.VerificationResult) error
}

// ResultStore persists finished verifications
type ResultStore interface {
	SaveVerification(ctx context.Context, r *model.VerificationResult) (string, error)
}

// Config holds the pipeline's tunables
type Config struct {
	Timeout time.Duration
	Retry   retry.Policy

	// CallTimeout bounds each result store call.
	CallTimeout time.Duration

	// Request defaults
	TopK          int
	VectorWeight  float64
	KeywordWeight float64
	MinSimilarity float64
	UseCache      bool
	StoreResult   bool

	BatchSize   int // NLI pairs per provider call
	Concurrency int // NLI batches in flight

	Verdict verdict.Options
}

// DefaultConfig returns the standard pipeline settings
func DefaultConfig() Config {
	return ConfigFromModel(model.DefaultConfig())
}

// ConfigFromModel converts the application config
func ConfigFromModel(c model.Config) Config {
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = c.Pipeline.RetryAttempts
	policy.BaseDelay = c.Pipeline.RetryBaseDelay

	return Config{
		Timeout:       c.Pipeline.Timeout,
		Retry:         policy,
		CallTimeout:   c.Providers.CallTimeout,
		TopK:          c.Pipeline.TopK,
		VectorWeight:  c.Search.VectorWeight,
		KeywordWeight: c.Search.KeywordWeight,
		MinSimilarity: c.Search.MinVectorSimilarity,
		UseCache:      c.Pipeline.UseCache,
		StoreResult:   c.Pipeline.StoreResult,
		BatchSize:     c.Inference.BatchSize,
		Concurrency:   c.Inference.Concurrency,
		Verdict:       verdict.OptionsFromConfig(c.Verdict),
	}
}

// Request describes one verification. Build it with Pipeline.NewRequest to
// start from the configured defaults.
type Request struct {
	ClaimText string
	TenantID  string

	TopK          int
	MinSimilarity float64
	VectorWeight  float64
	KeywordWeight float64
	UseCache      bool
	StoreResult   bool

	// Optional retrieval restrictions; the tenant is always applied.
	SourceURL *string
	DateFrom  *time.Time
	DateTo    *time.Time
}

// Pipeline orchestrates the verification of a single claim. It is safe for
// concurrent use; concurrent runs share only the cache, store and providers.
type Pipeline struct {
	embedder llm.EmbeddingProvider
	nli      llm.NLIProvider
	searcher Searcher
	cache    ResultCache
	store    ResultStore

	config  Config
	logger  *slog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithCache enables the result cache
func WithCache(c ResultCache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithStore enables result persistence
func WithStore(s ResultStore) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock sets the time source for result timestamps
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline creates a pipeline. The embedder may be nil, in which case
// retrieval is keyword-only.
func NewPipeline(embedder llm.EmbeddingProvider, nli llm.NLIProvider, searcher Searcher, cfg Config, opts ...Option) (*Pipeline, error) {
	if nli == nil {
		return nil, errors.New("an NLI provider is required")
	}
	if searcher == nil {
		return nil, errors.New("a searcher is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 8
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.VectorWeight == 0 && cfg.KeywordWeight == 0 {
		cfg.VectorWeight, cfg.KeywordWeight = 1, 1
	}

	p := &Pipeline{
		embedder: embedder,
		nli:      nli,
		searcher: searcher,
		config:   cfg,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// NewRequest returns a request for claim carrying the configured defaults
func (p *Pipeline) NewRequest(tenantID, claim string) Request {
	return Request{
		ClaimText:     claim,
		TenantID:      tenantID,
		TopK:          p.config.TopK,
		MinSimilarity: p.config.MinSimilarity,
		VectorWeight:  p.config.VectorWeight,
		KeywordWeight: p.config.KeywordWeight,
		UseCache:      p.config.UseCache,
		StoreResult:   p.config.StoreResult,
	}
}

// Verify checks claim for a tenant with the default request settings
func (p *Pipeline) Verify(ctx context.Context, tenantID, claim string) (*model.VerificationResult, error) {
	return p.VerifyClaim(ctx, p.NewRequest(tenantID, claim))
}

// run tracks one verification as it moves through the stages
type run struct {
	req      Request
	start    time.Time
	stage    model.Stage
	attempts map[model.Stage]int
	logger   *slog.Logger
}

// VerifyClaim runs the full verification state machine for one claim.
//
// A cache hit returns the cached result. Otherwise the claim is embedded,
// evidence is retrieved and judged, and the verdict aggregated. Embedding,
// retrieval and each NLI batch are retried on transient errors. When no
// evidence is found the verdict is INSUFFICIENT without any inference.
// Persistence and cache-write failures are logged and do not fail the run.
// If the deadline expires the error wraps model.ErrTimeout and nothing is
// persisted or cached.
func (p *Pipeline) VerifyClaim(ctx context.Context, req Request) (*model.VerificationResult, error) {
	start := time.Now()

	if err := p.validate(&req); err != nil {
		p.metrics.Verification("invalid")
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	ctx, span := telemetry.StartSpan(ctx, tracer, "pipeline.VerifyClaim", "tenant_id", req.TenantID)

	r := &run{
		req:      req,
		start:    start,
		attempts: make(map[model.Stage]int),
		logger: p.logger.With(
			"tenant_id", req.TenantID,
			"claim_id", model.ClaimID(req.TenantID, req.ClaimText),
		),
	}

	result, err := p.execute(ctx, r)
	telemetry.EndSpan(span, err)

	switch {
	case err != nil && errors.Is(err, model.ErrTimeout):
		p.metrics.Verification("timeout")
		r.logger.Warn("verification timed out", "stage", r.stage, "elapsed", time.Since(start))
	case err != nil:
		p.metrics.Verification("failed")
		r.logger.Error("verification failed", "stage", r.stage, "error", err)
	case result.FromCache:
		p.metrics.Verification("cached")
	default:
		p.metrics.Verification("ok")
		p.metrics.Verdict(string(result.Verdict))
		r.logger.Info("claim verified",
			"verdict", result.Verdict,
			"confidence", result.Confidence,
			"evidence", len(result.Judgments),
			"method", result.RetrievalMethod,
			"duration", result.Duration)
	}
	return result, err
}

func (p *Pipeline) execute(ctx context.Context, r *run) (*model.VerificationResult, error) {
	req := r.req

	// CACHE_CHECK
	if req.UseCache && p.cache != nil {
		r.stage = model.StageCacheCheck
		stageStart := time.Now()
		cached, ok := p.cache.Get(ctx, req.TenantID, req.ClaimText)
		p.metrics.Stage(string(model.StageCacheCheck), time.Since(stageStart), nil)
		p.metrics.CacheLookup(ok)
		if ok {
			cached.FromCache = true
			r.logger.Debug("cache hit", "verdict", cached.Verdict)
			return cached, nil
		}
	}

	// EMBED
	var vector []float32
	if req.VectorWeight > 0 {
		v, err := p.embed(ctx, r)
		if err != nil {
			return nil, err
		}
		vector = v
	}

	// RETRIEVE
	found, err := p.retrieve(ctx, r, vector)
	if err != nil {
		return nil, err
	}

	result := &model.VerificationResult{
		ID:            uuid.NewString(),
		ClaimID:       model.ClaimID(req.TenantID, req.ClaimText),
		TenantID:      req.TenantID,
		ClaimText:     req.ClaimText,
		StageAttempts: r.attempts,
	}

	var (
		judged []model.JudgedEvidence
		failed int
	)
	if len(found.Evidence) == 0 {
		result.RetrievalMethod = model.RetrievalNone
		r.logger.Info("no evidence found", "error", model.ErrNoEvidence)
	} else {
		result.RetrievalMethod = found.Method

		// INFER
		out, err := p.infer(ctx, r, found.Evidence)
		if err != nil {
			return nil, err
		}
		judged, failed = out.judged, out.failed
	}

	// AGGREGATE
	r.stage = model.StageAggregate
	opts := p.config.Verdict
	opts.FailedPairs = failed
	outcome := verdict.Aggregate(verdict.FromJudged(judged), opts)
	r.attempts[model.StageAggregate] = 1

	result.Verdict = outcome.Verdict
	result.Confidence = outcome.Confidence
	result.SupportScore = outcome.SupportScore
	result.RefuteScore = outcome.RefuteScore
	result.NeutralScore = outcome.NeutralScore
	result.Rationale = outcome.Rationale
	result.Judgments = judged
	result.PartialInference = failed > 0
	result.CreatedAt = p.now().UTC()

	// A result completed after the deadline is discarded, never stored.
	if err := p.deadline(ctx, r); err != nil {
		return nil, err
	}

	// PERSIST
	result.Duration = time.Since(r.start)
	if req.StoreResult && p.store != nil {
		p.persist(ctx, r, result)
		if err := p.deadline(ctx, r); err != nil {
			return nil, err
		}
	}

	// CACHE_WRITE
	result.Duration = time.Since(r.start)
	if req.UseCache && p.cache != nil {
		r.stage = model.StageCacheWrite
		stageStart := time.Now()
		err := p.cache.Put(ctx, req.TenantID, req.ClaimText, result)
		p.metrics.Stage(string(model.StageCacheWrite), time.Since(stageStart), err)
		r.attempts[model.StageCacheWrite] = 1
		if err != nil {
			r.logger.Warn("cache write failed", "error", err)
		}
	}

	return result, nil
}

func (p *Pipeline) embed(ctx context.Context, r *run) ([]float32, error) {
	r.stage = model.StageEmbed
	stageStart := time.Now()
	ctx, span := telemetry.StartSpan(ctx, tracer, "pipeline.Embed")

	vector, attempts, err := retry.Do(ctx, p.policy(model.StageEmbed, r), func(ctx context.Context) ([]float32, error) {
		callStart := time.Now()
		v, err := p.embedder.Embed(ctx, r.req.ClaimText)
		p.metrics.ProviderCall(p.embedder.Name(), "embed", time.Since(callStart), err)
		if err == nil && len(v) == 0 {
			err = errors.New("empty embedding")
		}
		if err != nil {
			var ee *model.EmbeddingError
			if !errors.As(err, &ee) {
				err = &model.EmbeddingError{Provider: p.embedder.Name(), Err: err}
			}
		}
		return v, err
	})
	r.attempts[model.StageEmbed] = attempts
	telemetry.EndSpan(span, err)
	p.metrics.Stage(string(model.StageEmbed), time.Since(stageStart), err)
	if err != nil {
		return nil, p.fail(ctx, r, err)
	}
	return vector, nil
}

func (p *Pipeline) retrieve(ctx context.Context, r *run, vector []float32) (*search.Result, error) {
	r.stage = model.StageRetrieve
	stageStart := time.Now()

	req := search.Request{
		QueryText:           r.req.ClaimText,
		QueryVector:         vector,
		TopK:                r.req.TopK,
		VectorWeight:        r.req.VectorWeight,
		KeywordWeight:       r.req.KeywordWeight,
		MinVectorSimilarity: r.req.MinSimilarity,
		Filters: model.Filters{
			TenantID:  r.req.TenantID,
			SourceURL: r.req.SourceURL,
			DateFrom:  r.req.DateFrom,
			DateTo:    r.req.DateTo,
		},
	}

	found, attempts, err := retry.Do(ctx, p.policy(model.StageRetrieve, r), func(ctx context.Context) (*search.Result, error) {
		return p.searcher.Search(ctx, req)
	})
	r.attempts[model.StageRetrieve] = attempts
	p.metrics.Stage(string(model.StageRetrieve), time.Since(stageStart), err)
	if err != nil {
		return nil, p.fail(ctx, r, err)
	}
	return found, nil
}

func (p *Pipeline) persist(ctx context.Context, r *run, result *model.VerificationResult) {
	r.stage = model.StagePersist
	stageStart := time.Now()
	ctx, span := telemetry.StartSpan(ctx, tracer, "pipeline.Persist")

	callCtx, cancel := callContext(ctx, p.config.CallTimeout)
	id, err := p.store.SaveVerification(callCtx, result)
	cancel()
	telemetry.EndSpan(span, err)
	p.metrics.Stage(string(model.StagePersist), time.Since(stageStart), err)
	r.attempts[model.StagePersist] = 1
	if err != nil {
		var se *model.StorageError
		if !errors.As(err, &se) {
			err = &model.StorageError{Op: "save verification", Err: err}
		}
		r.logger.Warn("persisting result failed", "error", err)
		return
	}
	if id != "" {
		result.ID = id
	}
}

// callContext bounds one external call. A non-positive timeout leaves ctx as is.
func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// policy returns the retry policy for a stage, counting retries in metrics
func (p *Pipeline) policy(stage model.Stage, r *run) retry.Policy {
	policy := p.config.Retry
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		p.metrics.Retry(string(stage))
		r.logger.Warn("retrying stage", "stage", stage, "attempt", attempt, "wait", wait, "error", err)
	}
	return policy
}

// deadline reports a timeout if the run's context has expired
func (p *Pipeline) deadline(ctx context.Context, r *run) error {
	if ctx.Err() == nil {
		return nil
	}
	return p.fail(ctx, r, ctx.Err())
}

// fail wraps err in a PipelineError for the current stage. Errors caused by
// the run's deadline are reported as model.ErrTimeout.
func (p *Pipeline) fail(ctx context.Context, r *run, err error) error {
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", model.ErrTimeout, err)
	}
	return &model.PipelineError{Stage: r.stage, Attempts: r.attempts[r.stage], Err: err}
}

func (p *Pipeline) validate(req *Request) error {
	req.ClaimText = strings.TrimSpace(req.ClaimText)
	switch {
	case req.ClaimText == "":
		return model.NewValidationError("claim_text", "is required")
	case req.TenantID == "":
		return model.NewValidationError("tenant_id", "is required")
	case req.TopK < 0:
		return model.NewValidationError("top_k", "must be at least 1")
	case req.VectorWeight < 0 || req.KeywordWeight < 0:
		return model.NewValidationError("weights", "must be non-negative")
	case req.VectorWeight == 0 && req.KeywordWeight == 0:
		return model.NewValidationError("weights", "vector and keyword weight cannot both be zero")
	}
	if req.TopK == 0 {
		req.TopK = p.config.TopK
	}
	if req.VectorWeight > 0 && p.embedder == nil {
		req.VectorWeight = 0
		if req.KeywordWeight == 0 {
			return model.NewValidationError("vector_weight", "no embedding provider configured")
		}
	}
	return nil
}
