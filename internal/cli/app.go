package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ppiankov/factlens/internal/cache"
	"github.com/ppiankov/factlens/internal/ingest"
	"github.com/ppiankov/factlens/internal/llm"
	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/pipeline"
	"github.com/ppiankov/factlens/internal/search"
	"github.com/ppiankov/factlens/internal/store"
	"github.com/ppiankov/factlens/internal/telemetry"
	"github.com/ppiankov/factlens/internal/vectordb"
	"github.com/ppiankov/factlens/internal/worker"
)

// catalog is what both storage drivers provide
type catalog interface {
	search.KeywordIndex
	search.EvidenceLookup
	pipeline.ResultStore
	ingest.EvidenceWriter
	Close() error
}

// App wires the configured components together
type App struct {
	Config   model.Config
	Pipeline *pipeline.Pipeline
	Ingester *ingest.Ingester
	Cache    *cache.ResultCache // nil when caching is disabled
	Registry *prometheus.Registry

	Embedder llm.EmbeddingProvider // nil when retrieval is keyword-only
	NLI      llm.NLIProvider

	logger  *slog.Logger
	closers []func() error
}

// NewApp builds every component from cfg. Call Close when done.
func NewApp(ctx context.Context, cfg model.Config, logger *slog.Logger) (*App, error) {
	app := &App{Config: cfg, logger: logger}
	if err := app.build(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(a.Registry)

	// Providers
	limiter := worker.NewLimiter(0, 0)
	setProviderRate(limiter, cfg.Providers.Embedding)
	setProviderRate(limiter, cfg.Providers.NLI)

	if p := strings.ToLower(cfg.Providers.Embedding.Provider); p != "" && p != "none" {
		ec := llm.ConfigFromModel(cfg.Providers.Embedding, cfg.Providers.CallTimeout)
		ec.Limiter = limiter
		emb, err := llm.NewEmbeddingProvider(ec)
		if err != nil {
			return fmt.Errorf("embedding provider: %w", err)
		}
		a.Embedder = emb
	} else {
		a.logger.Warn("no embedding provider configured, retrieval is keyword-only")
	}

	nc := llm.ConfigFromModel(cfg.Providers.NLI, cfg.Providers.CallTimeout)
	nc.Limiter = limiter
	nli, err := llm.NewNLIProvider(nc)
	if err != nil {
		return fmt.Errorf("NLI provider: %w", err)
	}
	a.NLI = nli

	// Storage
	var (
		cat     catalog
		vectors search.VectorIndex
	)
	switch cfg.Storage.Driver {
	case "postgres":
		pg, err := store.OpenPostgres(ctx, cfg.Storage.DSN)
		if err != nil {
			return err
		}
		cat = pg
	default:
		sq, err := store.OpenSQLite(ctx, cfg.Storage.DSN)
		if err != nil {
			return err
		}
		cat = sq
		vectors = sq
	}
	a.closers = append(a.closers, cat.Close)

	var externalIndex ingest.EvidenceWriter
	if cfg.Vector.Backend == "weaviate" {
		wv, err := vectordb.NewWeaviateIndex(cfg.Vector.WeaviateScheme, cfg.Vector.WeaviateHost, cfg.Vector.WeaviateClass)
		if err != nil {
			return err
		}
		if err := wv.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("weaviate schema: %w", err)
		}
		vectors = wv
		externalIndex = wv
	}

	engine := search.NewEngine(vectors, cat, cat,
		search.WithRRFK(cfg.Search.RRFK),
		search.WithCandidateMultiplier(cfg.Search.CandidateMultiplier),
		search.WithCallTimeout(cfg.Providers.CallTimeout),
		search.WithLogger(a.logger),
		search.WithMetrics(metrics))

	// Cache
	opts := []pipeline.Option{
		pipeline.WithStore(cat),
		pipeline.WithLogger(a.logger),
		pipeline.WithMetrics(metrics),
	}
	if cfg.Cache.Enabled {
		backend, err := a.cacheBackend(ctx)
		if err != nil {
			return err
		}
		a.Cache = cache.NewResultCache(backend, cfg.Cache.TTL, cache.SystemClock())
		opts = append(opts, pipeline.WithCache(a.Cache))
	}

	pcfg := pipeline.ConfigFromModel(cfg)
	pcfg.UseCache = pcfg.UseCache && cfg.Cache.Enabled
	a.Pipeline, err = pipeline.NewPipeline(a.Embedder, a.NLI, engine, pcfg, opts...)
	if err != nil {
		return err
	}

	// Ingestion
	fetcher := ingest.NewFetcher(ingest.FetcherConfig{
		Timeout:       cfg.Ingest.Timeout,
		UserAgent:     cfg.Ingest.UserAgent,
		MaxBodyBytes:  cfg.Ingest.MaxBodyBytes,
		RespectRobots: cfg.Ingest.RespectRobots,
		HTTPProxy:     cfg.Ingest.HTTPProxy,
		HTTPSProxy:    cfg.Ingest.HTTPSProxy,
		NoProxy:       cfg.Ingest.NoProxy,
	}, worker.NewLimiter(1, 2), a.logger)

	ingestOpts := []ingest.Option{ingest.WithFetcher(fetcher), ingest.WithLogger(a.logger)}
	if externalIndex != nil {
		ingestOpts = append(ingestOpts, ingest.WithVectorIndex(externalIndex))
	}
	a.Ingester = ingest.NewIngester(cat, a.Embedder, ingest.Config{
		PassageChars: cfg.Ingest.PassageChars,
		EmbedBatch:   cfg.Ingest.EmbedBatch,
		Retry:        pcfg.Retry,
	}, ingestOpts...)

	return nil
}

func (a *App) cacheBackend(ctx context.Context) (cache.Cache, error) {
	cfg := a.Config.Cache
	memory := func() cache.Cache { return cache.NewMemoryCache(cfg.TTL, cfg.CleanupInterval) }

	switch cfg.Backend {
	case "", "memory":
		return memory(), nil
	case "disk":
		return cache.NewDiskCache(cfg.Dir, cfg.TTL), nil
	case "redis", "layered":
		rc, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		a.closers = append(a.closers, rc.Close)
		if cfg.Backend == "layered" {
			return cache.NewLayeredCache(memory(), rc), nil
		}
		return rc, nil
	}
	return nil, fmt.Errorf("unknown cache.backend %q (supported: memory, disk, redis, layered)", cfg.Backend)
}

// ReadinessChecks returns the providers that can report availability
func (a *App) ReadinessChecks() map[string]llm.Pinger {
	checks := make(map[string]llm.Pinger)
	if p, ok := a.Embedder.(llm.Pinger); ok {
		checks["embedding"] = p
	}
	if p, ok := a.NLI.(llm.Pinger); ok {
		checks["nli"] = p
	}
	return checks
}

// Close releases storage and cache connections
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func setProviderRate(l *worker.Limiter, pc model.ProviderConfig) {
	if pc.Provider == "" || pc.RequestsPerSecond <= 0 {
		return
	}
	l.SetRate(strings.ToLower(pc.Provider), pc.RequestsPerSecond, pc.Burst)
}
