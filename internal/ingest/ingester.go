package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/factlens/internal/extract"
	"github.com/ppiankov/factlens/internal/llm"
	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/retry"
)

// evidenceNamespace scopes deterministic evidence IDs
var evidenceNamespace = uuid.MustParse("0b9e7c4a-2f61-5d83-a1c7-6e4f2b8d9a30")

// EvidenceWriter stores passages. The evidence catalog and an external
// vector index both implement it.
type EvidenceWriter interface {
	UpsertEvidence(ctx context.Context, passages []model.Passage) error
}

// Config tunes ingestion
type Config struct {
	PassageChars int
	EmbedBatch   int
	Retry        retry.Policy
}

// Report summarizes one ingested source
type Report struct {
	Source   string        `json:"source"`
	Passages int           `json:"passages"`
	Embedded int           `json:"embedded"`
	Links    int           `json:"links,omitempty"` // Linked pages ingested as well
	Duration time.Duration `json:"duration"`
}

// Ingester turns documents into stored, embedded evidence passages
type Ingester struct {
	catalog  EvidenceWriter
	vectors  EvidenceWriter
	embedder llm.EmbeddingProvider
	fetcher  *Fetcher
	splitter *extract.PassageSplitter
	config   Config
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Ingester
type Option func(*Ingester)

// WithVectorIndex also writes embedded passages to an external vector index
func WithVectorIndex(w EvidenceWriter) Option {
	return func(i *Ingester) { i.vectors = w }
}

// WithFetcher enables URL ingestion
func WithFetcher(f *Fetcher) Option {
	return func(i *Ingester) { i.fetcher = f }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(i *Ingester) { i.logger = l }
}

// WithClock sets the time used for passages without a source date
func WithClock(now func() time.Time) Option {
	return func(i *Ingester) { i.now = now }
}

// NewIngester creates an ingester writing to catalog. Without an embedder
// passages are stored for keyword retrieval only.
func NewIngester(catalog EvidenceWriter, embedder llm.EmbeddingProvider, cfg Config, opts ...Option) *Ingester {
	if cfg.EmbedBatch <= 0 {
		cfg.EmbedBatch = 32
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	in := &Ingester{
		catalog:  catalog,
		embedder: embedder,
		splitter: extract.NewPassageSplitter(cfg.PassageChars),
		config:   cfg,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// EvidenceID returns the stable ID of the index-th passage of a source, so
// re-ingesting a source replaces its passages instead of duplicating them.
func EvidenceID(tenantID, source string, index int) string {
	return uuid.NewSHA1(evidenceNamespace, []byte(tenantID+"\x00"+source+"\x00"+strconv.Itoa(index))).String()
}

// IngestURL fetches a page and stores its passages. With followLinks > 0,
// up to that many external pages linked from it are ingested too; their
// failures are logged and skipped.
func (in *Ingester) IngestURL(ctx context.Context, tenantID, rawURL string, followLinks int) (*Report, error) {
	if in.fetcher == nil {
		return nil, errors.New("URL ingestion requires a fetcher")
	}
	start := time.Now()

	page, err := in.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	var texts []string
	if page.IsHTML() {
		texts, err = in.splitter.FromHTML(page.HTML)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", page.FinalURL, err)
		}
	} else {
		texts = in.splitter.Split(page.HTML)
	}

	report, err := in.store(ctx, tenantID, page.FinalURL, texts, page.LastModified)
	if err != nil {
		return nil, err
	}

	if followLinks > 0 && page.IsHTML() {
		links, err := extract.Links(page.HTML, page.FinalURL)
		if err != nil {
			in.logger.Warn("link extraction failed", "url", page.FinalURL, "error", err)
		}
		for _, link := range firstN(extract.ExternalLinks(links), followLinks) {
			sub, err := in.IngestURL(ctx, tenantID, link.URL, 0)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				in.logger.Warn("skipping linked page", "url", link.URL, "error", err)
				continue
			}
			report.Links++
			report.Passages += sub.Passages
			report.Embedded += sub.Embedded
		}
	}

	report.Duration = time.Since(start)
	return report, nil
}

// IngestText splits plain text into passages and stores them under source
func (in *Ingester) IngestText(ctx context.Context, tenantID, source, text string, createdAt *time.Time) (*Report, error) {
	start := time.Now()
	report, err := in.store(ctx, tenantID, source, in.splitter.Split(text), createdAt)
	if err != nil {
		return nil, err
	}
	report.Duration = time.Since(start)
	return report, nil
}

// record is one line of a JSONL evidence file
type record struct {
	ID        string     `json:"id"`
	Content   string     `json:"content"`
	SourceURL string     `json:"source_url"`
	CreatedAt *time.Time `json:"created_at"`
}

// IngestFile stores a local file. Files ending in .jsonl hold one passage
// per line as {"id","content","source_url","created_at"}; anything else is
// treated as plain text.
func (in *Ingester) IngestFile(ctx context.Context, tenantID, path string) (*Report, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	source := "file://" + filepath.ToSlash(abs)

	if !strings.EqualFold(filepath.Ext(path), ".jsonl") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return in.IngestText(ctx, tenantID, source, string(data), nil)
	}

	start := time.Now()
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var passages []model.Passage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNum, err)
		}
		if strings.TrimSpace(rec.Content) == "" {
			return nil, fmt.Errorf("%s:%d: content is required", path, lineNum)
		}

		src := rec.SourceURL
		if src == "" {
			src = source
		}
		id := rec.ID
		if id == "" {
			id = EvidenceID(tenantID, source, lineNum)
		}
		passages = append(passages, model.Passage{
			ID:        id,
			TenantID:  tenantID,
			Content:   rec.Content,
			SourceURL: src,
			CreatedAt: in.timestamp(rec.CreatedAt),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	report, err := in.write(ctx, source, passages)
	if err != nil {
		return nil, err
	}
	report.Duration = time.Since(start)
	return report, nil
}

// store turns passage texts from one source into passages and writes them
func (in *Ingester) store(ctx context.Context, tenantID, source string, texts []string, createdAt *time.Time) (*Report, error) {
	ts := in.timestamp(createdAt)
	passages := make([]model.Passage, len(texts))
	for i, text := range texts {
		passages[i] = model.Passage{
			ID:        EvidenceID(tenantID, source, i),
			TenantID:  tenantID,
			Content:   text,
			SourceURL: source,
			CreatedAt: ts,
		}
	}
	return in.write(ctx, source, passages)
}

// write embeds passages in batches, then stores them in the catalog and,
// when configured, the vector index
func (in *Ingester) write(ctx context.Context, source string, passages []model.Passage) (*Report, error) {
	report := &Report{Source: source, Passages: len(passages)}
	if len(passages) == 0 {
		in.logger.Warn("no passages extracted", "source", source)
		return report, nil
	}

	if in.embedder != nil {
		for start := 0; start < len(passages); start += in.config.EmbedBatch {
			end := min(start+in.config.EmbedBatch, len(passages))
			batch := passages[start:end]

			texts := make([]string, len(batch))
			for i, p := range batch {
				texts[i] = p.Content
			}
			vectors, _, err := retry.Do(ctx, in.config.Retry, func(ctx context.Context) ([][]float32, error) {
				return in.embedder.EmbedBatch(ctx, texts)
			})
			if err != nil {
				return nil, &model.EmbeddingError{Provider: in.embedder.Name(), Err: err}
			}
			if len(vectors) != len(batch) {
				return nil, &model.EmbeddingError{
					Provider: in.embedder.Name(),
					Err:      fmt.Errorf("expected %d vectors, got %d", len(batch), len(vectors)),
				}
			}
			for i := range batch {
				batch[i].Embedding = vectors[i]
			}
			report.Embedded += len(batch)
		}
	}

	if err := in.catalog.UpsertEvidence(ctx, passages); err != nil {
		return nil, fmt.Errorf("store passages: %w", err)
	}
	if in.vectors != nil && report.Embedded > 0 {
		if err := in.vectors.UpsertEvidence(ctx, passages); err != nil {
			return nil, fmt.Errorf("index passages: %w", err)
		}
	}

	in.logger.Info("ingested source", "source", source, "passages", report.Passages, "embedded", report.Embedded)
	return report, nil
}

func (in *Ingester) timestamp(t *time.Time) *time.Time {
	if t != nil {
		utc := t.UTC()
		return &utc
	}
	now := in.now().UTC()
	return &now
}

func firstN(links []extract.Link, n int) []extract.Link {
	if len(links) > n {
		return links[:n]
	}
	return links
}
