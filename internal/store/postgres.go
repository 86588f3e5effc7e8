package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/search"
)

// PostgresStore keeps the evidence catalog and results in Postgres and
// serves keyword search from a generated tsvector column. Embeddings live
// in the external vector index.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects with dsn, pings and ensures the schema
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the connection pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) createSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS evidence (
			tenant_id  TEXT NOT NULL,
			id         TEXT NOT NULL,
			content    TEXT NOT NULL,
			source_url TEXT,
			created_at TIMESTAMPTZ,
			tsv        tsvector GENERATED ALWAYS AS (to_tsvector('english', content)) STORED,
			PRIMARY KEY (tenant_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_evidence_tsv ON evidence USING GIN (tsv)`,
		`CREATE TABLE IF NOT EXISTS verifications (
			id               TEXT PRIMARY KEY,
			claim_id         TEXT NOT NULL,
			tenant_id        TEXT NOT NULL,
			claim_text       TEXT NOT NULL,
			verdict          TEXT NOT NULL,
			confidence       DOUBLE PRECISION NOT NULL,
			retrieval_method TEXT,
			duration_ms      BIGINT,
			result           JSONB NOT NULL,
			created_at       TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_verifications_claim ON verifications (tenant_id, claim_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// UpsertEvidence inserts or replaces passages; embeddings are ignored
func (s *PostgresStore) UpsertEvidence(ctx context.Context, passages []model.Passage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &model.StorageError{Op: "begin", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range passages {
		var createdAt any
		if p.CreatedAt != nil {
			createdAt = *p.CreatedAt
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO evidence (tenant_id, id, content, source_url, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (tenant_id, id) DO UPDATE SET
				content = EXCLUDED.content,
				source_url = EXCLUDED.source_url,
				created_at = EXCLUDED.created_at`,
			p.TenantID, p.ID, p.Content, nullString(p.SourceURL), createdAt)
		if err != nil {
			return &model.StorageError{Op: "upsert evidence", Err: fmt.Errorf("%s: %w", p.ID, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &model.StorageError{Op: "commit", Err: err}
	}
	return nil
}

// LookupEvidence implements search.EvidenceLookup
func (s *PostgresStore) LookupEvidence(ctx context.Context, tenantID string, ids []string) (map[string]model.EvidenceRef, error) {
	out := make(map[string]model.EvidenceRef, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, content, source_url, created_at FROM evidence
		WHERE tenant_id = $1 AND id = ANY($2)`, tenantID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("querying evidence: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			ref       model.EvidenceRef
			sourceURL sql.NullString
			createdAt sql.NullTime
		)
		if err := rows.Scan(&ref.ID, &ref.TenantID, &ref.Content, &sourceURL, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning evidence: %w", err)
		}
		ref.SourceURL = sourceURL.String
		if createdAt.Valid {
			t := createdAt.Time.UTC()
			ref.CreatedAt = &t
		}
		out[ref.ID] = ref
	}
	return out, rows.Err()
}

// buildKeywordQuery returns the ranked tsquery SQL and its arguments, or
// an empty query when the text has no searchable terms.
func buildKeywordQuery(text string, topK int, f model.Filters) (string, []any) {
	q := tsQuery(text)
	if q == "" {
		return "", nil
	}

	var qb strings.Builder
	args := []any{q, f.TenantID}
	qb.WriteString(`SELECT e.id, ts_rank_cd(e.tsv, query) AS score
		FROM evidence e, to_tsquery('english', $1) query
		WHERE e.tsv @@ query AND e.tenant_id = $2`)

	if f.SourceURL != nil {
		args = append(args, *f.SourceURL)
		fmt.Fprintf(&qb, ` AND e.source_url = $%d`, len(args))
	}
	if f.DateFrom != nil {
		args = append(args, *f.DateFrom)
		fmt.Fprintf(&qb, ` AND e.created_at >= $%d`, len(args))
	}
	if f.DateTo != nil {
		args = append(args, *f.DateTo)
		fmt.Fprintf(&qb, ` AND e.created_at <= $%d`, len(args))
	}

	args = append(args, topK)
	fmt.Fprintf(&qb, ` ORDER BY score DESC, e.id LIMIT $%d`, len(args))
	return qb.String(), args
}

// SearchKeyword implements search.KeywordIndex
func (s *PostgresStore) SearchKeyword(ctx context.Context, query string, topK int, filters model.Filters) ([]search.KeywordHit, error) {
	sqlText, args := buildKeywordQuery(query, topK, filters)
	if sqlText == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []search.KeywordHit
	for rows.Next() {
		var h search.KeywordHit
		if err := rows.Scan(&h.ID, &h.Score); err != nil {
			return nil, fmt.Errorf("scanning keyword hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// SaveVerification stores a result and returns its ID, assigning one when empty
func (s *PostgresStore) SaveVerification(ctx context.Context, r *model.VerificationResult) (string, error) {
	stored := r.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.FromCache = false

	payload, err := json.Marshal(stored)
	if err != nil {
		return "", &model.StorageError{Op: "marshal result", Err: err}
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO verifications
		(id, claim_id, tenant_id, claim_text, verdict, confidence, retrieval_method, duration_ms, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET result = EXCLUDED.result`,
		stored.ID, stored.ClaimID, stored.TenantID, stored.ClaimText, string(stored.Verdict),
		stored.Confidence, string(stored.RetrievalMethod), stored.Duration.Milliseconds(),
		string(payload), stored.CreatedAt)
	if err != nil {
		return "", &model.StorageError{Op: "insert verification", Err: err}
	}
	return stored.ID, nil
}

// GetVerification loads a stored result
func (s *PostgresStore) GetVerification(ctx context.Context, tenantID, id string) (*model.VerificationResult, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM verifications WHERE tenant_id = $1 AND id = $2`, tenantID, id,
	).Scan(&payload)
	if err != nil {
		return nil, &model.StorageError{Op: "get verification", Err: err}
	}
	var r model.VerificationResult
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, &model.StorageError{Op: "decode verification", Err: err}
	}
	return &r, nil
}
