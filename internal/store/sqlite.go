package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/search"
)

// SQLiteStore keeps evidence, embeddings and results in one SQLite file.
// It serves as EvidenceLookup, KeywordIndex (FTS5), VectorIndex (exact
// cosine scan) and result store.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and ensures the schema.
// Use ":memory:" for a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStore{db: db}
	if err := s.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS evidence (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			content TEXT NOT NULL,
			source_url TEXT,
			created_at INTEGER,
			embedding BLOB,
			UNIQUE (tenant_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_evidence_tenant ON evidence(tenant_id)`,
		`CREATE TABLE IF NOT EXISTS verifications (
			id TEXT PRIMARY KEY,
			claim_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			claim_text TEXT NOT NULL,
			verdict TEXT NOT NULL,
			confidence REAL NOT NULL,
			retrieval_method TEXT,
			duration_ms INTEGER,
			created_at INTEGER NOT NULL,
			payload TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_verifications_claim ON verifications(tenant_id, claim_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	var ftsExists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='evidence_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}
	if ftsExists > 0 {
		return nil
	}

	ftsStatements := []string{
		`CREATE VIRTUAL TABLE evidence_fts USING fts5(content, content=evidence, content_rowid=rowid)`,
		`CREATE TRIGGER evidence_ai AFTER INSERT ON evidence BEGIN
			INSERT INTO evidence_fts(rowid, content) VALUES (new.rowid, new.content);
		END`,
		`CREATE TRIGGER evidence_ad AFTER DELETE ON evidence BEGIN
			INSERT INTO evidence_fts(evidence_fts, rowid, content) VALUES('delete', old.rowid, old.content);
		END`,
		`CREATE TRIGGER evidence_au AFTER UPDATE ON evidence BEGIN
			INSERT INTO evidence_fts(evidence_fts, rowid, content) VALUES('delete', old.rowid, old.content);
			INSERT INTO evidence_fts(rowid, content) VALUES (new.rowid, new.content);
		END`,
	}
	for _, stmt := range ftsStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating FTS infrastructure: %w", err)
		}
	}
	return nil
}

// UpsertEvidence inserts or replaces passages. A passage without an
// embedding keeps any embedding already stored for it.
func (s *SQLiteStore) UpsertEvidence(ctx context.Context, passages []model.Passage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &model.StorageError{Op: "begin", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO evidence (id, tenant_id, content, source_url, created_at, embedding)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			content = excluded.content,
			source_url = excluded.source_url,
			created_at = excluded.created_at,
			embedding = COALESCE(excluded.embedding, evidence.embedding)`)
	if err != nil {
		return &model.StorageError{Op: "prepare upsert", Err: err}
	}
	defer func() { _ = stmt.Close() }()

	for _, p := range passages {
		var embedding any
		if len(p.Embedding) > 0 {
			embedding = encodeVector(p.Embedding)
		}
		if _, err := stmt.ExecContext(ctx, p.ID, p.TenantID, p.Content,
			nullString(p.SourceURL), unixMillis(p.CreatedAt), embedding); err != nil {
			return &model.StorageError{Op: "upsert evidence", Err: fmt.Errorf("%s: %w", p.ID, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &model.StorageError{Op: "commit", Err: err}
	}
	return nil
}

// LookupEvidence implements search.EvidenceLookup
func (s *SQLiteStore) LookupEvidence(ctx context.Context, tenantID string, ids []string) (map[string]model.EvidenceRef, error) {
	out := make(map[string]model.EvidenceRef, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := []any{tenantID}
	for _, id := range ids {
		args = append(args, id)
	}
	query := `SELECT id, tenant_id, content, source_url, created_at FROM evidence
		WHERE tenant_id = ? AND id IN (?` + strings.Repeat(", ?", len(ids)-1) + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying evidence: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			ref       model.EvidenceRef
			sourceURL sql.NullString
			createdAt sql.NullInt64
		)
		if err := rows.Scan(&ref.ID, &ref.TenantID, &ref.Content, &sourceURL, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning evidence: %w", err)
		}
		ref.SourceURL = sourceURL.String
		ref.CreatedAt = fromMillis(createdAt)
		out[ref.ID] = ref
	}
	return out, rows.Err()
}

// SearchKeyword implements search.KeywordIndex with FTS5 BM25 ranking.
// The returned score is the negated BM25 rank so that higher is better.
func (s *SQLiteStore) SearchKeyword(ctx context.Context, query string, topK int, filters model.Filters) ([]search.KeywordHit, error) {
	match := ftsMatchQuery(query)
	if match == "" {
		return nil, nil
	}

	var qb strings.Builder
	qb.WriteString(`SELECT e.id, evidence_fts.rank
		FROM evidence_fts
		JOIN evidence e ON e.rowid = evidence_fts.rowid
		WHERE evidence_fts MATCH ?`)
	args := []any{match}
	args = appendSQLiteFilters(&qb, args, filters)
	qb.WriteString(` ORDER BY evidence_fts.rank, e.id LIMIT ?`)
	args = append(args, topK)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []search.KeywordHit
	for rows.Next() {
		var (
			id   string
			rank float64
		)
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, fmt.Errorf("scanning keyword hit: %w", err)
		}
		hits = append(hits, search.KeywordHit{ID: id, Score: -rank})
	}
	return hits, rows.Err()
}

// SearchVector implements search.VectorIndex by scanning every embedding
// that passes the filters. Suitable for corpora of up to a few hundred
// thousand passages; larger deployments use Weaviate.
func (s *SQLiteStore) SearchVector(ctx context.Context, vector []float32, topK int, filters model.Filters) ([]search.VectorHit, error) {
	var qb strings.Builder
	qb.WriteString(`SELECT e.id, e.embedding FROM evidence e WHERE e.embedding IS NOT NULL`)
	args := appendSQLiteFilters(&qb, nil, filters)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("vector scan: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []search.VectorHit
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scanning embedding: %w", err)
		}
		hits = append(hits, search.VectorHit{ID: id, Similarity: cosine(vector, decodeVector(raw))})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// SaveVerification stores a result and returns its ID, assigning one when empty
func (s *SQLiteStore) SaveVerification(ctx context.Context, r *model.VerificationResult) (string, error) {
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
		(id, claim_id, tenant_id, claim_text, verdict, confidence, retrieval_method, duration_ms, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET payload = excluded.payload`,
		stored.ID, stored.ClaimID, stored.TenantID, stored.ClaimText, string(stored.Verdict),
		stored.Confidence, string(stored.RetrievalMethod), stored.Duration.Milliseconds(),
		stored.CreatedAt.UnixMilli(), string(payload))
	if err != nil {
		return "", &model.StorageError{Op: "insert verification", Err: err}
	}
	return stored.ID, nil
}

// GetVerification loads a stored result
func (s *SQLiteStore) GetVerification(ctx context.Context, tenantID, id string) (*model.VerificationResult, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM verifications WHERE tenant_id = ? AND id = ?`, tenantID, id,
	).Scan(&payload)
	if err != nil {
		return nil, &model.StorageError{Op: "get verification", Err: err}
	}
	var r model.VerificationResult
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, &model.StorageError{Op: "decode verification", Err: err}
	}
	return &r, nil
}

// CountVerifications returns how many results are stored for a claim
func (s *SQLiteStore) CountVerifications(ctx context.Context, tenantID, claimID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM verifications WHERE tenant_id = ? AND claim_id = ?`, tenantID, claimID,
	).Scan(&n)
	return n, err
}

func appendSQLiteFilters(qb *strings.Builder, args []any, f model.Filters) []any {
	qb.WriteString(` AND e.tenant_id = ?`)
	args = append(args, f.TenantID)
	if f.SourceURL != nil {
		qb.WriteString(` AND e.source_url = ?`)
		args = append(args, *f.SourceURL)
	}
	if f.DateFrom != nil {
		qb.WriteString(` AND e.created_at >= ?`)
		args = append(args, f.DateFrom.UnixMilli())
	}
	if f.DateTo != nil {
		qb.WriteString(` AND e.created_at <= ?`)
		args = append(args, f.DateTo.UnixMilli())
	}
	return args
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func unixMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
