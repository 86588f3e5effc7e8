package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/factlens/internal/model"
)

func TestBuildKeywordQuery(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := "https://a.example"

	sqlText, args := buildKeywordQuery("Earth orbits Sun", 9, model.Filters{TenantID: "t1", SourceURL: &src, DateFrom: &from})

	assert.Contains(t, sqlText, "to_tsquery('english', $1)")
	assert.Contains(t, sqlText, "e.tenant_id = $2")
	assert.Contains(t, sqlText, "e.source_url = $3")
	assert.Contains(t, sqlText, "e.created_at >= $4")
	assert.Contains(t, sqlText, "LIMIT $5")
	assert.NotContains(t, sqlText, "created_at <=")
	assert.Equal(t, []any{"earth | orbits | sun", "t1", src, from, 9}, args)
}

func TestBuildKeywordQuery_NoTerms(t *testing.T) {
	sqlText, args := buildKeywordQuery("!!", 5, model.Filters{TenantID: "t1"})
	assert.Empty(t, sqlText)
	assert.Nil(t, args)
}

func TestPostgresStore_Integration(t *testing.T) {
	dsn := os.Getenv("FACTLENS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FACTLENS_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	tenant := "it-" + time.Now().Format("150405.000000")
	require.NoError(t, s.UpsertEvidence(ctx, []model.Passage{
		{ID: "p1", TenantID: tenant, Content: "The Earth orbits the Sun once a year."},
		{ID: "p2", TenantID: tenant, Content: "Volcanoes erupt molten rock."},
	}))

	hits, err := s.SearchKeyword(ctx, "earth orbit sun", 5, model.Filters{TenantID: tenant})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "p1", hits[0].ID)

	refs, err := s.LookupEvidence(ctx, tenant, []string{"p1", "p2", "nope"})
	require.NoError(t, err)
	assert.Len(t, refs, 2)

	id, err := s.SaveVerification(ctx, &model.VerificationResult{ClaimID: "c", TenantID: tenant, ClaimText: "x", Verdict: model.VerdictInsufficient, CreatedAt: time.Now()})
	require.NoError(t, err)
	got, err := s.GetVerification(ctx, tenant, id)
	require.NoError(t, err)
	assert.Equal(t, model.VerdictInsufficient, got.Verdict)
}
