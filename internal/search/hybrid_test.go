package search

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/factlens/internal/model"
)

type fakeVector struct {
	hits  []VectorHit
	err   error
	calls atomic.Int32
	topK  int
	delay time.Duration
	hang  bool // block until the call's context ends
}

func (f *fakeVector) SearchVector(ctx context.Context, vector []float32, topK int, filters model.Filters) ([]VectorHit, error) {
	f.calls.Add(1)
	f.topK = topK
	if f.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.hits, f.err
}

type fakeKeyword struct {
	hits  []KeywordHit
	err   error
	calls atomic.Int32
	topK  int
	delay time.Duration
}

func (f *fakeKeyword) SearchKeyword(ctx context.Context, query string, topK int, filters model.Filters) ([]KeywordHit, error) {
	f.calls.Add(1)
	f.topK = topK
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.hits, f.err
}

type fakeLookup map[string]model.EvidenceRef

func (f fakeLookup) LookupEvidence(ctx context.Context, tenantID string, ids []string) (map[string]model.EvidenceRef, error) {
	out := map[string]model.EvidenceRef{}
	for _, id := range ids {
		if ref, ok := f[id]; ok && ref.TenantID == tenantID {
			out[id] = ref
		}
	}
	return out, nil
}

func corpus(tenant string, ids ...string) fakeLookup {
	l := fakeLookup{}
	for _, id := range ids {
		l[id] = model.EvidenceRef{ID: id, TenantID: tenant, Content: "passage " + id}
	}
	return l
}

func baseRequest() Request {
	return Request{
		QueryText:     "the earth orbits the sun",
		QueryVector:   []float32{0.1, 0.2, 0.3},
		TopK:          3,
		VectorWeight:  0.6,
		KeywordWeight: 0.4,
		Filters:       model.Filters{TenantID: "t1"},
	}
}

func TestEngine_HybridWorkedExample(t *testing.T) {
	vec := &fakeVector{hits: []VectorHit{{ID: "A", Similarity: 0.92}, {ID: "X", Similarity: 0.9}, {ID: "B", Similarity: 0.81}}}
	kw := &fakeKeyword{hits: []KeywordHit{{ID: "C", Score: 8}, {ID: "A", Score: 6}}}
	e := NewEngine(vec, kw, corpus("t1", "A", "B", "C"))

	res, err := e.Search(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, model.RetrievalHybrid, res.Method)
	assert.Equal(t, []string{"A", "B", "C"}, ids(res.Evidence), "X is unknown to the catalog and dropped")
	assert.Equal(t, 9, vec.topK, "3 x topK candidates per path")
	assert.Equal(t, 9, kw.topK)
	assert.Equal(t, "passage A", res.Evidence[0].Content)
	assert.Equal(t, model.MatchedBoth, res.Evidence[0].MatchedVia)
}

func TestEngine_TruncatesToTopK(t *testing.T) {
	vec := &fakeVector{hits: []VectorHit{{ID: "a", Similarity: .9}, {ID: "b", Similarity: .8}, {ID: "c", Similarity: .7}}}
	kw := &fakeKeyword{hits: []KeywordHit{{ID: "d", Score: 3}, {ID: "e", Score: 2}}}
	e := NewEngine(vec, kw, corpus("t1", "a", "b", "c", "d", "e"))

	req := baseRequest()
	req.TopK = 2
	res, err := e.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, res.Evidence, 2)
}

func TestEngine_DegradesWhenKeywordFails(t *testing.T) {
	vec := &fakeVector{hits: []VectorHit{{ID: "A", Similarity: 0.9}}}
	kw := &fakeKeyword{err: errors.New("fts unavailable")}
	e := NewEngine(vec, kw, corpus("t1", "A"))

	res, err := e.Search(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, model.RetrievalVectorOnly, res.Method)
	assert.EqualError(t, res.KeywordErr, "fts unavailable")
	require.Len(t, res.Evidence, 1)
	assert.Equal(t, model.MatchedVector, res.Evidence[0].MatchedVia)
}

func TestEngine_DegradesWhenVectorFails(t *testing.T) {
	vec := &fakeVector{err: errors.New("weaviate timeout")}
	kw := &fakeKeyword{hits: []KeywordHit{{ID: "C", Score: 4}}}
	e := NewEngine(vec, kw, corpus("t1", "C"))

	res, err := e.Search(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, model.RetrievalKeywordOnly, res.Method)
	assert.Error(t, res.VectorErr)
	assert.Equal(t, []string{"C"}, ids(res.Evidence))
}

func TestEngine_BothFail(t *testing.T) {
	e := NewEngine(&fakeVector{err: errors.New("v")}, &fakeKeyword{err: errors.New("k")}, corpus("t1"))

	_, err := e.Search(context.Background(), baseRequest())
	var re *model.RetrievalError
	require.ErrorAs(t, err, &re)
	assert.EqualError(t, re.VectorErr, "v")
	assert.EqualError(t, re.KeywordErr, "k")
}

func TestEngine_ZeroWeightPathNotQueried(t *testing.T) {
	vec := &fakeVector{hits: []VectorHit{{ID: "A", Similarity: 0.9}}}
	kw := &fakeKeyword{hits: []KeywordHit{{ID: "B", Score: 1}}}
	e := NewEngine(vec, kw, corpus("t1", "A", "B"))

	res, err := e.VectorOnly(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, model.RetrievalVectorOnly, res.Method)
	assert.Equal(t, int32(0), kw.calls.Load())
	assert.Equal(t, []string{"A"}, ids(res.Evidence))

	res, err = e.KeywordOnly(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, model.RetrievalKeywordOnly, res.Method)
	assert.Equal(t, int32(1), vec.calls.Load())
	assert.Equal(t, []string{"B"}, ids(res.Evidence))
	assert.Nil(t, res.VectorErr, "an unqueried path is not a failure")
}

func TestEngine_KeywordOnlyFailureIsRetrievalError(t *testing.T) {
	e := NewEngine(&fakeVector{}, &fakeKeyword{err: errors.New("down")}, corpus("t1"))
	_, err := e.KeywordOnly(context.Background(), baseRequest())
	var re *model.RetrievalError
	assert.ErrorAs(t, err, &re)
}

func TestEngine_MinVectorSimilarity(t *testing.T) {
	vec := &fakeVector{hits: []VectorHit{{ID: "A", Similarity: 0.9}, {ID: "B", Similarity: 0.2}}}
	e := NewEngine(vec, &fakeKeyword{}, corpus("t1", "A", "B"))

	req := baseRequest()
	req.MinVectorSimilarity = 0.5
	res, err := e.VectorOnly(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ids(res.Evidence))
}

func TestEngine_FiltersReappliedAfterLookup(t *testing.T) {
	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	lookup := fakeLookup{
		"old":    {ID: "old", TenantID: "t1", CreatedAt: &old},
		"recent": {ID: "recent", TenantID: "t1", CreatedAt: &recent},
		"other":  {ID: "other", TenantID: "t2", CreatedAt: &recent},
	}
	vec := &fakeVector{hits: []VectorHit{{ID: "old", Similarity: .9}, {ID: "recent", Similarity: .8}, {ID: "other", Similarity: .7}}}
	e := NewEngine(vec, &fakeKeyword{}, lookup)

	from := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	req := baseRequest()
	req.Filters.DateFrom = &from
	res, err := e.VectorOnly(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"recent"}, ids(res.Evidence))
}

func TestEngine_SubSearchesRunConcurrently(t *testing.T) {
	vec := &fakeVector{hits: []VectorHit{{ID: "A", Similarity: .9}}, delay: 150 * time.Millisecond}
	kw := &fakeKeyword{hits: []KeywordHit{{ID: "A", Score: 1}}, delay: 150 * time.Millisecond}
	e := NewEngine(vec, kw, corpus("t1", "A"))

	start := time.Now()
	_, err := e.Search(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 280*time.Millisecond)
}

func TestEngine_HungVectorDegradesWithinCallTimeout(t *testing.T) {
	vec := &fakeVector{hang: true}
	kw := &fakeKeyword{hits: []KeywordHit{{ID: "A", Score: 2}, {ID: "B", Score: 1}}}
	e := NewEngine(vec, kw, corpus("t1", "A", "B"), WithCallTimeout(50*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	res, err := e.Search(ctx, baseRequest())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, model.RetrievalKeywordOnly, res.Method)
	assert.ErrorIs(t, res.VectorErr, context.DeadlineExceeded)
	assert.Equal(t, []string{"A", "B"}, ids(res.Evidence))
}

func TestEngine_CallerDeadlineAbortsSearch(t *testing.T) {
	vec := &fakeVector{hang: true}
	kw := &fakeKeyword{hits: []KeywordHit{{ID: "A", Score: 1}}}
	e := NewEngine(vec, kw, corpus("t1", "A"), WithCallTimeout(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := e.Search(ctx, baseRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	var re *model.RetrievalError
	assert.False(t, errors.As(err, &re), "an expired caller context is not a retrieval failure")
}

func TestEngine_Validation(t *testing.T) {
	e := NewEngine(&fakeVector{}, &fakeKeyword{}, corpus("t1"))

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"topK zero", func(r *Request) { r.TopK = 0 }},
		{"no tenant", func(r *Request) { r.Filters.TenantID = "" }},
		{"negative weight", func(r *Request) { r.VectorWeight = -1 }},
		{"both weights zero", func(r *Request) { r.VectorWeight, r.KeywordWeight = 0, 0 }},
		{"missing vector", func(r *Request) { r.QueryVector = nil }},
		{"missing text", func(r *Request) { r.QueryText = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest()
			tt.mutate(&req)
			_, err := e.Search(context.Background(), req)
			var ve *model.ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestEngine_EmptyResultsAreNotAnError(t *testing.T) {
	e := NewEngine(&fakeVector{}, &fakeKeyword{}, corpus("t1"))
	res, err := e.Search(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Empty(t, res.Evidence)
	assert.Equal(t, model.RetrievalHybrid, res.Method)
}
