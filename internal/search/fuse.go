package search

import (
	"sort"

	"github.com/ppiankov/factlens/internal/model"
)

// DefaultRRFK is the rank damping constant of Reciprocal Rank Fusion
const DefaultRRFK = 60.0

// Fuse merges two best-first hit lists into one ranking. Each list assigns
// 1-indexed ranks after dropping repeated IDs, and a document scores
// vectorWeight/(k+rankV) + keywordWeight/(k+rankK), where a list it is
// missing from contributes nothing. The result is sorted by fused score,
// then vector similarity, then keyword score, then ID. Only IDs and
// provenance are filled in.
func Fuse(vector []VectorHit, keyword []KeywordHit, vectorWeight, keywordWeight, k float64) []model.RankedEvidence {
	if k <= 0 {
		k = DefaultRRFK
	}

	byID := make(map[string]*model.RankedEvidence, len(vector)+len(keyword))
	var order []string

	get := func(id string) *model.RankedEvidence {
		if re, ok := byID[id]; ok {
			return re
		}
		re := &model.RankedEvidence{EvidenceRef: model.EvidenceRef{ID: id}}
		byID[id] = re
		order = append(order, id)
		return re
	}

	rank := 0
	for _, hit := range vector {
		if re, ok := byID[hit.ID]; ok && re.VectorRank > 0 {
			continue
		}
		rank++
		re := get(hit.ID)
		sim := hit.Similarity
		re.VectorSimilarity = &sim
		re.VectorRank = rank
		re.FusedScore += vectorWeight / (k + float64(rank))
		re.MatchedVia = model.MatchedVector
	}

	rank = 0
	for _, hit := range keyword {
		if re, ok := byID[hit.ID]; ok && re.KeywordRank > 0 {
			continue
		}
		rank++
		re := get(hit.ID)
		score := hit.Score
		re.KeywordScore = &score
		re.KeywordRank = rank
		re.FusedScore += keywordWeight / (k + float64(rank))
		if re.VectorRank > 0 {
			re.MatchedVia = model.MatchedBoth
		} else {
			re.MatchedVia = model.MatchedKeyword
		}
	}

	out := make([]model.RankedEvidence, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	SortRanked(out)
	return out
}

// SortRanked orders evidence by fused score descending with deterministic
// tie-breaks.
func SortRanked(evidence []model.RankedEvidence) {
	sort.SliceStable(evidence, func(i, j int) bool {
		a, b := evidence[i], evidence[j]
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		if av, bv := floatOr(a.VectorSimilarity, -1), floatOr(b.VectorSimilarity, -1); av != bv {
			return av > bv
		}
		if ak, bk := floatOr(a.KeywordScore, -1), floatOr(b.KeywordScore, -1); ak != bk {
			return ak > bk
		}
		return a.ID < b.ID
	})
}

func floatOr(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}
