package verdict

import (
	"math"
	"strings"
	"testing"

	"github.com/ppiankov/factlens/internal/model"
)

func judgment(id string, e, c, n float64, sim *float64) WeightedJudgment {
	label := model.LabelNeutral
	switch {
	case e >= c && e >= n:
		label = model.LabelEntailment
	case c >= e && c >= n:
		label = model.LabelContradiction
	}
	return WeightedJudgment{
		InferenceJudgment: model.InferenceJudgment{
			EvidenceID: id,
			Label:      label,
			Scores:     model.ScoreTriple{Entailment: e, Contradiction: c, Neutral: n},
		},
		Similarity: sim,
	}
}

func ptr(v float64) *float64 { return &v }

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestAggregate_NoEvidence(t *testing.T) {
	out := Aggregate(nil, DefaultOptions())

	if out.Verdict != model.VerdictInsufficient {
		t.Errorf("Expected INSUFFICIENT, got %s", out.Verdict)
	}
	if out.Confidence != 0 {
		t.Errorf("Expected confidence 0, got %f", out.Confidence)
	}
	if !strings.Contains(out.Rationale, "no evidence found") {
		t.Errorf("Expected no-evidence rationale, got %q", out.Rationale)
	}
}

func TestAggregate_SupportedAboveThreshold(t *testing.T) {
	// Single keyword-only judgment with weight 1.0.
	out := Aggregate([]WeightedJudgment{judgment("e1", 0.75, 0.10, 0.15, nil)}, DefaultOptions())

	if out.Verdict != model.VerdictSupported {
		t.Fatalf("Expected SUPPORTED, got %s", out.Verdict)
	}
	if !near(out.Confidence, 0.75) {
		t.Errorf("Expected confidence 0.75, got %f", out.Confidence)
	}
	if !near(out.SupportScore, 0.75) || !near(out.RefuteScore, 0.10) || !near(out.NeutralScore, 0.15) {
		t.Errorf("Unexpected scores: %+v", out)
	}
	if !strings.Contains(out.Rationale, "Low evidential support") {
		t.Errorf("Expected low-support flag for a single passage, got %q", out.Rationale)
	}
}

func TestAggregate_Refuted(t *testing.T) {
	out := Aggregate([]WeightedJudgment{
		judgment("e1", 0.1, 0.8, 0.1, ptr(0.9)),
		judgment("e2", 0.2, 0.7, 0.1, ptr(0.9)),
	}, DefaultOptions())

	if out.Verdict != model.VerdictRefuted {
		t.Fatalf("Expected REFUTED, got %s", out.Verdict)
	}
	if !near(out.Confidence, 0.75) {
		t.Errorf("Expected confidence 0.75, got %f", out.Confidence)
	}
	if strings.Contains(out.Rationale, "Low evidential support") {
		t.Errorf("Did not expect low-support flag for two passages: %q", out.Rationale)
	}
}

func TestAggregate_BelowThresholdIsInsufficient(t *testing.T) {
	out := Aggregate([]WeightedJudgment{
		judgment("e1", 0.5, 0.2, 0.3, nil),
		judgment("e2", 0.5, 0.2, 0.3, nil),
	}, DefaultOptions())

	if out.Verdict != model.VerdictInsufficient {
		t.Fatalf("Expected INSUFFICIENT, got %s", out.Verdict)
	}
	if !near(out.Confidence, 0.5) {
		t.Errorf("Expected confidence = dominant 0.5, got %f", out.Confidence)
	}
}

func TestAggregate_NeutralDominant(t *testing.T) {
	out := Aggregate([]WeightedJudgment{
		judgment("e1", 0.1, 0.1, 0.8, nil),
		judgment("e2", 0.2, 0.0, 0.8, nil),
	}, DefaultOptions())

	if out.Verdict != model.VerdictInsufficient {
		t.Fatalf("Expected INSUFFICIENT, got %s", out.Verdict)
	}
	if !near(out.Confidence, 0.8) {
		t.Errorf("Expected confidence 0.8, got %f", out.Confidence)
	}
}

func TestAggregate_TieIsInsufficient(t *testing.T) {
	// Support and refute tie at 0.5 each.
	out := Aggregate([]WeightedJudgment{
		judgment("e1", 1.0, 0.0, 0.0, ptr(0.8)),
		judgment("e2", 0.0, 1.0, 0.0, ptr(0.8)),
	}, DefaultOptions())

	if out.Verdict != model.VerdictInsufficient {
		t.Fatalf("Expected INSUFFICIENT on tie, got %s", out.Verdict)
	}
	if !near(out.SupportScore, out.RefuteScore) {
		t.Errorf("Expected tied scores, got %f / %f", out.SupportScore, out.RefuteScore)
	}
	if !strings.Contains(out.Rationale, "tied") {
		t.Errorf("Expected tie in rationale, got %q", out.Rationale)
	}
}

func TestAggregate_TieToleranceOverridesThreshold(t *testing.T) {
	opts := DefaultOptions()
	opts.TieTolerance = 0.1

	// support 0.65, refute 0.6: above both thresholds but within tolerance.
	out := Aggregate([]WeightedJudgment{
		judgment("e1", 0.65, 0.60, 0.0, nil),
	}, opts)

	if out.Verdict != model.VerdictInsufficient {
		t.Errorf("Expected INSUFFICIENT within tie tolerance, got %s", out.Verdict)
	}
}

func TestAggregate_SimilarityWeighting(t *testing.T) {
	// The strongly similar passage supports, the weakly similar one refutes.
	out := Aggregate([]WeightedJudgment{
		judgment("e1", 0.9, 0.05, 0.05, ptr(0.9)),
		judgment("e2", 0.05, 0.9, 0.05, ptr(0.1)),
	}, DefaultOptions())

	wantSupport := (0.9*0.9 + 0.1*0.05) / 1.0
	if !near(out.SupportScore, wantSupport) {
		t.Errorf("Expected support %f, got %f", wantSupport, out.SupportScore)
	}
	if out.Verdict != model.VerdictSupported {
		t.Errorf("Expected SUPPORTED, got %s", out.Verdict)
	}
}

func TestAggregate_SimilarityClamped(t *testing.T) {
	out := Aggregate([]WeightedJudgment{
		judgment("e1", 1.0, 0.0, 0.0, ptr(1.7)),
		judgment("e2", 0.0, 0.0, 1.0, ptr(-0.4)),
	}, DefaultOptions())

	// Weights clamp to 1 and 0, so only e1 counts.
	if !near(out.SupportScore, 1.0) {
		t.Errorf("Expected support 1.0, got %f", out.SupportScore)
	}
}

func TestAggregate_AllZeroWeightsUniform(t *testing.T) {
	out := Aggregate([]WeightedJudgment{
		judgment("e1", 0.8, 0.1, 0.1, ptr(0)),
		judgment("e2", 0.6, 0.2, 0.2, ptr(0)),
	}, DefaultOptions())

	if !near(out.SupportScore, 0.7) {
		t.Errorf("Expected uniform-weighted support 0.7, got %f", out.SupportScore)
	}
	if out.Verdict != model.VerdictSupported {
		t.Errorf("Expected SUPPORTED, got %s", out.Verdict)
	}
}

func TestAggregate_ScoresNormalizedAcrossCounts(t *testing.T) {
	one := Aggregate([]WeightedJudgment{judgment("e1", 0.7, 0.2, 0.1, nil)}, DefaultOptions())

	many := make([]WeightedJudgment, 10)
	for i := range many {
		many[i] = judgment("e", 0.7, 0.2, 0.1, nil)
	}
	ten := Aggregate(many, DefaultOptions())

	if !near(one.SupportScore, ten.SupportScore) {
		t.Errorf("Expected count-independent scores, got %f vs %f", one.SupportScore, ten.SupportScore)
	}
}

func TestAggregator_PartialInferenceFlag(t *testing.T) {
	a := NewAggregator(DefaultOptions())
	out := a.Aggregate([]WeightedJudgment{
		judgment("e1", 0.9, 0.05, 0.05, nil),
		judgment("e2", 0.9, 0.05, 0.05, nil),
	}, 3)

	if !strings.Contains(out.Rationale, "Partial inference: 3 of 5") {
		t.Errorf("Expected partial inference flag, got %q", out.Rationale)
	}
}

func TestFromJudged(t *testing.T) {
	sim := 0.42
	judged := []model.JudgedEvidence{
		{
			InferenceJudgment: model.InferenceJudgment{EvidenceID: "a"},
			Evidence:          model.RankedEvidence{VectorSimilarity: &sim},
		},
		{
			InferenceJudgment: model.InferenceJudgment{EvidenceID: "b"},
		},
	}

	weighted := FromJudged(judged)
	if len(weighted) != 2 {
		t.Fatalf("Expected 2, got %d", len(weighted))
	}
	if weighted[0].Similarity == nil || *weighted[0].Similarity != 0.42 {
		t.Errorf("Expected similarity 0.42, got %v", weighted[0].Similarity)
	}
	if weighted[1].Similarity != nil {
		t.Errorf("Expected nil similarity for keyword-only evidence")
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(model.DefaultConfig().Verdict)
	if opts.SupportThreshold != 0.6 || opts.RefuteThreshold != 0.6 || opts.KeywordWeight != 1.0 {
		t.Errorf("Unexpected options: %+v", opts)
	}
}
