// Package verdict turns per-evidence NLI judgments into a claim verdict.
package verdict

import (
	"fmt"
	"math"
	"strings"

	"github.com/ppiankov/factlens/internal/model"
)

// Thresholds and weights used when Options leaves them unset
const (
	DefaultSupportThreshold = 0.6
	DefaultRefuteThreshold  = 0.6
	DefaultTieTolerance     = 1e-9
	DefaultKeywordWeight    = 1.0
)

// WeightedJudgment is a judgment paired with the retrieval similarity of
// its evidence. Similarity is nil for keyword-only matches.
type WeightedJudgment struct {
	model.InferenceJudgment
	Similarity *float64
}

// Options tunes aggregation
type Options struct {
	SupportThreshold float64
	RefuteThreshold  float64
	TieTolerance     float64
	KeywordWeight    float64 // Weight for judgments without a vector similarity

	// FailedPairs is the number of NLI pairs that produced no judgment.
	// A positive value is flagged in the rationale.
	FailedPairs int
}

// DefaultOptions returns the standard thresholds
func DefaultOptions() Options {
	return Options{
		SupportThreshold: DefaultSupportThreshold,
		RefuteThreshold:  DefaultRefuteThreshold,
		TieTolerance:     DefaultTieTolerance,
		KeywordWeight:    DefaultKeywordWeight,
	}
}

// OptionsFromConfig converts the verdict config section
func OptionsFromConfig(cfg model.VerdictConfig) Options {
	return Options{
		SupportThreshold: cfg.SupportThreshold,
		RefuteThreshold:  cfg.RefuteThreshold,
		TieTolerance:     cfg.TieTolerance,
		KeywordWeight:    cfg.KeywordWeight,
	}
}

// Outcome is the aggregated verdict
type Outcome struct {
	Verdict      model.Verdict
	Confidence   float64
	SupportScore float64
	RefuteScore  float64
	NeutralScore float64
	Rationale    string
}

// Aggregator applies a fixed set of options
type Aggregator struct {
	opts Options
}

// NewAggregator creates an aggregator
func NewAggregator(opts Options) *Aggregator {
	return &Aggregator{opts: opts}
}

// Aggregate computes the verdict for judgments
func (a *Aggregator) Aggregate(judgments []WeightedJudgment, failedPairs int) Outcome {
	opts := a.opts
	opts.FailedPairs = failedPairs
	return Aggregate(judgments, opts)
}

// FromJudged builds weighted judgments from judged evidence, taking the
// weight from the evidence's vector similarity.
func FromJudged(judged []model.JudgedEvidence) []WeightedJudgment {
	out := make([]WeightedJudgment, len(judged))
	for i, j := range judged {
		out[i] = WeightedJudgment{
			InferenceJudgment: j.InferenceJudgment,
			Similarity:        j.Evidence.VectorSimilarity,
		}
	}
	return out
}

// Aggregate computes the weighted support, refute and neutral scores and
// selects a verdict.
//
// Each judgment's score triple is weighted by its vector similarity clamped
// to [0,1], or by KeywordWeight when it has none. If every weight is zero
// the judgments are weighted uniformly. The three sums are divided by the
// total weight.
func Aggregate(judgments []WeightedJudgment, opts Options) Outcome {
	opts = withDefaults(opts)

	if len(judgments) == 0 {
		return Outcome{
			Verdict:    model.VerdictInsufficient,
			Confidence: 0,
			Rationale:  "INSUFFICIENT: no evidence found for this claim.",
		}
	}

	weights := make([]float64, len(judgments))
	total := 0.0
	for i, j := range judgments {
		w := opts.KeywordWeight
		if j.Similarity != nil {
			w = clamp01(*j.Similarity)
		}
		weights[i] = w
		total += w
	}
	if total == 0 {
		for i := range weights {
			weights[i] = 1
		}
		total = float64(len(weights))
	}

	var support, refute, neutral float64
	for i, j := range judgments {
		support += weights[i] * j.Scores.Entailment
		refute += weights[i] * j.Scores.Contradiction
		neutral += weights[i] * j.Scores.Neutral
	}
	support /= total
	refute /= total
	neutral /= total

	dominant := math.Max(support, math.Max(refute, neutral))

	out := Outcome{
		SupportScore: support,
		RefuteScore:  refute,
		NeutralScore: neutral,
	}

	tie := math.Abs(support-refute) <= opts.TieTolerance

	switch {
	case tie:
		out.Verdict = model.VerdictInsufficient
		out.Confidence = dominant
	case support >= opts.SupportThreshold && support == dominant:
		out.Verdict = model.VerdictSupported
		out.Confidence = support
	case refute >= opts.RefuteThreshold && refute == dominant:
		out.Verdict = model.VerdictRefuted
		out.Confidence = refute
	default:
		out.Verdict = model.VerdictInsufficient
		out.Confidence = dominant
	}

	out.Rationale = rationale(out, len(judgments), opts.FailedPairs, tie)
	return out
}

func rationale(o Outcome, count, failed int, tie bool) string {
	var b strings.Builder

	noun := "passages"
	if count == 1 {
		noun = "passage"
	}
	fmt.Fprintf(&b, "%s: %d evidence %s judged, dominant score %.2f (support %.2f, refute %.2f, neutral %.2f).",
		o.Verdict, count, noun, math.Max(o.SupportScore, math.Max(o.RefuteScore, o.NeutralScore)),
		o.SupportScore, o.RefuteScore, o.NeutralScore)

	if tie {
		b.WriteString(" Support and refutation are tied.")
	}
	if count < 2 {
		b.WriteString(" Low evidential support: fewer than two passages.")
	}
	if failed > 0 {
		fmt.Fprintf(&b, " Partial inference: %d of %d evidence pairs could not be judged.", failed, count+failed)
	}
	return b.String()
}

func withDefaults(opts Options) Options {
	if opts.SupportThreshold <= 0 {
		opts.SupportThreshold = DefaultSupportThreshold
	}
	if opts.RefuteThreshold <= 0 {
		opts.RefuteThreshold = DefaultRefuteThreshold
	}
	if opts.TieTolerance <= 0 {
		opts.TieTolerance = DefaultTieTolerance
	}
	if opts.KeywordWeight <= 0 {
		opts.KeywordWeight = DefaultKeywordWeight
	}
	return opts
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
