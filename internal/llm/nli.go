package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/ppiankov/factlens/internal/model"
)

// nliSystemPrompt instructs chat models to act as an NLI classifier
const nliSystemPrompt = `You are a natural language inference classifier. Given a PREMISE (an evidence passage) and a HYPOTHESIS (a claim), decide whether the premise entails the hypothesis, contradicts it, or is neutral toward it.

Judge ONLY from the premise. Do not use outside knowledge.

Respond with a single JSON object and nothing else:
{"label": "entailment" | "contradiction" | "neutral", "entailment": <0..1>, "contradiction": <0..1>, "neutral": <0..1>}

The three probabilities must sum to 1.`

// BuildNLIPrompt renders the user message for one pair
func BuildNLIPrompt(pair NLIPair) string {
	return fmt.Sprintf("PREMISE:\n%s\n\nHYPOTHESIS:\n%s", strings.TrimSpace(pair.Premise), strings.TrimSpace(pair.Hypothesis))
}

type nliJSON struct {
	Label         string   `json:"label"`
	Confidence    *float64 `json:"confidence"`
	Entailment    *float64 `json:"entailment"`
	Contradiction *float64 `json:"contradiction"`
	Neutral       *float64 `json:"neutral"`
}

// ParseNLIOutput extracts a judgment from a model's text response. It
// accepts a bare JSON object or one wrapped in prose or a code fence.
// Scores are clamped to [0,1] and renormalized to sum to 1; when the model
// returns only a label the label takes the stated confidence (default 1)
// and the rest is split evenly.
func ParseNLIOutput(text string) (NLIOutput, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return NLIOutput{}, fmt.Errorf("no JSON object in response: %q", truncate(text, 80))
	}

	var raw nliJSON
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return NLIOutput{}, fmt.Errorf("parse NLI response: %w", err)
	}

	label := model.NLILabel(strings.ToLower(strings.TrimSpace(raw.Label)))

	var scores model.ScoreTriple
	switch {
	case raw.Entailment != nil && raw.Contradiction != nil && raw.Neutral != nil:
		scores = model.ScoreTriple{
			Entailment:    clamp01(*raw.Entailment),
			Contradiction: clamp01(*raw.Contradiction),
			Neutral:       clamp01(*raw.Neutral),
		}
		sum := scores.Entailment + scores.Contradiction + scores.Neutral
		if sum <= 0 {
			return NLIOutput{}, fmt.Errorf("NLI scores sum to zero")
		}
		scores.Entailment /= sum
		scores.Contradiction /= sum
		scores.Neutral /= sum
		if !label.Valid() {
			label = argmaxLabel(scores)
		}

	case label.Valid():
		conf := 1.0
		if raw.Confidence != nil {
			conf = clamp01(*raw.Confidence)
		}
		rest := (1 - conf) / 2
		scores = model.ScoreTriple{Entailment: rest, Contradiction: rest, Neutral: rest}
		setScore(&scores, label, conf)

	default:
		return NLIOutput{}, fmt.Errorf("NLI response has neither a valid label nor scores")
	}

	return NLIOutput{
		Label:      label,
		Confidence: scoreFor(scores, label),
		Scores:     scores,
	}, nil
}

// inferEach runs infer for every pair in order, recording per-pair errors.
// It stops early only when ctx is done; the remaining items then carry
// the context error.
func inferEach(ctx context.Context, provider string, pairs []NLIPair, infer func(context.Context, NLIPair) (NLIOutput, error)) ([]NLIBatchItem, error) {
	if len(pairs) == 0 {
		return []NLIBatchItem{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, &model.InferenceError{Provider: provider, Err: err}
	}

	items := make([]NLIBatchItem, len(pairs))
	for i, pair := range pairs {
		if err := ctx.Err(); err != nil {
			items[i].Err = &model.InferenceError{Provider: provider, Err: err}
			continue
		}
		out, err := infer(ctx, pair)
		if err != nil {
			items[i].Err = err
			continue
		}
		items[i].Output = out
	}
	return items, nil
}

func argmaxLabel(s model.ScoreTriple) model.NLILabel {
	label, best := model.LabelNeutral, s.Neutral
	if s.Entailment > best {
		label, best = model.LabelEntailment, s.Entailment
	}
	if s.Contradiction > best {
		label = model.LabelContradiction
	}
	return label
}

func scoreFor(s model.ScoreTriple, label model.NLILabel) float64 {
	switch label {
	case model.LabelEntailment:
		return s.Entailment
	case model.LabelContradiction:
		return s.Contradiction
	default:
		return s.Neutral
	}
}

func setScore(s *model.ScoreTriple, label model.NLILabel, v float64) {
	switch label {
	case model.LabelEntailment:
		s.Entailment = v
	case model.LabelContradiction:
		s.Contradiction = v
	default:
		s.Neutral = v
	}
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

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
