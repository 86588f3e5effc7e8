package llm

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/ppiankov/factlens/internal/model"
)

func TestParseNLIOutput(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantLabel model.NLILabel
		wantConf  float64
		wantErr   bool
	}{
		{
			name:      "full scores",
			input:     `{"label":"entailment","entailment":0.7,"contradiction":0.1,"neutral":0.2}`,
			wantLabel: model.LabelEntailment,
			wantConf:  0.7,
		},
		{
			name:      "scores renormalized",
			input:     `{"label":"contradiction","entailment":0.5,"contradiction":1.5,"neutral":0.5}`,
			wantLabel: model.LabelContradiction,
			wantConf:  0.5, // clamped to 1 then divided by 2
		},
		{
			name:      "label from argmax",
			input:     `{"entailment":0.1,"contradiction":0.2,"neutral":0.7}`,
			wantLabel: model.LabelNeutral,
			wantConf:  0.7,
		},
		{
			name:      "label only",
			input:     `{"label":"Entailment"}`,
			wantLabel: model.LabelEntailment,
			wantConf:  1.0,
		},
		{
			name:      "label with confidence",
			input:     `{"label":"contradiction","confidence":0.8}`,
			wantLabel: model.LabelContradiction,
			wantConf:  0.8,
		},
		{
			name:      "wrapped in prose and fence",
			input:     "Sure!\n```json\n{\"label\":\"neutral\",\"entailment\":0.2,\"contradiction\":0.2,\"neutral\":0.6}\n```",
			wantLabel: model.LabelNeutral,
			wantConf:  0.6,
		},
		{name: "no json", input: "entailment", wantErr: true},
		{name: "unknown label no scores", input: `{"label":"maybe"}`, wantErr: true},
		{name: "zero scores", input: `{"entailment":0,"contradiction":0,"neutral":0}`, wantErr: true},
		{name: "broken json", input: `{"label": }`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ParseNLIOutput(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", out)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.Label != tt.wantLabel {
				t.Errorf("label = %s, want %s", out.Label, tt.wantLabel)
			}
			if math.Abs(out.Confidence-tt.wantConf) > 1e-9 {
				t.Errorf("confidence = %f, want %f", out.Confidence, tt.wantConf)
			}
			sum := out.Scores.Entailment + out.Scores.Contradiction + out.Scores.Neutral
			if math.Abs(sum-1) > 1e-9 {
				t.Errorf("scores sum to %f, want 1", sum)
			}
		})
	}
}

func TestBuildNLIPrompt(t *testing.T) {
	p := BuildNLIPrompt(NLIPair{Premise: "  The sky is blue. ", Hypothesis: "The sky is green."})
	if !strings.Contains(p, "PREMISE:\nThe sky is blue.") {
		t.Errorf("premise missing: %q", p)
	}
	if !strings.Contains(p, "HYPOTHESIS:\nThe sky is green.") {
		t.Errorf("hypothesis missing: %q", p)
	}
}

func TestInferEach_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := inferEach(ctx, "test", []NLIPair{{"a", "b"}}, func(context.Context, NLIPair) (NLIOutput, error) {
		called = true
		return NLIOutput{}, nil
	})
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("infer should not be called after cancellation")
	}
}

func TestInferEach_Empty(t *testing.T) {
	items, err := inferEach(context.Background(), "test", nil, nil)
	if err != nil || len(items) != 0 {
		t.Errorf("expected empty result, got %v, %v", items, err)
	}
}
