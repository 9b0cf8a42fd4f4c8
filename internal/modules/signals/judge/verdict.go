package judge

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	NeutralScore      = 50
	FallbackRationale = "judge unavailable"
)

// Verdict is the judge's bucket scores for one chunk.
type Verdict struct {
	FrameworkClarity    int     `json:"framework_clarity"`
	InsightNovelty      int     `json:"insight_novelty"`
	TacticalSpecificity int     `json:"tactical_specificity"`
	ReasoningDepth      int     `json:"reasoning_depth"`
	Overall             int     `json:"overall"`
	Rationale           string  `json:"rationale"`
	CostUSD             float64 `json:"cost_usd"`
	Fallback            bool    `json:"fallback"`
	ErrorClass          string  `json:"error_class,omitempty"`
	Attempts            int     `json:"attempts"`
	Model               string  `json:"model,omitempty"`
}

// Neutral is the verdict used whenever the judge cannot answer.
func Neutral() Verdict {
	return Verdict{
		FrameworkClarity:    NeutralScore,
		InsightNovelty:      NeutralScore,
		TacticalSpecificity: NeutralScore,
		ReasoningDepth:      NeutralScore,
		Overall:             NeutralScore,
		Rationale:           FallbackRationale,
		Fallback:            true,
	}
}

var errSchema = errors.New("judge response violates schema")

// parseVerdict validates the raw object strictly: exactly the schema keys,
// integral scores in [0,100], a string rationale.
func parseVerdict(obj map[string]any) (Verdict, error) {
	var v Verdict
	if obj == nil {
		return v, fmt.Errorf("%w: empty object", errSchema)
	}
	allowed := map[string]bool{"reasoning": true}
	for _, f := range verdictFields {
		allowed[f] = true
	}
	for k := range obj {
		if !allowed[k] {
			return v, fmt.Errorf("%w: unexpected field %q", errSchema, k)
		}
	}

	scores := make(map[string]int, len(verdictFields))
	for _, f := range verdictFields {
		raw, ok := obj[f]
		if !ok {
			return v, fmt.Errorf("%w: missing %s", errSchema, f)
		}
		n, ok := raw.(float64)
		if !ok || math.IsNaN(n) || n != math.Trunc(n) {
			return v, fmt.Errorf("%w: %s is not an integer", errSchema, f)
		}
		if n < 0 || n > 100 {
			return v, fmt.Errorf("%w: %s=%v out of range", errSchema, f, n)
		}
		scores[f] = int(n)
	}
	reasoning, ok := obj["reasoning"].(string)
	if !ok {
		return v, fmt.Errorf("%w: reasoning is not a string", errSchema)
	}

	v.FrameworkClarity = scores["frameworkClarity"]
	v.InsightNovelty = scores["insightNovelty"]
	v.TacticalSpecificity = scores["tacticalSpecificity"]
	v.ReasoningDepth = scores["reasoningDepth"]
	v.Overall = scores["overallScore"]
	v.Rationale = strings.TrimSpace(reasoning)
	return v, nil
}
