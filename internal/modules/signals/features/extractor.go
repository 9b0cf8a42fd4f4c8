package features

import (
	"fmt"
	"math"
	"strings"
)

// Weights blends the four sub-scores into the composite. Signals overrides
// individual rule increments by name (see RuleNames).
type Weights struct {
	Framework   float64            `yaml:"framework" json:"framework"`
	Insight     float64            `yaml:"insight" json:"insight"`
	Specificity float64            `yaml:"specificity" json:"specificity"`
	Quality     float64            `yaml:"quality" json:"quality"`
	Signals     map[string]float64 `yaml:"signals,omitempty" json:"signals,omitempty"`
}

func DefaultWeights() Weights {
	return Weights{Framework: 0.4, Insight: 0.3, Specificity: 0.2, Quality: 0.1}
}

func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"framework": w.Framework, "insight": w.Insight, "specificity": w.Specificity, "quality": w.Quality,
	} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("feature weight %s must be non-negative", name)
		}
	}
	if w.Framework+w.Insight+w.Specificity+w.Quality <= 0 {
		return fmt.Errorf("feature weights sum to zero")
	}
	known := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		known[r.name] = struct{}{}
	}
	for name := range w.Signals {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("unknown feature signal %q", name)
		}
	}
	return nil
}

// Result holds the sub-scores and composite, all in [0,1].
type Result struct {
	FrameworkClarity float64  `json:"framework_clarity"`
	InsightDensity   float64  `json:"insight_density"`
	Specificity      float64  `json:"specificity"`
	Quality          float64  `json:"quality"`
	Composite        float64  `json:"composite"`
	Reasons          []string `json:"reasons"`
	WordCount        int      `json:"word_count"`
}

// Score is the composite on the 0–100 scale, rounded to one decimal.
func (r Result) Score() float64 {
	return math.Round(r.Composite*1000) / 10
}

type Extractor struct {
	w Weights
}

func New(w Weights) *Extractor {
	return &Extractor{w: w}
}

var defaultExtractor = New(DefaultWeights())

// Extract scores text with the default weights.
func Extract(text string) Result {
	return defaultExtractor.Extract(text)
}

func (e *Extractor) Extract(text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Reasons: []string{}}
	}
	d := parse(text)

	sums := map[bucket]float64{}
	reasons := make([]string, 0, 8)
	firedTier := map[string]bool{}
	for _, r := range rules {
		if r.tier != "" && firedTier[r.tier] {
			continue
		}
		if !r.match(d) {
			continue
		}
		if r.tier != "" {
			firedTier[r.tier] = true
		}
		weight := r.weight
		if v, ok := e.w.Signals[r.name]; ok {
			weight = v
		}
		if weight == 0 {
			continue
		}
		sums[r.bucket] += weight
		reasons = append(reasons, fmt.Sprintf("%s: %s (%+.2f)", r.bucket, r.label, weight))
	}

	res := Result{
		FrameworkClarity: clamp01(sums[bucketFramework]),
		InsightDensity:   clamp01(sums[bucketInsight]),
		Specificity:      clamp01(sums[bucketSpecificity]),
		Quality:          clamp01(sums[bucketQuality]),
		Reasons:          reasons,
		WordCount:        d.words,
	}
	total := e.w.Framework + e.w.Insight + e.w.Specificity + e.w.Quality
	if total > 0 {
		res.Composite = clamp01((e.w.Framework*res.FrameworkClarity +
			e.w.Insight*res.InsightDensity +
			e.w.Specificity*res.Specificity +
			e.w.Quality*res.Quality) / total)
	}
	return res
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
