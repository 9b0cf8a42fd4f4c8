package cascade

import "fmt"

// Thresholds are the cascade's tunable cut points. Pass-side comparisons are
// inclusive.
type Thresholds struct {
	MinWords          int     `yaml:"min_words" json:"min_words"`
	LengthFilterScore float64 `yaml:"length_filter_score" json:"length_filter_score"`
	High              float64 `yaml:"high" json:"high"`
	Low               float64 `yaml:"low" json:"low"`
	JudgePass         float64 `yaml:"judge_pass" json:"judge_pass"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinWords:          80,
		LengthFilterScore: 15,
		High:              52,
		Low:               28,
		JudgePass:         48,
	}
}

func (t Thresholds) Validate() error {
	if t.MinWords < 0 {
		return fmt.Errorf("cascade min_words must be non-negative")
	}
	for name, v := range map[string]float64{
		"length_filter_score": t.LengthFilterScore,
		"high":                t.High,
		"low":                 t.Low,
		"judge_pass":          t.JudgePass,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("cascade %s must be in [0,100], got %v", name, v)
		}
	}
	if t.Low >= t.High {
		return fmt.Errorf("cascade low threshold %v must be below high %v", t.Low, t.High)
	}
	return nil
}
