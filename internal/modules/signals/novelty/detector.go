package novelty

import (
	"fmt"
	"math"
	"time"

	"github.com/yungbote/signals-backend/internal/pkg/vecmath"
)

// Damping shapes how the duplicate penalty grows with cluster size.
type Damping string

const (
	DampingLinear Damping = "linear"
	DampingLog    Damping = "log"
)

type Config struct {
	ClusterThreshold float64       `yaml:"cluster_threshold" json:"cluster_threshold"`
	MaxBonus         float64       `yaml:"max_bonus" json:"max_bonus"`
	BasePenalty      float64       `yaml:"base_penalty" json:"base_penalty"`
	MaxPenalty       float64       `yaml:"max_penalty" json:"max_penalty"`
	Damping          Damping       `yaml:"damping" json:"damping"`
	HistoryLimit     int           `yaml:"history_limit" json:"history_limit"`
	Window           time.Duration `yaml:"window" json:"window"`
}

func DefaultConfig() Config {
	return Config{
		ClusterThreshold: 0.85,
		MaxBonus:         5,
		BasePenalty:      3,
		MaxPenalty:       10,
		Damping:          DampingLog,
		HistoryLimit:     200,
		Window:           30 * 24 * time.Hour,
	}
}

func (c Config) Validate() error {
	if c.ClusterThreshold <= 0 || c.ClusterThreshold > 1 {
		return fmt.Errorf("novelty cluster_threshold must be in (0,1], got %v", c.ClusterThreshold)
	}
	if c.MaxBonus < 0 || c.BasePenalty < 0 || c.MaxPenalty < 0 {
		return fmt.Errorf("novelty bonus and penalties must be non-negative")
	}
	switch c.Damping {
	case DampingLinear, DampingLog:
	default:
		return fmt.Errorf("novelty damping must be %q or %q, got %q", DampingLinear, DampingLog, c.Damping)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("novelty history_limit must be non-negative")
	}
	return nil
}

// Assessment is the detector's verdict for one embedding.
type Assessment struct {
	// Adjustment is added to the 0–100 score; positive rewards novelty.
	Adjustment    float64 `json:"adjustment"`
	ClusterSize   int     `json:"cluster_size"`
	MaxSimilarity float64 `json:"max_similarity"`
	Applied       bool    `json:"applied"`
	Compared      int     `json:"compared"`
	Skipped       int     `json:"skipped"`
}

type Detector struct {
	cfg Config
}

func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

func (d *Detector) Config() Config { return d.cfg }

// Assess compares embedding against history. History vectors whose dimension
// differs from embedding are skipped. No comparable history means no
// adjustment.
func (d *Detector) Assess(embedding []float32, history [][]float32) Assessment {
	var a Assessment
	if len(embedding) == 0 || vecmath.IsZero(embedding) {
		return a
	}

	maxSim := math.Inf(-1)
	for _, h := range history {
		sim, err := vecmath.Cosine(embedding, h)
		if err != nil {
			a.Skipped++
			continue
		}
		a.Compared++
		if sim > maxSim {
			maxSim = sim
		}
		if sim >= d.cfg.ClusterThreshold {
			a.ClusterSize++
		}
	}
	if a.Compared == 0 {
		return a
	}

	a.Applied = true
	a.MaxSimilarity = maxSim
	if a.ClusterSize == 0 {
		a.Adjustment = d.cfg.MaxBonus * clamp((d.cfg.ClusterThreshold-maxSim)/d.cfg.ClusterThreshold, 0, 1)
	} else {
		a.Adjustment = -math.Min(d.cfg.BasePenalty*d.damp(a.ClusterSize), d.cfg.MaxPenalty)
	}
	a.Adjustment = clamp(a.Adjustment, -d.cfg.MaxPenalty, d.cfg.MaxBonus)
	return a
}

func (d *Detector) damp(n int) float64 {
	if n <= 0 {
		return 0
	}
	if d.cfg.Damping == DampingLinear {
		return float64(n)
	}
	return 1 + math.Log(float64(n))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
