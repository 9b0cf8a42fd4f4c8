package policy

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/signals-backend/internal/modules/signals/cascade"
	"github.com/yungbote/signals-backend/internal/modules/signals/centroid"
	"github.com/yungbote/signals-backend/internal/modules/signals/features"
	"github.com/yungbote/signals-backend/internal/modules/signals/judge"
	"github.com/yungbote/signals-backend/internal/modules/signals/novelty"
	"github.com/yungbote/signals-backend/internal/modules/signals/ranker"
	"github.com/yungbote/signals-backend/internal/pkg/logger"
	"github.com/yungbote/signals-backend/internal/platform/envutil"
)

const policyPathEnv = "SIGNAL_POLICY_PATH"

//go:embed default.yaml
var defaultYAML []byte

type Retention struct {
	Unactioned     time.Duration `yaml:"unactioned" json:"unactioned"`
	RecomputeAfter time.Duration `yaml:"recompute_after" json:"recompute_after"`
	RecomputeBatch int           `yaml:"recompute_batch" json:"recompute_batch"`
}

// Policy is every tunable the engine reads. Decisions record Version so a
// score can be traced back to the thresholds that produced it.
type Policy struct {
	Version   string             `yaml:"version" json:"version"`
	Cascade   cascade.Thresholds `yaml:"cascade" json:"cascade"`
	Features  features.Weights   `yaml:"features" json:"features"`
	Judge     judge.Config       `yaml:"judge" json:"judge"`
	Novelty   novelty.Config     `yaml:"novelty" json:"novelty"`
	Centroid  centroid.Config    `yaml:"centroid" json:"centroid"`
	Ranker    ranker.Config      `yaml:"ranker" json:"ranker"`
	Retention Retention          `yaml:"retention" json:"retention"`
}

func DefaultPolicy() Policy {
	return Policy{
		Version:  "2026-10-default",
		Cascade:  cascade.DefaultThresholds(),
		Features: features.DefaultWeights(),
		Judge:    judge.DefaultConfig(),
		Novelty:  novelty.DefaultConfig(),
		Centroid: centroid.DefaultConfig(),
		Ranker:   ranker.DefaultConfig(),
		Retention: Retention{
			Unactioned:     90 * 24 * time.Hour,
			RecomputeAfter: 7 * 24 * time.Hour,
			RecomputeBatch: 500,
		},
	}
}

func (p Policy) Validate() error {
	if strings.TrimSpace(p.Version) == "" {
		return fmt.Errorf("policy version is required")
	}
	if err := p.Cascade.Validate(); err != nil {
		return err
	}
	if err := p.Features.Validate(); err != nil {
		return err
	}
	if err := p.Novelty.Validate(); err != nil {
		return err
	}
	if err := p.Centroid.Validate(); err != nil {
		return err
	}
	if err := p.Ranker.Validate(); err != nil {
		return err
	}
	if p.Judge.MaxRetries < 0 {
		return fmt.Errorf("judge max_retries must be non-negative")
	}
	if p.Judge.InputCostPer1K < 0 || p.Judge.OutputCostPer1K < 0 {
		return fmt.Errorf("judge costs must be non-negative")
	}
	if p.Retention.Unactioned <= 0 {
		return fmt.Errorf("retention unactioned window must be positive")
	}
	if p.Retention.RecomputeAfter <= 0 {
		return fmt.Errorf("retention recompute_after must be positive")
	}
	return nil
}

// Parse overlays a YAML document on the defaults. Keys the document omits
// keep their default values.
func Parse(data []byte) (Policy, error) {
	p := DefaultPolicy()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy: %w", err)
	}
	return p, nil
}

func LoadPolicyFile(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy %s: %w", path, err)
	}
	return Parse(data)
}

// Load reads SIGNAL_POLICY_PATH (or the embedded default), applies env
// overrides and validates the result.
func Load(log *logger.Logger) (Policy, error) {
	var (
		p   Policy
		err error
	)
	if path := envutil.String(policyPathEnv, ""); path != "" {
		p, err = LoadPolicyFile(path)
		if log != nil && err == nil {
			log.Info("scoring policy loaded", "path", path)
		}
	} else {
		p, err = Parse(defaultYAML)
	}
	if err != nil {
		return Policy{}, err
	}
	p = ApplyEnv(p)
	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("invalid scoring policy %q: %w", p.Version, err)
	}
	return p, nil
}

// ApplyEnv applies per-value env overrides on top of p.
func ApplyEnv(p Policy) Policy {
	p.Version = envutil.String("SIGNAL_POLICY_VERSION", p.Version)

	p.Cascade.MinWords = envutil.Int("SIGNAL_MIN_WORDS", p.Cascade.MinWords)
	p.Cascade.LengthFilterScore = envutil.Float("SIGNAL_LENGTH_FILTER_SCORE", p.Cascade.LengthFilterScore)
	p.Cascade.High = envutil.Float("SIGNAL_HIGH_THRESHOLD", p.Cascade.High)
	p.Cascade.Low = envutil.Float("SIGNAL_LOW_THRESHOLD", p.Cascade.Low)
	p.Cascade.JudgePass = envutil.Float("SIGNAL_JUDGE_PASS_THRESHOLD", p.Cascade.JudgePass)

	p.Judge.MaxRetries = envutil.Int("SIGNAL_JUDGE_MAX_RETRIES", p.Judge.MaxRetries)
	p.Judge.AttemptTimeout = envutil.Duration("SIGNAL_JUDGE_ATTEMPT_TIMEOUT", p.Judge.AttemptTimeout)
	p.Judge.OverallTimeout = envutil.Duration("SIGNAL_JUDGE_TIMEOUT", p.Judge.OverallTimeout)

	p.Novelty.ClusterThreshold = envutil.Float("SIGNAL_NOVELTY_THRESHOLD", p.Novelty.ClusterThreshold)
	p.Novelty.Damping = novelty.Damping(envutil.String("SIGNAL_NOVELTY_DAMPING", string(p.Novelty.Damping)))

	p.Centroid.Dim = envutil.Int("EMBEDDING_DIM", p.Centroid.Dim)
	p.Centroid.SkipRate = envutil.Float("SIGNAL_SKIP_RATE", p.Centroid.SkipRate)

	p.Ranker.QueryWeight = envutil.Float("SIGNAL_RANK_QUERY_WEIGHT", p.Ranker.QueryWeight)
	p.Ranker.CentroidWeight = envutil.Float("SIGNAL_RANK_CENTROID_WEIGHT", p.Ranker.CentroidWeight)
	p.Ranker.MinScore = envutil.Float("SIGNAL_RANK_MIN_SCORE", p.Ranker.MinScore)
	p.Ranker.TopK = envutil.Int("SIGNAL_RANK_TOP_K", p.Ranker.TopK)

	p.Retention.Unactioned = envutil.Duration("SIGNAL_RETENTION_UNACTIONED", p.Retention.Unactioned)
	p.Retention.RecomputeAfter = envutil.Duration("SIGNAL_RECOMPUTE_AFTER", p.Retention.RecomputeAfter)
	return p
}
