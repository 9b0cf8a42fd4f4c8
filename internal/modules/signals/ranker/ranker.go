package ranker

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/signals-backend/internal/modules/signals/centroid"
	"github.com/yungbote/signals-backend/internal/pkg/logger"
	"github.com/yungbote/signals-backend/internal/pkg/vecmath"
)

type Config struct {
	QueryWeight    float64 `yaml:"query_weight" json:"query_weight"`
	CentroidWeight float64 `yaml:"centroid_weight" json:"centroid_weight"`
	MinScore       float64 `yaml:"min_score" json:"min_score"`
	TopK           int     `yaml:"top_k" json:"top_k"`
}

func DefaultConfig() Config {
	return Config{QueryWeight: 0.7, CentroidWeight: 0.3, MinScore: 0.2, TopK: 20}
}

func (c Config) Validate() error {
	if c.QueryWeight < 0 || c.CentroidWeight < 0 {
		return fmt.Errorf("ranker weights must be non-negative")
	}
	if c.QueryWeight+c.CentroidWeight <= 0 {
		return fmt.Errorf("ranker weights sum to zero")
	}
	if c.TopK < 0 {
		return fmt.Errorf("ranker top_k must be non-negative")
	}
	return nil
}

// Candidate is one hit from the plain content-similarity search.
type Candidate struct {
	ChunkID         uuid.UUID `json:"chunk_id"`
	Embedding       []float32 `json:"-"`
	QuerySimilarity float64   `json:"query_similarity"`
}

type Ranked struct {
	ChunkID            uuid.UUID `json:"chunk_id"`
	QuerySimilarity    float64   `json:"query_similarity"`
	CentroidSimilarity float64   `json:"centroid_similarity"`
	FinalScore         float64   `json:"final_score"`
}

// Options override Config per call. Zero values keep the configured ones.
type Options struct {
	TopK     int
	MinScore *float64
}

// CentroidSource is read access to user centroids.
type CentroidSource interface {
	Get(ctx context.Context, userID uuid.UUID) (*centroid.State, error)
}

type Ranker struct {
	cfg Config
	src CentroidSource
	log *logger.Logger
}

func New(cfg Config, src CentroidSource, baseLog *logger.Logger) *Ranker {
	return &Ranker{cfg: cfg, src: src, log: baseLog.With("service", "PersonalizedRanker")}
}

// Rank reorders candidates for userID. Users without a centroid get pure
// query-similarity order.
func (r *Ranker) Rank(ctx context.Context, userID uuid.UUID, candidates []Candidate, opts Options) ([]Ranked, error) {
	ctx, span := otel.Tracer("signals/ranker").Start(ctx, "ranker.rank")
	defer span.End()

	var vec []float32
	if r.src != nil && userID != uuid.Nil {
		st, err := r.src.Get(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load centroid: %w", err)
		}
		if !st.Empty() {
			vec = st.Vector
		}
	}

	cfg := r.cfg
	if opts.TopK > 0 {
		cfg.TopK = opts.TopK
	}
	if opts.MinScore != nil {
		cfg.MinScore = *opts.MinScore
	}
	out, mismatched := RankWith(vec, candidates, cfg)
	if mismatched > 0 {
		r.log.Warn("rank candidates with mismatched embedding dimension",
			"user_id", userID,
			"count", mismatched,
		)
	}
	span.SetAttributes(
		attribute.Int("ranker.candidates", len(candidates)),
		attribute.Int("ranker.returned", len(out)),
		attribute.Bool("ranker.personalized", vec != nil),
	)
	return out, nil
}

// RankWith is the pure ranking step. It returns the ranked list and how many
// candidates could not be compared with the centroid.
func RankWith(centroidVec []float32, candidates []Candidate, cfg Config) ([]Ranked, int) {
	personalized := len(centroidVec) > 0 && !vecmath.IsZero(centroidVec)
	mismatched := 0

	out := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		r := Ranked{ChunkID: c.ChunkID, QuerySimilarity: c.QuerySimilarity}
		if personalized {
			sim, err := vecmath.Cosine(centroidVec, c.Embedding)
			if err != nil {
				mismatched++
			} else {
				r.CentroidSimilarity = sim
			}
			r.FinalScore = c.QuerySimilarity*cfg.QueryWeight + r.CentroidSimilarity*cfg.CentroidWeight
		} else {
			r.FinalScore = c.QuerySimilarity
		}
		if r.FinalScore < cfg.MinScore {
			continue
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FinalScore != out[j].FinalScore {
			return out[i].FinalScore > out[j].FinalScore
		}
		if out[i].QuerySimilarity != out[j].QuerySimilarity {
			return out[i].QuerySimilarity > out[j].QuerySimilarity
		}
		return out[i].ChunkID.String() < out[j].ChunkID.String()
	})

	if cfg.TopK > 0 && len(out) > cfg.TopK {
		out = out[:cfg.TopK]
	}
	return out, mismatched
}
