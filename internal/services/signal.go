package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/yungbote/signals-backend/internal/data/repos"
	types "github.com/yungbote/signals-backend/internal/domain/signals"
	"github.com/yungbote/signals-backend/internal/modules/signals/cascade"
	"github.com/yungbote/signals-backend/internal/modules/signals/centroid"
	"github.com/yungbote/signals-backend/internal/modules/signals/feedback"
	"github.com/yungbote/signals-backend/internal/modules/signals/judge"
	"github.com/yungbote/signals-backend/internal/modules/signals/policy"
	"github.com/yungbote/signals-backend/internal/modules/signals/ranker"
	errs "github.com/yungbote/signals-backend/internal/pkg/errors"
	"github.com/yungbote/signals-backend/internal/pkg/logger"
	"github.com/yungbote/signals-backend/internal/pkg/vecmath"
)

// Embedder turns raw text into vectors of the configured dimension.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// DecisionRecorder receives one event per newly persisted decision.
type DecisionRecorder interface {
	ObserveDecision(method string, passed bool, judgeFallback bool)
}

type BatchItem struct {
	ChunkID  uuid.UUID              `json:"chunk_id"`
	Decision *types.ScoringDecision `json:"decision,omitempty"`
	Err      error                  `json:"-"`
}

type RankCandidate struct {
	ChunkID         uuid.UUID `json:"chunk_id"`
	QuerySimilarity *float64  `json:"query_similarity,omitempty"`
}

// RankRequest carries either precomputed similarities or a raw Query to
// embed and compare against each candidate.
type RankRequest struct {
	UserID     uuid.UUID       `json:"user_id"`
	Candidates []RankCandidate `json:"candidates"`
	Query      string          `json:"query,omitempty"`
	TopK       int             `json:"top_k,omitempty"`
	MinScore   *float64        `json:"min_score,omitempty"`
}

type SignalService interface {
	// Score loads the chunk and scores it for userID.
	Score(ctx context.Context, chunkID, userID uuid.UUID) (*types.ScoringDecision, error)
	// ScoreChunk is idempotent per (chunk, user): a second call returns the
	// stored decision without rerunning the cascade.
	ScoreChunk(ctx context.Context, chunk *types.ContentChunk, userID uuid.UUID) (*types.ScoringDecision, error)
	ScoreBatch(ctx context.Context, chunkIDs []uuid.UUID, userID uuid.UUID) []BatchItem
	Rank(ctx context.Context, req RankRequest) ([]ranker.Ranked, error)
	RecordFeedback(ctx context.Context, decisionID uuid.UUID, action types.Action) (feedback.Result, error)
	RecomputeCentroid(ctx context.Context, userID uuid.UUID) error
}

type SignalDeps struct {
	Repos    repos.Repos
	Cascade  *cascade.Cascade
	Centroid *centroid.Store
	Ranker   *ranker.Ranker
	Feedback *feedback.Coordinator
	Embedder Embedder
	Recorder DecisionRecorder
	Policy   policy.Policy
	// BatchConcurrency bounds ScoreBatch fan-out. Zero means 8.
	BatchConcurrency int
}

const flightStoreSlack = 10 * time.Second

type signalService struct {
	db   *gorm.DB
	log  *logger.Logger
	deps SignalDeps

	inflight singleflight.Group
}

func NewSignalService(db *gorm.DB, baseLog *logger.Logger, deps SignalDeps) SignalService {
	if deps.BatchConcurrency <= 0 {
		deps.BatchConcurrency = 8
	}
	return &signalService{
		db:   db,
		log:  baseLog.With("service", "SignalService"),
		deps: deps,
	}
}

func (s *signalService) Score(ctx context.Context, chunkID, userID uuid.UUID) (*types.ScoringDecision, error) {
	if chunkID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing chunk id", errs.ErrInvalidInput)
	}
	chunk, err := s.deps.Repos.Chunks.GetByID(ctx, nil, chunkID)
	if err != nil {
		return nil, err
	}
	if chunk == nil {
		return nil, fmt.Errorf("%w: chunk %s", errs.ErrNotFound, chunkID)
	}
	return s.ScoreChunk(ctx, chunk, userID)
}

func (s *signalService) ScoreChunk(ctx context.Context, chunk *types.ContentChunk, userID uuid.UUID) (*types.ScoringDecision, error) {
	if chunk == nil || chunk.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing chunk", errs.ErrInvalidInput)
	}
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing user id", errs.ErrInvalidInput)
	}
	if strings.TrimSpace(chunk.Text) == "" {
		return nil, errs.ErrEmptyText
	}
	emb, err := chunk.Vector()
	if err != nil {
		return nil, fmt.Errorf("%w: chunk embedding: %v", errs.ErrInvalidInput, err)
	}
	if len(emb) == 0 {
		return nil, errs.Dimension(s.deps.Centroid.Config().Dim, 0)
	}
	if err := s.deps.Centroid.CheckDim(emb); err != nil {
		return nil, err
	}

	existing, err := s.deps.Repos.Decisions.GetByChunkAndUser(ctx, nil, chunk.ID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	// The flight is shared by every caller for this key, so it runs detached
	// from any one caller's cancellation and is bounded by flightTimeout.
	key := chunk.ID.String() + ":" + userID.String()
	ch := s.inflight.DoChan(key, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.flightTimeout())
		defer cancel()
		return s.scoreOnce(fctx, chunk, emb, userID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*types.ScoringDecision), nil
	}
}

// flightTimeout covers the judge's overall budget plus the history read and
// the decision insert.
func (s *signalService) flightTimeout() time.Duration {
	budget := s.deps.Policy.Judge.OverallTimeout
	if budget <= 0 {
		budget = judge.DefaultConfig().OverallTimeout
	}
	return budget + flightStoreSlack
}

func (s *signalService) scoreOnce(ctx context.Context, chunk *types.ContentChunk, emb []float32, userID uuid.UUID) (*types.ScoringDecision, error) {
	ctx, span := otel.Tracer("signals/service").Start(ctx, "signals.score")
	defer span.End()

	history, err := s.history(ctx, userID, chunk.ID, len(emb))
	if err != nil {
		return nil, err
	}

	out := s.deps.Cascade.Run(ctx, cascade.Input{
		ChunkID:   chunk.ID,
		Text:      chunk.Text,
		Embedding: emb,
		History:   history,
	})
	row, err := out.Decision(chunk.ID, userID, s.deps.Policy.Version)
	if err != nil {
		return nil, fmt.Errorf("build decision: %w", err)
	}

	stored, created, err := s.deps.Repos.Decisions.CreateIfAbsent(ctx, nil, row)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("%w: decision for chunk %s vanished after insert", errs.ErrConflict, chunk.ID)
	}
	span.SetAttributes(
		attribute.String("signals.method", string(stored.Method)),
		attribute.Bool("signals.created", created),
	)
	if !created {
		s.log.Debug("lost decision insert race; returning stored decision",
			"chunk_id", chunk.ID,
			"user_id", userID,
		)
		return stored, nil
	}

	fallback := out.Verdict != nil && out.Verdict.Fallback
	if s.deps.Recorder != nil {
		s.deps.Recorder.ObserveDecision(string(stored.Method), stored.Passed, fallback)
	}
	s.log.Info("chunk scored",
		"chunk_id", chunk.ID,
		"user_id", userID,
		"method", stored.Method,
		"score", stored.Score,
		"passed", stored.Passed,
		"judge_fallback", fallback,
	)
	return stored, nil
}

func (s *signalService) history(ctx context.Context, userID, chunkID uuid.UUID, dim int) ([][]float32, error) {
	if dim == 0 {
		return nil, nil
	}
	cfg := s.deps.Policy.Novelty
	var since time.Time
	if cfg.Window > 0 {
		since = time.Now().UTC().Add(-cfg.Window)
	}
	rows, err := s.deps.Repos.Decisions.ListRecentHistory(ctx, nil, userID, since, chunkID, cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load novelty history: %w", err)
	}
	out := make([][]float32, 0, len(rows))
	for _, r := range rows {
		vec, err := types.DecodeVector(r.Embedding)
		if err != nil || len(vec) == 0 {
			continue
		}
		out = append(out, vec)
	}
	return out, nil
}

// ScoreBatch scores each chunk independently. One failing chunk is reported
// on its item and does not stop the others.
func (s *signalService) ScoreBatch(ctx context.Context, chunkIDs []uuid.UUID, userID uuid.UUID) []BatchItem {
	items := make([]BatchItem, len(chunkIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.deps.BatchConcurrency)
	for i, id := range chunkIDs {
		i, id := i, id
		items[i].ChunkID = id
		g.Go(func() error {
			d, err := s.Score(gctx, id, userID)
			items[i].Decision = d
			items[i].Err = err
			if err != nil {
				s.log.Warn("batch item failed", "chunk_id", id, "user_id", userID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return items
}

func (s *signalService) Rank(ctx context.Context, req RankRequest) ([]ranker.Ranked, error) {
	if len(req.Candidates) == 0 {
		return []ranker.Ranked{}, nil
	}
	ids := make([]uuid.UUID, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		if c.ChunkID == uuid.Nil {
			return nil, fmt.Errorf("%w: candidate without chunk id", errs.ErrInvalidInput)
		}
		ids = append(ids, c.ChunkID)
	}
	chunks, err := s.deps.Repos.Chunks.GetByIDs(ctx, nil, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*types.ContentChunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	var query []float32
	if strings.TrimSpace(req.Query) != "" {
		if s.deps.Embedder == nil {
			return nil, fmt.Errorf("%w: raw query ranking needs an embedder", errs.ErrInvalidInput)
		}
		vecs, err := s.deps.Embedder.Embed(ctx, []string{req.Query})
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		if len(vecs) != 1 {
			return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
		}
		query = vecs[0]
		if err := s.deps.Centroid.CheckDim(query); err != nil {
			return nil, err
		}
	}

	cands := make([]ranker.Candidate, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		chunk, ok := byID[c.ChunkID]
		if !ok {
			return nil, fmt.Errorf("%w: chunk %s", errs.ErrNotFound, c.ChunkID)
		}
		emb, err := chunk.Vector()
		if err != nil {
			return nil, fmt.Errorf("decode chunk %s embedding: %w", chunk.ID, err)
		}
		cand := ranker.Candidate{ChunkID: chunk.ID, Embedding: emb}
		switch {
		case c.QuerySimilarity != nil:
			cand.QuerySimilarity = *c.QuerySimilarity
		case query != nil:
			sim, err := vecmath.Cosine(query, emb)
			if err != nil {
				s.log.Warn("candidate embedding not comparable with query", "chunk_id", chunk.ID, "error", err)
			}
			cand.QuerySimilarity = sim
		default:
			return nil, fmt.Errorf("%w: candidate %s has no query similarity and no query was given", errs.ErrInvalidInput, c.ChunkID)
		}
		cands = append(cands, cand)
	}

	return s.deps.Ranker.Rank(ctx, req.UserID, cands, ranker.Options{TopK: req.TopK, MinScore: req.MinScore})
}

func (s *signalService) RecordFeedback(ctx context.Context, decisionID uuid.UUID, action types.Action) (feedback.Result, error) {
	return s.deps.Feedback.RecordFeedback(ctx, decisionID, action)
}

func (s *signalService) RecomputeCentroid(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return fmt.Errorf("%w: missing user id", errs.ErrInvalidInput)
	}
	_, err := s.deps.Feedback.RecomputeCentroid(ctx, userID)
	return err
}
