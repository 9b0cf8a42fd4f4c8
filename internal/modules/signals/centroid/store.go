package centroid

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/yungbote/signals-backend/internal/data/db"
	"github.com/yungbote/signals-backend/internal/data/repos"
	types "github.com/yungbote/signals-backend/internal/domain/signals"
	errs "github.com/yungbote/signals-backend/internal/pkg/errors"
	"github.com/yungbote/signals-backend/internal/pkg/logger"
)

type Config struct {
	Dim      int     `yaml:"embedding_dim" json:"embedding_dim"`
	SkipRate float64 `yaml:"skip_rate" json:"skip_rate"`
}

func DefaultConfig() Config {
	return Config{Dim: 1536, SkipRate: 0.1}
}

func (c Config) Validate() error {
	if c.Dim <= 0 {
		return fmt.Errorf("centroid embedding_dim must be positive")
	}
	if c.SkipRate <= 0 || c.SkipRate >= 1 {
		return fmt.Errorf("centroid skip_rate must be in (0,1), got %v", c.SkipRate)
	}
	return nil
}

// Locker serializes writers for one key across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(context.Context) error, error)
}

// MutateFunc edits st inside the centroid transaction and reports whether it
// changed anything worth persisting.
type MutateFunc func(tx *gorm.DB, st *State) (bool, error)

// Store owns user centroids. Every write holds the user's lock and is a
// version compare-and-swap, so concurrent writers for a user never interleave.
type Store struct {
	db        *gorm.DB
	centroids repos.UserCentroidRepo
	decisions repos.ScoringDecisionRepo
	locks     *KeyedMutex
	dist      Locker
	cfg       Config
	log       *logger.Logger
	now       func() time.Time
}

func NewStore(gdb *gorm.DB, centroids repos.UserCentroidRepo, decisions repos.ScoringDecisionRepo, dist Locker, cfg Config, baseLog *logger.Logger) *Store {
	return &Store{
		db:        gdb,
		centroids: centroids,
		decisions: decisions,
		locks:     NewKeyedMutex(),
		dist:      dist,
		cfg:       cfg,
		log:       baseLog.With("service", "CentroidStore"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Config() Config { return s.cfg }

// CheckDim rejects embeddings that do not match the configured dimension.
func (s *Store) CheckDim(v []float32) error {
	if s.cfg.Dim > 0 && len(v) != s.cfg.Dim {
		return errs.Dimension(s.cfg.Dim, len(v))
	}
	return nil
}

// Get returns the stored centroid, or nil when the user has none.
func (s *Store) Get(ctx context.Context, userID uuid.UUID) (*State, error) {
	row, err := s.centroids.GetByUserID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return stateFromRow(userID, row)
}

func (s *Store) lock(ctx context.Context, userID uuid.UUID) (func(), error) {
	key := "centroid:" + userID.String()
	unlock := s.locks.Lock(key)
	if s.dist == nil {
		return unlock, nil
	}
	release, err := s.dist.Acquire(ctx, key)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("acquire centroid lock: %w", err)
	}
	return func() {
		relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := release(relCtx); err != nil {
			s.log.Warn("centroid lock release failed", "user_id", userID, "error", err)
		}
		unlock()
	}, nil
}

// Mutate runs fn against the user's centroid under the per-user lock in one
// transaction and persists the result when fn reports a change.
func (s *Store) Mutate(ctx context.Context, userID uuid.UUID, fn MutateFunc) (*State, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing user id", errs.ErrInvalidInput)
	}
	ctx, span := otel.Tracer("signals/centroid").Start(ctx, "centroid.mutate")
	defer span.End()

	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out *State
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.centroids.GetByUserID(ctx, tx, userID)
		if err != nil {
			return err
		}
		st, err := stateFromRow(userID, row)
		if err != nil {
			return err
		}
		changed, err := fn(tx, st)
		if err != nil {
			return err
		}
		if !changed {
			out = st
			return nil
		}

		next, err := st.toRow()
		if err != nil {
			return err
		}
		if row == nil {
			if err := s.centroids.Insert(ctx, tx, next); err != nil {
				if db.IsUniqueViolation(err) {
					return errs.ErrStaleCentroid
				}
				return err
			}
		} else {
			ok, err := s.centroids.UpdateIfVersion(ctx, tx, next, row.Version)
			if err != nil {
				return err
			}
			if !ok {
				return errs.ErrStaleCentroid
			}
		}
		st.Version = next.Version
		out = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("centroid.saved", out.Saved),
		attribute.Int("centroid.skipped", out.Skipped),
		attribute.Int64("centroid.version", out.Version),
	)
	return out, nil
}

func (s *Store) ApplySave(ctx context.Context, userID uuid.UUID, v []float32) (*State, error) {
	if err := s.CheckDim(v); err != nil {
		return nil, err
	}
	return s.Mutate(ctx, userID, func(_ *gorm.DB, st *State) (bool, error) {
		return true, st.Save(v)
	})
}

func (s *Store) ApplySkip(ctx context.Context, userID uuid.UUID, v []float32) (*State, error) {
	if err := s.CheckDim(v); err != nil {
		return nil, err
	}
	return s.Mutate(ctx, userID, func(_ *gorm.DB, st *State) (bool, error) {
		return true, st.Skip(v, s.cfg.SkipRate)
	})
}

func (s *Store) RevertSave(ctx context.Context, userID uuid.UUID, v []float32) (*State, error) {
	if err := s.CheckDim(v); err != nil {
		return nil, err
	}
	return s.Mutate(ctx, userID, func(_ *gorm.DB, st *State) (bool, error) {
		return true, st.UnSave(v)
	})
}

func (s *Store) RevertSkip(ctx context.Context, userID uuid.UUID, v []float32) (*State, error) {
	if err := s.CheckDim(v); err != nil {
		return nil, err
	}
	return s.Mutate(ctx, userID, func(_ *gorm.DB, st *State) (bool, error) {
		return true, st.UnSkip(v, s.cfg.SkipRate)
	})
}

// RecomputeFromHistory rebuilds the centroid from every saved and skipped
// decision. It takes the same lock as incremental updates and overwrites
// whatever they left.
func (s *Store) RecomputeFromHistory(ctx context.Context, userID uuid.UUID) (*State, error) {
	return s.Mutate(ctx, userID, func(tx *gorm.DB, st *State) (bool, error) {
		rows, err := s.decisions.ListActioned(ctx, tx, userID)
		if err != nil {
			return false, err
		}
		events := make([]Event, 0, len(rows))
		skippedBad := 0
		for _, r := range rows {
			vec, err := types.DecodeVector(r.Embedding)
			if err != nil || s.CheckDim(vec) != nil {
				skippedBad++
				continue
			}
			events = append(events, Event{Action: r.UserAction, Embedding: vec})
		}
		if skippedBad > 0 {
			s.log.Warn("recompute skipped decisions with unusable embeddings",
				"user_id", userID,
				"skipped", skippedBad,
			)
		}
		rebuilt, err := Replay(events, s.cfg.SkipRate)
		if err != nil {
			return false, err
		}
		now := s.now()
		st.Vector = rebuilt.Vector
		st.Saved = rebuilt.Saved
		st.Skipped = rebuilt.Skipped
		st.LastRecomputedAt = &now
		return true, nil
	})
}

// ListStale pages through users whose centroid was not recomputed since
// before. Pass the last id of the previous page as after.
func (s *Store) ListStale(ctx context.Context, before time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	return s.centroids.ListStaleUserIDs(ctx, nil, before, after, limit)
}
