package centroid

import (
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/signals-backend/internal/domain/signals"
	errs "github.com/yungbote/signals-backend/internal/pkg/errors"
	"github.com/yungbote/signals-backend/internal/pkg/vecmath"
)

// State is a user's centroid as the update math sees it. A nil Vector means
// the user has no positive preference yet.
type State struct {
	UserID           uuid.UUID
	Vector           []float32
	Saved            int
	Skipped          int
	Version          int64
	LastRecomputedAt *time.Time
}

func (s *State) Empty() bool {
	return s == nil || len(s.Vector) == 0
}

func (s *State) checkDim(v []float32) error {
	if len(v) == 0 {
		return errs.Dimension(len(s.Vector), 0)
	}
	if len(s.Vector) > 0 && len(v) != len(s.Vector) {
		return errs.Dimension(len(s.Vector), len(v))
	}
	return nil
}

// Save folds v into the running average: c' = c·(1−α) + v·α with α = 1/n.
func (s *State) Save(v []float32) error {
	if err := s.checkDim(v); err != nil {
		return err
	}
	s.Saved++
	if len(s.Vector) == 0 || s.Saved == 1 {
		s.Vector = vecmath.Clone(v)
		return nil
	}
	alpha := 1 / float64(s.Saved)
	next, err := vecmath.Blend(s.Vector, 1-alpha, v, alpha)
	if err != nil {
		return err
	}
	s.Vector = next
	return nil
}

// Skip pushes the centroid away from v: c' = c·(1−β) − v·β. Without a
// centroid there is nothing to push, so only the counter moves.
func (s *State) Skip(v []float32, beta float64) error {
	if err := s.checkDim(v); err != nil {
		return err
	}
	s.Skipped++
	if len(s.Vector) == 0 {
		return nil
	}
	next, err := vecmath.Blend(s.Vector, 1-beta, v, -beta)
	if err != nil {
		return err
	}
	s.Vector = next
	return nil
}

// UnSave inverts the most recent Save of v: c = (c'·n − v)/(n−1).
func (s *State) UnSave(v []float32) error {
	if err := s.checkDim(v); err != nil {
		return err
	}
	if s.Saved <= 0 {
		return nil
	}
	n := float64(s.Saved)
	s.Saved--
	if s.Saved == 0 {
		s.Vector = nil
		return nil
	}
	if len(s.Vector) == 0 {
		return nil
	}
	prev, err := vecmath.Blend(s.Vector, n/(n-1), v, -1/(n-1))
	if err != nil {
		return err
	}
	s.Vector = prev
	return nil
}

// UnSkip inverts Skip: c = (c' + v·β)/(1−β).
func (s *State) UnSkip(v []float32, beta float64) error {
	if err := s.checkDim(v); err != nil {
		return err
	}
	if s.Skipped > 0 {
		s.Skipped--
	}
	if len(s.Vector) == 0 || beta >= 1 {
		return nil
	}
	prev, err := vecmath.Blend(s.Vector, 1/(1-beta), v, beta/(1-beta))
	if err != nil {
		return err
	}
	s.Vector = prev
	return nil
}

// Event is one recorded feedback action with its chunk embedding.
type Event struct {
	Action    types.Action
	Embedding []float32
}

// Replay rebuilds a centroid from feedback history in action order using the
// same update math as the incremental path.
func Replay(events []Event, beta float64) (State, error) {
	var st State
	for _, e := range events {
		var err error
		switch e.Action {
		case types.ActionSaved:
			err = st.Save(e.Embedding)
		case types.ActionSkipped:
			err = st.Skip(e.Embedding, beta)
		}
		if err != nil {
			return State{}, err
		}
	}
	if st.Saved == 0 {
		st.Vector = nil
	}
	return st, nil
}

func stateFromRow(userID uuid.UUID, row *types.UserCentroid) (*State, error) {
	st := &State{UserID: userID}
	if row == nil {
		return st, nil
	}
	vec, err := row.Vec()
	if err != nil {
		return nil, err
	}
	st.Vector = vec
	st.Saved = row.SavedCount
	st.Skipped = row.SkippedCount
	st.Version = row.Version
	st.LastRecomputedAt = row.LastRecomputedAt
	return st, nil
}

func (s *State) toRow() (*types.UserCentroid, error) {
	row := &types.UserCentroid{
		UserID:           s.UserID,
		SavedCount:       s.Saved,
		SkippedCount:     s.Skipped,
		Version:          s.Version,
		LastRecomputedAt: s.LastRecomputedAt,
	}
	if err := row.SetVec(s.Vector); err != nil {
		return nil, err
	}
	return row, nil
}
