package centroid

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/signals-backend/internal/data/repos"
	"github.com/yungbote/signals-backend/internal/data/repos/testutil"
	types "github.com/yungbote/signals-backend/internal/domain/signals"
	errs "github.com/yungbote/signals-backend/internal/pkg/errors"
	"github.com/yungbote/signals-backend/internal/pkg/pointers"
)

func newTestStore(t *testing.T, dist Locker) (*Store, *gorm.DB) {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	r := repos.New(gdb, log)
	return NewStore(gdb, r.Centroids, r.Decisions, dist, Config{Dim: 3, SkipRate: 0.1}, log), gdb
}

func TestStoreApplySaveCreatesLazily(t *testing.T) {
	s, _ := newTestStore(t, nil)
	ctx := context.Background()
	userID := uuid.New()

	got, err := s.Get(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, got)

	st, err := s.ApplySave(ctx, userID, []float32{1, 0, 0})
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.Version)
	assert.Equal(t, 1, st.Saved)

	st, err = s.ApplySave(ctx, userID, []float32{0, 1, 0})
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.Version)

	stored, err := s.Get(ctx, userID)
	require.NoError(t, err)
	assertVecNear(t, []float32{0.5, 0.5, 0}, stored.Vector)
	assert.Equal(t, 2, stored.Saved)
}

func TestStoreRejectsWrongDimension(t *testing.T) {
	s, _ := newTestStore(t, nil)
	_, err := s.ApplySave(context.Background(), uuid.New(), []float32{1, 0})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestStoreSerializesConcurrentWriters(t *testing.T) {
	s, _ := newTestStore(t, nil)
	ctx := context.Background()
	userID := uuid.New()

	const n = 16
	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%4 == 3 {
				_, err = s.ApplySkip(ctx, userID, []float32{0, 0, 1})
			} else {
				_, err = s.ApplySave(ctx, userID, []float32{1, 0, 0})
			}
			errCh <- err
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	st, err := s.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 12, st.Saved)
	assert.Equal(t, 4, st.Skipped)
	assert.EqualValues(t, n, st.Version)
}

func TestStoreMutateDetectsLostUpdate(t *testing.T) {
	s, gdb := newTestStore(t, nil)
	ctx := context.Background()
	userID := uuid.New()
	_, err := s.ApplySave(ctx, userID, []float32{1, 0, 0})
	require.NoError(t, err)

	_, err = s.Mutate(ctx, userID, func(tx *gorm.DB, st *State) (bool, error) {
		// A writer outside the lock bumps the version mid-transaction.
		if err := tx.Model(&types.UserCentroid{}).Where("user_id = ?", userID).
			Update("version", st.Version+5).Error; err != nil {
			return false, err
		}
		return true, st.Save([]float32{0, 1, 0})
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrStaleCentroid)
	assert.ErrorIs(t, err, errs.ErrConflict)

	var row types.UserCentroid
	require.NoError(t, gdb.Where("user_id = ?", userID).First(&row).Error)
	assert.Equal(t, 1, row.SavedCount)
}

func TestStoreRecomputeOverwritesDrift(t *testing.T) {
	s, gdb := newTestStore(t, nil)
	ctx := context.Background()
	userID := uuid.New()

	c1 := testutil.SeedChunk(t, ctx, gdb, "a", []float32{1, 0, 0})
	c2 := testutil.SeedChunk(t, ctx, gdb, "b", []float32{0, 1, 0})
	c3 := testutil.SeedChunk(t, ctx, gdb, "c", []float32{0, 0, 1})
	base := time.Now().UTC().Add(-time.Hour)
	for i, c := range []*types.ContentChunk{c1, c2, c3} {
		action := types.ActionSaved
		if i == 2 {
			action = types.ActionSkipped
		}
		d := testutil.SeedDecision(t, ctx, gdb, c.ID, userID, action)
		require.NoError(t, gdb.Model(d).Update("action_at", pointers.Time(base.Add(time.Duration(i)*time.Minute))).Error)
	}

	// Incremental state that drifted away from history.
	_, err := s.ApplySave(ctx, userID, []float32{0, 0, 1})
	require.NoError(t, err)

	st, err := s.RecomputeFromHistory(ctx, userID)
	require.NoError(t, err)
	want, err := Replay([]Event{
		{Action: types.ActionSaved, Embedding: []float32{1, 0, 0}},
		{Action: types.ActionSaved, Embedding: []float32{0, 1, 0}},
		{Action: types.ActionSkipped, Embedding: []float32{0, 0, 1}},
	}, 0.1)
	require.NoError(t, err)
	assertVecNear(t, want.Vector, st.Vector)
	assert.Equal(t, 2, st.Saved)
	assert.Equal(t, 1, st.Skipped)
	require.NotNil(t, st.LastRecomputedAt)

	stale, err := s.ListStale(ctx, time.Now().UTC().Add(-time.Minute), uuid.Nil, 0)
	require.NoError(t, err)
	assert.NotContains(t, stale, userID)
}

func TestStoreRecomputeWithoutSavesClearsVector(t *testing.T) {
	s, _ := newTestStore(t, nil)
	ctx := context.Background()
	userID := uuid.New()
	_, err := s.ApplySave(ctx, userID, []float32{1, 0, 0})
	require.NoError(t, err)

	st, err := s.RecomputeFromHistory(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, st.Vector)
	assert.Equal(t, 0, st.Saved)
	assert.Equal(t, 0, st.Skipped)
}

type countingLocker struct {
	mu       sync.Mutex
	acquired int
	released int
	fail     error
}

func (l *countingLocker) Acquire(_ context.Context, _ string) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail != nil {
		return nil, l.fail
	}
	l.acquired++
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.released++
		return nil
	}, nil
}

func TestStoreUsesDistributedLock(t *testing.T) {
	lk := &countingLocker{}
	s, _ := newTestStore(t, lk)
	ctx := context.Background()

	_, err := s.ApplySave(ctx, uuid.New(), []float32{1, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 1, lk.acquired)
	assert.Equal(t, 1, lk.released)

	lk.fail = errors.New("redis down")
	_, err = s.ApplySave(ctx, uuid.New(), []float32{1, 0, 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}
