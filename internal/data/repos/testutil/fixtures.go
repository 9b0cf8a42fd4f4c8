package testutil

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/signals-backend/internal/domain/signals"
	"github.com/yungbote/signals-backend/internal/pkg/pointers"
)

func SeedChunk(tb testing.TB, ctx context.Context, tx *gorm.DB, text string, vec []float32) *signals.ContentChunk {
	tb.Helper()
	c := &signals.ContentChunk{
		ID:         uuid.New(),
		DocumentID: uuid.New(),
		Text:       text,
	}
	if err := c.SetVector(vec); err != nil {
		tb.Fatalf("seed chunk vector: %v", err)
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed chunk: %v", err)
	}
	return c
}

// SeedDecision inserts a passing heuristic decision for the chunk and user.
func SeedDecision(tb testing.TB, ctx context.Context, tx *gorm.DB, chunkID, userID uuid.UUID, action signals.Action) *signals.ScoringDecision {
	tb.Helper()
	d := &signals.ScoringDecision{
		ID:                 uuid.New(),
		ChunkID:            chunkID,
		UserID:             userID,
		Score:              60,
		Method:             signals.MethodHeuristic,
		Passed:             true,
		HeuristicComposite: pointers.Float64(0.6),
		UserAction:         action,
	}
	if action != signals.ActionUnset && action != "" {
		d.ActionAt = pointers.Time(time.Now().UTC())
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed decision: %v", err)
	}
	return d
}

// Words returns n space-separated filler words.
func Words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = "word"
	}
	return strings.Join(w, " ")
}
