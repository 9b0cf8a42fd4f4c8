package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/signals-backend/internal/domain/signals"
	"github.com/yungbote/signals-backend/internal/modules/signals/feedback"
	"github.com/yungbote/signals-backend/internal/modules/signals/ranker"
	errs "github.com/yungbote/signals-backend/internal/pkg/errors"
	"github.com/yungbote/signals-backend/internal/pkg/logger"
	"github.com/yungbote/signals-backend/internal/services"
	"github.com/yungbote/signals-backend/internal/temporalx/signalsflow"
)

type fakeService struct {
	decisions map[uuid.UUID]*types.ScoringDecision
	feedback  []types.Action
	recompute []uuid.UUID
	rankReq   services.RankRequest
}

func (f *fakeService) Score(_ context.Context, chunkID, userID uuid.UUID) (*types.ScoringDecision, error) {
	d, ok := f.decisions[chunkID]
	if !ok {
		return nil, fmt.Errorf("%w: chunk %s", errs.ErrNotFound, chunkID)
	}
	d.UserID = userID
	return d, nil
}

func (f *fakeService) ScoreChunk(ctx context.Context, chunk *types.ContentChunk, userID uuid.UUID) (*types.ScoringDecision, error) {
	return f.Score(ctx, chunk.ID, userID)
}

func (f *fakeService) ScoreBatch(ctx context.Context, chunkIDs []uuid.UUID, userID uuid.UUID) []services.BatchItem {
	out := make([]services.BatchItem, len(chunkIDs))
	for i, id := range chunkIDs {
		d, err := f.Score(ctx, id, userID)
		out[i] = services.BatchItem{ChunkID: id, Decision: d, Err: err}
	}
	return out
}

func (f *fakeService) Rank(_ context.Context, req services.RankRequest) ([]ranker.Ranked, error) {
	f.rankReq = req
	if len(req.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates", errs.ErrInvalidInput)
	}
	return []ranker.Ranked{{ChunkID: req.Candidates[0].ChunkID, QuerySimilarity: 0.9, FinalScore: 0.9}}, nil
}

func (f *fakeService) RecordFeedback(_ context.Context, decisionID uuid.UUID, action types.Action) (feedback.Result, error) {
	if _, ok := f.decisions[decisionID]; !ok {
		return feedback.Result{}, fmt.Errorf("%w: %s", errs.ErrUnknownDecision, decisionID)
	}
	f.feedback = append(f.feedback, action)
	return feedback.Result{DecisionID: decisionID, Previous: types.ActionUnset, Action: action, Applied: true, Version: 1}, nil
}

func (f *fakeService) RecomputeCentroid(_ context.Context, userID uuid.UUID) error {
	f.recompute = append(f.recompute, userID)
	return nil
}

type fakeSink struct {
	events []signalsflow.FeedbackEvent
	err    error
}

func (s *fakeSink) DispatchFeedback(_ context.Context, ev signalsflow.FeedbackEvent) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.events = append(s.events, ev)
	return signalsflow.FeedbackWorkflowID(ev), nil
}

func newTestEngine(svc *fakeService, sink *fakeSink) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewSignalHandler(logger.Nop(), svc, sink)
	r := gin.New()
	r.POST("/score", h.Score)
	r.POST("/score/batch", h.ScoreBatch)
	r.POST("/rank", h.Rank)
	r.POST("/signals/:id/feedback", h.RecordFeedback)
	r.POST("/events", h.IngestFeedbackEvent)
	r.POST("/users/:id/recompute", h.RecomputeCentroid)
	return r
}

func do(t *testing.T, r http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error.Code
}

func TestScore(t *testing.T) {
	chunkID := uuid.New()
	svc := &fakeService{decisions: map[uuid.UUID]*types.ScoringDecision{
		chunkID: {ID: uuid.New(), ChunkID: chunkID, Score: 61.5, Method: types.MethodHeuristic, Passed: true},
	}}
	r := newTestEngine(svc, nil)

	rec := do(t, r, "/score", map[string]any{"chunk_id": chunkID, "user_id": uuid.New()})
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Decision types.ScoringDecision `json:"decision"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, chunkID, out.Decision.ChunkID)
	assert.Equal(t, 61.5, out.Decision.Score)

	rec = do(t, r, "/score", map[string]any{"chunk_id": uuid.New(), "user_id": uuid.New()})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, rec))

	rec = do(t, r, "/score", map[string]any{"chunk_id": chunkID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, "/score", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", errorCode(t, rec))
}

func TestScoreBatchReportsPerItemErrors(t *testing.T) {
	known := uuid.New()
	missing := uuid.New()
	svc := &fakeService{decisions: map[uuid.UUID]*types.ScoringDecision{
		known: {ID: uuid.New(), ChunkID: known, Score: 10, Method: types.MethodLengthFilter},
	}}
	r := newTestEngine(svc, nil)

	rec := do(t, r, "/score/batch", map[string]any{"chunk_ids": []uuid.UUID{known, missing}, "user_id": uuid.New()})
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Items []struct {
			ChunkID  uuid.UUID `json:"chunk_id"`
			Decision *struct {
				Score float64 `json:"score"`
			} `json:"decision"`
			Error *struct {
				Code string `json:"code"`
			} `json:"error"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Items, 2)
	require.NotNil(t, out.Items[0].Decision)
	assert.Nil(t, out.Items[0].Error)
	assert.Nil(t, out.Items[1].Decision)
	require.NotNil(t, out.Items[1].Error)
	assert.Equal(t, "not_found", out.Items[1].Error.Code)
}

func TestRank(t *testing.T) {
	svc := &fakeService{}
	r := newTestEngine(svc, nil)
	chunkID := uuid.New()
	userID := uuid.New()

	rec := do(t, r, "/rank", map[string]any{
		"user_id":    userID,
		"candidates": []map[string]any{{"chunk_id": chunkID, "query_similarity": 0.9}},
		"top_k":      5,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, svc.rankReq.UserID)
	assert.Equal(t, 5, svc.rankReq.TopK)
	require.NotNil(t, svc.rankReq.Candidates[0].QuerySimilarity)
	assert.Equal(t, 0.9, *svc.rankReq.Candidates[0].QuerySimilarity)

	var out struct {
		Results []ranker.Ranked `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Results, 1)
	assert.Equal(t, chunkID, out.Results[0].ChunkID)

	rec = do(t, r, "/rank", map[string]any{"user_id": userID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordFeedback(t *testing.T) {
	decisionID := uuid.New()
	svc := &fakeService{decisions: map[uuid.UUID]*types.ScoringDecision{decisionID: {ID: decisionID}}}
	r := newTestEngine(svc, nil)

	rec := do(t, r, "/signals/"+decisionID.String()+"/feedback", map[string]string{"action": "saved"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []types.Action{types.ActionSaved}, svc.feedback)
	var out feedbackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Applied)
	assert.Equal(t, types.ActionUnset, out.Previous)

	rec = do(t, r, "/signals/"+decisionID.String()+"/feedback", map[string]string{"action": "liked"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown_action", errorCode(t, rec))

	rec = do(t, r, "/signals/"+uuid.NewString()+"/feedback", map[string]string{"action": "skipped"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown_decision", errorCode(t, rec))

	rec = do(t, r, "/signals/nope/feedback", map[string]string{"action": "saved"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestFeedbackEvent(t *testing.T) {
	sink := &fakeSink{}
	r := newTestEngine(&fakeService{}, sink)

	rec := do(t, r, "/events", map[string]string{"decision_id": "d1", "action": "saved"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, sink.events, 1)
	assert.Contains(t, rec.Body.String(), "feedback:d1:saved")

	rec = do(t, r, "/events", map[string]string{"chunk_id": "c1", "action": "saved"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, "/events", map[string]string{"decision_id": "d1", "action": "loved"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, sink.events, 1)

	sink.err = fmt.Errorf("%w: gone", errs.ErrUnknownDecision)
	rec = do(t, r, "/events", map[string]string{"decision_id": "d2", "action": "skipped"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecomputeCentroid(t *testing.T) {
	svc := &fakeService{}
	r := newTestEngine(svc, nil)
	userID := uuid.New()

	rec := do(t, r, "/users/"+userID.String()+"/recompute", "{}")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []uuid.UUID{userID}, svc.recompute)

	rec = do(t, r, "/users/bad/recompute", "{}")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestFeedbackEventWithoutSink(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewSignalHandler(logger.Nop(), &fakeService{}, nil)
	r := gin.New()
	r.POST("/events", h.IngestFeedbackEvent)

	rec := do(t, r, "/events", map[string]string{"decision_id": "d1", "action": "saved"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "feedback_unavailable", errorCode(t, rec))
}
