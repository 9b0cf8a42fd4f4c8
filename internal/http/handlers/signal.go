package handlers

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/signals-backend/internal/domain/signals"
	"github.com/yungbote/signals-backend/internal/http/response"
	errs "github.com/yungbote/signals-backend/internal/pkg/errors"
	"github.com/yungbote/signals-backend/internal/pkg/logger"
	"github.com/yungbote/signals-backend/internal/platform/apierr"
	"github.com/yungbote/signals-backend/internal/services"
	"github.com/yungbote/signals-backend/internal/temporalx/signalsflow"
)

// FeedbackSink accepts feedback events from the presentation layer.
type FeedbackSink interface {
	DispatchFeedback(ctx context.Context, ev signalsflow.FeedbackEvent) (string, error)
}

type SignalHandler struct {
	log  *logger.Logger
	svc  services.SignalService
	sink FeedbackSink
}

func NewSignalHandler(log *logger.Logger, svc services.SignalService, sink FeedbackSink) *SignalHandler {
	return &SignalHandler{log: log.With("handler", "SignalHandler"), svc: svc, sink: sink}
}

type scoreRequest struct {
	ChunkID uuid.UUID `json:"chunk_id"`
	UserID  uuid.UUID `json:"user_id"`
}

// POST /v1/signals/score
func (h *SignalHandler) Score(c *gin.Context) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FromError(c, badRequest(err))
		return
	}
	if req.UserID == uuid.Nil {
		response.FromError(c, fmt.Errorf("%w: missing user_id", errs.ErrInvalidInput))
		return
	}
	d, err := h.svc.Score(c.Request.Context(), req.ChunkID, req.UserID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"decision": d})
}

type scoreBatchRequest struct {
	ChunkIDs []uuid.UUID `json:"chunk_ids"`
	UserID   uuid.UUID   `json:"user_id"`
}

type batchResult struct {
	ChunkID  uuid.UUID              `json:"chunk_id"`
	Decision *types.ScoringDecision `json:"decision,omitempty"`
	Error    *response.APIError     `json:"error,omitempty"`
}

// POST /v1/signals/score/batch
func (h *SignalHandler) ScoreBatch(c *gin.Context) {
	var req scoreBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FromError(c, badRequest(err))
		return
	}
	if req.UserID == uuid.Nil || len(req.ChunkIDs) == 0 {
		response.FromError(c, fmt.Errorf("%w: user_id and chunk_ids are required", errs.ErrInvalidInput))
		return
	}
	items := h.svc.ScoreBatch(c.Request.Context(), req.ChunkIDs, req.UserID)
	out := make([]batchResult, 0, len(items))
	for _, it := range items {
		r := batchResult{ChunkID: it.ChunkID, Decision: it.Decision}
		if it.Err != nil {
			_, code := response.Status(it.Err)
			r.Error = &response.APIError{Message: it.Err.Error(), Code: code}
		}
		out = append(out, r)
	}
	response.RespondOK(c, gin.H{"items": out})
}

// POST /v1/signals/rank
func (h *SignalHandler) Rank(c *gin.Context) {
	var req services.RankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FromError(c, badRequest(err))
		return
	}
	ranked, err := h.svc.Rank(c.Request.Context(), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"results": ranked})
}

type feedbackRequest struct {
	Action string `json:"action"`
}

type feedbackResponse struct {
	DecisionID uuid.UUID    `json:"decision_id"`
	Previous   types.Action `json:"previous"`
	Action     types.Action `json:"action"`
	Applied    bool         `json:"applied"`
	Version    int64        `json:"version"`
}

// POST /v1/signals/:id/feedback
func (h *SignalHandler) RecordFeedback(c *gin.Context) {
	decisionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.FromError(c, fmt.Errorf("%w: decision id", errs.ErrInvalidInput))
		return
	}
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FromError(c, badRequest(err))
		return
	}
	action, ok := types.ParseAction(req.Action)
	if !ok {
		response.FromError(c, fmt.Errorf("%w: %q", errs.ErrUnknownAction, req.Action))
		return
	}
	res, err := h.svc.RecordFeedback(c.Request.Context(), decisionID, action)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.RespondOK(c, feedbackResponse{
		DecisionID: res.DecisionID,
		Previous:   res.Previous,
		Action:     res.Action,
		Applied:    res.Applied,
		Version:    res.Version,
	})
}

// POST /v1/feedback/events
func (h *SignalHandler) IngestFeedbackEvent(c *gin.Context) {
	var ev signalsflow.FeedbackEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		response.FromError(c, badRequest(err))
		return
	}
	if _, ok := types.ParseAction(ev.Action); !ok {
		response.FromError(c, fmt.Errorf("%w: %q", errs.ErrUnknownAction, ev.Action))
		return
	}
	if ev.DecisionID == "" && (ev.ChunkID == "" || ev.UserID == "") {
		response.FromError(c, fmt.Errorf("%w: decision_id or chunk_id and user_id are required", errs.ErrInvalidInput))
		return
	}
	if h.sink == nil {
		response.FromError(c, apierr.Unavailable("feedback_unavailable", fmt.Errorf("feedback sink not configured")))
		return
	}
	ref, err := h.sink.DispatchFeedback(c.Request.Context(), ev)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"ref": ref})
}

// POST /v1/users/:id/centroid/recompute
func (h *SignalHandler) RecomputeCentroid(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.FromError(c, fmt.Errorf("%w: user id", errs.ErrInvalidInput))
		return
	}
	if err := h.svc.RecomputeCentroid(c.Request.Context(), userID); err != nil {
		response.FromError(c, err)
		return
	}
	response.RespondNoContent(c)
}

func badRequest(err error) error {
	return fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
}
