package response

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	errs "github.com/yungbote/signals-backend/internal/pkg/errors"
	"github.com/yungbote/signals-backend/internal/platform/apierr"
)

// Status maps an error onto an HTTP status and a stable error code.
func Status(err error) (int, string) {
	var ae *apierr.Error
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.As(err, &ae) && ae.Status != 0:
		return ae.Status, ae.Code
	case errors.Is(err, errs.ErrUnknownDecision):
		return http.StatusNotFound, "unknown_decision"
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, errs.ErrDimensionMismatch):
		return http.StatusBadRequest, "dimension_mismatch"
	case errors.Is(err, errs.ErrEmptyText):
		return http.StatusBadRequest, "empty_text"
	case errors.Is(err, errs.ErrUnknownAction):
		return http.StatusBadRequest, "unknown_action"
	case errors.Is(err, errs.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, errs.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return 499, "canceled"
	}
	return http.StatusInternalServerError, "internal"
}

// FromError writes err with the status Status picks. Internal errors are
// logged by the request logger but not echoed to the client.
func FromError(c *gin.Context, err error) {
	status, code := Status(err)
	_ = c.Error(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		RespondError(c, status, code, errors.New("internal error"))
		return
	}
	RespondError(c, status, code, err)
}
