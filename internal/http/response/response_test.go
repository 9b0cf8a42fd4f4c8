package response

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	errs "github.com/yungbote/signals-backend/internal/pkg/errors"
	"github.com/yungbote/signals-backend/internal/platform/apierr"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("wrap: %w", errs.ErrUnknownDecision), http.StatusNotFound, "unknown_decision"},
		{errs.ErrNotFound, http.StatusNotFound, "not_found"},
		{errs.Dimension(3, 2), http.StatusBadRequest, "dimension_mismatch"},
		{errs.ErrEmptyText, http.StatusBadRequest, "empty_text"},
		{errs.ErrUnknownAction, http.StatusBadRequest, "unknown_action"},
		{errs.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
		{errs.ErrStaleCentroid, http.StatusConflict, "conflict"},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{apierr.New(http.StatusTooManyRequests, "rate_limited", nil), http.StatusTooManyRequests, "rate_limited"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		status, code := Status(tc.err)
		assert.Equal(t, tc.status, status, "%v", tc.err)
		assert.Equal(t, tc.code, code, "%v", tc.err)
	}
}
