package temporalx

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/signals-backend/internal/pkg/logger"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TEMPORAL_ADDRESS", "")
	t.Setenv("SIGNAL_RETENTION_CRON", "")
	cfg := LoadConfig()
	assert.Equal(t, "signals", cfg.Namespace)
	assert.Equal(t, "signals", cfg.TaskQueue)
	assert.Equal(t, "0 3 * * 0", cfg.RecomputeCron)
	assert.Equal(t, "30 3 * * *", cfg.RetentionCron)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("TEMPORAL_ADDRESS", "temporal:7233")
	t.Setenv("TEMPORAL_DIAL_TIMEOUT", "2")
	t.Setenv("TEMPORAL_DIAL_BACKOFF", "100ms")
	t.Setenv("WORKER_CONCURRENCY", "0")
	cfg := LoadConfig()
	assert.Equal(t, "temporal:7233", cfg.Address)
	assert.Equal(t, 2*time.Second, cfg.DialTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.DialBackoff)
	assert.Equal(t, 1, cfg.WorkerConcurrency)

	t.Setenv("SIGNAL_RETENTION_CRON", "off")
	assert.Empty(t, LoadConfig().RetentionCron)
}

func TestDialWithoutAddressDisablesTemporal(t *testing.T) {
	c, err := Dial(context.Background(), Config{}, logger.Nop())
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestDialRejectsHalfConfiguredMTLS(t *testing.T) {
	start := time.Now()
	_, err := Dial(context.Background(), Config{
		Address:        "127.0.0.1:7233",
		ClientCertPath: "/nonexistent/client.pem",
		DialMaxWait:    time.Minute,
	}, logger.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be set together")
	assert.Less(t, time.Since(start), time.Second)
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", fmt.Errorf("dial: %w", context.Canceled), false},
		{"namespace missing", serviceerror.NewNamespaceNotFound("signals"), false},
		{"bad credentials", status.Error(codes.Unauthenticated, "no"), false},
		{"unavailable", status.Error(codes.Unavailable, "connection refused"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"plain", errors.New("connection reset"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Retryable(tc.err))
		})
	}
}

func TestClampBackoff(t *testing.T) {
	assert.Equal(t, 250*time.Millisecond, ClampBackoff(0, time.Second, 1))
	assert.Equal(t, 400*time.Millisecond, ClampBackoff(100*time.Millisecond, time.Second, 3))
	assert.Equal(t, time.Second, ClampBackoff(100*time.Millisecond, time.Second, 10))
	assert.Equal(t, 800*time.Millisecond, ClampBackoff(100*time.Millisecond, 0, 4))
}
