package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/signals-backend/internal/pkg/logger"
)

func TestParseHeaders(t *testing.T) {
	assert.Nil(t, parseHeaders(""))
	assert.Nil(t, parseHeaders("junk, =x, y="))
	assert.Equal(t, map[string]string{"api-key": "abc", "x-team": "signals"},
		parseHeaders(" api-key = abc ,x-team=signals,broken"))
}

func TestLoadOtelConfigClampsRatio(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_SAMPLER_RATIO", "4")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	cfg := LoadOtelConfig("signals-engine", "test", "v1")
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 1.0, cfg.SampleRatio)
	assert.Equal(t, "collector:4318", cfg.Endpoint)

	t.Setenv("OTEL_SAMPLER_RATIO", "-1")
	assert.Equal(t, 0.0, LoadOtelConfig("", "", "").SampleRatio)
}

func TestInitOTelDisabledIsNoop(t *testing.T) {
	shutdown := InitOTel(context.Background(), logger.Nop(), OtelConfig{})
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}
