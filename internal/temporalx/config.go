package temporalx

import (
	"strings"
	"time"

	"github.com/yungbote/signals-backend/internal/platform/envutil"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	DialTimeout    time.Duration
	DialMaxWait    time.Duration
	DialBackoff    time.Duration
	DialBackoffMax time.Duration

	// WorkerStartMaxWait bounds how long the worker keeps retrying Start.
	WorkerStartMaxWait time.Duration
	WorkerConcurrency  int

	// Cron schedules for the maintenance workflows. Empty disables one.
	RecomputeCron string
	RetentionCron string
}

func LoadConfig() Config {
	return Config{
		Address:   envutil.String("TEMPORAL_ADDRESS", ""),
		Namespace: envutil.String("TEMPORAL_NAMESPACE", "signals"),
		TaskQueue: envutil.String("TEMPORAL_TASK_QUEUE", "signals"),

		ClientCertPath: envutil.String("TEMPORAL_CLIENT_CERT_PATH", ""),
		ClientKeyPath:  envutil.String("TEMPORAL_CLIENT_KEY_PATH", ""),
		ClientCAPath:   envutil.String("TEMPORAL_CLIENT_CA_PATH", ""),

		DialTimeout:    envutil.Duration("TEMPORAL_DIAL_TIMEOUT", 5*time.Second),
		DialMaxWait:    envutil.Duration("TEMPORAL_DIAL_MAX_WAIT", 60*time.Second),
		DialBackoff:    envutil.Duration("TEMPORAL_DIAL_BACKOFF", 250*time.Millisecond),
		DialBackoffMax: envutil.Duration("TEMPORAL_DIAL_BACKOFF_MAX", 5*time.Second),

		WorkerStartMaxWait: envutil.Duration("TEMPORAL_WORKER_START_MAX_WAIT", 60*time.Second),
		WorkerConcurrency:  max(envutil.Int("WORKER_CONCURRENCY", 4), 1),

		RecomputeCron: cron("SIGNAL_RECOMPUTE_CRON", "0 3 * * 0"),
		RetentionCron: cron("SIGNAL_RETENTION_CRON", "30 3 * * *"),
	}
}

// cron reads a schedule; "off" disables it.
func cron(name, def string) string {
	v := envutil.String(name, def)
	if strings.EqualFold(v, "off") {
		return ""
	}
	return v
}
