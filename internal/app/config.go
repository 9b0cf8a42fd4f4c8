package app

import (
	"time"

	"github.com/yungbote/signals-backend/internal/clients/openai"
	"github.com/yungbote/signals-backend/internal/clients/redis"
	"github.com/yungbote/signals-backend/internal/data/db"
	"github.com/yungbote/signals-backend/internal/platform/envutil"
	"github.com/yungbote/signals-backend/internal/temporalx"
)

type Config struct {
	LogMode     string
	Environment string
	Version     string

	HTTPAddr        string
	ShutdownTimeout time.Duration

	AutoMigrate bool
	// RunWorker starts the Temporal worker in this process.
	RunWorker bool
	// EnsureSchedules starts the maintenance cron workflows on boot.
	EnsureSchedules  bool
	BatchConcurrency int

	DB       db.Config
	OpenAI   openai.Config
	Redis    redis.Config
	Temporal temporalx.Config
}

func LoadConfig() Config {
	return Config{
		LogMode:     envutil.String("LOG_MODE", "development"),
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),

		HTTPAddr:        envutil.String("HTTP_ADDR", ":8080"),
		ShutdownTimeout: envutil.Duration("HTTP_SHUTDOWN_TIMEOUT", 15*time.Second),

		AutoMigrate:      envutil.Bool("DB_AUTO_MIGRATE", true),
		RunWorker:        envutil.Bool("SIGNAL_RUN_WORKER", true),
		EnsureSchedules:  envutil.Bool("SIGNAL_ENSURE_SCHEDULES", true),
		BatchConcurrency: envutil.Int("SIGNAL_BATCH_CONCURRENCY", 8),

		DB:       db.LoadConfigFromEnv(),
		OpenAI:   openai.LoadConfigFromEnv(),
		Redis:    redis.LoadConfigFromEnv(),
		Temporal: temporalx.LoadConfig(),
	}
}
