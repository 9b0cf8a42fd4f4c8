package app

import (
	"context"
	"fmt"
	"strings"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/signals-backend/internal/clients/openai"
	"github.com/yungbote/signals-backend/internal/clients/redis"
	"github.com/yungbote/signals-backend/internal/pkg/logger"
	"github.com/yungbote/signals-backend/internal/temporalx"
)

// Clients holds the optional outbound connections. Each is nil when its
// configuration is absent.
type Clients struct {
	OpenAI   openai.Client
	Locker   redis.Locker
	Temporal temporalsdkclient.Client
}

func wireClients(ctx context.Context, cfg Config, log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	if strings.TrimSpace(cfg.OpenAI.APIKey) != "" {
		c, err := openai.NewClient(cfg.OpenAI, log)
		if err != nil {
			return Clients{}, fmt.Errorf("init openai client: %w", err)
		}
		out.OpenAI = c
	} else {
		log.Warn("OPENAI_API_KEY not set; judge degrades to neutral verdicts and raw-query ranking is unavailable")
	}

	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		l, err := redis.NewLocker(cfg.Redis, log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis locker: %w", err)
		}
		out.Locker = l
	}

	tc, err := temporalx.Dial(ctx, cfg.Temporal, log)
	if err != nil {
		out.Close()
		return Clients{}, fmt.Errorf("init temporal client: %w", err)
	}
	out.Temporal = tc

	return out, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Locker != nil {
		_ = c.Locker.Close()
	}
}
