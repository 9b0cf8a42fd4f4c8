package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/signals-backend/internal/pkg/logger"
	"github.com/yungbote/signals-backend/internal/platform/envutil"
)

// ErrLockNotAcquired is returned when the lock stays held past the wait budget.
var ErrLockNotAcquired = errors.New("redis lock not acquired")

type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	LockTTL   time.Duration
	LockWait  time.Duration
	LockRetry time.Duration
}

func LoadConfigFromEnv() Config {
	return Config{
		Addr:      envutil.String("REDIS_ADDR", ""),
		Password:  envutil.String("REDIS_PASSWORD", ""),
		DB:        envutil.Int("REDIS_DB", 0),
		KeyPrefix: envutil.String("REDIS_LOCK_PREFIX", "signals:lock:"),
		LockTTL:   envutil.Duration("REDIS_LOCK_TTL", 30*time.Second),
		LockWait:  envutil.Duration("REDIS_LOCK_WAIT", 10*time.Second),
		LockRetry: 50 * time.Millisecond,
	}
}

// Locker is a single-instance Redis mutex (SET NX PX plus a token-checked
// release). It serializes writers across replicas; it is not Redlock.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(context.Context) error, error)
	// Client exposes the underlying connection for health probes.
	Client() goredis.UniversalClient
	Close() error
}

type locker struct {
	log *logger.Logger
	rdb *goredis.Client
	cfg Config
}

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewLocker(cfg Config, log *logger.Logger) (Locker, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.LockRetry <= 0 {
		cfg.LockRetry = 50 * time.Millisecond
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &locker{
		log: log.With("service", "RedisLocker"),
		rdb: rdb,
		cfg: cfg,
	}, nil
}

func (l *locker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	if l == nil || l.rdb == nil {
		return nil, fmt.Errorf("redis locker not initialized")
	}
	full := l.cfg.KeyPrefix + key
	token := uuid.NewString()

	waitCtx := ctx
	if l.cfg.LockWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.cfg.LockWait)
		defer cancel()
	}

	for {
		ok, err := l.rdb.SetNX(waitCtx, full, token, l.cfg.LockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", full, err)
		}
		if ok {
			break
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %s", ErrLockNotAcquired, full)
		case <-time.After(l.cfg.LockRetry):
		}
	}

	release := func(rctx context.Context) error {
		n, err := releaseScript.Run(rctx, l.rdb, []string{full}, token).Int()
		if err != nil {
			return fmt.Errorf("redis unlock %s: %w", full, err)
		}
		if n == 0 {
			l.log.Warn("redis lock expired before release", "key", full)
		}
		return nil
	}
	return release, nil
}

func (l *locker) Client() goredis.UniversalClient {
	if l == nil {
		return nil
	}
	return l.rdb
}

func (l *locker) Close() error {
	if l == nil || l.rdb == nil {
		return nil
	}
	return l.rdb.Close()
}
