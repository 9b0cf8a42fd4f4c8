package judge

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/signals-backend/internal/clients/openai"
	"github.com/yungbote/signals-backend/internal/pkg/httpx"
	"github.com/yungbote/signals-backend/internal/pkg/logger"
)

// Generator is the structured-output call the adapter wraps.
type Generator interface {
	GenerateJSON(ctx context.Context, req openai.JSONRequest) (openai.JSONResult, error)
}

// Recorder receives one event per Evaluate call.
type Recorder interface {
	ObserveJudge(outcome string, costUSD float64, elapsed time.Duration)
}

type Config struct {
	Temperature     float64       `yaml:"temperature" json:"temperature"`
	MaxRetries      int           `yaml:"max_retries" json:"max_retries"`
	AttemptTimeout  time.Duration `yaml:"attempt_timeout" json:"attempt_timeout"`
	OverallTimeout  time.Duration `yaml:"overall_timeout" json:"overall_timeout"`
	BackoffBase     time.Duration `yaml:"backoff_base" json:"backoff_base"`
	BackoffMax      time.Duration `yaml:"backoff_max" json:"backoff_max"`
	BreakerFailures uint          `yaml:"breaker_failures" json:"breaker_failures"`
	BreakerWindow   uint          `yaml:"breaker_window" json:"breaker_window"`
	BreakerDelay    time.Duration `yaml:"breaker_delay" json:"breaker_delay"`
	InputCostPer1K  float64       `yaml:"input_cost_per_1k" json:"input_cost_per_1k"`
	OutputCostPer1K float64       `yaml:"output_cost_per_1k" json:"output_cost_per_1k"`
	MaxChars        int           `yaml:"max_chars" json:"max_chars"`
}

func DefaultConfig() Config {
	return Config{
		Temperature:     0,
		MaxRetries:      2,
		AttemptTimeout:  20 * time.Second,
		OverallTimeout:  45 * time.Second,
		BackoffBase:     500 * time.Millisecond,
		BackoffMax:      5 * time.Second,
		BreakerFailures: 5,
		BreakerWindow:   10,
		BreakerDelay:    30 * time.Second,
		InputCostPer1K:  0.00015,
		OutputCostPer1K: 0.0006,
		MaxChars:        8000,
	}
}

// Adapter turns the remote judge into a total function: every call returns a
// Verdict, degrading to Neutral on any failure.
type Adapter struct {
	gen     Generator
	cfg     Config
	log     *logger.Logger
	rec     Recorder
	exec    failsafe.Executor[*openai.JSONResult]
	breaker circuitbreaker.CircuitBreaker[*openai.JSONResult]

	mu        sync.Mutex
	totalCost float64
}

func NewAdapter(gen Generator, cfg Config, rec Recorder, baseLog *logger.Logger) *Adapter {
	def := DefaultConfig()
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	if cfg.OverallTimeout <= 0 {
		cfg.OverallTimeout = def.OverallTimeout
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = cfg.BackoffBase
	}
	if cfg.BreakerWindow == 0 {
		cfg.BreakerWindow = def.BreakerWindow
	}
	if cfg.BreakerFailures == 0 || cfg.BreakerFailures > cfg.BreakerWindow {
		cfg.BreakerFailures = cfg.BreakerWindow
	}
	if cfg.BreakerDelay <= 0 {
		cfg.BreakerDelay = def.BreakerDelay
	}

	log := baseLog.With("service", "JudgeAdapter")

	retry := retrypolicy.NewBuilder[*openai.JSONResult]().
		WithBackoff(cfg.BackoffBase, cfg.BackoffMax).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ *openai.JSONResult, err error) bool {
			return err != nil && httpx.IsRetryableError(err)
		}).
		Build()

	breaker := circuitbreaker.NewBuilder[*openai.JSONResult]().
		WithFailureThresholdRatio(cfg.BreakerFailures, cfg.BreakerWindow).
		WithDelay(cfg.BreakerDelay).
		WithSuccessThreshold(1).
		HandleIf(func(_ *openai.JSONResult, err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			log.Warn("judge circuit breaker state change",
				"from_state", stateName(e.OldState),
				"to_state", stateName(e.NewState),
			)
		}).
		Build()

	return &Adapter{
		gen:     gen,
		cfg:     cfg,
		log:     log,
		rec:     rec,
		exec:    failsafe.With[*openai.JSONResult](retry, breaker),
		breaker: breaker,
	}
}

// Evaluate scores text. It never fails; see Verdict.Fallback.
func (a *Adapter) Evaluate(ctx context.Context, chunkID uuid.UUID, text string) Verdict {
	ctx, span := otel.Tracer("signals/judge").Start(ctx, "judge.evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("chunk_id", chunkID.String()))

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, a.cfg.OverallTimeout)
	defer cancel()

	req := openai.JSONRequest{
		System:      rubricPrompt,
		User:        clip(text, a.cfg.MaxChars),
		SchemaName:  schemaName,
		Schema:      verdictSchema(),
		Temperature: a.cfg.Temperature,
	}

	var (
		attempts int
		cost     float64
		lastErr  error
	)
	res, err := a.exec.WithContext(ctx).Get(func() (*openai.JSONResult, error) {
		attempts++
		attemptCtx, cancelAttempt := context.WithTimeout(ctx, a.cfg.AttemptTimeout)
		defer cancelAttempt()

		out, err := a.gen.GenerateJSON(attemptCtx, req)
		cost += a.cost(out.Usage)
		if err != nil {
			lastErr = err
			return nil, err
		}
		return &out, nil
	})

	var v Verdict
	if err == nil {
		v, err = parseVerdict(res.Object)
		if err == nil {
			v.Model = res.Model
		}
	}
	if err != nil {
		class := classify(err, lastErr)
		a.log.Warn("judge fallback",
			"chunk_id", chunkID,
			"error_class", class,
			"attempts", attempts,
			"error", err.Error(),
		)
		v = Neutral()
		v.ErrorClass = class
	}
	v.Attempts = attempts
	v.CostUSD = cost
	a.addCost(cost)

	outcome := "ok"
	if v.Fallback {
		outcome = "fallback_" + v.ErrorClass
	}
	span.SetAttributes(
		attribute.Int("judge.overall", v.Overall),
		attribute.Bool("judge.fallback", v.Fallback),
		attribute.Int("judge.attempts", attempts),
	)
	if a.rec != nil {
		a.rec.ObserveJudge(outcome, cost, time.Since(start))
	}
	return v
}

// TotalCostUSD is the cumulative judge spend of this adapter.
func (a *Adapter) TotalCostUSD() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalCost
}

func (a *Adapter) addCost(c float64) {
	if c == 0 {
		return
	}
	a.mu.Lock()
	a.totalCost += c
	a.mu.Unlock()
}

func (a *Adapter) cost(u openai.Usage) float64 {
	return float64(u.InputTokens)/1000*a.cfg.InputCostPer1K + float64(u.OutputTokens)/1000*a.cfg.OutputCostPer1K
}

func classify(err, lastErr error) string {
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		return "circuit_open"
	case errors.Is(err, errSchema):
		return "malformed"
	}
	if lastErr != nil {
		err = lastErr
	}
	return httpx.ErrorClass(err)
}

// BreakerOpen reports whether calls are currently short-circuited.
func (a *Adapter) BreakerOpen() bool {
	return a.breaker.IsOpen()
}

func stateName(s circuitbreaker.State) string {
	switch s {
	case circuitbreaker.ClosedState:
		return "closed"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	case circuitbreaker.OpenState:
		return "open"
	default:
		return "unknown"
	}
}

func clip(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
