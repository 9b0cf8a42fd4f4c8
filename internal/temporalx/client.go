package temporalx

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/signals-backend/internal/pkg/logger"
)

// Dial connects to Temporal for feedback dispatch and the maintenance
// schedules. With no address it returns a nil client, and feedback events are
// then applied inline. Transient failures are retried until DialMaxWait or ctx
// ends; misconfiguration fails on the first attempt.
func Dial(ctx context.Context, cfg Config, log *logger.Logger) (temporalsdkclient.Client, error) {
	if cfg.Address == "" {
		log.Warn("TEMPORAL_ADDRESS not set; feedback events are applied inline")
		return nil, nil
	}
	opts, err := clientOptions(cfg, log)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(cfg.DialMaxWait)
	for attempt := 1; ; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		c, err := temporalsdkclient.DialContext(dialCtx, opts)
		cancel()
		if err == nil {
			log.Info("Connected to Temporal",
				"address", cfg.Address,
				"namespace", cfg.Namespace,
				"task_queue", cfg.TaskQueue,
				"attempts", attempt,
			)
			return c, nil
		}
		if !Retryable(err) || time.Now().After(deadline) {
			return nil, fmt.Errorf("dial temporal %s (namespace %s, %d attempts): %w", cfg.Address, cfg.Namespace, attempt, err)
		}

		wait := ClampBackoff(cfg.DialBackoff, cfg.DialBackoffMax, attempt)
		log.Warn("Temporal unreachable; retrying", "address", cfg.Address, "attempt", attempt, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func clientOptions(cfg Config, log *logger.Logger) (temporalsdkclient.Options, error) {
	opts := temporalsdkclient.Options{
		HostPort:  cfg.Address,
		Namespace: cfg.Namespace,
		Logger:    log,
	}
	tlsCfg, err := mtlsConfig(cfg)
	if err != nil {
		return opts, err
	}
	opts.ConnectionOptions.TLS = tlsCfg
	return opts, nil
}

// mtlsConfig returns nil when no client certificate is configured.
func mtlsConfig(cfg Config) (*tls.Config, error) {
	if cfg.ClientCertPath == "" && cfg.ClientKeyPath == "" && cfg.ClientCAPath == "" {
		return nil, nil
	}
	if cfg.ClientCertPath == "" || cfg.ClientKeyPath == "" {
		return nil, errors.New("temporal mtls: TEMPORAL_CLIENT_CERT_PATH and TEMPORAL_CLIENT_KEY_PATH must be set together")
	}
	pair, err := tls.LoadX509KeyPair(cfg.ClientCertPath, cfg.ClientKeyPath)
	if err != nil {
		return nil, fmt.Errorf("temporal mtls: %w", err)
	}
	out := &tls.Config{Certificates: []tls.Certificate{pair}, MinVersion: tls.VersionTLS12}
	if cfg.ClientCAPath == "" {
		return out, nil
	}
	pem, err := os.ReadFile(cfg.ClientCAPath)
	if err != nil {
		return nil, fmt.Errorf("temporal mtls: %w", err)
	}
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("temporal mtls: no certificates in %s", cfg.ClientCAPath)
	}
	out.RootCAs = roots
	return out, nil
}

// Retryable reports whether a dial or worker-start failure may clear up on
// its own. A missing namespace, rejected credentials and caller cancellation
// do not.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var nsNotFound *serviceerror.NamespaceNotFound
	if errors.As(err, &nsNotFound) {
		return false
	}
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unauthenticated, codes.PermissionDenied, codes.InvalidArgument, codes.NotFound, codes.Canceled:
			return false
		}
	}
	return true
}

// ClampBackoff doubles base per attempt and caps at max. A zero base means
// 250ms; a zero max leaves the delay uncapped.
func ClampBackoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	d := base
	for i := 1; i < attempt; i++ {
		if max > 0 && d >= max {
			break
		}
		d *= 2
	}
	if max > 0 && d > max {
		return max
	}
	return d
}
