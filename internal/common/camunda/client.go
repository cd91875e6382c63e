package camunda

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "sqpr-engine/internal/common/errors"
	"sqpr-engine/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// Client wraps the Zeebe gRPC client with connection retry and a health
// check for the readiness probe.
type Client struct {
	zbc.Client
	config ClientConfig
}

type ClientConfig struct {
	GatewayAddress         string
	UsePlaintextConnection bool
	ConnectionTimeout      time.Duration
	Retry                  RetryConfig
}

type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

var DefaultRetryConfig = RetryConfig{
	MaxRetries: 5,
	BaseDelay:  1 * time.Second,
	MaxDelay:   10 * time.Second,
}

// Delay is the backoff before retry attempt n (zero based).
func (r RetryConfig) Delay(attempt int) time.Duration {
	delay := r.BaseDelay * time.Duration(1<<attempt)
	if delay > r.MaxDelay || delay <= 0 {
		delay = r.MaxDelay
	}
	return delay
}

// Connect dials the gateway and waits for a topology response, retrying
// transient failures with exponential backoff.
func Connect(ctx context.Context, cfg ClientConfig, log logger.Logger) (*Client, error) {
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = DefaultRetryConfig
	}
	if cfg.ConnectionTimeout == 0 {
		cfg.ConnectionTimeout = 10 * time.Second
	}

	zc, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         cfg.GatewayAddress,
		UsePlaintextConnection: cfg.UsePlaintextConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Zeebe client: %w", err)
	}
	c := &Client{Client: zc, config: cfg}

	for attempt := 0; ; attempt++ {
		err = c.HealthCheck(ctx)
		if err == nil {
			return c, nil
		}
		if !isRetryableZeebeError(err) || attempt >= cfg.Retry.MaxRetries {
			zc.Close()
			return nil, mapZeebeError(err, "topology", attempt)
		}

		delay := cfg.Retry.Delay(attempt)
		log.Warn("zeebe not reachable, retrying", map[string]interface{}{
			"error":       err,
			"attempt":     attempt + 1,
			"nextRetryIn": delay.String(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			zc.Close()
			return nil, fmt.Errorf("zeebe connect cancelled after %d attempts: %w", attempt+1, ctx.Err())
		}
	}
}

// HealthCheck asks the broker for its topology.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectionTimeout)
	defer cancel()

	if _, err := c.NewTopologyCommand().Send(ctx); err != nil {
		return fmt.Errorf("zeebe health check failed: %w", err)
	}
	return nil
}

func isRetryableZeebeError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, phrase := range []string{
		"connection refused",
		"connection reset",
		"timeout",
		"deadline exceeded",
		"unavailable",
		"unreachable",
		"broken pipe",
	} {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

func mapZeebeError(err error, operation string, attempt int) error {
	lowerMsg := strings.ToLower(err.Error())
	wrapped := fmt.Errorf("zeebe operation %q failed after %d attempts: %w", operation, attempt+1, err)

	if strings.Contains(lowerMsg, "timeout") || strings.Contains(lowerMsg, "deadline exceeded") {
		return apperrors.NewTimeoutError("zeebe", wrapped)
	}
	return apperrors.NewExternalServiceError("zeebe", wrapped)
}
