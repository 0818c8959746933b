package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/DanielPopoola/marketplace-settlement/internal/application"
	"github.com/DanielPopoola/marketplace-settlement/internal/config"
)

type RetryGatewayClient struct {
	inner      application.GatewayClient
	baseDelay  time.Duration
	maxRetries int
}

func NewRetryGatewayClient(inner application.GatewayClient, cfg config.RetryConfig) *RetryGatewayClient {
	return &RetryGatewayClient{
		inner:      inner,
		baseDelay:  cfg.BaseDelay,
		maxRetries: cfg.MaxRetries,
	}
}

// Charge with retry logic. The idempotency key makes retries safe: a
// duplicate that reached the gateway replays the original response.
func (r *RetryGatewayClient) Charge(ctx context.Context, req application.GatewayChargeRequest, idempotencyKey string) (*application.GatewayResult, error) {
	return retry(r, ctx, func(ctx context.Context) (*application.GatewayResult, error) {
		return r.inner.Charge(ctx, req, idempotencyKey)
	})
}

// QueryStatus with retry logic
func (r *RetryGatewayClient) QueryStatus(ctx context.Context, gatewayReference string) (*application.GatewayResult, error) {
	return retry(r, ctx, func(ctx context.Context) (*application.GatewayResult, error) {
		return r.inner.QueryStatus(ctx, gatewayReference)
	})
}

// HealthCheck is a probe; a failed probe is an answer, so no retries.
func (r *RetryGatewayClient) HealthCheck(ctx context.Context) (*application.GatewayHealth, error) {
	return r.inner.HealthCheck(ctx)
}

// Generic retry helper
func retry[T any](r *RetryGatewayClient, ctx context.Context, operation func(ctx context.Context) (*T, error)) (*T, error) {
	var lastErr error

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		resp, err := operation(ctx)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}

		if attempt < r.maxRetries-1 {
			select {
			case <-time.After(r.backoff(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, fmt.Errorf("maximum retries exceeded: %w", lastErr)
}

// Helper: transient network/5xx errors retry, 4xx validation never does
func isRetryable(err error) bool {
	if gwErr, ok := application.IsGatewayError(err); ok {
		return gwErr.Transient()
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	// network-level failures and timeouts
	return true
}

// Backoff calculation with exponential delay and jitter
func (r *RetryGatewayClient) backoff(attempt int) time.Duration {
	base := r.baseDelay * time.Duration(1<<attempt)

	jitter := time.Duration(rand.Int63n(int64(base)/2 + 1))

	return base + jitter
}
