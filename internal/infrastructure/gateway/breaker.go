package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"

	"github.com/DanielPopoola/marketplace-settlement/internal/application"
	"github.com/DanielPopoola/marketplace-settlement/internal/config"
)

// BreakerGatewayClient is the outermost gateway decorator. After a run of
// consecutive transient failures it opens and fails fast with
// application.ErrGatewayUnavailable for the cooldown, then lets a single
// probe through (half-open) before closing or re-opening.
type BreakerGatewayClient struct {
	inner application.GatewayClient
	cb    *gobreaker.CircuitBreaker
}

func NewBreakerGatewayClient(inner application.GatewayClient, cfg config.BreakerConfig) *BreakerGatewayClient {
	settings := gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Interval:    cfg.Window,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// a definitive gateway answer (decline, validation reject) is not
		// an outage; only transient failures trip the breaker
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			if gwErr, ok := application.IsGatewayError(err); ok {
				return !gwErr.Transient()
			}
			return false
		},
	}

	return &BreakerGatewayClient{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *BreakerGatewayClient) Charge(ctx context.Context, req application.GatewayChargeRequest, idempotencyKey string) (*application.GatewayResult, error) {
	return b.execute(func() (*application.GatewayResult, error) {
		return b.inner.Charge(ctx, req, idempotencyKey)
	})
}

func (b *BreakerGatewayClient) QueryStatus(ctx context.Context, gatewayReference string) (*application.GatewayResult, error) {
	return b.execute(func() (*application.GatewayResult, error) {
		return b.inner.QueryStatus(ctx, gatewayReference)
	})
}

// HealthCheck bypasses the breaker so monitoring always sees the actual
// gateway state; the breaker state is reported separately.
func (b *BreakerGatewayClient) HealthCheck(ctx context.Context) (*application.GatewayHealth, error) {
	return b.inner.HealthCheck(ctx)
}

// BreakerState implements application.BreakerStateReporter.
func (b *BreakerGatewayClient) BreakerState() string {
	return b.cb.State().String()
}

func (b *BreakerGatewayClient) execute(operation func() (*application.GatewayResult, error)) (*application.GatewayResult, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return operation()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open", application.ErrGatewayUnavailable)
		}
		return nil, err
	}
	return result.(*application.GatewayResult), nil
}
