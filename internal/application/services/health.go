package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/DanielPopoola/marketplace-settlement/internal/application"
)

type GatewayReport struct {
	Available    bool   `json:"available"`
	LatencyMS    int64  `json:"latency_ms"`
	BreakerState string `json:"breaker_state"`
}

type FraudReport struct {
	WindowMinutes int   `json:"window_minutes"`
	Assessments   int64 `json:"assessments"`
	Blocked       int64 `json:"blocked"`
}

type HealthReport struct {
	Status  string        `json:"status"`
	Gateway GatewayReport `json:"gateway"`
	Fraud   FraudReport   `json:"fraud"`
}

// HealthService aggregates gateway reachability, breaker state and the
// recent fraud-block rate into one operator-facing report.
type HealthService struct {
	repos       *application.Repositories
	gateway     application.GatewayClient
	breaker     application.BreakerStateReporter
	fraudWindow time.Duration
	logger      *slog.Logger
}

func NewHealthService(repos *application.Repositories, gateway application.GatewayClient, breaker application.BreakerStateReporter, logger *slog.Logger) *HealthService {
	return &HealthService{
		repos:       repos,
		gateway:     gateway,
		breaker:     breaker,
		fraudWindow: time.Hour,
		logger:      logger,
	}
}

func (s *HealthService) Check(ctx context.Context) *HealthReport {
	report := &HealthReport{Status: "ok"}

	health, err := s.gateway.HealthCheck(ctx)
	if err != nil {
		s.logger.Warn("gateway health probe failed", "error", err)
		report.Gateway.Available = false
	} else {
		report.Gateway.Available = health.Available
		report.Gateway.LatencyMS = health.Latency.Milliseconds()
	}
	report.Gateway.BreakerState = s.breaker.BreakerState()

	report.Fraud.WindowMinutes = int(s.fraudWindow.Minutes())
	total, blocked, err := s.repos.Fraud.RecentDecisionStats(ctx, s.fraudWindow)
	if err != nil {
		s.logger.Warn("fraud decision stats unavailable", "error", err)
	} else {
		report.Fraud.Assessments = total
		report.Fraud.Blocked = blocked
	}

	if !report.Gateway.Available || report.Gateway.BreakerState == "open" {
		report.Status = "degraded"
	}
	return report
}
