package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DanielPopoola/marketplace-settlement/internal/application/services"
	"github.com/DanielPopoola/marketplace-settlement/internal/authz"
	"github.com/DanielPopoola/marketplace-settlement/internal/config"
	"github.com/DanielPopoola/marketplace-settlement/internal/fraud"
	"github.com/DanielPopoola/marketplace-settlement/internal/infrastructure/gateway"
	"github.com/DanielPopoola/marketplace-settlement/internal/infrastructure/persistence"
	"github.com/DanielPopoola/marketplace-settlement/internal/infrastructure/persistence/postgres"
	"github.com/DanielPopoola/marketplace-settlement/internal/infrastructure/redis"
	"github.com/DanielPopoola/marketplace-settlement/internal/interfaces/rest/handlers"
	"github.com/DanielPopoola/marketplace-settlement/internal/interfaces/rest/middleware"
	"github.com/DanielPopoola/marketplace-settlement/internal/webhook"
	"github.com/DanielPopoola/marketplace-settlement/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting settlement service",
		"port", cfg.Server.Port,
		"log_level", cfg.Logger.Level,
	)

	ctx := context.Background()
	db, err := persistence.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	velocity := redis.NewVelocityStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Fraud.LookbackWindow)
	defer velocity.Close()
	if err := velocity.Ping(ctx); err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	repos := postgres.NewRepositories(db.Pool)
	txm := postgres.NewTransactionCoordinator(db)
	grantRepo := postgres.NewGrantRepository(db)

	httpGateway := gateway.NewHTTPGatewayClient(cfg.Gateway)
	retryGateway := gateway.NewRetryGatewayClient(httpGateway, cfg.Retry)
	breakerGateway := gateway.NewBreakerGatewayClient(retryGateway, cfg.Breaker)

	assessor := fraud.NewAssessor(cfg.Fraud, velocity, repos.Orders, logger)
	gate := authz.NewGate(logger)

	// a claim must outlive the worst-case gateway call, retries included
	claimTTL := cfg.Gateway.ConnTimeout*time.Duration(cfg.Retry.MaxRetries+1) + 10*time.Second

	settleService := services.NewSettlementService(txm, logger)
	chargeService := services.NewChargeService(repos, txm, breakerGateway, assessor, settleService, claimTTL, logger)
	cancelService := services.NewCancelService(txm, logger)
	queryService := services.NewQueryService(repos)
	adminService := services.NewAdminService(repos, txm, gate, logger)
	healthService := services.NewHealthService(repos, breakerGateway, breakerGateway, logger)

	webhookReconciler := webhook.NewReconciler(cfg.Webhook.Secret, settleService, logger)

	h := handlers.NewHandlers(
		chargeService,
		cancelService,
		queryService,
		adminService,
		healthService,
		webhookReconciler,
		grantRepo,
		logger,
	)

	mux := http.NewServeMux()
	h.Register(mux)

	handler := middleware.Recovery(logger)(mux)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Timeout(cfg.Server.ReadTimeout)(handler)

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	reconcileWorker := worker.NewReconciler(
		repos,
		txm,
		breakerGateway,
		settleService,
		cfg.Worker.Interval,
		cfg.Worker.StuckAfter,
		cfg.Worker.BatchSize,
		logger,
	)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	go reconcileWorker.Start(workerCtx)

	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
