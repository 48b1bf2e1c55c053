package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ledger-api/internal/cache"
	"ledger-api/internal/config"
	"ledger-api/internal/controller"
	"ledger-api/internal/database"
	"ledger-api/internal/engine"
	"ledger-api/internal/messaging"
	"ledger-api/internal/middleware"
	"ledger-api/internal/monitoring"
	"ledger-api/internal/routes"
	"ledger-api/internal/scheduler"
	"ledger-api/internal/service"
	"ledger-api/pkg/logger"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := logger.New(cfg.Logging)
	log.WithFields(logrus.Fields{
		"version": version,
		"port":    cfg.Server.Port,
	}).Info("Starting ledger-api")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.Initialize(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize databases: %v", err)
	}
	repos := db.Repositories

	walletCache := cache.NewWalletCache(db.RedisDB, cfg.Redis.CacheTTL, log)

	publisher := buildPublisher(cfg, log)
	defer publisher.Close()

	// Engines
	txRunner := engine.NewMongoTxRunner(db.MongoDB)
	ledgerEngine := engine.NewLedgerEngine(repos.Wallet, repos.Entry, repos.LockManager, txRunner)
	positionTracker := engine.NewPositionTracker(repos.Position, decimal.NewFromFloat(cfg.Ledger.DustValue))
	settlementEngine := engine.NewSettlementEngine(repos.Order, repos.Wallet, ledgerEngine, positionTracker, repos.LockManager, txRunner)
	reconciliationEngine := engine.NewReconciliationEngine(repos.Wallet, repos.Entry, repos.LockManager)

	// Services
	walletService := service.NewWalletService(repos.Wallet, repos.Entry, ledgerEngine, walletCache, publisher, log)
	orderService := service.NewOrderService(repos.Order, settlementEngine, positionTracker, walletCache, publisher, log)
	withdrawalService := service.NewWithdrawalService(repos.Withdrawal, repos.Wallet, ledgerEngine, repos.LockManager, txRunner, walletCache, publisher, log)
	adminService := service.NewAdminService(repos.Wallet, reconciliationEngine, log)

	// Controllers
	walletController := controller.NewWalletController(walletService)
	orderController := controller.NewOrderController(orderService)
	withdrawalController := controller.NewWithdrawalController(withdrawalService)
	adminController := controller.NewAdminController(adminService, withdrawalService)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.InternalAPIKey)
	logMiddleware := middleware.NewLoggingMiddleware(log)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(db.RedisDB, nil)

	healthChecker := monitoring.NewHealthChecker(version)
	healthChecker.RegisterCheck("mongodb", monitoring.NewCheckFunc(db.HealthCheck, 3*time.Second))
	healthChecker.RegisterCheck("redis", monitoring.NewCheckFunc(walletCache.Ping, 2*time.Second))

	routerConfig := &routes.RouterConfig{
		Debug:         cfg.Logging.Level == "debug",
		EnableMetrics: cfg.Monitoring.EnableMetrics,
		MetricsPath:   cfg.Monitoring.MetricsPath,
	}
	router := routes.NewRouter(
		walletController,
		orderController,
		withdrawalController,
		adminController,
		authMiddleware,
		logMiddleware,
		rateLimitMiddleware,
		healthChecker,
		routerConfig,
	)
	router.SetupRoutes(routerConfig)

	if len(cfg.Server.TrustedProxies) > 0 {
		if err := router.GetEngine().SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
			log.Fatalf("Failed to set trusted proxies: %v", err)
		}
	}

	if cfg.Monitoring.EnableMetrics {
		monitoring.StartSystemMetricsRecording(cfg.Monitoring.MetricsInterval)
	}

	var reconcileScheduler *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		reconcileScheduler = scheduler.New(adminService, log, cfg.Ledger.ReconcileBatchSize)
		if err := reconcileScheduler.RegisterReconciliation(cfg.Scheduler.ReconcileSchedule); err != nil {
			log.Fatalf("Failed to register reconciliation job: %v", err)
		}
		reconcileScheduler.Start()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer shutdownCancel()

	if reconcileScheduler != nil {
		<-reconcileScheduler.Stop().Done()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP server shutdown failed: %v", err)
	}
	if err := db.Close(shutdownCtx); err != nil {
		log.Errorf("Database shutdown failed: %v", err)
	}

	log.Info("Shutdown complete")
}

func buildPublisher(cfg *config.Config, log *logrus.Logger) messaging.EventPublisher {
	if !cfg.RabbitMQ.Enabled {
		log.Info("Event publishing disabled")
		return messaging.NewNoopPublisher()
	}

	publisher, err := messaging.NewPublisher(&messaging.PublisherConfig{
		URL:          cfg.RabbitMQ.URL,
		ExchangeName: cfg.RabbitMQ.Exchange,
		Persistent:   cfg.RabbitMQ.Persistent,
	}, log)
	if err != nil {
		log.WithError(err).Warn("Event publisher unavailable, continuing without events")
		return messaging.NewNoopPublisher()
	}
	return publisher
}
