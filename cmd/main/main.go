package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/cache"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/config"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/dlqworker"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/genai"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/healthcheck"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/httpapi"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/jetstream"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/provider"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/usecase"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/utils"
	"go.uber.org/zap"
)

// replayCacheKeys sizes each bloom filter generation; at the observed
// inbound rates one generation covers roughly a day of traffic per tenant.
const (
	replayCacheKeys   = 100_000
	replayCacheFPRate = 0.01
)

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	// Load configuration
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metricsEnabled := cfg.Metrics.Enabled
	observer.InitMetrics(metricsEnabled)

	logger.Log.Info("Starting Daisi WA Dispatch Service",
		zap.String("environment", cfg.Environment),
		zap.String("company_id", cfg.Company.ID),
		zap.String("nats_url", cfg.NATS.URL),
	)

	// Initialize repositories
	postgresRepo, err := initPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate, cfg.Company.ID)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}

	// Initialize JetStream client
	jsClient, err := initJetStreamClient(cfg.NATS.URL)
	if err != nil {
		logger.Log.Fatal("Failed to initialize JetStream client", zap.Error(err))
	}

	// Create repository adapters for the service
	conversationRepo := storage.NewConversationRepoAdapter(postgresRepo)
	messageRepo := storage.NewMessageRepoAdapter(postgresRepo)
	leadRepo := storage.NewLeadRepoAdapter(postgresRepo)
	accountRepo := storage.NewProviderAccountRepoAdapter(postgresRepo)
	exhaustedEventRepo := storage.NewExhaustedEventRepoAdapter(postgresRepo)

	// Outbound gateway: one paced worker per tenant session. Connection
	// events register and deregister sessions; until the first connect,
	// sends fail with NOT_CONNECTED.
	registry := provider.NewRegistry(cfg.Dispatch.QueueSize, cfg.Dispatch.MinSendDelay, cfg.Dispatch.SendTimeout)

	// Reply generator is optional; without an API key the responder
	// degrades to a no-op and inbound ingestion runs unchanged.
	var generator genai.Generator
	if cfg.Responder.APIKey != "" {
		generator = genai.NewOpenAIGenerator(cfg.Responder)
		logger.Log.Info("Automated responder generator configured", zap.String("model", cfg.Responder.Model))
	} else {
		logger.Log.Info("Automated responder generator disabled: no API key configured")
	}

	// Create reconciliation worker pool for thread snapshots
	syncWorker, err := usecase.NewSyncWorker(cfg.WorkerPools.Sync, conversationRepo, logger.Log)
	if err != nil {
		logger.Log.Fatal("Failed to initialize sync worker pool", zap.Error(err))
	}

	replayCache := cache.NewReplayCache(cfg.Company.ID, replayCacheKeys, replayCacheFPRate)

	// Create service, injecting the gateway, generator and worker pool
	service := usecase.NewEventService(conversationRepo, messageRepo, leadRepo, accountRepo, exhaustedEventRepo, registry, generator, syncWorker, replayCache, cfg)

	// Connection events drive registry membership through the bridge.
	if cfg.Dispatch.BridgeURL != "" {
		bridgeURL := cfg.Dispatch.BridgeURL
		bridgeToken := cfg.Dispatch.BridgeToken
		service.BindSessionLifecycle(registry, func(companyID, accountID string) (provider.Session, error) {
			return provider.NewHTTPSession(bridgeURL, bridgeToken, accountID, nil), nil
		})
		logger.Log.Info("Provider bridge configured", zap.String("bridge_url", bridgeURL))
	} else {
		logger.Log.Warn("No provider bridge configured; outbound sends will fail NOT_CONNECTED")
	}

	// Create and set up processor
	processor := usecase.NewProcessor(service, jsClient, cfg, cfg.Company.ID)
	if err := processor.Setup(); err != nil {
		logger.Log.Fatal("Failed to set up processor", zap.Error(err))
	}

	// Create and initialize DLQ Worker - requires router from processor and exhausted repo
	dlqWorker, err := dlqworker.NewWorker(cfg, logger.Log, jsClient.NatsConn(), jsClient, processor.GetRouter(), exhaustedEventRepo)
	if err != nil {
		logger.Log.Fatal("Failed to initialize DLQ Worker", zap.Error(err))
	}

	// REST API server on the main port
	apiServer := httpapi.NewServer(service, cfg.Server.Port, cfg.Company.ID, logger.Log)

	// Health check server on the metrics port
	healthServer := healthcheck.NewServer(strconv.Itoa(cfg.Metrics.Port), logger.Log)

	// Register metrics handler if enabled BEFORE starting the server
	if metricsEnabled {
		healthServer.RegisterMetricsHandler(promhttp.Handler())
		logger.Log.Info("Metrics endpoint enabled", zap.String("path", "/metrics"), zap.Int("port", cfg.Metrics.Port))
	} else {
		logger.Log.Info("Metrics endpoint disabled for environment", zap.String("environment", cfg.Environment))
	}

	healthServer.Start()

	logger.Log.Info("Health check endpoints available",
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port)),
		zap.String("readiness", fmt.Sprintf("http://localhost:%d/ready", cfg.Metrics.Port)),
	)

	// Start processor
	if err := processor.Start(); err != nil {
		logger.Log.Fatal("Failed to start processor", zap.Error(err))
	}

	// Start REST API
	apiServer.Start()
	logger.Log.Info("REST API listening", zap.Int("port", cfg.Server.Port))

	// Start DLQ worker in a separate goroutine
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()
	sigChan := make(chan os.Signal, 1)
	go func() {
		if err := dlqWorker.Start(mainCtx); err != nil {
			logger.Log.Error("DLQ Worker failed to start or encountered an error, initiating shutdown...", zap.Error(err))
			mainCancel()
			select {
			case sigChan <- syscall.SIGTERM:
			default:
				logger.Log.Warn("Could not send SIGTERM to signal channel immediately")
			}
		}
	}()

	// Wait for termination signal
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))

	// Signal main context cancellation for DLQ worker
	mainCancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", 30*time.Second))

	// Use WaitGroup to track shutdown of all components
	var wg sync.WaitGroup

	// api server, processor, dlq worker, outbound registry, sync worker,
	// health server, databases
	numComponents := 7
	wg.Add(numComponents)

	// Stop accepting API traffic first so no new sends hit the registry
	// while it drains.
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping REST API server")
		start := time.Now()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping REST API server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] REST API server stopped",
				zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping REST API server",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Shutdown processor (JetStream consumers)
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping event processor")
		start := time.Now()
		processor.Stop()
		logger.Log.Info("[shutdown] Event processor stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping event processor",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Shutdown DLQ Worker
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping DLQ worker")
		start := time.Now()
		dlqWorker.Stop()
		logger.Log.Info("[shutdown] DLQ worker stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping DLQ worker",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Drain outbound session workers
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping outbound registry")
		start := time.Now()
		registry.Shutdown()
		logger.Log.Info("[shutdown] Outbound registry stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping outbound registry",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Shutdown sync worker pool
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping sync worker pool")
		start := time.Now()
		syncWorker.Stop()
		logger.Log.Info("[shutdown] Sync worker pool stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping sync worker pool",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Shutdown health check server (includes metrics if enabled)
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping health check server")
		start := time.Now()
		if err := healthServer.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping health check server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] Health check server stopped",
				zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping health check server",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Close database connections
	utils.SafeGo(func() {
		defer wg.Done()

		logger.Log.Info("[shutdown] Closing PostgreSQL connection")
		pgStart := time.Now()
		if err := postgresRepo.Close(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Failed to close PostgreSQL connection", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] PostgreSQL connection closed",
				zap.Duration("duration", time.Since(pgStart)))
		}

		logger.Log.Info("[shutdown] Closing JetStream connection")
		jsStart := time.Now()
		jsClient.Close()
		logger.Log.Info("[shutdown] JetStream connection closed",
			zap.Duration("duration", time.Since(jsStart)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while closing database connections",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Wait with a timeout for all components to shut down
	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Log.Info("[shutdown] All components stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Log.Warn("[shutdown] Graceful shutdown timed out, forcing exit")
	}

	logger.Log.Info("Daisi WA Dispatch Service shutdown complete")
}

// Initialize PostgreSQL repository
func initPostgresRepo(dsn string, autoMigrate bool, companyID string) (*storage.PostgresRepo, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	repo, err := storage.NewPostgresRepo(dsn, autoMigrate, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}

	logger.Log.Info("Initialized PostgreSQL repository")
	return repo, nil
}

// initJetStreamClient initializes the JetStream client
func initJetStreamClient(url string) (*jetstream.Client, error) {
	client, err := jetstream.NewClient(url)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream client: %w", err)
	}
	return client, nil
}
