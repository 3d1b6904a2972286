package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"voyage-payment-api/cache"
	"voyage-payment-api/config"
	"voyage-payment-api/database"
	"voyage-payment-api/handlers"
	"voyage-payment-api/logger"
	"voyage-payment-api/metrics"
	"voyage-payment-api/middleware"
	"voyage-payment-api/queue"
	"voyage-payment-api/security"
	"voyage-payment-api/services/binlookup"
	"voyage-payment-api/services/payment"
	"voyage-payment-api/services/payment/authorizenet"
	"voyage-payment-api/services/threeds"
	"voyage-payment-api/services/tokenization"
	"voyage-payment-api/worker"
)

const (
	ledgerQueueName = "payment_ledger"
	tokenKeyPrefix  = "voyage:token:"
	sessionPrefix   = "voyage:3ds:"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", slog.String("error", security.RedactPANs(err.Error())))
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	log := logger.SetupDefault(os.Stdout, logger.ParseLevel(cfg.Server.LogLevel))
	audit := security.NewAuditLogger(log)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	audit.Info("configuration loaded", cfg.Summary())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	checks := map[string]handlers.Check{}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		client, err := cache.NewRedisClient(cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer client.Close()
		redisClient = client
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		audit.Info("connected to redis", nil)
	}

	tokenStore, sessionStore := buildStores(ctx, cfg, redisClient, registry)

	tokens := tokenization.NewService(tokenStore, tokenization.Config{
		TTL:     cfg.Payment.TokenTTL,
		Audit:   audit,
		Metrics: collector,
	})
	sessions := threeds.NewManager(sessionStore, tokens, threeds.Config{
		SessionTTL: cfg.ThreeDS.SessionTTL,
		AcsURL:     cfg.ThreeDS.AcsURL,
		Audit:      audit,
		Metrics:    collector,
	})

	var bins payment.BINLookup = binlookup.StaticLookup{
		ThreeDSSupported: cfg.ThreeDS.Supported,
		RequireAbove:     cfg.ThreeDS.RequiredAbove,
	}
	if cfg.BINLookup.URL != "" {
		bins = binlookup.NewClient(&http.Client{Timeout: cfg.BINLookup.Timeout}, cfg.BINLookup.URL, audit)
	}

	gatewayOpts := []authorizenet.Option{authorizenet.WithAudit(audit)}
	if cfg.AuthNet.Endpoint != "" {
		gatewayOpts = append(gatewayOpts, authorizenet.WithEndpoint(cfg.AuthNet.Endpoint))
	}
	gateway := authorizenet.NewClient(cfg.AuthNet.APILoginID, cfg.AuthNet.TransactionKey, cfg.AuthNet.Environment, gatewayOpts...)

	var ledger payment.Ledger = payment.NopLedger{}
	if cfg.LedgerEnabled() {
		db, err := database.NewConnection(cfg.Database, audit)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		checks["database"] = db.Ping

		jobs := queue.NewQueue(redisClient, ledgerQueueName, queue.WithAudit(audit))
		ledger = queue.NewLedger(jobs)
		metrics.RegisterQueueDepth(registry, ledgerQueueName, jobs.Depths)

		ledgerWorker := worker.NewWorker(jobs, db, audit)
		ledgerWorker.Start(ctx, cfg.Redis.WorkerConcurrency)
		defer ledgerWorker.Stop()
		audit.Info("ledger worker started", map[string]any{"concurrency": cfg.Redis.WorkerConcurrency})
	} else {
		audit.Warn("transaction ledger disabled, REDIS_URL and DB_HOST are both required", nil)
	}

	orchestrator := payment.NewOrchestrator(payment.Config{
		Vault:     tokens,
		Sessions:  sessions,
		BINLookup: bins,
		Processor: gateway,
		Ledger:    ledger,
		Audit:     audit,
		Metrics:   collector,
	})

	paymentHandler, err := handlers.NewPaymentHandler(tokens, sessions, orchestrator, audit)
	if err != nil {
		return err
	}

	trusted, err := cfg.Server.ProxyPrefixes()
	if err != nil {
		return err
	}
	proxies := middleware.NewProxyResolver(trusted)

	limiter := security.NewRateLimiter(cfg.RateLimit.MaxAttempts, cfg.RateLimit.Window)
	router := handlers.NewRouter(handlers.RouterConfig{
		Payments:      paymentHandler,
		Health:        handlers.NewHealthHandler(checks),
		Metrics:       metrics.Handler(registry),
		TokenizeLimit: middleware.RateLimit(limiter, "tokenize", proxies, collector, audit),
	})

	var handler http.Handler = router
	handler = middleware.CORS(cfg.Server.AllowedOrigin)(handler)
	handler = middleware.SecurityHeaders(handler)
	handler = middleware.Recover(audit)(handler)
	handler = middleware.AccessLog(audit, proxies)(handler)

	srv := &http.Server{
		Addr:           ":" + cfg.Server.Port,
		Handler:        handler,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   45 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		audit.Info("server starting", map[string]any{"port": cfg.Server.Port})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}
	audit.Info("shutdown signal received", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		audit.Error("server forced to shutdown", map[string]any{"error": err})
	}
	audit.Info("server exited properly", nil)
	return nil
}

// buildStores picks the token and session backends. The memory backend is
// the default; redis shares state between instances.
func buildStores(ctx context.Context, cfg *config.Config, client *redis.Client, reg prometheus.Registerer) (cache.Store[tokenization.Record], cache.Store[threeds.Session]) {
	if cfg.Store.Backend == config.BackendRedis {
		return cache.NewRedisStore[tokenization.Record](client, tokenKeyPrefix),
			cache.NewRedisStore[threeds.Session](client, sessionPrefix)
	}

	tokenStore := cache.NewMemoryStore[tokenization.Record](cache.WithMaxEntries(cfg.Store.MaxEntries))
	sessionStore := cache.NewMemoryStore[threeds.Session](cache.WithMaxEntries(cfg.Store.MaxEntries))
	if cfg.Store.SweepInterval > 0 {
		tokenStore.StartJanitor(ctx, cfg.Store.SweepInterval)
		sessionStore.StartJanitor(ctx, cfg.Store.SweepInterval)
	}
	metrics.RegisterStoreSize(reg, "tokens", tokenStore.Len)
	metrics.RegisterStoreSize(reg, "sessions", sessionStore.Len)
	return tokenStore, sessionStore
}
