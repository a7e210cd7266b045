package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/andrsadr/koravi/internal/domain"
	"github.com/andrsadr/koravi/internal/handler"
	"github.com/andrsadr/koravi/internal/infrastructure/redis"
	"github.com/andrsadr/koravi/internal/observability/metrics"
	"github.com/andrsadr/koravi/internal/observability/tracing"
	"github.com/andrsadr/koravi/internal/reliability/circuitbreaker"
	"github.com/andrsadr/koravi/internal/reliability/retry"
	"github.com/andrsadr/koravi/internal/repository"
	"github.com/andrsadr/koravi/internal/security/audit"
	"github.com/andrsadr/koravi/internal/security/middleware"
	"github.com/andrsadr/koravi/internal/security/ratelimit"
	"github.com/andrsadr/koravi/internal/service"
	"github.com/andrsadr/koravi/internal/worker"
	"github.com/andrsadr/koravi/pkg/cache"
	"github.com/andrsadr/koravi/pkg/config"
	"github.com/andrsadr/koravi/pkg/database"
	"github.com/andrsadr/koravi/pkg/logging"
)

const memoryURL = "memory://"

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logging.New(logging.Config{
		Service: "koravi",
		Env:     cfg.Environment,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
	log.Info("starting Koravi server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Tracing
	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "koravi",
		Environment: cfg.Environment,
		SampleRatio: cfg.TraceSampleRatio,
	}, log)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Client store
	repo, closeRepo, err := openRepository(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open client store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeRepo()

	// 5. Cache, retry policy and breaker
	clientCache := cache.New(cache.Options{MaxEntries: cfg.CacheMaxEntries})
	defer clientCache.Clear()
	metrics.RegisterCache(prometheus.DefaultRegisterer, "clients", clientCache)

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.RetryMaxAttempts
	retryCfg.InitialBackoff = cfg.RetryBaseDelay

	breaker := circuitbreaker.New(cfg.BreakerFailureThreshold, 1, cfg.BreakerTimeout)
	breaker.SetStateChangeCallback(func(from, to circuitbreaker.State) {
		metrics.SetBreakerState(int(to))
		log.Warn("backend circuit breaker changed state",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})

	opts := []service.Option{service.WithBreaker(breaker)}

	// 6. Optional Redis invalidation bus
	var redisPinger handler.Pinger
	var bus *redis.Client
	if cfg.RedisURL != "" {
		bus, err = redis.NewClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Error("failed to connect to Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer bus.Close()
		redisPinger = bus
		opts = append(opts, service.WithPublisher(bus))
	}

	// 7. Services
	clientService := service.NewClientService(repo, clientCache, retryCfg, log, opts...)

	if bus != nil {
		go func() {
			if err := bus.Subscribe(ctx, clientService.ApplyRemoteInvalidation); err != nil {
				log.Error("cache invalidation subscription ended", slog.String("error", err.Error()))
			}
		}()
	}

	// 8. Cache warmer
	warmer, err := worker.NewCacheWarmer(clientService, cfg.CacheWarmSchedule, log)
	if err != nil {
		log.Error("failed to create cache warmer", slog.String("error", err.Error()))
		os.Exit(1)
	}
	go warmer.Start(ctx)

	// 9. Setup HTTP routes
	mux := http.NewServeMux()
	handler.NewClientHandler(clientService, log).Register(mux)
	handler.NewHealthHandler(clientService, redisPinger, log).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitPerMinute, time.Minute)
	auditLogger := audit.NewLogger(log)

	// request ID -> CORS -> rate limit -> audit -> content type -> metrics -> routes
	rootHandler := middleware.Chain(
		metrics.HTTPMetricsMiddleware(mux),
		middleware.RequestID(log),
		middleware.CORS(cfg.CORSAllowedOrigins),
		middleware.RateLimitMiddleware(rateLimiter, log),
		middleware.AuditMiddleware(auditLogger),
		middleware.ValidateJSONContentType(log),
	)

	// 10. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      otelhttp.NewHandler(rootHandler, "koravi"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.Int("rate_limit", cfg.RateLimitPerMinute),
		slog.String("rate_limit_window", "1m"),
		slog.Bool("redis", bus != nil),
		slog.String("cache_warm_schedule", cfg.CacheWarmSchedule),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
			sigChan <- syscall.SIGTERM
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel()
	rateLimiter.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}

// openRepository connects to Postgres, or keeps clients in memory when the
// database URL is memory://
func openRepository(ctx context.Context, cfg *config.Config, log *slog.Logger) (domain.ClientRepository, func(), error) {
	if strings.HasPrefix(cfg.DatabaseURL, memoryURL) {
		if cfg.IsProduction() {
			return nil, nil, fmt.Errorf("%s is not allowed in production", memoryURL)
		}
		log.Warn("using in-memory client store; data is lost on restart")
		return repository.NewMemoryClientRepository(nil), func() {}, nil
	}

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.NewConnectionPool(ctx, dbCfg, log)
	if err != nil {
		return nil, nil, err
	}

	if cfg.AutoMigrate {
		if err := pool.Migrate(); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}

	closeFn := func() {
		if err := pool.Close(); err != nil {
			log.Error("failed to close database", slog.String("error", err.Error()))
		}
	}
	return repository.NewPostgresClientRepository(pool.GetDB(), log), closeFn, nil
}
