package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rentdesk/internal/api"
	"rentdesk/internal/clock"
	"rentdesk/internal/config"
	"rentdesk/internal/database"
	"rentdesk/internal/domain"
	"rentdesk/internal/events"
	"rentdesk/internal/logging"
	"rentdesk/internal/metrics"
	"rentdesk/internal/payment"
	"rentdesk/internal/repository"
	"rentdesk/internal/service"
	"rentdesk/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, base, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := logging.Component(base, "api-main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initDatabase(ctx, cfg, logging.Component(base, "database"))
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	locker, actorLimiter := initCoordination(cfg, redisClient, logging.Component(base, "repository"))
	clk := clock.NewSystem()

	bus := events.NewEventBus()
	workerLog := logging.Component(base, "notifications")
	notifications := worker.NewNotificationWorker(db, worker.NewLogSender(workerLog), redisClient, cfg.Notifications, workerLog)
	service.NewNotificationDispatcher(notifications, workerLog).Register(bus)

	serviceLog := logging.Component(base, "service")
	payments := payment.NewClient(cfg.Payment, logging.Component(base, "payment"))
	bookings := service.NewBookingService(db, db, db, payments, locker, bus, clk, cfg.Booking, serviceLog)
	reviews := service.NewReviewService(db, db, db, clk, serviceLog)
	resources := service.NewResourceService(db, serviceLog)

	if cfg.Notifications.Enabled {
		go notifications.Start(ctx)
	}

	sweeper := service.NewCompletionSweeper(db, bookings, clk, cfg.Booking.CompletionSweepInterval, cfg.Booking.CompletionBatchSize,
		logging.Component(base, "sweeper"))
	go sweeper.Start(ctx)

	if cfg.Backup.Enabled {
		backups := database.NewBackupService(db, cfg.Database.Path, cfg.Backup, logging.Component(base, "backup"))
		go backups.Start(ctx)
	}

	startMetrics(ctx, cfg, logger)

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config; running background jobs only")
		<-ctx.Done()
		return nil
	}

	httpServer := api.NewHTTPServer(cfg.API, bookings, reviews, resources, actorLimiter, base)
	return serve(ctx, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, logger, closer, nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	if err := db.SyncResources(ctx, cfg.Resources); err != nil {
		_ = db.Close()
		logger.Error().Err(err).Msg("sync resource catalog")
		return nil, err
	}
	logger.Info().Int("resources", len(cfg.Resources)).Msg("resource catalog synced")
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initCoordination picks the resource lock and actor limiter, preferring redis with in-memory fallback.
func initCoordination(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) (domain.ResourceLocker, domain.ActorRateLimiter) {
	memLocker := repository.NewMemoryLocker()
	memLimiter := repository.NewMemoryRateLimiter()
	if redisClient == nil {
		logger.Warn().Msg("using in-process resource locks; run a single instance")
		return memLocker, memLimiter
	}

	locker := repository.NewFailoverLocker(repository.NewRedisLocker(redisClient, cfg.Booking.LockTTL, logger), memLocker, logger)
	limiter := repository.NewFailoverRateLimiter(repository.NewRedisRateLimiter(redisClient), memLimiter, logger)
	return locker, limiter
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
