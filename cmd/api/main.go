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
	"sync"
	"syscall"
	"time"

	"hotelhub/internal/api"
	"hotelhub/internal/auth"
	"hotelhub/internal/config"
	"hotelhub/internal/database"
	"hotelhub/internal/domain"
	"hotelhub/internal/events"
	"hotelhub/internal/google"
	"hotelhub/internal/logging"
	"hotelhub/internal/metrics"
	"hotelhub/internal/models"
	"hotelhub/internal/notify"
	"hotelhub/internal/repository"
	"hotelhub/internal/service"
	"hotelhub/internal/worker"

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
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := initStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	redisClient := initRedis(ctx, cfg, logger)
	defer func() { _ = repository.Close(redisClient) }()

	var wg sync.WaitGroup
	bus := events.NewEventBus()
	sinkClosers := initSinks(ctx, &wg, cfg, bus, redisClient, logger)
	defer func() {
		for _, c := range sinkClosers {
			_ = c.Close()
		}
	}()

	locker := initLocker(cfg, redisClient, logger)
	svc := api.Services{
		Rooms:    service.NewRoomService(store, logging.Component(logger, "rooms")),
		Reviews:  service.NewReviewService(store, store, locker, bus, logging.Component(logger, "reviews")),
		Bookings: service.NewBookingService(store, store, bus, logging.Component(logger, "bookings")),
	}

	httpServer := api.NewHTTPServer(&cfg.API, svc, store, auth.NewJWTVerifier(cfg.Auth), logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, store, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	startMetrics(ctx, cfg, logger)

	err = startServers(ctx, grpcServer, httpServer, cfg, logger)
	stop()
	wg.Wait()
	return err
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

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

func initStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (domain.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverMongo:
		client, err := database.NewMongoClient(ctx, cfg.Database.Mongo)
		if err != nil {
			logger.Error().Err(err).Msg("connect mongo")
			return nil, err
		}
		logger.Info().Str("database", cfg.Database.Mongo.Database).Msg("mongo connected")
		return database.NewMongoStore(client, cfg.Database.Mongo, logging.Component(logger, "mongo")), nil
	default:
		db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "sqlite"))
		if err != nil {
			logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
			return nil, err
		}
		return db, nil
	}
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initLocker(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.RoomLocker {
	if !cfg.Reviews.SerializePerRoom {
		return nil
	}

	memory := repository.NewMemoryRoomLocker()
	if redisClient == nil {
		if cfg.Reviews.LockBackend != config.LockBackendMemory {
			logger.Warn().Str("lock_backend", cfg.Reviews.LockBackend).Msg("redis unavailable, using in-process room locks")
		}
		return memory
	}

	switch cfg.Reviews.LockBackend {
	case config.LockBackendRedis:
		return repository.NewRedisRoomLocker(redisClient, cfg.Reviews.LockTTL)
	case config.LockBackendFailover:
		return repository.NewFailoverRoomLocker(
			repository.NewRedisRoomLocker(redisClient, cfg.Reviews.LockTTL),
			memory,
			logging.Component(logger, "locker"),
		)
	default:
		return memory
	}
}

// initSinks подписывает Kafka, Telegram и таблицу-журнал на шину событий.
// Фоновые воркеры останавливаются вместе с ctx.
func initSinks(
	ctx context.Context,
	wg *sync.WaitGroup,
	cfg *config.Config,
	bus *events.EventBus,
	redisClient *redis.Client,
	logger *zerolog.Logger,
) []io.Closer {
	var closers []io.Closer
	allEvents := []string{
		models.EventReviewAdded,
		models.EventReviewRemoved,
		models.EventBookingCreated,
		models.EventBookingCancelled,
		models.EventBookingRescheduled,
	}

	if cfg.Kafka.Enabled {
		forwarder := events.NewKafkaForwarder(
			events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic),
			logging.Component(logger, "kafka"),
		)
		forwarder.Attach(bus, allEvents...)
		closers = append(closers, forwarder)
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka forwarder enabled")
	}

	if cfg.Telegram.Enabled {
		botAPI, err := notify.NewBotAPI(cfg.Telegram)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, continuing without notifications")
		} else {
			notifier := notify.NewTelegramNotifier(botAPI, cfg.Telegram.ManagerChatIDs, logging.Component(logger, "telegram"))
			notifier.Attach(bus)
			wg.Add(1)
			go func() {
				defer wg.Done()
				notifier.Run(ctx)
			}()
			logger.Info().Str("bot", botAPI.Self.UserName).Msg("telegram notifier enabled")
		}
	}

	if cfg.Google.Enabled {
		ledger, err := google.NewSheetsLedger(ctx, cfg.Google)
		if err == nil {
			err = ledger.Prepare(ctx, worker.LedgerHeader)
		}
		if err != nil {
			ev := logger.Warn().Err(err)
			if email, emailErr := google.ServiceAccountEmail(cfg.Google.CredentialsFile); emailErr == nil {
				ev = ev.Str("service_account", email)
			}
			ev.Msg("google sheets init failed, continuing without ledger; share the spreadsheet with the service account")
		} else {
			ledgerWorker := worker.NewLedgerWorker(ledger, redisClient, worker.RetryPolicy{}, logging.Component(logger, "ledger"))
			ledgerWorker.Attach(bus)
			wg.Add(1)
			go func() {
				defer wg.Done()
				ledgerWorker.Start(ctx)
			}()
			logger.Info().Str("spreadsheet_id", cfg.Google.LedgerSpreadsheetID).Msg("google sheets ledger enabled")
		}
	}

	return closers
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

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	errCh := make(chan error, 2)

	if grpcServer != nil {
		go grpcServer.WatchStore(ctx, 15*time.Second)
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Bool("grpc", grpcServer != nil).Msg("API server started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return runErr
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
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
