package main

import (
	"context"
	"log"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/taskstream/api/handler"
	"github.com/fastygo/taskstream/internal/config"
	"github.com/fastygo/taskstream/internal/infrastructure/bus"
	"github.com/fastygo/taskstream/internal/infrastructure/monitor"
	"github.com/fastygo/taskstream/internal/infrastructure/outbox"
	pgInfra "github.com/fastygo/taskstream/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/taskstream/internal/infrastructure/redis"
	"github.com/fastygo/taskstream/internal/middleware"
	"github.com/fastygo/taskstream/internal/router"
	"github.com/fastygo/taskstream/internal/services"
	"github.com/fastygo/taskstream/internal/services/lifecycle"
	"github.com/fastygo/taskstream/pkg/clock"
	"github.com/fastygo/taskstream/pkg/httpclient"
	"github.com/fastygo/taskstream/pkg/httpcontext"
	"github.com/fastygo/taskstream/pkg/logger"
	"github.com/fastygo/taskstream/repository/postgres"
	redisRepo "github.com/fastygo/taskstream/repository/redis"
	taskUC "github.com/fastygo/taskstream/usecase/task"
)

func main() {
	cfg, err := config.Load("task-service", "8000")
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
		Service:  cfg.AppName,
		Version:  cfg.Version,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	pool, err := pgInfra.NewPool(appCtx, cfg.Database, cfg.AppName, zapLogger)
	if err != nil {
		zapLogger.Fatal("postgres connection failed", zap.Error(err))
	}
	manager.Register("postgres", func(ctx context.Context) error {
		pgInfra.Close(pool, zapLogger)
		return nil
	})

	if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
		zapLogger.Fatal("migrations failed", zap.Error(err))
	}

	redisClient, err := redisInfra.NewClient(appCtx, cfg.Redis, cfg.AppName, zapLogger)
	if err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	manager.Register("redis", func(ctx context.Context) error {
		return redisClient.Close()
	})

	httpClient := httpclient.New(httpclient.Config{Name: cfg.AppName})
	manager.Register("http_client", func(ctx context.Context) error {
		httpClient.CloseIdleConnections()
		return nil
	})

	gateway := bus.NewGateway(httpClient, bus.GatewayConfig{
		Host:       cfg.Bus.Host,
		Port:       cfg.Bus.Port,
		PubsubName: cfg.Bus.PubsubName,
		Timeout:    cfg.Bus.PublishTimeout,
	}, zapLogger)

	targets := monitor.Targets{Postgres: pool, Redis: redisClient, Gateway: gateway}

	var outboxStore *outbox.Store
	if cfg.Outbox.Enabled {
		outboxStore, err = outbox.Open(cfg.Outbox.Path, "")
		if err != nil {
			zapLogger.Fatal("failed to open outbox store", zap.Error(err))
		}
		manager.Register("outbox", func(ctx context.Context) error {
			return outboxStore.Close()
		})
		targets.Outbox = outboxStore
	}

	mon := monitor.New(targets, cfg.Bus.HealthInterval, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	var spool services.Spooler
	if outboxStore != nil {
		processor := services.NewOutboxProcessor(outboxStore, mon, gateway, zapLogger, services.ProcessorConfig{
			Interval:   cfg.Outbox.SyncInterval,
			BatchSize:  cfg.Outbox.BatchSize,
			MaxRetries: cfg.Outbox.MaxRetry,
			MaxAge:     cfg.Outbox.MaxAge,
		})
		processor.Start()
		manager.Register("outbox_processor", func(ctx context.Context) error {
			processor.Stop(ctx)
			return nil
		})
		spool = processor
	}

	publisher := services.NewEventPublisher(gateway, spool, services.PublisherConfig{
		Enabled: cfg.Bus.Enabled,
		Timeout: cfg.Bus.PublishTimeout,
	}, clock.Real{}, zapLogger)
	manager.Register("publisher", publisher.Wait)

	taskRepo := postgres.NewTaskRepository(pool)
	keyRepo := redisRepo.NewIdempotencyRepository(redisClient, cfg.Redis.IdempotencyTTL)
	taskUseCase := taskUC.New(taskRepo, keyRepo, publisher, zapLogger)

	if cfg.Reminders.Enabled {
		scanner := services.NewReminderScanner(taskRepo, publisher, clock.Real{}, zapLogger, services.ScannerConfig{
			Interval:  cfg.Reminders.ScanInterval,
			BatchSize: cfg.Reminders.BatchSize,
		})
		scanner.Start()
		manager.Register("reminder_scanner", func(ctx context.Context) error {
			scanner.Stop(ctx)
			return nil
		})
	}

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.TaskAPIHandlers{
		Task: apiHandler.NewTaskHandler(taskUseCase, ctxAdapter, zapLogger),
		Health: apiHandler.NewHealthHandler(mon, apiHandler.ServiceInfo{
			Name:           cfg.AppName,
			Version:        cfg.Version,
			RequireStorage: true,
		}, ctxAdapter, zapLogger),
	}

	authMiddleware := middleware.JWTAuth(cfg.JWT.Secret, zapLogger)
	r := router.NewTaskAPI(handlers, authMiddleware)

	server := &fasthttp.Server{
		Handler:            r.Handler,
		ReadTimeout:        cfg.HTTP.ReadTimeout,
		WriteTimeout:       cfg.HTTP.WriteTimeout,
		IdleTimeout:        cfg.HTTP.IdleTimeout,
		MaxConnsPerIP:      cfg.HTTP.MaxConn,
		Name:               cfg.AppName,
		MaxRequestBodySize: 1 << 20,
	}

	manager.Go("http_server", func() error {
		zapLogger.Info("server started", zap.String("address", cfg.Address()))
		return server.ListenAndServe(cfg.Address())
	})
	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
	if err := manager.Err(); err != nil {
		zapLogger.Fatal("server exited with error", zap.Error(err))
	}
}
