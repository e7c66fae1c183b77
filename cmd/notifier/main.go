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
	"github.com/fastygo/taskstream/internal/infrastructure/notify"
	"github.com/fastygo/taskstream/internal/router"
	"github.com/fastygo/taskstream/internal/services/lifecycle"
	"github.com/fastygo/taskstream/pkg/clock"
	"github.com/fastygo/taskstream/pkg/httpclient"
	"github.com/fastygo/taskstream/pkg/httpcontext"
	"github.com/fastygo/taskstream/pkg/logger"
	"github.com/fastygo/taskstream/usecase/reminder"
)

func main() {
	cfg, err := config.Load("notification-service", "8002")
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

	httpClient := httpclient.New(httpclient.Config{Name: cfg.AppName})
	manager.Register("http_client", func(ctx context.Context) error {
		httpClient.CloseIdleConnections()
		return nil
	})

	gateway := bus.NewGateway(httpClient, bus.GatewayConfig{
		Host:       cfg.Bus.Host,
		Port:       cfg.Bus.Port,
		PubsubName: cfg.Bus.PubsubName,
	}, zapLogger)

	mon := monitor.New(monitor.Targets{Gateway: gateway}, cfg.Bus.HealthInterval, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	var channel reminder.Channel
	switch cfg.Notify.Channel {
	case notify.ChannelWebhook:
		channel = notify.NewWebhookChannel(httpClient, cfg.Notify.WebhookURL, cfg.Notify.Timeout)
	default:
		channel = notify.NewLogChannel(zapLogger)
	}
	notifier := reminder.New(channel, clock.Real{}, zapLogger)

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout + cfg.Notify.Timeout)

	r := router.NewNotifier(
		apiHandler.NewReminderHandler(notifier, ctxAdapter, zapLogger),
		apiHandler.NewSubscriptionHandler(bus.Subscription{
			PubsubName: gateway.PubsubName(),
			Topic:      bus.TopicReminders,
			Route:      router.RouteReminders,
		}),
		apiHandler.NewHealthHandler(mon, apiHandler.ServiceInfo{Name: cfg.AppName, Version: cfg.Version}, ctxAdapter, zapLogger),
	)

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout + cfg.Notify.Timeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Name:         cfg.AppName,
	}

	manager.Go("http_server", func() error {
		zapLogger.Info("notification consumer started",
			zap.String("address", cfg.Address()),
			zap.String("topic", bus.TopicReminders),
			zap.String("channel", channel.Name()))
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
		zapLogger.Fatal("consumer exited with error", zap.Error(err))
	}
}
