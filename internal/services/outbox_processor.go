package services

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/taskstream/internal/infrastructure/outbox"
)

// GatewayHealth abstracts the connection monitor functionality.
type GatewayHealth interface {
	GatewayOnline() bool
}

// Sender is the publish half of bus.Gateway.
type Sender interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// ProcessorConfig controls how frequently the outbox is drained.
type ProcessorConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
	MaxAge     time.Duration
}

// OutboxProcessor re-sends spooled envelopes once the gateway is reachable.
type OutboxProcessor struct {
	store   *outbox.Store
	monitor GatewayHealth
	sender  Sender
	logger  *zap.Logger
	cron    *cron.Cron
	cfg     ProcessorConfig
}

func NewOutboxProcessor(
	store *outbox.Store,
	monitor GatewayHealth,
	sender Sender,
	logger *zap.Logger,
	cfg ProcessorConfig,
) *OutboxProcessor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	op := &OutboxProcessor{
		store:   store,
		monitor: monitor,
		sender:  sender,
		logger:  logger,
		cfg:     cfg,
		cron:    cron.New(cron.WithSeconds()),
	}

	_, err := op.cron.AddFunc("@every "+cfg.Interval.String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if err := op.Drain(ctx); err != nil {
			op.logger.Error("outbox drain failed", zap.Error(err))
		}
	})
	if err != nil {
		logger.Error("failed to schedule outbox drain", zap.Error(err))
	}

	return op
}

// Start launches the cron scheduler.
func (op *OutboxProcessor) Start() {
	if op == nil || op.cron == nil {
		return
	}
	op.cron.Start()
	op.logger.Info("outbox processor started", zap.Duration("interval", op.cfg.Interval))
}

// Stop gracefully stops the scheduler.
func (op *OutboxProcessor) Stop(ctx context.Context) {
	if op == nil || op.cron == nil {
		return
	}
	stopCtx := op.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	op.logger.Info("outbox processor stopped")
}

// Spool persists an envelope for a later drain in the given band.
func (op *OutboxProcessor) Spool(topic string, payload []byte, priority outbox.Priority) error {
	if op == nil || op.store == nil {
		return nil
	}
	return op.store.Put(outbox.Item{Topic: topic, Data: payload, Priority: priority})
}

// Drain re-sends one batch synchronously.
func (op *OutboxProcessor) Drain(ctx context.Context) error {
	if op == nil || op.store == nil {
		return nil
	}
	if op.monitor != nil && !op.monitor.GatewayOnline() {
		op.logger.Debug("skipping outbox drain (gateway offline)")
		return nil
	}

	if op.cfg.MaxAge > 0 {
		removed, err := op.store.Expire(time.Now().Add(-op.cfg.MaxAge))
		if err != nil {
			op.logger.Warn("outbox cleanup failed", zap.Error(err))
		} else if removed > 0 {
			op.logger.Warn("expired outbox items discarded", zap.Int("count", removed))
		}
	}

	items, err := op.store.Peek(op.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, item := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := op.sender.Publish(ctx, item.Topic, item.Data); err != nil {
			op.logger.Error("failed to resend outbox item",
				zap.String("item_id", item.ID),
				zap.String("topic", item.Topic),
				zap.Error(err))

			if item.Attempts+1 >= op.cfg.MaxRetries {
				op.logger.Warn("dropping outbox item (max retries reached)",
					zap.String("item_id", item.ID),
					zap.Uint8("priority", uint8(item.Priority)))
				_ = op.store.Ack(item)
				continue
			}
			if _, err := op.store.Retry(item); err != nil {
				op.logger.Error("failed to requeue outbox item", zap.Error(err))
			}
			continue
		}

		if err := op.store.Ack(item); err != nil {
			op.logger.Warn("failed to purge sent outbox item", zap.Error(err))
		}
	}
	return nil
}

// Size returns the number of spooled items.
func (op *OutboxProcessor) Size() int {
	if op == nil || op.store == nil {
		return 0
	}
	size, err := op.store.Size()
	if err != nil {
		return 0
	}
	return size
}
