package services

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/taskstream/domain"
	"github.com/fastygo/taskstream/pkg/clock"
)

// ReminderStore is the slice of the task repository the scanner needs.
type ReminderStore interface {
	DueReminders(ctx context.Context, reference time.Time, limit int) ([]*domain.Task, error)
	MarkReminderSent(ctx context.Context, taskID string) error
}

// ReminderPublisher is satisfied by EventPublisher.
type ReminderPublisher interface {
	PublishReminder(ctx context.Context, event *domain.ReminderDueEvent) bool
}

type ScannerConfig struct {
	Interval  time.Duration
	BatchSize int
}

// ReminderScanner fires reminders whose time has come. A task is marked
// only after its reminder was accepted by the gateway, so a failed publish
// is retried on the next pass.
type ReminderScanner struct {
	store     ReminderStore
	publisher ReminderPublisher
	clock     clock.Clock
	logger    *zap.Logger
	cron      *cron.Cron
	cfg       ScannerConfig
}

func NewReminderScanner(store ReminderStore, publisher ReminderPublisher, c clock.Clock, logger *zap.Logger, cfg ScannerConfig) *ReminderScanner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if c == nil {
		c = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rs := &ReminderScanner{
		store:     store,
		publisher: publisher,
		clock:     c,
		logger:    logger,
		cfg:       cfg,
		cron:      cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}

	_, err := rs.cron.AddFunc("@every "+cfg.Interval.String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if _, err := rs.Scan(ctx); err != nil {
			rs.logger.Error("reminder scan failed", zap.Error(err))
		}
	})
	if err != nil {
		logger.Error("failed to schedule reminder scan", zap.Error(err))
	}
	return rs
}

func (rs *ReminderScanner) Start() {
	if rs == nil || rs.cron == nil {
		return
	}
	rs.cron.Start()
	rs.logger.Info("reminder scanner started", zap.Duration("interval", rs.cfg.Interval))
}

func (rs *ReminderScanner) Stop(ctx context.Context) {
	if rs == nil || rs.cron == nil {
		return
	}
	stopCtx := rs.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	rs.logger.Info("reminder scanner stopped")
}

// Scan runs one pass and returns how many reminders were published.
func (rs *ReminderScanner) Scan(ctx context.Context) (int, error) {
	now := rs.clock.Now()
	tasks, err := rs.store.DueReminders(ctx, now, rs.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	var sent int
	for _, task := range tasks {
		if !task.ReminderDue(now) {
			continue
		}
		event, err := domain.NewReminderDueEvent(task)
		if err != nil {
			rs.logger.Warn("skipping reminder", zap.String("task_id", task.ID), zap.Error(err))
			continue
		}
		if !rs.publisher.PublishReminder(ctx, event) {
			continue
		}
		if err := rs.store.MarkReminderSent(ctx, task.ID); err != nil {
			rs.logger.Error("failed to mark reminder sent", zap.String("task_id", task.ID), zap.Error(err))
			continue
		}
		sent++
	}
	if sent > 0 {
		rs.logger.Info("reminders published", zap.Int("count", sent))
	}
	return sent, nil
}
