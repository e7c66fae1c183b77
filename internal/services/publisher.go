package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/taskstream/domain"
	"github.com/fastygo/taskstream/internal/infrastructure/bus"
	"github.com/fastygo/taskstream/internal/infrastructure/outbox"
	"github.com/fastygo/taskstream/pkg/clock"
	"github.com/fastygo/taskstream/usecase"
)

// Spooler keeps an envelope that could not be published.
type Spooler interface {
	Spool(topic string, payload []byte, priority outbox.Priority) error
}

// spoolPriority decides drain order after an outage. Completions go first
// because the recurring service creates the next occurrence from them;
// deletions have no downstream action and go last.
func spoolPriority(kind domain.EventKind) outbox.Priority {
	switch kind {
	case domain.EventCompleted:
		return outbox.PriorityHigh
	case domain.EventDeleted:
		return outbox.PriorityLow
	default:
		return outbox.PriorityNormal
	}
}

type PublisherConfig struct {
	Enabled bool
	Timeout time.Duration
}

// EventPublisher is the best-effort producer side of the bus. Publishing
// never fails the caller: the result is a bool and every failure is logged.
type EventPublisher struct {
	gateway Sender
	spool   Spooler
	cfg     PublisherConfig
	clock   clock.Clock
	logger  *zap.Logger

	inflight sync.WaitGroup
}

// NewEventPublisher builds a publisher. spool may be nil.
func NewEventPublisher(gateway Sender, spool Spooler, cfg PublisherConfig, c clock.Clock, logger *zap.Logger) *EventPublisher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if c == nil {
		c = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{
		gateway: gateway,
		spool:   spool,
		cfg:     cfg,
		clock:   c,
		logger:  logger,
	}
}

// Publish sends one lifecycle event to the task-events topic.
func (p *EventPublisher) Publish(ctx context.Context, kind domain.EventKind, snapshot domain.TaskSnapshot, userID string) bool {
	log := p.logger.With(
		zap.String("event_type", kind.EventType()),
		zap.String("task_id", snapshot.ID))

	if !p.cfg.Enabled {
		log.Info("event publishing disabled, skipping")
		return true
	}

	event, err := domain.NewTaskLifecycleEvent(kind, snapshot, userID, p.clock.Now())
	if err != nil {
		log.Error("failed to build task event", zap.Error(err))
		return false
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error("failed to encode task event", zap.Error(err))
		return false
	}

	if err := p.send(ctx, bus.TopicTaskEvents, payload); err != nil {
		log.Error("failed to publish task event", zap.Error(err))
		p.spoolFailed(log, bus.TopicTaskEvents, payload, spoolPriority(kind))
		return false
	}
	log.Info("task event published", zap.String("event_id", event.EventID))
	return true
}

// PublishReminder sends one reminder to the reminders topic. Failures are not
// spooled: the reminder scanner picks the task up again on its next pass.
func (p *EventPublisher) PublishReminder(ctx context.Context, event *domain.ReminderDueEvent) bool {
	if event == nil {
		return false
	}
	log := p.logger.With(zap.String("task_id", event.TaskID))

	if !p.cfg.Enabled {
		log.Info("event publishing disabled, skipping reminder")
		return true
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error("failed to encode reminder event", zap.Error(err))
		return false
	}
	if err := p.send(ctx, bus.TopicReminders, payload); err != nil {
		log.Error("failed to publish reminder event", zap.Error(err))
		return false
	}
	log.Info("reminder event published", zap.String("user_id", event.UserID))
	return true
}

// Dispatch publishes on a detached goroutine with its own deadline, so the
// caller's request lifetime does not cut the publish short.
func (p *EventPublisher) Dispatch(kind domain.EventKind, snapshot domain.TaskSnapshot, userID string) {
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
		defer cancel()
		p.Publish(ctx, kind, snapshot, userID)
	}()
}

// Wait blocks until in-flight dispatches finish or ctx is done.
func (p *EventPublisher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *EventPublisher) send(ctx context.Context, topic string, payload []byte) error {
	if p.gateway == nil {
		return domain.NewError(domain.ErrCodeTransport, "no gateway configured")
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	return p.gateway.Publish(ctx, topic, payload)
}

func (p *EventPublisher) spoolFailed(log *zap.Logger, topic string, payload []byte, priority outbox.Priority) {
	if p.spool == nil {
		return
	}
	if err := p.spool.Spool(topic, payload, priority); err != nil {
		log.Error("failed to spool task event", zap.Error(err))
		return
	}
	log.Info("task event spooled for redelivery")
}

var _ usecase.EventDispatcher = (*EventPublisher)(nil)
