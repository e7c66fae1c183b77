package reactivation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/taskstream/domain"
	"github.com/fastygo/taskstream/internal/infrastructure/bus"
	"github.com/fastygo/taskstream/internal/infrastructure/taskapi"
	"github.com/fastygo/taskstream/pkg/clock"
	appLogger "github.com/fastygo/taskstream/pkg/logger"
	"github.com/fastygo/taskstream/usecase/recurrence"
)

// State is a step of the reactivation state machine:
// RECEIVED -> VALIDATED -> {IGNORED | NEXT_DUE_COMPUTED} -> {CREATED | CREATE_FAILED}.
// INVALID, UNSCHEDULABLE and SKIPPED are terminal short-circuits.
type State string

const (
	StateReceived        State = "RECEIVED"
	StateValidated       State = "VALIDATED"
	StateIgnored         State = "IGNORED"
	StateNextDueComputed State = "NEXT_DUE_COMPUTED"
	StateCreated         State = "CREATED"
	StateCreateFailed    State = "CREATE_FAILED"

	StateInvalid       State = "INVALID"
	StateUnschedulable State = "UNSCHEDULABLE"
	StateSkipped       State = "SKIPPED"
)

// TaskCreator is the owning service's creation API.
type TaskCreator interface {
	CreateTask(ctx context.Context, token, idempotencyKey string, body taskapi.CreateTaskRequest) (*domain.Task, error)
	AttachTag(ctx context.Context, token, taskID, name string) error
}

// TokenIssuer mints a service credential acting for a user. It is consulted
// only when the delivery carries no forwarded credential.
type TokenIssuer interface {
	IssueFor(userID string) (string, error)
}

// Result reports where a delivery ended.
type Result struct {
	State     State
	TaskID    string
	NewTaskID string
	NextDue   *time.Time
	Reason    string
	Err       error
}

// Delivery tells the gateway whether to redeliver.
func (r Result) Delivery() bus.Delivery {
	switch r.State {
	case StateIgnored, StateCreated:
		return bus.Success
	}
	return bus.DeliveryFor(r.Err)
}

// Reactivator re-creates a recurring task after its predecessor completes.
// Handlers are not deduplicated: the same completion delivered twice yields
// two creation calls, and the task service decides by idempotency key.
type Reactivator struct {
	calc   *recurrence.Calculator
	tasks  TaskCreator
	issuer TokenIssuer
	clock  clock.Clock
	logger *zap.Logger
}

func New(calc *recurrence.Calculator, tasks TaskCreator, issuer TokenIssuer, c clock.Clock, logger *zap.Logger) *Reactivator {
	if c == nil {
		c = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if calc == nil {
		calc = recurrence.NewCalculator(c, logger)
	}
	return &Reactivator{
		calc:   calc,
		tasks:  tasks,
		issuer: issuer,
		clock:  c,
		logger: logger,
	}
}

// Handle processes one delivery of the task-events topic. forwardedToken is
// the bearer credential that arrived with the delivery, if any.
func (r *Reactivator) Handle(ctx context.Context, body []byte, forwardedToken string) Result {
	log := appLogger.WithRequestID(ctx, r.logger)

	raw, err := bus.Unwrap(body)
	if err != nil {
		log.Warn("task event dropped", zap.String("state", string(StateInvalid)), zap.Error(err))
		return Result{State: StateInvalid, Reason: "malformed envelope", Err: err}
	}
	event, err := domain.DecodeTaskLifecycleEvent(raw)
	if err != nil {
		log.Warn("task event dropped", zap.String("state", string(StateInvalid)), zap.Error(err))
		return Result{State: StateInvalid, Reason: "malformed envelope", Err: err}
	}

	snapshot := event.TaskData
	log = log.With(zap.String("task_id", event.TaskID), zap.String("event_type", event.EventType))
	log.Debug("task event received", zap.String("recurrence", string(snapshot.Recurrence)))

	if event.Kind() != domain.EventCompleted {
		return Result{State: StateIgnored, TaskID: event.TaskID, Reason: "not a completion event"}
	}
	if !snapshot.Recurrence.Recurring() {
		return Result{State: StateIgnored, TaskID: event.TaskID, Reason: "task is not recurring"}
	}

	completedAt := r.clock.Now()
	nextDue := r.calc.NextDue(snapshot.DueDate, snapshot.Recurrence, &completedAt)
	if nextDue == nil {
		log.Warn("could not calculate next due date", zap.String("recurrence", string(snapshot.Recurrence)))
		return Result{
			State:  StateUnschedulable,
			TaskID: event.TaskID,
			Reason: "could not calculate next due date",
			Err:    domain.NewError(domain.ErrCodeValidation, "unknown recurrence pattern: "+string(snapshot.Recurrence)),
		}
	}
	result := Result{State: StateNextDueComputed, TaskID: event.TaskID, NextDue: nextDue}

	token, err := r.credential(forwardedToken, event.UserID)
	if err != nil {
		log.Warn("recurring task skipped", zap.String("state", string(StateSkipped)), zap.Error(err))
		result.State = StateSkipped
		result.Reason = "no authentication token available"
		result.Err = err
		return result
	}

	created, err := r.tasks.CreateTask(ctx, token, IdempotencyKey(event.TaskID, *nextDue), taskapi.CreateTaskRequest{
		Title:        snapshot.Title,
		Description:  snapshot.Description,
		Priority:     snapshot.Priority,
		Recurrence:   snapshot.Recurrence,
		DueDate:      nextDue,
		ParentTaskID: event.TaskID,
	})
	if err != nil {
		log.Error("failed to create recurring task",
			zap.Bool("retryable", domain.IsRetryable(err)),
			zap.Error(err))
		result.State = StateCreateFailed
		result.Reason = "task creation failed"
		result.Err = err
		return result
	}

	r.attachTags(ctx, log, token, created.ID, snapshot.Tags)

	log.Info("recurring task created",
		zap.String("new_task_id", created.ID),
		zap.Time("next_due", *nextDue),
		zap.String("user_id", event.UserID))
	result.State = StateCreated
	result.NewTaskID = created.ID
	return result
}

func (r *Reactivator) credential(forwarded, userID string) (string, error) {
	if forwarded != "" {
		return forwarded, nil
	}
	if r.issuer == nil {
		return "", domain.ErrNoCredential
	}
	token, err := r.issuer.IssueFor(userID)
	if err != nil || token == "" {
		return "", domain.WrapError(domain.ErrCodeAuthUnavailable, "issue service token", err)
	}
	return token, nil
}

// attachTags is best effort: a tag that fails to attach is logged and the
// new task stands without it.
func (r *Reactivator) attachTags(ctx context.Context, log *zap.Logger, token, taskID string, tags []string) {
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if err := r.tasks.AttachTag(ctx, token, taskID, tag); err != nil {
			log.Warn("tag addition failed",
				zap.String("new_task_id", taskID),
				zap.String("tag", tag),
				zap.Error(err))
		}
	}
}

// IdempotencyKey is deterministic per source task and occurrence.
func IdempotencyKey(sourceTaskID string, nextDue time.Time) string {
	sum := sha256.Sum256([]byte(sourceTaskID + "|" + nextDue.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(sum[:])
}
