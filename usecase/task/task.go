package task

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/taskstream/domain"
	appLogger "github.com/fastygo/taskstream/pkg/logger"
	"github.com/fastygo/taskstream/repository"
	"github.com/fastygo/taskstream/usecase"
)

// Patch is a partial update. Nil fields are left unchanged; ClearDueDate and
// ClearRemindAt null the respective timestamps.
type Patch struct {
	Title         *string
	Description   *string
	Priority      *string
	Recurrence    *string
	DueDate       *time.Time
	ClearDueDate  bool
	RemindAt      *time.Time
	ClearRemindAt bool
	IsCompleted   *bool
}

type UseCase struct {
	tasks  repository.TaskRepository
	keys   repository.IdempotencyRepository
	events usecase.EventDispatcher
	logger *zap.Logger
}

// New wires the task use case. keys and events may be nil, which disables
// idempotency checks and event publishing respectively.
func New(tasks repository.TaskRepository, keys repository.IdempotencyRepository, events usecase.EventDispatcher, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		tasks:  tasks,
		keys:   keys,
		events: events,
		logger: logger,
	}
}

func (uc *UseCase) ListTasks(ctx context.Context, filter repository.TaskFilter) ([]domain.Task, error) {
	return uc.tasks.List(ctx, filter)
}

// GetTask returns the task only to its owner; other users see not-found.
func (uc *UseCase) GetTask(ctx context.Context, userID, id string) (*domain.Task, error) {
	task, err := uc.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.UserID != userID {
		return nil, domain.ErrTaskNotFound
	}
	return task, nil
}

// CreateTask stores a new task. A non-empty idempotencyKey is admitted once
// per user; a replay fails with ErrDuplicateRequest.
func (uc *UseCase) CreateTask(ctx context.Context, task *domain.Task, idempotencyKey string) (*domain.Task, error) {
	if task == nil {
		return nil, domain.ErrInvalidPayload
	}
	task.Title = strings.TrimSpace(task.Title)
	if task.Priority == "" {
		task.Priority = domain.PriorityMedium
	}
	if task.Recurrence == "" {
		task.Recurrence = domain.RecurrenceNone
	}
	task.Tags = normalizeTags(task.Tags)
	task.IsCompleted = false
	task.ReminderSent = false
	if err := task.Validate(); err != nil {
		return nil, err
	}
	log := appLogger.WithRequestID(ctx, uc.logger)
	if task.ParentTaskID != nil {
		// A parent deleted before its next occurrence was created only loses the link.
		if _, err := uc.GetTask(ctx, task.UserID, *task.ParentTaskID); err != nil {
			if !domain.IsDomainError(err, domain.ErrCodeNotFound) {
				return nil, err
			}
			log.Warn("parent task not found, dropping link", zap.String("parent_task_id", *task.ParentTaskID))
			task.ParentTaskID = nil
		}
	}

	claimed := false
	if idempotencyKey != "" && uc.keys != nil {
		ok, err := uc.keys.Claim(ctx, task.UserID, idempotencyKey)
		if err != nil {
			return nil, domain.WrapError(domain.ErrCodeInternal, "idempotency check failed", err)
		}
		if !ok {
			log.Info("duplicate create rejected", zap.String("idempotency_key", idempotencyKey))
			return nil, domain.ErrDuplicateRequest
		}
		claimed = true
	}

	created, err := uc.tasks.Create(ctx, task)
	if err != nil {
		if claimed {
			if relErr := uc.keys.Release(ctx, task.UserID, idempotencyKey); relErr != nil {
				log.Warn("failed to release idempotency key", zap.Error(relErr))
			}
		}
		return nil, err
	}

	log.Info("task created", zap.String("task_id", created.ID), zap.String("user_id", created.UserID))
	uc.dispatch(domain.EventCreated, created)
	return created, nil
}

// UpdateTask applies a patch. Completing a task through an update publishes
// task.completed instead of task.updated, and only for the request that
// actually flipped the flag.
func (uc *UseCase) UpdateTask(ctx context.Context, userID, id string, patch Patch) (*domain.Task, error) {
	task, err := uc.GetTask(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	wasCompleted := task.IsCompleted

	if err := applyPatch(task, patch); err != nil {
		return nil, err
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}
	completing := !wasCompleted && task.IsCompleted
	if err := uc.tasks.Update(ctx, task); err != nil {
		return nil, err
	}

	if completing {
		done, changed, err := uc.complete(ctx, id)
		if err != nil {
			return nil, err
		}
		if changed {
			uc.dispatch(domain.EventCompleted, done)
			return done, nil
		}
		task = done
	}
	uc.dispatch(domain.EventUpdated, task)
	return task, nil
}

// CompleteTask marks the task done. Completing an already completed task is a
// no-op and publishes nothing, including when two requests race.
func (uc *UseCase) CompleteTask(ctx context.Context, userID, id string) (*domain.Task, error) {
	task, err := uc.GetTask(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if task.IsCompleted {
		return task, nil
	}
	done, changed, err := uc.complete(ctx, id)
	if err != nil {
		return nil, err
	}
	if !changed {
		return done, nil
	}
	appLogger.WithRequestID(ctx, uc.logger).Info("task completed",
		zap.String("task_id", done.ID),
		zap.String("recurrence", string(done.Recurrence)))
	uc.dispatch(domain.EventCompleted, done)
	return done, nil
}

// complete flips is_completed in storage and reloads the row. changed is true
// only for the caller whose write performed the transition.
func (uc *UseCase) complete(ctx context.Context, id string) (*domain.Task, bool, error) {
	changed, err := uc.tasks.Complete(ctx, id)
	if err != nil {
		return nil, false, err
	}
	task, err := uc.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return task, changed, nil
}

// DeleteTask removes the task and publishes the snapshot taken before deletion.
func (uc *UseCase) DeleteTask(ctx context.Context, userID, id string) error {
	task, err := uc.GetTask(ctx, userID, id)
	if err != nil {
		return err
	}
	snapshot := domain.SnapshotFromTask(task)
	if err := uc.tasks.Delete(ctx, id); err != nil {
		return err
	}
	if uc.events != nil {
		uc.events.Dispatch(domain.EventDeleted, snapshot, task.UserID)
	}
	return nil
}

func (uc *UseCase) AddTag(ctx context.Context, userID, id, name string) (*domain.Task, error) {
	name = domain.NormalizeTag(name)
	if name == "" {
		return nil, domain.NewError(domain.ErrCodeInvalid, "tag name cannot be empty")
	}
	if _, err := uc.GetTask(ctx, userID, id); err != nil {
		return nil, err
	}
	if err := uc.tasks.AddTag(ctx, id, userID, name); err != nil {
		return nil, err
	}
	return uc.reloadAndPublish(ctx, id)
}

func (uc *UseCase) RemoveTag(ctx context.Context, userID, id, name string) (*domain.Task, error) {
	if _, err := uc.GetTask(ctx, userID, id); err != nil {
		return nil, err
	}
	if err := uc.tasks.RemoveTag(ctx, id, userID, name); err != nil {
		return nil, err
	}
	return uc.reloadAndPublish(ctx, id)
}

func (uc *UseCase) reloadAndPublish(ctx context.Context, id string) (*domain.Task, error) {
	task, err := uc.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	uc.dispatch(domain.EventUpdated, task)
	return task, nil
}

func (uc *UseCase) dispatch(kind domain.EventKind, task *domain.Task) {
	if uc.events == nil {
		return
	}
	uc.events.Dispatch(kind, domain.SnapshotFromTask(task), task.UserID)
}

func applyPatch(task *domain.Task, patch Patch) error {
	if patch.Title != nil {
		task.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		if *patch.Description == "" {
			task.Description = nil
		} else {
			description := *patch.Description
			task.Description = &description
		}
	}
	if patch.Priority != nil {
		priority, err := domain.ParsePriority(*patch.Priority)
		if err != nil {
			return err
		}
		task.Priority = priority
	}
	if patch.Recurrence != nil {
		recurrence, err := domain.ParseRecurrence(*patch.Recurrence)
		if err != nil {
			return err
		}
		task.Recurrence = recurrence
	}
	switch {
	case patch.ClearDueDate:
		task.DueDate = nil
	case patch.DueDate != nil:
		due := patch.DueDate.UTC()
		task.DueDate = &due
	}
	switch {
	case patch.ClearRemindAt:
		task.RemindAt = nil
		task.ReminderSent = false
	case patch.RemindAt != nil:
		remind := patch.RemindAt.UTC()
		if task.RemindAt == nil || !task.RemindAt.Equal(remind) {
			task.ReminderSent = false
		}
		task.RemindAt = &remind
	}
	if patch.IsCompleted != nil {
		task.IsCompleted = *patch.IsCompleted
	}
	return nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = domain.NormalizeTag(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
