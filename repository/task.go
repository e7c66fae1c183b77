package repository

import (
	"context"
	"time"

	"github.com/fastygo/taskstream/domain"
)

type TaskFilter struct {
	UserID string
	// Completed filters by completion state when non-nil.
	Completed *bool
	Limit     int
	Offset    int
}

type TaskRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	List(ctx context.Context, filter TaskFilter) ([]domain.Task, error)
	Create(ctx context.Context, task *domain.Task) (*domain.Task, error)
	// Update writes the mutable fields. It may clear is_completed but never
	// sets it, and resets reminder_sent only when remind_at changes. The
	// stored completion and reminder state are copied back into task.
	Update(ctx context.Context, task *domain.Task) error
	// Complete sets is_completed on an open task. It reports false when the
	// task was already completed or no longer exists.
	Complete(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error

	// AddTag attaches a tag by name, creating the tag for the owner if needed.
	// Attaching a tag twice is a no-op.
	AddTag(ctx context.Context, taskID, userID, name string) error
	RemoveTag(ctx context.Context, taskID, userID, name string) error

	DueReminders(ctx context.Context, reference time.Time, limit int) ([]*domain.Task, error)
	MarkReminderSent(ctx context.Context, taskID string) error
}
