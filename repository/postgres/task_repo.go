package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/taskstream/domain"
	"github.com/fastygo/taskstream/repository"
)

const taskColumns = `
	t.id::text, t.user_id, t.title, t.description, t.is_completed, t.priority,
	t.due_date, t.remind_at, t.reminder_sent, t.recurrence, t.parent_task_id::text,
	COALESCE(ARRAY(
		SELECT tg.name FROM task_tags tt JOIN tags tg ON tg.id = tt.tag_id
		WHERE tt.task_id = t.id ORDER BY tg.name
	), '{}') AS tags,
	t.created_at, t.updated_at`

type taskRepository struct {
	pool *pgxpool.Pool
}

// NewTaskRepository returns a Postgres-backed implementation of TaskRepository.
func NewTaskRepository(pool *pgxpool.Pool) repository.TaskRepository {
	return &taskRepository{pool: pool}
}

func (r *taskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrTaskNotFound
	}
	query := `SELECT ` + taskColumns + ` FROM tasks t WHERE t.id = $1`
	return scanTask(r.pool.QueryRow(ctx, query, id))
}

func (r *taskRepository) List(ctx context.Context, filter repository.TaskFilter) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + `
	FROM tasks t
	WHERE ($1 = '' OR t.user_id = $1)
	  AND ($2::boolean IS NULL OR t.is_completed = $2)
	ORDER BY t.created_at DESC
	LIMIT $3 OFFSET $4`

	rows, err := r.pool.Query(ctx, query, filter.UserID, filter.Completed, clampLimit(filter.Limit), filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// Create inserts the task and its tags in one transaction.
func (r *taskRepository) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	if task == nil {
		return nil, domain.ErrInvalidPayload
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	const query = `
	INSERT INTO tasks (id, user_id, title, description, is_completed, priority,
		due_date, remind_at, reminder_sent, recurrence, parent_task_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	RETURNING created_at, updated_at
	`

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, query,
			task.ID,
			task.UserID,
			task.Title,
			nullableString(task.Description),
			task.IsCompleted,
			task.Priority,
			nullableTime(task.DueDate),
			nullableTime(task.RemindAt),
			task.ReminderSent,
			task.Recurrence,
			nullableString(task.ParentTaskID),
		).Scan(&task.CreatedAt, &task.UpdatedAt); err != nil {
			return err
		}
		for _, name := range task.Tags {
			if err := attachTag(ctx, tx, task.ID, task.UserID, name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if task.Tags == nil {
		task.Tags = []string{}
	}
	return task, nil
}

func (r *taskRepository) Update(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return domain.ErrInvalidPayload
	}

	const query = `
	UPDATE tasks
	SET title = $2,
		description = $3,
		is_completed = is_completed AND $4,
		priority = $5,
		due_date = $6,
		reminder_sent = CASE WHEN remind_at IS DISTINCT FROM $7 THEN false ELSE reminder_sent END,
		remind_at = $7,
		recurrence = $8,
		updated_at = NOW()
	WHERE id = $1
	RETURNING is_completed, reminder_sent, updated_at
	`

	if err := r.pool.QueryRow(ctx, query,
		task.ID,
		task.Title,
		nullableString(task.Description),
		task.IsCompleted,
		task.Priority,
		nullableTime(task.DueDate),
		nullableTime(task.RemindAt),
		task.Recurrence,
	).Scan(&task.IsCompleted, &task.ReminderSent, &task.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrTaskNotFound
		}
		return err
	}

	return nil
}

func (r *taskRepository) Complete(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	const query = `
	UPDATE tasks
	SET is_completed = true, updated_at = NOW()
	WHERE id = $1 AND is_completed = false
	`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *taskRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM tasks WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (r *taskRepository) AddTag(ctx context.Context, taskID, userID, name string) error {
	name = domain.NormalizeTag(name)
	if name == "" {
		return domain.NewError(domain.ErrCodeInvalid, "tag name cannot be empty")
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := attachTag(ctx, tx, taskID, userID, name); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `UPDATE tasks SET updated_at = NOW() WHERE id = $1`, taskID)
		return err
	})
}

func (r *taskRepository) RemoveTag(ctx context.Context, taskID, userID, name string) error {
	const query = `
	DELETE FROM task_tags tt
	USING tags tg
	WHERE tt.tag_id = tg.id
	  AND tt.task_id = $1
	  AND tg.user_id = $2
	  AND tg.name = $3
	`
	tag, err := r.pool.Exec(ctx, query, taskID, userID, domain.NormalizeTag(name))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTagNotFound
	}
	_, err = r.pool.Exec(ctx, `UPDATE tasks SET updated_at = NOW() WHERE id = $1`, taskID)
	return err
}

func (r *taskRepository) DueReminders(ctx context.Context, reference time.Time, limit int) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + `
	FROM tasks t
	WHERE t.remind_at IS NOT NULL
	  AND t.remind_at <= $1
	  AND t.reminder_sent = FALSE
	  AND t.is_completed = FALSE
	ORDER BY t.remind_at
	LIMIT $2`

	rows, err := r.pool.Query(ctx, query, reference.UTC(), clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (r *taskRepository) MarkReminderSent(ctx context.Context, taskID string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tasks SET reminder_sent = TRUE, updated_at = NOW() WHERE id = $1`, taskID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

// attachTag finds or creates the owner's tag and links it to the task.
func attachTag(ctx context.Context, q querier, taskID, userID, name string) error {
	name = domain.NormalizeTag(name)
	if name == "" {
		return nil
	}

	const upsertTag = `
	INSERT INTO tags (id, user_id, name)
	VALUES ($1, $2, $3)
	ON CONFLICT (user_id, name) DO UPDATE SET name = EXCLUDED.name
	RETURNING id::text
	`
	var tagID string
	if err := q.QueryRow(ctx, upsertTag, uuid.NewString(), userID, name).Scan(&tagID); err != nil {
		return fmt.Errorf("upsert tag %q: %w", name, err)
	}

	const link = `INSERT INTO task_tags (task_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := q.Exec(ctx, link, taskID, tagID); err != nil {
		return fmt.Errorf("link tag %q: %w", name, err)
	}
	return nil
}

func scanTask(row interface {
	Scan(dest ...interface{}) error
}) (*domain.Task, error) {
	var task domain.Task
	var (
		priority   string
		recurrence string
	)

	if err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Title,
		&task.Description,
		&task.IsCompleted,
		&priority,
		&task.DueDate,
		&task.RemindAt,
		&task.ReminderSent,
		&recurrence,
		&task.ParentTaskID,
		&task.Tags,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, err
	}

	task.Priority = domain.Priority(priority)
	task.Recurrence = domain.Recurrence(recurrence)
	if task.Tags == nil {
		task.Tags = []string{}
	}
	return &task, nil
}
