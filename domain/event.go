package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// SchemaVersion is stamped on every envelope. Consumers read a missing
// version as this one.
const SchemaVersion = "1.0"

const eventTypePrefix = "task."

var validate = validator.New()

// EventKind names a task lifecycle transition.
type EventKind string

const (
	EventCreated   EventKind = "created"
	EventUpdated   EventKind = "updated"
	EventCompleted EventKind = "completed"
	EventDeleted   EventKind = "deleted"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventCreated, EventUpdated, EventCompleted, EventDeleted:
		return true
	}
	return false
}

// EventType returns the wire name, e.g. "task.completed".
func (k EventKind) EventType() string {
	return eventTypePrefix + string(k)
}

// KindFromEventType is the inverse of EventType. Unknown names come back
// as-is so that consumers can log them.
func KindFromEventType(eventType string) EventKind {
	return EventKind(strings.TrimPrefix(eventType, eventTypePrefix))
}

// TaskSnapshot is the read-only projection of a task captured at publish time.
type TaskSnapshot struct {
	ID           string     `json:"id" validate:"required"`
	Title        string     `json:"title"`
	Description  *string    `json:"description"`
	IsCompleted  bool       `json:"is_completed"`
	Priority     Priority   `json:"priority"`
	DueDate      *time.Time `json:"due_date"`
	RemindAt     *time.Time `json:"remind_at"`
	Recurrence   Recurrence `json:"recurrence"`
	ParentTaskID *string    `json:"parent_task_id"`
	Tags         []string   `json:"tags"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SnapshotFromTask copies every field so later mutation of the task does not
// leak into an envelope that is already in flight.
func SnapshotFromTask(t *Task) TaskSnapshot {
	if t == nil {
		return TaskSnapshot{Tags: []string{}}
	}
	tags := make([]string, len(t.Tags))
	copy(tags, t.Tags)
	return TaskSnapshot{
		ID:           t.ID,
		Title:        t.Title,
		Description:  copyString(t.Description),
		IsCompleted:  t.IsCompleted,
		Priority:     t.Priority,
		DueDate:      copyTime(t.DueDate),
		RemindAt:     copyTime(t.RemindAt),
		Recurrence:   t.Recurrence,
		ParentTaskID: copyString(t.ParentTaskID),
		Tags:         tags,
		CreatedAt:    t.CreatedAt.UTC(),
		UpdatedAt:    t.UpdatedAt.UTC(),
	}
}

// TaskLifecycleEvent is published to the task-events topic.
type TaskLifecycleEvent struct {
	EventID       string       `json:"event_id,omitempty"`
	EventType     string       `json:"event_type" validate:"required"`
	TaskID        string       `json:"task_id" validate:"required"`
	TaskData      TaskSnapshot `json:"task_data"`
	UserID        string       `json:"user_id" validate:"required"`
	Timestamp     time.Time    `json:"timestamp"`
	SchemaVersion string       `json:"schema_version,omitempty"`
}

// NewTaskLifecycleEvent builds an envelope for the given transition.
func NewTaskLifecycleEvent(kind EventKind, snapshot TaskSnapshot, userID string, at time.Time) (*TaskLifecycleEvent, error) {
	if !kind.Valid() {
		return nil, NewError(ErrCodeValidation, "unknown event kind: "+string(kind))
	}
	if snapshot.Tags == nil {
		snapshot.Tags = []string{}
	}
	event := &TaskLifecycleEvent{
		EventID:       uuid.NewString(),
		EventType:     kind.EventType(),
		TaskID:        snapshot.ID,
		TaskData:      snapshot,
		UserID:        userID,
		Timestamp:     at.UTC(),
		SchemaVersion: SchemaVersion,
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return event, nil
}

// Kind returns the transition carried by the envelope.
func (e *TaskLifecycleEvent) Kind() EventKind {
	return KindFromEventType(e.EventType)
}

// Validate checks required fields and that the snapshot belongs to TaskID.
func (e *TaskLifecycleEvent) Validate() error {
	if e == nil {
		return ErrMalformedEnvelope
	}
	if err := validate.Struct(e); err != nil {
		return WrapError(ErrCodeValidation, "invalid task event", err)
	}
	if e.TaskData.ID != e.TaskID {
		return NewError(ErrCodeValidation, "task_data.id does not match task_id")
	}
	return nil
}

// DecodeTaskLifecycleEvent parses and validates an unwrapped payload.
func DecodeTaskLifecycleEvent(payload []byte) (*TaskLifecycleEvent, error) {
	var event TaskLifecycleEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, WrapError(ErrCodeValidation, "decode task event", err)
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if event.SchemaVersion == "" {
		event.SchemaVersion = SchemaVersion
	}
	return &event, nil
}

// ReminderDueEvent is published to the reminders topic once per activation.
type ReminderDueEvent struct {
	EventID       string     `json:"event_id,omitempty"`
	TaskID        string     `json:"task_id" validate:"required"`
	Title         string     `json:"title" validate:"required"`
	DueAt         *time.Time `json:"due_at"`
	RemindAt      *time.Time `json:"remind_at" validate:"required"`
	UserID        string     `json:"user_id" validate:"required"`
	SchemaVersion string     `json:"schema_version,omitempty"`
}

// NewReminderDueEvent builds the reminder envelope for a task whose reminder fired.
func NewReminderDueEvent(t *Task) (*ReminderDueEvent, error) {
	if t == nil {
		return nil, ErrInvalidPayload
	}
	event := &ReminderDueEvent{
		EventID:       uuid.NewString(),
		TaskID:        t.ID,
		Title:         t.Title,
		DueAt:         copyTime(t.DueDate),
		RemindAt:      copyTime(t.RemindAt),
		UserID:        t.UserID,
		SchemaVersion: SchemaVersion,
	}
	if err := validate.Struct(event); err != nil {
		return nil, WrapError(ErrCodeValidation, "invalid reminder event", err)
	}
	return event, nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
