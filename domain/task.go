package domain

import (
	"strings"
	"time"
)

// Priority ranks a task for its owner.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ParsePriority normalizes user input. An empty value means medium.
func ParsePriority(value string) (Priority, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return PriorityMedium, nil
	}
	p := Priority(value)
	if !p.Valid() {
		return "", NewError(ErrCodeInvalid, "invalid priority: "+value+". Must be low, medium, or high")
	}
	return p, nil
}

// Recurrence is the repeat pattern of a task. RecurrenceNone is terminal.
type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

// Recurring reports whether another occurrence should follow completion.
// An empty pattern is read as none.
func (r Recurrence) Recurring() bool {
	return r != "" && r != RecurrenceNone
}

// ParseRecurrence normalizes user input. An empty value means none.
func ParseRecurrence(value string) (Recurrence, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return RecurrenceNone, nil
	}
	r := Recurrence(value)
	if !r.Valid() {
		return "", NewError(ErrCodeInvalid, "invalid recurrence: "+value+". Must be none, daily, weekly, or monthly")
	}
	return r, nil
}

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
)

// Task represents a user-owned activity item.
type Task struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Title        string     `json:"title"`
	Description  *string    `json:"description,omitempty"`
	IsCompleted  bool       `json:"is_completed"`
	Priority     Priority   `json:"priority"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	RemindAt     *time.Time `json:"remind_at,omitempty"`
	ReminderSent bool       `json:"reminder_sent"`
	Recurrence   Recurrence `json:"recurrence"`
	ParentTaskID *string    `json:"parent_task_id,omitempty"`
	Tags         []string   `json:"tags"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Validate checks the fields the owning service is responsible for.
func (t *Task) Validate() error {
	if t == nil {
		return ErrInvalidPayload
	}
	title := strings.TrimSpace(t.Title)
	if title == "" {
		return NewError(ErrCodeInvalid, "title cannot be empty")
	}
	if len(title) > MaxTitleLength {
		return NewError(ErrCodeInvalid, "title must be 200 characters or less")
	}
	if t.Description != nil && len(*t.Description) > MaxDescriptionLength {
		return NewError(ErrCodeInvalid, "description must be 2000 characters or less")
	}
	if !t.Priority.Valid() {
		return NewError(ErrCodeInvalid, "invalid priority")
	}
	if !t.Recurrence.Valid() {
		return NewError(ErrCodeInvalid, "invalid recurrence")
	}
	return nil
}

// ReminderDue reports whether the reminder should fire at the reference time.
func (t *Task) ReminderDue(reference time.Time) bool {
	if t == nil || t.RemindAt == nil || t.ReminderSent || t.IsCompleted {
		return false
	}
	return !t.RemindAt.After(reference)
}

// NormalizeTag lower-cases and trims a tag name.
func NormalizeTag(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
