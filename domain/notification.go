package domain

import "time"

// Notification is a rendered reminder ready to be sent to a user.
type Notification struct {
	// TaskID links the notification to the task that triggered it.
	TaskID string `json:"task_id"`

	// UserID is the recipient.
	UserID string `json:"user_id"`

	// Title is the task title at the time the reminder fired.
	Title string `json:"title"`

	// Message is the human-readable text.
	Message string `json:"message"`

	// CreatedAt is when the notification was rendered.
	CreatedAt time.Time `json:"created_at"`
}
