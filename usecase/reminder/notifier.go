package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/fastygo/taskstream/domain"
	"github.com/fastygo/taskstream/internal/infrastructure/bus"
	"github.com/fastygo/taskstream/pkg/clock"
)

// Outcome of handling one reminder delivery.
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeValidationError Outcome = "validationError"
	OutcomeDispatchError   Outcome = "dispatchError"
)

const displayLayout = "2006-01-02 15:04"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Channel delivers a rendered notification to the user.
type Channel interface {
	Name() string
	Send(ctx context.Context, n domain.Notification) error
}

// Result describes what happened to a delivery.
type Result struct {
	Outcome Outcome
	TaskID  string
	UserID  string
	Message string
	Err     error
}

// reminderPayload mirrors domain.ReminderDueEvent with loose timestamps: a
// timestamp that does not parse is still shown rather than failing the reminder.
type reminderPayload struct {
	TaskID   string `json:"task_id" validate:"required"`
	Title    string `json:"title" validate:"required"`
	DueAt    string `json:"due_at"`
	RemindAt string `json:"remind_at"`
	UserID   string `json:"user_id" validate:"required"`
}

// Notifier turns reminder-due events into notifications. It does not
// deduplicate: a redelivered event is sent again.
type Notifier struct {
	channel  Channel
	validate *validator.Validate
	clock    clock.Clock
	logger   *zap.Logger
}

func New(channel Channel, c clock.Clock, logger *zap.Logger) *Notifier {
	if c == nil {
		c = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		channel:  channel,
		validate: validator.New(),
		clock:    c,
		logger:   logger,
	}
}

// Handle validates the raw delivery body and dispatches one notification.
func (n *Notifier) Handle(ctx context.Context, body []byte) Result {
	payload, err := n.decode(body)
	if err != nil {
		n.logger.Warn("invalid reminder event", zap.Error(err))
		return Result{Outcome: OutcomeValidationError, Err: err}
	}

	message := FormatMessage(payload.Title, payload.DueAt, payload.RemindAt)
	result := Result{TaskID: payload.TaskID, UserID: payload.UserID, Message: message}

	notification := domain.Notification{
		TaskID:    payload.TaskID,
		UserID:    payload.UserID,
		Title:     payload.Title,
		Message:   message,
		CreatedAt: n.clock.Now(),
	}
	if err := n.channel.Send(ctx, notification); err != nil {
		n.logger.Error("failed to send reminder notification",
			zap.String("task_id", payload.TaskID),
			zap.String("channel", n.channel.Name()),
			zap.Error(err))
		result.Outcome = OutcomeDispatchError
		result.Err = err
		return result
	}

	n.logger.Info("reminder notification sent",
		zap.String("task_id", payload.TaskID),
		zap.String("user_id", payload.UserID),
		zap.String("channel", n.channel.Name()))
	result.Outcome = OutcomeSuccess
	return result
}

func (n *Notifier) decode(body []byte) (*reminderPayload, error) {
	raw, err := bus.Unwrap(body)
	if err != nil {
		return nil, err
	}
	var payload reminderPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, domain.WrapError(domain.ErrCodeValidation, "decode reminder event", err)
	}
	payload.TaskID = strings.TrimSpace(payload.TaskID)
	payload.UserID = strings.TrimSpace(payload.UserID)
	payload.Title = strings.TrimSpace(payload.Title)
	if err := n.validate.Struct(payload); err != nil {
		return nil, domain.WrapError(domain.ErrCodeValidation, "missing required field", err)
	}
	return &payload, nil
}

// FormatMessage renders the reminder text. Timestamps are shown in the
// offset they were sent with.
func FormatMessage(title, dueAt, remindAt string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reminder: Task '%s' is due", title)

	if dueAt != "" {
		if t, ok := parseTimestamp(dueAt); ok {
			b.WriteString(" on " + t.Format(displayLayout))
		} else {
			b.WriteString(" on " + dueAt)
		}
	}
	if remindAt != "" {
		if t, ok := parseTimestamp(remindAt); ok {
			b.WriteString(" (reminder set for " + t.Format(displayLayout) + ")")
		}
	}
	return b.String()
}

func parseTimestamp(value string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
