package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/taskstream/domain"
	"github.com/fastygo/taskstream/pkg/clock"
)

type recordingChannel struct {
	sent []domain.Notification
	err  error
}

func (c *recordingChannel) Name() string { return "recording" }

func (c *recordingChannel) Send(_ context.Context, n domain.Notification) error {
	c.sent = append(c.sent, n)
	return c.err
}

func newNotifier(ch Channel) *Notifier {
	return New(ch, clock.NewFake(time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)), nil)
}

func TestHandle_SendsFormattedNotification(t *testing.T) {
	ch := &recordingChannel{}
	body := `{"task_id":"t-1","title":"Pay rent","due_at":"2025-01-15T14:00:00Z","remind_at":"2025-01-15T13:30:00Z","user_id":"u-1"}`

	result := newNotifier(ch).Handle(context.Background(), []byte(body))

	assert.Equal(t, OutcomeSuccess, result.Outcome)
	require.Len(t, ch.sent, 1)
	assert.Equal(t, "t-1", ch.sent[0].TaskID)
	assert.Equal(t, "u-1", ch.sent[0].UserID)
	assert.Equal(t, "Reminder: Task 'Pay rent' is due on 2025-01-15 14:00 (reminder set for 2025-01-15 13:30)", ch.sent[0].Message)
}

func TestHandle_UnwrapsCloudEvent(t *testing.T) {
	ch := &recordingChannel{}
	body := `{"specversion":"1.0","topic":"reminders","data":{"task_id":"t-1","title":"Pay rent","remind_at":"2025-01-15T13:30:00Z","user_id":"u-1"}}`

	result := newNotifier(ch).Handle(context.Background(), []byte(body))

	assert.Equal(t, OutcomeSuccess, result.Outcome)
	require.Len(t, ch.sent, 1)
	assert.Equal(t, "Reminder: Task 'Pay rent' is due (reminder set for 2025-01-15 13:30)", ch.sent[0].Message)
}

func TestHandle_MissingRequiredFieldIsValidationError(t *testing.T) {
	bodies := map[string]string{
		"missing user_id":  `{"task_id":"t-1","title":"Pay rent","remind_at":"2025-01-15T13:30:00Z"}`,
		"blank user_id":    `{"task_id":"t-1","title":"Pay rent","user_id":"  "}`,
		"missing title":    `{"task_id":"t-1","user_id":"u-1"}`,
		"blank title":      `{"task_id":"t-1","title":" \t ","user_id":"u-1"}`,
		"missing task_id":  `{"title":"Pay rent","user_id":"u-1"}`,
		"not json":         `reminder!`,
		"wrong field type": `{"task_id":42,"title":"Pay rent","user_id":"u-1"}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			ch := &recordingChannel{}
			result := newNotifier(ch).Handle(context.Background(), []byte(body))

			assert.Equal(t, OutcomeValidationError, result.Outcome)
			assert.True(t, domain.IsDomainError(result.Err, domain.ErrCodeValidation))
			assert.Empty(t, ch.sent, "no dispatch attempts expected")
		})
	}
}

func TestHandle_TrimsTitle(t *testing.T) {
	ch := &recordingChannel{}
	body := `{"task_id":"t-1","title":"  Pay rent ","user_id":"u-1"}`

	result := newNotifier(ch).Handle(context.Background(), []byte(body))

	assert.Equal(t, OutcomeSuccess, result.Outcome)
	require.Len(t, ch.sent, 1)
	assert.Equal(t, "Pay rent", ch.sent[0].Title)
	assert.Equal(t, "Reminder: Task 'Pay rent' is due", ch.sent[0].Message)
}

func TestHandle_ChannelFailureIsDispatchError(t *testing.T) {
	ch := &recordingChannel{err: errors.New("smtp down")}
	body := `{"task_id":"t-1","title":"Pay rent","user_id":"u-1"}`

	result := newNotifier(ch).Handle(context.Background(), []byte(body))

	assert.Equal(t, OutcomeDispatchError, result.Outcome)
	assert.EqualError(t, result.Err, "smtp down")
	assert.Len(t, ch.sent, 1)
}

func TestHandle_RedeliveryResends(t *testing.T) {
	ch := &recordingChannel{}
	n := newNotifier(ch)
	body := []byte(`{"task_id":"t-1","title":"Pay rent","user_id":"u-1"}`)

	n.Handle(context.Background(), body)
	n.Handle(context.Background(), body)

	assert.Len(t, ch.sent, 2)
}

func TestFormatMessage(t *testing.T) {
	assert.Equal(t, "Reminder: Task 'A' is due", FormatMessage("A", "", ""))
	assert.Equal(t, "Reminder: Task 'A' is due on tomorrow", FormatMessage("A", "tomorrow", "garbage"))
	assert.Equal(t, "Reminder: Task 'A' is due on 2025-03-01 09:15", FormatMessage("A", "2025-03-01T09:15:00+02:00", ""))
	assert.Equal(t, "Reminder: Task 'A' is due on 2025-03-01 09:15", FormatMessage("A", "2025-03-01T09:15:00", ""))
}
