package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTask() *Task {
	due := time.Date(2025, 1, 8, 9, 0, 0, 0, time.FixedZone("UTC+2", 2*3600))
	return &Task{
		ID:          "t-1",
		UserID:      "u-1",
		Title:       "Water plants",
		IsCompleted: true,
		Priority:    PriorityHigh,
		DueDate:     &due,
		Recurrence:  RecurrenceWeekly,
		CreatedAt:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC),
	}
}

func TestNewTaskLifecycleEvent(t *testing.T) {
	at := time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC)
	event, err := NewTaskLifecycleEvent(EventCompleted, SnapshotFromTask(sampleTask()), "u-1", at)
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "task.completed", event.EventType)
	assert.Equal(t, EventCompleted, event.Kind())
	assert.Equal(t, "t-1", event.TaskID)
	assert.Equal(t, SchemaVersion, event.SchemaVersion)
	assert.Equal(t, time.UTC, event.TaskData.DueDate.Location())
}

func TestNewTaskLifecycleEvent_Rejects(t *testing.T) {
	_, err := NewTaskLifecycleEvent("archived", SnapshotFromTask(sampleTask()), "u-1", time.Now())
	assert.True(t, IsDomainError(err, ErrCodeValidation))

	_, err = NewTaskLifecycleEvent(EventCreated, SnapshotFromTask(sampleTask()), "", time.Now())
	assert.True(t, IsDomainError(err, ErrCodeValidation))
}

func TestTaskLifecycleEvent_WireShape(t *testing.T) {
	event, err := NewTaskLifecycleEvent(EventCreated, SnapshotFromTask(&Task{ID: "t-1", Title: "A"}), "u-1", time.Now())
	require.NoError(t, err)

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(payload, &wire))
	data := wire["task_data"].(map[string]any)

	assert.Equal(t, []any{}, data["tags"], "tags serialize as an empty list")
	assert.Contains(t, data, "due_date")
	assert.Nil(t, data["due_date"], "absent optionals serialize as null")
	assert.Nil(t, data["description"])

	decoded, err := DecodeTaskLifecycleEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, event.TaskID, decoded.TaskID)
	assert.Equal(t, event.TaskData.Tags, decoded.TaskData.Tags)
}

func TestTaskLifecycleEvent_RoundTripKeepsSnapshot(t *testing.T) {
	description := "Front and back garden"
	parent := "t-0"
	due := time.Date(2025, 1, 8, 9, 0, 0, 0, time.UTC)
	remind := due.Add(-30 * time.Minute)

	cases := []struct {
		name     string
		snapshot TaskSnapshot
	}{
		{"populated", TaskSnapshot{
			ID:           "t-1",
			Title:        "Water plants",
			Description:  &description,
			IsCompleted:  true,
			Priority:     PriorityHigh,
			DueDate:      &due,
			RemindAt:     &remind,
			Recurrence:   RecurrenceWeekly,
			ParentTaskID: &parent,
			Tags:         []string{"garden", "home"},
			CreatedAt:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			UpdatedAt:    time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC),
		}},
		{"empty", SnapshotFromTask(&Task{ID: "t-2"})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event, err := NewTaskLifecycleEvent(EventUpdated, tc.snapshot, "u-1", time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC))
			require.NoError(t, err)

			payload, err := json.Marshal(event)
			require.NoError(t, err)
			decoded, err := DecodeTaskLifecycleEvent(payload)
			require.NoError(t, err)

			assert.Equal(t, event.TaskData, decoded.TaskData)
			assert.Equal(t, event.EventID, decoded.EventID)
			assert.Equal(t, event.EventType, decoded.EventType)
			assert.Equal(t, event.UserID, decoded.UserID)
		})
	}
}

func TestDecodeTaskLifecycleEvent(t *testing.T) {
	t.Run("missing version reads as current", func(t *testing.T) {
		event, err := DecodeTaskLifecycleEvent([]byte(`{"event_type":"task.created","task_id":"t-1","user_id":"u-1","task_data":{"id":"t-1"}}`))
		require.NoError(t, err)
		assert.Equal(t, SchemaVersion, event.SchemaVersion)
	})

	t.Run("snapshot must match task id", func(t *testing.T) {
		_, err := DecodeTaskLifecycleEvent([]byte(`{"event_type":"task.created","task_id":"t-1","user_id":"u-1","task_data":{"id":"t-9"}}`))
		assert.True(t, IsDomainError(err, ErrCodeValidation))
	})

	t.Run("bad json", func(t *testing.T) {
		_, err := DecodeTaskLifecycleEvent([]byte(`[`))
		assert.True(t, IsDomainError(err, ErrCodeValidation))
	})
}

func TestSnapshotFromTask_IsDetached(t *testing.T) {
	task := sampleTask()
	task.Tags = []string{"home"}
	snapshot := SnapshotFromTask(task)

	task.Tags[0] = "work"
	moved := task.DueDate.Add(time.Hour)
	*task.DueDate = moved

	assert.Equal(t, []string{"home"}, snapshot.Tags)
	assert.False(t, snapshot.DueDate.Equal(moved))
}

func TestNewReminderDueEvent(t *testing.T) {
	task := sampleTask()
	remind := time.Date(2025, 1, 8, 8, 30, 0, 0, time.UTC)
	task.RemindAt = &remind

	event, err := NewReminderDueEvent(task)
	require.NoError(t, err)
	assert.Equal(t, "t-1", event.TaskID)
	assert.Equal(t, "u-1", event.UserID)
	assert.True(t, remind.Equal(*event.RemindAt))

	task.RemindAt = nil
	_, err = NewReminderDueEvent(task)
	assert.True(t, IsDomainError(err, ErrCodeValidation))
}

func TestTaskValidate(t *testing.T) {
	long := strings.Repeat("x", MaxDescriptionLength+1)
	cases := []struct {
		name  string
		task  Task
		valid bool
	}{
		{"ok", Task{Title: "A", Priority: PriorityLow, Recurrence: RecurrenceNone}, true},
		{"blank title", Task{Title: "  ", Priority: PriorityLow, Recurrence: RecurrenceNone}, false},
		{"long title", Task{Title: strings.Repeat("x", MaxTitleLength+1), Priority: PriorityLow, Recurrence: RecurrenceNone}, false},
		{"long description", Task{Title: "A", Description: &long, Priority: PriorityLow, Recurrence: RecurrenceNone}, false},
		{"bad priority", Task{Title: "A", Priority: "urgent", Recurrence: RecurrenceNone}, false},
		{"bad recurrence", Task{Title: "A", Priority: PriorityLow, Recurrence: "yearly"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.task.Validate()
			if tc.valid {
				assert.NoError(t, err)
				return
			}
			assert.True(t, IsDomainError(err, ErrCodeInvalid))
		})
	}
}

func TestTaskReminderDue(t *testing.T) {
	ref := time.Date(2025, 1, 8, 9, 0, 0, 0, time.UTC)
	past := ref.Add(-time.Minute)
	future := ref.Add(time.Minute)

	assert.True(t, (&Task{RemindAt: &past}).ReminderDue(ref))
	assert.True(t, (&Task{RemindAt: &ref}).ReminderDue(ref))
	assert.False(t, (&Task{RemindAt: &future}).ReminderDue(ref))
	assert.False(t, (&Task{RemindAt: &past, ReminderSent: true}).ReminderDue(ref))
	assert.False(t, (&Task{RemindAt: &past, IsCompleted: true}).ReminderDue(ref))
	assert.False(t, (&Task{}).ReminderDue(ref))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(NewError(ErrCodeTransport, "x")))
	assert.True(t, IsRetryable(assert.AnError))
	assert.False(t, IsRetryable(ErrMalformedEnvelope))
	assert.False(t, IsRetryable(NewError(ErrCodeUpstreamRejected, "x")))
	assert.False(t, IsRetryable(ErrNoCredential))
	assert.False(t, IsRetryable(ErrDuplicateRequest))
}
