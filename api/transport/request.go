package transport

// TaskRequest is the create payload. Timestamps are RFC3339.
type TaskRequest struct {
	Title        string   `json:"title"`
	Description  *string  `json:"description"`
	Priority     string   `json:"priority"`
	Recurrence   string   `json:"recurrence"`
	DueDate      string   `json:"due_date"`
	RemindAt     string   `json:"remind_at"`
	ParentTaskID string   `json:"parent_task_id"`
	Tags         []string `json:"tags"`
}

// TaskUpdateRequest is a partial update. Absent fields are unchanged; an
// empty string clears description, due_date and remind_at.
type TaskUpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Priority    *string `json:"priority"`
	Recurrence  *string `json:"recurrence"`
	DueDate     *string `json:"due_date"`
	RemindAt    *string `json:"remind_at"`
	IsCompleted *bool   `json:"is_completed"`
}

type TagRequest struct {
	Name string `json:"name"`
}
