package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/taskstream/api/transport"
	"github.com/fastygo/taskstream/domain"
	"github.com/fastygo/taskstream/internal/infrastructure/taskapi"
	"github.com/fastygo/taskstream/internal/middleware"
	"github.com/fastygo/taskstream/pkg/httpcontext"
	"github.com/fastygo/taskstream/repository"
	taskUC "github.com/fastygo/taskstream/usecase/task"
)

type TaskHandler struct {
	baseHandler
	uc *taskUC.UseCase
}

func NewTaskHandler(uc *taskUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary List tasks
// @Tags tasks
// @Router /api/v1/tasks [get]
func (h *TaskHandler) GetTasks(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}

	filter := repository.TaskFilter{
		UserID: userID,
		Limit:  parseInt(string(ctx.QueryArgs().Peek("limit")), 50),
		Offset: parseInt(string(ctx.QueryArgs().Peek("offset")), 0),
	}
	if raw := string(ctx.QueryArgs().Peek("completed")); raw != "" {
		completed, err := strconv.ParseBool(raw)
		if err != nil {
			h.respondInvalid(ctx, "completed must be true or false")
			return
		}
		filter.Completed = &completed
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	tasks, err := h.uc.ListTasks(stdCtx, filter)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, tasks)
}

// @Summary Get task
// @Tags tasks
// @Router /api/v1/tasks/{id} [get]
func (h *TaskHandler) GetTask(ctx *fasthttp.RequestCtx) {
	userID, id, ok := h.userAndTask(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	task, err := h.uc.GetTask(stdCtx, userID, id)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, task)
}

// @Summary Create task
// @Tags tasks
// @Router /api/v1/tasks [post]
func (h *TaskHandler) CreateTask(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}

	task, err := parseTask(ctx.PostBody(), userID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	key := strings.TrimSpace(string(ctx.Request.Header.Peek(taskapi.HeaderIdempotencyKey)))

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	created, err := h.uc.CreateTask(stdCtx, task, key)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, created)
}

// @Summary Update task
// @Tags tasks
// @Router /api/v1/tasks/{id} [put]
func (h *TaskHandler) UpdateTask(ctx *fasthttp.RequestCtx) {
	userID, id, ok := h.userAndTask(ctx)
	if !ok {
		return
	}

	patch, err := parsePatch(ctx.PostBody())
	if err != nil {
		h.respondError(ctx, err)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	updated, err := h.uc.UpdateTask(stdCtx, userID, id, patch)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, updated)
}

// @Summary Complete task
// @Tags tasks
// @Router /api/v1/tasks/{id}/complete [post]
func (h *TaskHandler) CompleteTask(ctx *fasthttp.RequestCtx) {
	userID, id, ok := h.userAndTask(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	task, err := h.uc.CompleteTask(stdCtx, userID, id)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, task)
}

// @Summary Delete task
// @Tags tasks
// @Router /api/v1/tasks/{id} [delete]
func (h *TaskHandler) DeleteTask(ctx *fasthttp.RequestCtx) {
	userID, id, ok := h.userAndTask(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.DeleteTask(stdCtx, userID, id); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusNoContent, nil)
}

// @Summary Attach tag
// @Tags tasks
// @Router /api/v1/tasks/{id}/tags [post]
func (h *TaskHandler) AddTag(ctx *fasthttp.RequestCtx) {
	userID, id, ok := h.userAndTask(ctx)
	if !ok {
		return
	}

	var req transport.TagRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.respondInvalid(ctx, "invalid payload")
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	task, err := h.uc.AddTag(stdCtx, userID, id, req.Name)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, task)
}

// @Summary Detach tag
// @Tags tasks
// @Router /api/v1/tasks/{id}/tags/{name} [delete]
func (h *TaskHandler) RemoveTag(ctx *fasthttp.RequestCtx) {
	userID, id, ok := h.userAndTask(ctx)
	if !ok {
		return
	}
	name, _ := ctx.UserValue("name").(string)

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	task, err := h.uc.RemoveTag(stdCtx, userID, id, name)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, task)
}

func parseTask(body []byte, userID string) (*domain.Task, error) {
	var req transport.TaskRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, domain.WrapError(domain.ErrCodeInvalid, "invalid payload", err)
	}

	priority, err := domain.ParsePriority(req.Priority)
	if err != nil {
		return nil, err
	}
	recurrence, err := domain.ParseRecurrence(req.Recurrence)
	if err != nil {
		return nil, err
	}
	due, err := parseTimestamp("due_date", req.DueDate)
	if err != nil {
		return nil, err
	}
	remind, err := parseTimestamp("remind_at", req.RemindAt)
	if err != nil {
		return nil, err
	}

	task := &domain.Task{
		UserID:     userID,
		Title:      req.Title,
		Priority:   priority,
		Recurrence: recurrence,
		DueDate:    due,
		RemindAt:   remind,
		Tags:       req.Tags,
	}
	if req.Description != nil && *req.Description != "" {
		task.Description = req.Description
	}
	if parent := strings.TrimSpace(req.ParentTaskID); parent != "" {
		task.ParentTaskID = &parent
	}
	return task, nil
}

func parsePatch(body []byte) (taskUC.Patch, error) {
	var req transport.TaskUpdateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return taskUC.Patch{}, domain.WrapError(domain.ErrCodeInvalid, "invalid payload", err)
	}

	patch := taskUC.Patch{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Recurrence:  req.Recurrence,
		IsCompleted: req.IsCompleted,
	}
	if req.DueDate != nil {
		due, err := parseTimestamp("due_date", *req.DueDate)
		if err != nil {
			return taskUC.Patch{}, err
		}
		patch.DueDate = due
		patch.ClearDueDate = due == nil
	}
	if req.RemindAt != nil {
		remind, err := parseTimestamp("remind_at", *req.RemindAt)
		if err != nil {
			return taskUC.Patch{}, err
		}
		patch.RemindAt = remind
		patch.ClearRemindAt = remind == nil
	}
	return patch, nil
}

func parseTimestamp(field, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, domain.NewError(domain.ErrCodeInvalid, field+" must be an RFC3339 timestamp")
	}
	parsed = parsed.UTC()
	return &parsed, nil
}

func (h *TaskHandler) userAndTask(ctx *fasthttp.RequestCtx) (string, string, bool) {
	userID := h.userID(ctx)
	if userID == "" {
		return "", "", false
	}
	id, _ := ctx.UserValue("id").(string)
	if id == "" {
		h.respondInvalid(ctx, "missing task id")
		return "", "", false
	}
	return userID, id, true
}

func (h *TaskHandler) userID(ctx *fasthttp.RequestCtx) string {
	userID := string(ctx.Request.Header.Peek(middleware.HeaderUserID))
	if userID == "" {
		h.respondJSON(ctx, http.StatusUnauthorized, transport.NewError(string(domain.ErrCodeUnauthorized), "missing user id", nil))
	}
	return userID
}

func parseInt(value string, fallback int) int {
	if v, err := strconv.Atoi(value); err == nil {
		return v
	}
	return fallback
}
