package taskapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/taskstream/domain"
	"github.com/fastygo/taskstream/pkg/httpclient"
)

const (
	tasksPath = "/api/v1/tasks"

	// HeaderIdempotencyKey lets the task service admit a creation once.
	HeaderIdempotencyKey = "Idempotency-Key"
)

// CreateTaskRequest is the body of the creation call.
type CreateTaskRequest struct {
	Title        string            `json:"title"`
	Description  *string           `json:"description"`
	Priority     domain.Priority   `json:"priority"`
	Recurrence   domain.Recurrence `json:"recurrence"`
	DueDate      *time.Time        `json:"due_date,omitempty"`
	ParentTaskID string            `json:"parent_task_id,omitempty"`
}

// Client calls the task-owning service on behalf of a user.
type Client struct {
	http    httpclient.Doer
	baseURL string
	timeout time.Duration
	logger  *zap.Logger
}

func New(doer httpclient.Doer, baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:    doer,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		logger:  logger,
	}
}

// CreateTask posts a new task and returns the stored representation.
func (c *Client) CreateTask(ctx context.Context, token, idempotencyKey string, body CreateTaskRequest) (*domain.Task, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeValidation, "encode task", err)
	}

	respBody, err := c.post(ctx, c.baseURL+tasksPath, token, idempotencyKey, payload)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data domain.Task `json:"data"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, domain.WrapError(domain.ErrCodeTransport, "decode created task", err)
	}
	if envelope.Data.ID == "" {
		return nil, domain.NewError(domain.ErrCodeTransport, "created task has no id")
	}
	return &envelope.Data, nil
}

// AttachTag adds one tag to an existing task.
func (c *Client) AttachTag(ctx context.Context, token, taskID, name string) error {
	payload, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return err
	}
	target := fmt.Sprintf("%s%s/%s/tags", c.baseURL, tasksPath, url.PathEscape(taskID))
	_, err = c.post(ctx, target, token, "", payload)
	return err
}

func (c *Client) post(ctx context.Context, target, token, idempotencyKey string, payload []byte) ([]byte, error) {
	timeout, err := httpclient.Timeout(ctx, c.timeout)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeTransport, "call task service", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(target)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if idempotencyKey != "" {
		req.Header.Set(HeaderIdempotencyKey, idempotencyKey)
	}
	req.SetBody(payload)

	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		return nil, domain.WrapError(domain.ErrCodeTransport, "call task service", err)
	}

	status := resp.StatusCode()
	if httpclient.IsSuccess(status) {
		return append([]byte(nil), resp.Body()...), nil
	}
	return nil, classify(status, resp.Body())
}

// classify turns a non-2xx answer into the pipeline taxonomy. A 4xx will
// not change on redelivery, except for throttling and request timeouts.
func classify(status int, body []byte) error {
	cause := fmt.Errorf("task service responded %d: %s", status, strings.TrimSpace(string(body)))
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return domain.WrapError(domain.ErrCodeTransport, "task service busy", cause)
	case status >= 400 && status < 500:
		return domain.WrapError(domain.ErrCodeUpstreamRejected, "task service rejected request", cause)
	default:
		return domain.WrapError(domain.ErrCodeTransport, "task service unavailable", cause)
	}
}
