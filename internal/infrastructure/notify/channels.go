package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/taskstream/domain"
	"github.com/fastygo/taskstream/pkg/httpclient"
)

const (
	ChannelLog     = "log"
	ChannelWebhook = "webhook"
)

// LogChannel "sends" notifications by writing them to the service log.
type LogChannel struct {
	logger *zap.Logger
}

func NewLogChannel(logger *zap.Logger) *LogChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Name() string { return ChannelLog }

func (c *LogChannel) Send(_ context.Context, n domain.Notification) error {
	c.logger.Info("notification",
		zap.String("user_id", n.UserID),
		zap.String("task_id", n.TaskID),
		zap.String("message", n.Message))
	return nil
}

// WebhookChannel posts notifications as JSON to an external endpoint
// (an email, SMS or push relay).
type WebhookChannel struct {
	client  httpclient.Doer
	url     string
	timeout time.Duration
}

func NewWebhookChannel(client httpclient.Doer, url string, timeout time.Duration) *WebhookChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookChannel{client: client, url: url, timeout: timeout}
}

func (c *WebhookChannel) Name() string { return ChannelWebhook }

func (c *WebhookChannel) Send(ctx context.Context, n domain.Notification) error {
	timeout, err := httpclient.Timeout(ctx, c.timeout)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	if err := c.client.DoTimeout(req, resp, timeout); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	if status := resp.StatusCode(); !httpclient.IsSuccess(status) {
		return fmt.Errorf("webhook responded %d", status)
	}
	return nil
}
