package bus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/taskstream/domain"
	"github.com/fastygo/taskstream/pkg/httpclient"
)

// Fixed topics of the pipeline.
const (
	TopicTaskEvents = "task-events"
	TopicReminders  = "reminders"
)

// GatewayConfig locates the side-car gateway.
type GatewayConfig struct {
	Host       string
	Port       int
	PubsubName string
	Timeout    time.Duration
}

// Gateway publishes to the broker through the local side-car HTTP API.
// Delivery to subscribers is at-least-once; retries are the gateway's job.
type Gateway struct {
	client  httpclient.Doer
	baseURL string
	pubsub  string
	timeout time.Duration
	logger  *zap.Logger
}

func NewGateway(client httpclient.Doer, cfg GatewayConfig, logger *zap.Logger) *Gateway {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port <= 0 {
		cfg.Port = 3500
	}
	if cfg.PubsubName == "" {
		cfg.PubsubName = "kafka-pubsub"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		client:  client,
		baseURL: fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		pubsub:  cfg.PubsubName,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// PubsubName is the channel name subscriptions must refer to.
func (g *Gateway) PubsubName() string {
	return g.pubsub
}

// PublishURL returns the endpoint a topic is published to.
func (g *Gateway) PublishURL(topic string) string {
	return fmt.Sprintf("%s/v1.0/publish/%s/%s", g.baseURL, g.pubsub, strings.TrimPrefix(topic, "/"))
}

// Publish posts payload to topic. Network errors, timeouts and non-2xx
// answers all come back as TRANSPORT errors.
func (g *Gateway) Publish(ctx context.Context, topic string, payload []byte) error {
	timeout, err := httpclient.Timeout(ctx, g.timeout)
	if err != nil {
		return domain.WrapError(domain.ErrCodeTransport, "publish to "+topic, err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(g.PublishURL(topic))
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	if err := g.client.DoTimeout(req, resp, timeout); err != nil {
		return domain.WrapError(domain.ErrCodeTransport, "publish to "+topic, err)
	}
	if status := resp.StatusCode(); !httpclient.IsSuccess(status) {
		return domain.WrapError(domain.ErrCodeTransport, "publish to "+topic,
			fmt.Errorf("gateway responded %d: %s", status, truncate(resp.Body(), 256)))
	}

	g.logger.Debug("message published", zap.String("topic", topic), zap.Int("bytes", len(payload)))
	return nil
}

// Healthy probes the gateway's health endpoint.
func (g *Gateway) Healthy(ctx context.Context) bool {
	timeout, err := httpclient.Timeout(ctx, 2*time.Second)
	if err != nil {
		return false
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(g.baseURL + "/v1.0/healthz")
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := g.client.DoTimeout(req, resp, timeout); err != nil {
		return false
	}
	return httpclient.IsSuccess(resp.StatusCode())
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
