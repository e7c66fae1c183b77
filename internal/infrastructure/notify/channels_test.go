package notify

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fastygo/taskstream/domain"
)

var sample = domain.Notification{
	TaskID:    "t-1",
	UserID:    "u-1",
	Title:     "Pay rent",
	Message:   "Reminder: Task 'Pay rent' is due",
	CreatedAt: time.Date(2025, 1, 8, 9, 0, 0, 0, time.UTC),
}

func webhook(t *testing.T, status int) (*fasthttp.Client, chan []byte) {
	t.Helper()
	bodies := make(chan []byte, 1)
	ln := fasthttputil.NewInmemoryListener()
	server := &fasthttp.Server{Handler: func(ctx *fasthttp.RequestCtx) {
		bodies <- append([]byte(nil), ctx.PostBody()...)
		ctx.SetStatusCode(status)
	}}
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() { _ = server.Shutdown() })

	return &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}, bodies
}

func TestLogChannel(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ch := NewLogChannel(zap.New(core))

	require.NoError(t, ch.Send(context.Background(), sample))
	assert.Equal(t, ChannelLog, ch.Name())

	entries := logs.FilterMessage("notification").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "t-1", entries[0].ContextMap()["task_id"])
	assert.Equal(t, sample.Message, entries[0].ContextMap()["message"])
}

func TestWebhookChannel_PostsNotification(t *testing.T) {
	client, bodies := webhook(t, fasthttp.StatusAccepted)
	ch := NewWebhookChannel(client, "http://relay/notify", time.Second)

	require.NoError(t, ch.Send(context.Background(), sample))

	var got domain.Notification
	require.NoError(t, json.Unmarshal(<-bodies, &got))
	assert.Equal(t, sample.TaskID, got.TaskID)
	assert.Equal(t, sample.Message, got.Message)
	assert.True(t, sample.CreatedAt.Equal(got.CreatedAt))
}

func TestWebhookChannel_NonSuccessFails(t *testing.T) {
	client, _ := webhook(t, fasthttp.StatusBadGateway)
	ch := NewWebhookChannel(client, "http://relay/notify", time.Second)

	err := ch.Send(context.Background(), sample)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhookChannel_ExpiredContext(t *testing.T) {
	client, bodies := webhook(t, fasthttp.StatusOK)
	ch := NewWebhookChannel(client, "http://relay/notify", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, ch.Send(ctx, sample))
	assert.Empty(t, bodies)
}
