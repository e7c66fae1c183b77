package services

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/fastygo/taskstream/domain"
	"github.com/fastygo/taskstream/internal/infrastructure/bus"
	"github.com/fastygo/taskstream/internal/infrastructure/outbox"
	"github.com/fastygo/taskstream/pkg/clock"
)

type fakeGateway struct {
	status atomic.Int32
	calls  atomic.Int32

	mu     sync.Mutex
	paths  []string
	bodies [][]byte
}

func startFakeGateway(t *testing.T, status int) (*bus.Gateway, *fakeGateway) {
	t.Helper()
	fake := &fakeGateway{}
	fake.status.Store(int32(status))

	ln := fasthttputil.NewInmemoryListener()
	server := &fasthttp.Server{Handler: func(ctx *fasthttp.RequestCtx) {
		fake.calls.Add(1)
		fake.mu.Lock()
		fake.paths = append(fake.paths, string(ctx.Path()))
		fake.bodies = append(fake.bodies, append([]byte(nil), ctx.PostBody()...))
		fake.mu.Unlock()
		ctx.SetStatusCode(int(fake.status.Load()))
	}}
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	client := &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}
	gw := bus.NewGateway(client, bus.GatewayConfig{PubsubName: "kafka-pubsub", Timeout: time.Second}, nil)
	return gw, fake
}

func (f *fakeGateway) lastBody(t *testing.T) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.bodies)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(f.bodies[len(f.bodies)-1], &decoded))
	return decoded
}

type recordingSpool struct {
	mu         sync.Mutex
	topics     []string
	priorities []outbox.Priority
}

func (s *recordingSpool) Spool(topic string, _ []byte, priority outbox.Priority) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = append(s.topics, topic)
	s.priorities = append(s.priorities, priority)
	return nil
}

var publishedAt = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func snapshot() domain.TaskSnapshot {
	return domain.SnapshotFromTask(&domain.Task{
		ID:         "t-1",
		UserID:     "u-1",
		Title:      "Water plants",
		Priority:   domain.PriorityMedium,
		Recurrence: domain.RecurrenceWeekly,
	})
}

func TestPublish_SendsEnvelope(t *testing.T) {
	gw, fake := startFakeGateway(t, http.StatusNoContent)
	p := NewEventPublisher(gw, nil, PublisherConfig{Enabled: true}, clock.NewFake(publishedAt), nil)

	ok := p.Publish(context.Background(), domain.EventCompleted, snapshot(), "u-1")

	assert.True(t, ok)
	assert.EqualValues(t, 1, fake.calls.Load())
	assert.Equal(t, []string{"/v1.0/publish/kafka-pubsub/task-events"}, fake.paths)

	body := fake.lastBody(t)
	assert.Equal(t, "task.completed", body["event_type"])
	assert.Equal(t, "t-1", body["task_id"])
	assert.Equal(t, "u-1", body["user_id"])
	assert.Equal(t, "1.0", body["schema_version"])
	assert.Equal(t, "2025-01-10T12:00:00Z", body["timestamp"])
	assert.Equal(t, []any{}, body["task_data"].(map[string]any)["tags"])
}

func TestPublish_Disabled(t *testing.T) {
	gw, fake := startFakeGateway(t, http.StatusOK)
	p := NewEventPublisher(gw, nil, PublisherConfig{Enabled: false}, nil, nil)

	assert.True(t, p.Publish(context.Background(), domain.EventCreated, snapshot(), "u-1"))
	assert.True(t, p.PublishReminder(context.Background(), &domain.ReminderDueEvent{TaskID: "t-1"}))
	assert.Zero(t, fake.calls.Load())
}

func TestPublish_GatewayFailure(t *testing.T) {
	gw, fake := startFakeGateway(t, http.StatusInternalServerError)
	spool := &recordingSpool{}
	p := NewEventPublisher(gw, spool, PublisherConfig{Enabled: true}, nil, nil)

	ok := p.Publish(context.Background(), domain.EventUpdated, snapshot(), "u-1")

	assert.False(t, ok)
	assert.EqualValues(t, 1, fake.calls.Load(), "no retries inside the publisher")
	assert.Equal(t, []string{bus.TopicTaskEvents}, spool.topics)
	assert.Equal(t, []outbox.Priority{outbox.PriorityNormal}, spool.priorities)
}

func TestPublish_SpoolsByEventKind(t *testing.T) {
	gw, _ := startFakeGateway(t, http.StatusServiceUnavailable)
	spool := &recordingSpool{}
	p := NewEventPublisher(gw, spool, PublisherConfig{Enabled: true}, nil, nil)

	for _, kind := range []domain.EventKind{domain.EventCreated, domain.EventCompleted, domain.EventDeleted} {
		assert.False(t, p.Publish(context.Background(), kind, snapshot(), "u-1"))
	}

	assert.Equal(t, []outbox.Priority{outbox.PriorityNormal, outbox.PriorityHigh, outbox.PriorityLow}, spool.priorities)
}

func TestPublish_InvalidEventIsNotSent(t *testing.T) {
	gw, fake := startFakeGateway(t, http.StatusOK)
	p := NewEventPublisher(gw, nil, PublisherConfig{Enabled: true}, nil, nil)

	assert.False(t, p.Publish(context.Background(), domain.EventCreated, snapshot(), ""))
	assert.Zero(t, fake.calls.Load())
}

func TestPublishReminder(t *testing.T) {
	gw, fake := startFakeGateway(t, http.StatusOK)
	spool := &recordingSpool{}
	p := NewEventPublisher(gw, spool, PublisherConfig{Enabled: true}, nil, nil)
	remind := publishedAt

	ok := p.PublishReminder(context.Background(), &domain.ReminderDueEvent{
		TaskID: "t-1", Title: "Water plants", RemindAt: &remind, UserID: "u-1",
	})

	assert.True(t, ok)
	assert.Equal(t, []string{"/v1.0/publish/kafka-pubsub/reminders"}, fake.paths)
	body := fake.lastBody(t)
	assert.Equal(t, "Water plants", body["title"])

	fake.status.Store(http.StatusBadGateway)
	assert.False(t, p.PublishReminder(context.Background(), &domain.ReminderDueEvent{TaskID: "t-2", RemindAt: &remind}))
	assert.Empty(t, spool.topics, "reminders are not spooled")
}

func TestDispatch_WaitDrainsInFlight(t *testing.T) {
	gw, fake := startFakeGateway(t, http.StatusOK)
	p := NewEventPublisher(gw, nil, PublisherConfig{Enabled: true, Timeout: time.Second}, nil, nil)

	for i := 0; i < 5; i++ {
		p.Dispatch(domain.EventCreated, snapshot(), "u-1")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Wait(ctx))
	assert.EqualValues(t, 5, fake.calls.Load())
}

func TestOutboxProcessor_DrainResends(t *testing.T) {
	gw, fake := startFakeGateway(t, http.StatusServiceUnavailable)
	store, err := outbox.Open(filepath.Join(t.TempDir(), "outbox.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	processor := NewOutboxProcessor(store, nil, gw, nil, ProcessorConfig{MaxRetries: 2})
	p := NewEventPublisher(gw, processor, PublisherConfig{Enabled: true}, nil, nil)

	assert.False(t, p.Publish(context.Background(), domain.EventCreated, snapshot(), "u-1"))
	assert.Equal(t, 1, processor.Size())

	fake.status.Store(http.StatusOK)
	require.NoError(t, processor.Drain(context.Background()))

	assert.Equal(t, 0, processor.Size())
	assert.EqualValues(t, 2, fake.calls.Load())
	assert.Equal(t, "task.created", fake.lastBody(t)["event_type"])
}

func TestOutboxProcessor_DrainsCompletionsFirst(t *testing.T) {
	gw, fake := startFakeGateway(t, http.StatusServiceUnavailable)
	store, err := outbox.Open(filepath.Join(t.TempDir(), "outbox.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	processor := NewOutboxProcessor(store, nil, gw, nil, ProcessorConfig{})
	p := NewEventPublisher(gw, processor, PublisherConfig{Enabled: true}, nil, nil)
	for _, kind := range []domain.EventKind{domain.EventDeleted, domain.EventUpdated, domain.EventCompleted} {
		p.Publish(context.Background(), kind, snapshot(), "u-1")
	}
	require.Equal(t, 3, processor.Size())

	fake.status.Store(http.StatusOK)
	require.NoError(t, processor.Drain(context.Background()))

	var order []any
	for _, body := range fake.bodies[3:] {
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(body, &decoded))
		order = append(order, decoded["event_type"])
	}
	assert.Equal(t, []any{"task.completed", "task.updated", "task.deleted"}, order)
}

func TestOutboxProcessor_DropsAfterMaxRetries(t *testing.T) {
	gw, _ := startFakeGateway(t, http.StatusInternalServerError)
	store, err := outbox.Open(filepath.Join(t.TempDir(), "outbox.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	processor := NewOutboxProcessor(store, nil, gw, nil, ProcessorConfig{MaxRetries: 2})
	require.NoError(t, processor.Spool(bus.TopicTaskEvents, []byte(`{"task_id":"t-1"}`), outbox.PriorityNormal))

	require.NoError(t, processor.Drain(context.Background()))
	assert.Equal(t, 1, processor.Size(), "requeued after first failure")

	require.NoError(t, processor.Drain(context.Background()))
	assert.Equal(t, 0, processor.Size(), "dropped once retries are exhausted")
}

type offline struct{}

func (offline) GatewayOnline() bool { return false }

func TestOutboxProcessor_SkipsWhileGatewayOffline(t *testing.T) {
	gw, fake := startFakeGateway(t, http.StatusOK)
	store, err := outbox.Open(filepath.Join(t.TempDir(), "outbox.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	processor := NewOutboxProcessor(store, offline{}, gw, nil, ProcessorConfig{})
	require.NoError(t, processor.Spool(bus.TopicTaskEvents, []byte(`{}`), outbox.PriorityNormal))

	require.NoError(t, processor.Drain(context.Background()))
	assert.Zero(t, fake.calls.Load())
	assert.Equal(t, 1, processor.Size())
}
