package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// GatewayProbe is satisfied by bus.Gateway.
type GatewayProbe interface {
	Healthy(ctx context.Context) bool
}

// OutboxProbe is satisfied by outbox.Store.
type OutboxProbe interface {
	Size() (int, error)
}

// Targets lists what to watch. Nil fields are skipped.
type Targets struct {
	Postgres *pgxpool.Pool
	Redis    *redislib.Client
	Gateway  GatewayProbe
	Outbox   OutboxProbe
}

type Monitor struct {
	targets Targets

	status   Status
	mu       sync.RWMutex
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

func New(targets Targets, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		targets:  targets,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
}

func (m *Monitor) Start() {
	go m.loop()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// IsOnline reports whether primary storage is reachable.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.PostgreSQL && m.status.Redis
}

// GatewayOnline reports whether the sidecar answered its last health probe.
func (m *Monitor) GatewayOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Gateway
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Refresh()
	for {
		select {
		case <-ticker.C:
			m.Refresh()
		case <-m.stopCh:
			return
		}
	}
}

// Refresh probes every target once and stores the result.
func (m *Monitor) Refresh() {
	outboxOK, outboxSize := m.checkOutbox()
	status := Status{
		PostgreSQL: m.checkPostgres(),
		Redis:      m.checkRedis(),
		Gateway:    m.checkGateway(),
		Outbox:     outboxOK,
		OutboxSize: outboxSize,
		LastCheck:  time.Now(),
	}

	m.mu.Lock()
	previous := m.status
	m.status = status
	m.mu.Unlock()

	if previous.Gateway != status.Gateway && !previous.LastCheck.IsZero() {
		m.logger.Info("gateway reachability changed", zap.Bool("online", status.Gateway))
	}
}

func (m *Monitor) checkPostgres() bool {
	if m.targets.Postgres == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return m.targets.Postgres.Ping(ctx) == nil
}

func (m *Monitor) checkRedis() bool {
	if m.targets.Redis == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return m.targets.Redis.Ping(ctx).Err() == nil
}

func (m *Monitor) checkGateway() bool {
	if m.targets.Gateway == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return m.targets.Gateway.Healthy(ctx)
}

func (m *Monitor) checkOutbox() (bool, int) {
	if m.targets.Outbox == nil {
		return false, 0
	}
	size, err := m.targets.Outbox.Size()
	if err != nil {
		m.logger.Warn("outbox size check failed", zap.Error(err))
		return false, size
	}
	return true, size
}
