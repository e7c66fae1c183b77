package handler

import (
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/taskstream/api/transport"
	"github.com/fastygo/taskstream/internal/infrastructure/monitor"
	"github.com/fastygo/taskstream/pkg/httpcontext"
)

// ServiceInfo identifies the process in health responses.
type ServiceInfo struct {
	Name    string
	Version string
	// RequireStorage makes Postgres and Redis part of the verdict.
	RequireStorage bool
}

type HealthHandler struct {
	baseHandler
	monitor *monitor.Monitor
	info    ServiceInfo
}

func NewHealthHandler(mon *monitor.Monitor, info ServiceInfo, adapter *httpcontext.Adapter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		baseHandler: newBaseHandler(adapter, logger),
		monitor:     mon,
		info:        info,
	}
}

// @Summary Health check
// @Tags health
// @Router /health [get]
func (h *HealthHandler) Check(ctx *fasthttp.RequestCtx) {
	status := h.monitor.GetStatus()
	services := map[string]interface{}{
		"gateway": status.Gateway,
	}
	if h.info.RequireStorage {
		services["postgresql"] = status.PostgreSQL
		services["redis"] = status.Redis
		services["outbox"] = map[string]interface{}{
			"online": status.Outbox,
			"size":   status.OutboxSize,
		}
	}
	payload := map[string]interface{}{
		"service":   h.info.Name,
		"version":   h.info.Version,
		"timestamp": time.Now().UTC(),
		"services":  services,
	}

	if !h.info.RequireStorage || (status.PostgreSQL && status.Redis) {
		payload["status"] = "healthy"
		h.respondSuccess(ctx, http.StatusOK, payload)
		return
	}
	payload["status"] = "degraded"
	h.respondJSON(ctx, http.StatusServiceUnavailable, transport.NewError("DEGRADED", "dependencies unhealthy", payload))
}
