package handler

import (
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/taskstream/internal/middleware"
	"github.com/fastygo/taskstream/pkg/httpcontext"
	"github.com/fastygo/taskstream/usecase/reactivation"
)

// TaskEventHandler receives task-events deliveries for the recurring service.
type TaskEventHandler struct {
	baseHandler
	reactivator *reactivation.Reactivator
}

func NewTaskEventHandler(r *reactivation.Reactivator, adapter *httpcontext.Adapter, logger *zap.Logger) *TaskEventHandler {
	return &TaskEventHandler{
		baseHandler: newBaseHandler(adapter, logger),
		reactivator: r,
	}
}

// @Summary Handle task lifecycle event
// @Tags events
// @Router /api/events/task [post]
func (h *TaskEventHandler) Handle(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	result := h.reactivator.Handle(stdCtx, ctx.PostBody(), middleware.BearerToken(ctx))
	h.respondDelivery(ctx, result.Delivery(), result.Reason)
}
