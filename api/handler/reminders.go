package handler

import (
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/taskstream/internal/infrastructure/bus"
	"github.com/fastygo/taskstream/pkg/httpcontext"
	"github.com/fastygo/taskstream/usecase/reminder"
)

// ReminderHandler receives reminders deliveries for the notification service.
type ReminderHandler struct {
	baseHandler
	notifier *reminder.Notifier
}

func NewReminderHandler(n *reminder.Notifier, adapter *httpcontext.Adapter, logger *zap.Logger) *ReminderHandler {
	return &ReminderHandler{
		baseHandler: newBaseHandler(adapter, logger),
		notifier:    n,
	}
}

// @Summary Handle reminder event
// @Tags events
// @Router /api/reminders/handle [post]
func (h *ReminderHandler) Handle(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	result := h.notifier.Handle(stdCtx, ctx.PostBody())
	switch result.Outcome {
	case reminder.OutcomeSuccess:
		h.respondDelivery(ctx, bus.Success, "")
	case reminder.OutcomeValidationError:
		h.respondDelivery(ctx, bus.Drop, "invalid reminder event")
	default:
		h.respondDelivery(ctx, bus.Retry, "notification dispatch failed")
	}
}
