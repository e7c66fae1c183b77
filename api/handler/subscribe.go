package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"

	"github.com/fastygo/taskstream/internal/infrastructure/bus"
)

// SubscriptionHandler tells the gateway which topics a consumer wants.
type SubscriptionHandler struct {
	baseHandler
	subscriptions []bus.Subscription
}

func NewSubscriptionHandler(subs ...bus.Subscription) *SubscriptionHandler {
	if subs == nil {
		subs = []bus.Subscription{}
	}
	return &SubscriptionHandler{
		baseHandler:   newBaseHandler(nil, nil),
		subscriptions: subs,
	}
}

// @Summary Programmatic subscriptions
// @Tags events
// @Router /dapr/subscribe [get]
func (h *SubscriptionHandler) Subscribe(ctx *fasthttp.RequestCtx) {
	h.writeJSON(ctx, http.StatusOK, h.subscriptions)
}
