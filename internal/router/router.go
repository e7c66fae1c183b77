package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/fastygo/taskstream/api/handler"
	"github.com/fastygo/taskstream/internal/middleware"
	"github.com/fastygo/taskstream/usecase/auth"
)

const (
	RouteTaskEvents = "/api/events/task"
	RouteReminders  = "/api/reminders/handle"
	RouteSubscribe  = "/dapr/subscribe"
)

// TaskAPIHandlers serve the owning task service.
type TaskAPIHandlers struct {
	Task   *apiHandler.TaskHandler
	Health *apiHandler.HealthHandler
}

func NewTaskAPI(handlers TaskAPIHandlers, authMiddleware func(fasthttp.RequestHandler) fasthttp.RequestHandler) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)

	// User tokens reach every route; service tokens scoped to task creation
	// only reach the calls a reactivation makes.
	protected := func(h fasthttp.RequestHandler) fasthttp.RequestHandler {
		return authMiddleware(middleware.AllowScopes(h))
	}
	creation := func(h fasthttp.RequestHandler) fasthttp.RequestHandler {
		return authMiddleware(middleware.AllowScopes(h, auth.ScopeTasksCreate))
	}

	r.GET("/api/v1/tasks", protected(handlers.Task.GetTasks))
	r.POST("/api/v1/tasks", creation(handlers.Task.CreateTask))
	r.GET("/api/v1/tasks/{id}", protected(handlers.Task.GetTask))
	r.PUT("/api/v1/tasks/{id}", protected(handlers.Task.UpdateTask))
	r.DELETE("/api/v1/tasks/{id}", protected(handlers.Task.DeleteTask))
	r.POST("/api/v1/tasks/{id}/complete", protected(handlers.Task.CompleteTask))
	r.POST("/api/v1/tasks/{id}/tags", creation(handlers.Task.AddTag))
	r.DELETE("/api/v1/tasks/{id}/tags/{name}", protected(handlers.Task.RemoveTag))

	return r
}

// ConsumerHandlers serve a pub/sub consumer: one delivery route plus the
// subscription list and health.
type ConsumerHandlers struct {
	Deliver      fasthttp.RequestHandler
	Subscription *apiHandler.SubscriptionHandler
	Health       *apiHandler.HealthHandler
}

func newConsumer(route string, handlers ConsumerHandlers) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)
	r.GET(RouteSubscribe, handlers.Subscription.Subscribe)
	r.POST(route, handlers.Deliver)

	return r
}

// NewRecurring routes task-events deliveries to the reactivator.
func NewRecurring(events *apiHandler.TaskEventHandler, subs *apiHandler.SubscriptionHandler, health *apiHandler.HealthHandler) *router.Router {
	return newConsumer(RouteTaskEvents, ConsumerHandlers{Deliver: events.Handle, Subscription: subs, Health: health})
}

// NewNotifier routes reminders deliveries to the notifier.
func NewNotifier(reminders *apiHandler.ReminderHandler, subs *apiHandler.SubscriptionHandler, health *apiHandler.HealthHandler) *router.Router {
	return newConsumer(RouteReminders, ConsumerHandlers{Deliver: reminders.Handle, Subscription: subs, Health: health})
}
