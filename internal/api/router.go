package api

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/hookhub/relay/internal/auditstore"
	"github.com/hookhub/relay/internal/circuitbreaker"
	"github.com/hookhub/relay/internal/eventqueue"
	"github.com/hookhub/relay/internal/logging"
	"github.com/hookhub/relay/internal/models"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type RouterConfig struct {
	Hostname string
	APIKey   string

	// Health overrides the default static /healthz handler, so deployments
	// can surface worker health instead of a bare liveness probe.
	Health gin.HandlerFunc
}

type RouteDefinition struct {
	Method  string
	Path    string
	Handler gin.HandlerFunc
}

func NewRouter(
	cfg RouterConfig,
	logger *logging.Logger,
	webhookStore models.WebhookStore,
	eventStore models.EventStore,
	auditStore auditstore.AuditStore,
	queue eventqueue.Queue,
	breaker *circuitbreaker.Breaker,
) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	}

	r.Use(otelgin.Middleware(cfg.Hostname))
	r.Use(LoggerMiddleware(logger))
	r.Use(ErrorHandlerMiddleware(logger))

	healthHandler := cfg.Health
	if healthHandler == nil {
		healthHandler = func(c *gin.Context) {
			c.String(http.StatusOK, "OK")
		}
	}
	r.GET("/healthz", healthHandler)

	apiRouter := r.Group("/api/v1")
	apiRouter.Use(APIKeyAuthMiddleware(cfg.APIKey))

	webhookHandlers := NewWebhookHandlers(logger, webhookStore, eventStore, auditStore, queue, breaker)
	eventHandlers := NewEventHandlers(logger, webhookStore, eventStore, queue)

	routes := []RouteDefinition{
		{http.MethodPost, "/webhooks", webhookHandlers.Create},
		{http.MethodGet, "/webhooks", webhookHandlers.List},
		{http.MethodGet, "/webhooks/:webhookID", webhookHandlers.Retrieve},
		{http.MethodGet, "/webhooks/:webhookID/events", webhookHandlers.ListEvents},
		{http.MethodPost, "/webhooks/:webhookID/resume", webhookHandlers.Resume},
		{http.MethodGet, "/webhooks/:webhookID/health", webhookHandlers.Health},
		{http.MethodGet, "/webhooks/:webhookID/diagnostics", webhookHandlers.Diagnostics},
		{http.MethodPost, "/events", eventHandlers.Create},
		{http.MethodGet, "/events/:eventID", eventHandlers.Retrieve},
		{http.MethodPost, "/events/:eventID/resume", eventHandlers.Resume},
	}
	for _, route := range routes {
		apiRouter.Handle(route.Method, route.Path, route.Handler)
	}

	return r
}
