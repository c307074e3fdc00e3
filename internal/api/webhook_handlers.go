package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hookhub/relay/internal/auditstore"
	"github.com/hookhub/relay/internal/circuitbreaker"
	"github.com/hookhub/relay/internal/diagnostics"
	"github.com/hookhub/relay/internal/eventqueue"
	"github.com/hookhub/relay/internal/idgen"
	"github.com/hookhub/relay/internal/logging"
	"github.com/hookhub/relay/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// healthRecentLimit caps the classification rows fed into a health
	// summary and a diagnostics report.
	healthRecentLimit = 20
)

type WebhookHandlers struct {
	logger       *logging.Logger
	webhookStore models.WebhookStore
	eventStore   models.EventStore
	auditStore   auditstore.AuditStore
	queue        eventqueue.Queue
	breaker      *circuitbreaker.Breaker
}

func NewWebhookHandlers(
	logger *logging.Logger,
	webhookStore models.WebhookStore,
	eventStore models.EventStore,
	auditStore auditstore.AuditStore,
	queue eventqueue.Queue,
	breaker *circuitbreaker.Breaker,
) *WebhookHandlers {
	return &WebhookHandlers{
		logger:       logger,
		webhookStore: webhookStore,
		eventStore:   eventStore,
		auditStore:   auditStore,
		queue:        queue,
		breaker:      breaker,
	}
}

type CreateWebhookRequest struct {
	URL      string            `json:"url"`
	Metadata map[string]string `json:"metadata"`
}

// ValidationSuggestion points at a request field that looks wrong and says
// how to fix it. Suggestions never block registration.
type ValidationSuggestion struct {
	Field      string `json:"field"`
	Issue      string `json:"issue"`
	Suggestion string `json:"suggestion"`
}

type CreateWebhookResponse struct {
	Webhook     models.Webhook         `json:"webhook"`
	Valid       bool                   `json:"valid"`
	Suggestions []ValidationSuggestion `json:"suggestions"`
}

// Create registers a webhook. Registration always succeeds; URL problems
// come back as suggestions alongside the created webhook.
func (h *WebhookHandlers) Create(c *gin.Context) {
	var req CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, err)
		return
	}

	suggestions := validateWebhookURL(req.URL)

	webhook := models.Webhook{
		ID:       idgen.Webhook(),
		URL:      req.URL,
		Metadata: req.Metadata,
	}
	if err := h.webhookStore.CreateWebhook(c.Request.Context(), webhook); err != nil {
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}

	created, err := h.webhookStore.RetrieveWebhook(c.Request.Context(), webhook.ID)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}

	c.JSON(http.StatusCreated, CreateWebhookResponse{
		Webhook:     *created,
		Valid:       len(suggestions) == 0,
		Suggestions: suggestions,
	})
}

func (h *WebhookHandlers) List(c *gin.Context) {
	webhooks, err := h.webhookStore.ListWebhooks(c.Request.Context())
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}
	c.JSON(http.StatusOK, webhooks)
}

func (h *WebhookHandlers) Retrieve(c *gin.Context) {
	webhook, ok := h.retrieveWebhook(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, webhook)
}

// ListEvents returns the webhook's events newest first, optionally filtered
// by ?status=.
func (h *WebhookHandlers) ListEvents(c *gin.Context) {
	webhook, ok := h.retrieveWebhook(c)
	if !ok {
		return
	}

	var statusFilter models.EventStatus
	if status := c.Query("status"); status != "" {
		statusFilter = models.EventStatus(strings.ToUpper(status))
		if !statusFilter.Valid() {
			AbortWithError(c, http.StatusBadRequest, NewErrBadRequest(errors.New("invalid status filter: "+status)))
			return
		}
	}

	events, err := h.eventStore.ListEventsByWebhook(c.Request.Context(), webhook.ID, 0)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}
	if statusFilter != "" {
		filtered := make([]models.Event, 0, len(events))
		for _, event := range events {
			if event.Status == statusFilter {
				filtered = append(filtered, event)
			}
		}
		events = filtered
	}
	c.JSON(http.StatusOK, events)
}

type ResumeWebhookResponse struct {
	Webhook       models.Webhook `json:"webhook"`
	ResumedEvents int            `json:"resumed_events"`
}

// Resume lifts a pause and force-closes the breaker, then puts every PAUSED
// event of the webhook back on the queue.
func (h *WebhookHandlers) Resume(c *gin.Context) {
	webhookID := c.Param("webhookID")
	ctx := c.Request.Context()

	webhook, err := h.webhookStore.UpdateHealth(ctx, webhookID, func(w *models.Webhook) error {
		w.PausedUntil = nil
		h.breaker.Reset(w)
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrWebhookNotFound) {
			AbortWithError(c, http.StatusNotFound, NewErrNotFound(err))
			return
		}
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}

	events, err := h.eventStore.ListEventsByWebhook(ctx, webhookID, 0)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}

	resumed := 0
	g, gctx := errgroup.WithContext(ctx)
	for i := range events {
		event := events[i]
		if event.Status != models.EventStatusPaused {
			continue
		}
		resumed++
		g.Go(func() error {
			event.Status = models.EventStatusPending
			event.FailureReason = ""
			if err := h.eventStore.UpdateEvent(gctx, event); err != nil {
				return err
			}
			return h.queue.Enqueue(gctx, &event)
		})
	}
	if err := g.Wait(); err != nil {
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}

	h.logger.Ctx(ctx).Info("webhook resumed",
		zap.String("webhook_id", webhookID),
		zap.Int("resumed_events", resumed))

	c.JSON(http.StatusOK, ResumeWebhookResponse{
		Webhook:       *webhook,
		ResumedEvents: resumed,
	})
}

type HealthResponse struct {
	Report  diagnostics.HealthReport `json:"report"`
	Summary string                   `json:"summary"`
}

func (h *WebhookHandlers) Health(c *gin.Context) {
	webhook, ok := h.retrieveWebhook(c)
	if !ok {
		return
	}

	recent, err := h.auditStore.ListByWebhook(c.Request.Context(), webhook.ID, healthRecentLimit)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}

	report, summary := diagnostics.HealthSummary(webhook, recent)
	c.JSON(http.StatusOK, HealthResponse{Report: report, Summary: summary})
}

type DiagnosticsResponse struct {
	WebhookID             string                       `json:"webhook_id"`
	Recommendations       []string                     `json:"recommendations"`
	RecentClassifications []models.ErrorClassification `json:"recent_classifications"`
}

func (h *WebhookHandlers) Diagnostics(c *gin.Context) {
	webhook, ok := h.retrieveWebhook(c)
	if !ok {
		return
	}

	recent, err := h.auditStore.ListByWebhook(c.Request.Context(), webhook.ID, healthRecentLimit)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}
	if recent == nil {
		recent = []models.ErrorClassification{}
	}

	c.JSON(http.StatusOK, DiagnosticsResponse{
		WebhookID:             webhook.ID,
		Recommendations:       diagnostics.Recommend(webhook, recent),
		RecentClassifications: recent,
	})
}

func (h *WebhookHandlers) retrieveWebhook(c *gin.Context) (*models.Webhook, bool) {
	webhook, err := h.webhookStore.RetrieveWebhook(c.Request.Context(), c.Param("webhookID"))
	if err != nil {
		if errors.Is(err, models.ErrWebhookNotFound) {
			AbortWithError(c, http.StatusNotFound, NewErrNotFound(err))
			return nil, false
		}
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return nil, false
	}
	return webhook, true
}

func validateWebhookURL(rawURL string) []ValidationSuggestion {
	suggestions := []ValidationSuggestion{}

	if strings.TrimSpace(rawURL) == "" {
		return append(suggestions, ValidationSuggestion{
			Field:      "url",
			Issue:      "URL is required",
			Suggestion: "Please provide a valid webhook URL",
		})
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return append(suggestions, ValidationSuggestion{
			Field:      "url",
			Issue:      "Invalid URL format",
			Suggestion: "Please provide a valid URL (e.g., https://example.com/webhook)",
		})
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		suggestions = append(suggestions, ValidationSuggestion{
			Field:      "url",
			Issue:      "Invalid protocol",
			Suggestion: "URL must use HTTP or HTTPS protocol",
		})
	}
	if parsed.Host == "" {
		suggestions = append(suggestions, ValidationSuggestion{
			Field:      "url",
			Issue:      "Invalid host",
			Suggestion: "URL must contain a valid hostname",
		})
	}
	return suggestions
}
