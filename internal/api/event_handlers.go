package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hookhub/relay/internal/eventqueue"
	"github.com/hookhub/relay/internal/idgen"
	"github.com/hookhub/relay/internal/logging"
	"github.com/hookhub/relay/internal/models"
	"go.uber.org/zap"
)

type EventHandlers struct {
	logger       *logging.Logger
	webhookStore models.WebhookStore
	eventStore   models.EventStore
	queue        eventqueue.Queue
}

func NewEventHandlers(
	logger *logging.Logger,
	webhookStore models.WebhookStore,
	eventStore models.EventStore,
	queue eventqueue.Queue,
) *EventHandlers {
	return &EventHandlers{
		logger:       logger,
		webhookStore: webhookStore,
		eventStore:   eventStore,
		queue:        queue,
	}
}

type CreateEventRequest struct {
	WebhookID string          `json:"webhook_id" binding:"required"`
	Payload   json.RawMessage `json:"payload"`
}

// Create accepts an event for delivery: the event is persisted as PENDING
// before it is put on the queue, so a crash between the two is recoverable.
func (h *EventHandlers) Create(c *gin.Context) {
	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithValidationError(c, err)
		return
	}

	ctx := c.Request.Context()
	if _, err := h.webhookStore.RetrieveWebhook(ctx, req.WebhookID); err != nil {
		if errors.Is(err, models.ErrWebhookNotFound) {
			AbortWithError(c, http.StatusNotFound, NewErrNotFound(err))
			return
		}
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}

	event := models.Event{
		ID:        idgen.Event(),
		WebhookID: req.WebhookID,
		Payload:   req.Payload,
		Status:    models.EventStatusPending,
	}
	if err := h.eventStore.CreateEvent(ctx, event); err != nil {
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}

	created, err := h.eventStore.RetrieveEvent(ctx, event.ID)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}

	if err := h.queue.Enqueue(ctx, created); err != nil {
		// The event is already durable; startup recovery re-enqueues PENDING
		// events, so losing the queue write here is not fatal to the event.
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}

	h.logger.Ctx(ctx).Info("event accepted",
		zap.String("event_id", created.ID),
		zap.String("webhook_id", created.WebhookID))

	c.JSON(http.StatusCreated, created)
}

func (h *EventHandlers) Retrieve(c *gin.Context) {
	event, err := h.eventStore.RetrieveEvent(c.Request.Context(), c.Param("eventID"))
	if err != nil {
		if errors.Is(err, models.ErrEventNotFound) {
			AbortWithError(c, http.StatusNotFound, NewErrNotFound(err))
			return
		}
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}
	c.JSON(http.StatusOK, event)
}

// Resume flips a PAUSED event back to PENDING and re-enqueues it. Events in
// any other status return 409.
func (h *EventHandlers) Resume(c *gin.Context) {
	ctx := c.Request.Context()
	event, err := h.eventStore.RetrieveEvent(ctx, c.Param("eventID"))
	if err != nil {
		if errors.Is(err, models.ErrEventNotFound) {
			AbortWithError(c, http.StatusNotFound, NewErrNotFound(err))
			return
		}
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}

	if event.Status != models.EventStatusPaused {
		AbortWithError(c, http.StatusConflict, ErrorResponse{
			Code:    http.StatusConflict,
			Message: "event is not paused",
			Data:    map[string]string{"status": string(event.Status)},
		})
		return
	}

	event.Status = models.EventStatusPending
	event.FailureReason = ""
	if err := h.eventStore.UpdateEvent(ctx, *event); err != nil {
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}
	if err := h.queue.Enqueue(ctx, event); err != nil {
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}

	h.logger.Ctx(ctx).Info("event resumed", zap.String("event_id", event.ID))

	updated, err := h.eventStore.RetrieveEvent(ctx, event.ID)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}
	c.JSON(http.StatusOK, updated)
}
