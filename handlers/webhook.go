package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"goflare.io/chargeprocessor/models"
)

// Stripe caps webhook payloads well below this.
const maxWebhookBody = 1 << 20

type WebhookHandler interface {
	HandleStripeWebhook(c echo.Context) error
}

type eventParser interface {
	ParseEvent(payload []byte, signature string) (*models.ChargeEvent, error)
}

type eventRecorder interface {
	Create(ctx context.Context, event *models.Event) error
}

type eventPublisher interface {
	PublishEvent(event *models.ChargeEvent) error
}

type webhookHandler struct {
	parser    eventParser
	events    eventRecorder
	publisher eventPublisher
	logger    *zap.Logger
}

func NewWebhookHandler(parser eventParser, events eventRecorder, publisher eventPublisher, logger *zap.Logger) WebhookHandler {
	return &webhookHandler{
		parser:    parser,
		events:    events,
		publisher: publisher,
		logger:    logger,
	}
}

// HandleStripeWebhook handles POST /webhook/stripe. An actionable event is
// acknowledged once it is stored; the bus only speeds up delivery, and the
// retry sweep picks up anything the workers never finished.
func (wh *webhookHandler) HandleStripeWebhook(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Failed to read request body"})
	}
	if len(payload) > maxWebhookBody {
		wh.logger.Error("Webhook body too large", zap.Int("limit", maxWebhookBody))
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": "Webhook body too large"})
	}

	signature := c.Request().Header.Get("Stripe-Signature")

	event, err := wh.parser.ParseEvent(payload, signature)
	if err != nil {
		wh.logger.Warn("Rejected webhook", zap.Error(err))
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Failed to verify webhook"})
	}

	if event.Type.IsActionable() {
		normalized, err := json.Marshal(event)
		if err != nil {
			wh.logger.Error("Failed to marshal webhook event", zap.String("event_id", event.ID), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to handle webhook"})
		}
		if err = wh.events.Create(c.Request().Context(), &models.Event{ID: event.ID, Type: event.Type, Payload: normalized}); err != nil {
			wh.logger.Error("Failed to store webhook event",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to handle webhook"})
		}
	}

	if err = wh.publisher.PublishEvent(event); err != nil {
		wh.logger.Warn("Failed to publish webhook event, leaving it to the retry sweep",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}

	return c.NoContent(http.StatusOK)
}
