package handler

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"coffee-commerce-backend/internal/client"
	"coffee-commerce-backend/internal/webhook"
)

type WebhookHandler struct {
	processor  client.StripeClient
	dispatcher *webhook.Dispatcher
	log        *zap.Logger
}

func NewWebhookHandler(processor client.StripeClient, dispatcher *webhook.Dispatcher, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		processor:  processor,
		dispatcher: dispatcher,
		log:        log,
	}
}

// HandleStripeWebhook verifies the signature and dispatches the event. Any
// dispatched event is answered 200 so the processor stops redelivering;
// reconciliation misses are surfaced in the body and the logs instead.
func (h *WebhookHandler) HandleStripeWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	event, err := h.processor.ConstructEvent(payload, c.Request().Header.Get("Stripe-Signature"))
	if err != nil {
		h.log.Warn("webhook signature verification failed", zap.Error(err))
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid signature",
		})
	}

	result := h.dispatcher.Dispatch(ctx, &event)

	body := map[string]interface{}{
		"received": true,
		"success":  result.Success,
	}
	if result.Message != "" {
		body["message"] = result.Message
	}

	return c.JSON(http.StatusOK, body)
}
