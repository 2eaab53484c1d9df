package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"coffee-commerce-backend/internal/model"
	"coffee-commerce-backend/internal/service"
)

type SubscriptionHandler struct {
	subscriptions service.SubscriptionService
}

func NewSubscriptionHandler(subscriptions service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptions: subscriptions,
	}
}

type subscriptionResponse struct {
	ID                 string     `json:"id"`
	Status             string     `json:"status"`
	CancelAtPeriodEnd  bool       `json:"cancelAtPeriodEnd"`
	CurrentPeriodStart time.Time  `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time  `json:"currentPeriodEnd"`
	PausedUntil        *time.Time `json:"pausedUntil,omitempty"`
	DeliverySchedule   string     `json:"deliverySchedule"`
	DeliveryMethod     string     `json:"deliveryMethod"`
	ProductNames       []string   `json:"productNames"`
	PriceInCents       int64      `json:"priceInCents"`
	RecipientName      string     `json:"recipientName"`
}

func toSubscriptionResponse(sub *model.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:                 sub.ID,
		Status:             string(sub.Status),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		PausedUntil:        sub.PausedUntil,
		DeliverySchedule:   sub.DeliverySchedule,
		DeliveryMethod:     string(sub.DeliveryMethod),
		ProductNames:       sub.ProductNames,
		PriceInCents:       sub.PriceInCents,
		RecipientName:      sub.RecipientName,
	}
}

func (h *SubscriptionHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	subs, err := h.subscriptions.List(ctx)
	if err != nil {
		return err
	}

	out := make([]subscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, toSubscriptionResponse(sub))
	}

	return c.JSON(http.StatusOK, out)
}

func (h *SubscriptionHandler) Skip(c echo.Context) error {
	return h.mutate(c, h.subscriptions.Skip)
}

func (h *SubscriptionHandler) Resume(c echo.Context) error {
	return h.mutate(c, h.subscriptions.Resume)
}

func (h *SubscriptionHandler) Cancel(c echo.Context) error {
	return h.mutate(c, h.subscriptions.Cancel)
}

// The three lifecycle actions share shape: load by id, guard the state,
// call the processor, persist. Only the service call differs.
func (h *SubscriptionHandler) mutate(c echo.Context, action func(ctx context.Context, id string) (*model.Subscription, error)) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	sub, err := action(ctx, id)
	if errors.Is(err, service.ErrSubscriptionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "subscription not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	return c.JSON(http.StatusOK, toSubscriptionResponse(sub))
}
