package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"coffee-commerce-backend/internal/service"
)

type OrderHandler struct {
	orders service.OrderService
}

func NewOrderHandler(orders service.OrderService) *OrderHandler {
	return &OrderHandler{
		orders: orders,
	}
}

func (h *OrderHandler) MarkShipped(c echo.Context) error {
	return h.transition(c, h.orders.MarkShipped, "SHIPPED")
}

func (h *OrderHandler) MarkPickedUp(c echo.Context) error {
	return h.transition(c, h.orders.MarkPickedUp, "PICKED_UP")
}

// Cancel also puts the order's stock back.
func (h *OrderHandler) Cancel(c echo.Context) error {
	return h.transition(c, h.orders.Cancel, "CANCELLED")
}

func (h *OrderHandler) transition(c echo.Context, action func(ctx context.Context, orderID string) error, status string) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if err := action(ctx, id); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{
		"id":     id,
		"status": status,
	})
}
