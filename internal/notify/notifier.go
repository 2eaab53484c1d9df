// Package notify sends order and fulfillment notifications. The default
// implementation only logs; a mail or messaging backend can drop in behind
// the same interface.
package notify

import (
	"context"

	"go.uber.org/zap"

	"coffee-commerce-backend/internal/model"
)

type Notifier interface {
	// SendOrderConfirmation notifies the customer about the orders created
	// from one checkout.
	SendOrderConfirmation(ctx context.Context, orders []*model.Order)
	// SendMerchantNotification tells the merchant an order needs
	// fulfillment.
	SendMerchantNotification(ctx context.Context, order *model.Order, isRecurring bool, deliverySchedule string)
}

type logNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) Notifier {
	return &logNotifier{
		log: log,
	}
}

func (n *logNotifier) SendOrderConfirmation(ctx context.Context, orders []*model.Order) {
	for _, order := range orders {
		n.log.Info("order confirmation",
			zap.String("order_id", order.ID),
			zap.String("customer_email", order.CustomerEmail),
			zap.Int64("total_in_cents", order.TotalInCents))
	}
}

func (n *logNotifier) SendMerchantNotification(ctx context.Context, order *model.Order, isRecurring bool, deliverySchedule string) {
	n.log.Info("merchant notification",
		zap.String("order_id", order.ID),
		zap.Bool("recurring", isRecurring),
		zap.String("delivery_schedule", deliverySchedule),
		zap.String("delivery_method", string(order.DeliveryMethod)))
}
