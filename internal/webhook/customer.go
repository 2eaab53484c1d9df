package webhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v78"

	"coffee-commerce-backend/internal/payment"
)

// HandleCustomerUpdated pushes a changed shipping address or phone number
// out to the customer's subscriptions and undelivered orders.
func (h *Handlers) HandleCustomerUpdated(ctx context.Context, event *stripe.Event) Result {
	var customer stripe.Customer
	if err := json.Unmarshal(event.Data.Raw, &customer); err != nil {
		return failed(fmt.Errorf("decode customer event: %w", err))
	}

	update := payment.NormalizeCustomerUpdate(&customer)
	if update.ShippingAddress == nil && update.Phone == "" {
		return ok("customer update carries no shipping or phone change")
	}

	if err := h.subscriptions.SyncCustomerInfo(ctx, update); err != nil {
		return failed(err)
	}

	return ok("customer info synced")
}
