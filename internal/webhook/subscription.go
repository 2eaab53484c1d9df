package webhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v78"

	"coffee-commerce-backend/internal/payment"
)

// HandleSubscriptionUpdated mirrors processor-side subscription changes,
// including cancellations requested from the processor dashboard or billing
// portal.
func (h *Handlers) HandleSubscriptionUpdated(ctx context.Context, event *stripe.Event) Result {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return failed(fmt.Errorf("decode subscription event: %w", err))
	}

	normalized := payment.NormalizeSubscription(&sub, nil)

	if err := h.subscriptions.HandleUpdated(ctx, normalized); err != nil {
		return failed(err)
	}

	return ok("subscription update applied")
}

func (h *Handlers) HandleSubscriptionDeleted(ctx context.Context, event *stripe.Event) Result {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return failed(fmt.Errorf("decode subscription event: %w", err))
	}

	if err := h.subscriptions.HandleDeleted(ctx, sub.ID); err != nil {
		return failed(err)
	}

	return ok("subscription marked canceled")
}
