package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v78"
	"go.uber.org/zap"

	"coffee-commerce-backend/internal/payment"
	"coffee-commerce-backend/internal/service"
)

// HandleCheckoutCompleted turns a paid checkout session into local orders
// and, for subscription checkouts, the local subscription record.
func (h *Handlers) HandleCheckoutCompleted(ctx context.Context, event *stripe.Event) Result {
	var envelope stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &envelope); err != nil {
		return failed(fmt.Errorf("decode checkout session event: %w", err))
	}

	// Re-retrieve with the expansions the normalizer needs; the event
	// payload carries neither line items nor the expanded customer.
	session, err := h.processor.GetCheckoutSession(ctx, envelope.ID)
	if err != nil {
		return failed(fmt.Errorf("retrieve checkout session %s: %w", envelope.ID, err))
	}

	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return ok("checkout session not paid, nothing to reconcile")
	}

	var pay payment.PaymentInfo
	switch {
	case session.PaymentIntent != nil:
		pay = h.processor.PaymentInfoFromIntent(ctx, session.PaymentIntent.ID)
	case session.Subscription != nil:
		pay = h.processor.PaymentInfoFromSubscription(ctx, session.Subscription.ID)
	}

	checkout := payment.NormalizeCheckoutSession(session, pay)
	if len(checkout.Items) == 0 {
		return failed(fmt.Errorf("checkout session %s carries no cart metadata", session.ID))
	}

	user, err := h.users.FindByEmail(ctx, checkout.Customer.Email)
	if errors.Is(err, service.ErrUserNotFound) {
		return Result{
			Success: false,
			Message: "no account for checkout email",
			Error:   fmt.Errorf("checkout session %s: %w for %s", session.ID, err, checkout.Customer.Email),
		}
	}
	if err != nil {
		return failed(err)
	}

	if err := h.users.RefreshContactInfo(ctx, user.ID, checkout.Customer.Name, checkout.Customer.Phone); err != nil {
		h.log.Warn("failed to refresh user contact info",
			zap.String("user_id", user.ID),
			zap.Error(err))
	}

	orders, err := h.orders.CreateFromCheckout(ctx, checkout, user.ID)
	if err != nil {
		var validation *service.ValidationError
		if errors.As(err, &validation) {
			return Result{
				Success: false,
				Message: validation.Message,
				Error:   err,
			}
		}
		return failed(err)
	}

	h.notifier.SendOrderConfirmation(ctx, orders)

	if checkout.SubscriptionID == "" {
		for _, order := range orders {
			h.notifier.SendMerchantNotification(ctx, order, false, "")
		}
		return ok(fmt.Sprintf("created %d order(s)", len(orders)))
	}

	sub, err := h.processor.GetSubscription(ctx, checkout.SubscriptionID)
	if err != nil {
		return failed(fmt.Errorf("retrieve subscription %s: %w", checkout.SubscriptionID, err))
	}

	normalized := payment.NormalizeSubscription(sub, &payment.SubscriptionOverrides{
		ShippingAddress: checkout.ShippingAddress,
		ShippingName:    checkout.ShippingName,
		CustomerPhone:   checkout.Customer.Phone,
	})

	if _, _, err := h.subscriptions.Ensure(ctx, normalized, user.ID); err != nil {
		return failed(err)
	}

	// Store the shipping address on the processor subscription so renewal
	// invoices see it without a local lookup.
	if checkout.ShippingAddress != nil {
		err := h.processor.UpdateSubscriptionShipping(ctx, checkout.SubscriptionID, *checkout.ShippingAddress, checkout.ShippingName, checkout.DeliveryMethod)
		if err != nil {
			h.log.Warn("failed to store shipping on processor subscription",
				zap.String("stripe_subscription_id", checkout.SubscriptionID),
				zap.Error(err))
		}
	}

	for _, order := range orders {
		// The subscription-group order already carries the processor
		// subscription id from checkout normalization.
		recurring := order.StripeSubscriptionID != ""
		schedule := ""
		if recurring {
			schedule = normalized.DeliverySchedule
		}
		h.notifier.SendMerchantNotification(ctx, order, recurring, schedule)
	}

	return ok(fmt.Sprintf("created %d order(s) and subscription", len(orders)))
}
