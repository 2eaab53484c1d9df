package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v78"
	"go.uber.org/zap"

	"coffee-commerce-backend/internal/model"
	"coffee-commerce-backend/internal/payment"
	"coffee-commerce-backend/internal/service"
)

// HandleInvoicePaymentSucceeded reconciles both halves of the subscription
// billing cycle. The initial invoice backfills payment ids onto the checkout
// order; a renewal invoice produces a fresh order for the cycle.
func (h *Handlers) HandleInvoicePaymentSucceeded(ctx context.Context, event *stripe.Event) Result {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return failed(fmt.Errorf("decode invoice event: %w", err))
	}

	subscriptionID := payment.ExtractSubscriptionID(&invoice)
	if subscriptionID == "" {
		return ok("invoice is not tied to a subscription")
	}

	pay := h.processor.PaymentInfoFromInvoice(ctx, invoice.ID)
	normalized := payment.NormalizeInvoicePayment(&invoice, pay)

	sub, err := h.processor.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return failed(fmt.Errorf("retrieve subscription %s: %w", subscriptionID, err))
	}
	normalizedSub := payment.NormalizeSubscription(sub, nil)

	user, result := h.resolveInvoiceUser(ctx, normalized)
	if user == nil {
		return result
	}

	if !normalized.IsRenewal {
		return h.reconcileInitialInvoice(ctx, normalized, normalizedSub, user.ID)
	}

	return h.reconcileRenewal(ctx, normalized, normalizedSub, user)
}

// resolveInvoiceUser finds the local account for an invoice. Order history
// is the primary path; brand-new customers without orders resolve through
// the processor customer's email.
func (h *Handlers) resolveInvoiceUser(ctx context.Context, normalized payment.InvoicePayment) (*model.User, Result) {
	user, err := h.users.FindByProcessorCustomerID(ctx, normalized.CustomerID)
	if err == nil {
		return user, Result{}
	}
	if !errors.Is(err, service.ErrUserNotFound) {
		return nil, failed(err)
	}

	customer, err := h.processor.GetCustomer(ctx, normalized.CustomerID)
	if err != nil {
		return nil, failed(fmt.Errorf("retrieve customer %s: %w", normalized.CustomerID, err))
	}

	user, err = h.users.FindByEmail(ctx, customer.Email)
	if errors.Is(err, service.ErrUserNotFound) {
		return nil, Result{
			Success: false,
			Message: "no account for invoice customer",
			Error:   fmt.Errorf("invoice %s: %w for customer %s", normalized.InvoiceID, err, normalized.CustomerID),
		}
	}
	if err != nil {
		return nil, failed(err)
	}
	return user, Result{}
}

func (h *Handlers) reconcileInitialInvoice(ctx context.Context, normalized payment.InvoicePayment, normalizedSub payment.Subscription, userID string) Result {
	if _, _, err := h.subscriptions.Ensure(ctx, normalizedSub, userID); err != nil {
		return failed(err)
	}

	count, err := h.orders.BackfillPaymentIDs(ctx, service.BackfillParams{
		SubscriptionID:  normalized.SubscriptionID,
		CustomerID:      normalized.CustomerID,
		PaymentIntentID: normalized.PaymentInfo.TransactionID,
		ChargeID:        normalized.PaymentInfo.ChargeID,
		InvoiceID:       normalized.InvoiceID,
	})
	if err != nil {
		return failed(err)
	}

	h.log.Info("initial invoice reconciled",
		zap.String("invoice_id", normalized.InvoiceID),
		zap.Int64("orders_backfilled", count))
	return ok("initial invoice reconciled")
}

func (h *Handlers) reconcileRenewal(ctx context.Context, normalized payment.InvoicePayment, normalizedSub payment.Subscription, user *model.User) Result {
	if _, _, err := h.subscriptions.Ensure(ctx, normalizedSub, user.ID); err != nil {
		return failed(err)
	}

	pay := normalized.PaymentInfo
	if pay.CardLast4 == "" && pay.ChargeID != "" {
		pay.CardLast4 = h.processor.CardInfoFromCharge(ctx, pay.ChargeID)
	}

	deliveryMethod := model.DeliveryMethod(normalizedSub.DeliveryMethod)
	if deliveryMethod == "" {
		if normalizedSub.ShippingAddress != nil {
			deliveryMethod = model.DeliveryMethodDelivery
		} else {
			deliveryMethod = model.DeliveryMethodPickup
		}
	}

	var productNames []string
	var quantities []int32
	for _, item := range normalizedSub.Items {
		productNames = append(productNames, item.ProductName)
		quantities = append(quantities, item.Quantity)
	}

	order, err := h.orders.CreateRenewalOrder(ctx, service.RenewalParams{
		SubscriptionID:    normalized.SubscriptionID,
		CustomerID:        normalized.CustomerID,
		UserID:            user.ID,
		UserEmail:         user.Email,
		UserPhone:         user.Phone,
		UserName:          user.Name,
		ProductNames:      productNames,
		Quantities:        quantities,
		TotalPriceInCents: normalized.SubtotalInCents,
		ShippingCost:      normalized.TotalInCents - normalized.SubtotalInCents,
		ShippingAddress:   normalizedSub.ShippingAddress,
		DeliveryMethod:    deliveryMethod,
		PaymentInfo:       pay,
	})
	if err != nil {
		return failed(err)
	}
	if order == nil {
		return Result{
			Success: false,
			Message: "no renewal lines matched the catalog",
			Error:   fmt.Errorf("invoice %s: no purchase options matched subscription products", normalized.InvoiceID),
		}
	}

	h.notifier.SendMerchantNotification(ctx, order, true, normalizedSub.DeliverySchedule)

	return ok("renewal order created")
}
