package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	stripeclient "github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"

	"coffee-commerce-backend/internal/payment"
)

// StripeClient is the narrow processor surface the reconciliation core
// depends on. Everything here is either a retrieval (with the expansions the
// normalizer needs) or a side effect requested by the lifecycle manager.
type StripeClient interface {
	ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error)

	GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	GetCustomer(ctx context.Context, id string) (*stripe.Customer, error)

	PaymentInfoFromIntent(ctx context.Context, paymentIntentID string) payment.PaymentInfo
	PaymentInfoFromSubscription(ctx context.Context, subscriptionID string) payment.PaymentInfo
	PaymentInfoFromInvoice(ctx context.Context, invoiceID string) payment.PaymentInfo
	CardInfoFromCharge(ctx context.Context, chargeID string) string

	CreateRefund(ctx context.Context, paymentIntentID string) error
	CancelSubscriptionNow(ctx context.Context, subscriptionID string) error
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string) error
	PauseSubscription(ctx context.Context, subscriptionID string, resumesAt time.Time) error
	ResumeSubscription(ctx context.Context, subscriptionID string) error
	UpdateSubscriptionShipping(ctx context.Context, subscriptionID string, address payment.ShippingAddress, name, deliveryMethod string) error
}

type stripeClientImpl struct {
	api           *stripeclient.API
	webhookSecret string
}

func NewStripeClient(apiKey, webhookSecret string) StripeClient {
	api := &stripeclient.API{}
	api.Init(apiKey, nil)

	return &stripeClientImpl{
		api:           api,
		webhookSecret: webhookSecret,
	}
}

func (c *stripeClientImpl) ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, c.webhookSecret)
}

func (c *stripeClientImpl) GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("line_items")
	params.AddExpand("customer")
	params.AddExpand("customer_details")
	return c.api.CheckoutSessions.Get(id, params)
}

// GetSubscription expands items down to the product so the normalizer can
// resolve product names without further calls.
func (c *stripeClientImpl) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("items.data.price.product")
	params.AddExpand("customer")
	return c.api.Subscriptions.Get(id, params)
}

func (c *stripeClientImpl) GetCustomer(ctx context.Context, id string) (*stripe.Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	return c.api.Customers.Get(id, params)
}

func (c *stripeClientImpl) PaymentInfoFromIntent(ctx context.Context, paymentIntentID string) payment.PaymentInfo {
	info := payment.PaymentInfo{TransactionID: paymentIntentID}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("payment_method")
	params.AddExpand("latest_charge")

	intent, err := c.api.PaymentIntents.Get(paymentIntentID, params)
	if err != nil {
		return info
	}

	if intent.LatestCharge != nil {
		info.ChargeID = intent.LatestCharge.ID
	}
	info.CardLast4 = formatCard(intent.PaymentMethod)
	return info
}

func (c *stripeClientImpl) PaymentInfoFromSubscription(ctx context.Context, subscriptionID string) payment.PaymentInfo {
	var info payment.PaymentInfo

	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("latest_invoice")

	sub, err := c.api.Subscriptions.Get(subscriptionID, params)
	if err != nil || sub.LatestInvoice == nil {
		return info
	}

	info = c.PaymentInfoFromInvoice(ctx, sub.LatestInvoice.ID)
	info.InvoiceID = sub.LatestInvoice.ID
	return info
}

func (c *stripeClientImpl) PaymentInfoFromInvoice(ctx context.Context, invoiceID string) payment.PaymentInfo {
	info := payment.PaymentInfo{InvoiceID: invoiceID}

	params := &stripe.InvoiceParams{}
	params.Context = ctx
	params.AddExpand("payment_intent.latest_charge")
	params.AddExpand("payment_intent.payment_method")

	invoice, err := c.api.Invoices.Get(invoiceID, params)
	if err != nil || invoice.PaymentIntent == nil {
		return info
	}

	intent := invoice.PaymentIntent
	info.TransactionID = intent.ID
	if intent.LatestCharge != nil {
		info.ChargeID = intent.LatestCharge.ID
	}
	info.CardLast4 = formatCard(intent.PaymentMethod)
	return info
}

// CardInfoFromCharge reads the card summary the charge carries inline;
// charges reference their payment method by id only.
func (c *stripeClientImpl) CardInfoFromCharge(ctx context.Context, chargeID string) string {
	params := &stripe.ChargeParams{}
	params.Context = ctx

	charge, err := c.api.Charges.Get(chargeID, params)
	if err != nil || charge.PaymentMethodDetails == nil || charge.PaymentMethodDetails.Card == nil {
		return ""
	}

	card := charge.PaymentMethodDetails.Card
	return formatCardDisplay(string(card.Brand), card.Last4)
}

func (c *stripeClientImpl) CreateRefund(ctx context.Context, paymentIntentID string) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx

	_, err := c.api.Refunds.New(params)
	if err != nil {
		return fmt.Errorf("create refund for %s: %w", paymentIntentID, err)
	}
	return nil
}

func (c *stripeClientImpl) CancelSubscriptionNow(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx

	_, err := c.api.Subscriptions.Cancel(subscriptionID, params)
	if err != nil {
		return fmt.Errorf("cancel subscription %s: %w", subscriptionID, err)
	}
	return nil
}

func (c *stripeClientImpl) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx

	_, err := c.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return fmt.Errorf("set cancel_at_period_end on %s: %w", subscriptionID, err)
	}
	return nil
}

// PauseSubscription voids the next invoice and auto-resumes at resumesAt.
func (c *stripeClientImpl) PauseSubscription(ctx context.Context, subscriptionID string, resumesAt time.Time) error {
	params := &stripe.SubscriptionParams{
		PauseCollection: &stripe.SubscriptionPauseCollectionParams{
			Behavior:  stripe.String("void"),
			ResumesAt: stripe.Int64(resumesAt.Unix()),
		},
	}
	params.Context = ctx

	_, err := c.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return fmt.Errorf("pause subscription %s: %w", subscriptionID, err)
	}
	return nil
}

func (c *stripeClientImpl) ResumeSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	// The API clears pause_collection on an empty string, which the typed
	// params cannot express.
	params.AddExtra("pause_collection", "")

	_, err := c.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return fmt.Errorf("resume subscription %s: %w", subscriptionID, err)
	}
	return nil
}

// UpdateSubscriptionShipping stores the shipping address in subscription
// metadata so renewal invoices inherit it.
func (c *stripeClientImpl) UpdateSubscriptionShipping(ctx context.Context, subscriptionID string, address payment.ShippingAddress, name, deliveryMethod string) error {
	stored, err := json.Marshal(map[string]string{
		"name":        name,
		"line1":       address.Line1,
		"line2":       address.Line2,
		"city":        address.City,
		"state":       address.State,
		"postal_code": address.PostalCode,
		"country":     address.Country,
	})
	if err != nil {
		return fmt.Errorf("encode shipping metadata: %w", err)
	}

	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddMetadata("shipping_address", string(stored))
	if deliveryMethod != "" {
		params.AddMetadata("deliveryMethod", deliveryMethod)
	}

	if _, err := c.api.Subscriptions.Update(subscriptionID, params); err != nil {
		return fmt.Errorf("update shipping metadata on %s: %w", subscriptionID, err)
	}
	return nil
}

func formatCard(method *stripe.PaymentMethod) string {
	if method == nil || method.Card == nil {
		return ""
	}
	return formatCardDisplay(string(method.Card.Brand), method.Card.Last4)
}

func formatCardDisplay(brand, last4 string) string {
	if last4 == "" {
		return ""
	}
	if brand != "" {
		brand = strings.ToUpper(brand[:1]) + brand[1:]
	}
	return fmt.Sprintf("%s ****%s", brand, last4)
}
