package payment

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
)

// cartMetadataKey is where the storefront serializes the cart before
// redirecting to checkout; it is the only source of purchase-option ids.
const cartMetadataKey = "cartItems"

const shippingMetadataKey = "shipping_address"

var scheduleRe = regexp.MustCompile(`(?i)Every\s+[^-()]+`)

// MapSubscriptionStatus maps a processor subscription status onto the local
// state machine. pause_collection does not change the processor's status
// field, so a paused flag is passed in separately.
func MapSubscriptionStatus(status stripe.SubscriptionStatus, isPaused bool) SubscriptionStatus {
	switch {
	case status == stripe.SubscriptionStatusCanceled:
		return StatusCanceled
	case status == stripe.SubscriptionStatusPaused || isPaused:
		return StatusPaused
	case status == stripe.SubscriptionStatusPastDue:
		return StatusPastDue
	default:
		return StatusActive
	}
}

// ExtractSubscriptionID returns the subscription reference on an invoice, or
// empty when the invoice is not tied to a subscription.
func ExtractSubscriptionID(invoice *stripe.Invoice) string {
	if invoice == nil || invoice.Subscription == nil {
		return ""
	}
	return invoice.Subscription.ID
}

// FormatBillingInterval renders a billing interval as a delivery schedule
// string, e.g. ("week", 2) -> "Every 2 weeks".
func FormatBillingInterval(interval string, count int64) string {
	if count <= 1 {
		return fmt.Sprintf("Every %s", interval)
	}
	return fmt.Sprintf("Every %d %ss", count, interval)
}

func normalizeAddress(address *stripe.Address, name string) *ShippingAddress {
	if address == nil {
		return nil
	}
	return &ShippingAddress{
		Name:       name,
		Line1:      address.Line1,
		Line2:      address.Line2,
		City:       address.City,
		State:      address.State,
		PostalCode: address.PostalCode,
		Country:    address.Country,
	}
}

func parseCartMetadata(session *stripe.CheckoutSession) []CartItem {
	raw, ok := session.Metadata[cartMetadataKey]
	if !ok || raw == "" {
		return nil
	}
	var items []CartItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil
	}
	return items
}

// NormalizeCheckoutSession converts a completed checkout session into a
// processor-agnostic checkout. The session must already be retrieved with
// line items and customer details expanded; payment details are fetched by
// the caller so this stays free of I/O.
func NormalizeCheckoutSession(session *stripe.CheckoutSession, pay PaymentInfo) Checkout {
	checkout := Checkout{
		SessionID:      session.ID,
		Items:          parseCartMetadata(session),
		DeliveryMethod: DeliveryMethodDelivery,
		PaymentInfo:    pay,
		TotalInCents:   session.AmountTotal,
	}

	if session.Subscription != nil {
		checkout.SubscriptionID = session.Subscription.ID
	}
	if session.Customer != nil {
		checkout.Customer.ProcessorCustomerID = session.Customer.ID
	}
	if details := session.CustomerDetails; details != nil {
		checkout.Customer.Email = details.Email
		checkout.Customer.Phone = details.Phone
		checkout.Customer.Name = details.Name
	}
	if method := session.Metadata["deliveryMethod"]; method != "" {
		checkout.DeliveryMethod = method
	}
	if shipping := session.ShippingDetails; shipping != nil {
		checkout.ShippingAddress = normalizeAddress(shipping.Address, shipping.Name)
		checkout.ShippingName = shipping.Name
	}
	if session.TotalDetails != nil {
		checkout.DiscountAmountInCents = session.TotalDetails.AmountDiscount
	}

	return checkout
}

// SubscriptionOverrides carries checkout-time data that is more reliable than
// what the subscription object itself holds (the checkout session saw the
// shipping form; the subscription may not have metadata yet).
type SubscriptionOverrides struct {
	ShippingAddress *ShippingAddress
	ShippingName    string
	CustomerPhone   string
}

// NormalizeSubscription converts a processor subscription into the local
// representation. The subscription must be retrieved with
// items.data.price.product expanded so product names resolve without I/O.
func NormalizeSubscription(sub *stripe.Subscription, overrides *SubscriptionOverrides) Subscription {
	normalized := Subscription{
		ProcessorSubscriptionID: sub.ID,
		CurrentPeriodStart:      time.Unix(sub.CurrentPeriodStart, 0),
		CurrentPeriodEnd:        time.Unix(sub.CurrentPeriodEnd, 0),
		CancelAtPeriodEnd:       sub.CancelAtPeriodEnd || sub.CancelAt > 0,
	}
	if sub.Customer != nil {
		normalized.ProcessorCustomerID = sub.Customer.ID
	}

	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			price := item.Price
			if price == nil {
				continue
			}
			quantity := item.Quantity
			if quantity <= 0 {
				quantity = 1
			}
			subItem := SubscriptionItem{
				PriceID:      price.ID,
				Quantity:     int32(quantity),
				PriceInCents: price.UnitAmount,
			}
			if price.Product != nil {
				subItem.ProductID = price.Product.ID
				subItem.ProductName = price.Product.Name
				subItem.ProductDescription = price.Product.Description
			}
			normalized.TotalPriceInCents += subItem.PriceInCents * int64(subItem.Quantity)
			normalized.Items = append(normalized.Items, subItem)
		}
	}

	normalized.DeliverySchedule = deriveDeliverySchedule(sub)
	normalized.DeliveryMethod = sub.Metadata["deliveryMethod"]

	isPaused := sub.PauseCollection != nil
	normalized.Status = MapSubscriptionStatus(sub.Status, isPaused)

	if sub.Status == stripe.SubscriptionStatusCanceled || sub.CanceledAt > 0 {
		canceledAt := time.Unix(sub.CanceledAt, 0)
		if sub.CanceledAt == 0 {
			canceledAt = time.Now()
		}
		normalized.CanceledAt = &canceledAt
	}
	if sub.PauseCollection != nil && sub.PauseCollection.ResumesAt > 0 {
		pausedUntil := time.Unix(sub.PauseCollection.ResumesAt, 0)
		normalized.PausedUntil = &pausedUntil
	}

	normalized.ShippingAddress = parseShippingMetadata(sub)
	if overrides != nil {
		if overrides.ShippingAddress != nil {
			normalized.ShippingAddress = overrides.ShippingAddress
		}
		normalized.ShippingName = overrides.ShippingName
		normalized.CustomerPhone = overrides.CustomerPhone
	}
	if normalized.ShippingName == "" && normalized.ShippingAddress != nil {
		normalized.ShippingName = normalized.ShippingAddress.Name
	}

	return normalized
}

func deriveDeliverySchedule(sub *stripe.Subscription) string {
	if schedule := sub.Metadata["deliverySchedule"]; schedule != "" {
		return schedule
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	price := sub.Items.Data[0].Price
	if price == nil {
		return ""
	}
	if price.Nickname != "" {
		if match := scheduleRe.FindString(price.Nickname); match != "" {
			return strings.TrimSpace(match)
		}
	}
	if price.Recurring != nil {
		count := price.Recurring.IntervalCount
		if count <= 0 {
			count = 1
		}
		return FormatBillingInterval(string(price.Recurring.Interval), count)
	}
	return ""
}

// parseShippingMetadata reads the shipping address stored on the processor
// subscription at checkout time; renewals inherit it.
func parseShippingMetadata(sub *stripe.Subscription) *ShippingAddress {
	raw, ok := sub.Metadata[shippingMetadataKey]
	if !ok || raw == "" {
		return nil
	}
	var stored struct {
		Name       string `json:"name"`
		Line1      string `json:"line1"`
		Line2      string `json:"line2"`
		City       string `json:"city"`
		State      string `json:"state"`
		PostalCode string `json:"postal_code"`
		Country    string `json:"country"`
	}
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil
	}
	return &ShippingAddress{
		Name:       stored.Name,
		Line1:      stored.Line1,
		Line2:      stored.Line2,
		City:       stored.City,
		State:      stored.State,
		PostalCode: stored.PostalCode,
		Country:    stored.Country,
	}
}

// NormalizeInvoicePayment converts an invoice payment event. A renewal is an
// invoice billed for a subscription cycle; anything else on a subscription is
// its initial invoice.
func NormalizeInvoicePayment(invoice *stripe.Invoice, pay PaymentInfo) InvoicePayment {
	normalized := InvoicePayment{
		InvoiceID:       invoice.ID,
		SubscriptionID:  ExtractSubscriptionID(invoice),
		PaymentInfo:     pay,
		IsRenewal:       invoice.BillingReason == stripe.InvoiceBillingReasonSubscriptionCycle,
		BillingReason:   string(invoice.BillingReason),
		TotalInCents:    invoice.Total,
		SubtotalInCents: invoice.Subtotal,
	}
	if invoice.Customer != nil {
		normalized.CustomerID = invoice.Customer.ID
	}
	return normalized
}

// NormalizeCustomerUpdate converts a processor-level customer change.
func NormalizeCustomerUpdate(customer *stripe.Customer) CustomerUpdate {
	update := CustomerUpdate{
		CustomerID: customer.ID,
		Email:      customer.Email,
		Phone:      customer.Phone,
	}
	if customer.Shipping != nil {
		update.ShippingAddress = normalizeAddress(customer.Shipping.Address, customer.Shipping.Name)
		update.ShippingName = customer.Shipping.Name
	}
	return update
}
