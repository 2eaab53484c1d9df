// Package payment holds the processor-agnostic value objects produced by the
// normalizer. Everything downstream of the webhook handlers works on these
// types, never on raw processor payloads.
package payment

import "time"

type SubscriptionStatus string

const (
	StatusActive   SubscriptionStatus = "ACTIVE"
	StatusPaused   SubscriptionStatus = "PAUSED"
	StatusPastDue  SubscriptionStatus = "PAST_DUE"
	StatusCanceled SubscriptionStatus = "CANCELED"
)

const (
	DeliveryMethodDelivery = "DELIVERY"
	DeliveryMethodPickup   = "PICKUP"
)

type ShippingAddress struct {
	Name       string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

type CartItem struct {
	PurchaseOptionID string `json:"purchaseOptionId"`
	Quantity         int32  `json:"quantity"`
}

type PaymentInfo struct {
	TransactionID string // processor payment intent id
	ChargeID      string
	InvoiceID     string
	CardLast4     string // display string, e.g. "Visa ****4242"
}

type Customer struct {
	ProcessorCustomerID string
	Email               string
	Phone               string
	Name                string
}

type Checkout struct {
	SessionID             string
	SubscriptionID        string // empty for pure one-time checkouts
	Customer              Customer
	Items                 []CartItem
	DeliveryMethod        string
	ShippingAddress       *ShippingAddress
	ShippingName          string
	PaymentInfo           PaymentInfo
	TotalInCents          int64 // processor grand total, discount already subtracted
	DiscountAmountInCents int64
}

type SubscriptionItem struct {
	ProductID          string
	ProductName        string
	ProductDescription string
	PriceID            string
	Quantity           int32
	PriceInCents       int64
}

type Subscription struct {
	ProcessorSubscriptionID string
	ProcessorCustomerID     string
	Status                  SubscriptionStatus
	Items                   []SubscriptionItem
	TotalPriceInCents       int64
	DeliverySchedule        string
	DeliveryMethod          string
	CurrentPeriodStart      time.Time
	CurrentPeriodEnd        time.Time
	CancelAtPeriodEnd       bool
	CanceledAt              *time.Time
	PausedUntil             *time.Time
	ShippingAddress         *ShippingAddress
	ShippingName            string
	CustomerPhone           string
}

type InvoicePayment struct {
	InvoiceID       string
	SubscriptionID  string // empty means "not a subscription invoice"
	CustomerID      string
	PaymentInfo     PaymentInfo
	IsRenewal       bool
	BillingReason   string
	TotalInCents    int64
	SubtotalInCents int64
}

type CustomerUpdate struct {
	CustomerID      string
	Email           string
	Phone           string
	ShippingAddress *ShippingAddress
	ShippingName    string
}
