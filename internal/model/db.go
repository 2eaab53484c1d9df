package model

import "time"

type PurchaseType string

const (
	PurchaseTypeOneTime      PurchaseType = "ONE_TIME"
	PurchaseTypeSubscription PurchaseType = "SUBSCRIPTION"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusPickedUp  OrderStatus = "PICKED_UP"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPaused   SubscriptionStatus = "PAUSED"
	SubscriptionStatusPastDue  SubscriptionStatus = "PAST_DUE"
	SubscriptionStatusCanceled SubscriptionStatus = "CANCELED"
)

type DeliveryMethod string

const (
	DeliveryMethodDelivery DeliveryMethod = "DELIVERY"
	DeliveryMethodPickup   DeliveryMethod = "PICKUP"
)

type Product struct {
	ID         string `gorm:"primaryKey;size:64;not null"`
	Name       string `gorm:"size:255;not null"`
	Slug       string `gorm:"size:255;uniqueIndex"`
	IsDisabled bool   `gorm:"not null;default:false"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type ProductVariant struct {
	ID            string `gorm:"primaryKey;size:64;not null"`
	ProductID     string `gorm:"size:64;index;not null"`
	Product       Product
	Name          string `gorm:"size:255;not null"`
	StockQuantity int32  `gorm:"not null"`
	IsDisabled    bool   `gorm:"not null;default:false"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PurchaseOption is reference data: one price point on a variant, either a
// one-off purchase or a recurring subscription with a billing interval.
type PurchaseOption struct {
	ID              string `gorm:"primaryKey;size:64;not null"`
	VariantID       string `gorm:"size:64;index;not null"`
	Variant         ProductVariant
	Type            PurchaseType `gorm:"size:32;index;not null"`
	PriceInCents    int64        `gorm:"not null"`
	BillingInterval string       `gorm:"size:16"` // week, month; empty for one-time
	IntervalCount   int32
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type User struct {
	ID        string `gorm:"primaryKey;size:64;not null"`
	Email     string `gorm:"size:255;uniqueIndex"`
	Name      string `gorm:"size:255"`
	Phone     string `gorm:"size:32"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Order is the unit of fulfillment. Processor references are filled in
// incrementally as webhook events arrive; an order's items are always
// homogeneous in purchase type. Orders are never deleted.
type Order struct {
	ID                    string         `gorm:"primaryKey;size:64;not null"`
	UserID                string         `gorm:"size:64;index"`
	StripeSessionID       string         `gorm:"size:128;index"`
	StripeSubscriptionID  string         `gorm:"size:128;index"`
	StripePaymentIntentID string         `gorm:"size:128"`
	StripeChargeID        string         `gorm:"size:128"`
	StripeInvoiceID       string         `gorm:"size:128;index"`
	StripeCustomerID      string         `gorm:"size:128;index"`
	CustomerEmail         string         `gorm:"size:255"`
	CustomerPhone         string         `gorm:"size:32"`
	TotalInCents          int64          `gorm:"not null"`
	DiscountAmountInCents int64          `gorm:"not null"`
	Status                OrderStatus    `gorm:"size:32;index;not null"`
	DeliveryMethod        DeliveryMethod `gorm:"size:16;not null"`
	PaymentCardLast4      string         `gorm:"size:32"`
	RecipientName         string         `gorm:"size:255"`
	ShippingStreet        string         `gorm:"size:255"`
	ShippingCity          string         `gorm:"size:128"`
	ShippingState         string         `gorm:"size:64"`
	ShippingPostalCode    string         `gorm:"size:32"`
	ShippingCountry       string         `gorm:"size:8"`
	Items                 []OrderItem    `gorm:"foreignKey:OrderID"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type OrderItem struct {
	ID               uint   `gorm:"primaryKey"`
	OrderID          string `gorm:"size:64;index;not null"`
	PurchaseOptionID string `gorm:"size:64;index;not null"`
	PurchaseOption   PurchaseOption
	Quantity         int32 `gorm:"not null"`
	PriceInCents     int64 `gorm:"not null"`
	CreatedAt        time.Time
}

// Subscription mirrors one processor subscription; at most one row per
// processor subscription id. Canceled subscriptions are retained.
type Subscription struct {
	ID                   string             `gorm:"primaryKey;size:64;not null"`
	StripeSubscriptionID string             `gorm:"size:128;uniqueIndex;not null"`
	StripeCustomerID     string             `gorm:"size:128;index;not null"`
	UserID               string             `gorm:"size:64;index;not null"`
	Status               SubscriptionStatus `gorm:"size:32;not null"`
	CancelAtPeriodEnd    bool               `gorm:"not null;default:false"`
	CurrentPeriodStart   time.Time
	CurrentPeriodEnd     time.Time
	CanceledAt           *time.Time
	PausedUntil          *time.Time
	DeliverySchedule     string         `gorm:"size:64"`
	DeliveryMethod       DeliveryMethod `gorm:"size:16"`
	ProductNames         []string       `gorm:"serializer:json"`
	ProductDescription   string         `gorm:"size:1024"`
	StripeProductIDs     []string       `gorm:"serializer:json"`
	StripePriceIDs       []string       `gorm:"serializer:json"`
	Quantities           []int32        `gorm:"serializer:json"`
	PriceInCents         int64          `gorm:"not null"`
	RecipientName        string         `gorm:"size:255"`
	RecipientPhone       string         `gorm:"size:32"`
	ShippingStreet       string         `gorm:"size:255"`
	ShippingCity         string         `gorm:"size:128"`
	ShippingState        string         `gorm:"size:64"`
	ShippingPostalCode   string         `gorm:"size:32"`
	ShippingCountry      string         `gorm:"size:8"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
