package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"coffee-commerce-backend/internal/model"
	"coffee-commerce-backend/internal/payment"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection so every query sees the same in-memory database.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.Product{},
		&model.ProductVariant{},
		&model.PurchaseOption{},
		&model.User{},
		&model.Order{},
		&model.OrderItem{},
		&model.Subscription{},
	))

	return db
}

// seedOption creates a product, a variant with the given stock and one
// purchase option on it.
func seedOption(t *testing.T, db *gorm.DB, id string, productName string, purchaseType model.PurchaseType, priceInCents int64, stock int32) *model.PurchaseOption {
	t.Helper()

	product := &model.Product{ID: "prod-" + id, Name: productName, Slug: "slug-" + id}
	require.NoError(t, db.Create(product).Error)

	variant := &model.ProductVariant{
		ID:            "var-" + id,
		ProductID:     product.ID,
		Name:          "12oz",
		StockQuantity: stock,
	}
	require.NoError(t, db.Create(variant).Error)

	option := &model.PurchaseOption{
		ID:           id,
		VariantID:    variant.ID,
		Type:         purchaseType,
		PriceInCents: priceInCents,
	}
	if purchaseType == model.PurchaseTypeSubscription {
		option.BillingInterval = "week"
		option.IntervalCount = 2
	}
	require.NoError(t, db.Create(option).Error)

	variant.Product = *product
	option.Variant = *variant
	return option
}

func variantStock(t *testing.T, db *gorm.DB, variantID string) int32 {
	t.Helper()

	var variant model.ProductVariant
	require.NoError(t, db.First(&variant, "id = ?", variantID).Error)
	return variant.StockQuantity
}

// processorStub records lifecycle calls and returns empty payment details,
// standing in for the hosted payment processor.
type processorStub struct {
	refunded        []string
	canceledNow     []string
	cancelAtEnd     []string
	paused          map[string]time.Time
	resumed         []string
	shippingPushes  []string
	refundErr       error
	getSubscription func(id string) (*stripe.Subscription, error)
}

func newProcessorStub() *processorStub {
	return &processorStub{paused: map[string]time.Time{}}
}

func (p *processorStub) ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return stripe.Event{}, nil
}

func (p *processorStub) GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	return &stripe.CheckoutSession{ID: id}, nil
}

func (p *processorStub) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	if p.getSubscription != nil {
		return p.getSubscription(id)
	}
	return &stripe.Subscription{ID: id}, nil
}

func (p *processorStub) GetCustomer(ctx context.Context, id string) (*stripe.Customer, error) {
	return &stripe.Customer{ID: id}, nil
}

func (p *processorStub) PaymentInfoFromIntent(ctx context.Context, paymentIntentID string) payment.PaymentInfo {
	return payment.PaymentInfo{TransactionID: paymentIntentID}
}

func (p *processorStub) PaymentInfoFromSubscription(ctx context.Context, subscriptionID string) payment.PaymentInfo {
	return payment.PaymentInfo{}
}

func (p *processorStub) PaymentInfoFromInvoice(ctx context.Context, invoiceID string) payment.PaymentInfo {
	return payment.PaymentInfo{InvoiceID: invoiceID}
}

func (p *processorStub) CardInfoFromCharge(ctx context.Context, chargeID string) string {
	return ""
}

func (p *processorStub) CreateRefund(ctx context.Context, paymentIntentID string) error {
	if p.refundErr != nil {
		return p.refundErr
	}
	p.refunded = append(p.refunded, paymentIntentID)
	return nil
}

func (p *processorStub) CancelSubscriptionNow(ctx context.Context, subscriptionID string) error {
	p.canceledNow = append(p.canceledNow, subscriptionID)
	return nil
}

func (p *processorStub) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	p.cancelAtEnd = append(p.cancelAtEnd, subscriptionID)
	return nil
}

func (p *processorStub) PauseSubscription(ctx context.Context, subscriptionID string, resumesAt time.Time) error {
	p.paused[subscriptionID] = resumesAt
	return nil
}

func (p *processorStub) ResumeSubscription(ctx context.Context, subscriptionID string) error {
	p.resumed = append(p.resumed, subscriptionID)
	return nil
}

func (p *processorStub) UpdateSubscriptionShipping(ctx context.Context, subscriptionID string, address payment.ShippingAddress, name, deliveryMethod string) error {
	p.shippingPushes = append(p.shippingPushes, subscriptionID)
	return nil
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
