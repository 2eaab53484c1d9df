package webhook

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"coffee-commerce-backend/internal/model"
	"coffee-commerce-backend/internal/notify"
	"coffee-commerce-backend/internal/payment"
	"coffee-commerce-backend/internal/repository"
	"coffee-commerce-backend/internal/service"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
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

// processorStub satisfies the processor surface without network calls.
type processorStub struct {
	session        *stripe.CheckoutSession
	subscription   *stripe.Subscription
	canceledNow    []string
	shippingPushes []string
}

func (p *processorStub) ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return stripe.Event{}, nil
}

func (p *processorStub) GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	if p.session != nil {
		return p.session, nil
	}
	return &stripe.CheckoutSession{ID: id}, nil
}

func (p *processorStub) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	if p.subscription != nil {
		return p.subscription, nil
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
	return nil
}

func (p *processorStub) CancelSubscriptionNow(ctx context.Context, subscriptionID string) error {
	p.canceledNow = append(p.canceledNow, subscriptionID)
	return nil
}

func (p *processorStub) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	return nil
}

func (p *processorStub) PauseSubscription(ctx context.Context, subscriptionID string, resumesAt time.Time) error {
	return nil
}

func (p *processorStub) ResumeSubscription(ctx context.Context, subscriptionID string) error {
	return nil
}

func (p *processorStub) UpdateSubscriptionShipping(ctx context.Context, subscriptionID string, address payment.ShippingAddress, name, deliveryMethod string) error {
	p.shippingPushes = append(p.shippingPushes, subscriptionID)
	return nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *gorm.DB, *processorStub) {
	t.Helper()

	db := newTestDB(t)
	log := zap.NewNop()
	processor := &processorStub{}

	catalogRepo := repository.NewCatalogRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	userRepo := repository.NewUserRepository(db)

	inventory := service.NewInventoryService(db, catalogRepo, orderRepo, log)
	orders := service.NewOrderService(db, orderRepo, catalogRepo, inventory, log)
	subscriptions := service.NewSubscriptionService(subscriptionRepo, orderRepo, orders, processor, log)
	users := service.NewUserService(userRepo)

	handlers := NewHandlers(processor, users, orders, subscriptions, notify.NewLogNotifier(log), log)
	return NewDispatcher(handlers, log), db, processor
}

func testEvent(t *testing.T, eventType stripe.EventType, object interface{}) *stripe.Event {
	t.Helper()

	raw, err := json.Marshal(object)
	require.NoError(t, err)

	return &stripe.Event{
		ID:   "evt_1",
		Type: eventType,
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestDispatchUnknownEventTypeIsAcknowledged(t *testing.T) {
	dispatcher, _, _ := newTestDispatcher(t)

	result := dispatcher.Dispatch(context.Background(), &stripe.Event{
		ID:   "evt_1",
		Type: stripe.EventType("payment_method.attached"),
	})

	assert.True(t, result.Success)
	assert.NoError(t, result.Error)
}

func TestDispatchSubscriptionUpdatedUnknownSubscription(t *testing.T) {
	dispatcher, db, _ := newTestDispatcher(t)

	event := testEvent(t, stripe.EventTypeCustomerSubscriptionUpdated, map[string]interface{}{
		"id":     "sub_unknown",
		"object": "subscription",
		"status": "active",
	})

	result := dispatcher.Dispatch(context.Background(), event)

	assert.True(t, result.Success)

	var count int64
	require.NoError(t, db.Model(&model.Subscription{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDispatchSubscriptionDeleted(t *testing.T) {
	dispatcher, db, _ := newTestDispatcher(t)

	require.NoError(t, db.Create(&model.Subscription{
		ID:                   "local-1",
		StripeSubscriptionID: "sub_1",
		StripeCustomerID:     "cus_1",
		UserID:               "user-1",
		Status:               model.SubscriptionStatusActive,
	}).Error)

	event := testEvent(t, stripe.EventTypeCustomerSubscriptionDeleted, map[string]interface{}{
		"id":     "sub_1",
		"object": "subscription",
		"status": "canceled",
	})

	result := dispatcher.Dispatch(context.Background(), event)
	assert.True(t, result.Success)

	var sub model.Subscription
	require.NoError(t, db.First(&sub, "stripe_subscription_id = ?", "sub_1").Error)
	assert.Equal(t, model.SubscriptionStatusCanceled, sub.Status)
}

func TestDispatchCustomerUpdatedWithoutChanges(t *testing.T) {
	dispatcher, _, _ := newTestDispatcher(t)

	event := testEvent(t, stripe.EventTypeCustomerUpdated, map[string]interface{}{
		"id":     "cus_1",
		"object": "customer",
		"email":  "jo@example.com",
	})

	result := dispatcher.Dispatch(context.Background(), event)

	assert.True(t, result.Success)
	assert.Equal(t, "customer update carries no shipping or phone change", result.Message)
}

func TestDispatchCheckoutCompletedSubscription(t *testing.T) {
	dispatcher, db, processor := newTestDispatcher(t)

	require.NoError(t, db.Create(&model.Product{ID: "prod-1", Name: "House Blend"}).Error)
	require.NoError(t, db.Create(&model.ProductVariant{
		ID:            "var-1",
		ProductID:     "prod-1",
		Name:          "250g",
		StockQuantity: 5,
	}).Error)
	require.NoError(t, db.Create(&model.PurchaseOption{
		ID:              "opt-sub",
		VariantID:       "var-1",
		Type:            model.PurchaseTypeSubscription,
		PriceInCents:    1000,
		BillingInterval: "week",
		IntervalCount:   2,
	}).Error)
	require.NoError(t, db.Create(&model.User{ID: "user-1", Email: "jo@example.com"}).Error)

	processor.session = &stripe.CheckoutSession{
		ID:            "cs_1",
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
		AmountTotal:   1500,
		Metadata: map[string]string{
			"cartItems": `[{"purchaseOptionId":"opt-sub","quantity":1}]`,
		},
		Customer:     &stripe.Customer{ID: "cus_1"},
		Subscription: &stripe.Subscription{ID: "sub_1"},
		CustomerDetails: &stripe.CheckoutSessionCustomerDetails{
			Email: "jo@example.com",
			Name:  "Jo Kim",
		},
		ShippingDetails: &stripe.ShippingDetails{
			Name: "Jo Kim",
			Address: &stripe.Address{
				Line1:      "1 Pike Pl",
				City:       "Seattle",
				State:      "WA",
				PostalCode: "98101",
				Country:    "US",
			},
		},
	}
	processor.subscription = &stripe.Subscription{
		ID:                 "sub_1",
		Status:             stripe.SubscriptionStatusActive,
		Customer:           &stripe.Customer{ID: "cus_1"},
		CurrentPeriodStart: time.Now().Unix(),
		CurrentPeriodEnd:   time.Now().AddDate(0, 0, 14).Unix(),
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{{
				Quantity: 1,
				Price: &stripe.Price{
					ID:         "price_1",
					UnitAmount: 1000,
					Product:    &stripe.Product{ID: "prod_stripe_1", Name: "House Blend"},
					Recurring: &stripe.PriceRecurring{
						Interval:      stripe.PriceRecurringIntervalWeek,
						IntervalCount: 2,
					},
				},
			}},
		},
	}

	event := testEvent(t, stripe.EventTypeCheckoutSessionCompleted, map[string]interface{}{
		"id":     "cs_1",
		"object": "checkout.session",
	})

	result := dispatcher.Dispatch(context.Background(), event)
	require.NoError(t, result.Error)
	assert.True(t, result.Success)

	// The order carries the processor subscription id from creation; no
	// later linking step exists.
	var orders []model.Order
	require.NoError(t, db.Find(&orders).Error)
	require.Len(t, orders, 1)
	assert.Equal(t, "sub_1", orders[0].StripeSubscriptionID)
	assert.Equal(t, int64(1500), orders[0].TotalInCents)
	assert.Equal(t, model.OrderStatusPending, orders[0].Status)

	var sub model.Subscription
	require.NoError(t, db.First(&sub, "stripe_subscription_id = ?", "sub_1").Error)
	assert.Equal(t, model.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, "Every 2 weeks", sub.DeliverySchedule)

	assert.Equal(t, []string{"sub_1"}, processor.shippingPushes)

	var variant model.ProductVariant
	require.NoError(t, db.First(&variant, "id = ?", "var-1").Error)
	assert.Equal(t, int32(4), variant.StockQuantity)
}

func TestDispatchInvoiceWithoutSubscription(t *testing.T) {
	dispatcher, _, _ := newTestDispatcher(t)

	event := testEvent(t, stripe.EventTypeInvoicePaymentSucceeded, map[string]interface{}{
		"id":     "in_1",
		"object": "invoice",
	})

	result := dispatcher.Dispatch(context.Background(), event)

	assert.True(t, result.Success)
	assert.Equal(t, "invoice is not tied to a subscription", result.Message)
}
