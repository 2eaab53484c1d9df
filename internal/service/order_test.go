package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"coffee-commerce-backend/internal/model"
	"coffee-commerce-backend/internal/payment"
	"coffee-commerce-backend/internal/repository"
)

func newOrderService(t *testing.T, db *gorm.DB) OrderService {
	t.Helper()

	catalogRepo := repository.NewCatalogRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	inventory := NewInventoryService(db, catalogRepo, orderRepo, testLogger())
	return NewOrderService(db, orderRepo, catalogRepo, inventory, testLogger())
}

func testCheckout(items []payment.CartItem, totalInCents, discountInCents int64) payment.Checkout {
	return payment.Checkout{
		SessionID: "cs_test_1",
		Customer: payment.Customer{
			ProcessorCustomerID: "cus_1",
			Email:               "jo@example.com",
		},
		Items:                 items,
		DeliveryMethod:        payment.DeliveryMethodDelivery,
		TotalInCents:          totalInCents,
		DiscountAmountInCents: discountInCents,
		ShippingAddress: &payment.ShippingAddress{
			Name:  "Jo Coffee",
			Line1: "1 Roastery Way",
			City:  "Portland",
		},
		ShippingName: "Jo Coffee",
	}
}

func TestCreateFromCheckoutOneTimeWithShipping(t *testing.T) {
	db := newTestDB(t)
	option := seedOption(t, db, "opt-once", "House Blend", model.PurchaseTypeOneTime, 1500, 10)
	orders := newOrderService(t, db)

	// Cart subtotal 3000, grand total 3500: the residual 500 is shipping.
	checkout := testCheckout([]payment.CartItem{{PurchaseOptionID: "opt-once", Quantity: 2}}, 3500, 0)

	created, err := orders.CreateFromCheckout(context.Background(), checkout, "user-1")
	require.NoError(t, err)
	require.Len(t, created, 1)

	assert.Equal(t, int64(3500), created[0].TotalInCents)
	assert.Equal(t, int64(0), created[0].DiscountAmountInCents)
	assert.Equal(t, model.OrderStatusPending, created[0].Status)
	assert.Equal(t, "1 Roastery Way", created[0].ShippingStreet)
	assert.Equal(t, int32(8), variantStock(t, db, option.VariantID))
}

func TestCreateFromCheckoutDiscountStaysOnOneTimeOrder(t *testing.T) {
	db := newTestDB(t)
	seedOption(t, db, "opt-once", "House Blend", model.PurchaseTypeOneTime, 1500, 10)
	orders := newOrderService(t, db)

	// Subtotal 3000, discount 500, grand total 3000: shipping residual is
	// 3000 + 500 - 3000 = 500.
	checkout := testCheckout([]payment.CartItem{{PurchaseOptionID: "opt-once", Quantity: 2}}, 3000, 500)

	created, err := orders.CreateFromCheckout(context.Background(), checkout, "user-1")
	require.NoError(t, err)
	require.Len(t, created, 1)

	assert.Equal(t, int64(3500), created[0].TotalInCents)
	assert.Equal(t, int64(500), created[0].DiscountAmountInCents)
}

func TestCreateFromCheckoutMixedCartSplitsIntoTwoOrders(t *testing.T) {
	db := newTestDB(t)
	onceOption := seedOption(t, db, "opt-once", "House Blend", model.PurchaseTypeOneTime, 1500, 10)
	subOption := seedOption(t, db, "opt-sub", "Dark Roast", model.PurchaseTypeSubscription, 1000, 10)
	orders := newOrderService(t, db)

	// One-time 3000 + subscription 1000 + shipping 500, discount 200.
	checkout := testCheckout([]payment.CartItem{
		{PurchaseOptionID: "opt-once", Quantity: 2},
		{PurchaseOptionID: "opt-sub", Quantity: 1},
	}, 4300, 200)
	checkout.SubscriptionID = "sub_1"

	created, err := orders.CreateFromCheckout(context.Background(), checkout, "user-1")
	require.NoError(t, err)
	require.Len(t, created, 2)

	oneTimeOrder, subOrder := created[0], created[1]

	// Shipping and the whole discount land on the one-time order; the
	// subscription order is exactly its subtotal.
	assert.Equal(t, int64(3500), oneTimeOrder.TotalInCents)
	assert.Equal(t, int64(200), oneTimeOrder.DiscountAmountInCents)
	assert.Empty(t, oneTimeOrder.StripeSubscriptionID)

	assert.Equal(t, int64(1000), subOrder.TotalInCents)
	assert.Equal(t, int64(0), subOrder.DiscountAmountInCents)
	assert.Equal(t, "sub_1", subOrder.StripeSubscriptionID)

	assert.Equal(t, int32(8), variantStock(t, db, onceOption.VariantID))
	assert.Equal(t, int32(9), variantStock(t, db, subOption.VariantID))
}

func TestCreateFromCheckoutSubscriptionOnlyAbsorbsShippingAndDiscount(t *testing.T) {
	db := newTestDB(t)
	seedOption(t, db, "opt-sub", "Dark Roast", model.PurchaseTypeSubscription, 1000, 10)
	orders := newOrderService(t, db)

	// Subtotal 1000, discount 100, grand total 1400: shipping 500.
	checkout := testCheckout([]payment.CartItem{{PurchaseOptionID: "opt-sub", Quantity: 1}}, 1400, 100)
	checkout.SubscriptionID = "sub_1"

	created, err := orders.CreateFromCheckout(context.Background(), checkout, "user-1")
	require.NoError(t, err)
	require.Len(t, created, 1)

	assert.Equal(t, int64(1500), created[0].TotalInCents)
	assert.Equal(t, int64(100), created[0].DiscountAmountInCents)
	assert.Equal(t, "sub_1", created[0].StripeSubscriptionID)
}

func TestCreateFromCheckoutFullDiscount(t *testing.T) {
	db := newTestDB(t)
	seedOption(t, db, "opt-once", "House Blend", model.PurchaseTypeOneTime, 1500, 10)
	orders := newOrderService(t, db)

	// 100% promo code on a pickup order: everything free, no shipping.
	checkout := testCheckout([]payment.CartItem{{PurchaseOptionID: "opt-once", Quantity: 1}}, 0, 1500)
	checkout.DeliveryMethod = payment.DeliveryMethodPickup

	created, err := orders.CreateFromCheckout(context.Background(), checkout, "user-1")
	require.NoError(t, err)
	require.Len(t, created, 1)

	assert.Equal(t, int64(1500), created[0].TotalInCents)
	assert.Equal(t, int64(1500), created[0].DiscountAmountInCents)
}

func TestCreateFromCheckoutValidationFailureCreatesNothing(t *testing.T) {
	db := newTestDB(t)
	option := seedOption(t, db, "opt-once", "House Blend", model.PurchaseTypeOneTime, 1500, 1)
	orders := newOrderService(t, db)

	checkout := testCheckout([]payment.CartItem{{PurchaseOptionID: "opt-once", Quantity: 5}}, 7500, 0)

	_, err := orders.CreateFromCheckout(context.Background(), checkout, "user-1")

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, CodeInsufficientStock, validation.Code)

	var count int64
	require.NoError(t, db.Model(&model.Order{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, int32(1), variantStock(t, db, option.VariantID))
}

func testRenewalParams(invoiceID string) RenewalParams {
	return RenewalParams{
		SubscriptionID:    "sub_1",
		CustomerID:        "cus_1",
		UserID:            "user-1",
		UserEmail:         "jo@example.com",
		UserName:          "Jo Coffee",
		ProductNames:      []string{"Dark Roast - Every 2 weeks"},
		Quantities:        []int32{1},
		TotalPriceInCents: 2500,
		ShippingCost:      500,
		DeliveryMethod:    model.DeliveryMethodDelivery,
		PaymentInfo:       payment.PaymentInfo{TransactionID: "pi_renewal", InvoiceID: invoiceID},
		ShippingAddress: &payment.ShippingAddress{
			Name:  "Jo Coffee",
			Line1: "1 Roastery Way",
		},
	}
}

func TestCreateRenewalOrder(t *testing.T) {
	db := newTestDB(t)
	option := seedOption(t, db, "opt-sub", "Dark Roast", model.PurchaseTypeSubscription, 2500, 10)
	orders := newOrderService(t, db)

	order, err := orders.CreateRenewalOrder(context.Background(), testRenewalParams("in_1"))
	require.NoError(t, err)
	require.NotNil(t, order)

	assert.Equal(t, int64(3000), order.TotalInCents)
	assert.Equal(t, "in_1", order.StripeInvoiceID)
	assert.Equal(t, "sub_1", order.StripeSubscriptionID)
	assert.Equal(t, model.OrderStatusPending, order.Status)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "opt-sub", order.Items[0].PurchaseOptionID)
	assert.Equal(t, int32(9), variantStock(t, db, option.VariantID))
}

func TestCreateRenewalOrderIdempotentOnInvoiceID(t *testing.T) {
	db := newTestDB(t)
	option := seedOption(t, db, "opt-sub", "Dark Roast", model.PurchaseTypeSubscription, 2500, 10)
	orders := newOrderService(t, db)
	ctx := context.Background()

	first, err := orders.CreateRenewalOrder(ctx, testRenewalParams("in_1"))
	require.NoError(t, err)

	second, err := orders.CreateRenewalOrder(ctx, testRenewalParams("in_1"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&model.Order{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, int32(9), variantStock(t, db, option.VariantID))
}

func TestCreateRenewalOrderSkipsUnmatchedLines(t *testing.T) {
	db := newTestDB(t)
	orders := newOrderService(t, db)

	params := testRenewalParams("in_1")
	params.ProductNames = []string{"Discontinued Roast"}

	order, err := orders.CreateRenewalOrder(context.Background(), params)
	require.NoError(t, err)
	assert.Nil(t, order)

	var count int64
	require.NoError(t, db.Model(&model.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestBackfillPaymentIDsBySubscription(t *testing.T) {
	db := newTestDB(t)
	orders := newOrderService(t, db)
	ctx := context.Background()

	require.NoError(t, db.Create(&model.Order{
		ID:                   "order-1",
		StripeSubscriptionID: "sub_1",
		StripeCustomerID:     "cus_1",
		Status:               model.OrderStatusPending,
	}).Error)

	params := BackfillParams{
		SubscriptionID:  "sub_1",
		CustomerID:      "cus_1",
		PaymentIntentID: "pi_1",
		ChargeID:        "ch_1",
		InvoiceID:       "in_1",
	}

	count, err := orders.BackfillPaymentIDs(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	var order model.Order
	require.NoError(t, db.First(&order, "id = ?", "order-1").Error)
	assert.Equal(t, "pi_1", order.StripePaymentIntentID)
	assert.Equal(t, "ch_1", order.StripeChargeID)
	assert.Equal(t, "in_1", order.StripeInvoiceID)

	// Redelivery is a no-op once the payment intent is stamped.
	count, err = orders.BackfillPaymentIDs(ctx, params)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestBackfillPaymentIDsCustomerWindowFallback(t *testing.T) {
	db := newTestDB(t)
	orders := newOrderService(t, db)
	ctx := context.Background()

	// The checkout order has not been linked to its subscription yet.
	require.NoError(t, db.Create(&model.Order{
		ID:               "order-1",
		StripeCustomerID: "cus_1",
		Status:           model.OrderStatusPending,
	}).Error)

	count, err := orders.BackfillPaymentIDs(ctx, BackfillParams{
		SubscriptionID:  "sub_1",
		CustomerID:      "cus_1",
		PaymentIntentID: "pi_1",
		InvoiceID:       "in_1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	var order model.Order
	require.NoError(t, db.First(&order, "id = ?", "order-1").Error)
	assert.Equal(t, "sub_1", order.StripeSubscriptionID)
	assert.Equal(t, "pi_1", order.StripePaymentIntentID)
}

func TestBackfillPaymentIDsIgnoresOldOrders(t *testing.T) {
	db := newTestDB(t)
	orders := newOrderService(t, db)

	stale := &model.Order{
		ID:               "order-old",
		StripeCustomerID: "cus_1",
		Status:           model.OrderStatusPending,
	}
	require.NoError(t, db.Create(stale).Error)
	require.NoError(t, db.Model(stale).UpdateColumn("created_at", time.Now().Add(-time.Hour)).Error)

	count, err := orders.BackfillPaymentIDs(context.Background(), BackfillParams{
		SubscriptionID:  "sub_1",
		CustomerID:      "cus_1",
		PaymentIntentID: "pi_1",
		InvoiceID:       "in_1",
	})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCancelRestoresStock(t *testing.T) {
	db := newTestDB(t)
	option := seedOption(t, db, "opt-once", "House Blend", model.PurchaseTypeOneTime, 1500, 10)
	orders := newOrderService(t, db)
	ctx := context.Background()

	checkout := testCheckout([]payment.CartItem{{PurchaseOptionID: "opt-once", Quantity: 2}}, 3000, 0)
	created, err := orders.CreateFromCheckout(ctx, checkout, "user-1")
	require.NoError(t, err)
	require.Len(t, created, 1)
	require.Equal(t, int32(8), variantStock(t, db, option.VariantID))

	require.NoError(t, orders.Cancel(ctx, created[0].ID))

	var order model.Order
	require.NoError(t, db.First(&order, "id = ?", created[0].ID).Error)
	assert.Equal(t, model.OrderStatusCancelled, order.Status)
	assert.Equal(t, int32(10), variantStock(t, db, option.VariantID))
}
