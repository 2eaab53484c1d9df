package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"coffee-commerce-backend/internal/model"
)

type OrderRepository interface {
	Create(ctx context.Context, tx *gorm.DB, order *model.Order) error
	FindWithItems(ctx context.Context, tx *gorm.DB, orderID string) (*model.Order, error)
	FindByInvoiceID(ctx context.Context, invoiceID string) (*model.Order, error)
	FindPendingBySubscriptionID(ctx context.Context, subscriptionID string) ([]*model.Order, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, orderID string, status model.OrderStatus) error
	BackfillBySubscriptionID(ctx context.Context, subscriptionID string, data map[string]interface{}) (int64, error)
	BackfillByCustomerWindow(ctx context.Context, customerID string, since time.Time, data map[string]interface{}) (int64, error)
	UpdatePendingBySubscriptionID(ctx context.Context, subscriptionID string, data map[string]interface{}) (int64, error)
	UpdatePendingOneTimeByCustomerID(ctx context.Context, customerID string, data map[string]interface{}) (int64, error)
}

type orderRepoImpl struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepoImpl{
		db: db,
	}
}

func (r *orderRepoImpl) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	return tx.WithContext(ctx).Create(order).Error
}

// FindWithItems goes through the caller's handle so it can run inside the
// transaction that cancels the order.
func (r *orderRepoImpl) FindWithItems(ctx context.Context, tx *gorm.DB, orderID string) (*model.Order, error) {
	var order model.Order
	err := tx.WithContext(ctx).
		Preload("Items").
		Preload("Items.PurchaseOption").
		Preload("Items.PurchaseOption.Variant").
		Preload("Items.PurchaseOption.Variant.Product").
		Where("id = ?", orderID).
		First(&order).
		Error

	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) FindByInvoiceID(ctx context.Context, invoiceID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("stripe_invoice_id = ?", invoiceID).
		First(&order).
		Error

	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) FindPendingBySubscriptionID(ctx context.Context, subscriptionID string) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("stripe_subscription_id = ?", subscriptionID).
		Where("status = ?", model.OrderStatusPending).
		Find(&orders).
		Error

	if err != nil {
		return nil, err
	}

	return orders, nil
}

func (r *orderRepoImpl) UpdateStatus(ctx context.Context, tx *gorm.DB, orderID string, status model.OrderStatus) error {
	return tx.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).
		Error
}

// BackfillBySubscriptionID stamps payment ids onto orders that do not carry
// a payment intent yet. The condition makes redelivered events no-ops.
func (r *orderRepoImpl) BackfillBySubscriptionID(ctx context.Context, subscriptionID string, data map[string]interface{}) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("stripe_subscription_id = ?", subscriptionID).
		Where("stripe_payment_intent_id = ''").
		Updates(data)

	return result.RowsAffected, result.Error
}

// BackfillByCustomerWindow covers the race between checkout order creation
// and the first invoice payment: the order may not carry a subscription id
// yet, so fall back to recent unstamped orders for the same customer.
func (r *orderRepoImpl) BackfillByCustomerWindow(ctx context.Context, customerID string, since time.Time, data map[string]interface{}) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("stripe_customer_id = ?", customerID).
		Where("stripe_payment_intent_id = ''").
		Where("stripe_subscription_id = ''").
		Where("created_at >= ?", since).
		Updates(data)

	return result.RowsAffected, result.Error
}

func (r *orderRepoImpl) UpdatePendingBySubscriptionID(ctx context.Context, subscriptionID string, data map[string]interface{}) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("stripe_subscription_id = ?", subscriptionID).
		Where("status = ?", model.OrderStatusPending).
		Updates(data)

	return result.RowsAffected, result.Error
}

func (r *orderRepoImpl) UpdatePendingOneTimeByCustomerID(ctx context.Context, customerID string, data map[string]interface{}) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("stripe_customer_id = ?", customerID).
		Where("status = ?", model.OrderStatusPending).
		Where("stripe_subscription_id = ''").
		Updates(data)

	return result.RowsAffected, result.Error
}
