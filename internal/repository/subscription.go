package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"coffee-commerce-backend/internal/model"
)

type SubscriptionRepository interface {
	// Upsert creates or updates keyed on the processor subscription id; the
	// unique index makes concurrent redelivery safe.
	Upsert(ctx context.Context, sub *model.Subscription) error
	FindByID(ctx context.Context, id string) (*model.Subscription, error)
	FindByProcessorID(ctx context.Context, processorSubscriptionID string) (*model.Subscription, error)
	FindByCustomerID(ctx context.Context, processorCustomerID string) ([]*model.Subscription, error)
	ListAll(ctx context.Context) ([]*model.Subscription, error)
	Update(ctx context.Context, id string, data map[string]interface{}) error
	MarkCanceled(ctx context.Context, processorSubscriptionID string) error
}

type subscriptionRepoImpl struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepoImpl{
		db: db,
	}
}

func (r *subscriptionRepoImpl) Upsert(ctx context.Context, sub *model.Subscription) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stripe_subscription_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"stripe_customer_id",
			"status",
			"cancel_at_period_end",
			"current_period_start",
			"current_period_end",
			"canceled_at",
			"paused_until",
			"delivery_schedule",
			"delivery_method",
			"product_names",
			"product_description",
			"stripe_product_ids",
			"stripe_price_ids",
			"quantities",
			"price_in_cents",
			"recipient_name",
			"recipient_phone",
			"shipping_street",
			"shipping_city",
			"shipping_state",
			"shipping_postal_code",
			"shipping_country",
			"updated_at",
		}),
	}).Create(sub).Error
}

func (r *subscriptionRepoImpl) FindByID(ctx context.Context, id string) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&sub).
		Error

	if err != nil {
		return nil, err
	}

	return &sub, nil
}

func (r *subscriptionRepoImpl) FindByProcessorID(ctx context.Context, processorSubscriptionID string) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.WithContext(ctx).
		Where("stripe_subscription_id = ?", processorSubscriptionID).
		First(&sub).
		Error

	if err != nil {
		return nil, err
	}

	return &sub, nil
}

func (r *subscriptionRepoImpl) FindByCustomerID(ctx context.Context, processorCustomerID string) ([]*model.Subscription, error) {
	var subs []*model.Subscription
	err := r.db.WithContext(ctx).
		Where("stripe_customer_id = ?", processorCustomerID).
		Find(&subs).
		Error

	if err != nil {
		return nil, err
	}

	return subs, nil
}

func (r *subscriptionRepoImpl) ListAll(ctx context.Context) ([]*model.Subscription, error) {
	var subs []*model.Subscription
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&subs).
		Error

	if err != nil {
		return nil, err
	}

	return subs, nil
}

func (r *subscriptionRepoImpl) Update(ctx context.Context, id string, data map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("id = ?", id).
		Updates(data).
		Error
}

func (r *subscriptionRepoImpl) MarkCanceled(ctx context.Context, processorSubscriptionID string) error {
	return r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("stripe_subscription_id = ?", processorSubscriptionID).
		Updates(map[string]interface{}{
			"status":      model.SubscriptionStatusCanceled,
			"canceled_at": time.Now(),
		}).
		Error
}
