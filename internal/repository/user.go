package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"coffee-commerce-backend/internal/model"
)

type UserRepository interface {
	// FindByEmail is case-insensitive: checkout emails can differ in casing
	// from the stored account email.
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	// FindByProcessorCustomerID resolves a user via order history, which is
	// the only place the processor customer id is recorded.
	FindByProcessorCustomerID(ctx context.Context, processorCustomerID string) (*model.User, error)
	UpdateContactInfo(ctx context.Context, userID string, data map[string]interface{}) error
}

type userRepoImpl struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepoImpl{
		db: db,
	}
}

func (r *userRepoImpl) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = LOWER(?)", email).
		First(&user).
		Error

	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (r *userRepoImpl) FindByProcessorCustomerID(ctx context.Context, processorCustomerID string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Joins("JOIN orders ON orders.user_id = users.id").
		Where("orders.stripe_customer_id = ?", processorCustomerID).
		First(&user).
		Error

	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (r *userRepoImpl) UpdateContactInfo(ctx context.Context, userID string, data map[string]interface{}) error {
	data["updated_at"] = time.Now()
	return r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Updates(data).
		Error
}
