package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"coffee-commerce-backend/internal/model"
	"coffee-commerce-backend/internal/repository"
)

type UserService interface {
	// FindByEmail matches case-insensitively. ErrUserNotFound when no
	// account exists for the address.
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	// FindByProcessorCustomerID resolves the account through prior order
	// history.
	FindByProcessorCustomerID(ctx context.Context, customerID string) (*model.User, error)
	// RefreshContactInfo fills in name and phone from checkout data
	// without overwriting existing values with blanks.
	RefreshContactInfo(ctx context.Context, userID, name, phone string) error
}

type userServiceImpl struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) UserService {
	return &userServiceImpl{
		userRepo: userRepo,
	}
}

func (s *userServiceImpl) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return user, nil
}

func (s *userServiceImpl) FindByProcessorCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	user, err := s.userRepo.FindByProcessorCustomerID(ctx, customerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user by customer id %s: %w", customerID, err)
	}
	return user, nil
}

func (s *userServiceImpl) RefreshContactInfo(ctx context.Context, userID, name, phone string) error {
	data := map[string]interface{}{}
	if name != "" {
		data["name"] = name
	}
	if phone != "" {
		data["phone"] = phone
	}
	if len(data) == 0 {
		return nil
	}

	if err := s.userRepo.UpdateContactInfo(ctx, userID, data); err != nil {
		return fmt.Errorf("refresh contact info for user %s: %w", userID, err)
	}
	return nil
}
