package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"coffee-commerce-backend/internal/model"
	"coffee-commerce-backend/internal/payment"
	"coffee-commerce-backend/internal/repository"
)

// InventoryService validates cart lines against the catalog and keeps stock
// counts in step with order creation and cancellation.
type InventoryService interface {
	FetchOptions(ctx context.Context, optionIDs []string) ([]*model.PurchaseOption, error)
	Validate(items []payment.CartItem, options []*model.PurchaseOption) error
	SplitByType(items []payment.CartItem, options []*model.PurchaseOption) (oneTime, subscription []payment.CartItem)
	Subtotal(items []payment.CartItem, options []*model.PurchaseOption) int64
	Decrement(ctx context.Context, items []model.OrderItem)
	Restore(ctx context.Context, tx *gorm.DB, orderID string) error
}

type inventoryServiceImpl struct {
	catalogRepo repository.CatalogRepository
	orderRepo   repository.OrderRepository
	db          *gorm.DB
	log         *zap.Logger
}

func NewInventoryService(db *gorm.DB, catalogRepo repository.CatalogRepository, orderRepo repository.OrderRepository, log *zap.Logger) InventoryService {
	return &inventoryServiceImpl{
		catalogRepo: catalogRepo,
		orderRepo:   orderRepo,
		db:          db,
		log:         log,
	}
}

func (s *inventoryServiceImpl) FetchOptions(ctx context.Context, optionIDs []string) ([]*model.PurchaseOption, error) {
	options, err := s.catalogRepo.FindOptions(ctx, optionIDs)
	if err != nil {
		return nil, fmt.Errorf("fetch purchase options: %w", err)
	}
	return options, nil
}

// Validate is all-or-nothing: any failing line aborts the whole checkout.
func (s *inventoryServiceImpl) Validate(items []payment.CartItem, options []*model.PurchaseOption) error {
	byID := optionsByID(options)

	for _, item := range items {
		option, ok := byID[item.PurchaseOptionID]
		if !ok {
			return &ValidationError{
				Code:    CodeInvalidPurchaseOption,
				Message: fmt.Sprintf("Invalid purchase option: %s", item.PurchaseOptionID),
			}
		}

		if option.Variant.Product.IsDisabled {
			return &ValidationError{
				Code:    CodeProductUnavailable,
				Message: fmt.Sprintf("%s is unavailable and cannot be purchased.", option.Variant.Product.Name),
			}
		}

		if option.Variant.IsDisabled {
			return &ValidationError{
				Code:    CodeProductUnavailable,
				Message: fmt.Sprintf("%s - %s is unavailable and cannot be purchased.", option.Variant.Product.Name, option.Variant.Name),
			}
		}

		if option.Variant.StockQuantity < item.Quantity {
			return &ValidationError{
				Code:    CodeInsufficientStock,
				Message: fmt.Sprintf("%s - %s does not have enough stock for this order.", option.Variant.Product.Name, option.Variant.Name),
			}
		}
	}

	return nil
}

func (s *inventoryServiceImpl) SplitByType(items []payment.CartItem, options []*model.PurchaseOption) (oneTime, subscription []payment.CartItem) {
	byID := optionsByID(options)

	for _, item := range items {
		option, ok := byID[item.PurchaseOptionID]
		if !ok {
			continue
		}
		switch option.Type {
		case model.PurchaseTypeOneTime:
			oneTime = append(oneTime, item)
		case model.PurchaseTypeSubscription:
			subscription = append(subscription, item)
		}
	}

	return oneTime, subscription
}

func (s *inventoryServiceImpl) Subtotal(items []payment.CartItem, options []*model.PurchaseOption) int64 {
	byID := optionsByID(options)

	var total int64
	for _, item := range items {
		if option, ok := byID[item.PurchaseOptionID]; ok {
			total += option.PriceInCents * int64(item.Quantity)
		}
	}

	return total
}

// Decrement runs after the order is durably created. The order is the source
// of truth; a failed decrement is logged and the remaining lines continue.
func (s *inventoryServiceImpl) Decrement(ctx context.Context, items []model.OrderItem) {
	for _, item := range items {
		variantID := item.PurchaseOption.VariantID
		if variantID == "" {
			s.log.Error("cannot decrement stock, order item has no variant",
				zap.String("purchase_option_id", item.PurchaseOptionID))
			continue
		}

		if err := s.catalogRepo.DecrementStock(ctx, s.db, variantID, item.Quantity); err != nil {
			s.log.Error("failed to decrement stock",
				zap.String("variant_id", variantID),
				zap.Int32("quantity", item.Quantity),
				zap.Error(err))
			continue
		}

		s.log.Debug("decremented stock",
			zap.String("variant_id", variantID),
			zap.Int32("quantity", item.Quantity))
	}
}

// Restore puts every item of an order back in stock. Used on cancellation
// and refund, inside the same transaction that cancels the order.
func (s *inventoryServiceImpl) Restore(ctx context.Context, tx *gorm.DB, orderID string) error {
	order, err := s.orderRepo.FindWithItems(ctx, tx, orderID)
	if err != nil {
		return fmt.Errorf("load order %s for inventory restoration: %w", orderID, err)
	}

	for _, item := range order.Items {
		if err := s.catalogRepo.IncrementStock(ctx, tx, item.PurchaseOption.VariantID, item.Quantity); err != nil {
			return fmt.Errorf("restore stock for variant %s: %w", item.PurchaseOption.VariantID, err)
		}
		s.log.Debug("restored stock",
			zap.String("variant_id", item.PurchaseOption.VariantID),
			zap.Int32("quantity", item.Quantity))
	}

	return nil
}

func optionsByID(options []*model.PurchaseOption) map[string]*model.PurchaseOption {
	byID := make(map[string]*model.PurchaseOption, len(options))
	for _, option := range options {
		byID[option.ID] = option
	}
	return byID
}
