package repository

import (
	"context"

	"gorm.io/gorm"

	"coffee-commerce-backend/internal/model"
)

type CatalogRepository interface {
	FindOptions(ctx context.Context, optionIDs []string) ([]*model.PurchaseOption, error)
	FindSubscriptionOptionByProductName(ctx context.Context, productName string) (*model.PurchaseOption, error)
	DecrementStock(ctx context.Context, tx *gorm.DB, variantID string, quantity int32) error
	IncrementStock(ctx context.Context, tx *gorm.DB, variantID string, quantity int32) error
}

type catalogRepoImpl struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepoImpl{
		db: db,
	}
}

func (r *catalogRepoImpl) FindOptions(ctx context.Context, optionIDs []string) ([]*model.PurchaseOption, error) {
	var options []*model.PurchaseOption
	err := r.db.WithContext(ctx).
		Preload("Variant").
		Preload("Variant.Product").
		Where("id IN ?", optionIDs).
		Find(&options).
		Error

	if err != nil {
		return nil, err
	}

	return options, nil
}

// FindSubscriptionOptionByProductName resolves a renewal line item back to
// its purchase option by matching the product name carried on the processor
// subscription. Names are the only key the processor retains across billing
// cycles.
func (r *catalogRepoImpl) FindSubscriptionOptionByProductName(ctx context.Context, productName string) (*model.PurchaseOption, error) {
	var option model.PurchaseOption
	err := r.db.WithContext(ctx).
		Preload("Variant").
		Preload("Variant.Product").
		Joins("JOIN product_variants ON product_variants.id = purchase_options.variant_id").
		Joins("JOIN products ON products.id = product_variants.product_id").
		Where("purchase_options.type = ?", model.PurchaseTypeSubscription).
		Where("products.name LIKE ?", "%"+productName+"%").
		First(&option).
		Error

	if err != nil {
		return nil, err
	}

	return &option, nil
}

func (r *catalogRepoImpl) DecrementStock(ctx context.Context, tx *gorm.DB, variantID string, quantity int32) error {
	return tx.WithContext(ctx).
		Model(&model.ProductVariant{}).
		Where("id = ?", variantID).
		UpdateColumn("stock_quantity", gorm.Expr("stock_quantity - ?", quantity)).
		Error
}

func (r *catalogRepoImpl) IncrementStock(ctx context.Context, tx *gorm.DB, variantID string, quantity int32) error {
	return tx.WithContext(ctx).
		Model(&model.ProductVariant{}).
		Where("id = ?", variantID).
		UpdateColumn("stock_quantity", gorm.Expr("stock_quantity + ?", quantity)).
		Error
}
