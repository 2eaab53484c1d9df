package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"coffee-commerce-backend/internal/model"
	"coffee-commerce-backend/internal/payment"
	"coffee-commerce-backend/internal/repository"
)

// backfillWindow bounds the customer-id fallback when stamping payment ids:
// checkout order creation and the first invoice payment race, so an order may
// briefly exist without its subscription id.
const backfillWindow = 5 * time.Minute

type RenewalParams struct {
	SubscriptionID    string
	CustomerID        string
	UserID            string
	UserEmail         string
	UserPhone         string
	UserName          string
	ProductNames      []string
	Quantities        []int32
	TotalPriceInCents int64
	ShippingCost      int64
	ShippingAddress   *payment.ShippingAddress
	DeliveryMethod    model.DeliveryMethod
	PaymentInfo       payment.PaymentInfo
}

type BackfillParams struct {
	SubscriptionID  string
	CustomerID      string
	PaymentIntentID string
	ChargeID        string
	InvoiceID       string
}

type OrderService interface {
	// CreateFromCheckout splits the cart into one-time and subscription
	// groups and persists one order per non-empty group.
	CreateFromCheckout(ctx context.Context, checkout payment.Checkout, userID string) ([]*model.Order, error)
	// CreateRenewalOrder persists one order per billing cycle, idempotent on
	// the processor invoice id. Returns nil when no line resolves.
	CreateRenewalOrder(ctx context.Context, params RenewalParams) (*model.Order, error)
	BackfillPaymentIDs(ctx context.Context, params BackfillParams) (int64, error)
	// Cancel marks the order CANCELLED and restores its inventory in one
	// transaction.
	Cancel(ctx context.Context, orderID string) error
	MarkShipped(ctx context.Context, orderID string) error
	MarkPickedUp(ctx context.Context, orderID string) error
}

type orderServiceImpl struct {
	db          *gorm.DB
	orderRepo   repository.OrderRepository
	catalogRepo repository.CatalogRepository
	inventory   InventoryService
	log         *zap.Logger
}

func NewOrderService(
	db *gorm.DB,
	orderRepo repository.OrderRepository,
	catalogRepo repository.CatalogRepository,
	inventory InventoryService,
	log *zap.Logger,
) OrderService {
	return &orderServiceImpl{
		db:          db,
		orderRepo:   orderRepo,
		catalogRepo: catalogRepo,
		inventory:   inventory,
		log:         log,
	}
}

func (s *orderServiceImpl) CreateFromCheckout(ctx context.Context, checkout payment.Checkout, userID string) ([]*model.Order, error) {
	optionIDs := make([]string, len(checkout.Items))
	for i, item := range checkout.Items {
		optionIDs[i] = item.PurchaseOptionID
	}

	options, err := s.inventory.FetchOptions(ctx, optionIDs)
	if err != nil {
		return nil, err
	}

	if err := s.inventory.Validate(checkout.Items, options); err != nil {
		return nil, err
	}

	oneTimeItems, subscriptionItems := s.inventory.SplitByType(checkout.Items, options)

	oneTimeTotal := s.inventory.Subtotal(oneTimeItems, options)
	subscriptionTotal := s.inventory.Subtotal(subscriptionItems, options)

	// The processor's grand total already has the discount subtracted, so
	// add it back to isolate shipping. Shipping is always this residual,
	// never a direct input.
	shippingCostInCents := checkout.TotalInCents + checkout.DiscountAmountInCents - (oneTimeTotal + subscriptionTotal)

	s.log.Debug("creating orders from checkout",
		zap.String("session_id", checkout.SessionID),
		zap.Int("one_time_items", len(oneTimeItems)),
		zap.Int("subscription_items", len(subscriptionItems)),
		zap.Int64("shipping_in_cents", shippingCostInCents))

	var created []*model.Order

	// Shipping and the full discount ride on the one-time order when one
	// exists; they are never split pro-rata across the pair.
	if len(oneTimeItems) > 0 {
		order, err := s.createSingleOrder(ctx, singleOrderParams{
			checkout:              checkout,
			userID:                userID,
			subscriptionID:        "",
			items:                 oneTimeItems,
			options:               options,
			totalInCents:          oneTimeTotal + shippingCostInCents,
			discountAmountInCents: checkout.DiscountAmountInCents,
		})
		if err != nil {
			return nil, err
		}
		created = append(created, order)
	}

	if len(subscriptionItems) > 0 {
		totalInCents := subscriptionTotal
		var discount int64
		if len(oneTimeItems) == 0 {
			totalInCents += shippingCostInCents
			discount = checkout.DiscountAmountInCents
		}

		order, err := s.createSingleOrder(ctx, singleOrderParams{
			checkout:              checkout,
			userID:                userID,
			subscriptionID:        checkout.SubscriptionID,
			items:                 subscriptionItems,
			options:               options,
			totalInCents:          totalInCents,
			discountAmountInCents: discount,
		})
		if err != nil {
			return nil, err
		}
		created = append(created, order)
	}

	// Best effort: the payment already succeeded, a missed decrement must
	// not fail the checkout.
	for _, order := range created {
		s.inventory.Decrement(ctx, order.Items)
	}

	return created, nil
}

type singleOrderParams struct {
	checkout              payment.Checkout
	userID                string
	subscriptionID        string
	items                 []payment.CartItem
	options               []*model.PurchaseOption
	totalInCents          int64
	discountAmountInCents int64
}

func (s *orderServiceImpl) createSingleOrder(ctx context.Context, params singleOrderParams) (*model.Order, error) {
	byID := optionsByID(params.options)

	order := &model.Order{
		ID:                    uuid.NewString(),
		UserID:                params.userID,
		StripeSessionID:       params.checkout.SessionID,
		StripeSubscriptionID:  params.subscriptionID,
		StripePaymentIntentID: params.checkout.PaymentInfo.TransactionID,
		StripeChargeID:        params.checkout.PaymentInfo.ChargeID,
		StripeInvoiceID:       params.checkout.PaymentInfo.InvoiceID,
		StripeCustomerID:      params.checkout.Customer.ProcessorCustomerID,
		CustomerEmail:         params.checkout.Customer.Email,
		CustomerPhone:         params.checkout.Customer.Phone,
		TotalInCents:          params.totalInCents,
		DiscountAmountInCents: params.discountAmountInCents,
		Status:                model.OrderStatusPending,
		DeliveryMethod:        model.DeliveryMethod(params.checkout.DeliveryMethod),
		PaymentCardLast4:      params.checkout.PaymentInfo.CardLast4,
	}
	applyShipping(order, params.checkout.ShippingAddress, params.checkout.ShippingName)

	for _, item := range params.items {
		option := byID[item.PurchaseOptionID]
		order.Items = append(order.Items, model.OrderItem{
			OrderID:          order.ID,
			PurchaseOptionID: item.PurchaseOptionID,
			Quantity:         item.Quantity,
			PriceInCents:     option.PriceInCents,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.orderRepo.Create(ctx, tx, order)
	})
	if err != nil {
		return nil, fmt.Errorf("store order in db: %w", err)
	}

	// Reattach options for downstream consumers (notifications, decrement).
	for i := range order.Items {
		if option := byID[order.Items[i].PurchaseOptionID]; option != nil {
			order.Items[i].PurchaseOption = *option
		}
	}

	s.log.Debug("order created", zap.String("order_id", order.ID))
	return order, nil
}

func (s *orderServiceImpl) CreateRenewalOrder(ctx context.Context, params RenewalParams) (*model.Order, error) {
	// Redelivered invoice events must not duplicate the cycle's order.
	if params.PaymentInfo.InvoiceID != "" {
		existing, err := s.orderRepo.FindByInvoiceID(ctx, params.PaymentInfo.InvoiceID)
		if err == nil {
			s.log.Info("renewal order already exists for invoice",
				zap.String("invoice_id", params.PaymentInfo.InvoiceID),
				zap.String("order_id", existing.ID))
			return existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("check renewal idempotency: %w", err)
		}
	}

	order := &model.Order{
		ID:                    uuid.NewString(),
		UserID:                params.UserID,
		StripeSubscriptionID:  params.SubscriptionID,
		StripePaymentIntentID: params.PaymentInfo.TransactionID,
		StripeChargeID:        params.PaymentInfo.ChargeID,
		StripeInvoiceID:       params.PaymentInfo.InvoiceID,
		StripeCustomerID:      params.CustomerID,
		CustomerEmail:         params.UserEmail,
		CustomerPhone:         params.UserPhone,
		TotalInCents:          params.TotalPriceInCents + params.ShippingCost,
		Status:                model.OrderStatusPending,
		DeliveryMethod:        params.DeliveryMethod,
		PaymentCardLast4:      params.PaymentInfo.CardLast4,
	}
	shippingName := params.UserName
	if params.ShippingAddress != nil && params.ShippingAddress.Name != "" {
		shippingName = params.ShippingAddress.Name
	}
	applyShipping(order, params.ShippingAddress, shippingName)

	// Resolve each subscription line back to a purchase option by product
	// name. Unresolvable lines are skipped, not fatal: the subscription
	// stays billable even if the catalog moved underneath it.
	resolved := map[string]*model.PurchaseOption{}
	for i, productName := range params.ProductNames {
		var quantity int32 = 1
		if i < len(params.Quantities) {
			quantity = params.Quantities[i]
		}

		baseName := strings.SplitN(productName, " - ", 2)[0]
		option, err := s.catalogRepo.FindSubscriptionOptionByProductName(ctx, baseName)
		if err != nil {
			s.log.Error("no matching purchase option for renewal line",
				zap.String("product_name", productName),
				zap.Error(err))
			continue
		}

		resolved[option.ID] = option
		order.Items = append(order.Items, model.OrderItem{
			OrderID:          order.ID,
			PurchaseOptionID: option.ID,
			Quantity:         quantity,
			PriceInCents:     option.PriceInCents,
		})
	}

	if len(order.Items) == 0 {
		s.log.Error("no renewal lines resolved, skipping order creation",
			zap.String("subscription_id", params.SubscriptionID))
		return nil, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.orderRepo.Create(ctx, tx, order)
	})
	if err != nil {
		return nil, fmt.Errorf("store renewal order in db: %w", err)
	}

	for i := range order.Items {
		if option := resolved[order.Items[i].PurchaseOptionID]; option != nil {
			order.Items[i].PurchaseOption = *option
		}
	}

	s.log.Debug("renewal order created",
		zap.String("order_id", order.ID),
		zap.String("subscription_id", params.SubscriptionID))

	s.inventory.Decrement(ctx, order.Items)

	return order, nil
}

func (s *orderServiceImpl) BackfillPaymentIDs(ctx context.Context, params BackfillParams) (int64, error) {
	data := map[string]interface{}{
		"stripe_invoice_id": params.InvoiceID,
	}
	if params.PaymentIntentID != "" {
		data["stripe_payment_intent_id"] = params.PaymentIntentID
	}
	if params.ChargeID != "" {
		data["stripe_charge_id"] = params.ChargeID
	}

	count, err := s.orderRepo.BackfillBySubscriptionID(ctx, params.SubscriptionID, data)
	if err != nil {
		return 0, fmt.Errorf("backfill payment ids by subscription: %w", err)
	}
	if count > 0 {
		return count, nil
	}

	// The checkout order may not carry the subscription id yet; the
	// fallback stamps it together with the payment ids.
	data["stripe_subscription_id"] = params.SubscriptionID
	count, err = s.orderRepo.BackfillByCustomerWindow(ctx, params.CustomerID, time.Now().Add(-backfillWindow), data)
	if err != nil {
		return 0, fmt.Errorf("backfill payment ids by customer: %w", err)
	}

	return count, nil
}

func (s *orderServiceImpl) Cancel(ctx context.Context, orderID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.UpdateStatus(ctx, tx, orderID, model.OrderStatusCancelled); err != nil {
			return fmt.Errorf("cancel order %s: %w", orderID, err)
		}
		if err := s.inventory.Restore(ctx, tx, orderID); err != nil {
			return err
		}
		return nil
	})
}

func (s *orderServiceImpl) MarkShipped(ctx context.Context, orderID string) error {
	return s.orderRepo.UpdateStatus(ctx, s.db, orderID, model.OrderStatusShipped)
}

func (s *orderServiceImpl) MarkPickedUp(ctx context.Context, orderID string) error {
	return s.orderRepo.UpdateStatus(ctx, s.db, orderID, model.OrderStatusPickedUp)
}

func applyShipping(order *model.Order, address *payment.ShippingAddress, name string) {
	order.RecipientName = name
	if address == nil {
		return
	}
	if order.RecipientName == "" {
		order.RecipientName = address.Name
	}
	order.ShippingStreet = address.Line1
	order.ShippingCity = address.City
	order.ShippingState = address.State
	order.ShippingPostalCode = address.PostalCode
	order.ShippingCountry = address.Country
}
