package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"coffee-commerce-backend/internal/client"
	"coffee-commerce-backend/internal/model"
	"coffee-commerce-backend/internal/payment"
	"coffee-commerce-backend/internal/repository"
)

type SubscriptionService interface {
	// Ensure creates or refreshes the local record for a processor
	// subscription. Safe under redelivery and out-of-order events.
	Ensure(ctx context.Context, normalized payment.Subscription, userID string) (id string, isNew bool, err error)
	// HandleUpdated applies processor-side changes. A newly requested
	// cancellation with undelivered orders escalates to refund, order
	// cancellation, stock restoration and immediate processor cancel.
	HandleUpdated(ctx context.Context, normalized payment.Subscription) error
	HandleDeleted(ctx context.Context, processorSubscriptionID string) error
	// SyncCustomerInfo propagates a customer's new address and phone to
	// their subscriptions and undelivered orders.
	SyncCustomerInfo(ctx context.Context, update payment.CustomerUpdate) error

	List(ctx context.Context) ([]*model.Subscription, error)
	// Skip pauses collection for one cycle; only an ACTIVE subscription
	// can be skipped.
	Skip(ctx context.Context, id string) (*model.Subscription, error)
	Resume(ctx context.Context, id string) (*model.Subscription, error)
	// Cancel requests cancellation at period end. Rejected when the flag
	// is already set.
	Cancel(ctx context.Context, id string) (*model.Subscription, error)
}

type subscriptionServiceImpl struct {
	subscriptionRepo repository.SubscriptionRepository
	orderRepo        repository.OrderRepository
	orders           OrderService
	processor        client.StripeClient
	log              *zap.Logger
}

func NewSubscriptionService(
	subscriptionRepo repository.SubscriptionRepository,
	orderRepo repository.OrderRepository,
	orders OrderService,
	processor client.StripeClient,
	log *zap.Logger,
) SubscriptionService {
	return &subscriptionServiceImpl{
		subscriptionRepo: subscriptionRepo,
		orderRepo:        orderRepo,
		orders:           orders,
		processor:        processor,
		log:              log,
	}
}

func (s *subscriptionServiceImpl) Ensure(ctx context.Context, normalized payment.Subscription, userID string) (string, bool, error) {
	existing, err := s.subscriptionRepo.FindByProcessorID(ctx, normalized.ProcessorSubscriptionID)
	isNew := errors.Is(err, gorm.ErrRecordNotFound)
	if err != nil && !isNew {
		return "", false, fmt.Errorf("look up subscription %s: %w", normalized.ProcessorSubscriptionID, err)
	}

	record := subscriptionRecord(normalized)
	record.UserID = userID
	if existing != nil {
		record.ID = existing.ID
	} else {
		record.ID = uuid.NewString()
	}

	if err := s.subscriptionRepo.Upsert(ctx, record); err != nil {
		return "", false, fmt.Errorf("upsert subscription %s: %w", normalized.ProcessorSubscriptionID, err)
	}

	s.log.Info("subscription ensured",
		zap.String("stripe_subscription_id", normalized.ProcessorSubscriptionID),
		zap.Bool("is_new", isNew))

	return record.ID, isNew, nil
}

func (s *subscriptionServiceImpl) HandleUpdated(ctx context.Context, normalized payment.Subscription) error {
	existing, err := s.subscriptionRepo.FindByProcessorID(ctx, normalized.ProcessorSubscriptionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Updates can arrive before the checkout that creates the record;
		// the later checkout flow carries the full state anyway.
		s.log.Info("ignoring update for unknown subscription",
			zap.String("stripe_subscription_id", normalized.ProcessorSubscriptionID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up subscription %s: %w", normalized.ProcessorSubscriptionID, err)
	}

	cancelRequested := normalized.CancelAtPeriodEnd && !existing.CancelAtPeriodEnd
	escalated := false
	if cancelRequested {
		escalated, err = s.accelerateCancellation(ctx, existing)
		if err != nil {
			return err
		}
	}

	data := map[string]interface{}{
		"status":               model.SubscriptionStatus(normalized.Status),
		"cancel_at_period_end": normalized.CancelAtPeriodEnd,
		"current_period_start": normalized.CurrentPeriodStart,
		"current_period_end":   normalized.CurrentPeriodEnd,
		"canceled_at":          normalized.CanceledAt,
		"paused_until":         normalized.PausedUntil,
		"price_in_cents":       normalized.TotalPriceInCents,
	}
	if normalized.DeliverySchedule != "" {
		data["delivery_schedule"] = normalized.DeliverySchedule
	}
	if normalized.DeliveryMethod != "" {
		data["delivery_method"] = model.DeliveryMethod(normalized.DeliveryMethod)
	}
	// Processor payloads often omit shipping; keep what we have rather
	// than blanking it.
	if normalized.ShippingName != "" {
		data["recipient_name"] = normalized.ShippingName
	}
	if normalized.CustomerPhone != "" {
		data["recipient_phone"] = normalized.CustomerPhone
	}
	if addr := normalized.ShippingAddress; addr != nil && addr.Line1 != "" {
		data["shipping_street"] = addr.Line1
		data["shipping_city"] = addr.City
		data["shipping_state"] = addr.State
		data["shipping_postal_code"] = addr.PostalCode
		data["shipping_country"] = addr.Country
	}

	// The force-cancel above outruns the event stream: the payload still
	// says ACTIVE, but the subscription is gone at the processor.
	if escalated {
		now := time.Now()
		data["status"] = model.SubscriptionStatusCanceled
		data["canceled_at"] = &now
	}

	if err := s.subscriptionRepo.Update(ctx, existing.ID, data); err != nil {
		return fmt.Errorf("update subscription %s: %w", existing.ID, err)
	}

	return nil
}

// accelerateCancellation ends a just-canceled subscription immediately when
// undelivered orders remain: refund each, cancel it, restore its stock, then
// cancel the processor subscription outright instead of waiting for period
// end. With nothing pending the subscription runs out its paid period.
// Reports whether the immediate cancel happened.
func (s *subscriptionServiceImpl) accelerateCancellation(ctx context.Context, sub *model.Subscription) (bool, error) {
	pending, err := s.orderRepo.FindPendingBySubscriptionID(ctx, sub.StripeSubscriptionID)
	if err != nil {
		return false, fmt.Errorf("find pending orders for %s: %w", sub.StripeSubscriptionID, err)
	}
	if len(pending) == 0 {
		return false, nil
	}

	s.log.Info("cancellation requested with undelivered orders, refunding and canceling now",
		zap.String("stripe_subscription_id", sub.StripeSubscriptionID),
		zap.Int("pending_orders", len(pending)))

	// Per-order isolation: one failed refund must not block the rest.
	for _, order := range pending {
		if order.StripePaymentIntentID != "" {
			if err := s.processor.CreateRefund(ctx, order.StripePaymentIntentID); err != nil {
				s.log.Error("failed to refund order",
					zap.String("order_id", order.ID),
					zap.Error(err))
				continue
			}
		}

		if err := s.orders.Cancel(ctx, order.ID); err != nil {
			s.log.Error("failed to cancel order",
				zap.String("order_id", order.ID),
				zap.Error(err))
		}
	}

	if err := s.processor.CancelSubscriptionNow(ctx, sub.StripeSubscriptionID); err != nil {
		return false, err
	}

	return true, nil
}

func (s *subscriptionServiceImpl) HandleDeleted(ctx context.Context, processorSubscriptionID string) error {
	if err := s.subscriptionRepo.MarkCanceled(ctx, processorSubscriptionID); err != nil {
		return fmt.Errorf("mark subscription %s canceled: %w", processorSubscriptionID, err)
	}

	s.log.Info("subscription canceled",
		zap.String("stripe_subscription_id", processorSubscriptionID))
	return nil
}

func (s *subscriptionServiceImpl) SyncCustomerInfo(ctx context.Context, update payment.CustomerUpdate) error {
	if update.ShippingAddress == nil && update.Phone == "" {
		return nil
	}

	subs, err := s.subscriptionRepo.FindByCustomerID(ctx, update.CustomerID)
	if err != nil {
		return fmt.Errorf("find subscriptions for customer %s: %w", update.CustomerID, err)
	}

	subData := map[string]interface{}{}
	orderData := map[string]interface{}{}
	if update.Phone != "" {
		subData["recipient_phone"] = update.Phone
		orderData["customer_phone"] = update.Phone
	}
	if addr := update.ShippingAddress; addr != nil {
		if update.ShippingName != "" {
			subData["recipient_name"] = update.ShippingName
			orderData["recipient_name"] = update.ShippingName
		}
		subData["shipping_street"] = addr.Line1
		subData["shipping_city"] = addr.City
		subData["shipping_state"] = addr.State
		subData["shipping_postal_code"] = addr.PostalCode
		subData["shipping_country"] = addr.Country
		orderData["shipping_street"] = addr.Line1
		orderData["shipping_city"] = addr.City
		orderData["shipping_state"] = addr.State
		orderData["shipping_postal_code"] = addr.PostalCode
		orderData["shipping_country"] = addr.Country
	}

	// Each subscription is synced independently so one processor failure
	// does not leave the rest stale.
	for _, sub := range subs {
		if err := s.subscriptionRepo.Update(ctx, sub.ID, cloneData(subData)); err != nil {
			s.log.Error("failed to sync subscription record",
				zap.String("subscription_id", sub.ID),
				zap.Error(err))
			continue
		}

		if addr := update.ShippingAddress; addr != nil {
			err := s.processor.UpdateSubscriptionShipping(ctx, sub.StripeSubscriptionID, *addr, update.ShippingName, string(sub.DeliveryMethod))
			if err != nil {
				s.log.Error("failed to push shipping metadata to processor",
					zap.String("stripe_subscription_id", sub.StripeSubscriptionID),
					zap.Error(err))
			}
		}

		if _, err := s.orderRepo.UpdatePendingBySubscriptionID(ctx, sub.StripeSubscriptionID, cloneData(orderData)); err != nil {
			s.log.Error("failed to update pending subscription orders",
				zap.String("stripe_subscription_id", sub.StripeSubscriptionID),
				zap.Error(err))
		}
	}

	if len(orderData) > 0 {
		if _, err := s.orderRepo.UpdatePendingOneTimeByCustomerID(ctx, update.CustomerID, cloneData(orderData)); err != nil {
			return fmt.Errorf("update pending one-time orders for %s: %w", update.CustomerID, err)
		}
	}

	return nil
}

func (s *subscriptionServiceImpl) List(ctx context.Context) ([]*model.Subscription, error) {
	subs, err := s.subscriptionRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

func (s *subscriptionServiceImpl) Skip(ctx context.Context, id string) (*model.Subscription, error) {
	sub, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if sub.Status != model.SubscriptionStatusActive {
		return nil, fmt.Errorf("subscription %s is %s, only active subscriptions can skip a delivery", id, sub.Status)
	}

	resumesAt := nextPeriodEnd(sub.CurrentPeriodEnd, sub.DeliverySchedule, s.log)

	if err := s.processor.PauseSubscription(ctx, sub.StripeSubscriptionID, resumesAt); err != nil {
		return nil, err
	}

	data := map[string]interface{}{
		"status":       model.SubscriptionStatusPaused,
		"paused_until": resumesAt,
	}
	if err := s.subscriptionRepo.Update(ctx, sub.ID, data); err != nil {
		return nil, fmt.Errorf("mark subscription %s paused: %w", id, err)
	}

	sub.Status = model.SubscriptionStatusPaused
	sub.PausedUntil = &resumesAt
	return sub, nil
}

func (s *subscriptionServiceImpl) Resume(ctx context.Context, id string) (*model.Subscription, error) {
	sub, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if sub.Status != model.SubscriptionStatusPaused {
		return nil, fmt.Errorf("subscription %s is %s, only paused subscriptions can resume", id, sub.Status)
	}

	if err := s.processor.ResumeSubscription(ctx, sub.StripeSubscriptionID); err != nil {
		return nil, err
	}

	data := map[string]interface{}{
		"status":       model.SubscriptionStatusActive,
		"paused_until": nil,
	}
	if err := s.subscriptionRepo.Update(ctx, sub.ID, data); err != nil {
		return nil, fmt.Errorf("mark subscription %s active: %w", id, err)
	}

	sub.Status = model.SubscriptionStatusActive
	sub.PausedUntil = nil
	return sub, nil
}

func (s *subscriptionServiceImpl) Cancel(ctx context.Context, id string) (*model.Subscription, error) {
	sub, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if sub.Status != model.SubscriptionStatusActive && sub.Status != model.SubscriptionStatusPaused {
		return nil, fmt.Errorf("subscription %s is %s and cannot be canceled", id, sub.Status)
	}
	if sub.CancelAtPeriodEnd {
		return nil, fmt.Errorf("subscription %s is already scheduled for cancellation", id)
	}

	if err := s.processor.SetCancelAtPeriodEnd(ctx, sub.StripeSubscriptionID); err != nil {
		return nil, err
	}

	if err := s.subscriptionRepo.Update(ctx, sub.ID, map[string]interface{}{
		"cancel_at_period_end": true,
	}); err != nil {
		return nil, fmt.Errorf("flag subscription %s for cancellation: %w", id, err)
	}

	sub.CancelAtPeriodEnd = true
	return sub, nil
}

func (s *subscriptionServiceImpl) find(ctx context.Context, id string) (*model.Subscription, error) {
	sub, err := s.subscriptionRepo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("look up subscription %s: %w", id, err)
	}
	return sub, nil
}

var (
	weekSchedule  = regexp.MustCompile(`(?i)every\s*(\d*)\s*week`)
	monthSchedule = regexp.MustCompile(`(?i)every\s*(\d*)\s*month`)
)

// nextPeriodEnd projects one billing cycle past the current period end by
// parsing the human-readable delivery schedule ("Every 2 weeks", "Every
// month"). Unparseable schedules fall back to two weeks.
func nextPeriodEnd(currentPeriodEnd time.Time, schedule string, log *zap.Logger) time.Time {
	if m := weekSchedule.FindStringSubmatch(schedule); m != nil {
		weeks := 2
		if m[1] != "" {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				weeks = n
			}
		}
		return currentPeriodEnd.AddDate(0, 0, weeks*7)
	}

	if m := monthSchedule.FindStringSubmatch(schedule); m != nil {
		months := 1
		if m[1] != "" {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				months = n
			}
		}
		return currentPeriodEnd.AddDate(0, months, 0)
	}

	log.Warn("unrecognized delivery schedule, assuming two weeks",
		zap.String("schedule", schedule))
	return currentPeriodEnd.AddDate(0, 0, 14)
}

func subscriptionRecord(normalized payment.Subscription) *model.Subscription {
	record := &model.Subscription{
		StripeSubscriptionID: normalized.ProcessorSubscriptionID,
		StripeCustomerID:     normalized.ProcessorCustomerID,
		Status:               model.SubscriptionStatus(normalized.Status),
		CancelAtPeriodEnd:    normalized.CancelAtPeriodEnd,
		CurrentPeriodStart:   normalized.CurrentPeriodStart,
		CurrentPeriodEnd:     normalized.CurrentPeriodEnd,
		CanceledAt:           normalized.CanceledAt,
		PausedUntil:          normalized.PausedUntil,
		DeliverySchedule:     normalized.DeliverySchedule,
		DeliveryMethod:       model.DeliveryMethod(normalized.DeliveryMethod),
		PriceInCents:         normalized.TotalPriceInCents,
		RecipientName:        normalized.ShippingName,
		RecipientPhone:       normalized.CustomerPhone,
	}

	for _, item := range normalized.Items {
		record.ProductNames = append(record.ProductNames, item.ProductName)
		record.StripeProductIDs = append(record.StripeProductIDs, item.ProductID)
		record.StripePriceIDs = append(record.StripePriceIDs, item.PriceID)
		record.Quantities = append(record.Quantities, item.Quantity)
		if record.ProductDescription == "" {
			record.ProductDescription = item.ProductDescription
		}
	}

	if addr := normalized.ShippingAddress; addr != nil {
		if record.RecipientName == "" {
			record.RecipientName = addr.Name
		}
		record.ShippingStreet = addr.Line1
		record.ShippingCity = addr.City
		record.ShippingState = addr.State
		record.ShippingPostalCode = addr.PostalCode
		record.ShippingCountry = addr.Country
	}

	return record
}

func cloneData(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
