package service

import "errors"

type ValidationCode string

const (
	CodeInvalidPurchaseOption ValidationCode = "invalid_purchase_option"
	CodeProductUnavailable    ValidationCode = "product_unavailable"
	CodeInsufficientStock     ValidationCode = "insufficient_stock"
)

// ValidationError fails a whole checkout before anything is persisted. The
// message is customer-facing and names the offending variant.
type ValidationError struct {
	Code    ValidationCode
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Reconciliation-time lookup misses. Webhook handlers report these back in
// the dispatch result instead of failing the delivery, so the processor does
// not retry events that can never succeed.
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrUserNotFound         = errors.New("user not found")
)
