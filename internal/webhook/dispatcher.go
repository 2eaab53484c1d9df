// Package webhook receives processor events and routes each to its
// reconciliation handler. Delivery is at least once and unordered, so every
// handler is written to be idempotent.
package webhook

import (
	"context"

	"github.com/stripe/stripe-go/v78"
	"go.uber.org/zap"

	"coffee-commerce-backend/internal/client"
	"coffee-commerce-backend/internal/notify"
	"coffee-commerce-backend/internal/service"
)

// Result is what a handler reports back. Success false still acknowledges
// the delivery; it marks events that cannot succeed on retry either, such as
// a checkout for an unknown user.
type Result struct {
	Success bool
	Message string
	Error   error
}

func ok(message string) Result {
	return Result{Success: true, Message: message}
}

func failed(err error) Result {
	return Result{Success: false, Error: err}
}

type HandlerFunc func(ctx context.Context, event *stripe.Event) Result

// Handlers bundles the services the event handlers reconcile against.
type Handlers struct {
	processor     client.StripeClient
	users         service.UserService
	orders        service.OrderService
	subscriptions service.SubscriptionService
	notifier      notify.Notifier
	log           *zap.Logger
}

func NewHandlers(
	processor client.StripeClient,
	users service.UserService,
	orders service.OrderService,
	subscriptions service.SubscriptionService,
	notifier notify.Notifier,
	log *zap.Logger,
) *Handlers {
	return &Handlers{
		processor:     processor,
		users:         users,
		orders:        orders,
		subscriptions: subscriptions,
		notifier:      notifier,
		log:           log,
	}
}

type Dispatcher struct {
	handlers map[stripe.EventType]HandlerFunc
	log      *zap.Logger
}

func NewDispatcher(h *Handlers, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: map[stripe.EventType]HandlerFunc{
			stripe.EventTypeCheckoutSessionCompleted:    h.HandleCheckoutCompleted,
			stripe.EventTypeInvoicePaymentSucceeded:     h.HandleInvoicePaymentSucceeded,
			stripe.EventTypeCustomerSubscriptionUpdated: h.HandleSubscriptionUpdated,
			stripe.EventTypeCustomerSubscriptionDeleted: h.HandleSubscriptionDeleted,
			stripe.EventTypeCustomerUpdated:             h.HandleCustomerUpdated,
		},
		log: log,
	}
}

// Dispatch runs the handler registered for the event type. Unregistered
// types are acknowledged untouched so the processor stops redelivering them.
func (d *Dispatcher) Dispatch(ctx context.Context, event *stripe.Event) Result {
	handler, registered := d.handlers[event.Type]
	if !registered {
		d.log.Debug("ignoring unhandled event type",
			zap.String("event_type", string(event.Type)))
		return ok("event type not handled")
	}

	d.log.Info("processing webhook event",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))

	result := handler(ctx, event)
	if result.Error != nil {
		d.log.Error("webhook event failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(result.Error))
	}

	return result
}
