// Package dispatch maps authenticated processor events to business handlers.
// Most event types route one-to-one; the checkout-completed family is
// disambiguated through an ordered chain of predicate+handler pairs.
package dispatch

import (
	"context"
	"fmt"

	"github.com/hostwell/paygate/errs"
	"github.com/hostwell/paygate/internal/domain/event"
	"github.com/hostwell/paygate/internal/observability"
)

// Handler is the contract each routed business flow fulfils. Handlers must be
// safe to invoke more than once for logically-equivalent inputs and must
// return an error for any condition that should mark the event failed.
type Handler interface {
	Handle(ctx context.Context, evt event.Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt event.Event) error

// Handle invokes the function.
func (f HandlerFunc) Handle(ctx context.Context, evt event.Event) error { return f(ctx, evt) }

// CheckoutRoute pairs a predicate over the parsed checkout session with the
// handler invoked when the predicate claims the event. Routes are tried in
// registration order; the first match is the only handler invoked.
type CheckoutRoute struct {
	Name    string
	Match   func(session event.CheckoutSession) bool
	Handler Handler
}

// MatchPurchaseKind builds a predicate claiming sessions whose purchase_kind
// metadata equals kind.
func MatchPurchaseKind(kind string) func(event.CheckoutSession) bool {
	return func(session event.CheckoutSession) bool {
		return session.PurchaseKind() == kind
	}
}

// MatchAny claims every session; used for the trailing catch-all route.
func MatchAny(event.CheckoutSession) bool { return true }

// Router holds the event-type routing table. It never touches the claim
// ledger; the caller owns that lifecycle.
type Router struct {
	handlers map[string]Handler
	checkout []CheckoutRoute
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	router := new(Router)
	router.handlers = make(map[string]Handler)
	return router
}

// Register maps an event type to a single handler. Registering the checkout
// family here is rejected; use RegisterCheckout for it.
func (r *Router) Register(eventType string, handler Handler) error {
	if eventType == "" || handler == nil {
		return errs.New("dispatch/register", errs.CodeInvalid, errs.WithMessage("event type and handler required"))
	}
	if eventType == event.TypeCheckoutCompleted {
		return errs.New("dispatch/register", errs.CodeInvalid,
			errs.WithMessage("checkout completed events route through the checkout chain"))
	}
	if _, exists := r.handlers[eventType]; exists {
		return errs.New("dispatch/register", errs.CodeConflict,
			errs.WithMessage(fmt.Sprintf("handler already registered for %s", eventType)))
	}
	r.handlers[eventType] = handler
	return nil
}

// RegisterCheckout appends a route to the checkout chain. Registration order
// is priority order; the catch-all default belongs last.
func (r *Router) RegisterCheckout(route CheckoutRoute) error {
	if route.Match == nil || route.Handler == nil {
		return errs.New("dispatch/register", errs.CodeInvalid, errs.WithMessage("checkout route needs match and handler"))
	}
	r.checkout = append(r.checkout, route)
	return nil
}

// Route invokes the handler responsible for the event, or returns an
// unroutable error for unknown event types. Callers treat unroutable as
// log-and-acknowledge, not fatal.
func (r *Router) Route(ctx context.Context, evt event.Event) error {
	if evt.Type == event.TypeCheckoutCompleted {
		return r.routeCheckout(ctx, evt)
	}
	handler, found := r.handlers[evt.Type]
	if !found {
		return errs.New("dispatch/route", errs.CodeNotFound,
			errs.WithMessage(fmt.Sprintf("no handler for event type %s", evt.Type)),
			errs.WithEventID(evt.ID))
	}
	return handler.Handle(ctx, evt)
}

func (r *Router) routeCheckout(ctx context.Context, evt event.Event) error {
	if len(r.checkout) == 0 {
		return errs.New("dispatch/route", errs.CodeNotFound,
			errs.WithMessage("checkout chain empty"), errs.WithEventID(evt.ID))
	}
	session, err := event.ParseCheckoutSession(evt.Payload)
	if err != nil {
		return errs.New("dispatch/route", errs.CodeInvalid,
			errs.WithMessage("checkout payload unreadable"), errs.WithEventID(evt.ID), errs.WithCause(err))
	}
	for _, route := range r.checkout {
		if route.Match(session) {
			observability.Log().Info("checkout session routed",
				observability.String("event_id", evt.ID),
				observability.String("route", route.Name),
				observability.String("session_id", session.SessionID),
				observability.String("amount", session.Amount().String()),
				observability.String("currency", session.Currency))
			return route.Handler.Handle(ctx, evt)
		}
	}
	return errs.New("dispatch/route", errs.CodeNotFound,
		errs.WithMessage("no checkout route claimed the session"), errs.WithEventID(evt.ID))
}

// IsUnroutable reports whether err marks an event the router had no handler
// for.
func IsUnroutable(err error) bool {
	return errs.HasCode(err, errs.CodeNotFound)
}

// NewCheckoutChain wires the platform's fixed checkout disambiguation order:
// lifetime plan, then digital product, then signup, then the booking payment
// default as the unconditional catch-all.
func NewCheckoutChain(router *Router, lifetime, digital, signup, booking Handler) error {
	routes := []CheckoutRoute{
		{Name: "lifetime-plan", Match: MatchPurchaseKind(event.PurchaseKindLifetimePlan), Handler: lifetime},
		{Name: "digital-product", Match: MatchPurchaseKind(event.PurchaseKindDigitalProduct), Handler: digital},
		{Name: "signup", Match: MatchPurchaseKind(event.PurchaseKindSignup), Handler: signup},
		{Name: "booking-payment", Match: MatchAny, Handler: booking},
	}
	for _, route := range routes {
		if err := router.RegisterCheckout(route); err != nil {
			return err
		}
	}
	return nil
}
