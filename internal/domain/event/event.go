// Package event defines the authenticated payment-processor event model.
package event

import (
	"strings"

	json "github.com/goccy/go-json"

	"github.com/hostwell/paygate/errs"
)

// Event is one verified notification from the payment processor. It is
// produced by the signature verification step and never persisted as-is;
// only its identity and type reach the claim ledger.
type Event struct {
	ID       string
	Type     string
	Payload  json.RawMessage
	LiveMode bool
}

// Processor event types routed by the dispatcher.
const (
	// TypeCheckoutCompleted is the ambiguous checkout family resolved via the
	// handler chain (lifetime plan, digital product, signup, booking payment).
	TypeCheckoutCompleted = "checkout.session.completed"

	TypeSubscriptionCreated = "customer.subscription.created"
	TypeSubscriptionUpdated = "customer.subscription.updated"
	TypeSubscriptionDeleted = "customer.subscription.deleted"

	TypeInvoicePaid          = "invoice.paid"
	TypeInvoicePaymentFailed = "invoice.payment_failed"

	TypeAccountUpdated = "account.updated"
)

// Validate confirms the event carries the fields the engine depends on.
func (e Event) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return errs.New("event", errs.CodeInvalid, errs.WithMessage("event id required"))
	}
	if strings.TrimSpace(e.Type) == "" {
		return errs.New("event", errs.CodeInvalid, errs.WithMessage("event type required"), errs.WithEventID(e.ID))
	}
	return nil
}
