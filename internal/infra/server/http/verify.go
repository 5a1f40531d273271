package httpserver

import (
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/hostwell/paygate/errs"
	"github.com/hostwell/paygate/internal/domain/event"
)

// Verifier authenticates a raw delivery, yielding a typed event or rejecting
// the request. The engine never sees unverified payloads.
type Verifier interface {
	Verify(payload []byte, signatureHeader string) (event.Event, error)
}

// StripeVerifier validates Stripe webhook signatures against the endpoint's
// signing secret.
type StripeVerifier struct {
	secret string
}

// NewStripeVerifier constructs a verifier for the provided signing secret.
func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{secret: secret}
}

// Verify checks the signature header and decodes the event envelope.
func (v *StripeVerifier) Verify(payload []byte, signatureHeader string) (event.Event, error) {
	stripeEvent, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return event.Event{}, errs.New("webhook/verify", errs.CodeAuth,
			errs.WithHTTP(http.StatusBadRequest),
			errs.WithMessage("invalid delivery signature"), errs.WithCause(err))
	}
	return event.Event{
		ID:       stripeEvent.ID,
		Type:     string(stripeEvent.Type),
		Payload:  json.RawMessage(stripeEvent.Data.Raw),
		LiveMode: stripeEvent.Livemode,
	}, nil
}

var _ Verifier = (*StripeVerifier)(nil)
