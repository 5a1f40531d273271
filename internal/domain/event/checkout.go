package event

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Checkout session metadata vocabulary. The processor delivers one generic
// "checkout completed" event for several business flows; the platform stamps
// purchase_kind into the session metadata at checkout creation time so the
// dispatcher can tell them apart.
const (
	MetadataPurchaseKind = "purchase_kind"

	PurchaseKindLifetimePlan   = "lifetime_plan"
	PurchaseKindDigitalProduct = "digital_product"
	PurchaseKindSignup         = "signup"
)

// CheckoutSession captures the slice of a completed checkout payload the
// dispatcher and audit logging care about.
type CheckoutSession struct {
	SessionID     string
	Mode          string
	Currency      string
	AmountMinor   int64
	Metadata      map[string]string
	CustomerEmail string
}

type checkoutPayload struct {
	ID              string            `json:"id"`
	Mode            string            `json:"mode"`
	Currency        string            `json:"currency"`
	AmountTotal     int64             `json:"amount_total"`
	Metadata        map[string]string `json:"metadata"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

// ParseCheckoutSession decodes a checkout.session.completed payload.
func ParseCheckoutSession(payload json.RawMessage) (CheckoutSession, error) {
	var raw checkoutPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return CheckoutSession{}, fmt.Errorf("checkout session: decode payload: %w", err)
	}
	session := CheckoutSession{
		SessionID:     raw.ID,
		Mode:          raw.Mode,
		Currency:      strings.ToUpper(strings.TrimSpace(raw.Currency)),
		AmountMinor:   raw.AmountTotal,
		Metadata:      raw.Metadata,
		CustomerEmail: raw.CustomerDetails.Email,
	}
	return session, nil
}

// PurchaseKind returns the purchase_kind metadata value, empty when absent.
func (s CheckoutSession) PurchaseKind() string {
	if s.Metadata == nil {
		return ""
	}
	return strings.TrimSpace(s.Metadata[MetadataPurchaseKind])
}

// Minor-unit exponents that deviate from the usual two decimal places,
// following the processor's currency tables (ISO 4217).
var (
	zeroDecimalCurrencies = map[string]struct{}{
		"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {},
		"KRW": {}, "MGA": {}, "PYG": {}, "RWF": {}, "UGX": {}, "VND": {},
		"VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
	}
	threeDecimalCurrencies = map[string]struct{}{
		"BHD": {}, "JOD": {}, "KWD": {}, "OMR": {}, "TND": {},
	}
)

// Amount converts the minor-unit total into a decimal amount using the
// session currency's minor-unit exponent.
func (s CheckoutSession) Amount() decimal.Decimal {
	total := decimal.NewFromInt(s.AmountMinor)
	if _, ok := zeroDecimalCurrencies[s.Currency]; ok {
		return total
	}
	if _, ok := threeDecimalCurrencies[s.Currency]; ok {
		return total.Shift(-3)
	}
	return total.Shift(-2)
}
