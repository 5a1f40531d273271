package event_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/hostwell/paygate/errs"
	"github.com/hostwell/paygate/internal/domain/event"
)

func TestEventValidate(t *testing.T) {
	valid := event.Event{ID: "evt_1", Type: event.TypeInvoicePaid}
	require.NoError(t, valid.Validate())

	missingID := event.Event{Type: event.TypeInvoicePaid}
	require.True(t, errs.HasCode(missingID.Validate(), errs.CodeInvalid))

	missingType := event.Event{ID: "evt_1", Type: "  "}
	require.True(t, errs.HasCode(missingType.Validate(), errs.CodeInvalid))
}

func TestParseCheckoutSession(t *testing.T) {
	payload := []byte(`{
		"id": "cs_test_123",
		"mode": "payment",
		"currency": "eur",
		"amount_total": 12999,
		"metadata": {"purchase_kind": "lifetime_plan", "plan": "forever"},
		"customer_details": {"email": "guest@example.com"}
	}`)

	session, err := event.ParseCheckoutSession(payload)
	require.NoError(t, err)
	require.Equal(t, "cs_test_123", session.SessionID)
	require.Equal(t, "payment", session.Mode)
	require.Equal(t, "EUR", session.Currency)
	require.Equal(t, int64(12999), session.AmountMinor)
	require.Equal(t, "guest@example.com", session.CustomerEmail)
	require.Equal(t, event.PurchaseKindLifetimePlan, session.PurchaseKind())
	require.True(t, session.Amount().Equal(decimal.RequireFromString("129.99")))
}

func TestAmountHonoursCurrencyMinorUnits(t *testing.T) {
	cases := []struct {
		currency string
		minor    int64
		want     string
	}{
		{currency: "EUR", minor: 12999, want: "129.99"},
		{currency: "USD", minor: 500, want: "5"},
		{currency: "JPY", minor: 12999, want: "12999"},
		{currency: "KRW", minor: 50000, want: "50000"},
		{currency: "KWD", minor: 12999, want: "12.999"},
		{currency: "BHD", minor: 500, want: "0.5"},
	}
	for _, tc := range cases {
		t.Run(tc.currency, func(t *testing.T) {
			session := event.CheckoutSession{Currency: tc.currency, AmountMinor: tc.minor}
			require.True(t, session.Amount().Equal(decimal.RequireFromString(tc.want)),
				"got %s", session.Amount())
		})
	}
}

func TestParseCheckoutSessionMalformed(t *testing.T) {
	_, err := event.ParseCheckoutSession([]byte(`{"amount_total": "not a number"`))
	require.Error(t, err)
}

func TestPurchaseKindAbsentMetadata(t *testing.T) {
	session, err := event.ParseCheckoutSession([]byte(`{"id":"cs_1","mode":"payment"}`))
	require.NoError(t, err)
	require.Empty(t, session.PurchaseKind())
}
