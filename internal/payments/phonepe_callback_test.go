package payments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	domain "github.com/Sushant736/propscholar-monorepo-sub000/internal/domain"
)

const sampleCallback = `{
	"event": "checkout.order.completed",
	"payload": {
		"orderId": "OMO1",
		"merchantOrderId": "MO1",
		"state": "completed",
		"amount": 129950,
		"paymentDetails": [
			{"paymentMode":"UPI_INTENT","transactionId":"T2","timestamp":1740821000000,"amount":129950,"state":"COMPLETED"}
		]
	}
}`

func callbackProvider(t *testing.T) *PhonePeProvider {
	t.Helper()
	provider, err := NewPhonePeProvider(PhonePeConfig{
		ClientID:         "client",
		ClientSecret:     "secret",
		CallbackUsername: "merchant",
		CallbackPassword: "s3cret",
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return provider
}

func expectedAuthorization() string {
	sum := sha256.Sum256([]byte("merchant:s3cret"))
	return hex.EncodeToString(sum[:])
}

func TestValidateCallbackAcceptsSignedBody(t *testing.T) {
	provider := callbackProvider(t)

	callback, err := provider.ValidateCallback(context.Background(), strings.ToUpper(expectedAuthorization()), []byte(sampleCallback))
	if err != nil {
		t.Fatalf("validate callback: %v", err)
	}
	if callback.Type != "CHECKOUT_ORDER_COMPLETED" {
		t.Fatalf("expected normalised type, got %q", callback.Type)
	}
	if callback.Payload.MerchantOrderID != "MO1" || callback.Payload.GatewayOrderID != "OMO1" {
		t.Fatalf("unexpected payload ids %+v", callback.Payload)
	}
	if callback.Payload.State != StateCompleted {
		t.Fatalf("expected upper-cased state, got %q", callback.Payload.State)
	}
	if callback.Payload.TransactionID != "T2" || callback.Payload.PaymentMode != "UPI_INTENT" {
		t.Fatalf("expected attempt details, got %+v", callback.Payload)
	}
	if callback.Payload.Timestamp == nil {
		t.Fatalf("expected payment timestamp")
	}
	if _, ok := callback.Raw["payload"]; !ok {
		t.Fatalf("expected raw body to be retained")
	}
}

func TestValidateCallbackRejectsBadSignature(t *testing.T) {
	provider := callbackProvider(t)

	for _, header := range []string{"", "deadbeef", expectedAuthorization() + "0"} {
		if _, err := provider.ValidateCallback(context.Background(), header, []byte(sampleCallback)); !errors.Is(err, ErrInvalidCallbackSignature) {
			t.Fatalf("header %q: expected ErrInvalidCallbackSignature, got %v", header, err)
		}
	}
}

func TestValidateCallbackRejectsMalformedBody(t *testing.T) {
	provider := callbackProvider(t)

	bodies := []string{
		`not json`,
		`{"event":"checkout.order.completed"}`,
		`{"event":"checkout.order.completed","payload":{"state":"COMPLETED"}}`,
		`{"event":"checkout.order.completed","payload":{"merchantOrderId":"MO1"}}`,
		`{"payload":{"merchantOrderId":"MO1","state":"COMPLETED"}}`,
		`{"event":"  ","payload":{"merchantOrderId":"MO1","state":"COMPLETED"}}`,
	}
	for _, body := range bodies {
		if _, err := provider.ValidateCallback(context.Background(), expectedAuthorization(), []byte(body)); !errors.Is(err, ErrMalformedCallback) {
			t.Fatalf("body %q: expected ErrMalformedCallback, got %v", body, err)
		}
	}
}

func TestValidateCallbackKeepsDetailedErrorCode(t *testing.T) {
	provider := callbackProvider(t)
	body := `{"event":"checkout.order.failed","payload":{"merchantOrderId":"MO1","state":"FAILED","paymentDetails":[
		{"transactionId":"T9","state":"FAILED","errorCode":"TXN_DECLINED","detailedErrorCode":"ZM"}
	]}}`

	callback, err := provider.ValidateCallback(context.Background(), expectedAuthorization(), []byte(body))
	if err != nil {
		t.Fatalf("validate callback: %v", err)
	}
	if callback.Payload.ErrorCode != "TXN_DECLINED" || callback.Payload.DetailedErrorCode != "ZM" {
		t.Fatalf("expected error codes from the attempt, got %+v", callback.Payload)
	}
}

func TestValidateCallbackPrefersExplicitType(t *testing.T) {
	provider := callbackProvider(t)
	body := `{"type":"checkout.order.failed","payload":{"merchantOrderId":"MO1","state":"FAILED"}}`

	callback, err := provider.ValidateCallback(context.Background(), expectedAuthorization(), []byte(body))
	if err != nil {
		t.Fatalf("validate callback: %v", err)
	}
	if callback.Type != "CHECKOUT_ORDER_FAILED" {
		t.Fatalf("unexpected type %q", callback.Type)
	}
	if callback.Payload.TransactionID != "" {
		t.Fatalf("expected no attempt details without payment details")
	}
}

func TestMapState(t *testing.T) {
	cases := map[State]domain.PaymentStatus{
		"PENDING":     domain.PaymentStatusPending,
		"processing":  domain.PaymentStatusProcessing,
		" COMPLETED ": domain.PaymentStatusCompleted,
		"FAILED":      domain.PaymentStatusFailed,
		"CANCELLED":   domain.PaymentStatusCancelled,
		"EXPIRED":     domain.PaymentStatusPending,
		"":            domain.PaymentStatusPending,
	}
	for state, want := range cases {
		if got := MapState(state); got != want {
			t.Fatalf("MapState(%q) = %q, want %q", state, got, want)
		}
	}
}

func TestMinorUnitConversion(t *testing.T) {
	cases := []struct {
		major string
		minor int64
	}{
		{"1299.50", 129950},
		{"0.01", 1},
		{"10.005", 1001},
		{"100", 10000},
	}
	for _, tc := range cases {
		if got := ToMinorUnits(decimal.RequireFromString(tc.major)); got != tc.minor {
			t.Fatalf("ToMinorUnits(%s) = %d, want %d", tc.major, got, tc.minor)
		}
	}
	if got := FromMinorUnits(129950); !got.Equal(decimal.RequireFromString("1299.5")) {
		t.Fatalf("FromMinorUnits(129950) = %s", got)
	}
}
