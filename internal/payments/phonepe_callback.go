package payments

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

type phonePeCallbackBody struct {
	Event   string                  `json:"event"`
	Type    string                  `json:"type"`
	Payload *phonePeCallbackPayload `json:"payload"`
}

type phonePeCallbackPayload struct {
	OrderID         string                 `json:"orderId"`
	MerchantOrderID string                 `json:"merchantOrderId"`
	State           string                 `json:"state"`
	Amount          int64                  `json:"amount"`
	ExpireAt        int64                  `json:"expireAt"`
	PaymentDetails  []phonePePaymentDetail `json:"paymentDetails"`
}

func callbackAuthorization(username, password string) string {
	sum := sha256.Sum256([]byte(username + ":" + password))
	return hex.EncodeToString(sum[:])
}

// ValidateCallback authenticates a webhook and parses its payload.
// The Authorization header must carry hex(sha256("username:password")).
func (p *PhonePeProvider) ValidateCallback(ctx context.Context, authorization string, body []byte) (Callback, error) {
	provided := strings.ToLower(strings.TrimSpace(authorization))
	if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(p.callbackHash)) != 1 {
		p.logger(ctx, "payments.phonepe.callback.rejected", map[string]any{"reason": "signature"})
		return Callback{}, ErrInvalidCallbackSignature
	}

	var parsed phonePeCallbackBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Callback{}, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	if parsed.Payload == nil {
		return Callback{}, fmt.Errorf("%w: payload is missing", ErrMalformedCallback)
	}
	merchantOrderID := strings.TrimSpace(parsed.Payload.MerchantOrderID)
	if merchantOrderID == "" {
		return Callback{}, fmt.Errorf("%w: merchant order id is missing", ErrMalformedCallback)
	}
	state := State(strings.ToUpper(strings.TrimSpace(parsed.Payload.State)))
	if state == "" {
		return Callback{}, fmt.Errorf("%w: state is missing", ErrMalformedCallback)
	}
	eventType := callbackType(parsed)
	if eventType == "" {
		return Callback{}, fmt.Errorf("%w: event type is missing", ErrMalformedCallback)
	}

	raw := make(map[string]any)
	if err := json.Unmarshal(body, &raw); err != nil {
		return Callback{}, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}

	payload := CallbackPayload{
		GatewayOrderID:  strings.TrimSpace(parsed.Payload.OrderID),
		MerchantOrderID: merchantOrderID,
		Amount:          parsed.Payload.Amount,
		State:           state,
	}
	if attempt, ok := latestAttempt(state, convertAttempts(parsed.Payload.PaymentDetails)); ok {
		payload.TransactionID = attempt.TransactionID
		payload.ErrorCode = attempt.ErrorCode
		payload.DetailedErrorCode = attempt.DetailedErrorCode
		payload.PaymentMode = attempt.PaymentMode
		payload.Timestamp = attempt.Timestamp
	}

	callback := Callback{
		Type:    eventType,
		Payload: payload,
		Raw:     raw,
	}
	p.logger(ctx, "payments.phonepe.callback.accepted", map[string]any{
		"type":            callback.Type,
		"merchantOrderId": merchantOrderID,
		"state":           string(state),
	})
	return callback, nil
}

// callbackType normalises "checkout.order.completed" into "CHECKOUT_ORDER_COMPLETED".
func callbackType(body phonePeCallbackBody) string {
	value := strings.TrimSpace(body.Type)
	if value == "" {
		value = strings.TrimSpace(body.Event)
	}
	value = strings.ToUpper(value)
	return strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(value)
}
