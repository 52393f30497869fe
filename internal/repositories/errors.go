package repositories

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderNotCancellable indicates the stored order no longer allows cancellation.
	ErrOrderNotCancellable = errors.New("order is not cancellable")
	// ErrDuplicateOrderNumber marks an Insert conflict on the order number reservation.
	ErrDuplicateOrderNumber = errors.New("order number already taken")
	// ErrDuplicateMerchantOrderID marks an Insert conflict on the merchant order id reservation.
	ErrDuplicateMerchantOrderID = errors.New("merchant order id already taken")
)

// StockErrorCode enumerates stock failure causes.
type StockErrorCode string

const (
	StockErrorVariantNotFound StockErrorCode = "stock_variant_not_found"
)

// StockError reports a stock line that could not be planned.
type StockError struct {
	Op        string
	Code      StockErrorCode
	VariantID string
	Message   string
	Err       error
}

func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *StockError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewStockError constructs a typed stock error.
func NewStockError(code StockErrorCode, variantID, message string, err error) *StockError {
	if message == "" {
		message = string(code)
	}
	return &StockError{Code: code, VariantID: variantID, Message: message, Err: err}
}
