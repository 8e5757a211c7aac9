package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks user-correctable request problems.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks write-time conflicts such as stock exhausted between validation and commit.
	ErrConflict = errors.New("conflict")
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned for status changes the transition table forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrOrderNumberTaken signals a unique-constraint violation on the order number.
	ErrOrderNumberTaken = errors.New("order number already taken")
)

// Problem codes reported inside a ValidationError.
const (
	CodeNotFound         = "not_found"
	CodeOutOfStock       = "out_of_stock"
	CodeInvalidQuantity  = "invalid_quantity"
	CodePriceMismatch    = "price_mismatch"
	CodeTotalMismatch    = "total_mismatch"
	CodeInvalidDelivery  = "invalid_delivery_option"
	CodeAddressNotOwned  = "address_not_owned"
	CodeAddressRequired  = "address_required"
	CodeInvalidCoupon    = "invalid_coupon"
	CodeInvalidPayment   = "invalid_payment_method"
	CodeCustomerRequired = "customer_required"
	CodeEmptyCart        = "empty_cart"
	CodeRequired         = "required"
)

// Problem describes one thing wrong with a request.
type Problem struct {
	Field     string `json:"field"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	ProductID string `json:"product_id,omitempty"`
}

// ValidationError aggregates every problem found in a single pass.
type ValidationError struct {
	Problems []Problem `json:"problems"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		msgs = append(msgs, p.Field+": "+p.Message)
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Add appends a problem.
func (e *ValidationError) Add(p Problem) {
	e.Problems = append(e.Problems, p)
}

// OrNil returns nil when no problems were collected.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Problems) == 0 {
		return nil
	}
	return e
}

// StockShortfall returns the first product reported out of stock when running out of stock
// is the only thing wrong with the request.
func (e *ValidationError) StockShortfall() (string, bool) {
	if e == nil || len(e.Problems) == 0 {
		return "", false
	}
	for _, p := range e.Problems {
		if p.Code != CodeOutOfStock {
			return "", false
		}
	}
	return e.Problems[0].ProductID, true
}

// ConflictError reports a write that lost a race. The whole unit is rolled back.
type ConflictError struct {
	ProductID string
	Reason    string
	Err       error
}

func (e *ConflictError) Error() string {
	msg := e.Reason
	if e.ProductID != "" {
		msg = fmt.Sprintf("%s (product %s)", e.Reason, e.ProductID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrConflict, msg)
}

func (e *ConflictError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrConflict, e.Err}
	}
	return []error{ErrConflict}
}

// InsufficientStock builds the conflict raised when a conditional decrement matched no row.
func InsufficientStock(productID string) *ConflictError {
	return &ConflictError{ProductID: productID, Reason: "insufficient stock"}
}

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidTransitionError is returned when From cannot move to To.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }
