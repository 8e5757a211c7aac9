package domain

import "slices"

// OrderStatus captures the lifecycle of an order in the system.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusConfirmed  OrderStatus = "confirmed"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

var statusTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
}

// fulfilmentSequence is the linear path the scheduler walks.
var fulfilmentSequence = []OrderStatus{
	StatusPending,
	StatusConfirmed,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
}

// ParseStatus converts user input into a known status.
func ParseStatus(value string) (OrderStatus, bool) {
	status := OrderStatus(value)
	switch status {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return status, true
	default:
		return "", false
	}
}

// IsTerminal indicates whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransitionTo checks the transition table.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	allowed, ok := statusTransitions[s]
	if !ok {
		return false
	}
	return slices.Contains(allowed, next)
}

// Next returns the successor of s along the fulfilment sequence.
func (s OrderStatus) Next() (OrderStatus, bool) {
	idx := slices.Index(fulfilmentSequence, s)
	if idx < 0 || idx == len(fulfilmentSequence)-1 {
		return "", false
	}
	return fulfilmentSequence[idx+1], true
}

// Cancellable reports whether an order in status s may still be cancelled.
func (s OrderStatus) Cancellable() bool {
	return s.CanTransitionTo(StatusCancelled)
}

// AddressChangeable reports whether the delivery address may still be edited.
func (s OrderStatus) AddressChangeable() bool {
	return s == StatusPending || s == StatusConfirmed
}
