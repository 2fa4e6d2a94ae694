package enums

import "fmt"

// OrderStatus tracks the lifecycle of an order as reported by the backend.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "PENDING"
	OrderStatusWaitingPayment OrderStatus = "WAITING_PAYMENT"
	OrderStatusCODPending     OrderStatus = "COD_PENDING"
	OrderStatusPaid           OrderStatus = "PAID"
	OrderStatusDelivering     OrderStatus = "DELIVERING"
	OrderStatusDelivered      OrderStatus = "DELIVERED"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusWaitingPayment,
	OrderStatusCODPending,
	OrderStatusPaid,
	OrderStatusDelivering,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// AwaitsPayment reports whether an invoice may still be created or polled
// for an order in this status.
func (o OrderStatus) AwaitsPayment() bool {
	return o == OrderStatusPending || o == OrderStatusWaitingPayment
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
