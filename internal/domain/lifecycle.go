package domain

import (
	"fmt"
	"time"
)

// orderTransitions lists the allowed fulfillment moves. Delivered and
// cancelled are terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

// paymentTransitions lists the allowed payment moves. Refunded is terminal.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusUnpaid:   {PaymentStatusPaid},
	PaymentStatusPaid:     {PaymentStatusRefunded},
	PaymentStatusRefunded: {},
}

// IllegalTransitionError reports a rejected state change on an order.
type IllegalTransitionError struct {
	OrderID string
	Field   string
	From    string
	To      string
	Reason  string
}

func (e *IllegalTransitionError) Error() string {
	msg := fmt.Sprintf("order %s: illegal %s transition %s -> %s", e.OrderID, e.Field, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// CanTransitionStatus reports whether the fulfillment move is allowed,
// ignoring payment guards.
func CanTransitionStatus(from, to OrderStatus) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CanTransitionPayment reports whether the payment move is allowed.
func CanTransitionPayment(from, to PaymentStatus) bool {
	for _, allowed := range paymentTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AdvanceStatus applies a fulfillment transition to the order, stamping the
// matching timestamp. An order cannot advance past processing until it has
// been paid.
func AdvanceStatus(order Order, target OrderStatus, now time.Time) (Order, error) {
	if !CanTransitionStatus(order.Status, target) {
		return Order{}, &IllegalTransitionError{
			OrderID: order.ID,
			Field:   "status",
			From:    string(order.Status),
			To:      string(target),
		}
	}
	if (target == OrderStatusShipped || target == OrderStatusDelivered) && order.PaymentStatus != PaymentStatusPaid {
		return Order{}, &IllegalTransitionError{
			OrderID: order.ID,
			Field:   "status",
			From:    string(order.Status),
			To:      string(target),
			Reason:  "order is not paid",
		}
	}

	now = now.UTC()
	order.Status = target
	switch target {
	case OrderStatusProcessing:
		order.ProcessingAt = &now
	case OrderStatusShipped:
		order.ShippedAt = &now
	case OrderStatusDelivered:
		order.DeliveredAt = &now
	case OrderStatusCancelled:
		order.CancelledAt = &now
	}
	order.UpdatedAt = now
	return order, nil
}

// AdvancePayment applies a payment transition to the order.
func AdvancePayment(order Order, target PaymentStatus, now time.Time) (Order, error) {
	if !CanTransitionPayment(order.PaymentStatus, target) {
		return Order{}, &IllegalTransitionError{
			OrderID: order.ID,
			Field:   "payment",
			From:    string(order.PaymentStatus),
			To:      string(target),
		}
	}

	now = now.UTC()
	order.PaymentStatus = target
	switch target {
	case PaymentStatusPaid:
		order.PaidAt = &now
	case PaymentStatusRefunded:
		order.RefundedAt = &now
	}
	order.UpdatedAt = now
	return order, nil
}
