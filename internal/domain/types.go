package domain

import (
	"strings"
	"time"
)

// OwnerKind distinguishes account-backed owners from guest checkouts.
type OwnerKind string

const (
	OwnerKindAccount OwnerKind = "account"
	OwnerKindGuest   OwnerKind = "guest"
)

// OwnerRef identifies the party an order belongs to. Account owners carry a
// verified user ID; guests carry an opaque guest token plus the contact email
// captured at checkout.
type OwnerRef struct {
	Kind  OwnerKind
	ID    string
	Email string
}

// Ref renders the canonical owner reference stored on orders.
func (o OwnerRef) Ref() string {
	switch o.Kind {
	case OwnerKindAccount:
		return "users/" + o.ID
	case OwnerKindGuest:
		return "guests/" + o.ID
	default:
		return ""
	}
}

// IsZero reports whether the owner reference is unresolved.
func (o OwnerRef) IsZero() bool {
	return o.Kind == "" || o.ID == ""
}

// Address is the shipping address snapshot captured with an order.
type Address struct {
	Line1      string
	Line2      string
	City       string
	Region     string
	PostalCode string
	Country    string
}

// Contact holds the buyer contact details snapshotted onto the order.
type Contact struct {
	Email   string
	Name    string
	Phone   string
	Address Address
}

// CatalogItem is a sellable item with its own availability counter.
// UnitPrice is in minor currency units (e.g. cents).
type CatalogItem struct {
	ID                string
	Name              string
	UnitPrice         int64
	Currency          string
	Available         int64
	LowStockThreshold int64
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AttributeCombination is a concrete variant of a catalog item (for example
// {color: red, size: 12}). It carries its own price and availability counter,
// tracked independently of the parent item.
type AttributeCombination struct {
	ID         string
	ItemID     string
	Name       string
	Attributes map[string]string
	UnitPrice  int64
	Currency   string
	Available  int64
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CartLine is a single requested line at checkout. Exactly one of ItemID or
// CombinationID must be set.
type CartLine struct {
	ItemID        string
	CombinationID string
	Quantity      int64
}

// DiscountKind enumerates supported discount mechanics.
type DiscountKind string

const (
	// DiscountKindPercentage applies Value percent (0-100) to the subtotal.
	DiscountKindPercentage DiscountKind = "percentage"
	// DiscountKindFixed subtracts Value minor units, capped at the subtotal.
	DiscountKindFixed DiscountKind = "fixed"
)

// DiscountCode is a redeemable discount definition. UsageLimit of zero means
// unlimited.
type DiscountCode struct {
	Code       string
	Kind       DiscountKind
	Value      int64
	Currency   string
	StartsAt   time.Time
	EndsAt     time.Time
	UsageLimit int64
	UsageCount int64
	Active     bool
}

// Redeemable reports whether the code can be applied at the given instant.
func (d DiscountCode) Redeemable(now time.Time) bool {
	if !d.Active {
		return false
	}
	if !d.StartsAt.IsZero() && now.Before(d.StartsAt) {
		return false
	}
	if !d.EndsAt.IsZero() && now.After(d.EndsAt) {
		return false
	}
	if d.UsageLimit > 0 && d.UsageCount >= d.UsageLimit {
		return false
	}
	return true
}

// OrderStatus is the fulfillment dimension of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// PaymentStatus is the payment dimension, independent of fulfillment.
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// ParseOrderStatus normalises user-supplied status strings.
func ParseOrderStatus(value string) (OrderStatus, bool) {
	switch OrderStatus(strings.ToLower(strings.TrimSpace(value))) {
	case OrderStatusPending:
		return OrderStatusPending, true
	case OrderStatusProcessing:
		return OrderStatusProcessing, true
	case OrderStatusShipped:
		return OrderStatusShipped, true
	case OrderStatusDelivered:
		return OrderStatusDelivered, true
	case OrderStatusCancelled:
		return OrderStatusCancelled, true
	default:
		return "", false
	}
}

// ParsePaymentStatus normalises user-supplied payment status strings.
func ParsePaymentStatus(value string) (PaymentStatus, bool) {
	switch PaymentStatus(strings.ToLower(strings.TrimSpace(value))) {
	case PaymentStatusUnpaid:
		return PaymentStatusUnpaid, true
	case PaymentStatusPaid:
		return PaymentStatusPaid, true
	case PaymentStatusRefunded:
		return PaymentStatusRefunded, true
	default:
		return "", false
	}
}

// OrderLine is an immutable snapshot of one committed line. Prices are the
// values read from the catalog inside the commit transaction; later catalog
// edits never touch them.
type OrderLine struct {
	ItemID        string
	CombinationID string
	Name          string
	Attributes    map[string]string
	Quantity      int64
	UnitPrice     int64
	LineTotal     int64
}

// OrderTotals carries the priced amounts for an order in minor units.
type OrderTotals struct {
	Subtotal       int64
	DiscountAmount int64
	Total          int64
}

// Order is the committed order aggregate.
type Order struct {
	ID            string
	Number        string
	OwnerRef      string
	OwnerKind     OwnerKind
	Contact       Contact
	Lines         []OrderLine
	Currency      string
	DiscountCode  string
	Totals        OrderTotals
	Status        OrderStatus
	PaymentStatus PaymentStatus

	PlacedAt     time.Time
	ProcessingAt *time.Time
	ShippedAt    *time.Time
	DeliveredAt  *time.Time
	CancelledAt  *time.Time
	PaidAt       *time.Time
	RefundedAt   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Pagination carries cursor paging inputs.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage is a page of results plus the continuation token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
	HasMore       bool
}
