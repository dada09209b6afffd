package services

import (
	"context"

	domain "github.com/clearcart/api/internal/domain"
	"github.com/clearcart/api/internal/platform/jobs"
)

// OrderEventPublisher publishes order lifecycle events for downstream
// consumers (fulfilment, notifications).
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event jobs.OrderEventMessage) (string, error)
}

// ResolveOwnerCommand carries the identity inputs from a checkout request.
// An authenticated user supplies UserID; a guest supplies Email and,
// optionally, a guest token from an earlier checkout.
type ResolveOwnerCommand struct {
	UserID     string
	Email      string
	GuestToken string
}

// IdentityService resolves who an order belongs to.
type IdentityService interface {
	Resolve(ctx context.Context, cmd ResolveOwnerCommand) (domain.OwnerRef, error)
}

// QuoteLine is one requested line in a price quote.
type QuoteLine struct {
	ItemID        string
	CombinationID string
	Quantity      int64
}

// QuoteCommand requests a display-only price calculation. Nothing is
// reserved or consumed; the commit transaction recomputes everything.
type QuoteCommand struct {
	Lines        []QuoteLine
	DiscountCode string
}

// Quote is the server-priced view of a prospective order.
type Quote struct {
	Lines        []domain.OrderLine
	Currency     string
	DiscountCode string
	Totals       domain.OrderTotals
}

// PricingService produces display quotes from authoritative catalog prices.
type PricingService interface {
	Quote(ctx context.Context, cmd QuoteCommand) (Quote, error)
}

// CommitOrderCommand is the full checkout input.
type CommitOrderCommand struct {
	Owner        ResolveOwnerCommand
	Contact      domain.Contact
	Lines        []QuoteLine
	DiscountCode string
}

// CheckoutService commits orders atomically.
type CheckoutService interface {
	Commit(ctx context.Context, cmd CommitOrderCommand) (domain.Order, error)
}

// TransitionOrderCommand moves an order along the fulfillment state machine.
type TransitionOrderCommand struct {
	OrderID string
	Target  domain.OrderStatus
	ActorID string
}

// PaymentEventCommand applies a verified payment notification to an order.
type PaymentEventCommand struct {
	OrderID string
	Target  domain.PaymentStatus
}

// ListOrdersQuery scopes an order listing. OwnerRef is required for
// customer-facing listings; staff may pass it empty to list across owners,
// or filter by the contact email captured at checkout instead.
type ListOrdersQuery struct {
	OwnerRef   string
	Email      string
	Status     []domain.OrderStatus
	Pagination domain.Pagination
}

// OrderService reads orders and drives the lifecycle state machine.
type OrderService interface {
	Get(ctx context.Context, orderID string, ownerRef string) (domain.Order, error)
	List(ctx context.Context, query ListOrdersQuery) (domain.CursorPage[domain.Order], error)
	Transition(ctx context.Context, cmd TransitionOrderCommand) (domain.Order, error)
	Cancel(ctx context.Context, orderID string, actorID string) (domain.Order, error)
	ApplyPaymentEvent(ctx context.Context, cmd PaymentEventCommand) (domain.Order, error)
}

// LowStockQuery pages through items at or below an availability threshold.
type LowStockQuery struct {
	Threshold  int64
	Pagination domain.Pagination
}

// CatalogService reads sellable items and availability.
type CatalogService interface {
	GetItem(ctx context.Context, itemID string) (domain.CatalogItem, error)
	GetCombination(ctx context.Context, combinationID string) (domain.AttributeCombination, error)
	ListCombinations(ctx context.Context, itemID string) ([]domain.AttributeCombination, error)
	ListLowStock(ctx context.Context, query LowStockQuery) (domain.CursorPage[domain.CatalogItem], error)
}

// SystemService reports dependency health for readiness probes.
type SystemService interface {
	HealthReport(ctx context.Context) (domain.SystemHealthReport, error)
}
