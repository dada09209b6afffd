package repositories

import (
	"context"
	"time"

	domain "github.com/clearcart/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for
// dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Catalog() CatalogRepository
	Discounts() DiscountRepository
	Orders() OrderRepository
	Counters() CounterRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation
// used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CatalogRepository reads sellable items, their attribute combinations, and
// the availability counters attached to each. Availability is only ever
// decremented inside the order commit transaction; this interface exposes
// read paths.
type CatalogRepository interface {
	GetItem(ctx context.Context, itemID string) (domain.CatalogItem, error)
	GetCombination(ctx context.Context, combinationID string) (domain.AttributeCombination, error)
	ListCombinations(ctx context.Context, itemID string) ([]domain.AttributeCombination, error)
	ListLowStock(ctx context.Context, query LowStockQuery) (domain.CursorPage[domain.CatalogItem], error)
}

// LowStockQuery controls threshold filtering and paging for low stock
// listings. A zero threshold falls back to each item's own configured
// low-stock threshold.
type LowStockQuery struct {
	Threshold int64
	PageSize  int
	PageToken string
}

// DiscountRepository reads discount code definitions. Usage consumption
// happens inside the order commit transaction, not here.
type DiscountRepository interface {
	GetByCode(ctx context.Context, code string) (domain.DiscountCode, error)
}

// OrderCommitRequest carries the validated checkout input into the commit
// transaction. Lines are the client-requested quantities; unit prices are
// read from the catalog inside the transaction, never taken from the client.
type OrderCommitRequest struct {
	OrderID      string
	Number       string
	Owner        domain.OwnerRef
	Contact      domain.Contact
	Lines        []domain.CartLine
	DiscountCode string
	Now          time.Time
}

// OrderMutator transforms an order inside a transaction. Returning an error
// aborts the write and surfaces the error unchanged.
type OrderMutator func(order domain.Order) (domain.Order, error)

// OrderListFilter scopes order listings. Email matches the contact email
// snapshot captured at commit time, supporting history lookups for guests
// who no longer hold their token.
type OrderListFilter struct {
	OwnerRef   string
	Email      string
	Status     []domain.OrderStatus
	Pagination domain.Pagination
}

// OrderRepository persists orders. Commit is the single write path that
// creates an order: it checks and decrements availability, validates and
// consumes the discount code, and creates the order document in one
// transaction, so either every effect lands or none do.
type OrderRepository interface {
	Commit(ctx context.Context, req OrderCommitRequest) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	Update(ctx context.Context, orderID string, apply OrderMutator) (domain.Order, error)
}

// CounterRepository provides transaction-safe sequence numbers, used for
// human-readable order numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string) (int64, error)
}

// HealthRepository exposes status of downstream dependencies for readiness
// checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
