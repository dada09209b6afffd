package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/clearcart/api/internal/domain"
	"github.com/clearcart/api/internal/platform/jobs"
	"github.com/clearcart/api/internal/repositories"
)

var (
	// ErrOrderInvalidInput indicates the request failed validation.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates no visible order matches the ID. Orders owned
	// by someone else also surface as not found.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderUnavailable indicates a downstream dependency failure.
	ErrOrderUnavailable = errors.New("order: temporarily unavailable")
)

// OrderServiceDeps bundles collaborators for the order service.
type OrderServiceDeps struct {
	Orders    repositories.OrderRepository
	Publisher OrderEventPublisher
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders    repositories.OrderRepository
	publisher OrderEventPublisher
	now       func() time.Time
	log       func(ctx context.Context, event string, fields map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService constructs the order reader and lifecycle driver.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderService{
		orders:    deps.Orders,
		publisher: deps.Publisher,
		now:       func() time.Time { return clock().UTC() },
		log:       logger,
	}, nil
}

// Get returns an order. When ownerRef is non-empty the order must belong to
// that owner; orders owned by someone else read as not found so IDs leak
// nothing.
func (s *orderService) Get(ctx context.Context, orderID string, ownerRef string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.translateReadError(err)
	}
	if ownerRef != "" && order.OwnerRef != ownerRef {
		return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

// List returns a page of orders scoped to the query.
func (s *orderService) List(ctx context.Context, query ListOrdersQuery) (domain.CursorPage[domain.Order], error) {
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		OwnerRef:   strings.TrimSpace(query.OwnerRef),
		Email:      strings.TrimSpace(query.Email),
		Status:     query.Status,
		Pagination: query.Pagination,
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, s.translateReadError(err)
	}
	return page, nil
}

// Transition moves an order along the fulfillment state machine. The guard
// checks and the write happen inside one transaction.
func (s *orderService) Transition(ctx context.Context, cmd TransitionOrderCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !isKnownStatus(cmd.Target) {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Target)
	}

	now := s.now()
	order, err := s.orders.Update(ctx, orderID, func(current domain.Order) (domain.Order, error) {
		return domain.AdvanceStatus(current, cmd.Target, now)
	})
	if err != nil {
		return domain.Order{}, s.translateWriteError(err)
	}

	s.log(ctx, "order.status_changed", map[string]any{
		"orderId": order.ID,
		"status":  string(order.Status),
		"actorId": cmd.ActorID,
	})
	s.publishChange(ctx, jobs.EventOrderStatusChanged, order, now)
	return order, nil
}

// Cancel is the customer-facing cancellation. Customers may only cancel an
// order that is still pending; once fulfilment has started, cancellation is
// a staff decision made through Transition. The guard and the write happen
// inside one transaction.
func (s *orderService) Cancel(ctx context.Context, orderID string, actorID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	now := s.now()
	order, err := s.orders.Update(ctx, orderID, func(current domain.Order) (domain.Order, error) {
		if current.Status != domain.OrderStatusPending {
			return domain.Order{}, &domain.IllegalTransitionError{
				OrderID: current.ID,
				Field:   "status",
				From:    string(current.Status),
				To:      string(domain.OrderStatusCancelled),
				Reason:  "customer cancellation is only allowed while pending",
			}
		}
		return domain.AdvanceStatus(current, domain.OrderStatusCancelled, now)
	})
	if err != nil {
		return domain.Order{}, s.translateWriteError(err)
	}

	s.log(ctx, "order.cancelled", map[string]any{
		"orderId": order.ID,
		"actorId": actorID,
	})
	s.publishChange(ctx, jobs.EventOrderStatusChanged, order, now)
	return order, nil
}

// ApplyPaymentEvent applies a verified payment notification to the order's
// payment dimension.
func (s *orderService) ApplyPaymentEvent(ctx context.Context, cmd PaymentEventCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !isKnownPaymentStatus(cmd.Target) {
		return domain.Order{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, cmd.Target)
	}

	now := s.now()
	order, err := s.orders.Update(ctx, orderID, func(current domain.Order) (domain.Order, error) {
		return domain.AdvancePayment(current, cmd.Target, now)
	})
	if err != nil {
		return domain.Order{}, s.translateWriteError(err)
	}

	s.log(ctx, "order.payment_changed", map[string]any{
		"orderId": order.ID,
		"payment": string(order.PaymentStatus),
	})
	s.publishChange(ctx, jobs.EventOrderPaymentChanged, order, now)
	return order, nil
}

func isKnownStatus(status domain.OrderStatus) bool {
	_, ok := domain.ParseOrderStatus(string(status))
	return ok
}

func isKnownPaymentStatus(status domain.PaymentStatus) bool {
	_, ok := domain.ParsePaymentStatus(string(status))
	return ok
}

func (s *orderService) translateReadError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
	}
	return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
}

func (s *orderService) translateWriteError(err error) error {
	var illegal *domain.IllegalTransitionError
	if errors.As(err, &illegal) {
		// Keep the typed error visible to handlers.
		return err
	}
	return s.translateReadError(err)
}

// publishChange emits a lifecycle event. Best effort, same as checkout.
func (s *orderService) publishChange(ctx context.Context, eventType string, order domain.Order, occurredAt time.Time) {
	if s.publisher == nil {
		return
	}
	_, err := s.publisher.PublishOrderEvent(ctx, jobs.OrderEventMessage{
		EventType:     eventType,
		OrderID:       order.ID,
		OrderNumber:   order.Number,
		OwnerRef:      order.OwnerRef,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		TotalAmount:   order.Totals.Total,
		Currency:      order.Currency,
		OccurredAt:    occurredAt,
	})
	if err != nil {
		s.log(ctx, "order.publish_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}
