package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/clearcart/api/internal/domain"
	"github.com/clearcart/api/internal/platform/jobs"
	"github.com/clearcart/api/internal/repositories"
)

const (
	orderIDPrefix      = "ord_"
	orderNumberCounter = "orders:number"
)

var (
	// ErrCheckoutInvalidInput indicates the checkout request failed validation.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutEmptyCart indicates a checkout with no lines.
	ErrCheckoutEmptyCart = errors.New("checkout: empty cart")
	// ErrCheckoutUnresolvedOwner indicates neither an account nor a guest
	// identity could be established for the order.
	ErrCheckoutUnresolvedOwner = errors.New("checkout: owner could not be resolved")
	// ErrCheckoutInsufficientAvailability indicates at least one line asked for
	// more than the remaining availability.
	ErrCheckoutInsufficientAvailability = errors.New("checkout: insufficient availability")
	// ErrCheckoutDiscountInvalid indicates the discount code cannot be applied.
	ErrCheckoutDiscountInvalid = errors.New("checkout: discount invalid")
	// ErrCheckoutTimeout indicates the commit transaction exceeded its deadline
	// with an unknown outcome.
	ErrCheckoutTimeout = errors.New("checkout: commit timed out")
	// ErrCheckoutUnavailable indicates a downstream dependency failure.
	ErrCheckoutUnavailable = errors.New("checkout: temporarily unavailable")
)

// CheckoutServiceDeps bundles collaborators for the checkout service.
type CheckoutServiceDeps struct {
	Identity  IdentityService
	Orders    repositories.OrderRepository
	Counters  repositories.CounterRepository
	Publisher OrderEventPublisher
	Clock     func() time.Time
	IDGen     func() string
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	identity  IdentityService
	orders    repositories.OrderRepository
	counters  repositories.CounterRepository
	publisher OrderEventPublisher
	now       func() time.Time
	newID     func() string
	log       func(ctx context.Context, event string, fields map[string]any)
}

var _ CheckoutService = (*checkoutService)(nil)

// NewCheckoutService constructs the order commit coordinator.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Identity == nil {
		return nil, errors.New("checkout service: identity service is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("checkout service: counter repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &checkoutService{
		identity:  deps.Identity,
		orders:    deps.Orders,
		counters:  deps.Counters,
		publisher: deps.Publisher,
		now:       func() time.Time { return clock().UTC() },
		newID:     idGen,
		log:       logger,
	}, nil
}

// Commit validates the checkout request, resolves the owner, and runs the
// atomic commit transaction. Availability checks, discount consumption, and
// order creation all succeed or fail together inside the repository.
func (s *checkoutService) Commit(ctx context.Context, cmd CommitOrderCommand) (domain.Order, error) {
	lines, err := normalizeCartLines(cmd.Lines)
	if err != nil {
		if errors.Is(err, ErrCartEmpty) {
			return domain.Order{}, fmt.Errorf("%w: at least one line is required", ErrCheckoutEmptyCart)
		}
		return domain.Order{}, fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
	}

	owner, err := s.identity.Resolve(ctx, cmd.Owner)
	if err != nil {
		switch {
		case errors.Is(err, ErrIdentityUnresolved):
			return domain.Order{}, fmt.Errorf("%w: %v", ErrCheckoutUnresolvedOwner, err)
		case errors.Is(err, ErrIdentityInvalidInput):
			return domain.Order{}, fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
		default:
			return domain.Order{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
		}
	}

	contact := cmd.Contact
	if strings.TrimSpace(contact.Email) == "" {
		contact.Email = owner.Email
	}
	if strings.TrimSpace(contact.Email) == "" {
		return domain.Order{}, fmt.Errorf("%w: contact email is required", ErrCheckoutInvalidInput)
	}

	now := s.now()

	// Sequence numbers are drawn before the commit; a failed commit leaves a
	// gap, which is acceptable for human-readable order numbers.
	sequence, err := s.counters.Next(ctx, orderNumberCounter)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: order number allocation failed: %v", ErrCheckoutUnavailable, err)
	}
	number := fmt.Sprintf("CC-%04d-%06d", now.Year(), sequence)
	orderID := orderIDPrefix + s.newID()

	order, err := s.orders.Commit(ctx, repositories.OrderCommitRequest{
		OrderID:      orderID,
		Number:       number,
		Owner:        owner,
		Contact:      contact,
		Lines:        lines,
		DiscountCode: cmd.DiscountCode,
		Now:          now,
	})
	if err != nil {
		return domain.Order{}, s.translateCommitError(err)
	}

	s.log(ctx, "checkout.committed", map[string]any{
		"orderId": order.ID,
		"number":  order.Number,
		"total":   order.Totals.Total,
		"lines":   len(order.Lines),
	})
	s.publishCreated(ctx, order)
	return order, nil
}

func (s *checkoutService) translateCommitError(err error) error {
	var ledgerErr *repositories.LedgerError
	if errors.As(err, &ledgerErr) {
		switch ledgerErr.Code {
		case repositories.LedgerErrorInsufficient:
			return fmt.Errorf("%w: %s", ErrCheckoutInsufficientAvailability, ledgerErr.Message)
		case repositories.LedgerErrorRefNotFound, repositories.LedgerErrorRefInactive:
			return fmt.Errorf("%w: %s", ErrCheckoutInvalidInput, ledgerErr.Message)
		default:
			return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
		}
	}

	var discountErr *repositories.DiscountError
	if errors.As(err, &discountErr) {
		return fmt.Errorf("%w: %s", ErrCheckoutDiscountInvalid, discountErr.Message)
	}

	switch {
	case errors.Is(err, domain.ErrDiscountNotRedeemable), errors.Is(err, domain.ErrDiscountMalformed):
		return fmt.Errorf("%w: %v", ErrCheckoutDiscountInvalid, err)
	case errors.Is(err, domain.ErrPricingInvalidLine), errors.Is(err, domain.ErrPricingOverflow):
		return fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrCheckoutTimeout, err)
	default:
		return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
}

// publishCreated emits the order.created event. Publishing is best effort:
// the order is already committed, so a broker failure is logged, not surfaced.
func (s *checkoutService) publishCreated(ctx context.Context, order domain.Order) {
	if s.publisher == nil {
		return
	}
	_, err := s.publisher.PublishOrderEvent(ctx, jobs.OrderEventMessage{
		EventType:     jobs.EventOrderCreated,
		OrderID:       order.ID,
		OrderNumber:   order.Number,
		OwnerRef:      order.OwnerRef,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		TotalAmount:   order.Totals.Total,
		Currency:      order.Currency,
		OccurredAt:    order.PlacedAt,
	})
	if err != nil {
		s.log(ctx, "checkout.publish_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}
