package handlers

import (
	"context"
	"time"

	domain "github.com/clearcart/api/internal/domain"
	"github.com/clearcart/api/internal/services"
)

type stubCheckoutService struct {
	order   domain.Order
	err     error
	lastCmd services.CommitOrderCommand
}

func (s *stubCheckoutService) Commit(_ context.Context, cmd services.CommitOrderCommand) (domain.Order, error) {
	s.lastCmd = cmd
	if s.err != nil {
		return domain.Order{}, s.err
	}
	return s.order, nil
}

type stubPricingService struct {
	quote services.Quote
	err   error
}

func (s *stubPricingService) Quote(context.Context, services.QuoteCommand) (services.Quote, error) {
	if s.err != nil {
		return services.Quote{}, s.err
	}
	return s.quote, nil
}

type stubOrderService struct {
	order     domain.Order
	page      domain.CursorPage[domain.Order]
	err       error
	lastQuery services.ListOrdersQuery
	lastCmd   services.TransitionOrderCommand
	lastEvent services.PaymentEventCommand
}

func (s *stubOrderService) Get(_ context.Context, orderID string, ownerRef string) (domain.Order, error) {
	if s.err != nil {
		return domain.Order{}, s.err
	}
	if ownerRef != "" && s.order.OwnerRef != "" && s.order.OwnerRef != ownerRef {
		return domain.Order{}, services.ErrOrderNotFound
	}
	return s.order, nil
}

func (s *stubOrderService) List(_ context.Context, query services.ListOrdersQuery) (domain.CursorPage[domain.Order], error) {
	s.lastQuery = query
	if s.err != nil {
		return domain.CursorPage[domain.Order]{}, s.err
	}
	return s.page, nil
}

func (s *stubOrderService) Transition(_ context.Context, cmd services.TransitionOrderCommand) (domain.Order, error) {
	s.lastCmd = cmd
	if s.err != nil {
		return domain.Order{}, s.err
	}
	return s.order, nil
}

func (s *stubOrderService) Cancel(ctx context.Context, orderID string, actorID string) (domain.Order, error) {
	return s.Transition(ctx, services.TransitionOrderCommand{
		OrderID: orderID,
		Target:  domain.OrderStatusCancelled,
		ActorID: actorID,
	})
}

func (s *stubOrderService) ApplyPaymentEvent(_ context.Context, cmd services.PaymentEventCommand) (domain.Order, error) {
	s.lastEvent = cmd
	if s.err != nil {
		return domain.Order{}, s.err
	}
	return s.order, nil
}

type stubCatalogService struct {
	item         domain.CatalogItem
	combination  domain.AttributeCombination
	combinations []domain.AttributeCombination
	lowStock     domain.CursorPage[domain.CatalogItem]
	err          error
}

func (s *stubCatalogService) GetItem(context.Context, string) (domain.CatalogItem, error) {
	if s.err != nil {
		return domain.CatalogItem{}, s.err
	}
	return s.item, nil
}

func (s *stubCatalogService) GetCombination(context.Context, string) (domain.AttributeCombination, error) {
	if s.err != nil {
		return domain.AttributeCombination{}, s.err
	}
	return s.combination, nil
}

func (s *stubCatalogService) ListCombinations(context.Context, string) ([]domain.AttributeCombination, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.combinations, nil
}

func (s *stubCatalogService) ListLowStock(context.Context, services.LowStockQuery) (domain.CursorPage[domain.CatalogItem], error) {
	if s.err != nil {
		return domain.CursorPage[domain.CatalogItem]{}, s.err
	}
	return s.lowStock, nil
}

type stubSystemService struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (domain.SystemHealthReport, error) {
	if s.err != nil {
		return domain.SystemHealthReport{}, s.err
	}
	return s.report, nil
}

func sampleOrder() domain.Order {
	placed := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:            "ord_sample",
		Number:        "CC-2026-000001",
		OwnerRef:      "users/user-1",
		OwnerKind:     domain.OwnerKindAccount,
		Currency:      "USD",
		DiscountCode:  "SAVE10",
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusUnpaid,
		Lines: []domain.OrderLine{
			{ItemID: "item_mug", Name: "Mug", Quantity: 2, UnitPrice: 1000, LineTotal: 2000},
			{ItemID: "item_mug", CombinationID: "combo_mug_red", Name: "Mug (red)", Attributes: map[string]string{"color": "red"}, Quantity: 1, UnitPrice: 1000, LineTotal: 1000},
		},
		Totals:    domain.OrderTotals{Subtotal: 3000, DiscountAmount: 300, Total: 2700},
		PlacedAt:  placed,
		CreatedAt: placed,
		UpdatedAt: placed,
	}
}
