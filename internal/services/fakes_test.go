package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/clearcart/api/internal/domain"
	"github.com/clearcart/api/internal/platform/jobs"
	"github.com/clearcart/api/internal/repositories"
)

type fakeRepoError struct {
	msg         string
	notFound    bool
	unavailable bool
}

func (e *fakeRepoError) Error() string       { return e.msg }
func (e *fakeRepoError) IsNotFound() bool    { return e.notFound }
func (e *fakeRepoError) IsConflict() bool    { return false }
func (e *fakeRepoError) IsUnavailable() bool { return e.unavailable }

func notFoundErr(ref string) error {
	return &fakeRepoError{msg: ref + " not found", notFound: true}
}

type fakeCatalogRepository struct {
	mu           sync.Mutex
	items        map[string]domain.CatalogItem
	combinations map[string]domain.AttributeCombination
	failAll      error
}

func newFakeCatalog() *fakeCatalogRepository {
	return &fakeCatalogRepository{
		items:        map[string]domain.CatalogItem{},
		combinations: map[string]domain.AttributeCombination{},
	}
}

func (f *fakeCatalogRepository) GetItem(_ context.Context, itemID string) (domain.CatalogItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return domain.CatalogItem{}, f.failAll
	}
	item, ok := f.items[itemID]
	if !ok {
		return domain.CatalogItem{}, notFoundErr("item " + itemID)
	}
	return item, nil
}

func (f *fakeCatalogRepository) GetCombination(_ context.Context, combinationID string) (domain.AttributeCombination, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return domain.AttributeCombination{}, f.failAll
	}
	combination, ok := f.combinations[combinationID]
	if !ok {
		return domain.AttributeCombination{}, notFoundErr("combination " + combinationID)
	}
	return combination, nil
}

func (f *fakeCatalogRepository) ListCombinations(_ context.Context, itemID string) ([]domain.AttributeCombination, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AttributeCombination
	for _, combination := range f.combinations {
		if combination.ItemID == itemID {
			out = append(out, combination)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeCatalogRepository) ListLowStock(_ context.Context, query repositories.LowStockQuery) (domain.CursorPage[domain.CatalogItem], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.CatalogItem
	for _, item := range f.items {
		threshold := query.Threshold
		if threshold == 0 {
			threshold = item.LowStockThreshold
		}
		if item.Available <= threshold {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return domain.CursorPage[domain.CatalogItem]{Items: out}, nil
}

type fakeDiscountRepository struct {
	mu    sync.Mutex
	codes map[string]domain.DiscountCode
}

func newFakeDiscounts() *fakeDiscountRepository {
	return &fakeDiscountRepository{codes: map[string]domain.DiscountCode{}}
}

func (f *fakeDiscountRepository) GetByCode(_ context.Context, code string) (domain.DiscountCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	normalized := strings.ToUpper(strings.TrimSpace(code))
	resolved, ok := f.codes[normalized]
	if !ok {
		return domain.DiscountCode{}, repositories.NewDiscountError(repositories.DiscountErrorNotFound, "discount code not found", nil)
	}
	return resolved, nil
}

// fakeOrderRepository mimics the all-or-nothing commit against the in-memory
// catalog: availability checks, decrements, discount consumption, and order
// creation all happen under one lock.
type fakeOrderRepository struct {
	mu        sync.Mutex
	catalog   *fakeCatalogRepository
	discounts *fakeDiscountRepository
	orders    map[string]domain.Order
	commitErr error
}

func newFakeOrders(catalog *fakeCatalogRepository, discounts *fakeDiscountRepository) *fakeOrderRepository {
	return &fakeOrderRepository{
		catalog:   catalog,
		discounts: discounts,
		orders:    map[string]domain.Order{},
	}
}

func discountRedeemError(code domain.DiscountCode, now time.Time) *repositories.DiscountError {
	switch {
	case !code.Active:
		return repositories.NewDiscountError(repositories.DiscountErrorInactive, "discount code is inactive", nil)
	case !code.StartsAt.IsZero() && now.Before(code.StartsAt):
		return repositories.NewDiscountError(repositories.DiscountErrorNotStarted, "discount code is not yet valid", nil)
	case !code.EndsAt.IsZero() && now.After(code.EndsAt):
		return repositories.NewDiscountError(repositories.DiscountErrorExpired, "discount code has expired", nil)
	case code.UsageLimit > 0 && code.UsageCount >= code.UsageLimit:
		return repositories.NewDiscountError(repositories.DiscountErrorExhausted, "discount code usage limit reached", nil)
	default:
		return nil
	}
}

func (f *fakeOrderRepository) Commit(_ context.Context, req repositories.OrderCommitRequest) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalog.mu.Lock()
	defer f.catalog.mu.Unlock()
	f.discounts.mu.Lock()
	defer f.discounts.mu.Unlock()

	if f.commitErr != nil {
		return domain.Order{}, f.commitErr
	}

	var appliedCode *domain.DiscountCode
	code := strings.ToUpper(strings.TrimSpace(req.DiscountCode))
	if code != "" {
		resolved, ok := f.discounts.codes[code]
		if !ok {
			return domain.Order{}, repositories.NewDiscountError(repositories.DiscountErrorNotFound, "discount code not found", nil)
		}
		if redeemErr := discountRedeemError(resolved, req.Now); redeemErr != nil {
			return domain.Order{}, redeemErr
		}
		appliedCode = &resolved
	}

	lines := make([]domain.OrderLine, 0, len(req.Lines))
	currency := ""
	for _, line := range req.Lines {
		if line.CombinationID != "" {
			combination, ok := f.catalog.combinations[line.CombinationID]
			if !ok {
				return domain.Order{}, repositories.NewLedgerError(repositories.LedgerErrorRefNotFound, line.CombinationID, "combination not found", nil)
			}
			if !combination.Active {
				return domain.Order{}, repositories.NewLedgerError(repositories.LedgerErrorRefInactive, line.CombinationID, "combination inactive", nil)
			}
			if combination.Available < line.Quantity {
				return domain.Order{}, repositories.NewLedgerError(repositories.LedgerErrorInsufficient, line.CombinationID,
					fmt.Sprintf("insufficient availability for %s: want %d, have %d", line.CombinationID, line.Quantity, combination.Available), nil)
			}
			total, err := domain.LineTotal(combination.UnitPrice, line.Quantity)
			if err != nil {
				return domain.Order{}, err
			}
			currency = combination.Currency
			lines = append(lines, domain.OrderLine{
				ItemID:        combination.ItemID,
				CombinationID: combination.ID,
				Name:          combination.Name,
				Attributes:    combination.Attributes,
				Quantity:      line.Quantity,
				UnitPrice:     combination.UnitPrice,
				LineTotal:     total,
			})
			continue
		}

		item, ok := f.catalog.items[line.ItemID]
		if !ok {
			return domain.Order{}, repositories.NewLedgerError(repositories.LedgerErrorRefNotFound, line.ItemID, "item not found", nil)
		}
		if !item.Active {
			return domain.Order{}, repositories.NewLedgerError(repositories.LedgerErrorRefInactive, line.ItemID, "item inactive", nil)
		}
		if item.Available < line.Quantity {
			return domain.Order{}, repositories.NewLedgerError(repositories.LedgerErrorInsufficient, line.ItemID,
				fmt.Sprintf("insufficient availability for %s: want %d, have %d", line.ItemID, line.Quantity, item.Available), nil)
		}
		total, err := domain.LineTotal(item.UnitPrice, line.Quantity)
		if err != nil {
			return domain.Order{}, err
		}
		currency = item.Currency
		lines = append(lines, domain.OrderLine{
			ItemID:    item.ID,
			Name:      item.Name,
			Quantity:  line.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: total,
		})
	}

	totals, err := domain.PriceOrder(lines, appliedCode, req.Now)
	if err != nil {
		return domain.Order{}, err
	}

	// Validation passed, apply every effect.
	for _, line := range req.Lines {
		if line.CombinationID != "" {
			combination := f.catalog.combinations[line.CombinationID]
			combination.Available -= line.Quantity
			f.catalog.combinations[line.CombinationID] = combination
			continue
		}
		item := f.catalog.items[line.ItemID]
		item.Available -= line.Quantity
		f.catalog.items[line.ItemID] = item
	}
	if appliedCode != nil {
		consumed := f.discounts.codes[code]
		consumed.UsageCount++
		f.discounts.codes[code] = consumed
	}

	order := domain.Order{
		ID:            req.OrderID,
		Number:        req.Number,
		OwnerRef:      req.Owner.Ref(),
		OwnerKind:     req.Owner.Kind,
		Contact:       req.Contact,
		Lines:         lines,
		Currency:      currency,
		DiscountCode:  code,
		Totals:        totals,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusUnpaid,
		PlacedAt:      req.Now,
		CreatedAt:     req.Now,
		UpdatedAt:     req.Now,
	}
	f.orders[order.ID] = order
	return order, nil
}

func (f *fakeOrderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return domain.Order{}, notFoundErr("order " + orderID)
	}
	return order, nil
}

func (f *fakeOrderRepository) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Order
	for _, order := range f.orders {
		if filter.OwnerRef != "" && order.OwnerRef != filter.OwnerRef {
			continue
		}
		if filter.Email != "" && order.Contact.Email != filter.Email {
			continue
		}
		if len(filter.Status) > 0 {
			matched := false
			for _, status := range filter.Status {
				if order.Status == status {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		out = append(out, order)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.After(out[j].PlacedAt) })
	return domain.CursorPage[domain.Order]{Items: out}, nil
}

func (f *fakeOrderRepository) Update(_ context.Context, orderID string, apply repositories.OrderMutator) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return domain.Order{}, notFoundErr("order " + orderID)
	}
	next, err := apply(order)
	if err != nil {
		return domain.Order{}, err
	}
	f.orders[orderID] = next
	return next, nil
}

type fakeCounterRepository struct {
	mu     sync.Mutex
	values map[string]int64
	err    error
}

func newFakeCounters() *fakeCounterRepository {
	return &fakeCounterRepository{values: map[string]int64{}}
}

func (f *fakeCounterRepository) Next(_ context.Context, counterID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.values[counterID]++
	return f.values[counterID], nil
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []jobs.OrderEventMessage
	err      error
}

func (f *fakePublisher) PublishOrderEvent(_ context.Context, event jobs.OrderEventMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.messages = append(f.messages, event)
	return fmt.Sprintf("msg-%d", len(f.messages)), nil
}

func (f *fakePublisher) published() []jobs.OrderEventMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]jobs.OrderEventMessage, len(f.messages))
	copy(out, f.messages)
	return out
}
