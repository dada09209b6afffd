package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/clearcart/api/internal/domain"
	"github.com/clearcart/api/internal/platform/jobs"
)

type checkoutFixture struct {
	catalog   *fakeCatalogRepository
	discounts *fakeDiscountRepository
	orders    *fakeOrderRepository
	counters  *fakeCounterRepository
	publisher *fakePublisher
	now       time.Time
	svc       CheckoutService
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	catalog := newFakeCatalog()
	seedMugCatalog(catalog, now)
	discounts := newFakeDiscounts()
	discounts.codes["SAVE10"] = domain.DiscountCode{
		Code: "SAVE10", Kind: domain.DiscountKindPercentage, Value: 10, Active: true,
	}
	discounts.codes["EXPIRED"] = domain.DiscountCode{
		Code: "EXPIRED", Kind: domain.DiscountKindPercentage, Value: 50,
		EndsAt: now.Add(-time.Hour), Active: true,
	}

	orders := newFakeOrders(catalog, discounts)
	counters := newFakeCounters()
	publisher := &fakePublisher{}

	identity, err := NewIdentityService(IdentityServiceDeps{})
	if err != nil {
		t.Fatalf("NewIdentityService: %v", err)
	}
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Identity:  identity,
		Orders:    orders,
		Counters:  counters,
		Publisher: publisher,
		Clock:     func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewCheckoutService: %v", err)
	}

	return &checkoutFixture{
		catalog:   catalog,
		discounts: discounts,
		orders:    orders,
		counters:  counters,
		publisher: publisher,
		now:       now,
		svc:       svc,
	}
}

func TestCheckoutServiceCommit(t *testing.T) {
	t.Parallel()

	fx := newCheckoutFixture(t)

	order, err := fx.svc.Commit(context.Background(), CommitOrderCommand{
		Owner:   ResolveOwnerCommand{UserID: "user-1", Email: "buyer@example.com"},
		Contact: domain.Contact{Email: "buyer@example.com", Name: "Buyer"},
		Lines: []QuoteLine{
			{ItemID: "item_mug", Quantity: 2},
			{CombinationID: "combo_mug_red", Quantity: 1},
		},
		DiscountCode: "save10",
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if order.Totals.Subtotal != 3000 || order.Totals.DiscountAmount != 300 || order.Totals.Total != 2700 {
		t.Fatalf("unexpected totals %+v", order.Totals)
	}
	if order.Status != domain.OrderStatusPending || order.PaymentStatus != domain.PaymentStatusUnpaid {
		t.Fatalf("unexpected initial statuses %s/%s", order.Status, order.PaymentStatus)
	}
	if order.Number != "CC-2026-000001" {
		t.Fatalf("unexpected order number %q", order.Number)
	}
	if order.OwnerRef != "users/user-1" {
		t.Fatalf("unexpected owner ref %q", order.OwnerRef)
	}

	if got := fx.catalog.items["item_mug"].Available; got != 3 {
		t.Fatalf("expected item availability 3, got %d", got)
	}
	if got := fx.catalog.combinations["combo_mug_red"].Available; got != 0 {
		t.Fatalf("expected combination availability 0, got %d", got)
	}
	if got := fx.discounts.codes["SAVE10"].UsageCount; got != 1 {
		t.Fatalf("expected usage count 1, got %d", got)
	}

	published := fx.publisher.published()
	if len(published) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(published))
	}
	event := published[0]
	if event.EventType != jobs.EventOrderCreated || event.OrderID != order.ID || event.TotalAmount != 2700 {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestCheckoutServiceCommitDoubleSubmit(t *testing.T) {
	t.Parallel()

	fx := newCheckoutFixture(t)
	fx.catalog.items["item_last"] = domain.CatalogItem{
		ID: "item_last", Name: "Last one", UnitPrice: 500, Currency: "USD",
		Available: 1, Active: true, CreatedAt: fx.now, UpdatedAt: fx.now,
	}

	cmd := CommitOrderCommand{
		Owner:   ResolveOwnerCommand{Email: "guest@example.com"},
		Contact: domain.Contact{Email: "guest@example.com"},
		Lines:   []QuoteLine{{ItemID: "item_last", Quantity: 1}},
	}

	results := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			defer wg.Done()
			_, results[i] = fx.svc.Commit(context.Background(), cmd)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		if !errors.Is(err, ErrCheckoutInsufficientAvailability) {
			t.Fatalf("expected insufficient availability for loser, got %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one commit to succeed, got %d", succeeded)
	}
	if got := fx.catalog.items["item_last"].Available; got != 0 {
		t.Fatalf("expected availability 0 after race, got %d", got)
	}
}

func TestCheckoutServiceCommitExpiredCodeHasNoSideEffects(t *testing.T) {
	t.Parallel()

	fx := newCheckoutFixture(t)

	_, err := fx.svc.Commit(context.Background(), CommitOrderCommand{
		Owner:        ResolveOwnerCommand{UserID: "user-1", Email: "buyer@example.com"},
		Contact:      domain.Contact{Email: "buyer@example.com"},
		Lines:        []QuoteLine{{ItemID: "item_mug", Quantity: 1}},
		DiscountCode: "EXPIRED",
	})
	if !errors.Is(err, ErrCheckoutDiscountInvalid) {
		t.Fatalf("expected discount invalid, got %v", err)
	}

	if got := fx.catalog.items["item_mug"].Available; got != 5 {
		t.Fatalf("expected availability untouched at 5, got %d", got)
	}
	if len(fx.orders.orders) != 0 {
		t.Fatalf("expected no order to be created, got %d", len(fx.orders.orders))
	}
	if len(fx.publisher.published()) != 0 {
		t.Fatalf("expected no events to be published")
	}
}

func TestCheckoutServiceCommitValidation(t *testing.T) {
	t.Parallel()

	fx := newCheckoutFixture(t)
	owner := ResolveOwnerCommand{UserID: "user-1", Email: "buyer@example.com"}
	contact := domain.Contact{Email: "buyer@example.com"}

	cases := []struct {
		name string
		cmd  CommitOrderCommand
		want error
	}{
		{"empty cart", CommitOrderCommand{Owner: owner, Contact: contact}, ErrCheckoutEmptyCart},
		{"zero quantity", CommitOrderCommand{Owner: owner, Contact: contact, Lines: []QuoteLine{{ItemID: "item_mug", Quantity: 0}}}, ErrCheckoutInvalidInput},
		{"both refs", CommitOrderCommand{Owner: owner, Contact: contact, Lines: []QuoteLine{{ItemID: "item_mug", CombinationID: "combo_mug_red", Quantity: 1}}}, ErrCheckoutInvalidInput},
		{"unknown item", CommitOrderCommand{Owner: owner, Contact: contact, Lines: []QuoteLine{{ItemID: "item_missing", Quantity: 1}}}, ErrCheckoutInvalidInput},
		{"no identity", CommitOrderCommand{Contact: contact, Lines: []QuoteLine{{ItemID: "item_mug", Quantity: 1}}}, ErrCheckoutUnresolvedOwner},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := fx.svc.Commit(context.Background(), tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if len(fx.orders.orders) != 0 {
		t.Fatalf("expected no orders after rejected commits")
	}
}

func TestCheckoutServiceCommitGuestFlow(t *testing.T) {
	t.Parallel()

	fx := newCheckoutFixture(t)

	order, err := fx.svc.Commit(context.Background(), CommitOrderCommand{
		Owner: ResolveOwnerCommand{Email: "guest@example.com"},
		Lines: []QuoteLine{{ItemID: "item_mug", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if order.OwnerKind != domain.OwnerKindGuest {
		t.Fatalf("expected guest owner, got %s", order.OwnerKind)
	}
	// The owner email backfills a missing contact email.
	if order.Contact.Email != "guest@example.com" {
		t.Fatalf("expected contact email backfill, got %q", order.Contact.Email)
	}
}

func TestCheckoutServiceCommitTimeout(t *testing.T) {
	t.Parallel()

	fx := newCheckoutFixture(t)
	fx.orders.commitErr = context.DeadlineExceeded

	_, err := fx.svc.Commit(context.Background(), CommitOrderCommand{
		Owner:   ResolveOwnerCommand{UserID: "user-1", Email: "buyer@example.com"},
		Contact: domain.Contact{Email: "buyer@example.com"},
		Lines:   []QuoteLine{{ItemID: "item_mug", Quantity: 1}},
	})
	if !errors.Is(err, ErrCheckoutTimeout) {
		t.Fatalf("expected timeout translation, got %v", err)
	}
}

func TestCheckoutServiceCommitPublisherFailureDoesNotFailOrder(t *testing.T) {
	t.Parallel()

	fx := newCheckoutFixture(t)
	fx.publisher.err = errors.New("broker down")

	order, err := fx.svc.Commit(context.Background(), CommitOrderCommand{
		Owner:   ResolveOwnerCommand{UserID: "user-1", Email: "buyer@example.com"},
		Contact: domain.Contact{Email: "buyer@example.com"},
		Lines:   []QuoteLine{{ItemID: "item_mug", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if order.ID == "" {
		t.Fatalf("expected committed order")
	}
}
