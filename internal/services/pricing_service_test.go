package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/clearcart/api/internal/domain"
)

func seedMugCatalog(catalog *fakeCatalogRepository, now time.Time) {
	catalog.items["item_mug"] = domain.CatalogItem{
		ID: "item_mug", Name: "Mug", UnitPrice: 1000, Currency: "USD",
		Available: 5, LowStockThreshold: 2, Active: true,
		CreatedAt: now, UpdatedAt: now,
	}
	catalog.combinations["combo_mug_red"] = domain.AttributeCombination{
		ID: "combo_mug_red", ItemID: "item_mug", Name: "Mug (red)",
		Attributes: map[string]string{"color": "red"},
		UnitPrice:  1000, Currency: "USD",
		Available: 1, Active: true,
		CreatedAt: now, UpdatedAt: now,
	}
}

func TestPricingServiceQuote(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	catalog := newFakeCatalog()
	seedMugCatalog(catalog, now)
	discounts := newFakeDiscounts()
	discounts.codes["SAVE10"] = domain.DiscountCode{
		Code: "SAVE10", Kind: domain.DiscountKindPercentage, Value: 10, Active: true,
	}

	svc, err := NewPricingService(PricingServiceDeps{
		Catalog:   catalog,
		Discounts: discounts,
		Clock:     func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewPricingService: %v", err)
	}

	quote, err := svc.Quote(context.Background(), QuoteCommand{
		Lines: []QuoteLine{
			{ItemID: "item_mug", Quantity: 2},
			{CombinationID: "combo_mug_red", Quantity: 1},
		},
		DiscountCode: "save10",
	})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if quote.Totals.Subtotal != 3000 || quote.Totals.DiscountAmount != 300 || quote.Totals.Total != 2700 {
		t.Fatalf("unexpected totals %+v", quote.Totals)
	}
	if quote.Currency != "USD" {
		t.Fatalf("unexpected currency %q", quote.Currency)
	}
	if quote.DiscountCode != "SAVE10" {
		t.Fatalf("expected normalised code, got %q", quote.DiscountCode)
	}
	if len(quote.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(quote.Lines))
	}
	if quote.Lines[0].LineTotal != 2000 || quote.Lines[1].LineTotal != 1000 {
		t.Fatalf("unexpected line totals %+v", quote.Lines)
	}
}

func TestPricingServiceQuoteMergesDuplicateLines(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	catalog := newFakeCatalog()
	seedMugCatalog(catalog, now)

	svc, _ := NewPricingService(PricingServiceDeps{
		Catalog:   catalog,
		Discounts: newFakeDiscounts(),
		Clock:     func() time.Time { return now },
	})

	quote, err := svc.Quote(context.Background(), QuoteCommand{
		Lines: []QuoteLine{
			{ItemID: "item_mug", Quantity: 1},
			{ItemID: "item_mug", Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if len(quote.Lines) != 1 {
		t.Fatalf("expected merged line, got %d", len(quote.Lines))
	}
	if quote.Lines[0].Quantity != 3 || quote.Totals.Total != 3000 {
		t.Fatalf("unexpected merged quote %+v", quote)
	}
}

func TestPricingServiceQuoteRejectsBadInput(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	catalog := newFakeCatalog()
	seedMugCatalog(catalog, now)

	svc, _ := NewPricingService(PricingServiceDeps{
		Catalog:   catalog,
		Discounts: newFakeDiscounts(),
		Clock:     func() time.Time { return now },
	})

	cases := []struct {
		name string
		cmd  QuoteCommand
		want error
	}{
		{"empty cart", QuoteCommand{}, ErrQuoteInvalidInput},
		{"both refs", QuoteCommand{Lines: []QuoteLine{{ItemID: "item_mug", CombinationID: "combo_mug_red", Quantity: 1}}}, ErrQuoteInvalidInput},
		{"zero quantity", QuoteCommand{Lines: []QuoteLine{{ItemID: "item_mug", Quantity: 0}}}, ErrQuoteInvalidInput},
		{"unknown item", QuoteCommand{Lines: []QuoteLine{{ItemID: "item_missing", Quantity: 1}}}, ErrQuoteUnknownReference},
		{"unknown code", QuoteCommand{Lines: []QuoteLine{{ItemID: "item_mug", Quantity: 1}}, DiscountCode: "NOPE"}, ErrQuoteDiscountInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Quote(context.Background(), tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestPricingServiceQuoteExpiredCode(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	catalog := newFakeCatalog()
	seedMugCatalog(catalog, now)
	discounts := newFakeDiscounts()
	discounts.codes["EXPIRED"] = domain.DiscountCode{
		Code: "EXPIRED", Kind: domain.DiscountKindPercentage, Value: 50,
		EndsAt: now.Add(-time.Hour), Active: true,
	}

	svc, _ := NewPricingService(PricingServiceDeps{
		Catalog:   catalog,
		Discounts: discounts,
		Clock:     func() time.Time { return now },
	})

	_, err := svc.Quote(context.Background(), QuoteCommand{
		Lines:        []QuoteLine{{ItemID: "item_mug", Quantity: 1}},
		DiscountCode: "EXPIRED",
	})
	if !errors.Is(err, ErrQuoteDiscountInvalid) {
		t.Fatalf("expected discount invalid, got %v", err)
	}
}

func TestPricingServiceQuoteInactiveItem(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	catalog := newFakeCatalog()
	catalog.items["item_retired"] = domain.CatalogItem{
		ID: "item_retired", Name: "Retired", UnitPrice: 500, Currency: "USD", Active: false,
	}

	svc, _ := NewPricingService(PricingServiceDeps{
		Catalog:   catalog,
		Discounts: newFakeDiscounts(),
		Clock:     func() time.Time { return now },
	})

	_, err := svc.Quote(context.Background(), QuoteCommand{
		Lines: []QuoteLine{{ItemID: "item_retired", Quantity: 1}},
	})
	if !errors.Is(err, ErrQuoteUnknownReference) {
		t.Fatalf("expected unknown reference for inactive item, got %v", err)
	}
}
