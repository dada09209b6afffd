package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/clearcart/api/internal/domain"
)

func TestCatalogServiceGetItem(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	catalog := newFakeCatalog()
	seedMugCatalog(catalog, now)

	svc, err := NewCatalogService(CatalogServiceDeps{Catalog: catalog})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}

	item, err := svc.GetItem(context.Background(), "item_mug")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if item.Name != "Mug" || item.Available != 5 {
		t.Fatalf("unexpected item %+v", item)
	}

	if _, err := svc.GetItem(context.Background(), "item_missing"); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.GetItem(context.Background(), "  "); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCatalogServiceCombinations(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	catalog := newFakeCatalog()
	seedMugCatalog(catalog, now)
	catalog.combinations["combo_mug_blue"] = domain.AttributeCombination{
		ID: "combo_mug_blue", ItemID: "item_mug", Name: "Mug (blue)",
		Attributes: map[string]string{"color": "blue"},
		UnitPrice:  1100, Currency: "USD", Available: 4, Active: true,
	}

	svc, _ := NewCatalogService(CatalogServiceDeps{Catalog: catalog})

	combination, err := svc.GetCombination(context.Background(), "combo_mug_red")
	if err != nil {
		t.Fatalf("GetCombination: %v", err)
	}
	if combination.Attributes["color"] != "red" {
		t.Fatalf("unexpected combination %+v", combination)
	}

	combinations, err := svc.ListCombinations(context.Background(), "item_mug")
	if err != nil {
		t.Fatalf("ListCombinations: %v", err)
	}
	if len(combinations) != 2 {
		t.Fatalf("expected 2 combinations, got %d", len(combinations))
	}
}

func TestCatalogServiceListLowStock(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	catalog := newFakeCatalog()
	seedMugCatalog(catalog, now)
	catalog.items["item_low"] = domain.CatalogItem{
		ID: "item_low", Name: "Nearly gone", UnitPrice: 200, Currency: "USD",
		Available: 1, LowStockThreshold: 3, Active: true,
	}

	svc, _ := NewCatalogService(CatalogServiceDeps{Catalog: catalog})

	// Zero threshold uses each item's own configured threshold.
	page, err := svc.ListLowStock(context.Background(), LowStockQuery{})
	if err != nil {
		t.Fatalf("ListLowStock: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "item_low" {
		t.Fatalf("unexpected low stock page %+v", page.Items)
	}

	// An explicit threshold overrides the per-item ones.
	page, err = svc.ListLowStock(context.Background(), LowStockQuery{Threshold: 10})
	if err != nil {
		t.Fatalf("ListLowStock with threshold: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected both items under threshold 10, got %d", len(page.Items))
	}

	if _, err := svc.ListLowStock(context.Background(), LowStockQuery{Threshold: -1}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid input for negative threshold, got %v", err)
	}
}
