package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/clearcart/api/internal/domain"
	"github.com/clearcart/api/internal/platform/httpx"
	"github.com/clearcart/api/internal/services"
)

// CatalogHandlers exposes public catalog reads: items, their attribute
// combinations, and current availability.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs catalog handlers.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes registers the /catalog endpoints.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/items/{itemID}", h.getItem)
	r.Get("/items/{itemID}/combinations", h.listCombinations)
	r.Get("/combinations/{combinationID}", h.getCombination)
}

type catalogItemPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unitPrice"`
	Currency  string `json:"currency,omitempty"`
	Available int64  `json:"available"`
	Active    bool   `json:"active"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type combinationPayload struct {
	ID         string            `json:"id"`
	ItemID     string            `json:"itemId"`
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	UnitPrice  int64             `json:"unitPrice"`
	Currency   string            `json:"currency,omitempty"`
	Available  int64             `json:"available"`
	Active     bool              `json:"active"`
}

func toCatalogItemPayload(item domain.CatalogItem) catalogItemPayload {
	payload := catalogItemPayload{
		ID:        item.ID,
		Name:      item.Name,
		UnitPrice: item.UnitPrice,
		Currency:  item.Currency,
		Available: item.Available,
		Active:    item.Active,
	}
	if !item.UpdatedAt.IsZero() {
		payload.UpdatedAt = item.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return payload
}

func toCombinationPayload(combination domain.AttributeCombination) combinationPayload {
	return combinationPayload{
		ID:         combination.ID,
		ItemID:     combination.ItemID,
		Name:       combination.Name,
		Attributes: combination.Attributes,
		UnitPrice:  combination.UnitPrice,
		Currency:   combination.Currency,
		Available:  combination.Available,
		Active:     combination.Active,
	}
}

func (h *CatalogHandlers) getItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	item, err := h.catalog.GetItem(ctx, chi.URLParam(r, "itemID"))
	if err != nil {
		writeCatalogServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toCatalogItemPayload(item))
}

func (h *CatalogHandlers) getCombination(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	combination, err := h.catalog.GetCombination(ctx, chi.URLParam(r, "combinationID"))
	if err != nil {
		writeCatalogServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toCombinationPayload(combination))
}

func (h *CatalogHandlers) listCombinations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	combinations, err := h.catalog.ListCombinations(ctx, chi.URLParam(r, "itemID"))
	if err != nil {
		writeCatalogServiceError(ctx, w, err)
		return
	}

	payload := struct {
		Combinations []combinationPayload `json:"combinations"`
	}{Combinations: make([]combinationPayload, 0, len(combinations))}
	for _, combination := range combinations {
		payload.Combinations = append(payload.Combinations, toCombinationPayload(combination))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func writeCatalogServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_not_found", "item or combination not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to process catalog request", http.StatusInternalServerError))
	}
}
