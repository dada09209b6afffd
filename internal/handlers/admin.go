package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/clearcart/api/internal/domain"
	"github.com/clearcart/api/internal/platform/auth"
	"github.com/clearcart/api/internal/platform/httpx"
	"github.com/clearcart/api/internal/services"
)

const maxAdminRequestBody = 4 * 1024

// AdminHandlers exposes staff-only operations: order lifecycle transitions,
// cross-owner order listings, and low stock reporting.
type AdminHandlers struct {
	authn   *auth.Authenticator
	orders  services.OrderService
	catalog services.CatalogService
}

// NewAdminHandlers constructs admin handlers.
func NewAdminHandlers(authn *auth.Authenticator, orders services.OrderService, catalog services.CatalogService) *AdminHandlers {
	return &AdminHandlers{
		authn:   authn,
		orders:  orders,
		catalog: catalog,
	}
}

// Routes registers the /admin endpoints. Every route requires a staff or
// admin role.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	group.Get("/orders", h.listOrders)
	group.Get("/orders/{orderID}", h.getOrder)
	group.Post("/orders/{orderID}/transition", h.transitionOrder)
	group.Get("/catalog/low-stock", h.listLowStock)
}

type transitionRequest struct {
	Target string `json:"target"`
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	statuses, ok := parseStatusFilters(r.URL.Query()["status"])
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status filter contains an unknown status", http.StatusBadRequest))
		return
	}
	pagination, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.List(ctx, services.ListOrdersQuery{
		OwnerRef:   strings.TrimSpace(r.URL.Query().Get("ownerRef")),
		Email:      strings.TrimSpace(r.URL.Query().Get("email")),
		Status:     statuses,
		Pagination: pagination,
	})
	if err != nil {
		writeOrderServiceError(ctx, w, err)
		return
	}

	payload := orderListPayload{
		Orders:        make([]orderPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, order := range page.Items {
		payload.Orders = append(payload.Orders, toOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	// Staff reads are not owner scoped.
	order, err := h.orders.Get(ctx, chi.URLParam(r, "orderID"), "")
	if err != nil {
		writeOrderServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderPayload(order))
}

func (h *AdminHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxAdminRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req transitionRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
			return
		}
	}

	target, ok := domain.ParseOrderStatus(req.Target)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "target must be a valid order status", http.StatusBadRequest))
		return
	}

	actorID := ""
	if identity, authed := auth.IdentityFromContext(ctx); authed {
		actorID = identity.UID
	}

	order, err := h.orders.Transition(ctx, services.TransitionOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Target:  target,
		ActorID: actorID,
	})
	if err != nil {
		writeOrderServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderPayload(order))
}

func (h *AdminHandlers) listLowStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	var threshold int64
	if raw := strings.TrimSpace(r.URL.Query().Get("threshold")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value < 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "threshold must be a non-negative integer", http.StatusBadRequest))
			return
		}
		threshold = value
	}

	pagination, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.catalog.ListLowStock(ctx, services.LowStockQuery{
		Threshold:  threshold,
		Pagination: pagination,
	})
	if err != nil {
		writeCatalogServiceError(ctx, w, err)
		return
	}

	payload := struct {
		Items         []catalogItemPayload `json:"items"`
		NextPageToken string               `json:"nextPageToken,omitempty"`
	}{
		Items:         make([]catalogItemPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, item := range page.Items {
		payload.Items = append(payload.Items, toCatalogItemPayload(item))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}
