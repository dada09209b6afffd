package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/clearcart/api/internal/domain"
	"github.com/clearcart/api/internal/platform/auth"
	"github.com/clearcart/api/internal/platform/httpx"
	"github.com/clearcart/api/internal/services"
)

// OrderHandlers exposes order endpoints for buyers. Authenticated users see
// their own orders; guests look up single orders with their guest token.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs order handlers.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.OptionalAuth())
	}
	group.Get("/", h.listOrders)
	group.Get("/{orderID}", h.getOrder)
	group.Post("/{orderID}/cancel", h.cancelOrder)
}

type orderPayload struct {
	ID            string             `json:"id"`
	Number        string             `json:"number"`
	Status        string             `json:"status"`
	PaymentStatus string             `json:"paymentStatus"`
	Currency      string             `json:"currency,omitempty"`
	DiscountCode  string             `json:"discountCode,omitempty"`
	Lines         []quoteLinePayload `json:"lines"`
	Totals        totalsPayload      `json:"totals"`
	PlacedAt      string             `json:"placedAt"`
	ProcessingAt  string             `json:"processingAt,omitempty"`
	ShippedAt     string             `json:"shippedAt,omitempty"`
	DeliveredAt   string             `json:"deliveredAt,omitempty"`
	CancelledAt   string             `json:"cancelledAt,omitempty"`
	PaidAt        string             `json:"paidAt,omitempty"`
	RefundedAt    string             `json:"refundedAt,omitempty"`
}

type orderListPayload struct {
	Orders        []orderPayload `json:"orders"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

func toOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:            order.ID,
		Number:        order.Number,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		Currency:      order.Currency,
		DiscountCode:  order.DiscountCode,
		Lines:         make([]quoteLinePayload, 0, len(order.Lines)),
		Totals: totalsPayload{
			Subtotal:       order.Totals.Subtotal,
			DiscountAmount: order.Totals.DiscountAmount,
			Total:          order.Totals.Total,
		},
		PlacedAt:     order.PlacedAt.UTC().Format(time.RFC3339Nano),
		ProcessingAt: formatOptionalTime(order.ProcessingAt),
		ShippedAt:    formatOptionalTime(order.ShippedAt),
		DeliveredAt:  formatOptionalTime(order.DeliveredAt),
		CancelledAt:  formatOptionalTime(order.CancelledAt),
		PaidAt:       formatOptionalTime(order.PaidAt),
		RefundedAt:   formatOptionalTime(order.RefundedAt),
	}
	for _, line := range order.Lines {
		payload.Lines = append(payload.Lines, toQuoteLinePayload(line))
	}
	return payload
}

func formatOptionalTime(ts *time.Time) string {
	if ts == nil || ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

// requestOwnerRef determines the owner scope for the request: the signed-in
// user, or the guest token supplied as a query parameter.
func requestOwnerRef(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && strings.TrimSpace(identity.UID) != "" {
		return domain.OwnerRef{Kind: domain.OwnerKindAccount, ID: identity.UID}.Ref()
	}
	if token := strings.TrimSpace(r.URL.Query().Get("guestToken")); token != "" {
		return domain.OwnerRef{Kind: domain.OwnerKindGuest, ID: token}.Ref()
	}
	return ""
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	ownerRef := requestOwnerRef(r)
	if ownerRef == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
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
		OwnerRef:   ownerRef,
		Status:     statuses,
		Pagination: pagination,
	})
	if err != nil {
		h.writeOrderError(ctx, w, err)
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

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	ownerRef := requestOwnerRef(r)
	if ownerRef == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	order, err := h.orders.Get(ctx, chi.URLParam(r, "orderID"), ownerRef)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderPayload(order))
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	ownerRef := requestOwnerRef(r)
	if ownerRef == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := chi.URLParam(r, "orderID")

	// Ownership check first: cancelling is only offered on your own order.
	if _, err := h.orders.Get(ctx, orderID, ownerRef); err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	order, err := h.orders.Cancel(ctx, orderID, ownerRef)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderPayload(order))
}

func parseStatusFilters(raw []string) ([]domain.OrderStatus, bool) {
	var statuses []domain.OrderStatus
	for _, value := range raw {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			status, ok := domain.ParseOrderStatus(part)
			if !ok {
				return nil, false
			}
			statuses = append(statuses, status)
		}
	}
	return statuses, true
}

func (h *OrderHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	writeOrderServiceError(ctx, w, err)
}

func writeOrderServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var illegal *domain.IllegalTransitionError
	switch {
	case errors.As(err, &illegal):
		httpx.WriteError(ctx, w, httpx.NewError("illegal_transition", illegal.Error(), http.StatusConflict).WithDetails(map[string]any{
			"field": illegal.Field,
			"from":  illegal.From,
			"to":    illegal.To,
		}))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
