package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/clearcart/api/internal/domain"
	"github.com/clearcart/api/internal/platform/httpx"
	"github.com/clearcart/api/internal/services"
)

const maxWebhookRequestBody = 16 * 1024

// WebhookHandlers receives signed callbacks from the payment provider.
// Signature verification runs as group middleware before these handlers.
type WebhookHandlers struct {
	orders services.OrderService
}

// NewWebhookHandlers constructs webhook handlers.
func NewWebhookHandlers(orders services.OrderService) *WebhookHandlers {
	return &WebhookHandlers{orders: orders}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments", h.paymentEvent)
}

type paymentEventRequest struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
	EventID string `json:"eventId,omitempty"`
}

func (h *WebhookHandlers) paymentEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req paymentEventRequest
	if len(body) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	target, ok := domain.ParsePaymentStatus(req.Status)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid payment status", http.StatusBadRequest))
		return
	}

	order, err := h.orders.ApplyPaymentEvent(ctx, services.PaymentEventCommand{
		OrderID: strings.TrimSpace(req.OrderID),
		Target:  target,
	})
	if err != nil {
		// Replayed notifications report the move the order already made.
		// Answering 200 keeps well-behaved providers from retrying forever.
		var illegal *domain.IllegalTransitionError
		if errors.As(err, &illegal) && illegal.From == string(target) {
			writeJSONResponse(w, http.StatusOK, map[string]any{
				"status":  "already_applied",
				"orderId": strings.TrimSpace(req.OrderID),
			})
			return
		}
		writeOrderServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":        "applied",
		"orderId":       order.ID,
		"paymentStatus": string(order.PaymentStatus),
	})
}
