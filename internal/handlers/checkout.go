package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/clearcart/api/internal/domain"
	"github.com/clearcart/api/internal/platform/auth"
	"github.com/clearcart/api/internal/platform/httpx"
	"github.com/clearcart/api/internal/services"
)

const maxCheckoutRequestBody = 8 * 1024

// CheckoutHandlers exposes the quote and commit endpoints. Both accept
// authenticated users and guests; guests must supply an email.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
	pricing  services.PricingService
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService, pricing services.PricingService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
		pricing:  pricing,
	}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.OptionalAuth())
	}
	group.Post("/quote", h.quote)
	group.Post("/", h.commit)
}

type checkoutLineRequest struct {
	ItemID        string `json:"itemId,omitempty"`
	CombinationID string `json:"combinationId,omitempty"`
	Quantity      int64  `json:"quantity"`
}

type checkoutAddressRequest struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

type checkoutContactRequest struct {
	Email   string                 `json:"email,omitempty"`
	Name    string                 `json:"name,omitempty"`
	Phone   string                 `json:"phone,omitempty"`
	Address checkoutAddressRequest `json:"address"`
}

type checkoutRequest struct {
	Lines        []checkoutLineRequest  `json:"lines"`
	DiscountCode string                 `json:"discountCode,omitempty"`
	GuestEmail   string                 `json:"guestEmail,omitempty"`
	GuestToken   string                 `json:"guestToken,omitempty"`
	Contact      checkoutContactRequest `json:"contact"`
}

type quoteLinePayload struct {
	ItemID        string            `json:"itemId,omitempty"`
	CombinationID string            `json:"combinationId,omitempty"`
	Name          string            `json:"name"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	Quantity      int64             `json:"quantity"`
	UnitPrice     int64             `json:"unitPrice"`
	LineTotal     int64             `json:"lineTotal"`
}

type totalsPayload struct {
	Subtotal       int64 `json:"subtotal"`
	DiscountAmount int64 `json:"discountAmount"`
	Total          int64 `json:"total"`
}

type quotePayload struct {
	Lines        []quoteLinePayload `json:"lines"`
	Currency     string             `json:"currency,omitempty"`
	DiscountCode string             `json:"discountCode,omitempty"`
	Totals       totalsPayload      `json:"totals"`
}

func (h *CheckoutHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
		return
	}

	req, ok := h.decodeCheckoutRequest(w, r)
	if !ok {
		return
	}

	quote, err := h.pricing.Quote(ctx, services.QuoteCommand{
		Lines:        toQuoteLines(req.Lines),
		DiscountCode: req.DiscountCode,
	})
	if err != nil {
		h.writeQuoteError(ctx, w, err)
		return
	}

	payload := quotePayload{
		Lines:        make([]quoteLinePayload, 0, len(quote.Lines)),
		Currency:     quote.Currency,
		DiscountCode: quote.DiscountCode,
		Totals: totalsPayload{
			Subtotal:       quote.Totals.Subtotal,
			DiscountAmount: quote.Totals.DiscountAmount,
			Total:          quote.Totals.Total,
		},
	}
	for _, line := range quote.Lines {
		payload.Lines = append(payload.Lines, toQuoteLinePayload(line))
	}

	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CheckoutHandlers) commit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	req, ok := h.decodeCheckoutRequest(w, r)
	if !ok {
		return
	}

	owner := services.ResolveOwnerCommand{
		Email:      strings.TrimSpace(req.GuestEmail),
		GuestToken: strings.TrimSpace(req.GuestToken),
	}
	if identity, authed := auth.IdentityFromContext(ctx); authed && strings.TrimSpace(identity.UID) != "" {
		owner.UserID = identity.UID
		if owner.Email == "" {
			owner.Email = identity.Email
		}
	}

	order, err := h.checkout.Commit(ctx, services.CommitOrderCommand{
		Owner: owner,
		Contact: domain.Contact{
			Email: strings.TrimSpace(req.Contact.Email),
			Name:  strings.TrimSpace(req.Contact.Name),
			Phone: strings.TrimSpace(req.Contact.Phone),
			Address: domain.Address{
				Line1:      strings.TrimSpace(req.Contact.Address.Line1),
				Line2:      strings.TrimSpace(req.Contact.Address.Line2),
				City:       strings.TrimSpace(req.Contact.Address.City),
				Region:     strings.TrimSpace(req.Contact.Address.Region),
				PostalCode: strings.TrimSpace(req.Contact.Address.PostalCode),
				Country:    strings.TrimSpace(req.Contact.Address.Country),
			},
		},
		Lines:        toQuoteLines(req.Lines),
		DiscountCode: req.DiscountCode,
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, toOrderPayload(order))
}

func (h *CheckoutHandlers) decodeCheckoutRequest(w http.ResponseWriter, r *http.Request) (checkoutRequest, bool) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return checkoutRequest{}, false
	}

	var req checkoutRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
			return checkoutRequest{}, false
		}
	}
	return req, true
}

func toQuoteLines(lines []checkoutLineRequest) []services.QuoteLine {
	out := make([]services.QuoteLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, services.QuoteLine{
			ItemID:        strings.TrimSpace(line.ItemID),
			CombinationID: strings.TrimSpace(line.CombinationID),
			Quantity:      line.Quantity,
		})
	}
	return out
}

func toQuoteLinePayload(line domain.OrderLine) quoteLinePayload {
	return quoteLinePayload{
		ItemID:        line.ItemID,
		CombinationID: line.CombinationID,
		Name:          line.Name,
		Attributes:    line.Attributes,
		Quantity:      line.Quantity,
		UnitPrice:     line.UnitPrice,
		LineTotal:     line.LineTotal,
	}
}

func (h *CheckoutHandlers) writeQuoteError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrQuoteUnknownReference):
		httpx.WriteError(ctx, w, httpx.NewError("unknown_reference", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrQuoteInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrQuoteDiscountInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("discount_invalid", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrQuoteUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "pricing temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to price the request", http.StatusInternalServerError))
	}
}

func (h *CheckoutHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "at least one line is required", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutUnresolvedOwner):
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "sign in or provide a guest email", http.StatusUnauthorized))
	case errors.Is(err, services.ErrCheckoutInsufficientAvailability):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_availability", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutDiscountInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("discount_invalid", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCheckoutTimeout):
		w.Header().Set("Retry-After", "5")
		httpx.WriteError(ctx, w, httpx.NewError("commit_timeout", "order commit timed out; retry with the same idempotency key", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to commit the order", http.StatusInternalServerError))
	}
}
