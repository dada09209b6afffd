package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/clearcart/api/internal/domain"
	"github.com/clearcart/api/internal/services"
)

func newCheckoutRouter(checkout services.CheckoutService, pricing services.PricingService) chi.Router {
	r := chi.NewRouter()
	NewCheckoutHandlers(nil, checkout, pricing).Routes(r)
	return r
}

func TestCheckoutHandlersCommit(t *testing.T) {
	checkout := &stubCheckoutService{order: sampleOrder()}
	router := newCheckoutRouter(checkout, &stubPricingService{})

	body := `{
		"lines": [
			{"itemId": "item_mug", "quantity": 2},
			{"combinationId": "combo_mug_red", "quantity": 1}
		],
		"discountCode": "SAVE10",
		"guestEmail": "guest@example.com",
		"contact": {"email": "guest@example.com", "name": "Guest"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var payload orderPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload.Totals.Subtotal != 3000 || payload.Totals.DiscountAmount != 300 || payload.Totals.Total != 2700 {
		t.Fatalf("unexpected totals %+v", payload.Totals)
	}
	if payload.Status != "pending" || payload.PaymentStatus != "unpaid" {
		t.Fatalf("unexpected statuses %s/%s", payload.Status, payload.PaymentStatus)
	}

	if checkout.lastCmd.Owner.Email != "guest@example.com" {
		t.Fatalf("expected guest email forwarded, got %+v", checkout.lastCmd.Owner)
	}
	if len(checkout.lastCmd.Lines) != 2 || checkout.lastCmd.Lines[0].Quantity != 2 {
		t.Fatalf("unexpected lines %+v", checkout.lastCmd.Lines)
	}
}

func TestCheckoutHandlersCommitErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"insufficient", services.ErrCheckoutInsufficientAvailability, http.StatusConflict, "insufficient_availability"},
		{"discount", services.ErrCheckoutDiscountInvalid, http.StatusUnprocessableEntity, "discount_invalid"},
		{"empty cart", services.ErrCheckoutEmptyCart, http.StatusBadRequest, "empty_cart"},
		{"invalid", services.ErrCheckoutInvalidInput, http.StatusBadRequest, "invalid_request"},
		{"owner", services.ErrCheckoutUnresolvedOwner, http.StatusUnauthorized, "unauthenticated"},
		{"timeout", services.ErrCheckoutTimeout, http.StatusServiceUnavailable, "commit_timeout"},
		{"unavailable", services.ErrCheckoutUnavailable, http.StatusServiceUnavailable, "checkout_unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newCheckoutRouter(&stubCheckoutService{err: tc.err}, &stubPricingService{})

			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"lines":[{"itemId":"x","quantity":1}]}`))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rr.Code)
			}
			var payload map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if payload["error"] != tc.wantCode {
				t.Fatalf("expected code %q, got %v", tc.wantCode, payload["error"])
			}
			if tc.name == "timeout" && rr.Header().Get("Retry-After") == "" {
				t.Fatalf("expected Retry-After header for timeout")
			}
		})
	}
}

func TestCheckoutHandlersCommitRejectsBadBody(t *testing.T) {
	router := newCheckoutRouter(&stubCheckoutService{order: sampleOrder()}, &stubPricingService{})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}

	oversized := strings.Repeat("x", maxCheckoutRequestBody+1)
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"lines":[{"itemId":"`+oversized+`"}]}`))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413, got %d", rr.Code)
	}
}

func TestCheckoutHandlersQuote(t *testing.T) {
	pricing := &stubPricingService{quote: services.Quote{
		Lines: []domain.OrderLine{
			{ItemID: "item_mug", Name: "Mug", Quantity: 3, UnitPrice: 1000, LineTotal: 3000},
		},
		Currency:     "USD",
		DiscountCode: "SAVE10",
		Totals:       domain.OrderTotals{Subtotal: 3000, DiscountAmount: 300, Total: 2700},
	}}
	router := newCheckoutRouter(&stubCheckoutService{}, pricing)

	req := httptest.NewRequest(http.MethodPost, "/quote", strings.NewReader(`{"lines":[{"itemId":"item_mug","quantity":3}],"discountCode":"SAVE10"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var payload quotePayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload.Totals.Total != 2700 || payload.Currency != "USD" {
		t.Fatalf("unexpected quote %+v", payload)
	}
}

func TestCheckoutHandlersQuoteErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unknown reference", services.ErrQuoteUnknownReference, http.StatusBadRequest, "unknown_reference"},
		{"discount", services.ErrQuoteDiscountInvalid, http.StatusUnprocessableEntity, "discount_invalid"},
		{"invalid", services.ErrQuoteInvalidInput, http.StatusBadRequest, "invalid_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newCheckoutRouter(&stubCheckoutService{}, &stubPricingService{err: tc.err})

			req := httptest.NewRequest(http.MethodPost, "/quote", strings.NewReader(`{"lines":[{"itemId":"x","quantity":1}]}`))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rr.Code)
			}
			var payload map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if payload["error"] != tc.wantCode {
				t.Fatalf("expected code %q, got %v", tc.wantCode, payload["error"])
			}
		})
	}
}
