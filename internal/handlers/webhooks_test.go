package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/clearcart/api/internal/domain"
)

func newWebhookRouter(orders *stubOrderService) chi.Router {
	r := chi.NewRouter()
	NewWebhookHandlers(orders).Routes(r)
	return r
}

func TestWebhookHandlersPaymentEvent(t *testing.T) {
	order := sampleOrder()
	order.PaymentStatus = domain.PaymentStatusPaid
	orders := &stubOrderService{order: order}
	router := newWebhookRouter(orders)

	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(`{"orderId":"ord_sample","status":"paid"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if orders.lastEvent.OrderID != "ord_sample" || orders.lastEvent.Target != domain.PaymentStatusPaid {
		t.Fatalf("unexpected command %+v", orders.lastEvent)
	}

	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["status"] != "applied" || payload["paymentStatus"] != "paid" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestWebhookHandlersPaymentEventReplay(t *testing.T) {
	orders := &stubOrderService{err: &domain.IllegalTransitionError{
		OrderID: "ord_sample",
		Field:   "payment",
		From:    "paid",
		To:      "paid",
	}}
	router := newWebhookRouter(orders)

	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(`{"orderId":"ord_sample","status":"paid"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 for replay, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["status"] != "already_applied" {
		t.Fatalf("expected already_applied, got %v", payload["status"])
	}
}

func TestWebhookHandlersPaymentEventIllegalMove(t *testing.T) {
	orders := &stubOrderService{err: &domain.IllegalTransitionError{
		OrderID: "ord_sample",
		Field:   "payment",
		From:    "unpaid",
		To:      "refunded",
	}}
	router := newWebhookRouter(orders)

	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(`{"orderId":"ord_sample","status":"refunded"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestWebhookHandlersPaymentEventValidation(t *testing.T) {
	router := newWebhookRouter(&stubOrderService{})

	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(`{"orderId":"ord_sample","status":"teleported"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for unknown status, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/payments", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for empty body, got %d", rr.Code)
	}
}
