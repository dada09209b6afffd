package idempotency

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func fixedClock() func() time.Time {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}

func TestMiddlewareReplaysStoredResponse(t *testing.T) {
	t.Parallel()

	var calls int32
	handler := Middleware(NewMemoryStore(), WithClock(fixedClock()))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"order_id":"ord_%d"}`, n)
	}))

	newRequest := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"lines":[]}`))
		req.Header.Set("Idempotency-Key", "key-1")
		req.Header.Set("Content-Type", "application/json")
		return req
	}

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, newRequest())
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, newRequest())
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", second.Code)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected handler to run once, ran %d times", got)
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replay body mismatch: %q vs %q", second.Body.String(), first.Body.String())
	}
	if second.Header().Get("X-Idempotent-Replay") != "true" {
		t.Fatal("expected replay marker header")
	}
}

func TestMiddlewarePassesThroughWithoutKey(t *testing.T) {
	t.Parallel()

	var calls int32
	handler := Middleware(NewMemoryStore(), WithClock(fixedClock()))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader("{}")))
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected handler to run twice, ran %d times", got)
	}
}

func TestMiddlewareRejectsKeyReuseWithDifferentBody(t *testing.T) {
	t.Parallel()

	handler := Middleware(NewMemoryStore(), WithClock(fixedClock()))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	first := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"qty":1}`))
	first.Header.Set("Idempotency-Key", "key-1")
	firstRec := httptest.NewRecorder()
	handler.ServeHTTP(firstRec, first)
	if firstRec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", firstRec.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"qty":2}`))
	second.Header.Set("Idempotency-Key", "key-1")
	secondRec := httptest.NewRecorder()
	handler.ServeHTTP(secondRec, second)
	if secondRec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", secondRec.Code)
	}
	if !strings.Contains(secondRec.Body.String(), "idempotency_key_conflict") {
		t.Fatalf("unexpected body: %s", secondRec.Body.String())
	}
}

func TestMiddlewareIgnoresReads(t *testing.T) {
	t.Parallel()

	var calls int32
	handler := Middleware(NewMemoryStore(), WithClock(fixedClock()))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
		req.Header.Set("Idempotency-Key", "key-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected both reads to reach the handler, got %d", got)
	}
}

func TestMemoryStoreExpiresRecords(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

	if _, err := store.Reserve(ctx, "key-1", "fp", now, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	later := now.Add(2 * time.Minute)
	reservation, err := store.Reserve(ctx, "key-1", "other-fp", later, time.Minute)
	if err != nil {
		t.Fatalf("expected expired record to be replaced, got %v", err)
	}
	if reservation.State != ReservationStateNew {
		t.Fatalf("expected fresh reservation, got %v", reservation.State)
	}

	removed, err := store.CleanupExpired(ctx, later.Add(2*time.Minute), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one removed record, got %d", removed)
	}
}
