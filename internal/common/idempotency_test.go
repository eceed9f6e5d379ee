package common

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestIdem(t *testing.T) (Idem, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return Idem{R: client, TTL: time.Minute}, mr
}

func checkoutRequest(key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req
}

func TestIdemReplaysRecordedResponse(t *testing.T) {
	idem, _ := newTestIdem(t)
	calls := 0
	wrapped := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		JSONData(w, http.StatusCreated, map[string]string{"orderId": "ord-1"})
	}))

	first := httptest.NewRecorder()
	wrapped.ServeHTTP(first, checkoutRequest("retry-me"))
	if first.Code != http.StatusCreated {
		t.Fatalf("first request status = %d", first.Code)
	}

	second := httptest.NewRecorder()
	wrapped.ServeHTTP(second, checkoutRequest("retry-me"))
	if calls != 1 {
		t.Fatalf("handler ran %d times, want 1", calls)
	}
	if second.Code != http.StatusCreated {
		t.Fatalf("replay status = %d, want %d", second.Code, http.StatusCreated)
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replay body %q differs from original %q", second.Body.String(), first.Body.String())
	}
	if second.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatal("expected Idempotency-Replayed header on replay")
	}
	if second.Header().Get("Content-Type") != first.Header().Get("Content-Type") {
		t.Fatalf("replay content type %q differs from original %q",
			second.Header().Get("Content-Type"), first.Header().Get("Content-Type"))
	}
}

func TestIdemConflictWhileInFlight(t *testing.T) {
	idem, mr := newTestIdem(t)
	// simulate a first request that claimed the key but has not finished
	if err := mr.Set(idemKey(http.MethodPost, "/api/v1/checkout", "held"), pendingMarker); err != nil {
		t.Fatalf("seed claim: %v", err)
	}

	calls := 0
	wrapped := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, checkoutRequest("held"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if calls != 0 {
		t.Fatal("handler must not run while the original request is in flight")
	}
}

func TestIdemReleasesKeyOnServerError(t *testing.T) {
	idem, _ := newTestIdem(t)
	calls := 0
	wrapped := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			JSONError(w, http.StatusInternalServerError, "INTERNAL", "boom", nil)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	first := httptest.NewRecorder()
	wrapped.ServeHTTP(first, checkoutRequest("flaky"))
	if first.Code != http.StatusInternalServerError {
		t.Fatalf("first request status = %d", first.Code)
	}

	second := httptest.NewRecorder()
	wrapped.ServeHTTP(second, checkoutRequest("flaky"))
	if calls != 2 {
		t.Fatalf("handler ran %d times, want 2 after a server error", calls)
	}
	if second.Code != http.StatusCreated {
		t.Fatalf("retry status = %d, want 201", second.Code)
	}
}

func TestIdemPassesThroughWithoutHeader(t *testing.T) {
	idem, _ := newTestIdem(t)
	calls := 0
	wrapped := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, checkoutRequest(""))
		if rec.Code != http.StatusCreated {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("handler ran %d times, want 2 without the header", calls)
	}
}
