package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestInternalAuthMiddlewareRejectsMissingKey(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := InternalAuthMiddleware("secret-key")(next)

	req := httptest.NewRequest("POST", "/internal/earnings", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without key, got %d", rec.Code)
	}
}

func TestInternalAuthMiddlewareRejectsWrongKey(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := InternalAuthMiddleware("secret-key")(next)

	req := httptest.NewRequest("POST", "/internal/earnings", nil)
	req.Header.Set("X-Internal-API-Key", "wrong-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with wrong key, got %d", rec.Code)
	}
}

func TestInternalAuthMiddlewareAcceptsCorrectKey(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	handler := InternalAuthMiddleware("secret-key")(next)

	req := httptest.NewRequest("POST", "/internal/earnings", nil)
	req.Header.Set("X-Internal-API-Key", "secret-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !called {
		t.Fatalf("expected handler to run with correct key, got %d called=%v", rec.Code, called)
	}
}

func TestInternalAuthMiddlewareRejectsWhenKeyUnconfigured(t *testing.T) {
	// An empty configured key must fail closed, not open.
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := InternalAuthMiddleware("")(next)

	req := httptest.NewRequest("POST", "/internal/earnings", nil)
	req.Header.Set("X-Internal-API-Key", "")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 when no key configured, got %d", rec.Code)
	}
}

func TestGetVendorIDRoundTrip(t *testing.T) {
	want := uuid.New()
	ctx := context.WithValue(context.Background(), vendorIDKey, want)

	got, ok := GetVendorID(ctx)
	if !ok || got != want {
		t.Fatalf("expected %s from context, got %s ok=%v", want, got, ok)
	}

	if _, ok := GetVendorID(context.Background()); ok {
		t.Fatal("expected no vendor ID on empty context")
	}
}

func TestVendorAuthMiddlewareRejectsMissingHeader(t *testing.T) {
	handler := VendorAuthMiddleware("http://localhost/jwks")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without a token")
	}))

	req := httptest.NewRequest("GET", "/api/v1/balance", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without Authorization header, got %d", rec.Code)
	}
}

func TestVendorAuthMiddlewareRejectsMalformedHeader(t *testing.T) {
	handler := VendorAuthMiddleware("http://localhost/jwks")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run with a malformed header")
	}))

	req := httptest.NewRequest("GET", "/api/v1/balance", nil)
	req.Header.Set("Authorization", "not-a-bearer-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with malformed header, got %d", rec.Code)
	}
}
