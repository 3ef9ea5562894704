package util

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoggerFromContextFallsBackToDefault(t *testing.T) {
	if got := LoggerFromContext(context.Background()); got != slog.Default() {
		t.Fatalf("expected default logger")
	}
}

func TestWithRequestIDStoresLogger(t *testing.T) {
	handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if LoggerFromContext(r.Context()) == slog.Default() {
			t.Fatal("expected request scoped logger in context")
		}
	}))
	req := httptest.NewRequest(http.MethodPost, "/webhooks/greenapi", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

func TestNewIDIsHex(t *testing.T) {
	id := NewID()
	if len(id) != 32 {
		t.Fatalf("unexpected id length %d", len(id))
	}
	for _, c := range id {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Fatalf("non-hex rune %q in %q", c, id)
		}
	}
}
