package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeSweeper struct {
	removed int
	err     error
	calls   int
}

func (s *fakeSweeper) Sweep(context.Context) (int, error) {
	s.calls++
	return s.removed, s.err
}

func TestHealthAndReadiness(t *testing.T) {
	srv, err := New(Config{Queue: fakePinger{}})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
	}

	down, _ := New(Config{Queue: fakePinger{err: errors.New("redis down")}})
	rec := httptest.NewRecorder()
	down.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with redis down = %d", rec.Code)
	}
}

func TestSweepEndpoint(t *testing.T) {
	sweeper := &fakeSweeper{removed: 4}
	srv, err := New(Config{Queue: fakePinger{}, Sweeper: sweeper, InternalToken: "secret"})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/worker/sweep", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated sweep = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/worker/sweep", nil)
	req.Header.Set("X-Internal-Token", "secret")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET sweep = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/worker/sweep", nil)
	req.Header.Set("X-Internal-Token", "secret")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("sweep = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp sweepResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Removed != 4 || sweeper.calls != 1 {
		t.Fatalf("unexpected sweep result %+v calls=%d", resp, sweeper.calls)
	}
}

func TestSweepRouteAbsentWithoutToken(t *testing.T) {
	srv, _ := New(Config{Queue: fakePinger{}, Sweeper: &fakeSweeper{}})
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/worker/sweep", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("sweep without token configured = %d", rec.Code)
	}
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without queue pinger")
	}
}
