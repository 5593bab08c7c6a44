package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
)

func newTestServer(t *testing.T, cfg *Config) (*Server, *SQLiteStore) {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(store, cfg, logger), store
}

func relayConfig() *Config {
	cfg := defaultConfig()
	cfg.APIKey = "secret-key"
	return cfg
}

func postSignal(t *testing.T, server *Server, apiKey string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/signals", bytes.NewReader([]byte(body)))
	if apiKey != "" {
		req.Header.Set(headerAPIKey, apiKey)
	}
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func TestPostSignalRequiresAPIKey(t *testing.T) {
	server, _ := newTestServer(t, relayConfig())

	rec := postSignal(t, server, "", `{"symbol":"EURUSD","side":"buy","volume":0.1}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	rec = postSignal(t, server, "wrong-key", `{"symbol":"EURUSD","side":"buy","volume":0.1}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestPostSignalValidation(t *testing.T) {
	server, _ := newTestServer(t, relayConfig())

	cases := []string{
		`not json`,
		`{"side":"buy","volume":0.1}`,
		`{"symbol":"EURUSD","side":"hold","volume":0.1}`,
		`{"symbol":"EURUSD","side":"buy","volume":0}`,
	}
	for _, body := range cases {
		rec := postSignal(t, server, "secret-key", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestSignalRoundTrip(t *testing.T) {
	server, _ := newTestServer(t, relayConfig())

	for _, body := range []string{
		`{"symbol":"EURUSD","side":"buy","volume":0.1,"sl":0,"stop_loss":1.05,"take_profit":1.10}`,
		`{"symbol":"gbpusd","side":"SELL","volume":0.2}`,
	} {
		rec := postSignal(t, server, "secret-key", body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("post status = %d body=%s", rec.Code, rec.Body.String())
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/signals?after=0", nil)
	req.Header.Set(headerAPIKey, "secret-key")
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	var signals []Signal
	if err := json.Unmarshal(rec.Body.Bytes(), &signals); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(signals) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(signals))
	}
	if signals[0].ID >= signals[1].ID {
		t.Fatal("signals not in ascending id order")
	}
	if signals[0].Symbol != "EURUSD" || signals[0].Side != "buy" {
		t.Fatalf("unexpected first signal %+v", signals[0])
	}
	if signals[1].Symbol != "GBPUSD" || signals[1].Side != "sell" {
		t.Fatalf("normalisation missing: %+v", signals[1])
	}
	if signals[0].StopLoss == nil || *signals[0].StopLoss != 1.05 {
		t.Fatalf("stop loss lost: %+v", signals[0])
	}

	// Polling from the last seen id returns only newer signals.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/signals?after="+strconv.FormatInt(signals[0].ID, 10), nil)
	req.Header.Set(headerAPIKey, "secret-key")
	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	var tail []Signal
	if err := json.Unmarshal(rec.Body.Bytes(), &tail); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(tail) != 1 || tail[0].ID != signals[1].ID {
		t.Fatalf("unexpected tail %+v", tail)
	}
}

func TestGetSignalsRejectsBadQuery(t *testing.T) {
	server, _ := newTestServer(t, relayConfig())

	for _, target := range []string{
		"/api/v1/signals?after=-1",
		"/api/v1/signals?after=abc",
		"/api/v1/signals?limit=0",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set(headerAPIKey, "secret-key")
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestRateLimitReturns429(t *testing.T) {
	cfg := relayConfig()
	cfg.RatePerMinute = 1
	cfg.RateBurst = 1
	server, _ := newTestServer(t, cfg)

	first := postSignal(t, server, "secret-key", `{"symbol":"EURUSD","side":"buy","volume":0.1}`)
	if first.Code != http.StatusCreated {
		t.Fatalf("first status = %d", first.Code)
	}
	second := postSignal(t, server, "secret-key", `{"symbol":"EURUSD","side":"buy","volume":0.1}`)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", second.Code)
	}
}

func TestLimiterKeysOnHostNotPort(t *testing.T) {
	server, _ := newTestServer(t, relayConfig())

	first := server.limiterFor("[2001:db8::1]:1234")
	if server.limiterFor("[2001:db8::1]:9999") != first {
		t.Fatal("same IPv6 client with a new port got a new limiter")
	}
	if server.limiterFor("[2001:db8::2]:1234") == first {
		t.Fatal("distinct IPv6 clients share a limiter")
	}
	if server.limiterFor("192.0.2.1:1234") != server.limiterFor("192.0.2.1:5678") {
		t.Fatal("same IPv4 client with a new port got a new limiter")
	}
}

func TestHealthEndpointNeedsNoAuth(t *testing.T) {
	server, _ := newTestServer(t, relayConfig())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
}
