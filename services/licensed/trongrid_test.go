package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const trongridFixture = `{
  "data": [
    {
      "transaction_id": "abc123",
      "token_info": {"symbol": "USDT", "address": "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", "decimals": 6, "name": "Tether USD"},
      "block_timestamp": 1756728000000,
      "from": "TSenderAddr1111111111111111111111",
      "to": "TReceiveAddr111111111111111111111",
      "type": "Transfer",
      "value": "30000000"
    },
    {
      "transaction_id": "approval1",
      "token_info": {"symbol": "USDT", "address": "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", "decimals": 6, "name": "Tether USD"},
      "block_timestamp": 1756728100000,
      "from": "TSenderAddr1111111111111111111111",
      "to": "TReceiveAddr111111111111111111111",
      "type": "Approval",
      "value": "1"
    }
  ],
  "success": true,
  "meta": {"page_size": 2}
}`

func TestTransfersToParsesResponse(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(trongridFixture))
	}))
	defer server.Close()

	client := NewTronGridClient(server.URL)
	transfers, err := client.TransfersTo(context.Background(), "TReceiveAddr111111111111111111111")
	if err != nil {
		t.Fatalf("transfers: %v", err)
	}
	if !strings.Contains(gotPath, "/v1/accounts/TReceiveAddr111111111111111111111/transactions/trc20") {
		t.Fatalf("unexpected request path %q", gotPath)
	}
	if !strings.Contains(gotPath, "only_to=true") {
		t.Fatalf("missing only_to filter in %q", gotPath)
	}

	// The approval event is not a transfer and is dropped at the boundary.
	if len(transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(transfers))
	}
	tr := transfers[0]
	if tr.TxID != "abc123" || tr.TokenSymbol != "USDT" || tr.RawAmount != 30_000_000 {
		t.Fatalf("unexpected transfer %+v", tr)
	}
	if tr.TokenContract != "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t" {
		t.Fatalf("unexpected contract %q", tr.TokenContract)
	}
	want := time.UnixMilli(1756728000000).UTC()
	if !tr.BlockTime.Equal(want) {
		t.Fatalf("block time %v, want %v", tr.BlockTime, want)
	}
}

func TestTransfersToRejectsBadAmount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"transaction_id":"x","value":"not-a-number","token_info":{}}],"success":true}`))
	}))
	defer server.Close()

	client := NewTronGridClient(server.URL)
	if _, err := client.TransfersTo(context.Background(), "TReceiveAddr111111111111111111111"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestTransfersToSurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewTronGridClient(server.URL)
	if _, err := client.TransfersTo(context.Background(), "TReceiveAddr111111111111111111111"); err == nil {
		t.Fatal("expected status error")
	}
}
