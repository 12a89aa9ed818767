package market

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestClientSendsAPIKeyHeader(t *testing.T) {
	var gotKey atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey.Store(r.Header.Get("X-MBX-APIKEY"))
		w.Write([]byte(`[[1000,"100","101","99","100.5","12.5",1999]]`))
	}))
	defer srv.Close()

	client := NewClientWithRetry(srv.URL, 1, time.Millisecond).WithAPIKey("test-key-123")
	candles, err := client.GetKlines("BTCUSDT", "1h", 1)
	if err != nil {
		t.Fatalf("GetKlines failed: %v", err)
	}
	if len(candles) != 1 || candles[0].Close != 100.5 {
		t.Errorf("Unexpected candles: %+v", candles)
	}
	if gotKey.Load() != "test-key-123" {
		t.Errorf("Expected API key header on the request, got %q", gotKey.Load())
	}
}

func TestClientOmitsEmptyAPIKeyHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, present := r.Header["X-Mbx-Apikey"]; present {
			t.Error("No header should be sent without a configured key")
		}
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"42000.50"}`))
	}))
	defer srv.Close()

	client := NewClientWithRetry(srv.URL, 1, time.Millisecond)
	price, err := client.GetCurrentPrice("BTCUSDT")
	if err != nil {
		t.Fatalf("GetCurrentPrice failed: %v", err)
	}
	if price != 42000.50 {
		t.Errorf("Expected 42000.50, got %v", price)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"100"}`))
	}))
	defer srv.Close()

	client := NewClientWithRetry(srv.URL, 3, time.Millisecond)
	price, err := client.GetCurrentPrice("BTCUSDT")
	if err != nil {
		t.Fatalf("Expected retry to recover from a 500: %v", err)
	}
	if price != 100 {
		t.Errorf("Expected 100, got %v", price)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 requests, got %d", calls.Load())
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	client := NewClientWithRetry(srv.URL, 3, time.Millisecond)
	if _, err := client.GetCurrentPrice("NOPE"); err == nil {
		t.Fatal("Expected an error for a 400 response")
	}
	if calls.Load() != 1 {
		t.Errorf("A 400 must not be retried, got %d requests", calls.Load())
	}
}
