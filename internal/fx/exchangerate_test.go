package fx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *ExchangeRateClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewExchangeRateClient(Config{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		MaxRetries: 2,
		Backoff:    time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewExchangeRateClient() error = %v", err)
	}
	return c
}

func TestNewExchangeRateClient_RequiresKey(t *testing.T) {
	_, err := NewExchangeRateClient(Config{})
	if err == nil || !strings.Contains(err.Error(), "EXCHANGE_RATE_API_KEY") {
		t.Errorf("error = %v, want one naming EXCHANGE_RATE_API_KEY", err)
	}
}

func TestConvert_Success(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"result":"success","base_code":"EUR","target_code":"USD","conversion_rate":1.1}`))
	})

	got, err := c.Convert(context.Background(), "eur", "USD", decimal.RequireFromString("10"))
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if !got.Equal(decimal.RequireFromString("11")) {
		t.Errorf("Convert() = %s, want 11", got)
	}
	if gotPath != "/test-key/pair/EUR/USD" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestConvert_Identity(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	got, err := c.Convert(context.Background(), "USD", "usd", decimal.RequireFromString("5.5"))
	if err != nil || !got.Equal(decimal.RequireFromString("5.5")) {
		t.Errorf("Convert() = %s, %v, want 5.5", got, err)
	}
	if calls.Load() != 0 {
		t.Errorf("identity conversion made %d requests", calls.Load())
	}
}

func TestConvert_Rejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"result":"error","error-type":"unsupported-code"}`))
	})

	_, err := c.Convert(context.Background(), "XXX", "USD", decimal.NewFromInt(1))
	if !errors.Is(err, ErrConversionRejected) {
		t.Fatalf("error = %v, want ErrConversionRejected", err)
	}
	if !strings.Contains(err.Error(), "unsupported-code") {
		t.Errorf("error = %v, want error-type in message", err)
	}
}

func TestConvert_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"result":"success","conversion_rate":2}`))
	})

	got, err := c.Convert(context.Background(), "GBP", "USD", decimal.NewFromInt(3))
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if !got.Equal(decimal.NewFromInt(6)) {
		t.Errorf("Convert() = %s, want 6", got)
	}
	if calls.Load() != 3 {
		t.Errorf("requests = %d, want 3", calls.Load())
	}
}

func TestConvert_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	if _, err := c.Convert(context.Background(), "GBP", "USD", decimal.NewFromInt(1)); err == nil {
		t.Fatal("Convert() error = nil, want failure")
	}
	if calls.Load() != 3 {
		t.Errorf("requests = %d, want 1 attempt + 2 retries", calls.Load())
	}
}

func TestConvert_MalformedBodyNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`<html>`))
	})

	if _, err := c.Convert(context.Background(), "GBP", "USD", decimal.NewFromInt(1)); err == nil {
		t.Fatal("Convert() error = nil, want decode failure")
	}
	if calls.Load() != 1 {
		t.Errorf("requests = %d, want 1", calls.Load())
	}
}

func TestRate_CachedAndShared(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte(`{"result":"success","conversion_rate":0.5}`))
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Convert(context.Background(), "JPY", "USD", decimal.NewFromInt(100)); err != nil {
				t.Errorf("Convert() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if _, err := c.Convert(context.Background(), "JPY", "USD", decimal.NewFromInt(1)); err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("requests = %d, want 1 for a cached pair", calls.Load())
	}
}

func TestUnavailable(t *testing.T) {
	_, err := Unavailable{Reason: "EXCHANGE_RATE_API_KEY is not set"}.Convert(context.Background(), "EUR", "USD", decimal.NewFromInt(1))
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("error = %v, want ErrNotConfigured", err)
	}
}
