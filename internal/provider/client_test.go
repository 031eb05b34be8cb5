package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestPurchase_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/v1/user/buy/activation/indonesia/any/facebook" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Fatalf("authorization = %q, want bearer token", got)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 123456, "phone": "+6281234567890", "country": "indonesia"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "test-token", zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, err := client.Purchase(ctx, "indonesia", "any", "facebook")
	if err != nil {
		t.Fatalf("Purchase error: %v", err)
	}
	if got.OrderID != "123456" {
		t.Fatalf("order id = %q, want 123456", got.OrderID)
	}
	if got.PhoneNumber != "+6281234567890" || got.Country != "indonesia" {
		t.Fatalf("unexpected purchase: %+v", got)
	}
}

func TestPurchase_NoStock(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message": "no free phones"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "test-token", zap.NewNop())

	_, err := client.Purchase(context.Background(), "indonesia", "any", "facebook")
	if !errors.Is(err, ErrNoStock) {
		t.Fatalf("Purchase error = %v, want ErrNoStock", err)
	}
}

func TestPurchase_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "test-token", zap.NewNop())

	_, err := client.Purchase(context.Background(), "indonesia", "any", "facebook")
	if err == nil {
		t.Fatalf("expected error for 500 response")
	}
	if errors.Is(err, ErrNoStock) {
		t.Fatalf("500 must not map to ErrNoStock")
	}
}

func TestPurchase_MalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json at all`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "test-token", zap.NewNop())

	_, err := client.Purchase(context.Background(), "indonesia", "any", "facebook")
	if err == nil {
		t.Fatalf("expected error for malformed body")
	}
}

func TestFetchMessages(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/user/finish/123456" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sms": [{"sender": "Facebook", "text": "Your code is 94817"}]}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "test-token", zap.NewNop())

	messages, err := client.FetchMessages(context.Background(), "123456")
	if err != nil {
		t.Fatalf("FetchMessages error: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(messages))
	}
	if messages[0].Sender != "Facebook" || messages[0].Text != "Your code is 94817" {
		t.Fatalf("unexpected message: %+v", messages[0])
	}
}

func TestFetchMessages_Empty(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sms": []}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "test-token", zap.NewNop())

	messages, err := client.FetchMessages(context.Background(), "123456")
	if err != nil {
		t.Fatalf("FetchMessages error: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("got %d messages, want 0", len(messages))
	}
}

func TestCheckStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/user/check/123456" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "CANCELED"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "test-token", zap.NewNop())

	status, err := client.CheckStatus(context.Background(), "123456")
	if err != nil {
		t.Fatalf("CheckStatus error: %v", err)
	}
	if status != StatusCanceled {
		t.Fatalf("status = %q, want %q", status, StatusCanceled)
	}
}

func TestCancel(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/user/cancel/123456" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "CANCELED"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "test-token", zap.NewNop())

	if err := client.Cancel(context.Background(), "123456"); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
}

func TestCancel_Failure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "test-token", zap.NewNop())

	if err := client.Cancel(context.Background(), "123456"); err == nil {
		t.Fatalf("expected error for failed cancel")
	}
}
