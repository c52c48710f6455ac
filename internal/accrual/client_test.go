package accrual

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestTrigger_OK(t *testing.T) {
	positionID := uuid.New()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/roi/calculate" {
			t.Fatalf("path = %s, want /api/roi/calculate", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer s3cret" {
			t.Fatalf("authorization = %q", got)
		}

		resp := Summary{
			Processed: 1,
			Results: []Result{{
				PositionID:    positionID,
				ROIAmount:     decimal.RequireFromString("5"),
				ROIPercentage: decimal.RequireFromString("1"),
				BalanceAfter:  decimal.RequireFromString("505"),
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "s3cret", time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, code, retry, err := client.Trigger(ctx)
	if err != nil {
		t.Fatalf("Trigger error: %v", err)
	}
	if code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", code, http.StatusOK)
	}
	if retry != 0 {
		t.Fatalf("retryAfter = %v, want 0", retry)
	}
	if res == nil || res.Processed != 1 || len(res.Results) != 1 {
		t.Fatalf("unexpected response: %+v", res)
	}
	if res.Results[0].PositionID != positionID || !res.Results[0].BalanceAfter.Equal(decimal.RequireFromString("505")) {
		t.Fatalf("unexpected result: %+v", res.Results[0])
	}
}

func TestTrigger_TooManyRequests(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "s3cret", time.Second)

	res, code, retry, err := client.Trigger(context.Background())
	if err != nil {
		t.Fatalf("Trigger error: %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil response for 429, got %+v", res)
	}
	if code != http.StatusTooManyRequests {
		t.Fatalf("status code = %d, want %d", code, http.StatusTooManyRequests)
	}
	if retry < 5*time.Second {
		t.Fatalf("retryAfter = %v, want at least 5s", retry)
	}
}

func TestTrigger_Unauthorized(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "wrong", time.Second)

	_, code, _, err := client.Trigger(context.Background())
	if err == nil {
		t.Fatal("expected error for 401")
	}
	if code != http.StatusUnauthorized {
		t.Fatalf("status code = %d, want %d", code, http.StatusUnauthorized)
	}
}

func TestTrigger_NotConfigured(t *testing.T) {
	var client *Client
	if _, _, _, err := client.Trigger(context.Background()); err == nil {
		t.Fatal("expected error for nil client")
	}
}
