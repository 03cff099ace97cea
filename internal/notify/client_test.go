package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func testNotice() ApprovalNotice {
	return ApprovalNotice{
		EventID:        "6f1c2c1e-0c7a-4d8e-9bb5-3f0a5d7c9e11",
		ApprovalID:     7,
		BranchID:       "B1",
		BranchName:     "Main",
		Year:           2024,
		Month:          5,
		WeekNumber:     1,
		TotalBonusPaid: decimal.NewFromInt(290),
		ApprovedAt:     time.Date(2024, 5, 8, 9, 0, 0, 0, time.UTC),
	}
}

func TestSendApproval_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/hooks/bonus-approved" {
			t.Fatalf("path = %s, want /hooks/bonus-approved", r.URL.Path)
		}
		if key := r.Header.Get("Idempotency-Key"); key != testNotice().EventID {
			t.Fatalf("Idempotency-Key = %q", key)
		}

		var got ApprovalNotice
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.BranchID != "B1" || got.WeekNumber != 1 || !got.TotalBonusPaid.Equal(decimal.NewFromInt(290)) {
			t.Fatalf("unexpected notice: %+v", got)
		}

		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	code, retry, err := client.SendApproval(ctx, testNotice())
	if err != nil {
		t.Fatalf("SendApproval error: %v", err)
	}
	if code != http.StatusAccepted {
		t.Fatalf("status code = %d, want %d", code, http.StatusAccepted)
	}
	if retry != 0 {
		t.Fatalf("retryAfter = %v, want 0", retry)
	}
}

func TestSendApproval_TooManyRequests(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	code, retry, err := client.SendApproval(ctx, testNotice())
	if err != nil {
		t.Fatalf("SendApproval error: %v", err)
	}
	if code != http.StatusTooManyRequests {
		t.Fatalf("status code = %d, want %d", code, http.StatusTooManyRequests)
	}
	if retry < 5*time.Second {
		t.Fatalf("retryAfter = %v, want at least 5s", retry)
	}
}

func TestSendApproval_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	code, _, err := client.SendApproval(context.Background(), testNotice())
	if err == nil {
		t.Fatalf("expected error for 502")
	}
	if code != http.StatusBadGateway {
		t.Fatalf("status code = %d, want %d", code, http.StatusBadGateway)
	}
}

func TestSendApproval_NotConfigured(t *testing.T) {
	var client *Client

	if _, _, err := client.SendApproval(context.Background(), testNotice()); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
