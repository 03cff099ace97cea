// Package notify предоставляет клиент для отправки уведомлений об утверждении бонусов во внешнюю систему.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

const approvalPath = "/hooks/bonus-approved"

// Client инкапсулирует HTTP-взаимодействие с приёмником уведомлений.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ApprovalNotice описывает тело уведомления об утверждении бонусов недели.
type ApprovalNotice struct {
	EventID        string          `json:"eventId"`
	ApprovalID     int64           `json:"approvalId"`
	BranchID       string          `json:"branchId"`
	BranchName     string          `json:"branchName"`
	Year           int             `json:"year"`
	Month          int             `json:"month"`
	WeekNumber     int             `json:"weekNumber"`
	TotalBonusPaid decimal.Decimal `json:"totalBonusPaid"`
	ApprovedAt     time.Time       `json:"approvedAt"`
}

// NewClient создаёт HTTP-клиент для отправки уведомлений по указанному адресу.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// SendApproval отправляет уведомление и возвращает код ответа и рекомендуемую паузу при 429.
// Идентификатор события передаётся в заголовке Idempotency-Key.
func (c *Client) SendApproval(ctx context.Context, n ApprovalNotice) (int, time.Duration, error) {
	if c == nil || c.baseURL == "" {
		return 0, 0, fmt.Errorf("notify client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(n)
	if err != nil {
		return 0, 0, fmt.Errorf("encode notice: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+approvalPath, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", n.EventID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return resp.StatusCode, retryAfter, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return resp.StatusCode, 0, nil
}
