// Package client provides an HTTP client for the ledger API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pointsledger/pointsledger/internal/domain"
)

// legacyEmptyPayer is the payer name a server in legacy mode answers an
// empty ledger with, holding legacyEmptyAmount.
const (
	legacyEmptyPayer  = "NO POINTS"
	legacyEmptyAmount = -1
)

// Client talks to a running ledger server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for baseURL with the given timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Detail)
}

// AddPoints posts a batch of transactions.
func (c *Client) AddPoints(ctx context.Context, records []domain.PointRecord) error {
	return c.do(ctx, http.MethodPost, "/points", records, nil)
}

// Balances fetches points per payer. ok is false when the ledger is empty,
// whether the server answers 204 or the legacy {"NO POINTS": -1} body.
func (c *Client) Balances(ctx context.Context) (balances domain.Balances, ok bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/balance", nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, false, nil
	}
	if err := decode(resp, &balances); err != nil {
		return nil, false, err
	}
	if isLegacyEmpty(balances) {
		return nil, false, nil
	}
	return balances, true, nil
}

// isLegacyEmpty reports whether b is the legacy empty-ledger sentinel.
// Stored balances are never negative, so a real payer cannot produce it.
func isLegacyEmpty(b domain.Balances) bool {
	v, found := b[legacyEmptyPayer]
	return len(b) == 1 && found && v == legacyEmptyAmount
}

// Spend spends points and returns the per-payer debits.
func (c *Client) Spend(ctx context.Context, points int64) ([]domain.SpendResult, error) {
	var results []domain.SpendResult
	body := map[string]int64{"points": points}
	if err := c.do(ctx, http.MethodPut, "/spend", body, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Records lists the raw stored records.
func (c *Client) Records(ctx context.Context) ([]domain.PointRecord, error) {
	var records []domain.PointRecord
	if err := c.do(ctx, http.MethodGet, "/balance_times", nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decode(resp, out)
}

// decode reads a JSON response into out, or turns an error body into *APIError.
func decode(resp *http.Response, out interface{}) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(data, &e) != nil || e.Detail == "" {
			e.Detail = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Detail: e.Detail}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
