/**
 * @description
 * This package provides the client for the account-service, the system of
 * record for account ownership and balances. The transfer saga uses it to
 * validate both accounts and the sender's funds before any ledger write, and
 * to apply synchronous balance adjustments where asynchronous propagation is
 * not appropriate.
 *
 * Transient failures are retried with bounded backoff; the caller's context
 * cancels the wait. A gateway that stays unreachable surfaces
 * ErrServiceUnavailable so the saga can fail closed at validation time.
 */
package accountclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrServiceUnavailable = errors.New("account service unavailable")
)

const (
	maxAttempts  = 3
	retryBackoff = 250 * time.Millisecond
)

// Account is the gateway's view of an account.
type Account struct {
	ID      string          `json:"id"`
	UserID  string          `json:"userId"`
	Balance decimal.Decimal `json:"balance"`
}

// Client is a client for the account service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new account service client.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// GetAccount fetches ownership and balance for one account.
func (c *Client) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("account service base url is empty: %w", ErrServiceUnavailable)
	}

	url := fmt.Sprintf("%s/accounts/%s", c.baseURL, accountID)

	var account Account
	err := c.doWithRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("account service request failed: %w", ErrServiceUnavailable)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return ErrAccountNotFound
		case resp.StatusCode >= 500:
			return fmt.Errorf("account service returned status %d: %w", resp.StatusCode, ErrServiceUnavailable)
		case resp.StatusCode >= 400:
			return fmt.Errorf("account service returned status %d", resp.StatusCode)
		}

		return json.NewDecoder(resp.Body).Decode(&account)
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// adjustBalanceRequest is the payload for a synchronous balance adjustment.
type adjustBalanceRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

// AdjustBalance applies a signed delta to an account balance. The idempotency
// key makes repeats safe; the account service must treat a replayed key as a
// no-op.
func (c *Client) AdjustBalance(ctx context.Context, accountID string, delta decimal.Decimal, idempotencyKey string) error {
	if c.baseURL == "" {
		return fmt.Errorf("account service base url is empty: %w", ErrServiceUnavailable)
	}

	url := fmt.Sprintf("%s/accounts/%s/adjustments", c.baseURL, accountID)

	body, err := json.Marshal(adjustBalanceRequest{Amount: delta, IdempotencyKey: idempotencyKey})
	if err != nil {
		return fmt.Errorf("failed to marshal adjustment request: %w", err)
	}

	return c.doWithRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("account service request failed: %w", ErrServiceUnavailable)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return ErrAccountNotFound
		case resp.StatusCode >= 500:
			return fmt.Errorf("account service returned status %d: %w", resp.StatusCode, ErrServiceUnavailable)
		case resp.StatusCode >= 400:
			return fmt.Errorf("account service returned status %d", resp.StatusCode)
		}
		return nil
	})
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("X-Internal-API-Key", strings.TrimSpace(c.apiKey))
	}
}

// doWithRetry runs fn up to maxAttempts times, backing off between attempts.
// Only unavailability errors are retried; not-found and client errors return
// immediately.
func (c *Client) doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !errors.Is(lastErr, ErrServiceUnavailable) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff * time.Duration(attempt)):
		}
	}
	return lastErr
}
