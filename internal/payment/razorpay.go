// Package payment talks to the Razorpay orders API and verifies checkout callbacks.
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/flicky/storybook-api/internal/config"
)

var (
	ErrInvalidAmount      = errors.New("amount must be a positive number")
	ErrNotConfigured      = errors.New("payment gateway credentials not configured")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// OrderRequest is what the checkout asks the gateway to create.
type OrderRequest struct {
	Amount   decimal.Decimal
	Currency string
	Receipt  string
	Notes    map[string]string
}

// GatewayOrder is the gateway's session object.
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type Client struct {
	keyID     string
	keySecret string
	baseURL   string
	http      *http.Client
	retry     RetryPolicy
	log       *slog.Logger
}

func NewClient(cfg config.RazorpayConfig, log *slog.Logger) *Client {
	return &Client{
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		http:      &http.Client{Timeout: cfg.HTTPTimeout},
		retry:     RetryPolicy{MaxAttempts: cfg.MaxAttempts, Backoff: cfg.RetryBackoff, Multiplier: 2},
		log:       log,
	}
}

// KeyID is the public key handed to the hosted checkout widget.
func (c *Client) KeyID() string { return c.keyID }

// ToMinorUnits converts a major-unit amount to the gateway's minor unit.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	minor := amount.Mul(decimal.NewFromInt(100)).Round(0)
	if !minor.IsPositive() {
		return 0, ErrInvalidAmount
	}
	return minor.IntPart(), nil
}

func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*GatewayOrder, error) {
	minor, err := ToMinorUnits(req.Amount)
	if err != nil {
		return nil, err
	}
	if c.keyID == "" || c.keySecret == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(map[string]any{
		"amount":          minor,
		"currency":        req.Currency,
		"receipt":         req.Receipt,
		"notes":           req.Notes,
		"payment_capture": 1,
	})
	if err != nil {
		return nil, fmt.Errorf("encode gateway order: %w", err)
	}

	var out GatewayOrder
	if err := c.post(ctx, "/orders", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifySignature checks the checkout success callback:
// hex(HMAC-SHA256(secret, gatewayOrderID + "|" + paymentID)).
func (c *Client) VerifySignature(gatewayOrderID, paymentID, signature string) bool {
	if c.keySecret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(c.keySecret, gatewayOrderID, paymentID)), []byte(signature))
}

// Sign produces the signature the gateway attaches to a successful payment.
func Sign(secret, gatewayOrderID, paymentID string) string {
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(h.Sum(nil))
}

// post retries transport errors and 5xx responses; 4xx responses are returned as is.
func (c *Client) post(ctx context.Context, path string, body []byte, out any) error {
	attempts := c.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retry.Delay(attempt - 1)):
			}
		}

		retryable, err := c.doPost(ctx, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
		c.log.Warn("gateway call failed", "path", path, "attempt", attempt, "error", err)
	}
	return fmt.Errorf("%w: %v", ErrGatewayUnavailable, lastErr)
}

func (c *Client) doPost(ctx context.Context, path string, body []byte, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build gateway request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("call gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return true, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return false, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode gateway response: %w", err)
	}
	return false, nil
}
