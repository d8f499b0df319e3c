// Package paymenthttp talks to the external payment-processing
// collaborator over its JSON API.
package paymenthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pageturn/fulfillment/internal/orders/ports"
)

// Client implements the payment gateway port against a remote service.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient constructs a Client. A non-positive timeout defaults to 10s.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type paymentRequest struct {
	OrderID     string `json:"order_id"`
	AmountCents int64  `json:"amount_cents"`
}

type paymentResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (c *Client) ProcessPayment(ctx context.Context, orderID string, amountCents int64) (ports.PaymentResult, error) {
	return c.post(ctx, "/v1/payments", orderID, amountCents)
}

func (c *Client) ProcessRefund(ctx context.Context, orderID string, amountCents int64) (ports.PaymentResult, error) {
	return c.post(ctx, "/v1/refunds", orderID, amountCents)
}

func (c *Client) post(ctx context.Context, path, orderID string, amountCents int64) (ports.PaymentResult, error) {
	body, err := json.Marshal(paymentRequest{OrderID: orderID, AmountCents: amountCents})
	if err != nil {
		return ports.PaymentResult{}, fmt.Errorf("marshal payment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return ports.PaymentResult{}, fmt.Errorf("build payment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return ports.PaymentResult{}, fmt.Errorf("call payment service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return ports.PaymentResult{}, fmt.Errorf("payment service returned %d", resp.StatusCode)
	}

	var decoded paymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ports.PaymentResult{}, fmt.Errorf("decode payment response: %w", err)
	}

	return ports.PaymentResult{Success: decoded.Success, Message: decoded.Message}, nil
}
