package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/akylbek/payment-system/refund-authorization/internal/models"
)

// Gateway issues payment reversals through the payment gateway's HTTP API.
// The gateway deduplicates on the Idempotency-Key header.
type Gateway struct {
	baseURL string
	client  *http.Client
}

func NewGateway(baseURL string, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (g *Gateway) Reverse(ctx context.Context, rev models.ReversalRequest) error {
	body, err := json.Marshal(rev)
	if err != nil {
		return fmt.Errorf("failed to marshal reversal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/reversals", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", rev.IdempotencyKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send reversal: %w", err)
	}
	defer resp.Body.Close()

	// 409 means the gateway already holds a reversal under this key
	if resp.StatusCode == http.StatusConflict || resp.StatusCode/100 == 2 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("payment gateway status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}
