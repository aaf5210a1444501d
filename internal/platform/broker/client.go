// Package broker implements the REST client for the upstream brokerage
// order-placement API.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/hmtengine/internal/domain"
)

// Client is the REST client for the broker's order endpoint. One Client
// is shared across all trigger fires for a given broker account.
type Client struct {
	baseURL     string
	apiKey      string
	accessToken string
	httpClient  *http.Client
}

// Config holds the per-account credentials and endpoint.
type Config struct {
	BaseURL     string
	APIKey      string
	AccessToken string
	Timeout     time.Duration
}

// New creates a Client for the given broker account.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		accessToken: cfg.AccessToken,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// apiResponse mirrors the broker's order-placement JSON envelope.
type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		OrderID string `json:"order_id"`
	} `json:"data"`
}

// PlaceOrder submits a form-encoded POST to the broker's order endpoint
// and maps the response into a domain.OrderResult. Success requires a 2xx
// response, status == "success", and a present order_id.
func (c *Client) PlaceOrder(ctx context.Context, payload domain.OrderPayload) (domain.OrderResult, error) {
	form := url.Values{}
	form.Set("tradingsymbol", payload.TradingSymbol)
	form.Set("exchange", payload.Exchange)
	form.Set("transaction_type", string(payload.TransactionType))
	form.Set("quantity", strconv.Itoa(payload.Quantity))
	form.Set("order_type", "MARKET")
	form.Set("product", payload.Product)
	form.Set("validity", "DAY")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("broker: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Authorization", "token "+c.apiKey+":"+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("broker: place order request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("broker: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.OrderResult{
			Success:   false,
			Message:   fmt.Sprintf("broker HTTP %d: %s", resp.StatusCode, string(body)),
			Retryable: resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
		}, nil
	}

	var api apiResponse
	if err := json.Unmarshal(body, &api); err != nil {
		return domain.OrderResult{}, fmt.Errorf("broker: decode response: %w", err)
	}

	success := api.Status == "success" && api.Data.OrderID != ""
	return domain.OrderResult{
		Success:   success,
		OrderID:   api.Data.OrderID,
		Message:   api.Message,
		Retryable: !success,
	}, nil
}
