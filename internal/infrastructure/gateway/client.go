// Package gateway wraps the external payment API behind the
// application.GatewayClient port. The HTTP client is composed with retry
// and circuit-breaker decorators; callers only see normalized results.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/DanielPopoola/marketplace-settlement/internal/application"
	"github.com/DanielPopoola/marketplace-settlement/internal/config"
)

type HTTPGatewayClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPGatewayClient(cfg config.GatewayConfig) *HTTPGatewayClient {
	return &HTTPGatewayClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.ConnTimeout,
		},
	}
}

func (c *HTTPGatewayClient) Charge(ctx context.Context, req application.GatewayChargeRequest, idempotencyKey string) (*application.GatewayResult, error) {
	body := chargeRequest{
		TransactionID: req.TransactionID,
		OrderID:       req.OrderID,
		AmountCents:   req.AmountCents,
		Currency:      req.Currency,
		Method:        string(req.Method),
		CardToken:     req.CardToken,
		BankCode:      req.BankCode,
	}

	raw, resp, gwErr, err := c.send(ctx, http.MethodPost, c.baseURL+"/api/v1/charges", &body, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if gwErr != nil {
		// a replayed idempotency key is the original response, not an error
		if gwErr.Code == "duplicate_request" {
			var errBody errorResponse
			if jsonErr := json.Unmarshal(raw, &errBody); jsonErr == nil && errBody.Original != nil {
				return normalize(*errBody.Original, raw), nil
			}
		}
		return nil, gwErr
	}
	return normalize(*resp, raw), nil
}

func (c *HTTPGatewayClient) QueryStatus(ctx context.Context, gatewayReference string) (*application.GatewayResult, error) {
	url := fmt.Sprintf("%s/api/v1/charges/%s", c.baseURL, gatewayReference)
	raw, resp, gwErr, err := c.send(ctx, http.MethodGet, url, nil, "")
	if err != nil {
		return nil, err
	}
	if gwErr != nil {
		return nil, gwErr
	}
	return normalize(*resp, raw), nil
}

// HealthCheck lists supported payment methods as a lightweight probe and
// reports latency alongside availability.
func (c *HTTPGatewayClient) HealthCheck(ctx context.Context) (*application.GatewayHealth, error) {
	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/payment-methods", nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &application.GatewayHealth{Available: false, Latency: latency}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &application.GatewayHealth{Available: false, Latency: latency}, nil
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return &application.GatewayHealth{Available: false, Latency: latency}, nil
	}

	return &application.GatewayHealth{
		Available:        true,
		Latency:          latency,
		SupportedMethods: health.SupportedMethods,
	}, nil
}

// send performs the HTTP exchange. Gateway-level rejections come back as
// a *application.GatewayError so callers can branch on transience; raw
// response bytes are returned for the transaction snapshot.
func (c *HTTPGatewayClient) send(ctx context.Context, method, url string, reqBody *chargeRequest, idempotencyKey string) ([]byte, *chargeResponse, *application.GatewayError, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("error marshalling json: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error creating request: %w", err)
	}

	if reqBody != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody errorResponse
		if err := json.Unmarshal(raw, &errBody); err != nil {
			return raw, nil, nil, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(raw))
		}
		return raw, nil, &application.GatewayError{
			Code:       errBody.Err,
			Message:    errBody.Message,
			StatusCode: resp.StatusCode,
		}, nil
	}

	var chargeResp chargeResponse
	if err := json.Unmarshal(raw, &chargeResp); err != nil {
		return raw, nil, nil, fmt.Errorf("error decoding json response: %w", err)
	}

	return raw, &chargeResp, nil, nil
}

// normalize maps the gateway's status vocabulary onto ours. Anything
// unrecognized stays PENDING so reconciliation can settle it later.
func normalize(resp chargeResponse, raw []byte) *application.GatewayResult {
	var status application.GatewayStatus
	switch strings.ToLower(resp.Status) {
	case "approved", "captured", "succeeded":
		status = application.GatewayStatusApproved
	case "declined", "rejected", "failed":
		status = application.GatewayStatusDeclined
	default:
		status = application.GatewayStatusPending
	}

	return &application.GatewayResult{
		Status:           status,
		GatewayReference: resp.Reference,
		RawPayload:       raw,
	}
}
