// internal/gateway/http_gateway.go
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPGateway talks to the external payment service over HTTP with a
// bounded timeout. Callers treat timeout as a failed attempt, never as
// success.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPGateway(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *HTTPGateway {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type chargeResponse struct {
	Status        string `json:"status"`
	Reference     string `json:"reference"`
	DeclineReason string `json:"decline_reason"`
}

// Charge posts the charge request and normalizes the response. Network
// errors, timeouts and 5xx responses become ChargeError results rather than
// Go errors so the settlement processor records them as failed attempts.
func (g *HTTPGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal charge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/charges", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Idempotency-Key", req.Reference)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		g.logger.Warn("gateway call failed",
			zap.String("reference", req.Reference),
			zap.Error(err),
		)
		return &ChargeResult{Status: ChargeError, GatewayReference: req.Reference, DeclineReason: "gateway unreachable"}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		g.logger.Warn("gateway returned server error",
			zap.String("reference", req.Reference),
			zap.Int("status_code", resp.StatusCode),
		)
		return &ChargeResult{Status: ChargeError, GatewayReference: req.Reference, DeclineReason: "gateway error"}, nil
	}

	var out chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return &ChargeResult{Status: ChargeError, GatewayReference: req.Reference, DeclineReason: "unreadable gateway response"}, nil
	}

	result := &ChargeResult{GatewayReference: out.Reference}
	if result.GatewayReference == "" {
		result.GatewayReference = req.Reference
	}

	switch out.Status {
	case "succeeded":
		result.Status = ChargeSucceeded
	case "declined":
		result.Status = ChargeDeclined
		result.DeclineReason = out.DeclineReason
		if result.DeclineReason == "" {
			result.DeclineReason = "payment declined"
		}
	default:
		result.Status = ChargeError
		result.DeclineReason = out.DeclineReason
	}

	return result, nil
}
