// internal/gateway/gateway.go
package gateway

import "context"

type ChargeStatus string

const (
	ChargeSucceeded ChargeStatus = "succeeded"
	ChargeDeclined  ChargeStatus = "declined"
	ChargeError     ChargeStatus = "error"
)

// ChargeRequest charges a stored, tokenized payment method. Reference is the
// caller-supplied idempotency key; replaying it must not double-charge.
type ChargeRequest struct {
	Token       string  `json:"token"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Reference   string  `json:"reference"`
	Description string  `json:"description,omitempty"`
}

// ChargeResult is the normalized gateway outcome. Gateway-specific error
// shapes never cross this boundary: timeouts and 5xx come back as
// ChargeError, card rejections as ChargeDeclined.
type ChargeResult struct {
	Status           ChargeStatus `json:"status"`
	GatewayReference string       `json:"gateway_reference"`
	DeclineReason    string       `json:"decline_reason,omitempty"`
}

// Failed reports whether the attempt counts toward the failure threshold.
// Transient gateway errors count: an outage must not silently protect a
// non-paying account past the tracked window.
func (r *ChargeResult) Failed() bool {
	return r.Status != ChargeSucceeded
}

// Charger wraps the external charge-authorization service.
type Charger interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}
