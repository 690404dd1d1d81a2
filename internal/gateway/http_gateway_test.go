// internal/gateway/http_gateway_test.go
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *HTTPGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPGateway(srv.URL, "sk_test", 2*time.Second, zap.NewNop())
}

func TestChargeSucceeded(t *testing.T) {
	var gotIdemKey string
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/charges", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		gotIdemKey = r.Header.Get("Idempotency-Key")

		var req ChargeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tok_visa", req.Token)

		json.NewEncoder(w).Encode(map[string]string{
			"status":    "succeeded",
			"reference": "ch_123",
		})
	})

	res, err := gw.Charge(context.Background(), ChargeRequest{
		Token:     "tok_visa",
		Amount:    99.99,
		Currency:  "USD",
		Reference: "ref-1",
	})
	require.NoError(t, err)
	assert.Equal(t, ChargeSucceeded, res.Status)
	assert.Equal(t, "ch_123", res.GatewayReference)
	assert.Equal(t, "ref-1", gotIdemKey)
	assert.False(t, res.Failed())
}

func TestChargeDeclined(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"status":         "declined",
			"reference":      "ch_456",
			"decline_reason": "insufficient_funds",
		})
	})

	res, err := gw.Charge(context.Background(), ChargeRequest{Reference: "ref-2"})
	require.NoError(t, err)
	assert.Equal(t, ChargeDeclined, res.Status)
	assert.Equal(t, "insufficient_funds", res.DeclineReason)
	assert.True(t, res.Failed())
}

func TestChargeServerErrorNormalized(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	res, err := gw.Charge(context.Background(), ChargeRequest{Reference: "ref-3"})
	require.NoError(t, err, "transport problems are results, not errors")
	assert.Equal(t, ChargeError, res.Status)
	assert.Equal(t, "ref-3", res.GatewayReference)
	assert.True(t, res.Failed())
}

func TestChargeUnreachableGatewayNormalized(t *testing.T) {
	gw := NewHTTPGateway("http://127.0.0.1:1", "sk_test", time.Second, zap.NewNop())

	res, err := gw.Charge(context.Background(), ChargeRequest{Reference: "ref-4"})
	require.NoError(t, err)
	assert.Equal(t, ChargeError, res.Status)
	assert.True(t, res.Failed())
}
