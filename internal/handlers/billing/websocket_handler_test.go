// internal/handlers/billing/websocket_handler_test.go
package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header passes", []string{"https://app.example.com"}, "", true},
		{"wildcard passes anything", []string{"*"}, "https://anywhere.example", true},
		{"listed origin passes", []string{"https://app.example.com"}, "https://app.example.com", true},
		{"unlisted origin rejected", []string{"https://app.example.com"}, "https://evil.example", false},
		{"empty list rejects browsers", nil, "https://app.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, originAllowed(tt.allowed, tt.origin))
		})
	}
}
