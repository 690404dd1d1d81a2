// internal/middleware/access_middleware.go
package middleware

import (
	"net/http"

	"billing-service/internal/pkg/response"
	billingsvc "billing-service/internal/service/billing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AccessMiddleware struct {
	access *billingsvc.AccessService
	logger *zap.Logger
}

func NewAccessMiddleware(access *billingsvc.AccessService, logger *zap.Logger) *AccessMiddleware {
	return &AccessMiddleware{access: access, logger: logger}
}

// RequireAccess gates a route group behind the billing access policy.
// MUST be used after Auth() middleware. Grace warnings do not block; they
// are surfaced in a response header so clients can render the banner
// without an extra status poll.
func (m *AccessMiddleware) RequireAccess(feature string) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := GetIdentityID(c)
		if !ok {
			response.Error(c, http.StatusUnauthorized, "authentication required", nil)
			return
		}

		decision, err := m.access.CanAccess(c.Request.Context(), accountID, feature)
		if err != nil {
			m.logger.Error("access check failed",
				zap.Int64("account_id", accountID),
				zap.String("feature", feature),
				zap.Error(err),
			)
			response.Error(c, http.StatusInternalServerError, "failed to check access", nil)
			return
		}

		if !decision.Allowed {
			response.Error(c, http.StatusForbidden, decision.Reason, nil, map[string]interface{}{
				"feature": feature,
			})
			return
		}

		if decision.Warning != nil {
			c.Header("X-Billing-Grace-State", string(decision.Warning.State))
		}

		c.Next()
	}
}
