// internal/handlers/billing/websocket_handler.go
package billing

import (
	"net/http"

	"billing-service/internal/middleware"
	ws "billing-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WebSocketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewWebSocketHandler(hub *ws.Hub, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(allowedOrigins, r.Header.Get("Origin"))
			},
		},
		logger: logger,
	}
}

// originAllowed accepts requests without an Origin header (non-browser
// clients) and browser requests from a configured origin. A single "*"
// entry allows any origin.
func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, o := range allowed {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// HandleConnection upgrades an authenticated request to the billing event
// feed. Auth() runs before this handler; browsers pass the token as a
// query parameter.
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	accountID := middleware.MustGetIdentityID(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed",
			zap.Error(err),
			zap.String("ip", c.ClientIP()),
		)
		return
	}

	client := ws.NewClient(h.hub, conn, accountID, h.logger)
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
