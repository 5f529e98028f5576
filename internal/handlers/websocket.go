package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/ridelink/ridelink-backend/internal/realtime"
)

// WebSocketHandler upgrades authenticated connections into the hub.
func WebSocketHandler(hub *realtime.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userId")
		userType := c.GetString("userType")

		realtime.HandleWebSocket(hub, c.Writer, c.Request, userID, userType)
	}
}
