package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ridelink/ridelink-backend/internal/chat"
)

// PostChatMessage is the synchronous submission path mirroring sendMessage.
func PostChatMessage(service *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		senderID := c.GetUint("userId")
		senderRole := c.GetString("userType")

		bookingID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(400, gin.H{"error": "Invalid booking ID"})
			return
		}

		var input struct {
			Text string `json:"text" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		message, err := service.PostMessage(c.Request.Context(), uint(bookingID), senderID, senderRole, input.Text)
		switch {
		case err == nil:
			c.JSON(201, message)
		case errors.Is(err, chat.ErrEmptyMessage):
			c.JSON(400, gin.H{"error": "Message text is empty"})
		case errors.Is(err, chat.ErrChatNotAllowed):
			c.JSON(403, gin.H{"error": "Chat is not available for this booking"})
		default:
			c.JSON(500, gin.H{"error": "Failed to post message"})
		}
	}
}

// ListChatMessages returns a booking's messages oldest first.
func ListChatMessages(service *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(400, gin.H{"error": "Invalid booking ID"})
			return
		}

		messages, err := service.ListMessages(c.Request.Context(), uint(bookingID))
		switch {
		case err == nil:
			c.JSON(200, gin.H{"messages": messages})
		case errors.Is(err, chat.ErrNotFound):
			c.JSON(404, gin.H{"error": "No chat exists for this booking"})
		default:
			c.JSON(500, gin.H{"error": "Failed to fetch messages"})
		}
	}
}
