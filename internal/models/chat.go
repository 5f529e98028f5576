package models

import (
	"time"

	"gorm.io/gorm"
)

// Chat is the per-booking conversation. It is created lazily when the first
// message is posted, so a missing chat and an empty chat are distinct states.
type Chat struct {
	gorm.Model
	BookingID uint          `json:"bookingId" gorm:"not null;uniqueIndex"`
	Booking   *Booking      `json:"booking,omitempty" gorm:"foreignKey:BookingID"`
	Messages  []ChatMessage `json:"messages" gorm:"foreignKey:ChatID"`
}

// TableName specifies the table name
func (Chat) TableName() string {
	return "chats"
}

// ChatMessage is append-only; messages are never edited or deleted.
type ChatMessage struct {
	gorm.Model
	ChatID     uint      `json:"chatId" gorm:"not null;index"`
	SenderID   uint      `json:"senderId" gorm:"not null"`
	SenderRole string    `json:"senderRole" gorm:"not null"` // client or driver
	Body       string    `json:"body" gorm:"not null"`
	SentAt     time.Time `json:"sentAt" gorm:"not null"`
}

// TableName specifies the table name
func (ChatMessage) TableName() string {
	return "chat_messages"
}
