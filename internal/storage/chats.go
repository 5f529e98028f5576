package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/ridelink/ridelink-backend/internal/models"
)

// ChatStore is the gorm-backed per-booking message log.
type ChatStore struct {
	db *gorm.DB
}

func NewChatStore(db *gorm.DB) *ChatStore {
	return &ChatStore{db: db}
}

// EnsureChat returns the chat for a booking, creating it on first use.
func (s *ChatStore) EnsureChat(ctx context.Context, bookingID uint) (*models.Chat, error) {
	var chat models.Chat
	err := s.db.WithContext(ctx).
		Where(models.Chat{BookingID: bookingID}).
		FirstOrCreate(&chat).Error
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// AppendMessage stores one message. Messages are never updated or removed.
func (s *ChatStore) AppendMessage(ctx context.Context, message *models.ChatMessage) error {
	return s.db.WithContext(ctx).Create(message).Error
}

// GetChat returns the chat for a booking, or (nil, nil) when none exists yet.
func (s *ChatStore) GetChat(ctx context.Context, bookingID uint) (*models.Chat, error) {
	var chat models.Chat
	err := s.db.WithContext(ctx).Where("booking_id = ?", bookingID).First(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// Messages returns a chat's full message sequence, oldest first.
func (s *ChatStore) Messages(ctx context.Context, chatID uint) ([]models.ChatMessage, error) {
	messages := make([]models.ChatMessage, 0)
	err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("sent_at ASC, id ASC").
		Find(&messages).Error
	return messages, err
}
