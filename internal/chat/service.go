package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ridelink/ridelink-backend/internal/models"
	"github.com/ridelink/ridelink-backend/internal/observability"
	"github.com/ridelink/ridelink-backend/internal/realtime"
)

var (
	// ErrChatNotAllowed gates chat on booking state: only an accepted
	// booking's participants may talk.
	ErrChatNotAllowed = errors.New("chat not allowed for this booking")
	// ErrEmptyMessage rejects blank messages.
	ErrEmptyMessage = errors.New("message text is empty")
	// ErrNotFound means no chat exists yet for the booking.
	ErrNotFound = errors.New("chat not found")
)

// BookingReader looks up the owning booking for the gate check.
type BookingReader interface {
	GetBooking(ctx context.Context, id uint) (*models.Booking, error)
}

// Store is the append-only message log.
type Store interface {
	EnsureChat(ctx context.Context, bookingID uint) (*models.Chat, error)
	AppendMessage(ctx context.Context, message *models.ChatMessage) error
	GetChat(ctx context.Context, bookingID uint) (*models.Chat, error)
	Messages(ctx context.Context, chatID uint) ([]models.ChatMessage, error)
}

// Service appends and lists per-booking messages, gated by lifecycle state.
type Service struct {
	Bookings BookingReader
	Store    Store
	Rooms    realtime.RoomBroadcaster
}

// PostMessage appends a message and broadcasts it to the booking's room.
func (s *Service) PostMessage(ctx context.Context, bookingID, senderID uint, senderRole, text string) (*models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	booking, err := s.Bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("reading booking: %w", err)
	}
	if booking == nil || booking.Status != models.BookingStatusAccepted {
		return nil, ErrChatNotAllowed
	}
	if !isParticipant(booking, senderID) {
		return nil, ErrChatNotAllowed
	}

	chat, err := s.Store.EnsureChat(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("opening chat: %w", err)
	}

	message := &models.ChatMessage{
		ChatID:     chat.ID,
		SenderID:   senderID,
		SenderRole: senderRole,
		Body:       text,
		SentAt:     time.Now(),
	}
	if err := s.Store.AppendMessage(ctx, message); err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}
	observability.ChatMessages.Inc()

	s.Rooms.BroadcastToRoom(realtime.RoomID(bookingID), realtime.EventNewMessage, realtime.ChatMessagePayload{
		BookingID:  bookingID,
		SenderID:   senderID,
		SenderRole: senderRole,
		Text:       text,
		SentAt:     message.SentAt.Unix(),
	})
	return message, nil
}

// ListMessages returns the booking's messages oldest first. A booking whose
// chat was never opened yields ErrNotFound; an opened-but-empty chat yields
// an empty list.
func (s *Service) ListMessages(ctx context.Context, bookingID uint) ([]models.ChatMessage, error) {
	chat, err := s.Store.GetChat(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("reading chat: %w", err)
	}
	if chat == nil {
		return nil, ErrNotFound
	}
	return s.Store.Messages(ctx, chat.ID)
}

func isParticipant(booking *models.Booking, senderID uint) bool {
	if booking.ClientID == senderID {
		return true
	}
	return booking.DriverID != nil && *booking.DriverID == senderID
}
