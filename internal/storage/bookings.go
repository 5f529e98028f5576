package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/ridelink/ridelink-backend/internal/models"
)

// BookingStore is the gorm-backed booking record store. Status transitions
// out of pending go through conditional updates so that two writers racing on
// the same booking resolve to exactly one winner.
type BookingStore struct {
	db *gorm.DB
}

func NewBookingStore(db *gorm.DB) *BookingStore {
	return &BookingStore{db: db}
}

// CreatePending inserts a new pending booking with a tentative driver.
func (s *BookingStore) CreatePending(ctx context.Context, booking *models.Booking) error {
	booking.Status = models.BookingStatusPending
	return s.db.WithContext(ctx).Create(booking).Error
}

// GetBooking returns the booking, or (nil, nil) when no row exists.
func (s *BookingStore) GetBooking(ctx context.Context, id uint) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.WithContext(ctx).First(&booking, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// DeleteBooking removes an unanswered offer so it never surfaces again.
func (s *BookingStore) DeleteBooking(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Delete(&models.Booking{}, id).Error
}

// AcceptBooking flips pending -> accepted and sets the driver's price. The
// update is conditional on the current status and tentative driver, so only
// one of two overlapping offers to the same driver can land.
func (s *BookingStore) AcceptBooking(ctx context.Context, id, driverID uint, price float64) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND driver_id = ? AND status = ?", id, driverID, models.BookingStatusPending).
		Updates(map[string]interface{}{
			"status": models.BookingStatusAccepted,
			"price":  price,
		})
	return result.RowsAffected == 1, result.Error
}

// DeclineBooking flips pending -> declined. The row is retained: an explicit
// rejection is a user decision worth recording, unlike engine timeouts.
func (s *BookingStore) DeclineBooking(ctx context.Context, id, driverID uint) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND driver_id = ? AND status = ?", id, driverID, models.BookingStatusPending).
		Update("status", models.BookingStatusDeclined)
	return result.RowsAffected == 1, result.Error
}

// CompleteBooking flips accepted -> completed.
func (s *BookingStore) CompleteBooking(ctx context.Context, id, driverID uint) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND driver_id = ? AND status = ?", id, driverID, models.BookingStatusAccepted).
		Update("status", models.BookingStatusCompleted)
	return result.RowsAffected == 1, result.Error
}

// AttachRating writes the rider's rating exactly once on a completed booking.
func (s *BookingStore) AttachRating(ctx context.Context, id uint, rating int, review string) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND status = ? AND rating IS NULL", id, models.BookingStatusCompleted).
		Updates(map[string]interface{}{
			"rating": rating,
			"review": review,
		})
	return result.RowsAffected == 1, result.Error
}

// SetPaymentRef records the payment collaborator's reference on the booking.
func (s *BookingStore) SetPaymentRef(ctx context.Context, id uint, ref string) error {
	return s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ?", id).
		Update("payment_ref", ref).Error
}

// ListByClient returns a rider's bookings, newest first.
func (s *BookingStore) ListByClient(ctx context.Context, clientID uint) ([]models.Booking, error) {
	var bookings []models.Booking
	err := s.db.WithContext(ctx).Preload("Driver").
		Where("client_id = ?", clientID).
		Order("created_at DESC").
		Find(&bookings).Error
	return bookings, err
}

// ListByDriver returns a driver's non-pending bookings, newest first.
func (s *BookingStore) ListByDriver(ctx context.Context, driverID uint) ([]models.Booking, error) {
	var bookings []models.Booking
	err := s.db.WithContext(ctx).Preload("Client").
		Where("driver_id = ? AND status <> ?", driverID, models.BookingStatusPending).
		Order("created_at DESC").
		Find(&bookings).Error
	return bookings, err
}
