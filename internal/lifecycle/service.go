package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ridelink/ridelink-backend/internal/models"
	"github.com/ridelink/ridelink-backend/internal/observability"
	"github.com/ridelink/ridelink-backend/internal/realtime"
)

// ErrInvalidTransition is returned for any lifecycle change the state machine
// forbids, including a second rating or an accept on a non-pending booking.
var ErrInvalidTransition = errors.New("invalid booking transition")

// ErrNotFound is returned when the booking does not exist.
var ErrNotFound = errors.New("booking not found")

// Store is the slice of the booking record store the state machine drives.
// The accept/decline/complete methods are conditional writes: they report
// false when the booking was not in the required state for the transition.
type Store interface {
	GetBooking(ctx context.Context, id uint) (*models.Booking, error)
	AcceptBooking(ctx context.Context, id, driverID uint, price float64) (bool, error)
	DeclineBooking(ctx context.Context, id, driverID uint) (bool, error)
	CompleteBooking(ctx context.Context, id, driverID uint) (bool, error)
	AttachRating(ctx context.Context, id uint, rating int, review string) (bool, error)
	SetPaymentRef(ctx context.Context, id uint, ref string) error
}

// DriverGate toggles a driver's availability as bookings claim and release them.
type DriverGate interface {
	SetAvailability(ctx context.Context, driverID uint, available bool) error
}

// Notifier wakes a matching search waiting on this booking.
type Notifier interface {
	Notify(bookingID uint, status models.BookingStatus)
}

// Payments is the downstream payment collaborator. Hold returns a payment
// reference carried on the booking; the core does not depend on settlement.
type Payments interface {
	Hold(ctx context.Context, bookingID uint, price float64) (string, error)
	Capture(ctx context.Context, ref string) error
}

// Service finalizes booking transitions. All writes go through the store's
// conditional updates, so concurrent offers to the same driver resolve to at
// most one accepted booking.
type Service struct {
	Store   Store
	Drivers DriverGate
	Channel realtime.Sender
	Signals Notifier
	Pay     Payments
}

// Accept commits a driver to a pending booking at the quoted price.
func (s *Service) Accept(ctx context.Context, driverID, bookingID uint, price float64) error {
	if price <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidTransition)
	}

	ok, err := s.Store.AcceptBooking(ctx, bookingID, driverID, price)
	if err != nil {
		return fmt.Errorf("accepting booking: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: booking is no longer available", ErrInvalidTransition)
	}

	if err := s.Drivers.SetAvailability(ctx, driverID, false); err != nil {
		log.Printf("Failed to mark driver %d unavailable: %v", driverID, err)
	}
	s.Signals.Notify(bookingID, models.BookingStatusAccepted)

	booking, err := s.Store.GetBooking(ctx, bookingID)
	if err != nil || booking == nil {
		return fmt.Errorf("reading accepted booking: %w", err)
	}

	var paymentRef string
	if s.Pay != nil {
		paymentRef, err = s.Pay.Hold(ctx, bookingID, price)
		if err != nil {
			// Payment entry is a trigger, not a gate; the match stands.
			log.Printf("Payment hold for booking %d failed: %v", bookingID, err)
		} else if err := s.Store.SetPaymentRef(ctx, bookingID, paymentRef); err != nil {
			log.Printf("Failed to record payment ref for booking %d: %v", bookingID, err)
		}
	}

	s.Channel.Send(booking.ClientID, realtime.EventBookingAccepted, realtime.BookingAccepted{
		BookingID:  bookingID,
		DriverID:   driverID,
		Price:      price,
		PaymentRef: paymentRef,
	})
	log.Printf("Driver %d accepted booking %d at price %.2f", driverID, bookingID, price)
	return nil
}

// Decline records a driver's explicit rejection. The booking row is kept.
func (s *Service) Decline(ctx context.Context, driverID, bookingID uint) error {
	ok, err := s.Store.DeclineBooking(ctx, bookingID, driverID)
	if err != nil {
		return fmt.Errorf("declining booking: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: booking is no longer available", ErrInvalidTransition)
	}

	observability.DeclinesTotal.Inc()
	s.Signals.Notify(bookingID, models.BookingStatusDeclined)

	booking, err := s.Store.GetBooking(ctx, bookingID)
	if err == nil && booking != nil {
		s.Channel.Send(booking.ClientID, realtime.EventBookingDeclined, realtime.BookingDeclined{
			BookingID: bookingID,
			Reason:    "Driver declined the booking",
		})
	}
	return nil
}

// Complete marks ride execution finished and prompts the rider for payment.
// The driver is released back into the matching pool.
func (s *Service) Complete(ctx context.Context, driverID, bookingID uint) error {
	ok, err := s.Store.CompleteBooking(ctx, bookingID, driverID)
	if err != nil {
		return fmt.Errorf("completing booking: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: booking is not in progress for this driver", ErrInvalidTransition)
	}

	if err := s.Drivers.SetAvailability(ctx, driverID, true); err != nil {
		log.Printf("Failed to release driver %d: %v", driverID, err)
	}
	s.Signals.Notify(bookingID, models.BookingStatusCompleted)

	booking, err := s.Store.GetBooking(ctx, bookingID)
	if err != nil || booking == nil {
		return fmt.Errorf("reading completed booking: %w", err)
	}

	if s.Pay != nil && booking.PaymentRef != "" {
		if err := s.Pay.Capture(ctx, booking.PaymentRef); err != nil {
			log.Printf("Payment capture for booking %d failed: %v", bookingID, err)
		}
	}

	var price float64
	if booking.Price != nil {
		price = *booking.Price
	}
	s.Channel.Send(booking.ClientID, realtime.EventRideCompletedPay, realtime.RideCompletedPay{
		BookingID:  bookingID,
		Price:      price,
		PaymentRef: booking.PaymentRef,
	})
	log.Printf("Booking %d completed by driver %d", bookingID, driverID)
	return nil
}

// Rate attaches the rider's rating and review, exactly once, after completion.
func (s *Service) Rate(ctx context.Context, clientID, bookingID uint, rating int, review string) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidTransition)
	}

	booking, err := s.Store.GetBooking(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("reading booking: %w", err)
	}
	if booking == nil {
		return ErrNotFound
	}
	if booking.ClientID != clientID {
		return fmt.Errorf("%w: only the requesting rider may rate", ErrInvalidTransition)
	}

	ok, err := s.Store.AttachRating(ctx, bookingID, rating, review)
	if err != nil {
		return fmt.Errorf("attaching rating: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: booking is not completed or already rated", ErrInvalidTransition)
	}
	return nil
}
