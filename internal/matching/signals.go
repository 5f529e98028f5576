package matching

import (
	"sync"

	"github.com/ridelink/ridelink-backend/internal/models"
)

// Signals wakes a waiting search when a booking's status changes, so the
// engine never has to sleep out the full offer window after a driver has
// already answered. The lifecycle service notifies it on every transition.
type Signals struct {
	mu      sync.Mutex
	waiters map[uint]chan models.BookingStatus
}

func NewSignals() *Signals {
	return &Signals{waiters: make(map[uint]chan models.BookingStatus)}
}

// Register subscribes to the next status change of a booking. The returned
// cancel func must be called when the caller stops waiting.
func (s *Signals) Register(bookingID uint) (<-chan models.BookingStatus, func()) {
	ch := make(chan models.BookingStatus, 1)

	s.mu.Lock()
	s.waiters[bookingID] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if s.waiters[bookingID] == ch {
			delete(s.waiters, bookingID)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Notify wakes the waiter for a booking, if any. Never blocks.
func (s *Signals) Notify(bookingID uint, status models.BookingStatus) {
	s.mu.Lock()
	ch, ok := s.waiters[bookingID]
	s.mu.Unlock()

	if !ok {
		return
	}
	select {
	case ch <- status:
	default:
	}
}
