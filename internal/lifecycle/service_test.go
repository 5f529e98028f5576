package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridelink/ridelink-backend/internal/matching"
	"github.com/ridelink/ridelink-backend/internal/models"
)

// memStore implements Store with the same conditional-update semantics as
// the gorm-backed store: transitions only land when the booking is in the
// required state, under a single lock.
type memStore struct {
	mu       sync.Mutex
	bookings map[uint]*models.Booking
}

func newMemStore(bookings ...*models.Booking) *memStore {
	s := &memStore{bookings: map[uint]*models.Booking{}}
	for _, b := range bookings {
		s.bookings[b.ID] = b
	}
	return s
}

func (s *memStore) GetBooking(ctx context.Context, id uint) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, nil
	}
	clone := *b
	return &clone, nil
}

func (s *memStore) AcceptBooking(ctx context.Context, id, driverID uint, price float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.Status != models.BookingStatusPending || b.DriverID == nil || *b.DriverID != driverID {
		return false, nil
	}
	b.Status = models.BookingStatusAccepted
	b.Price = &price
	return true, nil
}

func (s *memStore) DeclineBooking(ctx context.Context, id, driverID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.Status != models.BookingStatusPending || b.DriverID == nil || *b.DriverID != driverID {
		return false, nil
	}
	b.Status = models.BookingStatusDeclined
	return true, nil
}

func (s *memStore) CompleteBooking(ctx context.Context, id, driverID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.Status != models.BookingStatusAccepted || b.DriverID == nil || *b.DriverID != driverID {
		return false, nil
	}
	b.Status = models.BookingStatusCompleted
	return true, nil
}

func (s *memStore) AttachRating(ctx context.Context, id uint, rating int, review string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.Status != models.BookingStatusCompleted || b.Rating != nil {
		return false, nil
	}
	b.Rating = &rating
	b.Review = review
	return true, nil
}

func (s *memStore) SetPaymentRef(ctx context.Context, id uint, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bookings[id]; ok {
		b.PaymentRef = ref
	}
	return nil
}

type recordedSend struct {
	ParticipantID uint
	Event         string
	Payload       interface{}
}

type recordingSender struct {
	mu    sync.Mutex
	sends []recordedSend
}

func (r *recordingSender) Send(participantID uint, event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sends = append(r.sends, recordedSend{participantID, event, payload})
}

func (r *recordingSender) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sends))
	for _, s := range r.sends {
		out = append(out, s.Event)
	}
	return out
}

type fakeGate struct {
	mu     sync.Mutex
	states map[uint]bool
}

func (f *fakeGate) SetAvailability(ctx context.Context, driverID uint, available bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.states == nil {
		f.states = map[uint]bool{}
	}
	f.states[driverID] = available
	return nil
}

type fakePayments struct {
	held     []uint
	captured []string
	holdErr  error
}

func (f *fakePayments) Hold(ctx context.Context, bookingID uint, price float64) (string, error) {
	if f.holdErr != nil {
		return "", f.holdErr
	}
	f.held = append(f.held, bookingID)
	return "pi_test_123", nil
}

func (f *fakePayments) Capture(ctx context.Context, ref string) error {
	f.captured = append(f.captured, ref)
	return nil
}

func pendingBooking(id, clientID, driverID uint) *models.Booking {
	d := driverID
	b := &models.Booking{
		ClientID:  clientID,
		DriverID:  &d,
		PickupLat: 10, PickupLng: 10,
		DestLat: 11, DestLng: 11,
		Status: models.BookingStatusPending,
	}
	b.ID = id
	return b
}

func newService(store Store) (*Service, *recordingSender, *fakeGate, *fakePayments) {
	sender := &recordingSender{}
	gate := &fakeGate{}
	pay := &fakePayments{}
	svc := &Service{
		Store:   store,
		Drivers: gate,
		Channel: sender,
		Signals: matching.NewSignals(),
		Pay:     pay,
	}
	return svc, sender, gate, pay
}

func TestAcceptSetsPriceAndNotifiesRider(t *testing.T) {
	store := newMemStore(pendingBooking(1, 100, 200))
	svc, sender, gate, pay := newService(store)

	err := svc.Accept(context.Background(), 200, 1, 150)
	require.NoError(t, err)

	b, _ := store.GetBooking(context.Background(), 1)
	assert.Equal(t, models.BookingStatusAccepted, b.Status)
	require.NotNil(t, b.Price)
	assert.Equal(t, 150.0, *b.Price)
	assert.Equal(t, "pi_test_123", b.PaymentRef)

	assert.Equal(t, []uint{1}, pay.held)
	assert.False(t, gate.states[200], "driver must be marked unavailable")

	require.Len(t, sender.sends, 1)
	assert.Equal(t, uint(100), sender.sends[0].ParticipantID)
	assert.Equal(t, "bookingAccepted", sender.sends[0].Event)
}

func TestAcceptRejectsNonPositivePrice(t *testing.T) {
	store := newMemStore(pendingBooking(1, 100, 200))
	svc, _, _, _ := newService(store)

	err := svc.Accept(context.Background(), 200, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAcceptOnlyOnceAcrossOverlappingOffers(t *testing.T) {
	// Two searches offered to the same driver at once: the second accept
	// must lose the compare-and-set.
	store := newMemStore(pendingBooking(1, 100, 200), pendingBooking(2, 101, 200))
	svc, _, _, _ := newService(store)

	require.NoError(t, svc.Accept(context.Background(), 200, 1, 80))

	// Accepting the first booking again is also an invalid transition.
	err := svc.Accept(context.Background(), 200, 1, 80)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// The second booking is untouched, still pending for its own timeout.
	b, _ := store.GetBooking(context.Background(), 2)
	assert.Equal(t, models.BookingStatusPending, b.Status)
}

func TestAcceptWrongDriverFails(t *testing.T) {
	store := newMemStore(pendingBooking(1, 100, 200))
	svc, _, _, _ := newService(store)

	err := svc.Accept(context.Background(), 999, 1, 80)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDeclineKeepsRecordAndNotifies(t *testing.T) {
	store := newMemStore(pendingBooking(1, 100, 200))
	svc, sender, _, _ := newService(store)

	require.NoError(t, svc.Decline(context.Background(), 200, 1))

	b, _ := store.GetBooking(context.Background(), 1)
	require.NotNil(t, b, "declined booking is retained")
	assert.Equal(t, models.BookingStatusDeclined, b.Status)
	assert.Contains(t, sender.events(), "bookingDeclined")

	// Terminal: cannot be accepted afterwards.
	err := svc.Accept(context.Background(), 200, 1, 80)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCompleteRequiresAccepted(t *testing.T) {
	store := newMemStore(pendingBooking(1, 100, 200))
	svc, _, _, _ := newService(store)

	// Pending -> Completed skips a state.
	err := svc.Complete(context.Background(), 200, 1)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCompleteCapturesPaymentAndReleasesDriver(t *testing.T) {
	store := newMemStore(pendingBooking(1, 100, 200))
	svc, sender, gate, pay := newService(store)

	require.NoError(t, svc.Accept(context.Background(), 200, 1, 150))
	require.NoError(t, svc.Complete(context.Background(), 200, 1))

	b, _ := store.GetBooking(context.Background(), 1)
	assert.Equal(t, models.BookingStatusCompleted, b.Status)
	assert.True(t, gate.states[200], "driver must be released")
	assert.Equal(t, []string{"pi_test_123"}, pay.captured)
	assert.Contains(t, sender.events(), "RideCompletednowpay")
}

func TestAcceptStandsWhenPaymentHoldFails(t *testing.T) {
	store := newMemStore(pendingBooking(1, 100, 200))
	svc, sender, _, pay := newService(store)
	pay.holdErr = errors.New("gateway unreachable")

	require.NoError(t, svc.Accept(context.Background(), 200, 1, 150))

	b, _ := store.GetBooking(context.Background(), 1)
	assert.Equal(t, models.BookingStatusAccepted, b.Status)
	assert.Empty(t, b.PaymentRef)
	assert.Contains(t, sender.events(), "bookingAccepted")
}

func TestRateOnlyAfterCompletionAndOnlyOnce(t *testing.T) {
	store := newMemStore(pendingBooking(1, 100, 200))
	svc, _, _, _ := newService(store)

	// Not completed yet.
	err := svc.Rate(context.Background(), 100, 1, 5, "great")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, svc.Accept(context.Background(), 200, 1, 150))
	require.NoError(t, svc.Complete(context.Background(), 200, 1))

	require.NoError(t, svc.Rate(context.Background(), 100, 1, 5, "great"))
	b, _ := store.GetBooking(context.Background(), 1)
	require.NotNil(t, b.Rating)
	assert.Equal(t, 5, *b.Rating)
	assert.Equal(t, "great", b.Review)

	// Second attempt fails regardless of the value supplied.
	err = svc.Rate(context.Background(), 100, 1, 3, "changed my mind")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	b, _ = store.GetBooking(context.Background(), 1)
	assert.Equal(t, 5, *b.Rating)
}

func TestRateValidatesRangeAndOwnership(t *testing.T) {
	store := newMemStore(pendingBooking(1, 100, 200))
	svc, _, _, _ := newService(store)
	require.NoError(t, svc.Accept(context.Background(), 200, 1, 150))
	require.NoError(t, svc.Complete(context.Background(), 200, 1))

	assert.ErrorIs(t, svc.Rate(context.Background(), 100, 1, 0, ""), ErrInvalidTransition)
	assert.ErrorIs(t, svc.Rate(context.Background(), 100, 1, 6, ""), ErrInvalidTransition)
	assert.ErrorIs(t, svc.Rate(context.Background(), 999, 1, 4, ""), ErrInvalidTransition)

	err := svc.Rate(context.Background(), 100, 42, 4, "")
	assert.ErrorIs(t, err, ErrNotFound)
}
