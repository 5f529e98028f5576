package matching

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridelink/ridelink-backend/internal/models"
	"github.com/ridelink/ridelink-backend/internal/realtime"
)

type fakeCandidates struct {
	list []Candidate
	err  error
}

func (f *fakeCandidates) Candidates(ctx context.Context) ([]Candidate, error) {
	return f.list, f.err
}

// fakeStore is an in-memory booking store that tracks how many offers were
// pending at once, so tests can assert the one-outstanding-offer property.
type fakeStore struct {
	mu         sync.Mutex
	nextID     uint
	bookings   map[uint]*models.Booking
	maxPending int
}

func newFakeStore() *fakeStore {
	return &fakeStore{bookings: map[uint]*models.Booking{}}
}

func (f *fakeStore) CreatePending(ctx context.Context, booking *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	booking.ID = f.nextID
	booking.Status = models.BookingStatusPending
	clone := *booking
	f.bookings[booking.ID] = &clone

	pending := 0
	for _, b := range f.bookings {
		if b.Status == models.BookingStatusPending {
			pending++
		}
	}
	if pending > f.maxPending {
		f.maxPending = pending
	}
	return nil
}

func (f *fakeStore) GetBooking(ctx context.Context, id uint) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil, nil
	}
	clone := *b
	return &clone, nil
}

func (f *fakeStore) DeleteBooking(ctx context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.bookings, id)
	return nil
}

// setStatus mimics the lifecycle service's conditional update.
func (f *fakeStore) setStatus(id uint, status models.BookingStatus, price *float64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok || b.Status != models.BookingStatusPending {
		return false
	}
	b.Status = status
	b.Price = price
	return true
}

type sentOffer struct {
	DriverID uint
	Offer    interface{}
}

type fakeSender struct {
	mu      sync.Mutex
	log     []sentOffer
	offered chan sentOffer
}

func newFakeSender() *fakeSender {
	return &fakeSender{offered: make(chan sentOffer, 16)}
}

func (f *fakeSender) Send(participantID uint, event string, payload interface{}) {
	f.mu.Lock()
	f.log = append(f.log, sentOffer{DriverID: participantID, Offer: payload})
	f.mu.Unlock()
	f.offered <- sentOffer{DriverID: participantID, Offer: payload}
}

func (f *fakeSender) drivers() []uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint, 0, len(f.log))
	for _, s := range f.log {
		out = append(out, s.DriverID)
	}
	return out
}

func newTestEngine(drivers *fakeCandidates, store *fakeStore, sender *fakeSender, window time.Duration) *Engine {
	return &Engine{
		Drivers:     drivers,
		Store:       store,
		Channel:     sender,
		Signals:     NewSignals(),
		OfferWindow: window,
	}
}

func TestDispatchRejectsInvalidRequest(t *testing.T) {
	engine := newTestEngine(&fakeCandidates{}, newFakeStore(), newFakeSender(), time.Millisecond)

	_, err := engine.Dispatch(context.Background(), Request{PickupLat: 10, PickupLng: 10, DestLat: 11, DestLng: 11})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = engine.Dispatch(context.Background(), Request{ClientID: 1, PickupLat: 120, PickupLng: 10, DestLat: 11, DestLng: 11})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestDispatchNoDriversAvailable(t *testing.T) {
	engine := newTestEngine(&fakeCandidates{}, newFakeStore(), newFakeSender(), time.Millisecond)

	_, err := engine.Dispatch(context.Background(), Request{ClientID: 1, PickupLat: 10, PickupLng: 10, DestLat: 11, DestLng: 11})
	assert.ErrorIs(t, err, ErrNoDriversAvailable)
}

func TestDispatchOffersNearestFirst(t *testing.T) {
	drivers := &fakeCandidates{list: []Candidate{
		{DriverID: 3, Lat: 10, Lng: 10.5},
		{DriverID: 1, Lat: 10, Lng: 10.001},
		{DriverID: 2, Lat: 10, Lng: 10.1},
	}}
	store := newFakeStore()
	sender := newFakeSender()
	engine := newTestEngine(drivers, store, sender, 5*time.Millisecond)

	_, err := engine.Dispatch(context.Background(), Request{ClientID: 7, PickupLat: 10, PickupLng: 10, DestLat: 11, DestLng: 11})
	assert.ErrorIs(t, err, ErrNoDriverResponded)

	assert.Equal(t, []uint{1, 2, 3}, sender.drivers())
	assert.Equal(t, 1, store.maxPending, "never more than one outstanding offer per search")
	assert.Empty(t, store.bookings, "expired offers must leave no trace")
}

func TestDispatchStopsAtAcceptance(t *testing.T) {
	// Driver 10 sits at the pickup, driver 20 slightly further out; 10 never
	// answers, 20 accepts at 150.
	drivers := &fakeCandidates{list: []Candidate{
		{DriverID: 10, Lat: 10, Lng: 10},
		{DriverID: 20, Lat: 10, Lng: 10.001},
		{DriverID: 30, Lat: 10, Lng: 10.002},
	}}
	store := newFakeStore()
	sender := newFakeSender()
	engine := newTestEngine(drivers, store, sender, 50*time.Millisecond)

	// Accept driver 20's offer as soon as it appears.
	go func() {
		for sent := range sender.offered {
			if sent.DriverID == 20 {
				price := 150.0
				bookingID := latestBookingFor(store, 20)
				if store.setStatus(bookingID, models.BookingStatusAccepted, &price) {
					engine.Signals.Notify(bookingID, models.BookingStatusAccepted)
				}
				return
			}
		}
	}()

	result, err := engine.Dispatch(context.Background(), Request{ClientID: 7, PickupLat: 10, PickupLng: 10, DestLat: 11, DestLng: 11})
	require.NoError(t, err)
	assert.Equal(t, uint(20), result.DriverID)

	surviving, err := store.GetBooking(context.Background(), result.BookingID)
	require.NoError(t, err)
	require.NotNil(t, surviving)
	assert.Equal(t, models.BookingStatusAccepted, surviving.Status)
	require.NotNil(t, surviving.Price)
	assert.Equal(t, 150.0, *surviving.Price)

	// Driver 10's expired offer must be gone and driver 30 never engaged.
	assert.NotContains(t, sender.drivers(), uint(30))
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.bookings, 1)
}

func TestDispatchDeclineMovesOnAndKeepsRecord(t *testing.T) {
	drivers := &fakeCandidates{list: []Candidate{
		{DriverID: 1, Lat: 10, Lng: 10},
		{DriverID: 2, Lat: 10, Lng: 10.001},
	}}
	store := newFakeStore()
	sender := newFakeSender()
	engine := newTestEngine(drivers, store, sender, time.Second)

	go func() {
		for sent := range sender.offered {
			bookingID := latestBookingFor(store, sent.DriverID)
			switch sent.DriverID {
			case 1:
				if store.setStatus(bookingID, models.BookingStatusDeclined, nil) {
					engine.Signals.Notify(bookingID, models.BookingStatusDeclined)
				}
			case 2:
				price := 90.0
				if store.setStatus(bookingID, models.BookingStatusAccepted, &price) {
					engine.Signals.Notify(bookingID, models.BookingStatusAccepted)
				}
				return
			}
		}
	}()

	start := time.Now()
	result, err := engine.Dispatch(context.Background(), Request{ClientID: 7, PickupLat: 10, PickupLng: 10, DestLat: 11, DestLng: 11})
	require.NoError(t, err)
	assert.Equal(t, uint(2), result.DriverID)
	assert.Less(t, time.Since(start), time.Second, "decline must wake the search before the window elapses")

	// The declined booking is retained alongside the accepted one.
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.bookings, 2)
	statuses := map[models.BookingStatus]int{}
	for _, b := range store.bookings {
		statuses[b.Status]++
	}
	assert.Equal(t, 1, statuses[models.BookingStatusDeclined])
	assert.Equal(t, 1, statuses[models.BookingStatusAccepted])
}

func TestDispatchOfflineCandidateStillGetsBooking(t *testing.T) {
	// The sender is the hub in production: a driver with no connection is a
	// logged no-op there. The engine must still create the offer booking,
	// wait the window, and clean up.
	drivers := &fakeCandidates{list: []Candidate{{DriverID: 5, Lat: 10, Lng: 10}}}
	store := newFakeStore()
	sender := newFakeSender()
	engine := newTestEngine(drivers, store, sender, 5*time.Millisecond)

	_, err := engine.Dispatch(context.Background(), Request{ClientID: 7, PickupLat: 10, PickupLng: 10, DestLat: 11, DestLng: 11})
	assert.ErrorIs(t, err, ErrNoDriverResponded)
	assert.Equal(t, 1, store.maxPending, "a booking is created even for an unreachable candidate")
	assert.Empty(t, store.bookings)
}

func TestOfferPayloadCarriesDistanceAndEta(t *testing.T) {
	drivers := &fakeCandidates{list: []Candidate{{DriverID: 5, Lat: 10, Lng: 10.05}}}
	store := newFakeStore()
	sender := newFakeSender()
	engine := newTestEngine(drivers, store, sender, 5*time.Millisecond)

	_, err := engine.Dispatch(context.Background(), Request{ClientID: 7, PickupLat: 10, PickupLng: 10, DestLat: 11, DestLng: 11})
	assert.ErrorIs(t, err, ErrNoDriverResponded)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Len(t, sender.log, 1)
	offer, ok := sender.log[0].Offer.(realtime.BookingOffer)
	require.True(t, ok)
	assert.Greater(t, offer.DistanceKm, 0.0)
	assert.GreaterOrEqual(t, offer.EtaMinutes, 1)
}

func latestBookingFor(store *fakeStore, driverID uint) uint {
	store.mu.Lock()
	defer store.mu.Unlock()
	var latest uint
	for id, b := range store.bookings {
		if b.DriverID != nil && *b.DriverID == driverID && id > latest {
			latest = id
		}
	}
	return latest
}

func TestSignalsNotifyWithoutWaiter(t *testing.T) {
	signals := NewSignals()
	// Must not block or panic when nobody is waiting.
	signals.Notify(42, models.BookingStatusAccepted)

	ch, cancel := signals.Register(42)
	signals.Notify(42, models.BookingStatusAccepted)
	select {
	case status := <-ch:
		assert.Equal(t, models.BookingStatusAccepted, status)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken")
	}
	cancel()
}
