package matching

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/ridelink/ridelink-backend/internal/models"
	"github.com/ridelink/ridelink-backend/internal/observability"
	"github.com/ridelink/ridelink-backend/internal/realtime"
	"github.com/ridelink/ridelink-backend/pkg/utils"
)

// Terminal search outcomes. NoDriversAvailable means nobody was eligible at
// search time; NoDriverResponded means offers went out but none was accepted.
var (
	ErrInvalidRequest     = errors.New("invalid ride request")
	ErrNoDriversAvailable = errors.New("no drivers available")
	ErrNoDriverResponded  = errors.New("no driver responded")
)

// DefaultOfferWindow bounds how long a single candidate may hold an offer.
const DefaultOfferWindow = 5 * time.Minute

// Candidate is a driver eligible for matching: available with a known
// coordinate at search time.
type Candidate struct {
	DriverID uint
	Lat      float64
	Lng      float64
}

// CandidateSource lists drivers eligible for matching.
type CandidateSource interface {
	Candidates(ctx context.Context) ([]Candidate, error)
}

// BookingStore is the slice of the record store the engine needs.
type BookingStore interface {
	CreatePending(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id uint) (*models.Booking, error)
	DeleteBooking(ctx context.Context, id uint) error
}

// Request is a validated ride request.
type Request struct {
	ClientID  uint
	PickupLat float64
	PickupLng float64
	DestLat   float64
	DestLng   float64
}

// Result is a successful match. Price is set by the driver's acceptance and
// lives on the booking record, not here.
type Result struct {
	BookingID uint
	DriverID  uint
}

// Engine runs the sequential offer-with-timeout search: rank available
// drivers by distance to pickup, offer to one at a time, and wait for either
// a status signal or the offer window, whichever first.
type Engine struct {
	Drivers     CandidateSource
	Store       BookingStore
	Channel     realtime.Sender
	Signals     *Signals
	OfferWindow time.Duration
}

func (e *Engine) window() time.Duration {
	if e.OfferWindow <= 0 {
		return DefaultOfferWindow
	}
	return e.OfferWindow
}

// Validate rejects malformed requests before any side effect.
func (r Request) Validate() error {
	if r.ClientID == 0 {
		return fmt.Errorf("%w: missing rider id", ErrInvalidRequest)
	}
	for _, c := range []struct {
		lat, lng float64
	}{
		{r.PickupLat, r.PickupLng},
		{r.DestLat, r.DestLng},
	} {
		if math.IsNaN(c.lat) || math.IsInf(c.lat, 0) || c.lat < -90 || c.lat > 90 {
			return fmt.Errorf("%w: invalid latitude", ErrInvalidRequest)
		}
		if math.IsNaN(c.lng) || math.IsInf(c.lng, 0) || c.lng < -180 || c.lng > 180 {
			return fmt.Errorf("%w: invalid longitude", ErrInvalidRequest)
		}
	}
	return nil
}

// Dispatch engages candidates nearest first, one outstanding offer at a time.
// Each candidate gets a pending booking and the offer window to answer; a
// booking still pending afterwards is deleted and the next candidate is
// tried. An accepted booking ends the search immediately.
func (e *Engine) Dispatch(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	candidates, err := e.Drivers.Candidates(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("listing candidates: %w", err)
	}
	if len(candidates) == 0 {
		return Result{}, ErrNoDriversAvailable
	}

	// Nearest first; stable so registry order breaks distance ties.
	sort.SliceStable(candidates, func(i, j int) bool {
		di := utils.HaversineDistance(req.PickupLat, req.PickupLng, candidates[i].Lat, candidates[i].Lng)
		dj := utils.HaversineDistance(req.PickupLat, req.PickupLng, candidates[j].Lat, candidates[j].Lng)
		return di < dj
	})

	for _, candidate := range candidates {
		result, done, err := e.offer(ctx, req, candidate)
		if err != nil {
			return Result{}, err
		}
		if done {
			return result, nil
		}
		if ctx.Err() != nil {
			break
		}
	}

	observability.SearchesFailed.Inc()
	return Result{}, ErrNoDriverResponded
}

// offer runs one candidate through the offer window. done reports whether the
// search finished with an acceptance.
func (e *Engine) offer(ctx context.Context, req Request, candidate Candidate) (Result, bool, error) {
	driverID := candidate.DriverID
	booking := &models.Booking{
		ClientID:  req.ClientID,
		DriverID:  &driverID,
		PickupLat: req.PickupLat,
		PickupLng: req.PickupLng,
		DestLat:   req.DestLat,
		DestLng:   req.DestLng,
	}
	if err := e.Store.CreatePending(ctx, booking); err != nil {
		return Result{}, false, fmt.Errorf("creating offer booking: %w", err)
	}

	// Subscribe before pushing so an instant answer cannot slip past us.
	signal, cancel := e.Signals.Register(booking.ID)
	defer cancel()

	distance := utils.HaversineDistance(req.PickupLat, req.PickupLng, candidate.Lat, candidate.Lng)
	e.Channel.Send(driverID, realtime.EventBookingRequest, realtime.BookingOffer{
		BookingID:   booking.ID,
		ClientID:    req.ClientID,
		Pickup:      realtime.Coordinate{Lat: req.PickupLat, Lng: req.PickupLng},
		Destination: realtime.Coordinate{Lat: req.DestLat, Lng: req.DestLng},
		DistanceKm:  distance,
		EtaMinutes:  utils.CalculateETA(distance, 0),
		ExpiresIn:   int(e.window().Seconds()),
	})
	observability.OffersDispatched.Inc()
	log.Printf("Offered booking %d to driver %d (%.2f km from pickup)", booking.ID, driverID, distance)

	timer := time.NewTimer(e.window())
	defer timer.Stop()

	select {
	case <-signal:
	case <-timer.C:
	case <-ctx.Done():
	}

	// The persisted status is the authority, not the signal payload.
	current, err := e.Store.GetBooking(ctx, booking.ID)
	if err != nil {
		return Result{}, false, fmt.Errorf("reading offer outcome: %w", err)
	}
	if current != nil && current.Status == models.BookingStatusAccepted {
		observability.MatchesTotal.Inc()
		return Result{BookingID: booking.ID, DriverID: driverID}, true, nil
	}

	if current != nil && current.Status == models.BookingStatusPending {
		// Non-response: remove the offer so it leaves no trace.
		observability.OfferTimeouts.Inc()
		log.Printf("Driver %d did not respond to booking %d, moving on", driverID, booking.ID)
		if err := e.Store.DeleteBooking(ctx, booking.ID); err != nil {
			return Result{}, false, fmt.Errorf("cleaning up expired offer: %w", err)
		}
	}
	// Declined bookings are retained; the search just moves on.
	return Result{}, false, nil
}
