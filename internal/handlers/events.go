package handlers

import (
	"context"
	"fmt"

	"github.com/ridelink/ridelink-backend/internal/chat"
	"github.com/ridelink/ridelink-backend/internal/lifecycle"
	"github.com/ridelink/ridelink-backend/internal/location"
	"github.com/ridelink/ridelink-backend/internal/realtime"
)

// EventRouter wires inbound websocket events to the domain services. It is
// the websocket counterpart of the HTTP handlers and shares the same
// services, so both paths enforce identical transitions.
type EventRouter struct {
	Lifecycle *lifecycle.Service
	Chat      *chat.Service
	Locations *location.Registry
}

var _ realtime.EventHandler = (*EventRouter)(nil)

func (r *EventRouter) AcceptBooking(driverID uint, p realtime.AcceptBookingPayload) error {
	return r.Lifecycle.Accept(context.Background(), driverID, p.BookingID, p.Price)
}

func (r *EventRouter) DeclineBooking(driverID uint, p realtime.DeclineBookingPayload) error {
	return r.Lifecycle.Decline(context.Background(), driverID, p.BookingID)
}

func (r *EventRouter) DriverLocation(driverID uint, p realtime.DriverLocationPayload) error {
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("invalid coordinate (%f, %f)", p.Lat, p.Lng)
	}
	return r.Locations.UpdateLocation(context.Background(), driverID, p.Lat, p.Lng, p.Heading)
}

func (r *EventRouter) ChatMessage(senderID uint, senderRole string, p realtime.SendMessagePayload) error {
	_, err := r.Chat.PostMessage(context.Background(), p.BookingID, senderID, senderRole, p.Text)
	return err
}

// RideCompleted relies on the store's driver check: a participant who is not
// the booking's driver cannot complete it, whatever their connection claims.
func (r *EventRouter) RideCompleted(driverID uint, p realtime.RideCompletedPayload) error {
	return r.Lifecycle.Complete(context.Background(), driverID, p.BookingID)
}
