package handlers

import (
	"context"
	"errors"
	"log"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ridelink/ridelink-backend/internal/lifecycle"
	"github.com/ridelink/ridelink-backend/internal/matching"
	"github.com/ridelink/ridelink-backend/internal/models"
	"github.com/ridelink/ridelink-backend/internal/realtime"
	"github.com/ridelink/ridelink-backend/internal/storage"
)

// RequestRide starts a matching search for the rider. The search runs in the
// background since each offer may hold the window open for minutes; terminal
// failures reach the rider over the real-time channel as a bookingFailed
// event, and success as bookingAccepted from the lifecycle service.
func RequestRide(engine *matching.Engine, channel realtime.Sender) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetUint("userId")
		userType := c.GetString("userType")

		if userType != string(models.UserTypeClient) {
			c.JSON(403, gin.H{"error": "Only clients can request rides"})
			return
		}

		// Coordinates are pointers so zero values (the equator, the prime
		// meridian) bind; the range check happens in Request.Validate.
		var input struct {
			Pickup struct {
				Lat *float64 `json:"lat" binding:"required"`
				Lng *float64 `json:"lng" binding:"required"`
			} `json:"pickup"`
			Destination struct {
				Lat *float64 `json:"lat" binding:"required"`
				Lng *float64 `json:"lng" binding:"required"`
			} `json:"destination"`
		}

		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		req := matching.Request{
			ClientID:  clientID,
			PickupLat: *input.Pickup.Lat,
			PickupLng: *input.Pickup.Lng,
			DestLat:   *input.Destination.Lat,
			DestLng:   *input.Destination.Lng,
		}
		if err := req.Validate(); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		go func() {
			result, err := engine.Dispatch(context.Background(), req)
			switch {
			case err == nil:
				log.Printf("Search for client %d matched driver %d (booking %d)",
					clientID, result.DriverID, result.BookingID)
			case errors.Is(err, matching.ErrNoDriversAvailable):
				channel.Send(clientID, realtime.EventBookingFailed, realtime.BookingFailed{
					Reason: "no_drivers_available",
				})
			case errors.Is(err, matching.ErrNoDriverResponded):
				channel.Send(clientID, realtime.EventBookingFailed, realtime.BookingFailed{
					Reason: "no_driver_responded",
				})
			default:
				log.Printf("Search for client %d failed: %v", clientID, err)
				channel.Send(clientID, realtime.EventBookingFailed, realtime.BookingFailed{
					Reason: "internal_error",
				})
			}
		}()

		c.JSON(202, gin.H{
			"message": "Searching for a driver. You will be notified when one accepts.",
		})
	}
}

// GetBookingStatus returns a booking visible to either of its parties.
func GetBookingStatus(store *storage.BookingStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userId")

		bookingID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(400, gin.H{"error": "Invalid booking ID"})
			return
		}

		booking, err := store.GetBooking(c.Request.Context(), uint(bookingID))
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to fetch booking"})
			return
		}
		if booking == nil {
			c.JSON(404, gin.H{"error": "Booking not found"})
			return
		}

		if booking.ClientID != userID && (booking.DriverID == nil || *booking.DriverID != userID) {
			c.JSON(403, gin.H{"error": "Unauthorized to view this booking"})
			return
		}

		c.JSON(200, booking)
	}
}

// GetClientBookings lists the rider's booking history.
func GetClientBookings(store *storage.BookingStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetUint("userId")
		userType := c.GetString("userType")

		if userType != string(models.UserTypeClient) {
			c.JSON(403, gin.H{"error": "Only clients can view their bookings"})
			return
		}

		bookings, err := store.ListByClient(c.Request.Context(), clientID)
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to fetch bookings"})
			return
		}
		c.JSON(200, bookings)
	}
}

// GetDriverBookings lists the driver's booking history.
func GetDriverBookings(store *storage.BookingStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID := c.GetUint("userId")
		userType := c.GetString("userType")

		if userType != string(models.UserTypeDriver) {
			c.JSON(403, gin.H{"error": "Only drivers can view their bookings"})
			return
		}

		bookings, err := store.ListByDriver(c.Request.Context(), driverID)
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to fetch bookings"})
			return
		}
		c.JSON(200, bookings)
	}
}

// RateBooking attaches the rider's post-trip rating.
func RateBooking(service *lifecycle.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetUint("userId")
		userType := c.GetString("userType")

		if userType != string(models.UserTypeClient) {
			c.JSON(403, gin.H{"error": "Only clients can rate trips"})
			return
		}

		bookingID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(400, gin.H{"error": "Invalid booking ID"})
			return
		}

		var input struct {
			Rating int    `json:"rating" binding:"required"`
			Review string `json:"review"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		err = service.Rate(c.Request.Context(), clientID, uint(bookingID), input.Rating, input.Review)
		switch {
		case err == nil:
			c.JSON(200, gin.H{"message": "Rating saved", "bookingId": bookingID})
		case errors.Is(err, lifecycle.ErrNotFound):
			c.JSON(404, gin.H{"error": "Booking not found"})
		case errors.Is(err, lifecycle.ErrInvalidTransition):
			c.JSON(400, gin.H{"error": err.Error()})
		default:
			c.JSON(500, gin.H{"error": "Failed to save rating"})
		}
	}
}
