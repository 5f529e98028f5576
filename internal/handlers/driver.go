package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ridelink/ridelink-backend/internal/lifecycle"
	"github.com/ridelink/ridelink-backend/internal/location"
	"github.com/ridelink/ridelink-backend/internal/models"
	"github.com/ridelink/ridelink-backend/pkg/utils"
)

// HeartbeatSink records driver location heartbeats.
type HeartbeatSink interface {
	UpdateLocation(ctx context.Context, driverID uint, lat, lng, heading float64) error
}

// UpdateDriverLocation handles driver location heartbeats.
func UpdateDriverLocation(registry HeartbeatSink) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID := c.GetUint("userId")
		userType := c.GetString("userType")

		if userType != string(models.UserTypeDriver) {
			c.JSON(403, gin.H{"error": "Only drivers can update location"})
			return
		}

		// Pointer coordinates so lat=0 / lng=0 heartbeats bind.
		var input struct {
			Lat     *float64 `json:"lat" binding:"required"`
			Lng     *float64 `json:"lng" binding:"required"`
			Heading float64  `json:"heading"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		lat, lng := *input.Lat, *input.Lng
		if lat < -90 || lat > 90 {
			c.JSON(400, gin.H{"error": "Invalid latitude"})
			return
		}
		if lng < -180 || lng > 180 {
			c.JSON(400, gin.H{"error": "Invalid longitude"})
			return
		}

		if err := registry.UpdateLocation(c.Request.Context(), driverID, lat, lng, input.Heading); err != nil {
			c.JSON(500, gin.H{"error": "Failed to update location"})
			return
		}

		c.JSON(200, gin.H{
			"message": "Location updated successfully",
			"location": gin.H{
				"lat":     lat,
				"lng":     lng,
				"heading": input.Heading,
			},
		})
	}
}

// UpdateDriverAvailability toggles whether the driver receives offers.
func UpdateDriverAvailability(registry *location.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID := c.GetUint("userId")
		userType := c.GetString("userType")

		if userType != string(models.UserTypeDriver) {
			c.JSON(403, gin.H{"error": "Only drivers can update availability"})
			return
		}

		var input struct {
			IsAvailable *bool `json:"isAvailable"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}
		if input.IsAvailable == nil {
			c.JSON(400, gin.H{"error": "isAvailable field is required"})
			return
		}

		if err := registry.SetAvailability(c.Request.Context(), driverID, *input.IsAvailable); err != nil {
			c.JSON(500, gin.H{"error": "Failed to update availability"})
			return
		}

		c.JSON(200, gin.H{
			"message":     "Availability updated successfully",
			"isAvailable": *input.IsAvailable,
		})
	}
}

// GetDriverStatus returns the driver's registry entry.
func GetDriverStatus(registry *location.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID := c.GetUint("userId")
		userType := c.GetString("userType")

		if userType != string(models.UserTypeDriver) {
			c.JSON(403, gin.H{"error": "Only drivers can view their status"})
			return
		}

		status, err := registry.Status(c.Request.Context(), driverID)
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to fetch status"})
			return
		}
		if status == nil {
			c.JSON(404, gin.H{"error": "No location reported yet"})
			return
		}
		c.JSON(200, status)
	}
}

// GetNearbyDrivers returns available drivers around a point, for the rider map.
func GetNearbyDrivers(registry *location.Registry, defaultRadiusKm float64) gin.HandlerFunc {
	return func(c *gin.Context) {
		lat, err := strconv.ParseFloat(c.Query("lat"), 64)
		if err != nil {
			c.JSON(400, gin.H{"error": "Invalid latitude"})
			return
		}
		lng, err := strconv.ParseFloat(c.Query("lng"), 64)
		if err != nil {
			c.JSON(400, gin.H{"error": "Invalid longitude"})
			return
		}
		radius := defaultRadiusKm
		if v := c.Query("radius"); v != "" {
			if r, err := strconv.ParseFloat(v, 64); err == nil && r > 0 {
				radius = r
			}
		}

		drivers, err := registry.Nearby(c.Request.Context(), lat, lng, radius)
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to find nearby drivers"})
			return
		}

		out := make([]gin.H, 0, len(drivers))
		for _, d := range drivers {
			out = append(out, gin.H{
				"driverId": d.DriverID,
				"lat":      *d.Latitude,
				"lng":      *d.Longitude,
				"heading":  d.Heading,
				"distance": utils.HaversineDistance(lat, lng, *d.Latitude, *d.Longitude),
			})
		}
		c.JSON(200, gin.H{"drivers": out})
	}
}

// AcceptBooking is the HTTP fallback for the acceptBooking websocket event.
func AcceptBooking(service *lifecycle.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID := c.GetUint("userId")
		userType := c.GetString("userType")

		if userType != string(models.UserTypeDriver) {
			c.JSON(403, gin.H{"error": "Only drivers can accept bookings"})
			return
		}

		bookingID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(400, gin.H{"error": "Invalid booking ID"})
			return
		}

		var input struct {
			Price float64 `json:"price" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		err = service.Accept(c.Request.Context(), driverID, uint(bookingID), input.Price)
		switch {
		case err == nil:
			c.JSON(200, gin.H{"message": "Booking accepted", "bookingId": bookingID})
		case errors.Is(err, lifecycle.ErrInvalidTransition):
			c.JSON(400, gin.H{"error": err.Error()})
		default:
			c.JSON(500, gin.H{"error": "Failed to accept booking"})
		}
	}
}

// DeclineBooking is the HTTP fallback for the declineBooking websocket event.
func DeclineBooking(service *lifecycle.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID := c.GetUint("userId")
		userType := c.GetString("userType")

		if userType != string(models.UserTypeDriver) {
			c.JSON(403, gin.H{"error": "Only drivers can decline bookings"})
			return
		}

		bookingID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(400, gin.H{"error": "Invalid booking ID"})
			return
		}

		err = service.Decline(c.Request.Context(), driverID, uint(bookingID))
		switch {
		case err == nil:
			c.JSON(200, gin.H{"message": "Booking declined", "bookingId": bookingID})
		case errors.Is(err, lifecycle.ErrInvalidTransition):
			c.JSON(400, gin.H{"error": err.Error()})
		default:
			c.JSON(500, gin.H{"error": "Failed to decline booking"})
		}
	}
}

// CompleteBooking is the HTTP fallback for the rideCompleted websocket event.
func CompleteBooking(service *lifecycle.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID := c.GetUint("userId")
		userType := c.GetString("userType")

		if userType != string(models.UserTypeDriver) {
			c.JSON(403, gin.H{"error": "Only drivers can complete rides"})
			return
		}

		bookingID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(400, gin.H{"error": "Invalid booking ID"})
			return
		}

		err = service.Complete(c.Request.Context(), driverID, uint(bookingID))
		switch {
		case err == nil:
			c.JSON(200, gin.H{"message": "Ride completed", "bookingId": bookingID})
		case errors.Is(err, lifecycle.ErrInvalidTransition):
			c.JSON(400, gin.H{"error": err.Error()})
		default:
			c.JSON(500, gin.H{"error": "Failed to complete ride"})
		}
	}
}
