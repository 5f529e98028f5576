package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ridelink/ridelink-backend/internal/matching"
	"github.com/ridelink/ridelink-backend/internal/models"
	"github.com/ridelink/ridelink-backend/internal/realtime"
	"github.com/ridelink/ridelink-backend/pkg/utils"
)

// TypeBroadcaster fans location updates out to all riders.
type TypeBroadcaster interface {
	BroadcastToUserType(userType string, event string, payload interface{})
}

// Registry tracks each driver's last known position and availability. The
// database row is the source of truth; redis mirrors the hot keys and carries
// the pub/sub feed. Both writers (heartbeats and availability toggles) are
// last write wins.
type Registry struct {
	db  *gorm.DB
	rdb *redis.Client
	hub TypeBroadcaster
}

func NewRegistry(db *gorm.DB, rdb *redis.Client, hub TypeBroadcaster) *Registry {
	return &Registry{db: db, rdb: rdb, hub: hub}
}

// heartbeatColumns are the columns a heartbeat owns. Availability belongs to
// SetAvailability; a heartbeat racing a toggle must not write it back.
func heartbeatColumns(lat, lng, heading float64, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"latitude":  lat,
		"longitude": lng,
		"heading":   heading,
		"last_seen": now,
	}
}

// availabilityColumns are the columns a toggle owns.
func availabilityColumns(available bool, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"is_available": available,
		"last_seen":    now,
	}
}

// UpdateLocation records a driver heartbeat and broadcasts it to riders.
func (r *Registry) UpdateLocation(ctx context.Context, driverID uint, lat, lng, heading float64) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.DriverLocation{}).
		Where("driver_id = ?", driverID).
		Updates(heartbeatColumns(lat, lng, heading, now))
	if result.Error != nil {
		return fmt.Errorf("updating location record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		location := models.DriverLocation{
			DriverID:  driverID,
			Latitude:  &lat,
			Longitude: &lng,
			Heading:   heading,
			LastSeen:  now,
		}
		if err := r.db.WithContext(ctx).Create(&location).Error; err != nil {
			return fmt.Errorf("creating location record: %w", err)
		}
	}

	r.mirrorLocation(ctx, driverID, lat, lng, heading)

	if r.hub != nil {
		r.hub.BroadcastToUserType(string(models.UserTypeClient), realtime.EventUpdateLocations, realtime.LocationUpdate{
			DriverID: driverID,
			Location: realtime.Coordinate{Lat: lat, Lng: lng},
			Heading:  heading,
		})
	}
	return nil
}

// SetAvailability toggles whether a driver is eligible for matching. Creates
// the registry row if the driver has never sent a heartbeat.
func (r *Registry) SetAvailability(ctx context.Context, driverID uint, available bool) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.DriverLocation{}).
		Where("driver_id = ?", driverID).
		Updates(availabilityColumns(available, now))
	if result.Error != nil {
		return fmt.Errorf("updating availability record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		location := models.DriverLocation{
			DriverID:    driverID,
			IsAvailable: available,
			LastSeen:    now,
		}
		if err := r.db.WithContext(ctx).Create(&location).Error; err != nil {
			return fmt.Errorf("creating availability record: %w", err)
		}
	}

	if r.rdb != nil {
		key := fmt.Sprintf("driver:availability:%d", driverID)
		value := "false"
		if available {
			value = "true"
		}
		if err := r.rdb.Set(ctx, key, value, time.Hour).Err(); err != nil {
			return fmt.Errorf("mirroring availability: %w", err)
		}
	}
	return nil
}

// Candidates lists drivers eligible for matching: available with a known
// coordinate. Order is registry iteration order, which the engine preserves
// for distance ties.
func (r *Registry) Candidates(ctx context.Context) ([]matching.Candidate, error) {
	var locations []models.DriverLocation
	err := r.db.WithContext(ctx).
		Where("is_available = ? AND latitude IS NOT NULL AND longitude IS NOT NULL", true).
		Order("id ASC").
		Find(&locations).Error
	if err != nil {
		return nil, err
	}

	candidates := make([]matching.Candidate, 0, len(locations))
	for _, loc := range locations {
		if !loc.HasCoordinate() {
			continue
		}
		candidates = append(candidates, matching.Candidate{
			DriverID: loc.DriverID,
			Lat:      *loc.Latitude,
			Lng:      *loc.Longitude,
		})
	}
	return candidates, nil
}

// Nearby returns available drivers within radiusKm of a point, for the
// rider-facing map.
func (r *Registry) Nearby(ctx context.Context, lat, lng, radiusKm float64) ([]models.DriverLocation, error) {
	var locations []models.DriverLocation
	err := r.db.WithContext(ctx).
		Where("is_available = ? AND latitude IS NOT NULL AND longitude IS NOT NULL", true).
		Find(&locations).Error
	if err != nil {
		return nil, err
	}

	nearby := make([]models.DriverLocation, 0, len(locations))
	for _, loc := range locations {
		if !loc.HasCoordinate() {
			continue
		}
		if utils.HaversineDistance(lat, lng, *loc.Latitude, *loc.Longitude) <= radiusKm {
			nearby = append(nearby, loc)
		}
	}
	return nearby, nil
}

// Status returns a driver's registry row, or (nil, nil) if absent.
func (r *Registry) Status(ctx context.Context, driverID uint) (*models.DriverLocation, error) {
	var location models.DriverLocation
	err := r.db.WithContext(ctx).Where("driver_id = ?", driverID).First(&location).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &location, nil
}

// mirrorLocation writes the hot location key and publishes the update feed.
// Redis being down never fails a heartbeat.
func (r *Registry) mirrorLocation(ctx context.Context, driverID uint, lat, lng, heading float64) {
	if r.rdb == nil {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"lat":     lat,
		"lng":     lng,
		"heading": heading,
		"updated": time.Now().Unix(),
	})
	if err != nil {
		return
	}

	key := fmt.Sprintf("driver:location:%d", driverID)
	_ = r.rdb.Set(ctx, key, payload, time.Hour).Err()
	_ = r.rdb.Publish(ctx, "driver:location:updates", payload).Err()
}
