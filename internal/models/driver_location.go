package models

import (
	"time"

	"gorm.io/gorm"
)

// DriverLocation represents a driver's last reported position and availability.
// Latitude and Longitude are pointers because a driver may toggle availability
// before the first heartbeat; matching only considers drivers with both set.
type DriverLocation struct {
	gorm.Model
	DriverID    uint      `json:"driverId" gorm:"not null;uniqueIndex"`
	Latitude    *float64  `json:"lat"`
	Longitude   *float64  `json:"lng"`
	Heading     float64   `json:"heading" gorm:"not null;default:0"`
	IsAvailable bool      `json:"isAvailable" gorm:"not null;default:false"`
	LastSeen    time.Time `json:"lastSeen"`
	Driver      *User     `json:"driver,omitempty" gorm:"foreignKey:DriverID"`
}

// TableName specifies the table name
func (DriverLocation) TableName() string {
	return "driver_locations"
}

// HasCoordinate reports whether the driver has sent at least one heartbeat.
func (d *DriverLocation) HasCoordinate() bool {
	return d.Latitude != nil && d.Longitude != nil
}
