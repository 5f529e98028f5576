package models

import (
	"gorm.io/gorm"
)

type BookingStatus string

// Booking lifecycle: pending -> accepted -> completed, or pending -> declined.
const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusAccepted  BookingStatus = "accepted"
	BookingStatusDeclined  BookingStatus = "declined"
	BookingStatusCompleted BookingStatus = "completed"
)

// Booking represents one ride request offered to one driver. While the
// matching engine is searching there is at most one pending booking per
// search; unanswered offers are deleted, declined and accepted ones survive.
type Booking struct {
	gorm.Model
	ClientID   uint          `json:"clientId" gorm:"not null;index"`
	DriverID   *uint         `json:"driverId,omitempty" gorm:"index"`
	PickupLat  float64       `json:"pickupLat" gorm:"not null"`
	PickupLng  float64       `json:"pickupLng" gorm:"not null"`
	DestLat    float64       `json:"destLat" gorm:"not null"`
	DestLng    float64       `json:"destLng" gorm:"not null"`
	Status     BookingStatus `json:"status" gorm:"not null;default:'pending'"`
	Price      *float64      `json:"price,omitempty"`
	PaymentRef string        `json:"paymentRef,omitempty"`
	Rating     *int          `json:"rating,omitempty" gorm:"check:rating >= 1 AND rating <= 5"`
	Review     string        `json:"review,omitempty"`
	Client     *User         `json:"client,omitempty" gorm:"foreignKey:ClientID"`
	Driver     *User         `json:"driver,omitempty" gorm:"foreignKey:DriverID"`
}

// TableName specifies the table name
func (Booking) TableName() string {
	return "bookings"
}
