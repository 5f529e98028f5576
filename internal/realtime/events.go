package realtime

import "strconv"

// RoomID derives the chat room name for a booking.
func RoomID(bookingID uint) string {
	return "booking:" + strconv.FormatUint(uint64(bookingID), 10)
}

// Named events carried over the channel. These are the wire contract with the
// mobile clients, so the casing is preserved as the clients expect it.
const (
	// server -> driver
	EventBookingRequest = "BookingRequest"

	// driver -> server
	EventAcceptBooking  = "acceptBooking"
	EventDeclineBooking = "declineBooking"
	EventDriverLocation = "driverLocation"
	EventRideCompleted  = "rideCompleted"

	// server -> rider
	EventBookingAccepted  = "bookingAccepted"
	EventBookingDeclined  = "bookingDeclined"
	EventBookingFailed    = "bookingFailed"
	EventRideCompletedPay = "RideCompletednowpay"

	// chat and location fan-out
	EventJoinRoom        = "joinRoom"
	EventSendMessage     = "sendMessage"
	EventNewMessage      = "newMessage"
	EventUpdateLocations = "updateLocations"

	// delivery-layer failures back to the sender
	EventError = "error"
)

// Coordinate is a bare lat/lng pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// BookingOffer is pushed to a candidate driver as EventBookingRequest.
type BookingOffer struct {
	BookingID   uint       `json:"bookingId"`
	ClientID    uint       `json:"clientId"`
	Pickup      Coordinate `json:"pickup"`
	Destination Coordinate `json:"destination"`
	DistanceKm  float64    `json:"distanceKm"`
	EtaMinutes  int        `json:"etaMinutes"`
	ExpiresIn   int        `json:"expiresInSeconds"`
}

// AcceptBookingPayload is the driver's acceptance, including the quoted price.
type AcceptBookingPayload struct {
	BookingID uint    `json:"bookingId"`
	Price     float64 `json:"price"`
}

// DeclineBookingPayload is the driver's explicit rejection.
type DeclineBookingPayload struct {
	BookingID uint `json:"bookingId"`
}

// BookingAccepted notifies the rider that a driver committed.
type BookingAccepted struct {
	BookingID  uint    `json:"bookingId"`
	DriverID   uint    `json:"driverId"`
	Price      float64 `json:"price"`
	PaymentRef string  `json:"paymentRef,omitempty"`
}

// BookingDeclined notifies the rider that the offered driver rejected.
type BookingDeclined struct {
	BookingID uint   `json:"bookingId"`
	Reason    string `json:"reason,omitempty"`
}

// BookingFailed reports a terminal search outcome to the rider. Reason is
// "no_drivers_available" or "no_driver_responded" so the UI can distinguish.
type BookingFailed struct {
	Reason string `json:"reason"`
}

// DriverLocationPayload is a driver heartbeat.
type DriverLocationPayload struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Heading float64 `json:"heading"`
}

// LocationUpdate is the fan-out of a heartbeat to riders.
type LocationUpdate struct {
	DriverID uint       `json:"driverId"`
	Location Coordinate `json:"location"`
	Heading  float64    `json:"heading"`
}

// JoinRoomPayload subscribes the connection to a booking's chat room.
type JoinRoomPayload struct {
	BookingID uint `json:"bookingId"`
}

// SendMessagePayload posts a chat message to a booking room.
type SendMessagePayload struct {
	BookingID uint   `json:"bookingId"`
	Text      string `json:"text"`
}

// ChatMessagePayload is the broadcast form of a stored message.
type ChatMessagePayload struct {
	BookingID  uint   `json:"bookingId"`
	SenderID   uint   `json:"senderId"`
	SenderRole string `json:"senderRole"`
	Text       string `json:"text"`
	SentAt     int64  `json:"sentAt"`
}

// RideCompletedPayload signals ride-execution finish from the driver.
type RideCompletedPayload struct {
	BookingID uint `json:"bookingId"`
}

// RideCompletedPay prompts the rider for payment after completion.
type RideCompletedPay struct {
	BookingID  uint    `json:"bookingId"`
	Price      float64 `json:"price"`
	PaymentRef string  `json:"paymentRef,omitempty"`
}
