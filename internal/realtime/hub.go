package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ridelink/ridelink-backend/internal/observability"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Sender pushes an event to a single participant. Delivery is best effort: a
// participant with no active connection is a logged no-op, which the matching
// engine treats as a non-response.
type Sender interface {
	Send(participantID uint, event string, payload interface{})
}

// RoomBroadcaster fans an event out to every connection in a booking room.
type RoomBroadcaster interface {
	BroadcastToRoom(roomID string, event string, payload interface{})
}

// EventHandler receives validated inbound events from connected participants.
// Handler errors are sent back to the participant as an error event.
type EventHandler interface {
	AcceptBooking(driverID uint, p AcceptBookingPayload) error
	DeclineBooking(driverID uint, p DeclineBookingPayload) error
	DriverLocation(driverID uint, p DriverLocationPayload) error
	ChatMessage(senderID uint, senderRole string, p SendMessagePayload) error
	RideCompleted(driverID uint, p RideCompletedPayload) error
}

// Client represents a connected participant.
type Client struct {
	ID       uint
	UserType string
	Conn     *websocket.Conn
	Send     chan []byte
	Hub      *Hub
}

// Hub maintains the participant-to-connection mapping and chat rooms.
// Registration is last write wins so a reconnecting participant displaces
// their stale handle.
type Hub struct {
	clients    map[uint]*Client
	rooms      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	handler    EventHandler
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uint]*Client),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// SetHandler installs the inbound event handler. Must be called before Run.
func (h *Hub) SetHandler(handler EventHandler) {
	h.handler = handler
}

// Run starts the hub.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			if old, ok := h.clients[client.ID]; ok {
				close(old.Send)
				h.dropFromRooms(old)
			}
			h.clients[client.ID] = client
			h.mutex.Unlock()
			observability.ConnectedClients.Inc()
			log.Printf("Client %d (%s) connected", client.ID, client.UserType)

		case client := <-h.unregister:
			h.mutex.Lock()
			// Only clear the mapping if it still points at this connection;
			// a reconnect may already have replaced it.
			if current, ok := h.clients[client.ID]; ok && current == client {
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.dropFromRooms(client)
			h.mutex.Unlock()
			observability.ConnectedClients.Dec()
			log.Printf("Client %d disconnected", client.ID)
		}
	}
}

// dropFromRooms removes a client from every room. Caller holds the lock.
func (h *Hub) dropFromRooms(client *Client) {
	for roomID, members := range h.rooms {
		if members[client] {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
}

// Send pushes an event to a specific participant. A participant with no
// active connection is logged and skipped, never an error to the caller.
// The read lock is held across the channel send: Run only closes a Send
// channel under the write lock, so the channel cannot close mid-send.
func (h *Hub) Send(participantID uint, event string, payload interface{}) {
	data, err := json.Marshal(Message{Type: event, Data: payload})
	if err != nil {
		log.Printf("Error marshaling %s event: %v", event, err)
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	client, ok := h.clients[participantID]
	if !ok {
		log.Printf("No active connection for participant %d, dropping %s", participantID, event)
		return
	}

	select {
	case client.Send <- data:
	default:
		log.Printf("Warning: Could not send %s to client %d (channel full)", event, participantID)
	}
}

// JoinRoom subscribes a client to a room. Room ids are booking ids.
func (h *Hub) JoinRoom(client *Client, roomID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
	log.Printf("Client %d joined room %s", client.ID, roomID)
}

// BroadcastToRoom sends an event to every client in a room.
func (h *Hub) BroadcastToRoom(roomID string, event string, payload interface{}) {
	data, err := json.Marshal(Message{Type: event, Data: payload})
	if err != nil {
		log.Printf("Error marshaling %s event: %v", event, err)
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.rooms[roomID] {
		select {
		case client.Send <- data:
		default:
			log.Printf("Warning: Could not send to client %d (channel full)", client.ID)
		}
	}
}

// BroadcastToUserType sends an event to all participants of a given type.
func (h *Hub) BroadcastToUserType(userType string, event string, payload interface{}) {
	data, err := json.Marshal(Message{Type: event, Data: payload})
	if err != nil {
		log.Printf("Error marshaling %s event: %v", event, err)
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for _, client := range h.clients {
		if client.UserType != userType {
			continue
		}
		select {
		case client.Send <- data:
		default:
			log.Printf("Warning: Could not send to client %d (channel full)", client.ID)
		}
	}
}

// GetConnectedClients returns the number of connected clients.
func (h *Hub) GetConnectedClients() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Message is the outbound frame.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Envelope is the inbound frame; the payload stays raw until the event type
// selects its schema.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// HandleWebSocket upgrades the request and registers the participant.
func HandleWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request, userID uint, userType string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		ID:       userID,
		UserType: userType,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		Hub:      hub,
	}

	hub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump pumps messages from the websocket connection into the event handler.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var envelope Envelope
		if err := json.Unmarshal(message, &envelope); err != nil {
			log.Printf("Error unmarshaling WebSocket message: %v", err)
			continue
		}

		c.dispatch(envelope)
	}
}

// dispatch decodes the payload for the named event and routes it. Unknown
// events and malformed payloads are dropped with a log line.
func (c *Client) dispatch(envelope Envelope) {
	handler := c.Hub.handler
	if handler == nil {
		log.Printf("No event handler installed, dropping %s from client %d", envelope.Type, c.ID)
		return
	}

	var err error
	switch envelope.Type {
	case EventAcceptBooking:
		var p AcceptBookingPayload
		if err = json.Unmarshal(envelope.Data, &p); err == nil {
			err = handler.AcceptBooking(c.ID, p)
		}
	case EventDeclineBooking:
		var p DeclineBookingPayload
		if err = json.Unmarshal(envelope.Data, &p); err == nil {
			err = handler.DeclineBooking(c.ID, p)
		}
	case EventDriverLocation:
		var p DriverLocationPayload
		if err = json.Unmarshal(envelope.Data, &p); err == nil {
			err = handler.DriverLocation(c.ID, p)
		}
	case EventJoinRoom:
		var p JoinRoomPayload
		if err = json.Unmarshal(envelope.Data, &p); err == nil {
			c.Hub.JoinRoom(c, RoomID(p.BookingID))
		}
	case EventSendMessage:
		var p SendMessagePayload
		if err = json.Unmarshal(envelope.Data, &p); err == nil {
			err = handler.ChatMessage(c.ID, c.UserType, p)
		}
	case EventRideCompleted:
		var p RideCompletedPayload
		if err = json.Unmarshal(envelope.Data, &p); err == nil {
			err = handler.RideCompleted(c.ID, p)
		}
	default:
		log.Printf("Unknown event %q from client %d", envelope.Type, c.ID)
		return
	}

	if err != nil {
		log.Printf("Event %s from client %d failed: %v", envelope.Type, c.ID, err)
		c.Hub.Send(c.ID, EventError, map[string]string{
			"event": envelope.Type,
			"error": err.Error(),
		})
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	defer c.Conn.Close()

	for message := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("WebSocket write error: %v", err)
			return
		}
	}
	c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}
