package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event types published by the booking, dealership and car admin paths.
const (
	TestDriveBooked        = "test_drive.booked"
	TestDriveCancelled     = "test_drive.cancelled"
	TestDriveStatusChanged = "test_drive.status_changed"
	DealershipHoursSaved   = "dealership.hours_saved"
	CarDeleted             = "car.deleted"
)

// Event represents a lightweight domain event.
type Event struct {
	ID        string
	Type      string
	Key       string // aggregate id, used for partitioning
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	all         []EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewEventBus constructs an empty bus. logger may be nil.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for every event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

// Publish notifies subscribers of the event type. Handlers run synchronously
// in registration order; their errors are logged and never reach the publisher.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Warn().Err(err).Str("event_type", event.Type).Str("event_id", event.ID).Msg("Event handler failed")
		}
	}
}

// PublishJSON encodes payload and publishes it under eventType.
func (b *EventBus) PublishJSON(eventType, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	b.Publish(Event{Type: eventType, Key: key, Payload: data})
	return nil
}

// BookingPayload is carried by every test_drive.* event.
type BookingPayload struct {
	BookingID      string `json:"bookingId"`
	CarID          string `json:"carId"`
	CarName        string `json:"carName"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName,omitempty"`
	UserEmail      string `json:"userEmail,omitempty"`
	BookingDate    string `json:"bookingDate"`
	StartTime      string `json:"startTime"`
	EndTime        string `json:"endTime"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previousStatus,omitempty"`
	ActorID        string `json:"actorId,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// HoursPayload is carried by dealership.hours_saved.
type HoursPayload struct {
	DealershipID string `json:"dealershipId"`
	Days         int    `json:"days"`
	ActorID      string `json:"actorId,omitempty"`
}

// CarPayload is carried by car.deleted.
type CarPayload struct {
	CarID   string `json:"carId"`
	ActorID string `json:"actorId,omitempty"`
}
