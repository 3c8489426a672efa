package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Event types published by the availability engine.
const (
	TypeDayToggled        = "day.toggled"
	TypeSlotToggled       = "slot.toggled"
	TypeDayRegenerated    = "day.regenerated"
	TypeMutationFailed    = "mutation.failed"
	TypeCalendarRefreshed = "calendar.refreshed"
)

// Event represents a lightweight domain event.
type Event struct {
	Type       string
	ProviderID int64
	Date       string
	Payload    []byte
	CreatedAt  time.Time
}

// Mutation is the payload of mutation events.
type Mutation struct {
	Op           string `json:"op"`
	Date         string `json:"date"`
	SlotID       string `json:"slot_id,omitempty"`
	IsWorkingDay bool   `json:"is_working_day"`
	SlotCount    int    `json:"slot_count"`
	RolledBack   bool   `json:"rolled_back,omitempty"`
	Error        string `json:"error,omitempty"`
}

// NewEvent builds an event with a JSON payload.
func NewEvent(eventType string, providerID int64, date string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		Type:       eventType,
		ProviderID: providerID,
		Date:       date,
		Payload:    raw,
		CreatedAt:  time.Now(),
	}, nil
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
	wildcard    []EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
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
	b.wildcard = append(b.wildcard, handler)
}

// Publish notifies subscribers of the event type and returns their joined errors.
// Handlers run synchronously; caller decides concurrency model.
func (b *EventBus) Publish(event Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.wildcard...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
