// Package events provides a lightweight in-process publish/subscribe bus
// used to decouple the snapshot surface from the streaming pipeline:
// C1-C7 publish what happened and the snapshot server subscribes to
// narrate it, without an import cycle between them.
package events

import (
	"sync"
	"time"
)

// EventType enumerates the events the pipeline publishes.
type EventType string

const (
	EventTickRejected       EventType = "TICK_REJECTED"
	EventSourceStalled      EventType = "SOURCE_STALLED"
	EventCandleClosed       EventType = "CANDLE_CLOSED"
	EventFeaturesComputed   EventType = "FEATURES_COMPUTED"
	EventPredictionMade     EventType = "PREDICTION_MADE"
	EventPredictionRejected EventType = "PREDICTION_REJECTED"
	EventPositionOpened     EventType = "POSITION_OPENED"
	EventPositionUpdate     EventType = "POSITION_UPDATE"
	EventPositionClosed     EventType = "POSITION_CLOSED"
	EventCalibrationUpdate  EventType = "CALIBRATION_UPDATE"
	EventRetrainCompleted   EventType = "RETRAIN_COMPLETED"
	EventError              EventType = "ERROR"
)

// Event represents a single occurrence on the bus.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber handles a published event.
type Subscriber func(Event)

// EventBus fans published events out to interested subscribers.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type.
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for every event type.
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish delivers event to all matching subscribers. Handlers run in
// their own goroutine so a slow dashboard subscriber can never apply
// backpressure to the streaming pipeline that published the event.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishPositionOpened publishes a position-opened event.
func (eb *EventBus) PublishPositionOpened(positionID, asset string, direction string, entryPrice, sizeUsdc float64) {
	eb.Publish(Event{
		Type: EventPositionOpened,
		Data: map[string]interface{}{
			"position_id": positionID,
			"asset":       asset,
			"direction":   direction,
			"entry_price": entryPrice,
			"size_usdc":   sizeUsdc,
		},
	})
}

// PublishPositionClosed publishes a position-closed event.
func (eb *EventBus) PublishPositionClosed(positionID, asset, exitReason string, entryPrice, exitPrice, pnlUsdc float64) {
	eb.Publish(Event{
		Type: EventPositionClosed,
		Data: map[string]interface{}{
			"position_id": positionID,
			"asset":       asset,
			"exit_reason": exitReason,
			"entry_price": entryPrice,
			"exit_price":  exitPrice,
			"pnl_usdc":    pnlUsdc,
		},
	})
}

// PublishPredictionRejected publishes a filter-rejection event.
func (eb *EventBus) PublishPredictionRejected(asset, timeframe, reason string) {
	eb.Publish(Event{
		Type: EventPredictionRejected,
		Data: map[string]interface{}{
			"asset":     asset,
			"timeframe": timeframe,
			"reason":    reason,
		},
	})
}

// PublishError publishes a structured error/warning event.
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{Type: EventError, Data: data})
}
