package telemetry

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a lifecycle notification emitted by the engine.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// PlanID is the associated plan ID, if applicable.
	PlanID string `json:"plan_id,omitempty"`

	// RunID is the associated apply run ID, if applicable.
	RunID string `json:"run_id,omitempty"`

	// Model is the associated model name, if applicable.
	Model string `json:"model,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Event types emitted by the engine.
const (
	EventTypePlanGenerated      = "plan.generated"
	EventTypePlanInvalid        = "plan.invalid"
	EventTypeApplyStarted       = "apply.started"
	EventTypeApplyCompleted     = "apply.completed"
	EventTypeApplyFailed        = "apply.failed"
	EventTypeOperationCompleted = "operation.completed"
	EventTypeOperationFailed    = "operation.failed"
	EventTypeDriftDetected      = "drift.detected"
	EventTypePolicyViolation    = "policy.violation"
)

// Event severity levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber handles published events.
type EventSubscriber func(event Event)

// EventBus fans events out to subscribers. Delivery is synchronous and in
// subscription order; subscribers must not block.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []EventSubscriber
}

// NewEventBus creates an empty event bus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers a subscriber for all future events.
func (b *EventBus) Subscribe(sub EventSubscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, sub)
}

// Publish delivers an event to every subscriber, filling in the ID and
// timestamp when absent.
func (b *EventBus) Publish(event Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}

	b.mu.RLock()
	subs := make([]EventSubscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, sub := range subs {
		sub(event)
	}
}
