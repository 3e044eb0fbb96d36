package telemetry

import (
	"encoding/json"
	"errors"
	"regexp"

	"github.com/splitkit/splitkit-go/internal/engine"
)

// eventTypePattern matches the reference SDK's event-type validation
// rule: starts alphanumeric, then up to 79 more characters drawn from
// alphanumerics, dash, underscore, period, and colon.
var eventTypePattern = regexp.MustCompile(`^[a-zA-Z0-9][-_.:a-zA-Z0-9]{0,79}$`)

// MaxPropertiesBytes is the maximum encoded size of an event's properties
// map before Track rejects it.
const MaxPropertiesBytes = 32768

var (
	ErrInvalidEventType     = errors.New("telemetry: event type must match ^[a-zA-Z0-9][-_.:a-zA-Z0-9]{0,79}$")
	ErrPropertiesTooLarge   = errors.New("telemetry: event properties exceed 32768 bytes")
	ErrTooManyProperties    = errors.New("telemetry: event properties exceed 300 entries")
)

const maxPropertyCount = 300

// ValidateEvent checks an event against the same constraints the
// reference SDK's Track() input validator enforces, before it is handed
// to the queue.
func ValidateEvent(ev engine.Event) error {
	if !eventTypePattern.MatchString(ev.EventType) {
		return ErrInvalidEventType
	}
	if len(ev.Properties) > maxPropertyCount {
		return ErrTooManyProperties
	}
	if len(ev.Properties) == 0 {
		return nil
	}
	encoded, err := json.Marshal(ev.Properties)
	if err != nil {
		return err
	}
	if len(encoded) > MaxPropertiesBytes {
		return ErrPropertiesTooLarge
	}
	return nil
}

// EventQueue buffers validated events until Drain is called by the
// periodic flush loop. Once the queue reaches its capacity, further
// events are dropped until the next Drain.
type EventQueue struct {
	capacity int
	items    []engine.Event
	metrics  *Metrics
}

// NewEventQueue constructs a queue with the given capacity.
func NewEventQueue(capacity int, metrics *Metrics) *EventQueue {
	return &EventQueue{capacity: capacity, metrics: metrics}
}

// Push validates and appends an event, returning false if the queue was
// full (the event is dropped, matching the reference SDK's fire-and-forget
// Track semantics) or the event failed validation.
func (q *EventQueue) Push(ev engine.Event) (bool, error) {
	if err := ValidateEvent(ev); err != nil {
		return false, err
	}
	if len(q.items) >= q.capacity {
		if q.metrics != nil {
			q.metrics.EventsDropped.Inc()
		}
		return false, nil
	}
	q.items = append(q.items, ev)
	if q.metrics != nil {
		q.metrics.EventsQueued.Inc()
	}
	return true, nil
}

// Full reports whether the queue is at capacity.
func (q *EventQueue) Full() bool {
	return len(q.items) >= q.capacity
}

// Drain returns and clears the buffered events.
func (q *EventQueue) Drain() []engine.Event {
	out := q.items
	q.items = nil
	return out
}
