package telemetry

import (
	"strconv"
	"strings"
	"testing"

	"github.com/splitkit/splitkit-go/internal/engine"
)

func TestValidateEvent_AcceptsValidType(t *testing.T) {
	ev := engine.Event{EventType: "purchase.completed"}
	if err := ValidateEvent(ev); err != nil {
		t.Errorf("ValidateEvent() error = %v, want nil", err)
	}
}

func TestValidateEvent_RejectsInvalidType(t *testing.T) {
	ev := engine.Event{EventType: "-starts-with-dash"}
	if err := ValidateEvent(ev); err != ErrInvalidEventType {
		t.Errorf("ValidateEvent() error = %v, want ErrInvalidEventType", err)
	}
}

func TestValidateEvent_RejectsTooManyProperties(t *testing.T) {
	props := make(map[string]any, 301)
	for i := 0; i < 301; i++ {
		props["k"+strconv.Itoa(i)] = i
	}
	ev := engine.Event{EventType: "valid_type", Properties: props}
	if err := ValidateEvent(ev); err != ErrTooManyProperties {
		t.Errorf("ValidateEvent() error = %v, want ErrTooManyProperties", err)
	}
}

func TestValidateEvent_RejectsOversizedProperties(t *testing.T) {
	ev := engine.Event{EventType: "valid_type", Properties: map[string]any{
		"blob": strings.Repeat("x", MaxPropertiesBytes),
	}}
	if err := ValidateEvent(ev); err != ErrPropertiesTooLarge {
		t.Errorf("ValidateEvent() error = %v, want ErrPropertiesTooLarge", err)
	}
}

func TestEventQueue_PushAndDrain(t *testing.T) {
	q := NewEventQueue(10, nil)
	ok, err := q.Push(engine.Event{EventType: "purchase"})
	if err != nil || !ok {
		t.Fatalf("Push() = (%v, %v), want (true, nil)", ok, err)
	}
	items := q.Drain()
	if len(items) != 1 {
		t.Fatalf("Drain() = %v, want one event", items)
	}
}

func TestEventQueue_RejectsInvalidEventWithoutQueueing(t *testing.T) {
	q := NewEventQueue(10, nil)
	ok, err := q.Push(engine.Event{EventType: ""})
	if ok || err == nil {
		t.Errorf("Push(invalid) = (%v, %v), want (false, non-nil error)", ok, err)
	}
	if items := q.Drain(); len(items) != 0 {
		t.Errorf("invalid events must not be queued, got %v", items)
	}
}

func TestEventQueue_DropsWhenFull(t *testing.T) {
	q := NewEventQueue(1, nil)
	ok1, _ := q.Push(engine.Event{EventType: "a"})
	ok2, _ := q.Push(engine.Event{EventType: "b"})
	if !ok1 {
		t.Error("first push into an empty queue should succeed")
	}
	if ok2 {
		t.Error("push into a full queue should report false (dropped)")
	}
	if !q.Full() {
		t.Error("Full() should report true once capacity is reached")
	}
}
