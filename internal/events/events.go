// Package events is the in-process pub/sub used to tell front ends about
// catalog operations and preference changes without coupling them to the
// code doing the work.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rescale/brocoli/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventStarted       EventType = "operation_started"
	EventProgress      EventType = "operation_progress"
	EventError         EventType = "operation_failed"
	EventComplete      EventType = "operation_complete"
	EventConfigChanged EventType = "config_changed" // profile file rewritten, open catalogs may be stale
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

func base(t EventType) BaseEvent {
	return BaseEvent{EventType: t, Time: time.Now()}
}

// StartedEvent announces a bulk operation before its first item.
type StartedEvent struct {
	BaseEvent
	Operation string // "download", "upload", "delete", ...
	Label     string
	Total     int
}

// ProgressEvent reports one completed item of a bulk operation.
type ProgressEvent struct {
	BaseEvent
	Operation string
	Label     string
	Done      int
	Total     int
}

// Fraction returns Done/Total in [0, 1].
func (e ProgressEvent) Fraction() float64 {
	if e.Total <= 0 {
		return 1
	}
	return float64(e.Done) / float64(e.Total)
}

// ErrorEvent reports the failure that ended an operation.
type ErrorEvent struct {
	BaseEvent
	Operation string
	Label     string
	Done      int
	Error     error
	Retryable bool
}

// CompleteEvent reports a finished operation.
type CompleteEvent struct {
	BaseEvent
	Operation string
	Label     string
	Items     int
	Duration  time.Duration
}

// ConfigChangedEvent is published after the profile file was written.
type ConfigChangedEvent struct {
	BaseEvent
	Path              string
	DefaultConnection string
	Connections       []string
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers. It never blocks: a full
// subscriber buffer drops the event and bumps the dropped counter.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}

	for _, ch := range eb.all {
		close(ch)
	}
}

// Unsubscribe removes ch from every event type and from the all-events list.
// The channel is not closed.
func (eb *EventBus) Unsubscribe(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	for eventType, subscribers := range eb.subscribers {
		for i, subCh := range subscribers {
			if subCh == ch {
				subscribers[i] = subscribers[len(subscribers)-1]
				eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
				break
			}
		}
	}

	for i, subCh := range eb.all {
		if subCh == ch {
			eb.all[i] = eb.all[len(eb.all)-1]
			eb.all = eb.all[:len(eb.all)-1]
			break
		}
	}
}

// DroppedEvents returns the number of events dropped due to full buffers.
func (eb *EventBus) DroppedEvents() int64 {
	return eb.droppedEvents.Load()
}

// PublishStarted is a convenience method for publishing started events
func (eb *EventBus) PublishStarted(operation, label string, total int) {
	eb.Publish(&StartedEvent{BaseEvent: base(EventStarted), Operation: operation, Label: label, Total: total})
}

// PublishProgress is a convenience method for publishing progress events
func (eb *EventBus) PublishProgress(operation, label string, done, total int) {
	eb.Publish(&ProgressEvent{BaseEvent: base(EventProgress), Operation: operation, Label: label, Done: done, Total: total})
}

// PublishError is a convenience method for publishing error events
func (eb *EventBus) PublishError(operation, label string, done int, err error, retryable bool) {
	eb.Publish(&ErrorEvent{BaseEvent: base(EventError), Operation: operation, Label: label, Done: done, Error: err, Retryable: retryable})
}

// PublishComplete is a convenience method for publishing completion events
func (eb *EventBus) PublishComplete(operation, label string, items int, d time.Duration) {
	eb.Publish(&CompleteEvent{BaseEvent: base(EventComplete), Operation: operation, Label: label, Items: items, Duration: d})
}

// PublishConfigChanged is a convenience method for publishing config changes
func (eb *EventBus) PublishConfigChanged(path, defaultConnection string, connections []string) {
	eb.Publish(&ConfigChangedEvent{
		BaseEvent:         base(EventConfigChanged),
		Path:              path,
		DefaultConnection: defaultConnection,
		Connections:       connections,
	})
}
