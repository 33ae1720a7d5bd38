package events

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultBufferSize = 256
	maxBufferSize     = 4096
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventLog             EventType = "log"
	EventStateChange     EventType = "state_change"
	EventPendingRequests EventType = "pending_requests"
	EventInputWarning    EventType = "input_warning"
	EventJobStatus       EventType = "job_status"
	EventJobOutput       EventType = "job_output"
)

// LogLevel defines log severity levels
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

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

// LogEvent represents log messages
type LogEvent struct {
	BaseEvent
	Level   LogLevel
	Message string
	Error   error
}

// StateChangeEvent is published whenever the submission workflow changes state.
type StateChangeEvent struct {
	BaseEvent
	OldState string
	NewState string
	// Detail is a short description of the new state, e.g. the step being
	// loaded or the error that stopped it.
	Detail string
}

// PendingRequestsEvent reports the number of backend requests in flight.
type PendingRequestsEvent struct {
	BaseEvent
	Count int
}

// InputWarningEvent carries a one-shot coercion warning for an input.
type InputWarningEvent struct {
	BaseEvent
	InputID string
	Message string
}

// JobStatusEvent is a job status change received from the server.
type JobStatusEvent struct {
	BaseEvent
	JobID  string
	Status string
}

// JobOutputEvent is a chunk written to a job's stdout or stderr.
type JobOutputEvent struct {
	BaseEvent
	JobID  string
	Stream string
	Data   []byte
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if bufferSize > maxBufferSize {
		bufferSize = maxBufferSize
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
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

// Publish sends an event to all subscribers without blocking. Events for a
// full subscriber are dropped and counted.
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

// PublishLog is a convenience method for publishing log events
func (eb *EventBus) PublishLog(level LogLevel, message string, err error) {
	eb.Publish(&LogEvent{
		BaseEvent: BaseEvent{EventType: EventLog, Time: time.Now()},
		Level:     level,
		Message:   message,
		Error:     err,
	})
}

// PublishStateChange is a convenience method for publishing state change events
func (eb *EventBus) PublishStateChange(oldState, newState, detail string) {
	eb.Publish(&StateChangeEvent{
		BaseEvent: BaseEvent{EventType: EventStateChange, Time: time.Now()},
		OldState:  oldState,
		NewState:  newState,
		Detail:    detail,
	})
}

// PublishPendingRequests reports the current number of in-flight requests.
func (eb *EventBus) PublishPendingRequests(count int) {
	eb.Publish(&PendingRequestsEvent{
		BaseEvent: BaseEvent{EventType: EventPendingRequests, Time: time.Now()},
		Count:     count,
	})
}

// PublishInputWarning publishes a coercion warning for one input.
func (eb *EventBus) PublishInputWarning(inputID, message string) {
	eb.Publish(&InputWarningEvent{
		BaseEvent: BaseEvent{EventType: EventInputWarning, Time: time.Now()},
		InputID:   inputID,
		Message:   message,
	})
}

// PublishJobStatus publishes a job status change.
func (eb *EventBus) PublishJobStatus(jobID, status string) {
	eb.Publish(&JobStatusEvent{
		BaseEvent: BaseEvent{EventType: EventJobStatus, Time: time.Now()},
		JobID:     jobID,
		Status:    status,
	})
}

// PublishJobOutput publishes a chunk of job output.
func (eb *EventBus) PublishJobOutput(jobID, stream string, data []byte) {
	eb.Publish(&JobOutputEvent{
		BaseEvent: BaseEvent{EventType: EventJobOutput, Time: time.Now()},
		JobID:     jobID,
		Stream:    stream,
		Data:      append([]byte(nil), data...),
	})
}

// Unsubscribe removes a subscription channel from a specific event type
func (eb *EventBus) Unsubscribe(eventType EventType, ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	subscribers := eb.subscribers[eventType]
	for i, subCh := range subscribers {
		if subCh == ch {
			subscribers[i] = subscribers[len(subscribers)-1]
			eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
			break
		}
	}
}

// UnsubscribeAll removes a subscription channel from all event types
func (eb *EventBus) UnsubscribeAll(ch <-chan Event) {
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

// DroppedEventCount returns the total number of events dropped due to full buffers
func (eb *EventBus) DroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}
