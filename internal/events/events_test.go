package events

import (
	"testing"
	"time"
)

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventStateChange)

	bus.PublishStateChange("LoadingSpecs", "LoadingSpec", "spec demo")

	select {
	case received := <-ch:
		state, ok := received.(*StateChangeEvent)
		if !ok {
			t.Fatal("Expected StateChangeEvent")
		}
		if state.NewState != "LoadingSpec" {
			t.Errorf("Expected new state 'LoadingSpec', got '%s'", state.NewState)
		}
		if state.Detail != "spec demo" {
			t.Errorf("Expected detail 'spec demo', got '%s'", state.Detail)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for event")
	}
}

func TestEventBus_DifferentEventTypes(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	pendingCh := bus.Subscribe(EventPendingRequests)
	warningCh := bus.Subscribe(EventInputWarning)

	bus.PublishPendingRequests(2)

	select {
	case event := <-pendingCh:
		if got := event.(*PendingRequestsEvent).Count; got != 2 {
			t.Errorf("Expected count 2, got %d", got)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Pending subscriber didn't receive event")
	}

	select {
	case <-warningCh:
		t.Error("Warning subscriber received wrong event type")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBus_SubscribeAll(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	allCh := bus.SubscribeAll()

	bus.PublishInputWarning("opt", "reset")
	bus.PublishJobStatus("job-1", "running")

	count := 0
	for i := 0; i < 2; i++ {
		select {
		case <-allCh:
			count++
		case <-time.After(100 * time.Millisecond):
		}
	}

	if count != 2 {
		t.Errorf("Expected to receive 2 events, got %d", count)
	}
}

func TestEventBus_NonBlocking(t *testing.T) {
	bus := NewEventBus(2)
	defer bus.Close()

	ch := bus.Subscribe(EventPendingRequests)

	for i := 0; i < 10; i++ {
		bus.PublishPendingRequests(i)
	}

	count := 0
	for {
		select {
		case <-ch:
			count++
			continue
		case <-time.After(10 * time.Millisecond):
		}
		break
	}

	if count != 2 {
		t.Errorf("Expected 2 buffered events, got %d", count)
	}
	if dropped := bus.DroppedEventCount(); dropped != 8 {
		t.Errorf("Expected 8 dropped events, got %d", dropped)
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventJobStatus)
	bus.Unsubscribe(EventJobStatus, ch)
	bus.PublishJobStatus("job-1", "finished")

	select {
	case <-ch:
		t.Error("Unsubscribed channel received an event")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestEventBus_Close(t *testing.T) {
	bus := NewEventBus(10)

	ch := bus.Subscribe(EventLog)

	bus.Close()

	if _, ok := <-ch; ok {
		t.Error("Channel should be closed after bus.Close()")
	}

	// Publishing after close should not panic
	bus.PublishLog(InfoLevel, "late", nil)
}

func TestEventBus_NilIsSafe(t *testing.T) {
	var bus *EventBus
	bus.PublishPendingRequests(1)
}

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("Level %d: expected %s, got %s", tt.level, tt.expected, got)
		}
	}
}
