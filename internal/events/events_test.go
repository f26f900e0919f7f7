package events

import (
	"errors"
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for event")
		return nil
	}
}

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventProgress)
	bus.PublishProgress("download", "proj", 1, 4)

	progress, ok := receive(t, ch).(*ProgressEvent)
	if !ok {
		t.Fatal("Expected ProgressEvent")
	}
	if progress.Operation != "download" || progress.Label != "proj" {
		t.Errorf("unexpected event %+v", progress)
	}
	if progress.Fraction() != 0.25 {
		t.Errorf("Expected fraction 0.25, got %f", progress.Fraction())
	}
}

func TestEventBus_TypeFiltering(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	errCh := bus.Subscribe(EventError)
	all := bus.SubscribeAll()

	bus.PublishStarted("delete", "tmp", 2)
	bus.PublishError("delete", "tmp", 1, errors.New("boom"), false)

	if ev := receive(t, all); ev.Type() != EventStarted {
		t.Errorf("Expected started first, got %s", ev.Type())
	}
	if ev := receive(t, all); ev.Type() != EventError {
		t.Errorf("Expected error second, got %s", ev.Type())
	}

	ev, ok := receive(t, errCh).(*ErrorEvent)
	if !ok {
		t.Fatal("Expected ErrorEvent")
	}
	if ev.Done != 1 || ev.Error == nil {
		t.Errorf("unexpected event %+v", ev)
	}
	select {
	case extra := <-errCh:
		t.Errorf("error subscriber got unrelated event %s", extra.Type())
	default:
	}
}

func TestEventBus_MultipleSubscribers(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch1 := bus.Subscribe(EventConfigChanged)
	ch2 := bus.Subscribe(EventConfigChanged)

	bus.PublishConfigChanged("/tmp/brocoli.ini", "default", []string{"default", "s3"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		ev, ok := receive(t, ch).(*ConfigChangedEvent)
		if !ok {
			t.Fatal("Expected ConfigChangedEvent")
		}
		if ev.DefaultConnection != "default" || len(ev.Connections) != 2 {
			t.Errorf("unexpected event %+v", ev)
		}
	}
}

func TestEventBus_DropsWhenFull(t *testing.T) {
	bus := NewEventBus(1)
	defer bus.Close()

	_ = bus.Subscribe(EventComplete)
	bus.PublishComplete("upload", "a", 1, time.Second)
	bus.PublishComplete("upload", "b", 1, time.Second)
	bus.PublishComplete("upload", "c", 1, time.Second)

	if got := bus.DroppedEvents(); got != 2 {
		t.Errorf("Expected 2 dropped events, got %d", got)
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventProgress)
	bus.Unsubscribe(ch)
	bus.PublishProgress("download", "x", 1, 1)

	select {
	case <-ch:
		t.Error("unsubscribed channel received an event")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestEventBus_Close(t *testing.T) {
	bus := NewEventBus(10)
	ch := bus.SubscribeAll()
	bus.Close()
	bus.Close() // idempotent

	if _, ok := <-ch; ok {
		t.Error("Expected closed channel")
	}

	late := bus.Subscribe(EventProgress)
	if _, ok := <-late; ok {
		t.Error("Subscribe after Close should return a closed channel")
	}

	// Publishing after close must not panic
	bus.PublishProgress("download", "x", 1, 1)

	var nilBus *EventBus
	nilBus.PublishProgress("download", "x", 1, 1)
}
