package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan CaptureSuccessEvent, 1)

	unsub := bus.Subscribe(func(e CaptureSuccessEvent) {
		received <- e
	})
	defer unsub()

	event := CaptureSuccessEvent{
		RequestID: "req-1",
		Device:    "/dev/video0",
		Message:   "test",
		ImageData: "data",
		Timestamp: "2025-01-27T10:30:00Z",
	}
	bus.Publish(event)

	got := <-received
	if got.RequestID != event.RequestID {
		t.Errorf("Expected request_id %s, got %s", event.RequestID, got.RequestID)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan PreviewStateChangedEvent, 1)
	received2 := make(chan PreviewStateChangedEvent, 1)

	unsub1 := bus.Subscribe(func(e PreviewStateChangedEvent) {
		received1 <- e
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(e PreviewStateChangedEvent) {
		received2 <- e
	})
	defer unsub2()

	bus.Publish(PreviewStateChangedEvent{Device: "synthetic", State: "streaming"})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan CaptureErrorEvent, 1)

	unsub := bus.Subscribe(func(e CaptureErrorEvent) {
		received <- e
	})

	bus.Publish(CaptureErrorEvent{Device: "/dev/video0"})
	<-received

	unsub()

	bus.Publish(CaptureErrorEvent{Device: "/dev/video1"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
		// Expected - no event
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	captureReceived := make(chan bool, 1)
	focusReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ CaptureSuccessEvent) {
		captureReceived <- true
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(_ FocusCompletedEvent) {
		focusReceived <- true
	})
	defer unsub2()

	bus.Publish(CaptureSuccessEvent{Device: "/dev/video0"})
	<-captureReceived

	select {
	case <-focusReceived:
		t.Fatal("Focus subscriber should NOT have received CaptureSuccessEvent")
	case <-time.After(10 * time.Millisecond):
	}

	bus.Publish(FocusCompletedEvent{Success: true})
	<-focusReceived

	select {
	case <-captureReceived:
		t.Fatal("Capture subscriber should NOT have received FocusCompletedEvent")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ CaptureStartedEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				bus.Publish(CaptureStartedEvent{
					RequestID: "req",
					Timestamp: time.Now().Format(time.RFC3339),
				})
			}
		}()
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestBus_AllEventTypes(t *testing.T) {
	bus := New()

	tests := []struct {
		name  string
		event Event
	}{
		{"CaptureSuccess", CaptureSuccessEvent{Device: "/dev/video0"}},
		{"CaptureError", CaptureErrorEvent{Device: "/dev/video0"}},
		{"CaptureStarted", CaptureStartedEvent{RequestID: "req"}},
		{"PreviewStateChanged", PreviewStateChangedEvent{State: "idle"}},
		{"FocusCompleted", FocusCompletedEvent{Success: true}},
		{"ParametersChanged", ParametersChangedEvent{Quality: 90}},
		{"LogEntry", LogEntryEvent{Message: "hello"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(_ *testing.T) {
			received := make(chan Event, 1)

			var unsub func()
			switch tt.event.(type) {
			case CaptureSuccessEvent:
				unsub = bus.Subscribe(func(e CaptureSuccessEvent) { received <- e })
			case CaptureErrorEvent:
				unsub = bus.Subscribe(func(e CaptureErrorEvent) { received <- e })
			case CaptureStartedEvent:
				unsub = bus.Subscribe(func(e CaptureStartedEvent) { received <- e })
			case PreviewStateChangedEvent:
				unsub = bus.Subscribe(func(e PreviewStateChangedEvent) { received <- e })
			case FocusCompletedEvent:
				unsub = bus.Subscribe(func(e FocusCompletedEvent) { received <- e })
			case ParametersChangedEvent:
				unsub = bus.Subscribe(func(e ParametersChangedEvent) { received <- e })
			case LogEntryEvent:
				unsub = bus.Subscribe(func(e LogEntryEvent) { received <- e })
			}
			defer unsub()

			bus.Publish(tt.event)
			<-received
		})
	}
}

func TestBus_UnknownHandlerIsNoop(_ *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	unsub()
}

func TestEventJSONSerialization(t *testing.T) {
	tests := []struct {
		name  string
		event any
	}{
		{
			"CaptureSuccessEvent",
			CaptureSuccessEvent{
				RequestID: "req-1",
				Device:    "/dev/video0",
				Message:   "Success",
				ImageData: "base64data",
				Width:     1280,
				Height:    960,
				Timestamp: "2025-01-27T10:30:00Z",
			},
		},
		{
			"PreviewStateChangedEvent",
			PreviewStateChangedEvent{
				Device:    "/dev/video0",
				State:     "streaming",
				Timestamp: "2025-01-27T10:30:00Z",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("Failed to marshal: %v", err)
			}

			var result map[string]any
			if unmarshalErr := json.Unmarshal(data, &result); unmarshalErr != nil {
				t.Fatalf("Failed to unmarshal: %v", unmarshalErr)
			}

			if len(result) == 0 {
				t.Fatal("Unmarshaled to empty object")
			}
		})
	}
}

func TestPreviewStateChangedEvent_IsStreaming(t *testing.T) {
	if !(PreviewStateChangedEvent{State: "streaming"}).IsStreaming() {
		t.Error("Expected streaming state to report streaming")
	}
	if (PreviewStateChangedEvent{State: "idle"}).IsStreaming() {
		t.Error("Expected idle state not to report streaming")
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)

	unsub := SubscribeToChannel[CaptureSuccessEvent](bus, ch)
	defer unsub()

	event := CaptureSuccessEvent{
		Device:  "/dev/video0",
		Message: "test",
	}
	bus.Publish(event)

	received := <-ch
	captureEvent, ok := received.(CaptureSuccessEvent)
	if !ok {
		t.Fatalf("Expected CaptureSuccessEvent, got %T", received)
	}
	if captureEvent.Device != event.Device {
		t.Errorf("Expected device %s, got %s", event.Device, captureEvent.Device)
	}
}

func TestSubscribeToChannel_NonBlocking(_ *testing.T) {
	bus := New()
	ch := make(chan any) // No buffer

	unsub := SubscribeToChannel[FocusCompletedEvent](bus, ch)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(FocusCompletedEvent{Success: true})
		done <- true
	}()

	<-done // Should complete without blocking
}
