package led

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/camerapipe/internal/events"
)

type recordingController struct {
	mu    sync.Mutex
	shows []show
}

type show struct {
	led string
	ind Indicator
}

func (m *recordingController) Show(led string, ind Indicator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shows = append(m.shows, show{led, ind})
	return nil
}

func (m *recordingController) LEDs() []string {
	return []string{"system", "user"}
}

func (m *recordingController) last(t *testing.T) show {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.shows) == 0 {
		t.Fatal("No LED control calls made")
	}
	return m.shows[len(m.shows)-1]
}

func newTestManager(t *testing.T) (*Manager, *recordingController, *events.Bus) {
	t.Helper()
	ctrl := &recordingController{}
	bus := events.New()
	mgr := NewManager(ctrl, bus, slog.New(slog.NewTextHandler(io.Discard, nil)), "")
	mgr.Start()
	t.Cleanup(mgr.Stop)
	return mgr, ctrl, bus
}

func TestManager_StartsBlinking(t *testing.T) {
	_, ctrl, _ := newTestManager(t)

	if call := ctrl.last(t); call.led != DefaultLED || call.ind != Blink {
		t.Errorf("Expected blinking %s LED, got %+v", DefaultLED, call)
	}
}

func TestManager_FollowsPreviewState(t *testing.T) {
	_, ctrl, bus := newTestManager(t)

	tests := []struct {
		state string
		want  Indicator
	}{
		{"streaming", Solid},
		{"idle", Blink},
		{"dead", Off},
	}

	for _, tt := range tests {
		bus.Publish(events.PreviewStateChangedEvent{
			Device:    "/dev/video0",
			State:     tt.state,
			Timestamp: time.Now().Format(time.RFC3339),
		})
		// Give manager time to process
		time.Sleep(20 * time.Millisecond)

		if call := ctrl.last(t); call.ind != tt.want {
			t.Errorf("state %s: got %s, want %s", tt.state, call.ind, tt.want)
		}
	}
}

func TestManager_HeartbeatDuringCapture(t *testing.T) {
	_, ctrl, bus := newTestManager(t)

	bus.Publish(events.PreviewStateChangedEvent{State: "streaming"})
	bus.Publish(events.CaptureStartedEvent{RequestID: "a"})
	time.Sleep(20 * time.Millisecond)
	if call := ctrl.last(t); call.ind != Heartbeat {
		t.Errorf("Expected heartbeat during capture, got %q", call.ind)
	}

	bus.Publish(events.CaptureSuccessEvent{RequestID: "a"})
	time.Sleep(20 * time.Millisecond)
	if call := ctrl.last(t); call.ind != Solid {
		t.Errorf("Expected solid after capture, got %q", call.ind)
	}

	// Each event type has its own subscriber, so keep the pair ordered.
	bus.Publish(events.CaptureStartedEvent{RequestID: "b"})
	time.Sleep(20 * time.Millisecond)
	bus.Publish(events.CaptureErrorEvent{RequestID: "b"})
	time.Sleep(20 * time.Millisecond)
	if call := ctrl.last(t); call.ind != Solid {
		t.Errorf("Expected solid after failed capture, got %q", call.ind)
	}
}

func TestManager_GetController(t *testing.T) {
	ctrl := &recordingController{}
	mgr := NewManager(ctrl, events.New(), slog.New(slog.NewTextHandler(io.Discard, nil)), "act")

	if got := mgr.GetController(); got != ctrl {
		t.Error("GetController() did not return the original controller")
	}
}
