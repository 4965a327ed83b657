package led

import (
	"log/slog"
	"sync"

	"github.com/smazurov/camerapipe/internal/events"
)

// DefaultLED is the LED the manager drives when none is named.
const DefaultLED = "system"

// Manager mirrors camera state on an LED: solid while previewing, blinking
// while idle, heartbeat during a still capture and off once the worker is
// gone.
type Manager struct {
	controller Controller
	eventBus   *events.Bus
	logger     *slog.Logger
	led        string

	unsubscribe []func()

	mu        sync.Mutex
	state     string
	capturing map[string]bool // request id -> in progress
}

// NewManager creates a manager for the named LED; an empty name means
// DefaultLED.
func NewManager(controller Controller, eventBus *events.Bus, logger *slog.Logger, led string) *Manager {
	if led == "" {
		led = DefaultLED
	}
	return &Manager{
		controller: controller,
		eventBus:   eventBus,
		logger:     logger,
		led:        led,
		state:      "idle",
		capturing:  make(map[string]bool),
	}
}

// Start subscribes to preview and capture events.
func (m *Manager) Start() {
	m.unsubscribe = append(m.unsubscribe,
		m.eventBus.Subscribe(func(e events.PreviewStateChangedEvent) {
			m.mu.Lock()
			m.state = e.State
			m.mu.Unlock()
			m.logger.Debug("Preview state changed", "device", e.Device, "state", e.State)
			m.update()
		}),
		m.eventBus.Subscribe(func(e events.CaptureStartedEvent) {
			m.mu.Lock()
			m.capturing[e.RequestID] = true
			m.mu.Unlock()
			m.update()
		}),
		m.eventBus.Subscribe(func(e events.CaptureSuccessEvent) {
			m.captureDone(e.RequestID)
		}),
		m.eventBus.Subscribe(func(e events.CaptureErrorEvent) {
			m.captureDone(e.RequestID)
		}),
	)
	m.logger.Info("LED manager started", "led", m.led)
	m.update()
}

// Stop unsubscribes from events.
func (m *Manager) Stop() {
	for _, unsub := range m.unsubscribe {
		unsub()
	}
	m.unsubscribe = nil
	m.logger.Info("LED manager stopped")
}

func (m *Manager) captureDone(id string) {
	m.mu.Lock()
	delete(m.capturing, id)
	m.mu.Unlock()
	m.update()
}

// update shows the indicator for the current state. It holds the lock
// while calling the controller so indicators are applied in event order.
func (m *Manager) update() {
	m.mu.Lock()
	defer m.mu.Unlock()

	ind := Blink
	switch {
	case m.state == "dead":
		ind = Off
	case len(m.capturing) > 0:
		ind = Heartbeat
	case m.state == "streaming":
		ind = Solid
	}

	if err := m.controller.Show(m.led, ind); err != nil {
		m.logger.Warn("Failed to set LED", "led", m.led, "indicator", string(ind), "error", err)
		return
	}
	m.logger.Debug("LED updated", "led", m.led, "indicator", string(ind))
}

// GetController returns the controller the manager drives.
func (m *Manager) GetController() Controller {
	return m.controller
}
