package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/camerapipe/internal/events"
)

// registerSSERoutes registers the camera event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of picture results, preview state changes, focus results and parameter changes",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"capture-started":       events.CaptureStartedEvent{},
		"capture-success":       events.CaptureSuccessEvent{},
		"capture-error":         events.CaptureErrorEvent{},
		"preview-state-changed": events.PreviewStateChangedEvent{},
		"focus-completed":       events.FocusCompletedEvent{},
		"parameters-changed":    events.ParametersChangedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Pictures are large; keep a few in flight per client.
		eventCh := make(chan any, 16)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.CaptureStartedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CaptureSuccessEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CaptureErrorEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.PreviewStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.FocusCompletedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ParametersChangedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// The current state lets a client render without waiting for a change.
		if err := send.Data(events.PreviewStateChangedEvent{
			Device:    s.camera.Name(),
			State:     s.camera.State().String(),
			Timestamp: timestamp(),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
