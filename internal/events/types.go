package events

// Event type constants for kelindar/event.
const (
	TypeCaptureSuccess uint32 = iota + 1
	TypeCaptureError
	TypeCaptureStarted
	TypePreviewStateChanged
	TypeFocusCompleted
	TypeParametersChanged
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// CaptureStartedEvent is published when the preview worker begins a still capture.
type CaptureStartedEvent struct {
	RequestID string `json:"request_id" example:"5f0c6f1e-8d2b-4b8e-9a43-1b7f3d2e9c10" doc:"Picture request identifier"`
	Device    string `json:"device" example:"/dev/video0" doc:"Capture device"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CaptureStartedEvent.
func (e CaptureStartedEvent) Type() uint32 { return TypeCaptureStarted }

// CaptureSuccessEvent carries an encoded picture.
type CaptureSuccessEvent struct {
	RequestID string `json:"request_id" example:"5f0c6f1e-8d2b-4b8e-9a43-1b7f3d2e9c10" doc:"Picture request identifier"`
	Device    string `json:"device" example:"/dev/video0" doc:"Capture device"`
	Message   string `json:"message" example:"Picture captured successfully" doc:"Message"`
	ImageData string `json:"image_data" doc:"Base64-encoded JPEG"`
	Width     int    `json:"width" example:"1280" doc:"Picture width"`
	Height    int    `json:"height" example:"960" doc:"Picture height"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Capture timestamp"`
}

// Type returns the event type identifier for CaptureSuccessEvent.
func (e CaptureSuccessEvent) Type() uint32 { return TypeCaptureSuccess }

// CaptureErrorEvent represents a failed still capture.
type CaptureErrorEvent struct {
	RequestID string `json:"request_id" example:"5f0c6f1e-8d2b-4b8e-9a43-1b7f3d2e9c10" doc:"Picture request identifier"`
	Device    string `json:"device" example:"/dev/video0" doc:"Capture device"`
	Message   string `json:"message" example:"Picture capture failed" doc:"Error message"`
	Error     string `json:"error" example:"configuration rejected" doc:"Detailed error description"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Error timestamp"`
}

// Type returns the event type identifier for CaptureErrorEvent.
func (e CaptureErrorEvent) Type() uint32 { return TypeCaptureError }

// PreviewStateChangedEvent represents a preview worker transition.
// Used for LED control and other reactive subsystems.
type PreviewStateChangedEvent struct {
	Device    string `json:"device" example:"/dev/video0" doc:"Capture device"`
	State     string `json:"state" example:"streaming" enum:"idle,streaming,dead" doc:"New worker state"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PreviewStateChangedEvent.
func (e PreviewStateChangedEvent) Type() uint32 { return TypePreviewStateChanged }

// IsStreaming reports whether the preview is running after the transition.
func (e PreviewStateChangedEvent) IsStreaming() bool {
	return e.State == "streaming"
}

// FocusCompletedEvent is published when an autofocus run finishes.
type FocusCompletedEvent struct {
	Device    string `json:"device" example:"/dev/video0" doc:"Capture device"`
	Success   bool   `json:"success" example:"true" doc:"Whether focus was achieved"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FocusCompletedEvent.
func (e FocusCompletedEvent) Type() uint32 { return TypeFocusCompleted }

// ParametersChangedEvent is published after camera parameters are replaced.
type ParametersChangedEvent struct {
	Device    string `json:"device" example:"/dev/video0" doc:"Capture device"`
	Quality   int    `json:"quality" example:"90" doc:"Picture quality now in effect"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ParametersChangedEvent.
func (e ParametersChangedEvent) Type() uint32 { return TypeParametersChanged }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"api" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
