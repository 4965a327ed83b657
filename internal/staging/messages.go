package staging

import (
	"github.com/smazurov/camerapipe/internal/buffers"
	"github.com/smazurov/camerapipe/internal/capture"
	"github.com/smazurov/camerapipe/internal/sink"
)

// Latch is closed by a stage once its client callback has returned, or
// when its message was never delivered. Later stages wait on it before
// invoking their own callback.
type Latch chan struct{}

// NewLatch returns an open latch.
func NewLatch() Latch { return make(Latch) }

// Closed returns a latch that is already released.
func Closed() Latch {
	l := make(Latch)
	close(l)
	return l
}

// ShutterMessage asks the shutter stage to notify the client.
type ShutterMessage struct {
	Shutter capture.ShutterFunc
	Cookie  any
	Done    Latch
}

// RawMessage hands the raw frame to the client raw callback.
type RawMessage struct {
	Frame  *capture.Frame
	Raw    capture.RawFunc
	Cookie any
	After  Latch
	Done   Latch
}

// ProcessMessage carries the raw frame through resample, filter and
// encode. The frame is owned by the message and released by the stage.
type ProcessMessage struct {
	Frame    *capture.Frame
	Settings capture.Settings
	Encoded  capture.EncodedFunc
	Cookie   any
	After    Latch
	// Finish runs last, after the frame is released.
	Finish func(error)
}

// SnapshotMessage asks for a freeze-frame of the raw picture on the
// display. Pool is the preview pool the sink is bound to.
type SnapshotMessage struct {
	Frame *capture.Frame
	Pool  *buffers.Pool
	Sink  sink.Port
	Done  Latch
}
