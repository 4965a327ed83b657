// Package device abstracts the capture device buffer queue.
//
// A Port is driven by exactly one goroutine, the preview worker, and does no
// concurrency of its own. Enqueue hands a Free buffer to the device and
// Dequeue blocks until the device has filled one, returning it Free.
package device

import (
	"errors"

	"github.com/smazurov/camerapipe/internal/buffers"
)

var (
	// ErrRejected is returned by Configure when the device cannot honor a format.
	ErrRejected = errors.New("device rejected format")
	// ErrIO wraps queue and dequeue failures reported by the device.
	ErrIO = errors.New("device i/o error")
	// ErrNoBuffers is returned by Dequeue when nothing is queued to the device.
	ErrNoBuffers = errors.New("no buffers queued to device")
	// ErrNotStreaming is returned by Dequeue outside StartStreaming/StopStreaming.
	ErrNotStreaming = errors.New("device is not streaming")
	// ErrNotBound is returned when buffers are queued before Bind.
	ErrNotBound = errors.New("device has no buffer pool")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("device closed")
)

// Port is the capture device boundary.
type Port interface {
	// Configure sets the capture format and frame rate.
	Configure(format buffers.Format, fps int) error
	// MinBuffers is the number of buffers the device needs to stream.
	MinBuffers() int
	// Bind attaches the pool that subsequent buffer IDs refer to.
	Bind(pool *buffers.Pool) error
	StartStreaming() error
	// StopStreaming returns every device-held buffer to Free.
	StopStreaming() error
	// Enqueue moves a buffer from Free to HeldByDevice.
	Enqueue(id buffers.ID) error
	// Dequeue blocks until a frame is ready and returns its buffer as Free.
	Dequeue() (buffers.ID, error)
	// Close releases the device and unblocks a pending Dequeue.
	Close() error
}

// Info describes a capture device for the inspect command and the API.
type Info struct {
	Path    string       `json:"path"`
	Driver  string       `json:"driver"`
	Card    string       `json:"card"`
	BusInfo string       `json:"bus_info"`
	Formats []FormatInfo `json:"formats"`
}

// FormatInfo lists the sizes and frame rates a device offers for one pixel format.
type FormatInfo struct {
	FourCC string     `json:"fourcc"`
	Sizes  []SizeInfo `json:"sizes"`
}

// SizeInfo is one discrete frame size.
type SizeInfo struct {
	Width      int   `json:"width"`
	Height     int   `json:"height"`
	FrameRates []int `json:"frame_rates,omitempty"`
}
