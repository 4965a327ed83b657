// Package sink abstracts the display side of the preview pipeline.
package sink

import (
	"errors"
	"image"

	"github.com/smazurov/camerapipe/internal/buffers"
)

var (
	// ErrBusy is returned by Enqueue when the sink cannot accept another buffer.
	ErrBusy = errors.New("sink busy")
	// ErrEmpty is returned by Dequeue when the sink has no buffer to give back.
	ErrEmpty = errors.New("sink empty")
	// ErrNotBound is returned when buffers are queued before Bind.
	ErrNotBound = errors.New("sink has no buffer pool")
)

// Port is the display or recording sink boundary. ErrBusy and ErrEmpty are
// steady-state outcomes, not faults.
type Port interface {
	// BufferCount is the number of buffers the sink wants in the pool.
	BufferCount() int
	Bind(pool *buffers.Pool) error
	// Enqueue moves a buffer from Free to HeldBySink.
	Enqueue(id buffers.ID) error
	// Dequeue returns the oldest displayed buffer as Free.
	Dequeue() (buffers.ID, error)
	// Queued is the number of buffers currently held by the sink.
	Queued() int
	SetCrop(rect image.Rectangle) error
	Resize(width, height int) error
	// Flush returns every sink-held buffer to Free.
	Flush() []buffers.ID
}
