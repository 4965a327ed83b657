package sink

import (
	"fmt"
	"image"
	"sync"

	"github.com/smazurov/camerapipe/internal/buffers"
)

// Frame is a copy of the buffer last put on screen.
type Frame struct {
	Format   buffers.Format
	Data     []byte
	Sequence uint64
}

// Display is an in-memory display surface. It holds up to capacity queued
// buffers and always keeps the most recently queued one on screen, so
// Dequeue only gives back buffers that have been superseded.
type Display struct {
	capacity int

	mu        sync.Mutex
	pool      *buffers.Pool
	queue     []buffers.ID
	crop      image.Rectangle
	width     int
	height    int
	presented uint64
	last      Frame
}

// NewDisplay creates a display that holds up to capacity buffers.
func NewDisplay(capacity int) *Display {
	if capacity < 2 {
		capacity = 2
	}
	return &Display{capacity: capacity}
}

// BufferCount implements Port.
func (d *Display) BufferCount() int {
	return d.capacity
}

// Bind implements Port.
func (d *Display) Bind(pool *buffers.Pool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.queue) > 0 {
		return fmt.Errorf("bind with %d buffers still queued", len(d.queue))
	}
	d.pool = pool
	return nil
}

// Enqueue implements Port.
func (d *Display) Enqueue(id buffers.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pool == nil {
		return ErrNotBound
	}
	if len(d.queue) >= d.capacity {
		return ErrBusy
	}
	if err := d.pool.Transfer(id, buffers.Free, buffers.HeldBySink); err != nil {
		return err
	}
	d.queue = append(d.queue, id)
	d.present(id)
	return nil
}

// Dequeue implements Port.
func (d *Display) Dequeue() (buffers.ID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.queue) < 2 {
		return 0, ErrEmpty
	}
	id := d.queue[0]
	if err := d.pool.Transfer(id, buffers.HeldBySink, buffers.Free); err != nil {
		return 0, err
	}
	d.queue = d.queue[1:]
	return id, nil
}

// Queued implements Port.
func (d *Display) Queued() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// SetCrop implements Port. An empty rectangle shows the whole frame.
func (d *Display) SetCrop(rect image.Rectangle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.crop = rect.Canon()
	return nil
}

// Resize implements Port.
func (d *Display) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid display size %dx%d", width, height)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.width, d.height = width, height
	return nil
}

// Flush implements Port.
func (d *Display) Flush() []buffers.ID {
	d.mu.Lock()
	defer d.mu.Unlock()

	flushed := make([]buffers.ID, 0, len(d.queue))
	for _, id := range d.queue {
		if err := d.pool.Transfer(id, buffers.HeldBySink, buffers.Free); err == nil {
			flushed = append(flushed, id)
		}
	}
	d.queue = d.queue[:0]
	return flushed
}

// Presented returns the number of frames put on screen.
func (d *Display) Presented() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.presented
}

// LastFrame returns a copy of the frame currently on screen, cut to the
// crop rectangle. Packed YUYV and NV12 frames are cropped; other formats
// come back whole.
func (d *Display) LastFrame() (Frame, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.last.Data == nil {
		return Frame{}, false
	}
	f := d.last
	if rect, ok := d.visible(); ok {
		return cropFrame(f, rect), true
	}
	f.Data = append([]byte(nil), d.last.Data...)
	return f, true
}

// visible is the crop clipped to the frame on screen. It reports false
// when the whole frame is visible or the format cannot be cropped.
func (d *Display) visible() (image.Rectangle, bool) {
	f := d.last.Format
	switch f.PixelFormat {
	case buffers.PixelFormatYUYV, buffers.PixelFormatNV12:
	default:
		return image.Rectangle{}, false
	}
	full := image.Rect(0, 0, f.Width, f.Height)
	rect := d.crop.Intersect(full)
	// Chroma is shared by pixel pairs, and by row pairs in NV12.
	rect.Min.X &^= 1
	rect.Min.Y &^= 1
	rect.Max.X = rect.Min.X + rect.Dx()&^1
	rect.Max.Y = rect.Min.Y + rect.Dy()&^1
	if rect.Empty() || rect == full || len(d.last.Data) < f.FrameSize() {
		return image.Rectangle{}, false
	}
	return rect, true
}

func cropFrame(f Frame, rect image.Rectangle) Frame {
	w, h := rect.Dx(), rect.Dy()
	src := f.Data
	stride := f.Format.Width
	var dst []byte

	switch f.Format.PixelFormat {
	case buffers.PixelFormatYUYV:
		dst = make([]byte, 0, w*h*2)
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			row := y*stride*2 + rect.Min.X*2
			dst = append(dst, src[row:row+w*2]...)
		}
	case buffers.PixelFormatNV12:
		dst = make([]byte, 0, w*h*3/2)
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			row := y*stride + rect.Min.X
			dst = append(dst, src[row:row+w]...)
		}
		chroma := stride * f.Format.Height
		for y := rect.Min.Y / 2; y < rect.Max.Y/2; y++ {
			row := chroma + y*stride + rect.Min.X
			dst = append(dst, src[row:row+w]...)
		}
	}

	f.Data = dst
	f.Format.Width, f.Format.Height = w, h
	return f
}

// Crop returns the configured crop rectangle.
func (d *Display) Crop() image.Rectangle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.crop
}

func (d *Display) present(id buffers.ID) {
	data, err := d.pool.Bytes(id)
	if err != nil {
		return
	}
	d.presented++
	if cap(d.last.Data) < len(data) {
		d.last.Data = make([]byte, len(data))
	}
	d.last.Data = d.last.Data[:len(data)]
	copy(d.last.Data, data)
	d.last.Format = d.pool.Format()
	d.last.Sequence = d.presented
}
