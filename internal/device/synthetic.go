package device

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/camerapipe/internal/buffers"
	"github.com/smazurov/camerapipe/internal/logging"
)

// SyntheticOptions configures a Synthetic device.
type SyntheticOptions struct {
	// MinBuffers defaults to 3.
	MinBuffers int
	// Paced makes Dequeue wait one frame interval between frames.
	Paced bool
	// PixelFormats accepted by Configure. Defaults to YUYV only.
	PixelFormats []uint32
	// MaxWidth and MaxHeight bound accepted sizes. Default 4096x3072.
	MaxWidth  int
	MaxHeight int
	Logger    *slog.Logger
}

// Synthetic is an in-memory capture device that fills queued buffers with
// moving YUYV colour bars. It backs tests, the snapshot command on hosts
// without a camera, and the default server configuration.
type Synthetic struct {
	opts   SyntheticOptions
	logger *slog.Logger

	mu        sync.Mutex
	pool      *buffers.Pool
	format    buffers.Format
	fps       int
	streaming bool
	queue     []buffers.ID
	sequence  uint64
	failNext  int
	failEnq   int
	stall     chan struct{}
	lastFrame time.Time

	closeOnce sync.Once
	closed    chan struct{}
}

// NewSynthetic creates a synthetic device.
func NewSynthetic(opts SyntheticOptions) *Synthetic {
	if opts.MinBuffers <= 0 {
		opts.MinBuffers = 3
	}
	if len(opts.PixelFormats) == 0 {
		opts.PixelFormats = []uint32{buffers.PixelFormatYUYV}
	}
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = 4096
	}
	if opts.MaxHeight <= 0 {
		opts.MaxHeight = 3072
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("device")
	}
	return &Synthetic{
		opts:   opts,
		logger: logger,
		closed: make(chan struct{}),
	}
}

// Configure implements Port.
func (d *Synthetic) Configure(format buffers.Format, fps int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isClosed() {
		return ErrClosed
	}
	if d.streaming {
		return fmt.Errorf("%w: configure while streaming", ErrIO)
	}
	if !format.Valid() || fps <= 0 {
		return fmt.Errorf("%w: %s at %d fps", ErrRejected, format, fps)
	}
	if !slices.Contains(d.opts.PixelFormats, format.PixelFormat) {
		return fmt.Errorf("%w: unsupported pixel format %s", ErrRejected, buffers.FourCC(format.PixelFormat))
	}
	if format.Width > d.opts.MaxWidth || format.Height > d.opts.MaxHeight {
		return fmt.Errorf("%w: %dx%d exceeds %dx%d", ErrRejected, format.Width, format.Height, d.opts.MaxWidth, d.opts.MaxHeight)
	}

	d.format = format
	d.fps = fps
	d.pool = nil
	d.logger.Debug("Synthetic device configured", "format", format.String(), "fps", fps)
	return nil
}

// MinBuffers implements Port.
func (d *Synthetic) MinBuffers() int {
	return d.opts.MinBuffers
}

// Bind implements Port.
func (d *Synthetic) Bind(pool *buffers.Pool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isClosed() {
		return ErrClosed
	}
	if pool.Format() != d.format {
		return fmt.Errorf("%w: pool format %s does not match %s", ErrRejected, pool.Format(), d.format)
	}
	d.pool = pool
	d.queue = d.queue[:0]
	return nil
}

// StartStreaming implements Port.
func (d *Synthetic) StartStreaming() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isClosed() {
		return ErrClosed
	}
	if d.pool == nil {
		return ErrNotBound
	}
	d.streaming = true
	d.lastFrame = time.Now()
	return nil
}

// StopStreaming implements Port.
func (d *Synthetic) StopStreaming() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.streaming = false
	var firstErr error
	for _, id := range d.queue {
		if err := d.pool.Transfer(id, buffers.HeldByDevice, buffers.Free); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.queue = d.queue[:0]
	return firstErr
}

// Enqueue implements Port.
func (d *Synthetic) Enqueue(id buffers.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isClosed() {
		return ErrClosed
	}
	if d.pool == nil {
		return ErrNotBound
	}
	if d.failEnq > 0 {
		d.failEnq--
		return fmt.Errorf("%w: injected enqueue failure", ErrIO)
	}
	if err := d.pool.Transfer(id, buffers.Free, buffers.HeldByDevice); err != nil {
		return err
	}
	d.queue = append(d.queue, id)
	return nil
}

// Dequeue implements Port.
func (d *Synthetic) Dequeue() (buffers.ID, error) {
	if err := d.waitStall(); err != nil {
		return 0, err
	}
	if err := d.pace(); err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isClosed() {
		return 0, ErrClosed
	}
	if !d.streaming {
		return 0, ErrNotStreaming
	}
	if len(d.queue) == 0 {
		return 0, ErrNoBuffers
	}
	if d.failNext > 0 {
		d.failNext--
		return 0, fmt.Errorf("%w: injected dequeue failure", ErrIO)
	}

	id := d.queue[0]
	d.queue = d.queue[1:]

	data, err := d.pool.Bytes(id)
	if err != nil {
		return 0, err
	}
	fillColourBars(data, d.format, d.sequence)
	d.sequence++
	d.lastFrame = time.Now()

	if err := d.pool.Transfer(id, buffers.HeldByDevice, buffers.Free); err != nil {
		return 0, err
	}
	return id, nil
}

// Close implements Port.
func (d *Synthetic) Close() error {
	d.closeOnce.Do(func() {
		close(d.closed)
	})
	return nil
}

// FailDequeues makes the next n Dequeue calls fail with ErrIO.
func (d *Synthetic) FailDequeues(n int) {
	d.mu.Lock()
	d.failNext = n
	d.mu.Unlock()
}

// FailEnqueues makes the next n Enqueue calls fail with ErrIO. The buffer
// stays Free.
func (d *Synthetic) FailEnqueues(n int) {
	d.mu.Lock()
	d.failEnq = n
	d.mu.Unlock()
}

// Stall makes Dequeue block, as a sensor that stopped delivering frames
// would, until Resume or Close.
func (d *Synthetic) Stall() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stall == nil {
		d.stall = make(chan struct{})
	}
}

// Resume releases a Stall.
func (d *Synthetic) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stall != nil {
		close(d.stall)
		d.stall = nil
	}
}

// Frames returns the number of frames produced so far.
func (d *Synthetic) Frames() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sequence
}

// Queued returns the number of buffers currently owned by the device.
func (d *Synthetic) Queued() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Format returns the configured capture format.
func (d *Synthetic) Format() buffers.Format {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.format
}

func (d *Synthetic) waitStall() error {
	d.mu.Lock()
	gate := d.stall
	d.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-d.closed:
		return ErrClosed
	}
}

func (d *Synthetic) pace() error {
	if !d.opts.Paced {
		select {
		case <-d.closed:
			return ErrClosed
		default:
			return nil
		}
	}

	d.mu.Lock()
	wait := time.Until(d.lastFrame.Add(time.Second / time.Duration(max(d.fps, 1))))
	d.mu.Unlock()
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-d.closed:
		return ErrClosed
	}
}

func (d *Synthetic) isClosed() bool {
	select {
	case <-d.closed:
		return true
	default:
		return false
	}
}

// colourBars holds Y, U, V for the eight SMPTE bars.
var colourBars = [8][3]byte{
	{235, 128, 128}, // white
	{210, 16, 146},  // yellow
	{170, 166, 16},  // cyan
	{145, 54, 34},   // green
	{106, 202, 222}, // magenta
	{81, 90, 240},   // red
	{41, 240, 110},  // blue
	{16, 128, 128},  // black
}

// fillColourBars writes vertical bars shifted by seq pixels per frame.
// Only YUYV is drawn; other formats are filled with mid grey.
func fillColourBars(data []byte, f buffers.Format, seq uint64) {
	if f.PixelFormat != buffers.PixelFormatYUYV {
		for i := range data {
			data[i] = 128
		}
		return
	}

	stride := f.Width * 2
	shift := int(seq*4) % max(f.Width, 1)
	for y := 0; y < f.Height; y++ {
		row := data[y*stride : (y+1)*stride]
		for x := 0; x+1 < f.Width; x += 2 {
			bar := colourBars[((x+shift)%f.Width)*8/f.Width]
			i := x * 2
			row[i] = bar[0]
			row[i+1] = bar[1]
			row[i+2] = bar[0]
			row[i+3] = bar[2]
		}
	}
}
