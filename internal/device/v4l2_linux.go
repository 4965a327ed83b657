//go:build linux

package device

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AlexxIT/go2rtc/pkg/v4l2/device"
	"github.com/smazurov/camerapipe/internal/buffers"
	"github.com/smazurov/camerapipe/internal/logging"
)

// closeWait bounds how long Close waits for a capture call to return
// before leaving the teardown to it.
const closeWait = time.Second

// V4L2 drives a Linux video capture node. The kernel side keeps its own
// mmap ring; each captured frame is repacked into the pool buffer at the
// head of the enqueue FIFO, so pool ownership follows the same
// Enqueue/Dequeue contract as any other Port.
type V4L2 struct {
	path       string
	minBuffers int
	logger     *slog.Logger

	mu        sync.Mutex
	dev       *device.Device
	pool      *buffers.Pool
	format    buffers.Format
	streaming bool
	queue     []buffers.ID
	closed    bool
	shut      bool
	// capturing is closed when the capture call in flight returns.
	capturing chan struct{}
}

// OpenV4L2 opens the capture node at path.
func OpenV4L2(path string, minBuffers int, logger *slog.Logger) (*V4L2, error) {
	if logger == nil {
		logger = logging.GetLogger("device")
	}
	if minBuffers <= 0 {
		minBuffers = 3
	}

	dev, err := device.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if caps, capErr := dev.Capability(); capErr == nil {
		logger.Info("Opened capture device", "path", path, "driver", caps.Driver, "card", caps.Card)
	}

	return &V4L2{
		path:       path,
		minBuffers: minBuffers,
		logger:     logger,
		dev:        dev,
	}, nil
}

// Configure implements Port.
func (d *V4L2) Configure(format buffers.Format, fps int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.streaming {
		return fmt.Errorf("%w: configure while streaming", ErrIO)
	}
	if err := d.dev.SetFormat(uint32(format.Width), uint32(format.Height), format.PixelFormat); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRejected, format, err)
	}
	if fps > 0 {
		if err := d.dev.SetParam(uint32(fps)); err != nil {
			d.logger.Warn("Device ignored frame rate", "fps", fps, "error", err)
		}
	}

	d.format = format
	d.pool = nil
	return nil
}

// MinBuffers implements Port.
func (d *V4L2) MinBuffers() int {
	return d.minBuffers
}

// Bind implements Port.
func (d *V4L2) Bind(pool *buffers.Pool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
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
func (d *V4L2) StartStreaming() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.pool == nil {
		return ErrNotBound
	}
	if err := d.dev.StreamOn(); err != nil {
		return fmt.Errorf("%w: stream on: %v", ErrIO, err)
	}
	d.streaming = true
	return nil
}

// StopStreaming implements Port.
func (d *V4L2) StopStreaming() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	if d.streaming {
		if err := d.dev.StreamOff(); err != nil {
			firstErr = fmt.Errorf("%w: stream off: %v", ErrIO, err)
		}
		d.streaming = false
	}
	for _, id := range d.queue {
		if err := d.pool.Transfer(id, buffers.HeldByDevice, buffers.Free); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.queue = d.queue[:0]
	return firstErr
}

// Enqueue implements Port.
func (d *V4L2) Enqueue(id buffers.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.pool == nil {
		return ErrNotBound
	}
	if err := d.pool.Transfer(id, buffers.Free, buffers.HeldByDevice); err != nil {
		return err
	}
	d.queue = append(d.queue, id)
	return nil
}

// Dequeue implements Port. The capture ioctl runs without the lock held.
func (d *V4L2) Dequeue() (buffers.ID, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, ErrClosed
	}
	if !d.streaming {
		d.mu.Unlock()
		return 0, ErrNotStreaming
	}
	if len(d.queue) == 0 {
		d.mu.Unlock()
		return 0, ErrNoBuffers
	}
	dev := d.dev
	done := make(chan struct{})
	d.capturing = done
	d.mu.Unlock()

	// The capture call reads from the kernel's mmap ring, which StreamOff
	// unmaps; Close waits on done before tearing the stream down.
	frame, err := dev.Capture()

	d.mu.Lock()
	defer d.mu.Unlock()
	close(done)
	d.capturing = nil

	if d.closed {
		d.shutdown()
		return 0, ErrClosed
	}
	if err != nil {
		return 0, fmt.Errorf("%w: capture: %v", ErrIO, err)
	}
	if len(d.queue) == 0 {
		return 0, ErrNoBuffers
	}

	id := d.queue[0]
	d.queue = d.queue[1:]

	data, err := d.pool.Bytes(id)
	if err != nil {
		return 0, err
	}
	n, err := repack(data, frame, d.format.PixelFormat)
	if err != nil {
		// The buffer goes back to the head of the queue; the frame is lost.
		d.queue = append([]buffers.ID{id}, d.queue...)
		return 0, err
	}
	if n < len(frame) {
		d.logger.Debug("Frame truncated to buffer size", "frame_bytes", len(frame), "buffer_bytes", len(data))
	}
	if err := d.pool.Transfer(id, buffers.HeldByDevice, buffers.Free); err != nil {
		return 0, err
	}
	return id, nil
}

// Close implements Port. A capture call in flight is given closeWait to
// return; if it is still blocked the stream is torn down when it does.
func (d *V4L2) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	inFlight := d.capturing
	d.mu.Unlock()

	if inFlight != nil {
		timer := time.NewTimer(closeWait)
		defer timer.Stop()
		select {
		case <-inFlight:
		case <-timer.C:
			d.logger.Warn("Capture still in progress, deferring device close", "path", d.path)
			return nil
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

// shutdown stops the stream and closes the node once. Callers hold mu and
// no capture call is in flight.
func (d *V4L2) shutdown() error {
	if d.shut {
		return nil
	}
	d.shut = true
	if d.streaming {
		_ = d.dev.StreamOff()
		d.streaming = false
	}
	return d.dev.Close()
}

// Inspect lists the formats, sizes and frame rates offered by the node at path.
func Inspect(path string) (*Info, error) {
	dev, err := device.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer dev.Close()

	info := &Info{Path: path}
	if caps, capErr := dev.Capability(); capErr == nil {
		info.Driver = caps.Driver
		info.Card = caps.Card
		info.BusInfo = caps.BusInfo
	}

	formats, err := dev.ListFormats()
	if err != nil {
		return nil, fmt.Errorf("list formats: %w", err)
	}

	for _, pixFmt := range formats {
		fi := FormatInfo{FourCC: buffers.FourCC(pixFmt)}
		sizes, sizeErr := dev.ListSizes(pixFmt)
		if sizeErr != nil {
			info.Formats = append(info.Formats, fi)
			continue
		}
		for _, wh := range sizes {
			si := SizeInfo{Width: int(wh[0]), Height: int(wh[1])}
			if rates, rateErr := dev.ListFrameRates(pixFmt, wh[0], wh[1]); rateErr == nil {
				for _, r := range rates {
					si.FrameRates = append(si.FrameRates, int(r))
				}
			}
			fi.Sizes = append(fi.Sizes, si)
		}
		info.Formats = append(info.Formats, fi)
	}
	return info, nil
}
