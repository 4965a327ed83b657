// Package circulation keeps preview buffers moving between the capture
// device and the display sink.
//
// The engine is driven by a single goroutine. Each Iterate call moves one
// frame: device to sink, and the sink's oldest buffer back to the device
// once the sink holds the optimal queue depth. A registered recording
// callback receives the buffer coming back from the sink and holds it until
// Release.
//
// With a pool of N buffers and a depth of D the sink settles at D-1 held
// buffers, so between iterations the device always holds between 1 and
// N-(D-1) buffers.
package circulation

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/smazurov/camerapipe/internal/buffers"
	"github.com/smazurov/camerapipe/internal/device"
	"github.com/smazurov/camerapipe/internal/logging"
	"github.com/smazurov/camerapipe/internal/metrics"
	"github.com/smazurov/camerapipe/internal/sink"
)

// DefaultOptimalQueueDepth is the sink depth at which buffers start flowing back.
const DefaultOptimalQueueDepth = 3

// ownershipPublishInterval is how often, in frames, the buffer gauges refresh.
const ownershipPublishInterval = 30

// epoch anchors recording timestamps to the monotonic clock.
var epoch = time.Now()

// RecordingFrame is handed to the recording callback. Data aliases pool
// memory and is valid until the frame is released.
type RecordingFrame struct {
	ID        buffers.ID
	Format    buffers.Format
	Data      []byte
	Timestamp time.Duration
}

// RecordingFunc receives frames while recording is enabled.
type RecordingFunc func(frame RecordingFrame, cookie any)

type recorder struct {
	fn     RecordingFunc
	cookie any
}

// Options configures an Engine.
type Options struct {
	OptimalQueueDepth int
	Logger            *slog.Logger
}

// Stats are cumulative engine counters.
type Stats struct {
	Frames          uint64 `json:"frames"`
	SinkBusy        uint64 `json:"sink_busy"`
	DeviceErrors    uint64 `json:"device_errors"`
	RecordingFrames uint64 `json:"recording_frames"`
	RecordingDrops  uint64 `json:"recording_drops"`
}

// Engine is the buffer circulation state between one device and one sink.
type Engine struct {
	pool   *buffers.Pool
	device device.Port
	sink   sink.Port
	depth  int
	logger *slog.Logger

	// Worker-goroutine state.
	spares     []buffers.ID
	clientHeld map[buffers.ID]struct{}
	// unqueued are Free buffers whose device enqueue failed; they are
	// retried before every dequeue.
	unqueued []buffers.ID

	recording atomic.Pointer[recorder]
	released  chan buffers.ID

	frames          atomic.Uint64
	sinkBusy        atomic.Uint64
	deviceErrors    atomic.Uint64
	recordingFrames atomic.Uint64
	recordingDrops  atomic.Uint64
}

// New creates an engine. The pool is shared with the device and the sink.
// A depth above the sink's buffer count is clamped to it: the sink would
// fill before reaching the depth and never hand buffers back.
func New(pool *buffers.Pool, dev device.Port, snk sink.Port, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("circulation")
	}
	depth := opts.OptimalQueueDepth
	if depth < 2 {
		depth = DefaultOptimalQueueDepth
	}
	if capacity := snk.BufferCount(); depth > capacity {
		if opts.OptimalQueueDepth > capacity {
			logger.Warn("Optimal queue depth exceeds sink capacity, clamping", "depth", opts.OptimalQueueDepth, "sink_buffers", capacity)
		}
		depth = capacity
	}
	size := dev.MinBuffers() + snk.BufferCount()
	return &Engine{
		pool:       pool,
		device:     dev,
		sink:       snk,
		depth:      depth,
		logger:     logger,
		clientHeld: make(map[buffers.ID]struct{}),
		released:   make(chan buffers.ID, size),
	}
}

// PoolSize is the number of buffers a preview set needs.
func (e *Engine) PoolSize() int {
	return e.device.MinBuffers() + e.sink.BufferCount()
}

// SinkHold is the number of buffers the sink keeps in steady state.
func (e *Engine) SinkHold() int {
	return e.depth - 1
}

// Depth returns the optimal queue depth.
func (e *Engine) Depth() int {
	return e.depth
}

// Prime hands a freshly allocated set to the device, keeping SinkHold
// buffers back as spares that cover the sink while it fills.
func (e *Engine) Prime(ids []buffers.ID) error {
	hold := e.SinkHold()
	if len(ids) <= hold {
		return fmt.Errorf("pool of %d buffers cannot cover sink hold of %d", len(ids), hold)
	}

	e.spares = append(e.spares[:0], ids[len(ids)-hold:]...)
	e.unqueued = e.unqueued[:0]
	for _, id := range ids[:len(ids)-hold] {
		if err := e.device.Enqueue(id); err != nil {
			return fmt.Errorf("prime %s: %w", id, err)
		}
	}
	e.publishOwnership()
	return nil
}

// Iterate moves one frame through the pipeline. Errors are device failures;
// buffer accounting is already reconciled when Iterate returns.
func (e *Engine) Iterate() error {
	e.drainReleased()
	e.retryUnqueued()

	id, err := e.device.Dequeue()
	if err != nil {
		e.deviceErrors.Add(1)
		metrics.IncDeviceErrors()
		return fmt.Errorf("dequeue: %w", err)
	}
	ts := time.Since(epoch)
	if e.frames.Add(1)%ownershipPublishInterval == 0 {
		defer e.publishOwnership()
	}
	metrics.IncFrames()

	if err := e.sink.Enqueue(id); err != nil {
		e.sinkBusy.Add(1)
		metrics.IncSinkBusy()
		if !errors.Is(err, sink.ErrBusy) {
			e.logger.Warn("Sink rejected frame", "buffer", id.String(), "error", err)
		}
		return e.requeue(id)
	}

	back, ok := e.sinkReturn()
	if ok && e.deliverRecording(back, ts) {
		ok = false
	}

	switch {
	case ok:
		return e.requeue(back)
	case len(e.spares) > 0:
		spare := e.spares[len(e.spares)-1]
		e.spares = e.spares[:len(e.spares)-1]
		return e.requeue(spare)
	}
	return nil
}

// SetRecording registers the recording callback. Safe from any goroutine.
func (e *Engine) SetRecording(fn RecordingFunc, cookie any) {
	if fn == nil {
		e.recording.Store(nil)
		return
	}
	e.recording.Store(&recorder{fn: fn, cookie: cookie})
}

// Recording reports whether a recording callback is registered.
func (e *Engine) Recording() bool {
	return e.recording.Load() != nil
}

// Release returns a recording frame. Safe from any goroutine; the buffer is
// re-queued to the device on the next iteration.
func (e *Engine) Release(id buffers.ID) error {
	if err := e.pool.Transfer(id, buffers.HeldByClient, buffers.Free); err != nil {
		return err
	}
	select {
	case e.released <- id:
	default:
		e.logger.Warn("Release queue full, buffer stays free until restart", "buffer", id.String())
	}
	return nil
}

// Halt stops device streaming. Every buffer the device held becomes Free;
// buffers in the sink and with the client are untouched.
func (e *Engine) Halt() error {
	err := e.device.StopStreaming()
	e.publishOwnership()
	return err
}

// Teardown reclaims every buffer of the set after Halt: the sink is flushed
// and frames still held by the recording client are revoked. On return the
// whole set is Free and may be reallocated.
func (e *Engine) Teardown() {
	e.sink.Flush()
	for id := range e.clientHeld {
		if err := e.pool.Transfer(id, buffers.HeldByClient, buffers.Free); err != nil && !errors.Is(err, buffers.ErrOwnership) {
			e.logger.Debug("Revoking recording frame failed", "buffer", id.String(), "error", err)
		}
		delete(e.clientHeld, id)
	}
drain:
	for {
		select {
		case <-e.released:
		default:
			break drain
		}
	}
	e.spares = e.spares[:0]
	e.unqueued = e.unqueued[:0]
	e.publishOwnership()
}

// Stats returns cumulative counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Frames:          e.frames.Load(),
		SinkBusy:        e.sinkBusy.Load(),
		DeviceErrors:    e.deviceErrors.Load(),
		RecordingFrames: e.recordingFrames.Load(),
		RecordingDrops:  e.recordingDrops.Load(),
	}
}

// CheckInvariants verifies buffer conservation and the device bounds. It is
// meaningful between iterations.
func (e *Engine) CheckInvariants() error {
	c := e.pool.Counts()
	size := e.PoolSize()
	if c.Total() != size {
		return fmt.Errorf("ownership not conserved: %+v over pool of %d", c, size)
	}
	if c.Device < 1 || c.Device > size-e.SinkHold() {
		return fmt.Errorf("device holds %d buffers, want 1..%d", c.Device, size-e.SinkHold())
	}
	return nil
}

// sinkReturn takes the oldest buffer back once the sink reached its depth.
func (e *Engine) sinkReturn() (buffers.ID, bool) {
	if e.sink.Queued() < e.depth {
		return 0, false
	}
	id, err := e.sink.Dequeue()
	if err != nil {
		if !errors.Is(err, sink.ErrEmpty) {
			e.logger.Warn("Sink dequeue failed", "error", err)
		}
		return 0, false
	}
	return id, true
}

// deliverRecording hands a Free buffer to the recording callback. It
// reports whether the client now owns the buffer.
func (e *Engine) deliverRecording(id buffers.ID, ts time.Duration) bool {
	rec := e.recording.Load()
	if rec == nil {
		return false
	}

	// The device keeps at least one buffer.
	limit := e.PoolSize() - e.SinkHold() - 1
	if len(e.clientHeld) >= limit {
		e.recordingDrops.Add(1)
		metrics.IncRecordingDropped()
		return false
	}

	data, err := e.pool.Bytes(id)
	if err != nil {
		return false
	}
	if err := e.pool.Transfer(id, buffers.Free, buffers.HeldByClient); err != nil {
		e.logger.Warn("Recording handoff failed", "buffer", id.String(), "error", err)
		return false
	}
	e.clientHeld[id] = struct{}{}
	e.recordingFrames.Add(1)
	metrics.IncRecordingFrames()

	rec.fn(RecordingFrame{
		ID:        id,
		Format:    e.pool.Format(),
		Data:      data,
		Timestamp: ts,
	}, rec.cookie)
	return true
}

func (e *Engine) drainReleased() {
	for {
		select {
		case id := <-e.released:
			if _, held := e.clientHeld[id]; !held {
				continue
			}
			delete(e.clientHeld, id)
			if err := e.requeue(id); err != nil {
				e.logger.Warn("Re-queue of released frame failed", "buffer", id.String(), "error", err)
			}
		default:
			return
		}
	}
}

// requeue hands a Free buffer back to the device. A failed enqueue leaves
// the buffer Free and marks it for retry.
func (e *Engine) requeue(id buffers.ID) error {
	if err := e.device.Enqueue(id); err != nil {
		if errors.Is(err, buffers.ErrStaleBuffer) {
			return nil
		}
		e.deviceErrors.Add(1)
		metrics.IncDeviceErrors()
		e.unqueued = append(e.unqueued, id)
		return fmt.Errorf("enqueue %s: %w", id, err)
	}
	return nil
}

// retryUnqueued gives buffers whose enqueue failed back to the device.
// Buffers that fail again stay marked for the next iteration.
func (e *Engine) retryUnqueued() {
	if len(e.unqueued) == 0 {
		return
	}
	pending := e.unqueued
	e.unqueued = nil
	for _, id := range pending {
		if err := e.requeue(id); err != nil {
			e.logger.Debug("Enqueue retry failed", "buffer", id.String(), "error", err)
		}
	}
}

func (e *Engine) publishOwnership() {
	c := e.pool.Counts()
	metrics.SetBufferOwnership(e.pool.Name(), c.Free, c.Device, c.Sink, c.Client)
}
