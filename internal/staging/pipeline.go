// Package staging runs the still-capture stages off the preview worker.
//
// Each stage is a goroutine reading its own bounded channel. Posting never
// blocks: a full queue drops the message and the caller is told so. The
// client callbacks of one capture fire in shutter, raw, encoded order,
// enforced by the latches the messages carry, while the heavy resample and
// encode work overlaps the earlier callbacks.
package staging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/smazurov/camerapipe/internal/buffers"
	"github.com/smazurov/camerapipe/internal/imaging"
	"github.com/smazurov/camerapipe/internal/logging"
	"github.com/smazurov/camerapipe/internal/metrics"
	"github.com/smazurov/camerapipe/internal/sink"
)

// DefaultQueueSize is the per-stage channel capacity.
const DefaultQueueSize = 4

// ErrClosed is returned by posts after Close.
var ErrClosed = errors.New("staging pipeline closed")

// ErrQueueFull is returned when a stage queue has no room.
var ErrQueueFull = errors.New("staging queue full")

// Options configures a Pipeline.
type Options struct {
	QueueSize int
	Filter    imaging.Filter
	Encoder   imaging.Encoder
	Logger    *slog.Logger
}

// Stats are cumulative stage counters.
type Stats struct {
	Encoded  uint64 `json:"encoded"`
	Failures uint64 `json:"failures"`
	Dropped  uint64 `json:"dropped"`
}

// Pipeline owns the four stage goroutines.
type Pipeline struct {
	filter  imaging.Filter
	encoder imaging.Encoder
	logger  *slog.Logger

	shutterCh  chan ShutterMessage
	rawCh      chan RawMessage
	processCh  chan ProcessMessage
	snapshotCh chan SnapshotMessage

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	encoded  atomic.Uint64
	failures atomic.Uint64
	dropped  atomic.Uint64
}

// New starts the stage goroutines.
func New(opts Options) *Pipeline {
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("staging")
	}
	encoder := opts.Encoder
	if encoder == nil {
		encoder = imaging.JPEG{}
	}
	filter := opts.Filter
	if filter == nil {
		filter = imaging.NewEnhancer()
	}

	p := &Pipeline{
		filter:     filter,
		encoder:    encoder,
		logger:     logger,
		shutterCh:  make(chan ShutterMessage, size),
		rawCh:      make(chan RawMessage, size),
		processCh:  make(chan ProcessMessage, size),
		snapshotCh: make(chan SnapshotMessage, size),
	}

	p.wg.Add(4)
	go run(p, p.shutterCh, p.shutter)
	go run(p, p.rawCh, p.raw)
	go run(p, p.processCh, p.process)
	go run(p, p.snapshotCh, p.snapshot)
	return p
}

// PostShutter queues a shutter notification.
func (p *Pipeline) PostShutter(msg ShutterMessage) error {
	return post(p, p.shutterCh, "shutter", msg)
}

// PostRaw queues a raw notification.
func (p *Pipeline) PostRaw(msg RawMessage) error {
	return post(p, p.rawCh, "raw", msg)
}

// PostProcess queues a frame for post-processing. On error the caller
// still owns the frame.
func (p *Pipeline) PostProcess(msg ProcessMessage) error {
	return post(p, p.processCh, "process", msg)
}

// PostSnapshot queues a freeze-frame blit.
func (p *Pipeline) PostSnapshot(msg SnapshotMessage) error {
	return post(p, p.snapshotCh, "snapshot", msg)
}

// Close closes every stage queue and waits for the stages to drain what
// was already queued. Safe to call more than once.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.shutterCh)
	close(p.rawCh)
	close(p.processCh)
	close(p.snapshotCh)
	p.mu.Unlock()

	p.wg.Wait()
}

// Stats returns cumulative counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Encoded:  p.encoded.Load(),
		Failures: p.failures.Load(),
		Dropped:  p.dropped.Load(),
	}
}

func post[M any](p *Pipeline, ch chan M, stage string, msg M) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}
	select {
	case ch <- msg:
		return nil
	default:
		p.dropped.Add(1)
		metrics.IncStageFailure(stage)
		return fmt.Errorf("%s: %w", stage, ErrQueueFull)
	}
}

func run[M any](p *Pipeline, ch chan M, handle func(M)) {
	defer p.wg.Done()
	for msg := range ch {
		handle(msg)
	}
}

func (p *Pipeline) shutter(msg ShutterMessage) {
	defer closeLatch(msg.Done)
	if msg.Shutter != nil {
		msg.Shutter(msg.Cookie)
	}
}

func (p *Pipeline) raw(msg RawMessage) {
	defer closeLatch(msg.Done)
	wait(msg.After)
	if msg.Raw != nil {
		msg.Raw(msg.Frame, msg.Cookie)
	}
}

func (p *Pipeline) process(msg ProcessMessage) {
	data, err := p.encode(msg)
	if err != nil {
		p.failures.Add(1)
		metrics.IncStageFailure("process")
		p.logger.Error("Post-processing failed, encoded callback dropped", "buffer", msg.Frame.ID.String(), "error", err)
	} else {
		p.encoded.Add(1)
	}

	wait(msg.After)
	if err == nil && msg.Encoded != nil {
		msg.Encoded(data, msg.Cookie)
	}

	if rerr := msg.Frame.Release(); rerr != nil {
		p.logger.Warn("Releasing picture buffer failed", "buffer", msg.Frame.ID.String(), "error", rerr)
	}
	if msg.Finish != nil {
		msg.Finish(err)
	}
}

func (p *Pipeline) encode(msg ProcessMessage) ([]byte, error) {
	f := msg.Frame
	img, err := decode(f.Data, f.Format)
	if err != nil {
		return nil, err
	}

	var out image.Image = img
	t := msg.Settings.Transform()
	if t.Needed(img.Bounds()) {
		if out, err = imaging.Resample(img, t); err != nil {
			return nil, fmt.Errorf("resample: %w", err)
		}
	}

	if msg.Settings.Filter.Enabled() {
		if err := p.filter.Configure(msg.Settings.Filter, out.Bounds()); err != nil {
			return nil, fmt.Errorf("filter init: %w", err)
		}
		if out, err = p.filter.Apply(out); err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := p.encoder.Encode(&buf, out, msg.Settings.Quality); err != nil {
		return nil, fmt.Errorf("encode %s: %w", p.encoder.Format(), err)
	}
	return buf.Bytes(), nil
}

func (p *Pipeline) snapshot(msg SnapshotMessage) {
	defer closeLatch(msg.Done)
	if err := blit(msg); err != nil {
		p.failures.Add(1)
		metrics.IncStageFailure("snapshot")
		p.logger.Warn("Snapshot blit failed", "error", err)
	}
}

func blit(msg SnapshotMessage) error {
	img, err := decode(msg.Frame.Data, msg.Frame.Format)
	if err != nil {
		return err
	}
	preview := msg.Pool.Format()
	small := imaging.Downscale(img, preview.Width, preview.Height)

	free := msg.Pool.Owned(buffers.Free)
	if len(free) == 0 {
		return fmt.Errorf("no free preview buffer")
	}
	id := free[0]
	dst, err := msg.Pool.Bytes(id)
	if err != nil {
		return err
	}
	if err := imaging.ToYUYV(small, dst); err != nil {
		return err
	}
	if err := msg.Sink.Enqueue(id); err != nil {
		return fmt.Errorf("sink enqueue: %w", err)
	}
	if _, err := msg.Sink.Dequeue(); err != nil && !errors.Is(err, sink.ErrEmpty) {
		return fmt.Errorf("sink dequeue: %w", err)
	}
	return nil
}

func decode(data []byte, f buffers.Format) (*image.YCbCr, error) {
	if f.PixelFormat != buffers.PixelFormatYUYV {
		return nil, fmt.Errorf("%w: cannot process %s", buffers.ErrInvalidFormat, buffers.FourCC(f.PixelFormat))
	}
	return imaging.FromYUYV(data, f.Width, f.Height)
}

func wait(l Latch) {
	if l != nil {
		<-l
	}
}

func closeLatch(l Latch) {
	if l != nil {
		close(l)
	}
}
