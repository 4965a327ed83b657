package camera

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/smazurov/camerapipe/internal/buffers"
	"github.com/smazurov/camerapipe/internal/capture"
	"github.com/smazurov/camerapipe/internal/imaging"
)

func TestDefaultParametersValid(t *testing.T) {
	if err := DefaultParameters().Validate(); err != nil {
		t.Fatalf("Default parameters invalid: %v", err)
	}
}

func TestParametersValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Parameters)
		valid  bool
	}{
		{"defaults", func(*Parameters) {}, true},
		{"nv12 preview", func(p *Parameters) { p.PreviewFormat = "nv12" }, false},
		{"png picture", func(p *Parameters) { p.PictureFormat = "png" }, false},
		{"tiny preview", func(p *Parameters) { p.PreviewWidth = 64 }, false},
		{"odd picture width", func(p *Parameters) { p.PictureWidth = 1281 }, false},
		{"zero fps", func(p *Parameters) { p.PreviewFPS = 0 }, false},
		{"fast fps", func(p *Parameters) { p.PreviewFPS = 240 }, false},
		{"max zoom", func(p *Parameters) { p.Zoom = imaging.MaxZoom }, true},
		{"zoom too high", func(p *Parameters) { p.Zoom = imaging.MaxZoom + 1 }, false},
		{"rotation 270", func(p *Parameters) { p.Rotation = 270 }, true},
		{"rotation 45", func(p *Parameters) { p.Rotation = 45 }, false},
		{"bad filter", func(p *Parameters) { p.Filter.Mode = "blur" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParameters()
			tt.modify(&p)
			err := p.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid, got %v", err)
			}
			if !tt.valid && !errors.Is(err, ErrConfigRejected) {
				t.Errorf("Expected ErrConfigRejected, got %v", err)
			}
		})
	}
}

func TestParametersNormalized(t *testing.T) {
	p := DefaultParameters()
	p.PreviewFormat = " YUYV "
	p.PictureFormat = "JPG"
	p.Quality = 0
	p.Zoom = 0
	p.Filter.Mode = ""

	n := p.Normalized()
	if n.PreviewFormat != "yuyv" || n.PictureFormat != "jpeg" {
		t.Errorf("Formats not normalized: %q %q", n.PreviewFormat, n.PictureFormat)
	}
	if n.Quality != imaging.DefaultQuality {
		t.Errorf("Expected quality %d, got %d", imaging.DefaultQuality, n.Quality)
	}
	if n.Zoom != imaging.MinZoom {
		t.Errorf("Expected zoom %d, got %d", imaging.MinZoom, n.Zoom)
	}
	if n.Filter.Mode != imaging.FilterOff {
		t.Errorf("Expected filter off, got %q", n.Filter.Mode)
	}
	if err := n.Validate(); err != nil {
		t.Errorf("Normalized parameters invalid: %v", err)
	}
}

func TestParametersConversions(t *testing.T) {
	p := DefaultParameters()
	p.Rotation = 90
	p.Zoom = 2

	cfg := p.PreviewConfig()
	want := buffers.Format{Width: 640, Height: 480, PixelFormat: buffers.PixelFormatYUYV}
	if cfg.Format != want || cfg.FPS != 30 {
		t.Errorf("PreviewConfig = %+v", cfg)
	}

	s := p.PictureSettings()
	if s.Width != 1280 || s.Height != 960 || s.Rotation != 90 || s.Zoom != 2 || s.Quality != p.Quality {
		t.Errorf("PictureSettings = %+v", s)
	}
}

func TestPictureQueueSerializes(t *testing.T) {
	var mu sync.Mutex
	var dispatched []*capture.Request
	next := make(chan struct{}, 4)
	q := newPictureQueue(func(_ context.Context, req *capture.Request) {
		mu.Lock()
		dispatched = append(dispatched, req)
		mu.Unlock()
		next <- struct{}{}
	})

	a := capture.NewRequest(capture.Settings{}, capture.Callbacks{}, "a")
	b := capture.NewRequest(capture.Settings{}, capture.Callbacks{}, "b")
	c := capture.NewRequest(capture.Settings{}, capture.Callbacks{}, "c")

	if q.submit(context.Background(), a) {
		t.Fatal("First request should dispatch immediately")
	}
	<-next
	if !q.submit(context.Background(), b) || !q.submit(context.Background(), c) {
		t.Fatal("Later requests should queue")
	}
	if q.queuedCount() != 2 {
		t.Fatalf("Expected 2 queued, got %d", q.queuedCount())
	}

	// Completing a request that is not in flight changes nothing.
	q.complete(c)
	if q.queuedCount() != 2 {
		t.Fatalf("Expected 2 queued, got %d", q.queuedCount())
	}

	q.complete(a)
	<-next
	q.complete(b)
	<-next
	q.complete(c)

	mu.Lock()
	defer mu.Unlock()
	if len(dispatched) != 3 || dispatched[0] != a || dispatched[1] != b || dispatched[2] != c {
		t.Fatalf("Unexpected dispatch order")
	}
	if q.busy() || q.queuedCount() != 0 {
		t.Error("Queue should be idle")
	}
}

func TestPictureQueueCancel(t *testing.T) {
	q := newPictureQueue(func(context.Context, *capture.Request) {})
	running := capture.NewRequest(capture.Settings{}, capture.Callbacks{}, nil)
	q.submit(context.Background(), running)
	for range 3 {
		q.submit(context.Background(), capture.NewRequest(capture.Settings{}, capture.Callbacks{}, nil))
	}

	dropped := q.cancel()
	if len(dropped) != 3 {
		t.Fatalf("Expected 3 dropped, got %d", len(dropped))
	}
	if !q.busy() {
		t.Error("Running request should stay in flight")
	}
	q.complete(running)
	if q.busy() {
		t.Error("Queue should be idle after completion")
	}
}
