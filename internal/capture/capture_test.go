package capture

import (
	"errors"
	"testing"

	"github.com/smazurov/camerapipe/internal/buffers"
)

func TestRequestFinishRunsHooksOnce(t *testing.T) {
	req := NewRequest(Settings{Width: 640, Height: 480}, Callbacks{}, "cookie")

	var calls []string
	req.OnDone(func(r *Request, err error) { calls = append(calls, "first") })
	req.OnDone(func(r *Request, err error) { calls = append(calls, "second") })

	boom := errors.New("boom")
	req.Finish(boom)
	req.Finish(nil)

	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Fatalf("hooks ran as %v", calls)
	}
	select {
	case <-req.Done():
	default:
		t.Fatal("Done not closed after Finish")
	}
	if !errors.Is(req.Err(), boom) {
		t.Errorf("Err() = %v, want %v", req.Err(), boom)
	}

	var late error
	req.OnDone(func(r *Request, err error) { late = err })
	if !errors.Is(late, boom) {
		t.Errorf("late hook got %v, want %v", late, boom)
	}
}

func TestRequestIDsAreUnique(t *testing.T) {
	a := NewRequest(Settings{}, Callbacks{}, nil)
	b := NewRequest(Settings{}, Callbacks{}, nil)
	if a.ID == b.ID {
		t.Error("two requests share an id")
	}
}

func TestSettingsTransform(t *testing.T) {
	s := Settings{Width: 1280, Height: 720, Rotation: 90, Zoom: 2}
	tr := s.Transform()
	if tr.Width != 1280 || tr.Height != 720 || tr.Rotation != 90 || tr.Zoom != 2 {
		t.Errorf("Transform() = %+v", tr)
	}
}

func TestFrameClaimAndRelease(t *testing.T) {
	pool := buffers.NewPool("picture", 0)
	format := buffers.Format{Width: 64, Height: 48, PixelFormat: buffers.PixelFormatYUYV}
	ids, err := pool.Allocate(1, format)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	frame, err := Claim(pool, ids[0])
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if len(frame.Data) != format.FrameSize() {
		t.Errorf("frame has %d bytes, want %d", len(frame.Data), format.FrameSize())
	}
	if owner, _ := pool.Owner(ids[0]); owner != buffers.HeldByClient {
		t.Errorf("owner after claim = %v, want client", owner)
	}

	if _, err := Claim(pool, ids[0]); !errors.Is(err, buffers.ErrOwnership) {
		t.Errorf("second claim error = %v, want ErrOwnership", err)
	}

	if err := frame.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := frame.Release(); err != nil {
		t.Errorf("second Release returned %v", err)
	}
	if pool.Size() != 0 {
		t.Errorf("pool still has %d live buffers", pool.Size())
	}

	// The released set can be replaced without tripping the ownership check.
	if _, err := pool.Allocate(1, format); err != nil {
		t.Errorf("reallocate after release failed: %v", err)
	}
}
