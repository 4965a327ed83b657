package device

import (
	"bytes"
	"errors"
	"testing"

	"github.com/smazurov/camerapipe/internal/buffers"
)

// planarYUYV mirrors the kernel-side conversion done by the capture call.
func planarYUYV(packed []byte) []byte {
	n := len(packed)
	out := make([]byte, n)
	iy, iu, iv := 0, n/2, n/4*3
	for i := 0; i < n; i += 4 {
		out[iy], out[iy+1] = packed[i], packed[i+2]
		out[iu] = packed[i+1]
		out[iv] = packed[i+3]
		iy += 2
		iu++
		iv++
	}
	return out
}

func TestRepackYUYV(t *testing.T) {
	packed := []byte{
		10, 100, 11, 200, 12, 101, 13, 201,
		14, 102, 15, 202, 16, 103, 17, 203,
	}
	dst := make([]byte, len(packed))

	n, err := repack(dst, planarYUYV(packed), buffers.PixelFormatYUYV)
	if err != nil {
		t.Fatalf("repack() error = %v", err)
	}
	if n != len(packed) {
		t.Errorf("repack() consumed %d bytes, want %d", n, len(packed))
	}
	if !bytes.Equal(dst, packed) {
		t.Errorf("repack() = %v, want %v", dst, packed)
	}
}

func TestRepackYUYVTruncatesToBuffer(t *testing.T) {
	packed := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	dst := make([]byte, 4)

	n, err := repack(dst, planarYUYV(packed), buffers.PixelFormatYUYV)
	if err != nil {
		t.Fatalf("repack() error = %v", err)
	}
	if n != 4 || !bytes.Equal(dst, packed[:4]) {
		t.Errorf("repack() = %d %v, want 4 %v", n, dst, packed[:4])
	}
}

func TestRepackNV12(t *testing.T) {
	// 4x2 frame: 8 luma bytes, 2 U, 2 V.
	planar := []byte{1, 2, 3, 4, 5, 6, 7, 8, 50, 51, 60, 61}
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 50, 60, 51, 61}
	dst := make([]byte, len(want))

	if _, err := repack(dst, planar, buffers.PixelFormatNV12); err != nil {
		t.Fatalf("repack() error = %v", err)
	}
	if !bytes.Equal(dst, want) {
		t.Errorf("repack() = %v, want %v", dst, want)
	}
}

func TestRepackRejectsOddSizes(t *testing.T) {
	if _, err := repack(make([]byte, 8), make([]byte, 6), buffers.PixelFormatYUYV); !errors.Is(err, ErrIO) {
		t.Errorf("YUYV error = %v, want ErrIO", err)
	}
	if _, err := repack(make([]byte, 8), make([]byte, 7), buffers.PixelFormatNV12); !errors.Is(err, ErrIO) {
		t.Errorf("NV12 error = %v, want ErrIO", err)
	}
}

func TestRepackCopiesCompressed(t *testing.T) {
	src := []byte{0xff, 0xd8, 0xff, 0xd9}
	dst := make([]byte, 8)
	n, err := repack(dst, src, buffers.PixelFormatMJPEG)
	if err != nil || n != 4 || !bytes.Equal(dst[:4], src) {
		t.Errorf("repack() = %d %v %v", n, dst[:4], err)
	}
}
