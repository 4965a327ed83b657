package device

import (
	"fmt"

	"github.com/smazurov/camerapipe/internal/buffers"
)

// repack copies a frame as returned by the V4L2 capture call into a pool
// buffer. YUYV and NV12 arrive as planar YUV (4:2:2 and 4:2:0) and are
// interleaved back into the pool's packed layout; other formats are copied
// as is. It returns the number of source bytes consumed.
func repack(dst, planar []byte, pixFmt uint32) (int, error) {
	switch pixFmt {
	case buffers.PixelFormatYUYV:
		return packYUYV(dst, planar)
	case buffers.PixelFormatNV12:
		return packNV12(dst, planar)
	default:
		return copy(dst, planar), nil
	}
}

// packYUYV turns Y (n/2), U (n/4), V (n/4) planes into Y0 U Y1 V quads.
func packYUYV(dst, src []byte) (int, error) {
	n := len(src)
	if n%4 != 0 {
		return 0, fmt.Errorf("%w: planar 4:2:2 frame of %d bytes", ErrIO, n)
	}
	n = min(n, len(dst)&^3)
	y := src[:len(src)/2]
	u := src[len(src)/2 : len(src)/4*3]
	v := src[len(src)/4*3:]
	for i, k := 0, 0; i < n; i, k = i+4, k+1 {
		dst[i] = y[2*k]
		dst[i+1] = u[k]
		dst[i+2] = y[2*k+1]
		dst[i+3] = v[k]
	}
	return n, nil
}

// packNV12 turns Y (4k), U (k), V (k) planes into a Y plane followed by
// interleaved UV.
func packNV12(dst, src []byte) (int, error) {
	n := len(src)
	if n%6 != 0 {
		return 0, fmt.Errorf("%w: planar 4:2:0 frame of %d bytes", ErrIO, n)
	}
	if len(dst) < n {
		return 0, fmt.Errorf("%w: planar 4:2:0 frame of %d bytes exceeds buffer of %d", ErrIO, n, len(dst))
	}
	k := n / 6
	copy(dst, src[:4*k])
	u := src[4*k : 5*k]
	v := src[5*k:]
	uv := dst[4*k : n]
	for i := range k {
		uv[2*i] = u[i]
		uv[2*i+1] = v[i]
	}
	return n, nil
}
