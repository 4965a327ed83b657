package imaging

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Zoom levels accepted by ZoomCrop.
const (
	MinZoom = 1
	MaxZoom = 7
)

// Transform describes the resample applied to a captured frame. Width and
// Height are the requested output size before rotation.
type Transform struct {
	Width    int
	Height   int
	Rotation int
	Zoom     int
}

// OutputSize is the size of the transformed image; 90 and 270 degree
// rotations swap the axes.
func (t Transform) OutputSize() (int, int) {
	if t.Rotation == 90 || t.Rotation == 270 {
		return t.Height, t.Width
	}
	return t.Width, t.Height
}

// Needed reports whether src must be resampled to satisfy t.
func (t Transform) Needed(src image.Rectangle) bool {
	return src.Dx() != t.Width || src.Dy() != t.Height || t.Rotation != 0 || (t.Zoom > MinZoom)
}

// ValidRotation reports whether r is one of 0, 90, 180 or 270.
func ValidRotation(r int) bool {
	return r == 0 || r == 90 || r == 180 || r == 270
}

// ZoomCrop returns the centred region of a width x height sensor frame that
// fills the output at the given zoom level. Each level narrows the field of
// view by 20% of the full width; the crop width is rounded up to a multiple
// of 32 and the height follows the sensor aspect ratio.
func ZoomCrop(width, height, zoom int) image.Rectangle {
	full := image.Rect(0, 0, width, height)
	if zoom <= MinZoom {
		return full
	}
	zoom = min(zoom, MaxZoom)

	zw := width * 1000 / (1000 + (zoom-1)*200)
	zw = (zw + 31) &^ 31
	if zw >= width {
		return full
	}
	zh := height * zw / width

	left := ((width - zw) / 2) &^ 1
	top := ((height - zh) / 2) &^ 1
	return image.Rect(left, top, left+zw, top+zh)
}

// Resample crops src for zoom, scales it to the requested size and rotates
// it clockwise, all in one Catmull-Rom pass.
func Resample(src image.Image, t Transform) (image.Image, error) {
	if t.Width <= 0 || t.Height <= 0 {
		return nil, fmt.Errorf("invalid output size %dx%d", t.Width, t.Height)
	}
	if !ValidRotation(t.Rotation) {
		return nil, fmt.Errorf("invalid rotation %d", t.Rotation)
	}

	b := src.Bounds()
	crop := ZoomCrop(b.Dx(), b.Dy(), t.Zoom).Add(b.Min)

	outW, outH := t.OutputSize()
	dst := image.NewRGBA(image.Rect(0, 0, outW, outH))

	kx := float64(t.Width) / float64(crop.Dx())
	ky := float64(t.Height) / float64(crop.Dy())
	x0, y0 := float64(crop.Min.X), float64(crop.Min.Y)
	w, h := float64(t.Width), float64(t.Height)

	var m f64.Aff3
	switch t.Rotation {
	case 0:
		m = f64.Aff3{kx, 0, -x0 * kx, 0, ky, -y0 * ky}
	case 90:
		m = f64.Aff3{0, -ky, h + y0*ky, kx, 0, -x0 * kx}
	case 180:
		m = f64.Aff3{-kx, 0, w + x0*kx, 0, -ky, h + y0*ky}
	case 270:
		m = f64.Aff3{0, ky, -y0 * ky, -kx, 0, w + x0*kx}
	}

	draw.CatmullRom.Transform(dst, m, src, crop, draw.Src, nil)
	return dst, nil
}
