package imaging

import (
	"image"
	"image/jpeg"
	"io"
)

// DefaultQuality is used when a requested quality is out of range.
const DefaultQuality = 100

// Encoder turns the processed image into the client's output format.
type Encoder interface {
	Encode(w io.Writer, img image.Image, quality int) error
	// Format names the output, e.g. "jpeg".
	Format() string
}

// JPEG encodes baseline JPEG.
type JPEG struct{}

// Encode implements Encoder.
func (JPEG) Encode(w io.Writer, img image.Image, quality int) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: ClampQuality(quality)})
}

// Format implements Encoder.
func (JPEG) Format() string { return "jpeg" }

// ClampQuality maps a quality outside 1..100 to DefaultQuality.
func ClampQuality(q int) int {
	if q < 1 || q > 100 {
		return DefaultQuality
	}
	return q
}
