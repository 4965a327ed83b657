package imaging

import (
	"image"

	"github.com/nfnt/resize"
)

// Downscale shrinks a captured frame to the preview size for the snapshot
// freeze-frame. Quality matters less than speed here, so it is bilinear.
func Downscale(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	return resize.Resize(uint(width), uint(height), img, resize.Bilinear)
}
