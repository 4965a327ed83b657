// Package imaging holds the still-capture transforms: YUYV conversion,
// zoom and rotation resampling, snapshot downscaling, the noise and edge
// filter, and the encoder.
package imaging

import (
	"fmt"
	"image"
	"image/color"
)

// FromYUYV wraps a packed YUYV frame as a 4:2:2 YCbCr image. The planes are
// copied, so the result does not alias data.
func FromYUYV(data []byte, width, height int) (*image.YCbCr, error) {
	if width <= 0 || height <= 0 || width%2 != 0 {
		return nil, fmt.Errorf("invalid YUYV geometry %dx%d", width, height)
	}
	if len(data) < width*height*2 {
		return nil, fmt.Errorf("YUYV frame has %d bytes, need %d", len(data), width*height*2)
	}

	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	for y := 0; y < height; y++ {
		row := data[y*width*2 : (y+1)*width*2]
		yOff := y * img.YStride
		cOff := y * img.CStride
		for x := 0; x < width; x += 2 {
			i := x * 2
			img.Y[yOff+x] = row[i]
			img.Y[yOff+x+1] = row[i+2]
			img.Cb[cOff+x/2] = row[i+1]
			img.Cr[cOff+x/2] = row[i+3]
		}
	}
	return img, nil
}

// ToYUYV packs img into dst as YUYV. Chroma of each pixel pair is averaged.
func ToYUYV(img image.Image, dst []byte) error {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width%2 != 0 {
		return fmt.Errorf("YUYV needs an even width, got %d", width)
	}
	if len(dst) < width*height*2 {
		return fmt.Errorf("destination has %d bytes, need %d", len(dst), width*height*2)
	}

	for y := 0; y < height; y++ {
		row := dst[y*width*2 : (y+1)*width*2]
		for x := 0; x < width; x += 2 {
			c0 := color.YCbCrModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.YCbCr)
			c1 := color.YCbCrModel.Convert(img.At(b.Min.X+x+1, b.Min.Y+y)).(color.YCbCr)
			i := x * 2
			row[i] = c0.Y
			row[i+1] = uint8((uint16(c0.Cb) + uint16(c1.Cb)) / 2)
			row[i+2] = c1.Y
			row[i+3] = uint8((uint16(c0.Cr) + uint16(c1.Cr)) / 2)
		}
	}
	return nil
}

// Sharpness is the mean absolute horizontal luma difference of a YUYV
// frame, a cheap contrast score for contrast-detect autofocus. Frames too
// short for their geometry score 0.
func Sharpness(data []byte, width, height int) int {
	if width < 2 || height <= 0 || len(data) < width*height*2 {
		return 0
	}
	var sum, n int
	for y := 0; y < height; y++ {
		row := data[y*width*2 : (y+1)*width*2]
		// Luma sits at even offsets.
		for i := 2; i < len(row); i += 2 {
			d := int(row[i]) - int(row[i-2])
			if d < 0 {
				d = -d
			}
			sum += d
			n++
		}
	}
	return sum / n
}
