package buffers

import "fmt"

// Pixel formats, encoded as V4L2 fourcc values.
const (
	PixelFormatYUYV  uint32 = 'Y' | 'U'<<8 | 'Y'<<16 | 'V'<<24
	PixelFormatNV12  uint32 = 'N' | 'V'<<8 | '1'<<16 | '2'<<24
	PixelFormatMJPEG uint32 = 'M' | 'J'<<8 | 'P'<<16 | 'G'<<24
)

// Format describes the geometry and pixel layout of every buffer in a set.
type Format struct {
	Width       int
	Height      int
	PixelFormat uint32
}

// FrameSize returns the number of bytes one frame of this format occupies.
// MJPEG frames are sized for the worst case of an uncompressed 8-bit plane.
func (f Format) FrameSize() int {
	pixels := f.Width * f.Height
	switch f.PixelFormat {
	case PixelFormatYUYV:
		return pixels * 2
	case PixelFormatNV12:
		return pixels * 3 / 2
	default:
		return pixels
	}
}

// Valid reports whether the format has a usable geometry.
func (f Format) Valid() bool {
	return f.Width > 0 && f.Height > 0 && f.PixelFormat != 0
}

func (f Format) String() string {
	return fmt.Sprintf("%dx%d %s", f.Width, f.Height, FourCC(f.PixelFormat))
}

// FourCC renders a pixel format code as its four character name.
func FourCC(code uint32) string {
	return string([]byte{byte(code), byte(code >> 8), byte(code >> 16), byte(code >> 24)})
}

// ParseFourCC is the inverse of FourCC. Names shorter than four characters
// are padded with spaces the way V4L2 does.
func ParseFourCC(name string) (uint32, error) {
	if len(name) == 0 || len(name) > 4 {
		return 0, fmt.Errorf("invalid fourcc %q", name)
	}
	b := []byte("    ")
	copy(b, name)
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}
