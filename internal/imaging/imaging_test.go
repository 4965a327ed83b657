package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func solidYUYV(width, height int, y, cb, cr byte) []byte {
	data := make([]byte, width*height*2)
	for i := 0; i < len(data); i += 4 {
		data[i] = y
		data[i+1] = cb
		data[i+2] = y
		data[i+3] = cr
	}
	return data
}

func TestYUYVRoundTrip(t *testing.T) {
	src := solidYUYV(8, 4, 200, 90, 160)

	img, err := FromYUYV(src, 8, 4)
	if err != nil {
		t.Fatalf("FromYUYV failed: %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 4 {
		t.Fatalf("unexpected bounds %v", img.Bounds())
	}

	dst := make([]byte, len(src))
	if err := ToYUYV(img, dst); err != nil {
		t.Fatalf("ToYUYV failed: %v", err)
	}
	if !bytes.Equal(src, dst) {
		t.Errorf("round trip changed the frame")
	}
}

func TestYUYVRejectsBadGeometry(t *testing.T) {
	if _, err := FromYUYV(make([]byte, 10), 3, 2); err == nil {
		t.Error("expected error for odd width")
	}
	if _, err := FromYUYV(make([]byte, 10), 4, 4); err == nil {
		t.Error("expected error for short frame")
	}
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	if err := ToYUYV(img, make([]byte, 8)); err == nil {
		t.Error("expected error for short destination")
	}
}

func TestZoomCrop(t *testing.T) {
	tests := []struct {
		zoom int
		want image.Rectangle
	}{
		{0, image.Rect(0, 0, 640, 480)},
		{1, image.Rect(0, 0, 640, 480)},
		{2, image.Rect(48, 36, 592, 444)},
		{7, image.Rect(160, 120, 480, 360)},
		{9, image.Rect(160, 120, 480, 360)},
	}
	for _, tt := range tests {
		if got := ZoomCrop(640, 480, tt.zoom); got != tt.want {
			t.Errorf("ZoomCrop(640, 480, %d) = %v, want %v", tt.zoom, got, tt.want)
		}
	}
}

func TestTransformOutputSize(t *testing.T) {
	tr := Transform{Width: 640, Height: 480, Rotation: 90}
	if w, h := tr.OutputSize(); w != 480 || h != 640 {
		t.Errorf("rotation 90 output = %dx%d, want 480x640", w, h)
	}
	tr.Rotation = 180
	if w, h := tr.OutputSize(); w != 640 || h != 480 {
		t.Errorf("rotation 180 output = %dx%d, want 640x480", w, h)
	}

	src := image.Rect(0, 0, 640, 480)
	if (Transform{Width: 640, Height: 480, Zoom: 1}).Needed(src) {
		t.Error("identity transform should not need a resample")
	}
	if !(Transform{Width: 320, Height: 240}).Needed(src) {
		t.Error("scaling should need a resample")
	}
}

func halves(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.RGBA{R: 255, A: 255}
			if x >= width/2 {
				c = color.RGBA{B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestResampleRotates(t *testing.T) {
	src := halves(64, 32)

	out, err := Resample(src, Transform{Width: 64, Height: 32, Rotation: 90, Zoom: 1})
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	if out.Bounds().Dx() != 32 || out.Bounds().Dy() != 64 {
		t.Fatalf("rotated bounds = %v, want 32x64", out.Bounds())
	}

	// Clockwise: the left (red) half ends up on top.
	r, _, b, _ := out.At(16, 4).RGBA()
	if r <= b {
		t.Errorf("top of rotated image should be red, got r=%d b=%d", r, b)
	}
	r, _, b, _ = out.At(16, 60).RGBA()
	if b <= r {
		t.Errorf("bottom of rotated image should be blue, got r=%d b=%d", r, b)
	}
}

func TestResampleRejectsInvalid(t *testing.T) {
	src := halves(8, 8)
	if _, err := Resample(src, Transform{Width: 8, Height: 8, Rotation: 45}); err == nil {
		t.Error("expected error for rotation 45")
	}
	if _, err := Resample(src, Transform{Width: 0, Height: 8}); err == nil {
		t.Error("expected error for zero width")
	}
}

func TestDownscale(t *testing.T) {
	src := halves(64, 48)
	out := Downscale(src, 16, 12)
	if out.Bounds().Dx() != 16 || out.Bounds().Dy() != 12 {
		t.Errorf("downscaled bounds = %v", out.Bounds())
	}
	if Downscale(src, 64, 48) != image.Image(src) {
		t.Error("same-size downscale should return the input")
	}
}

func TestEnhancerReinitialisesOnChange(t *testing.T) {
	e := NewEnhancer()
	bounds := image.Rect(0, 0, 16, 16)
	params := FilterParams{Mode: FilterBoth, EdgeStrength: 50, NoiseRadius: 1}

	if err := e.Configure(params, bounds); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if err := e.Configure(params, bounds); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if e.Inits() != 1 {
		t.Errorf("Inits = %d after identical configure, want 1", e.Inits())
	}

	params.EdgeStrength = 80
	_ = e.Configure(params, bounds)
	_ = e.Configure(params, image.Rect(0, 0, 32, 16))
	if e.Inits() != 3 {
		t.Errorf("Inits = %d, want 3", e.Inits())
	}
}

func TestEnhancerKeepsFlatImage(t *testing.T) {
	e := NewEnhancer()
	bounds := image.Rect(0, 0, 8, 8)
	if err := e.Configure(FilterParams{Mode: FilterBoth, EdgeStrength: 100, NoiseRadius: 2}, bounds); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	src := image.NewRGBA(bounds)
	for i := range src.Pix {
		src.Pix[i] = 128
		if i%4 == 3 {
			src.Pix[i] = 255
		}
	}
	out, err := e.Apply(src)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	got := out.(*image.RGBA)
	if !bytes.Equal(got.Pix, src.Pix) {
		t.Error("filtering a flat image should leave it unchanged")
	}

	if _, err := e.Apply(image.NewRGBA(image.Rect(0, 0, 4, 4))); err == nil {
		t.Error("expected error for mismatched bounds")
	}
}

func TestEnhancerSharpensEdge(t *testing.T) {
	e := NewEnhancer()
	src := halves(16, 4)
	if err := e.Configure(FilterParams{Mode: FilterEdge, EdgeStrength: 100}, src.Bounds()); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	out, err := e.Apply(src)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	// Just left of the edge, red is already saturated and blue undershoots.
	_, _, b, _ := out.At(7, 1).RGBA()
	if b != 0 {
		t.Errorf("blue next to the edge = %d, want 0", b)
	}
	r, _, _, _ := out.At(7, 1).RGBA()
	if r != 0xffff {
		t.Errorf("red next to the edge = %d, want saturated", r)
	}
}

func TestFilterParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  FilterParams
		wantErr bool
	}{
		{"zero value", FilterParams{}, false},
		{"both", FilterParams{Mode: FilterBoth, EdgeStrength: 200, NoiseRadius: 8}, false},
		{"unknown mode", FilterParams{Mode: "sepia"}, true},
		{"strength", FilterParams{Mode: FilterEdge, EdgeStrength: 201}, true},
		{"threshold", FilterParams{Mode: FilterEdge, EdgeThreshold: -1}, true},
		{"radius", FilterParams{Mode: FilterNoise, NoiseRadius: 9}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestJPEGEncode(t *testing.T) {
	var buf bytes.Buffer
	if err := (JPEG{}).Encode(&buf, halves(32, 16), 250); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(&buf)
	if err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
	if cfg.Width != 32 || cfg.Height != 16 {
		t.Errorf("decoded size %dx%d, want 32x16", cfg.Width, cfg.Height)
	}
}

func TestClampQuality(t *testing.T) {
	for q, want := range map[int]int{-5: 100, 0: 100, 1: 1, 85: 85, 100: 100, 101: 100} {
		if got := ClampQuality(q); got != want {
			t.Errorf("ClampQuality(%d) = %d, want %d", q, got, want)
		}
	}
}

func TestSharpness(t *testing.T) {
	flat := solidYUYV(16, 4, 100, 128, 128)
	if got := Sharpness(flat, 16, 4); got != 0 {
		t.Errorf("Flat frame scored %d", got)
	}

	// Alternate black and white pixels: every luma step is 200.
	stripes := solidYUYV(16, 4, 0, 128, 128)
	for i := 2; i < len(stripes); i += 4 {
		stripes[i] = 200
	}
	if got := Sharpness(stripes, 16, 4); got != 200 {
		t.Errorf("Striped frame scored %d, want 200", got)
	}

	if got := Sharpness(stripes[:10], 16, 4); got != 0 {
		t.Errorf("Short frame scored %d", got)
	}
}
