package imaging

import (
	"fmt"
	"image"

	"github.com/disintegration/gift"
)

// FilterMode selects which stages of the enhancement filter run.
type FilterMode string

const (
	FilterOff   FilterMode = "off"
	FilterNoise FilterMode = "noise"
	FilterEdge  FilterMode = "edge"
	FilterBoth  FilterMode = "noise+edge"
)

// FilterParams parameterise one capture's filter pass.
type FilterParams struct {
	Mode FilterMode `json:"mode" toml:"mode"`
	// EdgeStrength is the unsharp-mask gain in percent, 0..200.
	EdgeStrength int `json:"edge_strength" toml:"edge_strength"`
	// EdgeThreshold ignores differences at or below this level, 0..255.
	EdgeThreshold int `json:"edge_threshold" toml:"edge_threshold"`
	// NoiseRadius is the box-blur radius used for noise reduction, 0..8.
	NoiseRadius int `json:"noise_radius" toml:"noise_radius"`
}

// Enabled reports whether the parameters ask for any filtering.
func (p FilterParams) Enabled() bool {
	return p.Mode != "" && p.Mode != FilterOff
}

// Validate checks the parameter ranges.
func (p FilterParams) Validate() error {
	switch p.Mode {
	case "", FilterOff, FilterNoise, FilterEdge, FilterBoth:
	default:
		return fmt.Errorf("unknown filter mode %q", p.Mode)
	}
	if p.EdgeStrength < 0 || p.EdgeStrength > 200 {
		return fmt.Errorf("edge strength %d out of range 0..200", p.EdgeStrength)
	}
	if p.EdgeThreshold < 0 || p.EdgeThreshold > 255 {
		return fmt.Errorf("edge threshold %d out of range 0..255", p.EdgeThreshold)
	}
	if p.NoiseRadius < 0 || p.NoiseRadius > 8 {
		return fmt.Errorf("noise radius %d out of range 0..8", p.NoiseRadius)
	}
	return nil
}

// Filter is the noise-reduction and edge-enhancement strategy. Configure is
// called before every Apply and re-initialises the filter when the
// parameters or the image geometry changed since the previous call.
type Filter interface {
	Configure(params FilterParams, bounds image.Rectangle) error
	Apply(img image.Image) (image.Image, error)
}

// Enhancer is the built-in Filter: a mean filter for noise reduction
// followed by a thresholded unsharp mask.
type Enhancer struct {
	params FilterParams
	bounds image.Rectangle
	g      *gift.GIFT
	inits  int
}

// NewEnhancer creates an unconfigured Enhancer.
func NewEnhancer() *Enhancer {
	return &Enhancer{}
}

// Configure implements Filter.
func (e *Enhancer) Configure(params FilterParams, bounds image.Rectangle) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if e.g != nil && params == e.params && bounds == e.bounds {
		return nil
	}
	e.params = params
	e.bounds = bounds
	e.g = gift.New(filters(params)...)
	e.inits++
	return nil
}

// Inits returns how many times the filter has been (re)initialised.
func (e *Enhancer) Inits() int {
	return e.inits
}

// Apply implements Filter.
func (e *Enhancer) Apply(img image.Image) (image.Image, error) {
	if e.g == nil {
		return nil, fmt.Errorf("filter not configured")
	}
	if img.Bounds() != e.bounds {
		return nil, fmt.Errorf("image bounds %v do not match configured %v", img.Bounds(), e.bounds)
	}
	dst := image.NewRGBA(e.g.Bounds(e.bounds))
	e.g.Draw(dst, img)
	return dst, nil
}

// edgeSigma is the gaussian radius of the unsharp mask, about three pixels.
const edgeSigma = 1.0

func filters(p FilterParams) []gift.Filter {
	var fs []gift.Filter
	if (p.Mode == FilterNoise || p.Mode == FilterBoth) && p.NoiseRadius > 0 {
		fs = append(fs, gift.Mean(2*p.NoiseRadius+1, false))
	}
	if p.Mode == FilterEdge || p.Mode == FilterBoth {
		amount := float32(p.EdgeStrength) / 100
		threshold := float32(p.EdgeThreshold) / 255
		fs = append(fs, gift.UnsharpMask(edgeSigma, amount, threshold))
	}
	return fs
}
