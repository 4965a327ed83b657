package camera

import (
	"fmt"
	"strings"

	"github.com/smazurov/camerapipe/internal/buffers"
	"github.com/smazurov/camerapipe/internal/capture"
	"github.com/smazurov/camerapipe/internal/imaging"
	"github.com/smazurov/camerapipe/internal/preview"
)

// Minimum preview and picture size.
const (
	MinWidth  = 128
	MinHeight = 96
)

// Parameters is the configuration the pipeline reads at preview start and
// at capture time.
type Parameters struct {
	PreviewWidth  int    `json:"preview_width"`
	PreviewHeight int    `json:"preview_height"`
	PreviewFormat string `json:"preview_format"`
	PreviewFPS    int    `json:"preview_fps"`

	PictureWidth  int    `json:"picture_width"`
	PictureHeight int    `json:"picture_height"`
	PictureFormat string `json:"picture_format"`
	Quality       int    `json:"quality"`

	Zoom            int                  `json:"zoom"`
	Rotation        int                  `json:"rotation"`
	Filter          imaging.FilterParams `json:"filter"`
	SnapshotPreview bool                 `json:"snapshot_preview"`
}

// DefaultParameters returns VGA YUYV preview at 30 fps and 1280x960 JPEG
// pictures.
func DefaultParameters() Parameters {
	return Parameters{
		PreviewWidth:  640,
		PreviewHeight: 480,
		PreviewFormat: "yuyv",
		PreviewFPS:    30,
		PictureWidth:  1280,
		PictureHeight: 960,
		PictureFormat: "jpeg",
		Quality:       imaging.DefaultQuality,
		Zoom:          imaging.MinZoom,
		Filter:        imaging.FilterParams{Mode: imaging.FilterOff},
	}
}

// Normalized fills unset fields and clamps quality the way the encoder
// does.
func (p Parameters) Normalized() Parameters {
	p.PreviewFormat = strings.ToLower(strings.TrimSpace(p.PreviewFormat))
	p.PictureFormat = strings.ToLower(strings.TrimSpace(p.PictureFormat))
	if p.PreviewFormat == "" {
		p.PreviewFormat = "yuyv"
	}
	if p.PictureFormat == "" || p.PictureFormat == "jpg" {
		p.PictureFormat = "jpeg"
	}
	if p.Zoom == 0 {
		p.Zoom = imaging.MinZoom
	}
	if p.Filter.Mode == "" {
		p.Filter.Mode = imaging.FilterOff
	}
	p.Quality = imaging.ClampQuality(p.Quality)
	return p
}

// Validate rejects values the pipeline cannot honor.
func (p Parameters) Validate() error {
	if p.PreviewFormat != "yuyv" {
		return fmt.Errorf("%w: preview format %q not supported", ErrConfigRejected, p.PreviewFormat)
	}
	if p.PictureFormat != "jpeg" {
		return fmt.Errorf("%w: picture format %q not supported", ErrConfigRejected, p.PictureFormat)
	}
	if err := checkSize("preview", p.PreviewWidth, p.PreviewHeight); err != nil {
		return err
	}
	if err := checkSize("picture", p.PictureWidth, p.PictureHeight); err != nil {
		return err
	}
	if p.PreviewFPS < 1 || p.PreviewFPS > 120 {
		return fmt.Errorf("%w: preview frame rate %d out of range 1..120", ErrConfigRejected, p.PreviewFPS)
	}
	if p.Zoom < imaging.MinZoom || p.Zoom > imaging.MaxZoom {
		return fmt.Errorf("%w: zoom %d out of range %d..%d", ErrConfigRejected, p.Zoom, imaging.MinZoom, imaging.MaxZoom)
	}
	if !imaging.ValidRotation(p.Rotation) {
		return fmt.Errorf("%w: rotation %d", ErrConfigRejected, p.Rotation)
	}
	if err := p.Filter.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigRejected, err)
	}
	return nil
}

func checkSize(what string, w, h int) error {
	if w < MinWidth || h < MinHeight {
		return fmt.Errorf("%w: %s size %dx%d below %dx%d", ErrConfigRejected, what, w, h, MinWidth, MinHeight)
	}
	if w%2 != 0 {
		return fmt.Errorf("%w: %s width %d must be even", ErrConfigRejected, what, w)
	}
	return nil
}

// PreviewConfig is the Start command payload for these parameters.
func (p Parameters) PreviewConfig() preview.Config {
	return preview.Config{
		Format: buffers.Format{
			Width:       p.PreviewWidth,
			Height:      p.PreviewHeight,
			PixelFormat: buffers.PixelFormatYUYV,
		},
		FPS:  p.PreviewFPS,
		Zoom: p.Zoom,
	}
}

// PictureSettings snapshots the picture side for one capture request.
// Rotation is applied by the resample, so the requested size is the
// unrotated one.
func (p Parameters) PictureSettings() capture.Settings {
	return capture.Settings{
		Width:           p.PictureWidth,
		Height:          p.PictureHeight,
		Quality:         p.Quality,
		Zoom:            p.Zoom,
		Rotation:        p.Rotation,
		Filter:          p.Filter,
		SnapshotPreview: p.SnapshotPreview,
	}
}
