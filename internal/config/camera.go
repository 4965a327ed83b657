package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/camerapipe/internal/camera"
	"github.com/smazurov/camerapipe/internal/imaging"
)

// CameraConfig is the [camera] section of the config file. Zero values
// fall back to the camera defaults.
type CameraConfig struct {
	PreviewWidth  int    `toml:"preview_width,omitempty"`
	PreviewHeight int    `toml:"preview_height,omitempty"`
	PreviewFormat string `toml:"preview_format,omitempty"`
	PreviewFPS    int    `toml:"preview_fps,omitempty"`

	PictureWidth  int    `toml:"picture_width,omitempty"`
	PictureHeight int    `toml:"picture_height,omitempty"`
	PictureFormat string `toml:"picture_format,omitempty"`
	Quality       int    `toml:"quality,omitempty"`

	Zoom            int  `toml:"zoom,omitempty"`
	Rotation        int  `toml:"rotation,omitempty"`
	SnapshotPreview bool `toml:"snapshot_preview,omitempty"`

	Filter imaging.FilterParams `toml:"filter,omitempty"`
}

type cameraFile struct {
	Camera CameraConfig `toml:"camera"`
}

// LoadCamera reads the [camera] section from path. A missing file yields
// an empty section.
func LoadCamera(path string) (CameraConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return CameraConfig{}, nil
	}
	if err != nil {
		return CameraConfig{}, fmt.Errorf("failed to read camera config: %w", err)
	}

	var file cameraFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return CameraConfig{}, fmt.Errorf("failed to parse camera config: %w", err)
	}
	return file.Camera, nil
}

// SaveCamera writes cfg as the [camera] section, keeping every other
// section of an existing file.
func SaveCamera(path string, cfg CameraConfig) error {
	doc := make(map[string]any)
	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse existing config: %w", err)
		}
	}

	section, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal camera config: %w", err)
	}
	var camera map[string]any
	if err := toml.Unmarshal(section, &camera); err != nil {
		return fmt.Errorf("failed to marshal camera config: %w", err)
	}
	doc["camera"] = camera

	data, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Apply overlays the non-zero fields of c onto base.
func (c CameraConfig) Apply(base camera.Parameters) camera.Parameters {
	setInt(&base.PreviewWidth, c.PreviewWidth)
	setInt(&base.PreviewHeight, c.PreviewHeight)
	setInt(&base.PreviewFPS, c.PreviewFPS)
	setInt(&base.PictureWidth, c.PictureWidth)
	setInt(&base.PictureHeight, c.PictureHeight)
	setInt(&base.Quality, c.Quality)
	setInt(&base.Zoom, c.Zoom)
	setInt(&base.Rotation, c.Rotation)
	if c.PreviewFormat != "" {
		base.PreviewFormat = c.PreviewFormat
	}
	if c.PictureFormat != "" {
		base.PictureFormat = c.PictureFormat
	}
	if c.SnapshotPreview {
		base.SnapshotPreview = true
	}
	if c.Filter.Mode != "" {
		base.Filter = c.Filter
	}
	return base.Normalized()
}

// CameraConfigFrom converts parameters into their file form.
func CameraConfigFrom(p camera.Parameters) CameraConfig {
	return CameraConfig{
		PreviewWidth:    p.PreviewWidth,
		PreviewHeight:   p.PreviewHeight,
		PreviewFormat:   p.PreviewFormat,
		PreviewFPS:      p.PreviewFPS,
		PictureWidth:    p.PictureWidth,
		PictureHeight:   p.PictureHeight,
		PictureFormat:   p.PictureFormat,
		Quality:         p.Quality,
		Zoom:            p.Zoom,
		Rotation:        p.Rotation,
		SnapshotPreview: p.SnapshotPreview,
		Filter:          p.Filter,
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
