package cmd

import (
	"bytes"
	"context"
	"image/jpeg"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/camerapipe/internal/device"
)

func TestRunSnapshotSynthetic(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	cfg := "[camera]\npreview_width = 160\npreview_height = 120\npicture_width = 640\npicture_height = 480\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	data, err := RunSnapshot(ctx, SnapshotOptions{
		Device:  device.SyntheticPath,
		Config:  cfgPath,
		Width:   320,
		Height:  240,
		Quality: 80,
		Warmup:  50 * time.Millisecond,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("RunSnapshot failed: %v", err)
	}

	img, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Invalid JPEG: %v", err)
	}
	// Flags override the config file.
	if img.Width != 320 || img.Height != 240 {
		t.Errorf("Expected 320x240, got %dx%d", img.Width, img.Height)
	}
}

func TestSnapshotCmdWritesFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "shot.jpg")

	cmd := CreateSnapshotCmd()
	cmd.SetArgs([]string{
		"--config", filepath.Join(dir, "missing.toml"),
		"--output", out,
		"--width", "256",
		"--height", "192",
		"--warmup", "20ms",
	})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("Snapshot not written: %v", err)
	}
	if info.Size() == 0 {
		t.Error("Snapshot is empty")
	}
}

func TestWriteInspect(t *testing.T) {
	info := &device.Info{
		Path:    "/dev/video0",
		Driver:  "uvcvideo",
		Card:    "USB Camera",
		BusInfo: "usb-0000:00:14.0-1",
		Formats: []device.FormatInfo{{
			FourCC: "YUYV",
			Sizes: []device.SizeInfo{
				{Width: 640, Height: 480, FrameRates: []int{30, 15}},
				{Width: 1280, Height: 720},
			},
		}},
	}

	var buf bytes.Buffer
	if err := WriteInspect(&buf, info); err != nil {
		t.Fatalf("WriteInspect failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"USB Camera", "YUYV", "640x480 @ 30,15 fps", "1280x720\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q:\n%s", want, out)
		}
	}
}
