package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/camerapipe/internal/camera"
	"github.com/smazurov/camerapipe/internal/capture"
	"github.com/smazurov/camerapipe/internal/config"
	"github.com/smazurov/camerapipe/internal/device"
	"github.com/smazurov/camerapipe/internal/logging"
	"github.com/smazurov/camerapipe/internal/sink"
)

// SnapshotOptions are the flags of the snapshot command.
type SnapshotOptions struct {
	Device  string
	Config  string
	Output  string
	Width   int
	Height  int
	Quality int
	Warmup  time.Duration
	Timeout time.Duration
}

// CreateSnapshotCmd creates the snapshot command.
func CreateSnapshotCmd() *cobra.Command {
	opts := SnapshotOptions{}
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Capture one still picture to a file",
		Long: `Starts the preview on the device, waits for the sensor to settle, takes one ` +
			`picture with the configured picture parameters and writes the JPEG to the output file.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			loggingConfig := config.LoadLoggingConfig(opts.Config)
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("snapshot").With("device", opts.Device)

			ctx, cancel := context.WithTimeout(c.Context(), opts.Timeout)
			defer cancel()

			data, err := RunSnapshot(ctx, opts, logger)
			if err != nil {
				logger.Error("Snapshot failed", "error", err)
				return err
			}
			if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", opts.Output, err)
			}
			logger.Info("Snapshot written", "path", opts.Output, "bytes", len(data))
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.Device, "device", "d", device.SyntheticPath, "Capture device path, or \"synthetic\"")
	cmd.Flags().StringVarP(&opts.Config, "config", "c", "config.toml", "Configuration file with a [camera] section")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "snapshot.jpg", "Output file")
	cmd.Flags().IntVar(&opts.Width, "width", 0, "Picture width (overrides config)")
	cmd.Flags().IntVar(&opts.Height, "height", 0, "Picture height (overrides config)")
	cmd.Flags().IntVarP(&opts.Quality, "quality", "q", 0, "JPEG quality 1-100 (overrides config)")
	cmd.Flags().DurationVar(&opts.Warmup, "warmup", 500*time.Millisecond, "Preview time before the capture")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 15*time.Second, "Overall time limit")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Log as JSON")
	return cmd
}

// RunSnapshot brings a camera up, takes one picture and releases the
// camera. It returns the encoded picture.
func RunSnapshot(ctx context.Context, opts SnapshotOptions, logger *slog.Logger) ([]byte, error) {
	section, err := config.LoadCamera(opts.Config)
	if err != nil {
		return nil, err
	}
	overrides := config.CameraConfig{
		PictureWidth:  opts.Width,
		PictureHeight: opts.Height,
		Quality:       opts.Quality,
	}
	params := overrides.Apply(section.Apply(camera.DefaultParameters()))

	dev, err := device.Open(opts.Device, 0, logger)
	if err != nil {
		return nil, err
	}
	cam, err := camera.New(camera.Options{
		Name:       opts.Device,
		Device:     dev,
		Sink:       sink.NewDisplay(3),
		Parameters: params,
		Logger:     logger,
	})
	if err != nil {
		_ = dev.Close()
		return nil, err
	}
	defer func() {
		if relErr := cam.Release(context.WithoutCancel(ctx)); relErr != nil {
			logger.Warn("Release failed", "error", relErr)
		}
	}()

	if err := cam.Initialize(); err != nil {
		return nil, err
	}
	if err := cam.StartPreview(ctx); err != nil {
		return nil, fmt.Errorf("start preview: %w", err)
	}

	select {
	case <-time.After(opts.Warmup):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	result := make(chan []byte, 1)
	req, err := cam.TakePicture(ctx, capture.Callbacks{
		Shutter: func(any) { logger.Debug("Shutter") },
		Encoded: func(data []byte, _ any) { result <- data },
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("take picture: %w", err)
	}

	select {
	case data := <-result:
		return data, nil
	case <-req.Done():
		select {
		case data := <-result:
			return data, nil
		default:
		}
		if err := req.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("picture %s produced no image", req.ID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
