package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/camerapipe/cmd"
	"github.com/smazurov/camerapipe/internal/api"
	"github.com/smazurov/camerapipe/internal/camera"
	"github.com/smazurov/camerapipe/internal/config"
	"github.com/smazurov/camerapipe/internal/device"
	"github.com/smazurov/camerapipe/internal/events"
	"github.com/smazurov/camerapipe/internal/focus"
	"github.com/smazurov/camerapipe/internal/imaging"
	"github.com/smazurov/camerapipe/internal/led"
	"github.com/smazurov/camerapipe/internal/logging"
	"github.com/smazurov/camerapipe/internal/metrics/exporters"
	"github.com/smazurov/camerapipe/internal/sink"
	"github.com/smazurov/camerapipe/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Device settings
	Device            string `help:"Capture device path, or synthetic" short:"d" default:"/dev/video0" toml:"device.path" env:"DEVICE_PATH"`
	DeviceMinBuffers  int    `help:"Buffers the device needs to stream" default:"3" toml:"device.min_buffers" env:"DEVICE_MIN_BUFFERS"`
	DisplayBuffers    int    `help:"Buffers the display can hold" default:"3" toml:"device.display_buffers" env:"DEVICE_DISPLAY_BUFFERS"`
	OptimalQueueDepth int    `help:"Buffers kept queued to the device" default:"3" toml:"pipeline.optimal_queue_depth" env:"PIPELINE_OPTIMAL_QUEUE_DEPTH"`
	PoolBudget        int    `help:"Byte limit for one buffer set, 0 for none" default:"0" toml:"pipeline.pool_budget" env:"PIPELINE_POOL_BUDGET"`
	StageQueueSize    int    `help:"Messages each capture stage can hold" default:"8" toml:"pipeline.stage_queue_size" env:"PIPELINE_STAGE_QUEUE_SIZE"`
	CommandQueueSize  int    `help:"Commands the preview worker can hold" default:"8" toml:"pipeline.command_queue_size" env:"PIPELINE_COMMAND_QUEUE_SIZE"`
	AutoStartPreview  bool   `help:"Start the preview when the server starts" default:"true" toml:"pipeline.auto_start_preview" env:"PIPELINE_AUTO_START_PREVIEW"`

	// Focus settings
	FocusMode     string `help:"Autofocus engine (fixed, sweep)" default:"fixed" toml:"focus.mode" env:"FOCUS_MODE"`
	FocusSteps    int    `help:"Lens positions a sweep visits" default:"10" toml:"focus.steps" env:"FOCUS_STEPS"`
	FocusMinScore int    `help:"Contrast a sweep must reach to succeed" default:"8" toml:"focus.min_score" env:"FOCUS_MIN_SCORE"`

	// Capture settings
	PictureTimeoutMs int `help:"Timeout for synchronous picture and focus requests in milliseconds" default:"10000" toml:"capture.timeout_ms" env:"CAPTURE_TIMEOUT_MS"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Features settings
	FeaturesLEDControl bool   `help:"Enable LED control" default:"false" toml:"features.led_control_enabled" env:"FEATURES_LED_CONTROL"`
	FeaturesLED        string `help:"LED that mirrors camera state" default:"system" toml:"features.status_led" env:"FEATURES_STATUS_LED"`
	FeaturesHotReload  bool   `help:"Apply [camera] changes from the config file at runtime" default:"true" toml:"features.hot_reload" env:"FEATURES_HOT_RELOAD"`

	// Logging settings
	LoggingLevel       string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat      string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingRepeatBurst int    `help:"Identical records a module may log per second, 0 for no limit" default:"5" toml:"logging.repeat_burst" env:"LOGGING_REPEAT_BURST"`
	LoggingPreview     string `help:"Preview worker logging level" default:"info" toml:"logging.preview" env:"LOGGING_PREVIEW"`
	LoggingCirculation string `help:"Buffer circulation logging level" default:"info" toml:"logging.circulation" env:"LOGGING_CIRCULATION"`
	LoggingStaging     string `help:"Capture staging logging level" default:"info" toml:"logging.staging" env:"LOGGING_STAGING"`
	LoggingCamera      string `help:"Camera handle logging level" default:"info" toml:"logging.camera" env:"LOGGING_CAMERA"`
	LoggingDevice      string `help:"Device logging level" default:"info" toml:"logging.device" env:"LOGGING_DEVICE"`
	LoggingAPI         string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

// rootCmd is set once the CLI exists so LoadConfig can tell which flags
// were given explicitly.
var rootCmd *cobra.Command

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, rootCmd); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:       opts.LoggingLevel,
			Format:      opts.LoggingFormat,
			RepeatBurst: opts.LoggingRepeatBurst,
			Modules: map[string]string{
				"preview":     opts.LoggingPreview,
				"circulation": opts.LoggingCirculation,
				"staging":     opts.LoggingStaging,
				"camera":      opts.LoggingCamera,
				"device":      opts.LoggingDevice,
				"api":         opts.LoggingAPI,
				"http":        opts.LoggingAPI,
			},
		})
		logger := logging.GetLogger("main")
		logger.Info("Starting", "version", version.String(), "device", opts.Device)

		eventBus := events.New()
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(events.LogEntryEvent{
				Seq:        entry.Seq,
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		section, err := config.LoadCamera(opts.Config)
		if err != nil {
			logger.Warn("Failed to load camera config, using defaults", "error", err)
		}
		params := section.Apply(camera.DefaultParameters())

		dev, err := device.Open(opts.Device, opts.DeviceMinBuffers, nil)
		if err != nil {
			logger.Error("Failed to open capture device", "error", err)
			os.Exit(1)
		}
		display := sink.NewDisplay(opts.DisplayBuffers)

		cam, err := camera.New(camera.Options{
			Name:              opts.Device,
			Device:            dev,
			Sink:              display,
			Focus:             newFocusEngine(opts, display, logger),
			Parameters:        params,
			OptimalQueueDepth: opts.OptimalQueueDepth,
			PoolBudget:        opts.PoolBudget,
			StageQueueSize:    opts.StageQueueSize,
			CommandQueueSize:  opts.CommandQueueSize,
			Events:            eventBus,
		})
		if err != nil {
			logger.Error("Invalid camera configuration", "error", err)
			os.Exit(1)
		}

		var ledManager *led.Manager
		var ledController led.Controller
		if opts.FeaturesLEDControl {
			logger.Info("LED control enabled, initializing")
			ledController = led.New(logging.GetLogger("led"))
			ledManager = led.NewManager(ledController, eventBus, logging.GetLogger("led"), opts.FeaturesLED)
		}

		var watcher *config.Watcher[config.CameraConfig]
		if opts.FeaturesHotReload {
			watcher = config.NewConfigWatcher(opts.Config, config.LoadCamera, nil)
			watcher.OnReload(func(cfg config.CameraConfig) {
				next := cfg.Apply(camera.DefaultParameters()).Normalized()
				if next == cam.Parameters() {
					return
				}
				if setErr := cam.SetParameters(next); setErr != nil {
					logger.Warn("Ignoring invalid camera config", "error", setErr)
				}
			})
		}

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Camera:            cam,
			EventBus:          eventBus,
			Display:           display,
			LEDController:     ledController,
			PrometheusHandler: exporters.HTTPHandler(),
			ConfigPath:        opts.Config,
			PictureTimeout:    time.Duration(opts.PictureTimeoutMs) * time.Millisecond,
		})

		hooks.OnStart(func() {
			if ledManager != nil {
				ledManager.Start()
			}
			if initErr := cam.Initialize(); initErr != nil {
				logger.Error("Failed to initialize camera", "error", initErr)
				os.Exit(1)
			}
			if opts.AutoStartPreview {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if startErr := cam.StartPreview(ctx); startErr != nil {
					logger.Warn("Failed to start preview", "error", startErr)
				}
				cancel()
			}
			if watcher != nil {
				if watchErr := watcher.Start(); watchErr != nil {
					logger.Warn("Config hot reload disabled", "path", opts.Config, "error", watchErr)
				}
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			if watcher != nil {
				_ = watcher.Stop()
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if relErr := cam.Release(ctx); relErr != nil {
				logger.Error("Error releasing camera", "error", relErr)
			}

			if ledManager != nil {
				ledManager.Stop()
			}
		})
	})

	rootCmd = cli.Root()
	rootCmd.Use = version.Name
	rootCmd.Version = version.String()
	rootCmd.AddCommand(cmd.CreateSnapshotCmd())
	rootCmd.AddCommand(cmd.CreateInspectCmd())

	cli.Run()
}

// newFocusEngine builds the autofocus engine. A sweep scores the contrast
// of the frame on the display after each lens step.
func newFocusEngine(opts *Options, display *sink.Display, logger *slog.Logger) focus.Engine {
	switch opts.FocusMode {
	case "sweep":
		return focus.NewSweep(opts.FocusSteps, opts.FocusMinScore, func(int) int {
			frame, ok := display.LastFrame()
			if !ok {
				return 0
			}
			return imaging.Sharpness(frame.Data, frame.Format.Width, frame.Format.Height)
		})
	case "", "fixed":
		return &focus.Fixed{}
	default:
		logger.Warn("Unknown focus mode, using fixed", "mode", opts.FocusMode)
		return &focus.Fixed{}
	}
}
