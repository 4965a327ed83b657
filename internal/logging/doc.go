// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to systemd journal when available (Linux systems with journald)
//   - Logs to stdout when a terminal, pipe, or file is connected
//   - Logs to both when both are available
//
// # Usage
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",      // Global log level: debug, info, warn, error
//		Format: "text",      // Output format: text or json
//		Modules: map[string]string{
//			"preview": "debug",  // Per-module overrides
//			"api":     "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("mymodule")
//	logger.Info("Starting up", "port", 8080)
//	logger.Debug("Details", "config", cfg)
//	logger.Warn("Something unusual", "error", err)
//	logger.Error("Failed", "error", err)
//
// Add contextual attributes:
//
//	logger := logging.GetLogger("camera").With("request_id", id)
//	logger.Info("Capture started")  // Includes request_id in all logs
//
// # Log Levels
//
//	debug - Verbose debugging information
//	info  - General operational messages
//	warn  - Warning conditions
//	error - Error conditions
//
// # Output Destinations
//
// The system automatically detects available outputs:
//
//	Journal available + stdout available → MultiHandler (both)
//	Journal available only              → JournalHandler
//	Stdout available only               → TextHandler or JSONHandler
//
// Journal availability is checked via [github.com/coreos/go-systemd/v22/journal.Enabled].
//
// # Viewing Logs
//
// When running as a systemd service or on a system with journald:
//
//	journalctl -t camerapipe              # All camerapipe logs
//	journalctl -t camerapipe -f           # Follow live
//	journalctl -t camerapipe --since "5m" # Last 5 minutes
//	journalctl -t camerapipe -p err       # Errors only
//
// Filter by structured fields:
//
//	journalctl -t camerapipe CAMERAPIPE_MODULE=preview
//	journalctl -t camerapipe CAMERA_DEVICE=/dev/video0
//	journalctl -t camerapipe CAPTURE_REQUEST_ID=5f0c6f1e-8d2b-4b8e-9a43-1b7f3d2e9c10
//
// # Repeat suppression
//
// The frame loop can hit the same error on every frame. Each module may
// write repeat_burst records with the same message per second; the rest
// are dropped and counted, and the next record that gets through carries
// a suppressed=N attribute. Zero disables the limit.
//
// # Configuration
//
// Log levels can be set globally or per-module. Module-specific levels
// override the global level for that module only.
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//	repeat_burst = 5
//	preview = "debug"
//	api = "warn"
//	staging = "error"
package logging
