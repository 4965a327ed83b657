package led

import (
	"log/slog"
	"os"
	"strings"

	"github.com/smazurov/camerapipe/internal/logging"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// board maps a device tree model to the LEDs the camera may drive.
type board struct {
	model string
	leds  map[string]string
}

var boards = []board{
	{model: "NanoPC-T6", leds: map[string]string{"user": "usr_led", "system": "sys_led"}},
	{model: "Orange Pi", leds: map[string]string{"blue": "blue_led", "green": "green_led"}},
	{model: "Raspberry Pi", leds: map[string]string{"act": "ACT", "pwr": "PWR"}},
}

// New returns a controller for the board it runs on, or a no-op
// controller when the board is unknown.
func New(logger *slog.Logger) Controller {
	if logger == nil {
		logger = logging.GetLogger("led")
	}
	return forModel(readModel(deviceTreeModelPath), sysfsLEDPath, logger)
}

func forModel(model, root string, logger *slog.Logger) Controller {
	for _, b := range boards {
		if strings.Contains(model, b.model) {
			logger.Info("Using sysfs LEDs for camera status", "board", b.model, "root", root)
			return newSysfs(root, b.leds)
		}
	}
	logger.Info("No camera status LEDs on this board", "board_model", model)
	return noop{logger: logger}
}

// readModel returns the device tree model, or "unknown".
func readModel(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	return strings.TrimRight(string(data), "\x00\n")
}
