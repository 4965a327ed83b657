package led

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

const sysfsLEDPath = "/sys/class/leds"

// blinkPeriod is the on and off time of the idle blink.
const blinkPeriod = 500 * time.Millisecond

// sysfs drives LEDs through /sys/class/leds. Blink uses the kernel timer
// trigger and Heartbeat the heartbeat trigger; Solid and Off are manual.
type sysfs struct {
	root string
	leds map[string]string // LED name -> sysfs directory
}

func newSysfs(root string, leds map[string]string) *sysfs {
	return &sysfs{root: root, leds: leds}
}

func (s *sysfs) Show(led string, ind Indicator) error {
	name, ok := s.leds[led]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownLED, led)
	}
	dir := filepath.Join(s.root, name)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("LED %q: %w", led, err)
	}

	switch ind {
	case Off:
		return s.write(dir, "trigger", "none", "brightness", "0")
	case Solid:
		return s.write(dir, "trigger", "none", "brightness", s.maxBrightness(dir))
	case Blink:
		ms := strconv.FormatInt(blinkPeriod.Milliseconds(), 10)
		return s.write(dir, "trigger", "timer", "delay_on", ms, "delay_off", ms)
	case Heartbeat:
		return s.write(dir, "trigger", "heartbeat")
	default:
		return fmt.Errorf("LED %q: unknown indicator %q", led, ind)
	}
}

func (s *sysfs) LEDs() []string {
	names := make([]string, 0, len(s.leds))
	for name := range s.leds {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// write sets attribute/value pairs in order. The timer trigger creates its
// delay attributes, so the trigger goes first.
func (s *sysfs) write(dir string, kv ...string) error {
	for i := 0; i+1 < len(kv); i += 2 {
		if err := os.WriteFile(filepath.Join(dir, kv[i]), []byte(kv[i+1]), 0o644); err != nil {
			return fmt.Errorf("set %s: %w", kv[i], err)
		}
	}
	return nil
}

func (s *sysfs) maxBrightness(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "max_brightness"))
	if err != nil {
		return "1"
	}
	if v := strings.TrimSpace(string(data)); v != "" && v != "0" {
		return v
	}
	return "1"
}
