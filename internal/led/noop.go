package led

import "log/slog"

// noop is used on boards without controllable LEDs.
type noop struct {
	logger *slog.Logger
}

func (n noop) Show(led string, ind Indicator) error {
	n.logger.Debug("No LED to show camera status", "led", led, "indicator", string(ind))
	return nil
}

func (noop) LEDs() []string {
	return []string{}
}
