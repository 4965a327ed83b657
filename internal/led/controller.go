package led

import (
	"errors"
	"fmt"
)

// ErrUnknownLED is returned for an LED the board does not have.
var ErrUnknownLED = errors.New("unknown LED")

// Indicator is a camera status as shown on an LED.
type Indicator string

const (
	Off       Indicator = "off"
	Solid     Indicator = "solid"     // preview streaming
	Blink     Indicator = "blink"     // camera idle
	Heartbeat Indicator = "heartbeat" // still capture in flight
)

// Indicators lists every indicator a Controller can show.
func Indicators() []Indicator {
	return []Indicator{Off, Solid, Blink, Heartbeat}
}

// ParseIndicator maps a name to an Indicator. An empty name is Solid.
func ParseIndicator(name string) (Indicator, error) {
	if name == "" {
		return Solid, nil
	}
	for _, ind := range Indicators() {
		if string(ind) == name {
			return ind, nil
		}
	}
	return "", fmt.Errorf("unknown indicator %q", name)
}

// Controller drives the status LEDs of one board.
type Controller interface {
	// Show puts the named LED into the given indicator.
	Show(led string, ind Indicator) error
	// LEDs returns the names Show accepts.
	LEDs() []string
}
