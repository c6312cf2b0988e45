// Package gpio's periph.io binding: the production Line, grounded on
// the retrieval pack's periph.io/x/conn + periph.io/x/host usage
// (EdgxCloud-EdgeFlow's DS3231 driver) generalised from I2C register
// access to a single digital output pin.
package gpio

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Pin is the production Line, backed by a periph.io GPIO pin.
type Pin struct {
	pin gpio.PinIO
}

// OpenPin initialises the periph.io host drivers and opens the named
// pin (e.g. "GPIO4") as a digital output, held low initially.
func OpenPin(name string) (*Pin, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("gpio: periph host init: %w", err)
	}

	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio: no such pin %q", name)
	}

	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("gpio: initial level on %q: %w", name, err)
	}

	return &Pin{pin: p}, nil
}

func (p *Pin) SetActive(active bool) error {
	level := gpio.Low
	if active {
		level = gpio.High
	}
	return p.pin.Out(level)
}
