package bitbang

import (
	"fmt"

	"github.com/sweeney/gpio-isp/internal/gpio"
)

// Transport is the caller-facing open/command/close surface over one
// controller. It is not safe for concurrent use.
type Transport struct {
	Pins gpio.Controller
	open bool
}

// New wraps c in a Transport.
func New(c gpio.Controller) *Transport {
	return &Transport{Pins: c}
}

// Open claims the controller's pins.
func (t *Transport) Open() error {
	if err := t.Pins.Open(); err != nil {
		return fmt.Errorf("open pins: %w", err)
	}
	t.open = true
	return nil
}

// IsOpen reports whether Open succeeded and Close has not been called.
func (t *Transport) IsOpen() bool {
	return t.open
}

// Close releases the controller's pins.
func (t *Transport) Close() {
	t.open = false
	t.Pins.Close()
}

// Command sends one four byte command and returns the response.
func (t *Transport) Command(cmd [CommandSize]byte) ([CommandSize]byte, error) {
	if !t.open {
		return [CommandSize]byte{}, fmt.Errorf("command %X: %w", cmd, gpio.ErrNotOpen)
	}
	return TransmitCommand(t.Pins, cmd)
}
