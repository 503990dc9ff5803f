// Package bitbang shifts bytes over a gpio.Controller, one bit per clock
// pulse, most significant bit first. Clock idles low and MasterIn is
// sampled while Clock is high.
//
// The clock period is whatever the controller's calls take; nothing here
// sleeps or times anything.
package bitbang

import (
	"fmt"

	"github.com/sweeney/gpio-isp/internal/gpio"
)

// CommandSize is the length of a command and of its response.
const CommandSize = 4

// TransmitByte shifts b out on MasterOut and returns the byte shifted in on
// MasterIn during the same eight clocks. For each bit, from 7 down to 0, it
// sets MasterOut, raises Clock, samples MasterIn and lowers Clock.
// The first controller error aborts the exchange.
func TransmitByte(c gpio.Controller, b byte) (byte, error) {
	var in byte
	for i := 7; i >= 0; i-- {
		bit := b>>uint(i)&1 == 1

		if err := c.SetPin(gpio.MasterOut, bit); err != nil {
			return 0, fmt.Errorf("bit %d: %w", i, err)
		}
		if err := c.SetPin(gpio.Clock, true); err != nil {
			return 0, fmt.Errorf("bit %d: %w", i, err)
		}
		r, err := c.GetPin(gpio.MasterIn)
		if err != nil {
			return 0, fmt.Errorf("bit %d: %w", i, err)
		}
		if err := c.SetPin(gpio.Clock, false); err != nil {
			return 0, fmt.Errorf("bit %d: %w", i, err)
		}
		if r {
			in |= 1 << uint(i)
		}
	}
	return in, nil
}

// TransmitCommand exchanges the four command bytes in order and returns the
// four bytes received. Callers must serialize access to c.
func TransmitCommand(c gpio.Controller, cmd [CommandSize]byte) ([CommandSize]byte, error) {
	var res [CommandSize]byte
	for i, b := range cmd {
		r, err := TransmitByte(c, b)
		if err != nil {
			return [CommandSize]byte{}, fmt.Errorf("byte %d (%#02x): %w", i, b, err)
		}
		res[i] = r
	}
	return res, nil
}
