// Package periph drives the three transport lines through periph.io's
// registry of host GPIO pins.
package periph

import (
	"fmt"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/sweeney/gpio-isp/internal/gpio"
)

// Backend is one periph.io pin-control session.
type Backend struct {
	assign gpio.Assignment
	opts   gpio.Options

	// init loads the host drivers; lookup resolves a pin by name.
	init   func() error
	lookup func(name string) pgpio.PinIO

	pins  map[gpio.Role]pgpio.PinIO
	ready bool
}

// New creates an unopened session. Host drivers are loaded by Open.
func New(a gpio.Assignment, opts ...gpio.Option) (*Backend, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &Backend{
		assign: a.Clone(),
		opts:   gpio.NewOptions(opts...),
		init: func() error {
			_, err := host.Init()
			return err
		},
		lookup: gpioreg.ByName,
		pins:   make(map[gpio.Role]pgpio.PinIO),
	}, nil
}

// PinName is the registry name of line id.
func PinName(id int) string {
	return fmt.Sprintf("GPIO%d", id)
}

// Open loads the host drivers, resolves each line, drives the outputs low
// and puts MasterIn in input mode.
func (b *Backend) Open() error {
	if b.ready {
		return &gpio.PinError{Op: "open", Role: gpio.Clock, Pin: b.assign[gpio.Clock].ID, Err: fmt.Errorf("%w: session already open", gpio.ErrResourceBusy)}
	}
	if err := b.init(); err != nil {
		return fmt.Errorf("periph host init: %w: %w", gpio.ErrResourceUnavailable, err)
	}

	var claimed []gpio.Role
	for _, role := range gpio.Roles {
		if _, held := b.pins[role]; held {
			continue
		}
		if err := b.claim(role); err != nil {
			if b.opts.Rollback {
				for i := len(claimed) - 1; i >= 0; i-- {
					b.release(claimed[i])
				}
			}
			return err
		}
		claimed = append(claimed, role)
	}
	b.ready = true
	return nil
}

func (b *Backend) claim(role gpio.Role) error {
	p := b.assign[role]
	name := PinName(p.ID)
	pin := b.lookup(name)
	if pin == nil {
		return &gpio.PinError{Op: "resolve", Role: role, Pin: p.ID, Err: fmt.Errorf("%w: %s not found in hardware", gpio.ErrResourceUnavailable, name)}
	}
	if role.IsInput() {
		if err := pin.In(pgpio.PullNoChange, pgpio.NoEdge); err != nil {
			return &gpio.PinError{Op: "set input", Role: role, Pin: p.ID, Err: gpio.Classify(err, gpio.ErrIOFailure)}
		}
	} else {
		if err := pin.Out(toLevel(p.Polarity.Apply(false))); err != nil {
			return &gpio.PinError{Op: "set output", Role: role, Pin: p.ID, Err: gpio.Classify(err, gpio.ErrIOFailure)}
		}
	}
	b.pins[role] = pin
	return nil
}

// Close returns every claimed line to input and halts it. Failures are
// logged and the remaining lines are still released.
func (b *Backend) Close() {
	b.ready = false
	for _, role := range gpio.Roles {
		b.release(role)
	}
}

func (b *Backend) release(role gpio.Role) {
	pin, ok := b.pins[role]
	if !ok {
		return
	}
	delete(b.pins, role)
	id := b.assign[role].ID
	if err := pin.In(pgpio.PullNoChange, pgpio.NoEdge); err != nil {
		b.opts.Logger.Warn("periph: set input", "pin", id, "role", role.String(), "error", err)
	}
	if err := pin.Halt(); err != nil {
		b.opts.Logger.Warn("periph: halt", "pin", id, "role", role.String(), "error", err)
	}
}

func (b *Backend) pin(op string, role gpio.Role) (gpio.Pin, pgpio.PinIO, error) {
	p, ok := b.assign[role]
	if !ok {
		return gpio.Pin{}, nil, &gpio.PinError{Op: op, Role: role, Pin: -1, Err: gpio.ErrNotOpen}
	}
	pin, ok := b.pins[role]
	if !ok || !b.ready {
		return p, nil, &gpio.PinError{Op: op, Role: role, Pin: p.ID, Err: gpio.ErrNotOpen}
	}
	return p, pin, nil
}

// SetPin drives role to level after polarity.
func (b *Backend) SetPin(role gpio.Role, level bool) error {
	p, pin, err := b.pin("set", role)
	if err != nil {
		return err
	}
	if err := pin.Out(toLevel(p.Polarity.Apply(level))); err != nil {
		return &gpio.PinError{Op: "set", Role: role, Pin: p.ID, Err: fmt.Errorf("%w: %w", gpio.ErrIOFailure, err)}
	}
	return nil
}

// GetPin samples role and applies polarity.
func (b *Backend) GetPin(role gpio.Role) (bool, error) {
	p, pin, err := b.pin("get", role)
	if err != nil {
		return false, err
	}
	return p.Polarity.Apply(pin.Read() == pgpio.High), nil
}

// HighPulse sets role high then low.
func (b *Backend) HighPulse(role gpio.Role) error {
	if _, _, err := b.pin("pulse", role); err != nil {
		return err
	}
	if err := b.SetPin(role, true); err != nil {
		return err
	}
	return b.SetPin(role, false)
}

func toLevel(v bool) pgpio.Level {
	if v {
		return pgpio.High
	}
	return pgpio.Low
}
