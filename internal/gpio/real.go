//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// CdevController drives pins through the Linux GPIO character device.
// Polarity is handled by the kernel (active-low lines).
type CdevController struct {
	chipName string
	assign   Assignment
	opts     Options

	chip  *gpiocdev.Chip
	lines map[Role]*gpiocdev.Line
	ready bool
}

// NewCdevController creates an unopened controller for the named chip
// (e.g. "gpiochip0").
func NewCdevController(chip string, a Assignment, opts ...Option) (*CdevController, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &CdevController{
		chipName: chip,
		assign:   a.Clone(),
		opts:     NewOptions(opts...),
	}, nil
}

// Open opens the chip and requests every line. Clock and MasterOut start as
// outputs driven to logical 0, MasterIn is an input. Requesting stops at the
// first failure; lines requested before it stay held unless rollback is
// enabled.
func (c *CdevController) Open() error {
	if c.ready {
		return &PinError{Op: "open", Role: Clock, Pin: c.assign[Clock].ID, Err: fmt.Errorf("%w: session already open", ErrResourceBusy)}
	}

	if c.chip == nil {
		chip, err := gpiocdev.NewChip(c.chipName, gpiocdev.WithConsumer(c.opts.Consumer))
		if err != nil {
			return fmt.Errorf("open gpio chip %s: %w", c.chipName, Classify(err, ErrResourceUnavailable))
		}
		c.chip = chip
		c.lines = make(map[Role]*gpiocdev.Line, len(Roles))
	}

	for _, role := range Roles {
		if _, held := c.lines[role]; held {
			continue
		}
		p := c.assign[role]
		lineOpts := []gpiocdev.LineReqOption{gpiocdev.WithConsumer(c.opts.Consumer)}
		if role.IsInput() {
			lineOpts = append(lineOpts, gpiocdev.AsInput)
		} else {
			lineOpts = append(lineOpts, gpiocdev.AsOutput(0))
		}
		if p.Polarity == Inverted {
			lineOpts = append(lineOpts, gpiocdev.AsActiveLow)
		}

		line, err := c.chip.RequestLine(p.ID, lineOpts...)
		if err != nil {
			perr := &PinError{Op: "request", Role: role, Pin: p.ID, Err: Classify(err, ErrResourceUnavailable)}
			if c.opts.Rollback {
				c.Close()
			}
			return perr
		}
		c.lines[role] = line
	}
	c.ready = true
	return nil
}

// Close reconfigures every requested line as input, releases it and closes
// the chip. Failures are logged and do not stop the remaining lines.
func (c *CdevController) Close() {
	c.ready = false
	log := c.opts.Logger
	for _, role := range Roles {
		line, ok := c.lines[role]
		if !ok {
			continue
		}
		id := c.assign[role].ID
		if err := line.Reconfigure(gpiocdev.AsInput); err != nil {
			log.Warn("gpio: reconfigure as input", "role", role, "pin", id, "error", err)
		}
		if err := line.Close(); err != nil {
			log.Warn("gpio: release line", "role", role, "pin", id, "error", err)
		}
		delete(c.lines, role)
	}
	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			log.Warn("gpio: close chip", "chip", c.chipName, "error", err)
		}
		c.chip = nil
	}
}

// SetPin drives role to the logical level.
func (c *CdevController) SetPin(role Role, level bool) error {
	line, ok := c.lines[role]
	if !ok || !c.ready {
		return &PinError{Op: "set", Role: role, Pin: c.assign[role].ID, Err: ErrNotOpen}
	}
	v := 0
	if level {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return &PinError{Op: "set", Role: role, Pin: c.assign[role].ID, Err: Classify(err, ErrIOFailure)}
	}
	return nil
}

// GetPin samples the logical level of role.
func (c *CdevController) GetPin(role Role) (bool, error) {
	line, ok := c.lines[role]
	if !ok || !c.ready {
		return false, &PinError{Op: "get", Role: role, Pin: c.assign[role].ID, Err: ErrNotOpen}
	}
	v, err := line.Value()
	if err != nil {
		return false, &PinError{Op: "get", Role: role, Pin: c.assign[role].ID, Err: Classify(err, ErrIOFailure)}
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, &PinError{Op: "get", Role: role, Pin: c.assign[role].ID, Err: fmt.Errorf("%w: value %d", ErrProtocolMismatch, v)}
	}
}

// HighPulse sets role high then low.
func (c *CdevController) HighPulse(role Role) error {
	if err := c.SetPin(role, true); err != nil {
		return err
	}
	return c.SetPin(role, false)
}
