//go:build !linux

package gpio

import "fmt"

// CdevController is not available on non-Linux platforms.
type CdevController struct {
	assign Assignment
}

// NewCdevController returns a controller whose Open always fails on
// non-Linux platforms.
func NewCdevController(chip string, a Assignment, opts ...Option) (*CdevController, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &CdevController{assign: a.Clone()}, nil
}

// Open is not implemented on non-Linux platforms.
func (c *CdevController) Open() error {
	return fmt.Errorf("gpio: character device not supported on this platform (requires Linux): %w", ErrResourceUnavailable)
}

// Close is a no-op on non-Linux platforms.
func (c *CdevController) Close() {}

// SetPin always fails on non-Linux platforms.
func (c *CdevController) SetPin(role Role, _ bool) error {
	return &PinError{Op: "set", Role: role, Pin: c.assign[role].ID, Err: ErrNotOpen}
}

// GetPin always fails on non-Linux platforms.
func (c *CdevController) GetPin(role Role) (bool, error) {
	return false, &PinError{Op: "get", Role: role, Pin: c.assign[role].ID, Err: ErrNotOpen}
}

// HighPulse always fails on non-Linux platforms.
func (c *CdevController) HighPulse(role Role) error {
	return c.SetPin(role, true)
}
