package gpio

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// Error taxonomy shared by every backend. Backends wrap these in a PinError;
// match with errors.Is.
var (
	// ErrResourceBusy means a line is already claimed by another owner.
	ErrResourceBusy = errors.New("resource busy")

	// ErrResourceUnavailable means the control-plane is missing or access
	// was denied.
	ErrResourceUnavailable = errors.New("resource unavailable")

	// ErrIOFailure means a read or write returned an unexpected result.
	ErrIOFailure = errors.New("i/o failure")

	// ErrProtocolMismatch means a value read was neither logical 0 nor 1.
	ErrProtocolMismatch = errors.New("protocol mismatch")

	// ErrNotOpen means the pin was never opened or its session is closed.
	ErrNotOpen = errors.New("pin not open")
)

// PinError records the operation and pin that failed.
type PinError struct {
	Op   string
	Role Role
	Pin  int
	Err  error
}

func (e *PinError) Error() string {
	return fmt.Sprintf("gpio: %s %s (pin %d): %v", e.Op, e.Role, e.Pin, e.Err)
}

func (e *PinError) Unwrap() error {
	return e.Err
}

// Classify maps an operating system error onto the taxonomy. The result
// wraps both the taxonomy sentinel and the cause. fallback is used when the
// cause is not recognised; nil errors stay nil.
func Classify(err, fallback error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrResourceBusy, ErrResourceUnavailable, ErrIOFailure, ErrProtocolMismatch, ErrNotOpen} {
		if errors.Is(err, kind) {
			return err
		}
	}
	switch {
	case errors.Is(err, syscall.EBUSY):
		return fmt.Errorf("%w: %w", ErrResourceBusy, err)
	case errors.Is(err, fs.ErrPermission), errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", ErrResourceUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", fallback, err)
	}
}
