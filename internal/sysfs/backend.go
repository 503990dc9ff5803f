package sysfs

import (
	"fmt"
	"io"
	"sort"

	"github.com/sweeney/gpio-isp/internal/gpio"
)

var (
	rawLow  = []byte{'0'}
	rawHigh = []byte{'1'}
)

// Backend is one sysfs pin-control session. It owns the handle table for
// the lines it claimed; nothing is shared between Backends.
type Backend struct {
	plane   ControlPlane
	assign  gpio.Assignment
	opts    gpio.Options
	handles map[int]ValueFile
	ready   bool
}

// New creates an unopened session over plane.
func New(plane ControlPlane, a gpio.Assignment, opts ...gpio.Option) (*Backend, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &Backend{
		plane:   plane,
		assign:  a.Clone(),
		opts:    gpio.NewOptions(opts...),
		handles: make(map[int]ValueFile),
	}, nil
}

// Ready reports whether the last Open succeeded and Close has not run since.
func (b *Backend) Ready() bool {
	return b.ready
}

// Open exports Clock, MasterOut and MasterIn, sets their directions and opens
// their value files. It stops at the first failure. Lines claimed before the
// failure stay claimed (and are released by Close) unless the backend was
// built with gpio.WithRollback.
func (b *Backend) Open() error {
	if b.ready {
		return &gpio.PinError{Op: "open", Role: gpio.Clock, Pin: b.assign[gpio.Clock].ID, Err: fmt.Errorf("%w: session already open", gpio.ErrResourceBusy)}
	}

	var claimed []int
	for _, role := range gpio.Roles {
		p := b.assign[role]
		if _, held := b.handles[p.ID]; held {
			continue
		}
		exported, err := b.claim(role, p)
		if err != nil {
			if b.opts.Rollback {
				b.rollback(claimed, p.ID, exported)
			}
			return err
		}
		claimed = append(claimed, p.ID)
	}
	b.ready = true
	return nil
}

func (b *Backend) claim(role gpio.Role, p gpio.Pin) (exported bool, err error) {
	if err := b.plane.Export(p.ID); err != nil {
		return false, &gpio.PinError{Op: "export", Role: role, Pin: p.ID, Err: gpio.Classify(err, gpio.ErrResourceUnavailable)}
	}
	dir := Out
	if role.IsInput() {
		dir = In
	}
	if err := b.plane.SetDirection(p.ID, dir); err != nil {
		return true, &gpio.PinError{Op: "set direction " + string(dir), Role: role, Pin: p.ID, Err: gpio.Classify(err, gpio.ErrIOFailure)}
	}
	f, err := b.plane.OpenValue(p.ID)
	if err != nil {
		return true, &gpio.PinError{Op: "open value", Role: role, Pin: p.ID, Err: gpio.Classify(err, gpio.ErrIOFailure)}
	}
	b.handles[p.ID] = f
	return true, nil
}

func (b *Backend) rollback(claimed []int, failed int, exported bool) {
	for i := len(claimed) - 1; i >= 0; i-- {
		b.release(claimed[i])
	}
	if exported {
		if err := b.plane.Unexport(failed); err != nil {
			b.opts.Logger.Warn("sysfs: unexport after failed open", "pin", failed, "error", err)
		}
	}
}

// Close closes every open handle, switches its line back to input and
// unexports it. A failure on one line is logged and the rest are still
// released.
func (b *Backend) Close() {
	b.ready = false
	ids := make([]int, 0, len(b.handles))
	for id := range b.handles {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		b.release(id)
	}
}

func (b *Backend) release(id int) {
	log := b.opts.Logger
	f, ok := b.handles[id]
	if !ok {
		return
	}
	delete(b.handles, id)
	if err := f.Close(); err != nil {
		log.Warn("sysfs: close value file", "pin", id, "error", err)
	}
	// Leave the line as an input so nothing keeps driving it after exit.
	if err := b.plane.SetDirection(id, In); err != nil {
		log.Warn("sysfs: set direction in", "pin", id, "error", err)
	}
	if err := b.plane.Unexport(id); err != nil {
		log.Warn("sysfs: unexport", "pin", id, "error", err)
	}
}

func (b *Backend) handle(op string, role gpio.Role) (gpio.Pin, ValueFile, error) {
	p, ok := b.assign[role]
	if !ok {
		return gpio.Pin{}, nil, &gpio.PinError{Op: op, Role: role, Pin: -1, Err: gpio.ErrNotOpen}
	}
	f, ok := b.handles[p.ID]
	if !ok || !b.ready {
		return p, nil, &gpio.PinError{Op: op, Role: role, Pin: p.ID, Err: gpio.ErrNotOpen}
	}
	return p, f, nil
}

// SetPin writes the raw representation of level, after polarity, to the
// line's value file.
func (b *Backend) SetPin(role gpio.Role, level bool) error {
	p, f, err := b.handle("set", role)
	if err != nil {
		return err
	}
	buf := rawLow
	if p.Polarity.Apply(level) {
		buf = rawHigh
	}
	n, err := f.Write(buf)
	if err != nil {
		return &gpio.PinError{Op: "set", Role: role, Pin: p.ID, Err: fmt.Errorf("%w: %w", gpio.ErrIOFailure, err)}
	}
	if n != 1 {
		return &gpio.PinError{Op: "set", Role: role, Pin: p.ID, Err: fmt.Errorf("%w: wrote %d bytes", gpio.ErrIOFailure, n)}
	}
	return nil
}

// GetPin rewinds the value file, reads one character and applies polarity.
func (b *Backend) GetPin(role gpio.Role) (bool, error) {
	p, f, err := b.handle("get", role)
	if err != nil {
		return false, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false, &gpio.PinError{Op: "get", Role: role, Pin: p.ID, Err: fmt.Errorf("%w: seek: %w", gpio.ErrIOFailure, err)}
	}
	var buf [1]byte
	n, err := f.Read(buf[:])
	if n != 1 {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return false, &gpio.PinError{Op: "get", Role: role, Pin: p.ID, Err: fmt.Errorf("%w: read: %w", gpio.ErrIOFailure, err)}
	}
	var raw bool
	switch buf[0] {
	case '0':
		raw = false
	case '1':
		raw = true
	default:
		return false, &gpio.PinError{Op: "get", Role: role, Pin: p.ID, Err: fmt.Errorf("%w: read %q", gpio.ErrProtocolMismatch, buf[0])}
	}
	return p.Polarity.Apply(raw), nil
}

// HighPulse sets role high then low.
func (b *Backend) HighPulse(role gpio.Role) error {
	if _, _, err := b.handle("pulse", role); err != nil {
		return err
	}
	if err := b.SetPin(role, true); err != nil {
		return err
	}
	return b.SetPin(role, false)
}
