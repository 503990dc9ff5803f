// Package gpio defines the pin-control capability used to bit-bang a
// synchronous serial link over general purpose I/O lines.
// The real implementations claim lines from the kernel (character device here,
// sysfs and periph.io in sibling packages).
// The fake implementation allows testing without hardware.
package gpio

import (
	"fmt"
	"log/slog"
	"sort"
)

// Controller drives and samples the logical pin roles of one session.
//
// Implementations are not safe for concurrent use. Data-path calls are only
// valid between a successful Open and the matching Close; outside that window
// they fail with ErrNotOpen.
type Controller interface {
	// Open claims and configures every pin of the assignment.
	Open() error

	// Close releases every pin this session holds, switching each back to
	// input first. Per-pin failures are reported to the log only.
	Close()

	// SetPin drives role to the logical level, translated through polarity.
	SetPin(role Role, level bool) error

	// GetPin samples the logical level of role, translated through polarity.
	GetPin(role Role) (bool, error)

	// HighPulse sets role high and immediately low again.
	HighPulse(role Role) error
}

// Role is a logical signal of the serial link.
type Role int

const (
	Clock Role = iota
	MasterOut
	MasterIn
)

// Roles lists every role in claim order.
var Roles = [...]Role{Clock, MasterOut, MasterIn}

func (r Role) String() string {
	switch r {
	case Clock:
		return "clock"
	case MasterOut:
		return "master_out"
	case MasterIn:
		return "master_in"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// IsInput reports whether the role is sampled rather than driven.
func (r Role) IsInput() bool {
	return r == MasterIn
}

// Polarity selects how a logical level maps onto the raw line level.
type Polarity int

const (
	Normal Polarity = iota
	Inverted
)

func (p Polarity) String() string {
	if p == Inverted {
		return "inverted"
	}
	return "normal"
}

// Apply translates between logical and raw levels. It is its own inverse.
func (p Polarity) Apply(level bool) bool {
	if p == Inverted {
		return !level
	}
	return level
}

// MaxID is the largest physical line number accepted in an assignment.
const MaxID = 255

// Default pin numbers (BCM numbering, Raspberry Pi SPI0 header pins).
const (
	DefaultClock     = 11
	DefaultMasterOut = 10
	DefaultMasterIn  = 9
)

// Pin is a physical line id plus its polarity.
type Pin struct {
	ID       int
	Polarity Polarity
}

// Assignment maps every role to its physical pin.
type Assignment map[Role]Pin

// DefaultAssignment returns the default wiring with normal polarity.
func DefaultAssignment() Assignment {
	return Assignment{
		Clock:     {ID: DefaultClock},
		MasterOut: {ID: DefaultMasterOut},
		MasterIn:  {ID: DefaultMasterIn},
	}
}

// Validate checks that every role is assigned exactly one in-range line and
// that no two roles share a line.
func (a Assignment) Validate() error {
	seen := make(map[int]Role, len(Roles))
	for _, role := range Roles {
		p, ok := a[role]
		if !ok {
			return fmt.Errorf("gpio: %s pin not configured", role)
		}
		if p.ID < 0 || p.ID > MaxID {
			return fmt.Errorf("gpio: %s pin %d out of range [0, %d]", role, p.ID, MaxID)
		}
		if other, dup := seen[p.ID]; dup {
			return fmt.Errorf("gpio: %s and %s both assigned to pin %d", other, role, p.ID)
		}
		seen[p.ID] = role
	}
	for role := range a {
		if role < Clock || role > MasterIn {
			return fmt.Errorf("gpio: unknown %s in assignment", role)
		}
	}
	return nil
}

// Clone returns an independent copy of the assignment.
func (a Assignment) Clone() Assignment {
	c := make(Assignment, len(a))
	for role, p := range a {
		c[role] = p
	}
	return c
}

// IDs returns the assigned line ids in ascending order.
func (a Assignment) IDs() []int {
	ids := make([]int, 0, len(a))
	for _, p := range a {
		ids = append(ids, p.ID)
	}
	sort.Ints(ids)
	return ids
}

// Options holds settings shared by every backend.
type Options struct {
	Logger   *slog.Logger
	Rollback bool
	Consumer string
}

// Option configures a backend.
type Option func(*Options)

// WithLogger sets the logger used for teardown diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithRollback makes a failed Open release the pins it already claimed.
// Without it the claims stay in place until Close.
func WithRollback() Option {
	return func(o *Options) {
		o.Rollback = true
	}
}

// WithConsumer sets the consumer label reported to the kernel, where the
// backend supports one.
func WithConsumer(name string) Option {
	return func(o *Options) {
		o.Consumer = name
	}
}

// NewOptions applies opts over the defaults.
func NewOptions(opts ...Option) Options {
	o := Options{
		Logger:   slog.Default(),
		Consumer: "gpio-isp",
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
