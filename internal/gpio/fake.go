package gpio

// Call is one recorded Controller invocation.
type Call struct {
	Op    string // "set" or "get"
	Role  Role
	Level bool // level written, or level returned
}

// Loopback is a test double whose MasterIn reads back the most recent level
// written to MasterOut. Every data-path call is recorded in Calls.
type Loopback struct {
	// Calls contains every SetPin and GetPin in order.
	Calls []Call

	// Peer, if set, computes the MasterIn level from the current MasterOut
	// level instead of echoing it.
	Peer func(masterOut bool) bool

	// OpenError, if set, is returned by Open.
	OpenError error

	// FailAt, if non-zero, makes the FailAt-th data-path call (1-based)
	// return FailError instead of touching any level.
	FailAt    int
	FailError error

	// Opened is true between a successful Open and Close.
	Opened bool

	// Closed tracks if Close was called.
	Closed bool

	levels map[Role]bool
	n      int
}

// NewLoopback creates an unopened Loopback.
func NewLoopback() *Loopback {
	return &Loopback{levels: make(map[Role]bool)}
}

// Open marks the loopback ready unless OpenError is set.
func (l *Loopback) Open() error {
	if l.OpenError != nil {
		return l.OpenError
	}
	if l.levels == nil {
		l.levels = make(map[Role]bool)
	}
	l.Opened = true
	l.Closed = false
	return nil
}

// Close marks the loopback closed and forgets every level.
func (l *Loopback) Close() {
	l.Opened = false
	l.Closed = true
	l.levels = make(map[Role]bool)
}

// SetPin records the level for role.
func (l *Loopback) SetPin(role Role, level bool) error {
	if err := l.check("set", role); err != nil {
		return err
	}
	l.levels[role] = level
	l.Calls = append(l.Calls, Call{Op: "set", Role: role, Level: level})
	return nil
}

// GetPin returns the level for role; MasterIn follows MasterOut.
func (l *Loopback) GetPin(role Role) (bool, error) {
	if err := l.check("get", role); err != nil {
		return false, err
	}
	level := l.levels[role]
	if role == MasterIn {
		level = l.levels[MasterOut]
		if l.Peer != nil {
			level = l.Peer(level)
		}
	}
	l.Calls = append(l.Calls, Call{Op: "get", Role: role, Level: level})
	return level, nil
}

// HighPulse sets role high then low.
func (l *Loopback) HighPulse(role Role) error {
	if err := l.SetPin(role, true); err != nil {
		return err
	}
	return l.SetPin(role, false)
}

// Level returns the last level written to role.
func (l *Loopback) Level(role Role) bool {
	return l.levels[role]
}

// Reset clears recorded calls and failure injection.
func (l *Loopback) Reset() {
	l.Calls = nil
	l.FailAt = 0
	l.FailError = nil
	l.n = 0
}

func (l *Loopback) check(op string, role Role) error {
	if !l.Opened {
		return &PinError{Op: op, Role: role, Pin: -1, Err: ErrNotOpen}
	}
	l.n++
	if l.FailAt != 0 && l.n == l.FailAt {
		return &PinError{Op: op, Role: role, Pin: -1, Err: l.FailError}
	}
	return nil
}
