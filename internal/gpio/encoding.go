package gpio

import (
	"fmt"
	"strconv"
	"strings"
)

// Packed encoding used by legacy programmer configs: the line id sits in the
// low bits and the top bit marks an inverted pin.
const (
	PinInverse uint32 = 1 << 31
	PinMask    uint32 = PinInverse - 1
)

// FromPacked decodes a packed pin value.
func FromPacked(v uint32) Pin {
	p := Pin{ID: int(v & PinMask)}
	if v&PinInverse != 0 {
		p.Polarity = Inverted
	}
	return p
}

// Packed encodes the pin in the legacy packed form.
func (p Pin) Packed() uint32 {
	v := uint32(p.ID) & PinMask
	if p.Polarity == Inverted {
		v |= PinInverse
	}
	return v
}

// String renders the pin as its id, prefixed with "~" when inverted.
func (p Pin) String() string {
	if p.Polarity == Inverted {
		return "~" + strconv.Itoa(p.ID)
	}
	return strconv.Itoa(p.ID)
}

// ParsePin parses "11", "~11" or "!11". A leading "~" or "!" marks an
// inverted pin.
func ParsePin(s string) (Pin, error) {
	s = strings.TrimSpace(s)
	var p Pin
	if strings.HasPrefix(s, "~") || strings.HasPrefix(s, "!") {
		p.Polarity = Inverted
		s = strings.TrimSpace(s[1:])
	}
	id, err := strconv.Atoi(s)
	if err != nil {
		return Pin{}, fmt.Errorf("gpio: parse pin %q: %w", s, err)
	}
	if id < 0 || id > MaxID {
		return Pin{}, fmt.Errorf("gpio: pin %d out of range [0, %d]", id, MaxID)
	}
	p.ID = id
	return p, nil
}
