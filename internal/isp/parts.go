package isp

import "fmt"

// Signature is the three byte device signature.
type Signature [3]byte

// String formats s as "1E 95 0F".
func (s Signature) String() string {
	return fmt.Sprintf("%02X %02X %02X", s[0], s[1], s[2])
}

// Valid reports whether s looks like an Atmel signature. A missing or
// unpowered target reads back all zeros or all ones.
func (s Signature) Valid() bool {
	return s[0] == 0x1E
}

// Part describes a known target.
type Part struct {
	Name      string
	Signature Signature
	FlashSize int // bytes
}

var parts = []Part{
	{"ATtiny13A", Signature{0x1E, 0x90, 0x07}, 1 << 10},
	{"ATtiny45", Signature{0x1E, 0x92, 0x06}, 4 << 10},
	{"ATtiny85", Signature{0x1E, 0x93, 0x0B}, 8 << 10},
	{"ATmega8", Signature{0x1E, 0x93, 0x07}, 8 << 10},
	{"ATmega168", Signature{0x1E, 0x94, 0x06}, 16 << 10},
	{"ATmega168PA", Signature{0x1E, 0x94, 0x0B}, 16 << 10},
	{"ATmega328", Signature{0x1E, 0x95, 0x14}, 32 << 10},
	{"ATmega328P", Signature{0x1E, 0x95, 0x0F}, 32 << 10},
	{"ATmega32U4", Signature{0x1E, 0x95, 0x87}, 32 << 10},
	{"ATmega644P", Signature{0x1E, 0x96, 0x0A}, 64 << 10},
	{"ATmega1284P", Signature{0x1E, 0x97, 0x05}, 128 << 10},
	{"ATmega2560", Signature{0x1E, 0x98, 0x01}, 256 << 10},
}

// LookupPart returns the part with signature s.
func LookupPart(s Signature) (Part, bool) {
	for _, p := range parts {
		if p.Signature == s {
			return p, true
		}
	}
	return Part{}, false
}

// Fuses holds the fuse and lock bytes.
type Fuses struct {
	Low  byte `json:"low"`
	High byte `json:"high"`
	Ext  byte `json:"ext"`
	Lock byte `json:"lock"`
}

func (f Fuses) String() string {
	return fmt.Sprintf("lfuse=0x%02X hfuse=0x%02X efuse=0x%02X lock=0x%02X", f.Low, f.High, f.Ext, f.Lock)
}
