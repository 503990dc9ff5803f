package isp

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotInSync is returned when the target does not echo Programming Enable.
	ErrNotInSync = errors.New("target not in sync")
	// ErrOutOfRange is returned for reads past what the instruction can address.
	ErrOutOfRange = errors.New("address out of range")
)

// Address space reachable by the read instructions.
const (
	MaxFlashBytes  = 1 << 17 // 16 bit word address
	MaxEEPROMBytes = 1 << 14
)

// ChipEraseDelay covers the erase time of every listed part.
const ChipEraseDelay = 10 * time.Millisecond

// Commander exchanges one four byte command. *bitbang.Transport satisfies it.
type Commander interface {
	Command(cmd [4]byte) ([4]byte, error)
}

// Programmer issues serial programming instructions over an open transport.
type Programmer struct {
	T Commander
}

// Exec sends c and returns the raw response.
func (p *Programmer) Exec(c Command) ([4]byte, error) {
	res, err := p.T.Command(c)
	if err != nil {
		return res, fmt.Errorf("isp %s: %w", c, err)
	}
	return res, nil
}

// Read sends c and returns the fourth response byte, where read
// instructions return their data.
func (p *Programmer) Read(c Command) (byte, error) {
	res, err := p.Exec(c)
	if err != nil {
		return 0, err
	}
	return res[3], nil
}

// Enable sends Programming Enable and checks the echo.
func (p *Programmer) Enable() error {
	res, err := p.Exec(ProgrammingEnable())
	if err != nil {
		return err
	}
	if res[2] != EnableEcho {
		return fmt.Errorf("%w: programming enable echoed %#02x, want %#02x", ErrNotInSync, res[2], EnableEcho)
	}
	return nil
}

// Signature reads the three signature bytes.
func (p *Programmer) Signature() (Signature, error) {
	var s Signature
	for i := range s {
		b, err := p.Read(ReadSignature(byte(i)))
		if err != nil {
			return Signature{}, err
		}
		s[i] = b
	}
	return s, nil
}

// Fuses reads the low, high and extended fuses and the lock bits.
func (p *Programmer) Fuses() (Fuses, error) {
	var f Fuses
	for _, r := range []struct {
		cmd Command
		dst *byte
	}{
		{ReadFuseLow(), &f.Low},
		{ReadFuseHigh(), &f.High},
		{ReadFuseExt(), &f.Ext},
		{ReadLock(), &f.Lock},
	} {
		b, err := p.Read(r.cmd)
		if err != nil {
			return Fuses{}, err
		}
		*r.dst = b
	}
	return f, nil
}

// Flash reads n bytes of program memory starting at byte address start.
// Even addresses hold the low byte of a word.
func (p *Programmer) Flash(start, n int) ([]byte, error) {
	if err := checkRange("flash", start, n, MaxFlashBytes); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	for i := range out {
		a := start + i
		b, err := p.Read(ReadFlash(uint16(a>>1), a&1 == 1))
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// EEPROM reads n bytes of EEPROM starting at start.
func (p *Programmer) EEPROM(start, n int) ([]byte, error) {
	if err := checkRange("eeprom", start, n, MaxEEPROMBytes); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	for i := range out {
		b, err := p.Read(ReadEEPROM(uint16(start + i)))
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

func checkRange(mem string, start, n, size int) error {
	if start < 0 || n < 0 || start+n > size {
		return fmt.Errorf("%w: %s 0x%X+%d past %d bytes", ErrOutOfRange, mem, start, n, size)
	}
	return nil
}

// Erase sends Chip Erase and waits for it to complete. Flash reads back
// 0xFF afterwards and the lock bits are cleared.
func (p *Programmer) Erase() error {
	if _, err := p.Exec(ChipErase()); err != nil {
		return err
	}
	time.Sleep(ChipEraseDelay)
	return nil
}
