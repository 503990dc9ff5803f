// Package isp builds AVR serial programming instructions and decodes their
// responses. Every instruction is four bytes out and four bytes back.
package isp

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Command is one serial programming instruction.
type Command [4]byte

// Instruction bytes.
const (
	opEnable       = 0xAC
	opReadSig      = 0x30
	opReadFuseLow  = 0x50
	opReadFuseHigh = 0x58
	opReadFlashLo  = 0x20
	opReadFlashHi  = 0x28
	opReadEEPROM   = 0xA0

	// EnableEcho is the second byte of Programming Enable. An in-sync target
	// echoes it back in the third response byte.
	EnableEcho = 0x53
)

// ProgrammingEnable puts the target in serial programming mode.
func ProgrammingEnable() Command { return Command{opEnable, EnableEcho, 0x00, 0x00} }

// ChipErase erases flash and EEPROM.
func ChipErase() Command { return Command{opEnable, 0x80, 0x00, 0x00} }

// ReadSignature reads signature byte i (0 to 2).
func ReadSignature(i byte) Command { return Command{opReadSig, 0x00, i & 0x03, 0x00} }

// ReadFuseLow reads the low fuse byte.
func ReadFuseLow() Command { return Command{opReadFuseLow, 0x00, 0x00, 0x00} }

// ReadFuseHigh reads the high fuse byte.
func ReadFuseHigh() Command { return Command{opReadFuseHigh, 0x08, 0x00, 0x00} }

// ReadFuseExt reads the extended fuse byte.
func ReadFuseExt() Command { return Command{opReadFuseLow, 0x08, 0x00, 0x00} }

// ReadLock reads the lock bits.
func ReadLock() Command { return Command{opReadFuseHigh, 0x00, 0x00, 0x00} }

// ReadFlash reads the low or high byte of program memory word addr.
func ReadFlash(addr uint16, high bool) Command {
	op := byte(opReadFlashLo)
	if high {
		op = opReadFlashHi
	}
	return Command{op, byte(addr >> 8), byte(addr), 0x00}
}

// ReadEEPROM reads the EEPROM byte at addr.
func ReadEEPROM(addr uint16) Command {
	return Command{opReadEEPROM, byte(addr>>8) & 0x3F, byte(addr), 0x00}
}

// ParseCommand parses four hex bytes such as "AC 53 00 00", "ac530000" or
// "0xAC,0x53,0,0".
func ParseCommand(s string) (Command, error) {
	var c Command
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' || r == ':' || r == '\t' })
	if len(fields) == 1 {
		b, err := hex.DecodeString(fields[0])
		if err != nil || len(b) != len(c) {
			return c, fmt.Errorf("invalid command %q: want 4 hex bytes", s)
		}
		copy(c[:], b)
		return c, nil
	}
	return ParseBytes(fields)
}

// ParseBytes parses exactly four hex byte strings, with or without a 0x
// prefix.
func ParseBytes(fields []string) (Command, error) {
	var c Command
	if len(fields) != len(c) {
		return c, fmt.Errorf("invalid command: got %d bytes, want %d", len(fields), len(c))
	}
	for i, f := range fields {
		f = strings.TrimPrefix(strings.TrimPrefix(f, "0x"), "0X")
		if len(f) == 1 {
			f = "0" + f
		}
		b, err := hex.DecodeString(f)
		if err != nil || len(b) != 1 {
			return c, fmt.Errorf("invalid command byte %d %q", i, fields[i])
		}
		c[i] = b[0]
	}
	return c, nil
}

// String formats c as four space separated hex bytes.
func (c Command) String() string {
	return fmt.Sprintf("%02X %02X %02X %02X", c[0], c[1], c[2], c[3])
}
