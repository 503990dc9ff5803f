package sysfs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"syscall"

	"github.com/sweeney/gpio-isp/internal/gpio"
)

// FakeLine is the simulated state of one line.
type FakeLine struct {
	Exported  bool
	Direction Direction
	// Value is the raw character the value file reads back.
	Value byte
	// Directions records every direction written, in order.
	Directions []Direction
	// Writes records every value written, in order.
	Writes []byte
	// OpenHandles counts value files currently open.
	OpenHandles int
}

// FakePlane is an in-memory control-plane for tests.
type FakePlane struct {
	Lines map[int]*FakeLine

	// Ops records each operation, e.g. "export 11", "direction 11 out",
	// "open 11", "close 11", "unexport 11".
	Ops []string

	// Fail injects an error for the operation with the same text as in Ops.
	Fail map[string]error

	// ShortWrite makes value writes on the listed lines report 0 bytes.
	ShortWrite map[int]bool

	// Unavailable makes every operation fail as if the control-plane were
	// missing.
	Unavailable bool
}

// NewFakePlane creates an empty FakePlane.
func NewFakePlane() *FakePlane {
	return &FakePlane{
		Lines:      make(map[int]*FakeLine),
		Fail:       make(map[string]error),
		ShortWrite: make(map[int]bool),
	}
}

// Line returns the state of line id, creating it if needed.
func (p *FakePlane) Line(id int) *FakeLine {
	l, ok := p.Lines[id]
	if !ok {
		l = &FakeLine{Value: '0'}
		p.Lines[id] = l
	}
	return l
}

// Claim marks line id as exported by another owner.
func (p *FakePlane) Claim(id int) {
	p.Line(id).Exported = true
}

// SetRaw sets the character line id reads back.
func (p *FakePlane) SetRaw(id int, c byte) {
	p.Line(id).Value = c
}

func (p *FakePlane) op(format string, args ...any) error {
	op := fmt.Sprintf(format, args...)
	p.Ops = append(p.Ops, op)
	if p.Unavailable {
		return gpio.Classify(fs.ErrNotExist, gpio.ErrResourceUnavailable)
	}
	if err, ok := p.Fail[op]; ok {
		return gpio.Classify(err, gpio.ErrIOFailure)
	}
	return nil
}

// Export claims line id; an already exported line fails with EBUSY.
func (p *FakePlane) Export(id int) error {
	if err := p.op("export %d", id); err != nil {
		return err
	}
	l := p.Line(id)
	if l.Exported {
		return gpio.Classify(syscall.EBUSY, gpio.ErrIOFailure)
	}
	l.Exported = true
	l.Direction = In
	return nil
}

// Unexport releases line id.
func (p *FakePlane) Unexport(id int) error {
	if err := p.op("unexport %d", id); err != nil {
		return err
	}
	l := p.Line(id)
	if !l.Exported {
		return gpio.Classify(syscall.EINVAL, gpio.ErrIOFailure)
	}
	l.Exported = false
	return nil
}

// SetDirection sets the direction of an exported line.
func (p *FakePlane) SetDirection(id int, dir Direction) error {
	if err := p.op("direction %d %s", id, dir); err != nil {
		return err
	}
	l := p.Line(id)
	if !l.Exported {
		return gpio.Classify(fs.ErrNotExist, gpio.ErrIOFailure)
	}
	l.Direction = dir
	l.Directions = append(l.Directions, dir)
	return nil
}

// OpenValue opens the value file of an exported line.
func (p *FakePlane) OpenValue(id int) (ValueFile, error) {
	if err := p.op("open %d", id); err != nil {
		return nil, err
	}
	l := p.Line(id)
	if !l.Exported {
		return nil, gpio.Classify(fs.ErrNotExist, gpio.ErrIOFailure)
	}
	l.OpenHandles++
	return &fakeValue{plane: p, id: id, line: l}, nil
}

type fakeValue struct {
	plane  *FakePlane
	id     int
	line   *FakeLine
	off    int64
	closed bool
}

func (v *fakeValue) Read(b []byte) (int, error) {
	if v.closed {
		return 0, os.ErrClosed
	}
	if err := v.plane.Fail[fmt.Sprintf("read %d", v.id)]; err != nil {
		return 0, err
	}
	if v.off > 0 || len(b) == 0 {
		return 0, io.EOF
	}
	b[0] = v.line.Value
	v.off++
	return 1, nil
}

func (v *fakeValue) Write(b []byte) (int, error) {
	if v.closed {
		return 0, os.ErrClosed
	}
	if err := v.plane.Fail[fmt.Sprintf("write %d", v.id)]; err != nil {
		return 0, err
	}
	if v.plane.ShortWrite[v.id] || len(b) == 0 {
		return 0, nil
	}
	v.line.Value = b[0]
	v.line.Writes = append(v.line.Writes, b[0])
	return len(b), nil
}

func (v *fakeValue) Seek(offset int64, whence int) (int64, error) {
	if v.closed {
		return 0, os.ErrClosed
	}
	if err := v.plane.Fail[fmt.Sprintf("seek %d", v.id)]; err != nil {
		return 0, err
	}
	if whence != io.SeekStart {
		return 0, fmt.Errorf("fake value: unsupported whence %d", whence)
	}
	v.off = offset
	return offset, nil
}

func (v *fakeValue) Close() error {
	err := v.plane.op("close %d", v.id)
	if v.closed {
		return os.ErrClosed
	}
	v.closed = true
	v.line.OpenHandles--
	return err
}
