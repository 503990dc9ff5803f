// Package sysfs implements gpio.Controller over the legacy Linux sysfs GPIO
// interface (/sys/class/gpio). Lines are exported, given a direction and
// accessed through their value files.
package sysfs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sweeney/gpio-isp/internal/gpio"
)

// DefaultRoot is where the kernel exposes the sysfs GPIO control files.
const DefaultRoot = "/sys/class/gpio"

// Direction is the literal written to a line's direction file.
type Direction string

const (
	In  Direction = "in"
	Out Direction = "out"
)

// ValueFile is an open handle to a line's value file.
type ValueFile interface {
	io.ReadWriteSeeker
	io.Closer
}

// ControlPlane is the set of control files the backend consumes.
// Errors returned should already be classified with gpio.Classify.
type ControlPlane interface {
	Export(id int) error
	Unexport(id int) error
	SetDirection(id int, dir Direction) error
	OpenValue(id int) (ValueFile, error)
}

// Dir is the filesystem control-plane rooted at Root (DefaultRoot if empty).
type Dir struct {
	Root string
}

func (d Dir) root() string {
	if d.Root == "" {
		return DefaultRoot
	}
	return d.Root
}

func (d Dir) linePath(id int, name string) string {
	return filepath.Join(d.root(), "gpio"+strconv.Itoa(id), name)
}

// Export claims line id. The kernel answers EBUSY if the line is already
// exported or requested elsewhere.
func (d Dir) Export(id int) error {
	return writeControl(filepath.Join(d.root(), "export"), strconv.Itoa(id))
}

// Unexport releases line id.
func (d Dir) Unexport(id int) error {
	return writeControl(filepath.Join(d.root(), "unexport"), strconv.Itoa(id))
}

// SetDirection writes "in" or "out" to the line's direction file.
func (d Dir) SetDirection(id int, dir Direction) error {
	return writeControl(d.linePath(id, "direction"), string(dir))
}

// OpenValue opens the line's value file for reading and writing.
func (d Dir) OpenValue(id int) (ValueFile, error) {
	f, err := os.OpenFile(d.linePath(id, "value"), os.O_RDWR, 0)
	if err != nil {
		return nil, gpio.Classify(err, gpio.ErrIOFailure)
	}
	return f, nil
}

func writeControl(path, s string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return gpio.Classify(err, gpio.ErrResourceUnavailable)
	}
	n, err := f.WriteString(s)
	cerr := f.Close()
	if err != nil {
		return gpio.Classify(err, gpio.ErrIOFailure)
	}
	if n != len(s) {
		return fmt.Errorf("%w: short write to %s (%d of %d bytes)", gpio.ErrIOFailure, path, n, len(s))
	}
	if cerr != nil {
		return gpio.Classify(cerr, gpio.ErrIOFailure)
	}
	return nil
}
