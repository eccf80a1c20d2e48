// Package pin drives module control lines: power enable and wake (DTR).
package pin

import (
	"context"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/juju/errors"
)

type Output interface {
	io.Closer
	Set(high bool) error
}

type Config struct {
	Driver string // cdev, periph, null
	Chip   string // cdev only, i.e. /dev/gpiochip0
	Name   string // line offset for cdev, pin name for periph
	Label  string
}

// Open returns output line by driver name. Empty Name means line is not wired.
func Open(c Config) (Output, error) {
	if c.Name == "" || c.Driver == "null" {
		return Null{}, nil
	}
	if c.Label == "" {
		c.Label = "nbiot"
	}
	switch c.Driver {
	case "", "cdev":
		offset, err := strconv.ParseUint(c.Name, 10, 32)
		if err != nil {
			return nil, errors.Annotatef(err, "cdev pin must be line offset name=%s", c.Name)
		}
		return OpenCdev(c.Chip, uint32(offset), c.Label)
	case "periph":
		return OpenPeriph(c.Name)
	default:
		return nil, errors.NotSupportedf("pin driver=%s", c.Driver)
	}
}

// Delay is the millisecond delay primitive, returns early with ctx error.
func Delay(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Null is output not wired to anything.
type Null struct{}

func (Null) Set(bool) error { return nil }
func (Null) Close() error   { return nil }

// Recorder remembers every level set, for tests.
type Recorder struct {
	mu     sync.Mutex
	levels []bool
	Err    error
	closed bool
}

func (self *Recorder) Set(high bool) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.Err != nil {
		return self.Err
	}
	self.levels = append(self.levels, high)
	return nil
}

func (self *Recorder) Close() error {
	self.mu.Lock()
	self.closed = true
	self.mu.Unlock()
	return nil
}

func (self *Recorder) Levels() []bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([]bool(nil), self.levels...)
}

// Last returns last level set and false if Set was never called.
func (self *Recorder) Last() (level bool, ok bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if len(self.levels) == 0 {
		return false, false
	}
	return self.levels[len(self.levels)-1], true
}

func (self *Recorder) Closed() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.closed
}
