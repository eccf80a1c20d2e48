// Package uart is the byte channel to the radio module.
package uart

import (
	"io"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/nbiot/log2"
)

// DefaultPoll bounds one Read call so callers can notice context cancellation.
const DefaultPoll = 50 * time.Millisecond

type Uarter interface {
	io.ReadWriter
	io.Closer
	Open(path string, baud int) error
	// Buffered returns count of bytes readable without blocking.
	Buffered() (int, error)
}

// New returns closed uart for driver name from config.
func New(driver string, log *log2.Log) (Uarter, error) {
	switch driver {
	case "", "serial":
		return NewSerialUart(log, DefaultPoll), nil
	case "file":
		return NewFileUart(log, DefaultPoll)
	default:
		return nil, errors.NotSupportedf("uart driver=%s", driver)
	}
}

// ErrTimeoutT marks transient read timeouts, callers retry.
type ErrTimeoutT struct{}

func (ErrTimeoutT) Error() string   { return "uart: read timeout" }
func (ErrTimeoutT) Timeout() bool   { return true }
func (ErrTimeoutT) Temporary() bool { return true }

var ErrClosed = errors.New("uart: closed")
