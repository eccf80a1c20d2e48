package at

import (
	"fmt"
	"strconv"

	"github.com/juju/errors"
)

var (
	ErrOverflow        = errors.New("at: reply overflows buffer")
	ErrNotReady        = errors.New("at: transport not ready")
	ErrDeadline        = errors.New("at: command deadline exceeded")
	ErrScratchTooSmall = errors.New("at: scratch buffer too small")
)

// TransportError is write or read failure of the byte channel.
type TransportError struct {
	Op  string
	Err error
}

func (self *TransportError) Error() string {
	return fmt.Sprintf("at: transport %s: %v", self.Op, self.Err)
}

const (
	RemotePlain = "ERROR"
	RemoteCME   = "+CME ERROR"
	RemoteCMS   = "+CMS ERROR"
)

// RemoteError is module reply ending with ERROR.
// Raw holds every byte consumed for the reply, terminator included.
type RemoteError struct {
	Kind string
	Code int // -1 for plain ERROR or non numeric verbose text
	Text string
	Raw  []byte
}

func (self *RemoteError) Error() string {
	switch {
	case self.Kind == RemotePlain:
		return "at: remote ERROR"
	case self.Code >= 0:
		return "at: remote " + self.Kind + ": " + strconv.Itoa(self.Code)
	default:
		return "at: remote " + self.Kind + ": " + self.Text
	}
}

// DecodeError means reply did not match requested grammar.
type DecodeError struct {
	Command string
	Reason  string
	Raw     []byte
}

func (self *DecodeError) Error() string {
	return fmt.Sprintf("at: decode %s: %s reply=%q", self.Command, self.Reason, self.Raw)
}

func NewDecodeError(command, reason string, raw []byte) *DecodeError {
	return &DecodeError{Command: command, Reason: reason, Raw: append([]byte(nil), raw...)}
}

func IsTransport(err error) bool {
	c := errors.Cause(err)
	if _, ok := c.(*TransportError); ok {
		return true
	}
	return c == ErrNotReady
}

func IsFraming(err error) bool {
	c := errors.Cause(err)
	return c == ErrOverflow
}

func IsDeadline(err error) bool { return errors.Cause(err) == ErrDeadline }

// AsRemote returns *RemoteError from err chain cause.
func AsRemote(err error) (*RemoteError, bool) {
	re, ok := errors.Cause(err).(*RemoteError)
	return re, ok
}

func IsRemote(err error) bool {
	_, ok := AsRemote(err)
	return ok
}

func IsDecode(err error) bool {
	_, ok := errors.Cause(err).(*DecodeError)
	return ok
}
