package modem

import (
	"fmt"

	"github.com/juju/errors"
	"github.com/temoto/nbiot/at/command"
)

var (
	ErrBusy         = errors.New("modem: command in flight")
	ErrIllegalState = errors.New("modem: illegal state")
	ErrClosed       = errors.New("modem: closed")
	ErrNoData       = errors.New("modem: no unsolicited data")
)

// PinStatusError is SIM state that PIN unlock can not handle.
type PinStatusError struct {
	Status command.PinStatus
}

func (self *PinStatusError) Error() string {
	return fmt.Sprintf("modem: SIM status=%q", string(self.Status))
}

func IsBusy(err error) bool { return errors.Cause(err) == ErrBusy }

// MismatchError is push addressed to another session. Line stays queued.
type MismatchError struct {
	Prefix string
	Want   int
	Got    int
}

func (self *MismatchError) Error() string {
	return fmt.Sprintf("modem: %s id mismatch want=%d got=%d", self.Prefix, self.Want, self.Got)
}

func IsMismatch(err error) bool {
	_, ok := errors.Cause(err).(*MismatchError)
	return ok
}
