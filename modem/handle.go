package modem

import (
	"sync/atomic"

	"github.com/juju/errors"
)

// ErrSpent is returned by session handle after it was consumed by transition.
var ErrSpent = errors.New("modem: session handle spent")

const (
	handleIdle uint32 = iota
	handleBusy
	handleSpent
)

// Handle guards one typestate value. Begin claims it for transition,
// End either spends it or releases it for retry.
// Zero value is ready.
type Handle struct{ state uint32 }

func (self *Handle) Begin() error {
	if !atomic.CompareAndSwapUint32(&self.state, handleIdle, handleBusy) {
		return ErrSpent
	}
	return nil
}

// End after Begin. Failed transition leaves handle usable.
func (self *Handle) End(spent bool) {
	if spent {
		atomic.StoreUint32(&self.state, handleSpent)
	} else {
		atomic.StoreUint32(&self.state, handleIdle)
	}
}

// Check is for repeatable operations that keep the state.
func (self *Handle) Check() error {
	if atomic.LoadUint32(&self.state) != handleIdle {
		return ErrSpent
	}
	return nil
}

func (self *Handle) Spent() bool { return atomic.LoadUint32(&self.state) == handleSpent }

func IsSpent(err error) bool { return errors.Cause(err) == ErrSpent }
