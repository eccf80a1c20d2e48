package modem

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/nbiot/at"
	"github.com/temoto/nbiot/at/command"
	"github.com/temoto/nbiot/hardware/pin"
	"github.com/temoto/nbiot/helpers"
)

// wakeProbe is module documented wake sequence for software sleep:
// first AT is eaten waking up, second is answered.
var wakeProbe = []byte("AT\r\nAT\r\n")

// PowerOn asserts power, releases wake line, waits settle time, disables echo.
func (self *Modem) PowerOn(ctx context.Context) error {
	return self.locked(func() error {
		self.Log.Infof("modem power on, settle %v", self.config.PowerUpDelay)
		if err := self.hw.Power.Set(true); err != nil {
			return errors.Annotate(err, "power pin")
		}
		if err := self.hw.Wake.Set(false); err != nil {
			return errors.Annotate(err, "wake pin")
		}
		if err := pin.Delay(ctx, self.config.PowerUpDelay); err != nil {
			return errors.Annotatef(at.ErrDeadline, "power up delay: %v", err)
		}
		if _, err := call[at.Empty](ctx, self, command.Echo{On: false}); err != nil {
			return errors.Annotate(err, "echo off")
		}
		atomic.StoreUint32(&self.sleep, uint32(command.SleepDisabled))
		return nil
	})
}

// PowerOff drops power line. PowerOn is required before next command.
func (self *Modem) PowerOff() error {
	return self.locked(func() error {
		self.Log.Info("modem power off")
		return errors.Annotate(self.hw.Power.Set(false), "power pin")
	})
}

// Ping is lightweight readiness probe.
func (self *Modem) Ping(ctx context.Context) error {
	_, err := Execute[at.Empty](ctx, self, command.Probe{})
	return err
}

// WaitReady repeats Ping with backoff until success or ctx end.
// Contention is returned immediately.
func (self *Modem) WaitReady(ctx context.Context, backoff *helpers.Backoff) error {
	if backoff == nil {
		backoff = &helpers.Backoff{Min: 100 * time.Millisecond, Max: 2 * time.Second, K: 2}
	}
	for {
		err := self.Ping(ctx)
		if err == nil {
			backoff.Reset()
			return nil
		}
		if IsBusy(err) || errors.Cause(err) == ErrClosed {
			return err
		}
		d := backoff.DelayAfter(false)
		self.Log.Debugf("modem not ready err=%v retry in %v", err, d)
		if derr := pin.Delay(ctx, d); derr != nil {
			return errors.Annotatef(err, "wait ready: %v", derr)
		}
	}
}

// UnlockSIM probes PIN state, READY succeeds, SIM PIN submits pin then probes
// again, any other state fails with *PinStatusError.
// tries bounds PIN submissions, less than 1 means 1.
func (self *Modem) UnlockSIM(ctx context.Context, pinCode string, tries int) error {
	if tries < 1 {
		tries = 1
	}
	return self.locked(func() error {
		for submitted := 0; ; submitted++ {
			status, err := call[command.PinStatus](ctx, self, command.GetPinStatus{})
			if err != nil {
				return errors.Annotate(err, "pin status")
			}
			switch status {
			case command.PinReady:
				return nil
			case command.PinSIM:
				if pinCode == "" || submitted >= tries {
					return errors.Trace(&PinStatusError{Status: status})
				}
				self.Log.Infof("modem SIM locked, entering pin (%d/%d)", submitted+1, tries)
				if _, err := call[at.Empty](ctx, self, command.EnterPin{PIN: pinCode}); err != nil {
					return errors.Annotate(err, "enter pin")
				}
			default:
				return errors.Trace(&PinStatusError{Status: status})
			}
		}
	})
}

func (self *Modem) FlowControl(ctx context.Context) (command.FlowControl, error) {
	return Execute[command.FlowControl](ctx, self, command.GetFlowControl{})
}

func (self *Modem) SetFlowControl(ctx context.Context, fc command.FlowControl) error {
	_, err := Execute[at.Empty](ctx, self, command.SetFlowControl(fc))
	return err
}

func (self *Modem) SetErrorVerbosity(ctx context.Context, mode command.ErrorVerbosity) error {
	_, err := Execute[at.Empty](ctx, self, command.SetErrorVerbosity{Mode: mode})
	return err
}

func (self *Modem) SleepMode() command.SleepMode {
	return command.SleepMode(atomic.LoadUint32(&self.sleep))
}

// SetSleepMode releases wake line, sends AT+CSCLK, records mode.
func (self *Modem) SetSleepMode(ctx context.Context, mode command.SleepMode) error {
	return self.locked(func() error {
		if err := self.hw.Wake.Set(false); err != nil {
			return errors.Annotate(err, "wake pin")
		}
		if _, err := call[at.Empty](ctx, self, command.SetSleepMode{Mode: mode}); err != nil {
			return err
		}
		atomic.StoreUint32(&self.sleep, uint32(mode))
		self.Log.Infof("modem sleep mode=%s", mode)
		return nil
	})
}

// StartSleeping drives wake line high, module may sleep until WakeUp.
// Only valid in hardware sleep mode.
func (self *Modem) StartSleeping(ctx context.Context) error {
	return self.locked(func() error {
		if mode := self.SleepMode(); mode != command.SleepHardware {
			return errors.Annotatef(ErrIllegalState, "start sleeping in sleep mode=%s", mode)
		}
		return errors.Annotate(self.hw.Wake.Set(true), "wake pin")
	})
}

// WakeUp is no-op when sleep is disabled, sends wake probe in software mode,
// drives wake line low in hardware mode.
func (self *Modem) WakeUp(ctx context.Context) error {
	return self.locked(func() error {
		switch mode := self.SleepMode(); mode {
		case command.SleepDisabled:
			return nil
		case command.SleepHardware:
			if err := self.hw.Wake.Set(false); err != nil {
				return errors.Annotate(err, "wake pin")
			}
			return pin.Delay(ctx, WakeSettle)
		case command.SleepSoftware:
			return self.wakeSoftware(ctx)
		default:
			return errors.Annotatef(ErrIllegalState, "sleep mode=%s", mode)
		}
	})
}

func (self *Modem) wakeSoftware(ctx context.Context) error {
	if err := self.drain(); err != nil {
		return err
	}
	if err := self.write(wakeProbe); err != nil {
		return err
	}
	answered := 0
	var lastErr error
	for i := 0; i < 2; i++ {
		timeout := self.config.CommandTimeout
		if answered > 0 {
			timeout = 10 * WakeSettle
		}
		rctx, cancel := context.WithTimeout(ctx, timeout)
		f, err := self.fr.ReadFrame(rctx)
		cancel()
		atomic.AddUint64(&self.bytesIn, uint64(f.Consumed))
		if err == nil {
			answered++
			continue
		}
		lastErr = err
		if !at.IsRemote(err) {
			break
		}
	}
	if answered == 0 {
		return errors.Annotate(lastErr, "wake up")
	}
	self.last.SetNow()
	return nil
}
