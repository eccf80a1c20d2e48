package state

import (
	"io"

	"github.com/juju/errors"
	"github.com/temoto/nbiot/hardware/pin"
	"github.com/temoto/nbiot/hardware/uart"
	"github.com/temoto/nbiot/helpers"
	"github.com/temoto/nbiot/log2"
	"github.com/temoto/nbiot/modem"
)

// NewHardware opens uart and control pins by driver names from config.
// testhw is returned as is, it may only be set by NewTestContext.
func NewHardware(c *Config, log *log2.Log, testhw *modem.Hardware) (modem.Hardware, error) {
	if testhw != nil {
		return *testhw, nil
	}
	var hw modem.Hardware
	opened := make([]io.Closer, 0, 3)
	fail := func(err error) (modem.Hardware, error) {
		_ = helpers.CloseAll(opened...)
		return modem.Hardware{}, err
	}

	u, err := uart.New(c.Hardware.UartDriver, log)
	if err != nil {
		return fail(errors.Annotate(err, "config: hardware.uart_driver"))
	}
	baud := c.Hardware.UartBaudrate
	if baud == 0 {
		baud = DefaultBaudrate
	}
	if err := u.Open(c.Hardware.UartDevice, baud); err != nil {
		return fail(errors.Annotatef(err, "config: hardware.uart_device=%s", c.Hardware.UartDevice))
	}
	hw.Port = u
	opened = append(opened, u)

	if hw.Power, err = pin.Open(c.pinConfig(c.Hardware.PowerPin, "nbiot-power")); err != nil {
		return fail(errors.Annotatef(err, "config: hardware.power_pin=%s", c.Hardware.PowerPin))
	}
	opened = append(opened, hw.Power)
	if hw.Wake, err = pin.Open(c.pinConfig(c.Hardware.WakePin, "nbiot-wake")); err != nil {
		return fail(errors.Annotatef(err, "config: hardware.wake_pin=%s", c.Hardware.WakePin))
	}
	return hw, nil
}
