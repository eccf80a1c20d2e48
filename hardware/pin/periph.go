package pin

import (
	"github.com/juju/errors"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

type periphOutput struct {
	p gpio.PinIO
}

// OpenPeriph finds pin by periph registry name, i.e. "GPIO17".
func OpenPeriph(name string) (Output, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Annotate(err, "periph/init")
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.NotFoundf("periph pin=%s", name)
	}
	return &periphOutput{p: p}, nil
}

func (self *periphOutput) Set(high bool) error {
	l := gpio.Low
	if high {
		l = gpio.High
	}
	return errors.Annotatef(self.p.Out(l), "periph pin=%s", self.p.Name())
}

func (self *periphOutput) Close() error {
	return errors.Trace(self.p.Halt())
}
