package pin

import (
	"github.com/juju/errors"
	gpio "github.com/temoto/gpio-cdev-go"
	"github.com/temoto/nbiot/helpers"
)

type cdevOutput struct {
	chip  gpio.Chiper // nil when chip is shared or injected
	lines gpio.Lineser
	set   gpio.LineSetFunc
}

func OpenCdev(chipName string, offset uint32, label string) (Output, error) {
	chip, err := gpio.Open(chipName, label)
	if err != nil {
		return nil, errors.Annotatef(err, "gpio open chip=%s", chipName)
	}
	out, err := NewCdev(chip, offset, label)
	if err != nil {
		chip.Close()
		return nil, err
	}
	out.chip = chip
	return out, nil
}

// NewCdev requests single output line on already open chip.
func NewCdev(chip gpio.Chiper, offset uint32, label string) (*cdevOutput, error) {
	lines, err := chip.OpenLines(gpio.GPIOHANDLE_REQUEST_OUTPUT, label, offset)
	if err != nil {
		return nil, errors.Annotatef(err, "gpio OpenLines offset=%d", offset)
	}
	return &cdevOutput{
		lines: lines,
		set:   lines.SetFunc(offset),
	}, nil
}

func (self *cdevOutput) Set(high bool) error {
	var v byte
	if high {
		v = 1
	}
	self.set(v)
	return errors.Annotate(self.lines.Flush(), "gpio flush")
}

func (self *cdevOutput) Close() error {
	errs := []error{self.lines.Close()}
	if self.chip != nil {
		errs = append(errs, self.chip.Close())
	}
	return helpers.FoldErrors(errs)
}
