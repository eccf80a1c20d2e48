package command

import (
	"strconv"

	"github.com/temoto/nbiot/at"
)

// SleepMode is AT+CSCLK value.
type SleepMode uint8

const (
	SleepDisabled SleepMode = 0
	// module sleeps while DTR is high
	SleepHardware SleepMode = 1
	// module sleeps on idle, wakes on serial traffic
	SleepSoftware SleepMode = 2
)

func (self SleepMode) String() string {
	switch self {
	case SleepDisabled:
		return "disabled"
	case SleepHardware:
		return "hardware"
	case SleepSoftware:
		return "software"
	}
	return "sleep(" + strconv.Itoa(int(self)) + ")"
}

func ParseSleepMode(s string) (SleepMode, error) {
	switch s {
	case "disabled", "":
		return SleepDisabled, nil
	case "hardware":
		return SleepHardware, nil
	case "software":
		return SleepSoftware, nil
	}
	return SleepDisabled, errNotValid("sleep mode", s)
}

// SetSleepMode is AT+CSCLK=<mode>.
type SetSleepMode struct{ Mode SleepMode }

func (self SetSleepMode) Encode(b []byte) ([]byte, error) {
	if self.Mode > SleepSoftware {
		return nil, errNotValid("sleep mode", int(self.Mode))
	}
	return at.Set(b, "+CSCLK").Int(int(self.Mode)).Finish()
}
func (SetSleepMode) Decode(r []byte) (at.Empty, error) { return at.DecodeEmpty("+CSCLK", r) }

// GetSleepMode is AT+CSCLK?.
type GetSleepMode struct{}

func (GetSleepMode) Encode(b []byte) ([]byte, error) { return at.Query(b, "+CSCLK") }
func (GetSleepMode) Decode(r []byte) (SleepMode, error) {
	p := at.NewParser("+CSCLK?", r)
	v := p.Expect("+CSCLK:").Int()
	if err := p.Finish(); err != nil {
		return 0, err
	}
	if v < 0 || v > int(SleepSoftware) {
		return 0, at.NewDecodeError("+CSCLK?", "unknown mode", r)
	}
	return SleepMode(v), nil
}

// SetPSM is AT+CPSMS=<0|1>, power saving mode.
type SetPSM struct{ On bool }

func (self SetPSM) Encode(b []byte) ([]byte, error) {
	return at.Set(b, "+CPSMS").Bool(self.On).Finish()
}
func (SetPSM) Decode(r []byte) (at.Empty, error) { return at.DecodeEmpty("+CPSMS", r) }

// GetPSM is AT+CPSMS?, timers are ignored.
type GetPSM struct{}

func (GetPSM) Encode(b []byte) ([]byte, error) { return at.Query(b, "+CPSMS") }
func (GetPSM) Decode(r []byte) (bool, error) {
	p := at.NewParser("+CPSMS?", r)
	v := p.Expect("+CPSMS:").Int()
	for p.More() {
		_ = p.String()
	}
	return v == 1, p.Finish()
}

type Battery struct {
	// charge state, -1 when module does not report it
	Status     int
	Percent    int
	Millivolts int
}

// GetBattery is AT+CBC. Both "+CBC: <pct>,<mV>" and
// "+CBC: <bcs>,<pct>,<mV>" forms are accepted.
type GetBattery struct{}

func (GetBattery) Encode(b []byte) ([]byte, error) { return at.Exec(b, "+CBC") }
func (GetBattery) Decode(r []byte) (Battery, error) {
	p := at.NewParser("+CBC", r)
	a := p.Expect("+CBC:").Int()
	b := p.Int()
	bat := Battery{Status: -1, Percent: a, Millivolts: b}
	if p.More() {
		bat = Battery{Status: a, Percent: b, Millivolts: p.Int()}
	}
	return bat, p.Finish()
}
