package modem

import (
	"testing"

	"github.com/temoto/nbiot/hardware/pin"
	"github.com/temoto/nbiot/hardware/uart"
	"github.com/temoto/nbiot/log2"
)

type TestHardware struct {
	Mock  *uart.Mock
	Power *pin.Recorder
	Wake  *pin.Recorder
}

// NewTestModem returns Modem over scripted uart, bring-up is skipped.
// Unmet script expectations fail the test at cleanup.
func NewTestModem(t testing.TB, config Config) (*Modem, *TestHardware) {
	th := &TestHardware{
		Mock:  uart.NewMock(),
		Power: &pin.Recorder{},
		Wake:  &pin.Recorder{},
	}
	if config.PowerUpDelay == 0 {
		config.PowerUpDelay = -1
	}
	m := newModem(config, Hardware{Port: th.Mock, Power: th.Power, Wake: th.Wake}, log2.NewTest(t, log2.LDebug))
	t.Cleanup(func() {
		if err := th.Mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})
	return m, th
}
