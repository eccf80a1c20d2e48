package state

import (
	"context"
	"testing"

	"github.com/temoto/nbiot/hardware/pin"
	"github.com/temoto/nbiot/hardware/uart"
	"github.com/temoto/nbiot/log2"
	"github.com/temoto/nbiot/modem"
)

type TestHardware struct {
	Mock  *uart.Mock
	Power *pin.Recorder
	Wake  *pin.Recorder
}

// NewTestContext reads inline config and substitutes scripted hardware.
// Modem is not opened, script bring-up exchange then call g.Modem().
func NewTestContext(t testing.TB, confString string) (context.Context, *Global, *TestHardware) {
	fs := NewMockFullReader(map[string]string{
		"test-inline": confString,
	})

	log := log2.NewTest(t, log2.LDebug)
	// log := log2.NewStderr(log2.LDebug) // useful with panics
	log.SetFlags(log2.LTestFlags)
	ctx, g := NewContext(log)
	g.MustInit(ctx, MustReadConfig(log, fs, "test-inline"))

	th := &TestHardware{
		Mock:  uart.NewMock(),
		Power: &pin.Recorder{},
		Wake:  &pin.Recorder{},
	}
	g.testhw = &modem.Hardware{Port: th.Mock, Power: th.Power, Wake: th.Wake}
	t.Cleanup(func() {
		if err := th.Mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})
	return ctx, g, th
}
