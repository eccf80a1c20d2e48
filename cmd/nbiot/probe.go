package main

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/nbiot/at"
	"github.com/temoto/nbiot/at/command"
	"github.com/temoto/nbiot/log2"
	"github.com/temoto/nbiot/modem"
)

type probeCommand struct {
	Wait time.Duration `long:"wait" default:"30s" description:"readiness wait limit"`
	NTP  string        `long:"ntp" description:"sync module clock from NTP server first"`
}

func (self *probeCommand) Execute(args []string) error {
	ctx, g, cancel := setup()
	defer teardown(g, cancel)

	m, err := g.Modem(ctx)
	if err != nil {
		return errors.Annotate(err, "probe")
	}
	wctx, wcancel := context.WithTimeout(ctx, self.Wait)
	err = m.WaitReady(wctx, nil)
	wcancel()
	if err != nil {
		return errors.Annotate(err, "probe")
	}
	if self.NTP != "" {
		if _, err := modem.Execute[at.Empty](ctx, m, command.StartNTP{Server: self.NTP}); err != nil {
			g.Log.Errorf("ntp server=%s err=%v", self.NTP, err)
		}
	}

	report[string](ctx, g.Log, "product", m, command.ProductInfo{})
	report[string](ctx, g.Log, "model", m, command.Model{})
	report[command.PinStatus](ctx, g.Log, "pin", m, command.GetPinStatus{})
	report[command.SignalQuality](ctx, g.Log, "signal", m, command.GetSignalQuality{})
	report[command.Registration](ctx, g.Log, "registration", m, command.GetRegistration{GPRS: true})
	report[command.Attach](ctx, g.Log, "attach", m, command.GetGPRSAttach{})
	report[command.Operator](ctx, g.Log, "operator", m, command.GetOperator{})
	report[[]command.PDPContext](ctx, g.Log, "pdp", m, command.GetPDPContexts{})
	report[command.Battery](ctx, g.Log, "battery", m, command.GetBattery{})
	report[time.Time](ctx, g.Log, "clock", m, command.GetClock{})
	report[command.SleepMode](ctx, g.Log, "sleep", m, command.GetSleepMode{})
	report[bool](ctx, g.Log, "psm", m, command.GetPSM{})
	report[[]command.MQTTSessionInfo](ctx, g.Log, "mqtt", m, command.GetMQTTSessions{})
	report[[]command.HTTPClientInfo](ctx, g.Log, "http", m, command.GetHTTPClients{})
	g.Log.Infof("stat %+v", m.Stat())
	return nil
}

// report logs query result, failure is logged and does not stop probe.
func report[T any](ctx context.Context, log *log2.Log, name string, ex modem.Executor, cmd at.Command[T]) {
	v, err := modem.Execute[T](ctx, ex, cmd)
	if err != nil {
		log.Errorf("%s err=%v", name, err)
		return
	}
	log.Infof("%s %+v", name, v)
}
