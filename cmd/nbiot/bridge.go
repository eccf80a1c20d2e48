package main

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/nbiot/internal/bridge"
)

type bridgeCommand struct {
	notify bool

	Teardown time.Duration `long:"teardown" default:"10s" description:"module session disconnect limit on exit"`
}

func (self *bridgeCommand) Execute(args []string) error {
	ctx, g, cancel := setup()
	defer teardown(g, cancel)

	bc := g.Config.Bridge
	owner, err := g.Owner(ctx)
	if err != nil {
		return errors.Annotate(err, "bridge")
	}
	local, err := bridge.NewPaho(g.Log, bridge.PahoOptions{
		Broker:       bc.Broker,
		ClientID:     bc.ClientID,
		KeepaliveSec: g.Config.MQTT.KeepaliveSec,
	})
	if err != nil {
		return errors.Annotate(err, "bridge local")
	}
	defer local.Close()

	opt := bridge.Options{
		Topics:    bc.Topics,
		Subscribe: bc.Subscribe,
		Inbound:   bc.Inbound,
		Connect:   g.Config.MQTTConnect(),
	}
	if self.notify {
		opt.OnLive = func() { sdnotify(daemon.SdNotifyReady) }
	}
	b := bridge.New(g.Log, owner, g.Config.MQTTSettings(), local, opt)
	if self.notify {
		go self.watchdog(ctx, g.Log.Errorf, b)
	}
	err = b.Run(ctx, self.Teardown)
	g.Log.Infof("bridge stop stat=%+v", b.Stat())
	return err
}

func (self *bridgeCommand) watchdog(ctx context.Context, logf func(string, ...interface{}), b *bridge.Bridge) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logf("watchdog err=%v", err)
		return
	}
	if interval == 0 {
		return
	}
	tick := time.NewTicker(interval / 2)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s := b.Stat()
			sdnotify(fmt.Sprintf("%s\nSTATUS=out=%d in=%d dropped=%d connect=%d", daemon.SdNotifyWatchdog, s.Out, s.In, s.Dropped, s.Connect))
		}
	}
}
