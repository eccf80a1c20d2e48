package main

import (
	"context"
	"time"

	"github.com/256dpi/gomqtt/packet"
	"github.com/juju/errors"
	"github.com/temoto/nbiot/mqtt"
)

type publishCommand struct {
	QoS    int           `short:"q" long:"qos" default:"0" choice:"0" choice:"1" choice:"2"`
	Retain bool          `short:"r" long:"retain"`
	Wait   time.Duration `short:"w" long:"wait" description:"after publish, print messages of subscribed topic for this long"`
	Sub    string        `short:"s" long:"subscribe" description:"topic filter to subscribe before publish"`
	Args   struct {
		Topic   string `positional-arg-name:"topic" required:"yes"`
		Payload string `positional-arg-name:"payload"`
	} `positional-args:"yes"`
}

func (self *publishCommand) Execute(args []string) error {
	ctx, g, cancel := setup()
	defer teardown(g, cancel)

	owner, err := g.Owner(ctx)
	if err != nil {
		return errors.Annotate(err, "publish")
	}
	ses := mqtt.NewSession(owner, g.Config.MQTTSettings())
	if err := ses.Create(ctx); err != nil {
		return err
	}
	defer func() {
		if ses.State() == mqtt.StateDisconnected {
			return
		}
		dctx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		g.Error(ses.Disconnect(dctx), "publish disconnect")
	}()
	if err := ses.Connect(ctx, g.Config.MQTTConnect()); err != nil {
		return err
	}
	if self.Sub != "" {
		if err := ses.Subscribe(ctx, packet.Subscription{Topic: self.Sub, QOS: packet.QOSAtLeastOnce}); err != nil {
			return err
		}
	}
	msg := &packet.Message{
		Topic:   self.Args.Topic,
		Payload: []byte(self.Args.Payload),
		QOS:     packet.QOS(self.QoS),
		Retain:  self.Retain,
	}
	if err := ses.Publish(ctx, msg); err != nil {
		return err
	}
	g.Log.Infof("published topic=%s len=%d", msg.Topic, len(msg.Payload))

	if self.Wait <= 0 {
		return nil
	}
	wctx, wcancel := context.WithTimeout(ctx, self.Wait)
	defer wcancel()
	for wctx.Err() == nil {
		in, ok, err := ses.Receive(ctx)
		if err != nil {
			return err
		}
		if ok {
			g.Log.Infof("message topic=%s qos=%d retain=%t payload=%q", in.Topic, in.QOS, in.Retain, in.Payload)
			continue
		}
		lost, err := ses.CheckLost(ctx)
		if err != nil {
			return err
		}
		if lost {
			return errors.Errorf("broker connection lost")
		}
		time.Sleep(200 * time.Millisecond)
	}
	return nil
}
