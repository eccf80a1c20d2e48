// Package bridge relays MQTT between local broker and module MQTT session.
// Local topics are published through module, module inbound publishes are
// republished locally under Inbound prefix.
package bridge

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/256dpi/gomqtt/packet"
	"github.com/juju/errors"
	"github.com/temoto/nbiot/at/command"
	"github.com/temoto/nbiot/hardware/pin"
	"github.com/temoto/nbiot/helpers"
	"github.com/temoto/nbiot/log2"
	"github.com/temoto/nbiot/modem"
	"github.com/temoto/nbiot/mqtt"
)

const DefaultQueue = 64

type Options struct {
	// Topics are local filters forwarded out through module.
	Topics []string
	// Subscribe are remote filters subscribed through module.
	Subscribe []string
	// Inbound is local topic prefix for messages received through module.
	Inbound string
	Connect mqtt.ConnectOptions
	Poll    time.Duration
	Queue   int
	Backoff *helpers.Backoff
	// OnLive is called every time module session becomes live.
	OnLive func()
}

type Stat struct {
	Out     uint64
	In      uint64
	Dropped uint64
	Errors  uint64
	Connect uint64
}

type Bridge struct {
	log   *log2.Log
	ex    modem.Executor
	ses   *mqtt.Session
	local Local
	opt   Options
	outq  chan *packet.Message
	// subscribed holds remote filters accepted by current module session.
	subscribed map[string]bool

	out, in, dropped, errs, connects uint64
}

func New(log *log2.Log, ex modem.Executor, settings mqtt.Settings, local Local, opt Options) *Bridge {
	if opt.Poll <= 0 {
		opt.Poll = modem.DefaultPoll
	}
	if opt.Queue <= 0 {
		opt.Queue = DefaultQueue
	}
	if opt.Backoff == nil {
		opt.Backoff = &helpers.Backoff{Min: time.Second, Max: 5 * time.Minute, K: 2}
	}
	return &Bridge{
		log:   log,
		ex:    ex,
		ses:   mqtt.NewSession(ex, settings),
		local: local,
		opt:   opt,
		outq:  make(chan *packet.Message, opt.Queue),

		subscribed: make(map[string]bool, len(opt.Subscribe)),
	}
}

func (self *Bridge) Session() *mqtt.Session { return self.ses }

func (self *Bridge) Stat() Stat {
	return Stat{
		Out:     atomic.LoadUint64(&self.out),
		In:      atomic.LoadUint64(&self.in),
		Dropped: atomic.LoadUint64(&self.dropped),
		Errors:  atomic.LoadUint64(&self.errs),
		Connect: atomic.LoadUint64(&self.connects),
	}
}

// Run relays until ctx is done, then disconnects module session with teardown timeout.
func (self *Bridge) Run(ctx context.Context, teardown time.Duration) error {
	if err := self.local.Subscribe(self.opt.Topics, self.onLocal); err != nil {
		return errors.Annotate(err, "bridge")
	}
	defer self.disconnect(teardown)

	for {
		if err := self.ensureLive(ctx); err != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case msg := <-self.outq:
			self.forward(ctx, msg)
		case <-time.After(self.opt.Poll):
			self.poll(ctx)
		}
	}
}

func (self *Bridge) onLocal(topic string, qos byte, retain bool, payload []byte) {
	msg := &packet.Message{Topic: topic, QOS: packet.QOS(qos), Retain: retain, Payload: payload}
	select {
	case self.outq <- msg:
	default:
		atomic.AddUint64(&self.dropped, 1)
		self.log.Errorf("bridge queue full, dropped topic=%s", topic)
	}
}

func (self *Bridge) ready() bool {
	return self.ses.State() == mqtt.StateLive && len(self.subscribed) == len(self.opt.Subscribe)
}

// ensureLive returns error only when ctx is done.
func (self *Bridge) ensureLive(ctx context.Context) error {
	for !self.ready() {
		if err := pin.Delay(ctx, self.opt.Backoff.DelayBefore()); err != nil {
			return err
		}
		err := self.connect(ctx)
		self.opt.Backoff.Update(err == nil)
		if err != nil {
			atomic.AddUint64(&self.errs, 1)
			self.log.Errorf("bridge connect failures=%d err=%v", self.opt.Backoff.Failures(), err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
	return nil
}

// connect brings module session to Live and subscribes filters not yet
// accepted by this session.
func (self *Bridge) connect(ctx context.Context) error {
	if self.ses.State() != mqtt.StateLive {
		self.subscribed = make(map[string]bool, len(self.opt.Subscribe))
	}
	if self.ses.State() == mqtt.StateDisconnected {
		if err := self.ses.Create(ctx); err != nil {
			return err
		}
	}
	if self.ses.State() == mqtt.StateCreated {
		if err := self.ses.Connect(ctx, self.opt.Connect); err != nil {
			// module keeps created session, start over clean
			if derr := self.ses.Disconnect(ctx); derr != nil {
				self.log.Errorf("bridge cleanup err=%v", derr)
			}
			return err
		}
	}
	for _, topic := range self.opt.Subscribe {
		if self.subscribed[topic] {
			continue
		}
		if err := self.ses.Subscribe(ctx, packet.Subscription{Topic: topic, QOS: packet.QOSAtLeastOnce}); err != nil {
			self.checkLost(ctx)
			return err
		}
		self.subscribed[topic] = true
	}
	atomic.AddUint64(&self.connects, 1)
	id, _ := self.ses.ID()
	self.log.Infof("bridge module session id=%d live", id)
	if self.opt.OnLive != nil {
		self.opt.OnLive()
	}
	return nil
}

func (self *Bridge) forward(ctx context.Context, msg *packet.Message) {
	// module accepts QoS 0..2, local QoS is kept
	err := self.ses.Publish(ctx, msg)
	if err != nil {
		atomic.AddUint64(&self.errs, 1)
		self.log.Errorf("bridge out topic=%s err=%v", msg.Topic, err)
		self.checkLost(ctx)
		return
	}
	atomic.AddUint64(&self.out, 1)
}

func (self *Bridge) poll(ctx context.Context) {
	for {
		msg, ok, err := self.ses.Receive(ctx)
		if err != nil {
			if modem.IsMismatch(err) {
				// only publishes for foreign sessions are queued, nobody else reads them
				if line, ok, _ := self.ex.Take(ctx, command.PrefixMQTTPublish, nil); ok {
					self.log.Errorf("bridge drop foreign push=%s", log2.Printable(line))
				}
				continue
			}
			atomic.AddUint64(&self.errs, 1)
			self.log.Errorf("bridge receive err=%v", err)
			break
		}
		if !ok {
			break
		}
		topic := self.opt.Inbound + msg.Topic
		if err := self.local.Publish(topic, byte(msg.QOS), msg.Retain, msg.Payload); err != nil {
			atomic.AddUint64(&self.errs, 1)
			self.log.Errorf("bridge in topic=%s err=%v", topic, err)
			continue
		}
		atomic.AddUint64(&self.in, 1)
	}
	self.checkLost(ctx)
}

func (self *Bridge) checkLost(ctx context.Context) {
	lost, err := self.ses.CheckLost(ctx)
	if err != nil {
		self.log.Errorf("bridge check lost err=%v", err)
		return
	}
	if lost {
		self.log.Infof("bridge module session lost, reconnecting")
	}
}

func (self *Bridge) disconnect(timeout time.Duration) {
	if self.ses.State() == mqtt.StateDisconnected {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := self.ses.Disconnect(ctx); err != nil {
		self.log.Errorf("bridge disconnect err=%v", err)
	}
}
