// Package mqtt drives MQTT client session implemented inside the module
// (AT+CMQNEW family). Lifecycle is typestate:
//
//	Disconnected -Create-> Created -Connect-> Live
//	Created, Live -Disconnect-> Disconnected
//
// Every transition spends its receiver. Spent handles return modem.ErrSpent.
// Each transition is exactly one module command, failures are not retried.
package mqtt

import (
	"context"
	"time"

	"github.com/256dpi/gomqtt/packet"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/temoto/nbiot/at"
	"github.com/temoto/nbiot/at/command"
	"github.com/temoto/nbiot/modem"
)

var ErrSpent = modem.ErrSpent

// Settings for AT+CMQNEW.
type Settings struct {
	Server     string
	Port       int
	Timeout    time.Duration // zero means module default
	BufferSize int           // zero means module default
}

// ConnectOptions for AT+CMQCON. Empty ClientID is replaced with random uuid.
type ConnectOptions struct {
	ClientID     string
	KeepaliveSec uint16
	CleanSession bool
	Username     string
	Password     string
	Version      command.MQTTVersion
	// Will is not supported by module command set, only flag is sent.
	Will bool
}

type Disconnected struct {
	h        modem.Handle
	settings Settings
}

type Created struct {
	h        modem.Handle
	settings Settings
	id       int
}

type Live struct {
	h        modem.Handle
	settings Settings
	id       int
	clientID string
}

func New(settings Settings) *Disconnected { return &Disconnected{settings: settings} }

func (self *Disconnected) Settings() Settings { return self.settings }

// Create allocates session on module.
// On failure receiver stays usable, retry policy belongs to caller.
func (self *Disconnected) Create(ctx context.Context, ex modem.Executor) (*Created, error) {
	if err := self.h.Begin(); err != nil {
		return nil, err
	}
	id, err := modem.Execute[int](ctx, ex, command.NewMQTT{
		Server:     self.settings.Server,
		Port:       self.settings.Port,
		TimeoutMS:  int(self.settings.Timeout / time.Millisecond),
		BufferSize: self.settings.BufferSize,
	})
	self.h.End(err == nil)
	if err != nil {
		return nil, errors.Annotatef(err, "mqtt create server=%s:%d", self.settings.Server, self.settings.Port)
	}
	return &Created{settings: self.settings, id: id}, nil
}

func (self *Created) ID() int { return self.id }

// Connect performs MQTT CONNECT through module.
func (self *Created) Connect(ctx context.Context, ex modem.Executor, opt ConnectOptions) (*Live, error) {
	if err := self.h.Begin(); err != nil {
		return nil, err
	}
	if opt.ClientID == "" {
		opt.ClientID = uuid.New().String()
	}
	_, err := modem.Execute[at.Empty](ctx, ex, command.ConnectMQTT{
		ID:           self.id,
		Version:      opt.Version,
		ClientID:     opt.ClientID,
		KeepAliveSec: int(opt.KeepaliveSec),
		Clean:        opt.CleanSession,
		Will:         opt.Will,
		Username:     opt.Username,
		Password:     opt.Password,
	})
	self.h.End(err == nil)
	if err != nil {
		return nil, errors.Annotatef(err, "mqtt id=%d connect", self.id)
	}
	return &Live{settings: self.settings, id: self.id, clientID: opt.ClientID}, nil
}

func (self *Created) Disconnect(ctx context.Context, ex modem.Executor) (*Disconnected, error) {
	return disconnect(ctx, ex, &self.h, self.id, self.settings)
}

func (self *Live) ID() int            { return self.id }
func (self *Live) ClientID() string   { return self.clientID }
func (self *Live) Settings() Settings { return self.settings }
func (self *Live) Disconnect(ctx context.Context, ex modem.Executor) (*Disconnected, error) {
	return disconnect(ctx, ex, &self.h, self.id, self.settings)
}

func (self *Live) Publish(ctx context.Context, ex modem.Executor, msg *packet.Message) error {
	if err := self.h.Check(); err != nil {
		return err
	}
	_, err := modem.Execute[at.Empty](ctx, ex, command.PublishMQTT{
		ID:       self.id,
		Topic:    msg.Topic,
		QoS:      int(msg.QOS),
		Retained: msg.Retain,
		Payload:  msg.Payload,
	})
	return errors.Annotatef(err, "mqtt id=%d publish topic=%s", self.id, msg.Topic)
}

func (self *Live) Subscribe(ctx context.Context, ex modem.Executor, sub packet.Subscription) error {
	if err := self.h.Check(); err != nil {
		return err
	}
	_, err := modem.Execute[at.Empty](ctx, ex, command.SubscribeMQTT{ID: self.id, Topic: sub.Topic, QoS: int(sub.QOS)})
	return errors.Annotatef(err, "mqtt id=%d subscribe topic=%s", self.id, sub.Topic)
}

func (self *Live) Unsubscribe(ctx context.Context, ex modem.Executor, topic string) error {
	if err := self.h.Check(); err != nil {
		return err
	}
	_, err := modem.Execute[at.Empty](ctx, ex, command.UnsubscribeMQTT{ID: self.id, Topic: topic})
	return errors.Annotatef(err, "mqtt id=%d unsubscribe topic=%s", self.id, topic)
}

// Receive returns inbound publish for this session, ok=false when none queued.
// Publishes for other sessions stay queued, when only those are queued
// *modem.MismatchError is returned.
func (self *Live) Receive(ctx context.Context, ex modem.Executor) (*packet.Message, bool, error) {
	if err := self.h.Check(); err != nil {
		return nil, false, err
	}
	m, ok, err := modem.ReceiveID[command.MQTTMessage](ctx, ex, command.MQTTPush{}, self.id, messageSession)
	if err != nil || !ok {
		return nil, false, err
	}
	return ToPacket(m), true, nil
}

// Await blocks until inbound publish for this session or ctx end.
func (self *Live) Await(ctx context.Context, ex modem.Executor, interval time.Duration) (*packet.Message, error) {
	if err := self.h.Check(); err != nil {
		return nil, err
	}
	m, err := modem.AwaitID[command.MQTTMessage](ctx, ex, command.MQTTPush{}, self.id, messageSession, interval)
	if err != nil {
		return nil, err
	}
	return ToPacket(m), nil
}

// Lost checks for broker disconnect push for this session.
// When found, receiver is spent and Disconnected is returned.
func (self *Live) Lost(ctx context.Context, ex modem.Executor) (*Disconnected, error) {
	if err := self.h.Check(); err != nil {
		return nil, err
	}
	_, ok, err := modem.ReceiveID[int](ctx, ex, command.MQTTLost{}, self.id, lostSession)
	if err != nil && !modem.IsMismatch(err) {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	self.h.End(true)
	return &Disconnected{settings: self.settings}, nil
}

func disconnect(ctx context.Context, ex modem.Executor, h *modem.Handle, id int, settings Settings) (*Disconnected, error) {
	if err := h.Begin(); err != nil {
		return nil, err
	}
	_, err := modem.Execute[at.Empty](ctx, ex, command.DisconnectMQTT{ID: id})
	h.End(err == nil)
	if err != nil {
		return nil, errors.Annotatef(err, "mqtt id=%d disconnect", id)
	}
	return &Disconnected{settings: settings}, nil
}

// ToPacket converts module push to gomqtt message.
func ToPacket(m command.MQTTMessage) *packet.Message {
	return &packet.Message{
		Topic:   m.Topic,
		Payload: m.Payload,
		QOS:     packet.QOS(m.QoS),
		Retain:  m.Retained,
	}
}

func messageSession(m command.MQTTMessage) int { return m.SessionID }
func lostSession(id int) int                   { return id }
