package bridge

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/nbiot/helpers"
	"github.com/temoto/nbiot/log2"
)

// Local is broker on this side of the bridge.
// Subscribe handler may be called from any goroutine.
type Local interface {
	Subscribe(topics []string, fn MessageFunc) error
	Publish(topic string, qos byte, retain bool, payload []byte) error
	Close()
}

type MessageFunc = func(topic string, qos byte, retain bool, payload []byte)

type PahoOptions struct {
	Broker       string
	ClientID     string
	KeepaliveSec int
	Timeout      time.Duration
}

type pahoLocal struct {
	log     *log2.Log
	m       paho.Client
	timeout time.Duration

	mu     sync.Mutex
	topics []string
	onMsg  MessageFunc
}

// NewPaho connects to local broker. Subscriptions are restored on reconnect.
func NewPaho(log *log2.Log, opt PahoOptions) (Local, error) {
	paho.ERROR = pahoLogger{log, log2.LError}
	paho.CRITICAL = pahoLogger{log, log2.LError}
	paho.WARN = pahoLogger{log, log2.LInfo}

	self := &pahoLocal{log: log, timeout: opt.Timeout}
	if self.timeout == 0 {
		self.timeout = 10 * time.Second
	}
	keepAlive := helpers.IntSecondDefault(opt.KeepaliveSec, 60*time.Second)
	mopt := paho.NewClientOptions().
		AddBroker(opt.Broker).
		SetClientID(opt.ClientID).
		SetCleanSession(true).
		SetKeepAlive(keepAlive).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectTimeout(self.timeout).
		SetMaxReconnectInterval(time.Minute).
		SetOnConnectHandler(self.onConnectHandler).
		SetConnectionLostHandler(self.connectLostHandler)
	self.m = paho.NewClient(mopt)
	token := self.m.Connect()
	if !token.WaitTimeout(self.timeout) {
		return nil, errors.Timeoutf("bridge local broker=%s connect", opt.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Annotatef(err, "bridge local broker=%s", opt.Broker)
	}
	return self, nil
}

func (self *pahoLocal) Subscribe(topics []string, fn MessageFunc) error {
	self.mu.Lock()
	self.topics = topics
	self.onMsg = fn
	self.mu.Unlock()
	if !self.m.IsConnectionOpen() {
		// onConnectHandler subscribes
		return nil
	}
	return self.subscribe(self.m)
}

func (self *pahoLocal) Publish(topic string, qos byte, retain bool, payload []byte) error {
	token := self.m.Publish(topic, qos, retain, payload)
	if !token.WaitTimeout(self.timeout) {
		return errors.Timeoutf("bridge local publish topic=%s", topic)
	}
	return errors.Annotatef(token.Error(), "bridge local publish topic=%s", topic)
}

func (self *pahoLocal) Close() {
	self.log.Infof("bridge local disconnect")
	self.m.Disconnect(uint(self.timeout / time.Millisecond))
}

func (self *pahoLocal) subscribe(c paho.Client) error {
	self.mu.Lock()
	topics, fn := self.topics, self.onMsg
	self.mu.Unlock()
	if len(topics) == 0 || fn == nil {
		return nil
	}
	filters := make(map[string]byte, len(topics))
	for _, t := range topics {
		filters[t] = 1
	}
	token := c.SubscribeMultiple(filters, func(_ paho.Client, msg paho.Message) {
		fn(msg.Topic(), msg.Qos(), msg.Retained(), msg.Payload())
	})
	if !token.WaitTimeout(self.timeout) {
		return errors.Timeoutf("bridge local subscribe topics=%v", topics)
	}
	return errors.Annotatef(token.Error(), "bridge local subscribe topics=%v", topics)
}

func (self *pahoLocal) connectLostHandler(c paho.Client, err error) {
	self.log.Infof("bridge local broker lost err=%v", err)
}

func (self *pahoLocal) onConnectHandler(c paho.Client) {
	self.log.Infof("bridge local broker connected")
	if err := self.subscribe(c); err != nil {
		self.log.Errorf("bridge local err=%v", err)
	}
}

type pahoLogger struct {
	log   *log2.Log
	level log2.Level
}

func (self pahoLogger) Println(v ...interface{}) { self.log.Log(self.level, "paho: "+fmt.Sprint(v...)) }
func (self pahoLogger) Printf(format string, v ...interface{}) {
	self.log.Logf(self.level, "paho: "+format, v...)
}
