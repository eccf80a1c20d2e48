package mqtt

import (
	"context"
	"sync"

	"github.com/256dpi/gomqtt/packet"
	"github.com/juju/errors"
	"github.com/temoto/nbiot/modem"
)

var (
	ErrDisconnected = errors.New("mqtt: session disconnected")
	ErrNotConnected = errors.New("mqtt: session created but not connected")
)

type State uint8

const (
	StateDisconnected State = iota
	StateCreated
	StateLive
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateCreated:
		return "created"
	case StateLive:
		return "live"
	}
	return "invalid"
}

// Session keeps current typestate handle for callers that decide
// operation at runtime, i.e. config driven bridge or console.
// Operation illegal in current state returns ErrDisconnected, ErrNotConnected
// or modem.ErrIllegalState without touching the wire.
type Session struct {
	ex modem.Executor

	mu      sync.Mutex
	disc    *Disconnected
	created *Created
	live    *Live
}

func NewSession(ex modem.Executor, settings Settings) *Session {
	return &Session{ex: ex, disc: New(settings)}
}

func (self *Session) State() State {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.state()
}

func (self *Session) state() State {
	switch {
	case self.live != nil:
		return StateLive
	case self.created != nil:
		return StateCreated
	}
	return StateDisconnected
}

// ID is module session id, ok=false while disconnected.
func (self *Session) ID() (int, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	switch {
	case self.live != nil:
		return self.live.ID(), true
	case self.created != nil:
		return self.created.ID(), true
	}
	return -1, false
}

func (self *Session) Create(ctx context.Context) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.disc == nil {
		return errors.Annotatef(modem.ErrIllegalState, "mqtt create state=%s", self.state())
	}
	c, err := self.disc.Create(ctx, self.ex)
	if err != nil {
		return err
	}
	self.disc, self.created = nil, c
	return nil
}

func (self *Session) Connect(ctx context.Context, opt ConnectOptions) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	switch self.state() {
	case StateDisconnected:
		return ErrDisconnected
	case StateLive:
		return errors.Annotatef(modem.ErrIllegalState, "mqtt connect state=%s", StateLive)
	}
	l, err := self.created.Connect(ctx, self.ex, opt)
	if err != nil {
		return err
	}
	self.created, self.live = nil, l
	return nil
}

func (self *Session) Publish(ctx context.Context, msg *packet.Message) error {
	l, err := self.current()
	if err != nil {
		return err
	}
	return l.Publish(ctx, self.ex, msg)
}

func (self *Session) Subscribe(ctx context.Context, sub packet.Subscription) error {
	l, err := self.current()
	if err != nil {
		return err
	}
	return l.Subscribe(ctx, self.ex, sub)
}

func (self *Session) Receive(ctx context.Context) (*packet.Message, bool, error) {
	l, err := self.current()
	if err != nil {
		return nil, false, err
	}
	return l.Receive(ctx, self.ex)
}

// Disconnect from Created or Live. Broker initiated disconnect seen by
// CheckLost also returns session to Disconnected.
func (self *Session) Disconnect(ctx context.Context) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	var d *Disconnected
	var err error
	switch self.state() {
	case StateDisconnected:
		return ErrDisconnected
	case StateCreated:
		d, err = self.created.Disconnect(ctx, self.ex)
	case StateLive:
		d, err = self.live.Disconnect(ctx, self.ex)
	}
	if err != nil {
		return err
	}
	self.disc, self.created, self.live = d, nil, nil
	return nil
}

// CheckLost returns true when module reported broker disconnect.
func (self *Session) CheckLost(ctx context.Context) (bool, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.live == nil {
		return false, nil
	}
	d, err := self.live.Lost(ctx, self.ex)
	if err != nil || d == nil {
		return false, err
	}
	self.disc, self.live = d, nil
	return true, nil
}

func (self *Session) current() (*Live, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	switch self.state() {
	case StateDisconnected:
		return nil, ErrDisconnected
	case StateCreated:
		return nil, ErrNotConnected
	}
	return self.live, nil
}
