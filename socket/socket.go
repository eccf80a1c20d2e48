// Package socket is TCP/UDP client socket inside the module (AT+CSOC family).
//
//	Create -> Pending -Connect-> Connected
//	Pending, Connected -Close-> (terminal)
//
// Transition spends its receiver, spent handle returns modem.ErrSpent.
// Inbound data arrives as +CSONMI push and is accepted only when socket id matches.
package socket

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/nbiot/at"
	"github.com/temoto/nbiot/at/command"
	"github.com/temoto/nbiot/hardware/pin"
	"github.com/temoto/nbiot/modem"
)

var ErrSpent = modem.ErrSpent

type Options struct {
	Domain   command.Domain
	Type     command.SocketType
	Protocol command.Protocol
	// PDP context id, nil for default
	CID *int
	// Poll is inbound data check interval.
	Poll time.Duration
}

func (self Options) withDefaults() Options {
	if self.Domain == 0 {
		self.Domain = command.IPv4
	}
	if self.Type == 0 {
		self.Type = command.TCP
	}
	if self.Protocol == 0 {
		self.Protocol = command.ProtoIP
	}
	if self.Poll <= 0 {
		self.Poll = modem.DefaultPoll
	}
	return self
}

// ClosedError is +CSOERR push, socket is unusable after it.
type ClosedError struct {
	ID   int
	Code int
}

func (self *ClosedError) Error() string {
	return fmt.Sprintf("socket id=%d closed by module code=%d", self.ID, self.Code)
}

func IsClosed(err error) bool {
	_, ok := errors.Cause(err).(*ClosedError)
	return ok
}

// tracker is implemented by modem.Owner.
type tracker interface {
	Track(modem.Teardown) (untrack func())
}

// core is shared by all states of one socket.
type core struct {
	ex      modem.Executor
	opt     Options
	id      int
	untrack func()
}

func (self *core) release() {
	if self.untrack != nil {
		self.untrack()
	}
}

type Pending struct {
	h modem.Handle
	*core
}

type Connected struct {
	h modem.Handle
	*core
	remote string
}

// Create allocates socket on module. When ex is *modem.Owner, socket close
// is registered as Owner.Shutdown teardown until Close.
func Create(ctx context.Context, ex modem.Executor, opt Options) (*Pending, error) {
	opt = opt.withDefaults()
	id, err := modem.Execute[int](ctx, ex, command.CreateSocket{
		Domain:   opt.Domain,
		Type:     opt.Type,
		Protocol: opt.Protocol,
		CID:      opt.CID,
	})
	if err != nil {
		return nil, errors.Annotate(err, "socket create")
	}
	c := &core{ex: ex, opt: opt, id: id}
	if tr, ok := ex.(tracker); ok {
		c.untrack = tr.Track(func(ctx context.Context, ex modem.Executor) error {
			_, err := modem.Execute[at.Empty](ctx, ex, command.CloseSocket{ID: id})
			return errors.Annotatef(err, "socket id=%d teardown", id)
		})
	}
	return &Pending{core: c}, nil
}

func (self *Pending) ID() int { return self.id }

// Connect on failure leaves receiver usable.
func (self *Pending) Connect(ctx context.Context, port int, addr string) (*Connected, error) {
	if err := self.h.Begin(); err != nil {
		return nil, err
	}
	_, err := modem.Execute[at.Empty](ctx, self.ex, command.ConnectSocket{ID: self.id, Port: port, Address: addr})
	self.h.End(err == nil)
	if err != nil {
		return nil, errors.Annotatef(err, "socket id=%d connect %s:%d", self.id, addr, port)
	}
	return &Connected{core: self.core, remote: fmt.Sprintf("%s:%d", addr, port)}, nil
}

func (self *Pending) Close(ctx context.Context) error { return closeSocket(ctx, &self.h, self.core) }

func (self *Connected) ID() int        { return self.id }
func (self *Connected) Remote() string { return self.remote }

func (self *Connected) Send(ctx context.Context, b []byte) error {
	if err := self.h.Check(); err != nil {
		return err
	}
	_, err := modem.Execute[at.Empty](ctx, self.ex, command.SendSocket{ID: self.id, Data: b})
	return errors.Annotatef(err, "socket id=%d send len=%d", self.id, len(b))
}

func (self *Connected) SendText(ctx context.Context, s string) error {
	if err := self.h.Check(); err != nil {
		return err
	}
	_, err := modem.Execute[at.Empty](ctx, self.ex, command.SendSocketText{ID: self.id, Text: s})
	return errors.Annotatef(err, "socket id=%d send text len=%d", self.id, len(s))
}

// TryReceive returns queued inbound payload, ok=false when none.
// Pushes for other sockets stay queued, when only those are queued
// *modem.MismatchError is returned along with ok=false.
// +CSOERR for this socket spends handle and returns *ClosedError.
func (self *Connected) TryReceive(ctx context.Context) ([]byte, bool, error) {
	if err := self.h.Check(); err != nil {
		return nil, false, err
	}
	d, ok, err := modem.ReceiveID[command.SocketData](ctx, self.ex, command.SocketPush{}, self.id, dataSocket)
	if ok || (err != nil && !modem.IsMismatch(err)) {
		return d.Data, ok, err
	}
	foreign := err
	f, ok, err := modem.ReceiveID[command.SocketFailure](ctx, self.ex, command.SocketErrorPush{}, self.id, failureSocket)
	if err != nil && !modem.IsMismatch(err) {
		return nil, false, err
	}
	if !ok {
		if foreign == nil {
			foreign = err
		}
		return nil, false, foreign
	}
	self.h.End(true)
	self.release()
	return nil, false, &ClosedError{ID: f.SocketID, Code: f.Code}
}

// Receive blocks until inbound payload, socket failure or ctx end.
func (self *Connected) Receive(ctx context.Context) ([]byte, error) {
	for {
		b, ok, err := self.TryReceive(ctx)
		if ok {
			return b, nil
		}
		if err != nil && !modem.IsMismatch(err) {
			return nil, err
		}
		if err := pin.Delay(ctx, self.opt.Poll); err != nil {
			return nil, errors.Annotatef(at.ErrDeadline, "socket id=%d receive: %v", self.id, err)
		}
	}
}

func (self *Connected) Close(ctx context.Context) error { return closeSocket(ctx, &self.h, self.core) }

// closeSocket is terminal regardless of module reply.
func closeSocket(ctx context.Context, h *modem.Handle, c *core) error {
	if err := h.Begin(); err != nil {
		return err
	}
	h.End(true)
	c.release()
	_, err := modem.Execute[at.Empty](ctx, c.ex, command.CloseSocket{ID: c.id})
	return errors.Annotatef(err, "socket id=%d close", c.id)
}

func dataSocket(d command.SocketData) int       { return d.SocketID }
func failureSocket(f command.SocketFailure) int { return f.SocketID }
