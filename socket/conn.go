package socket

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/nbiot/at/command"
	"github.com/temoto/nbiot/modem"
)

// MaxChunk is payload limit of single AT+CSOSEND.
const MaxChunk = 512

// Addr is module side socket address.
type Addr struct {
	Net  string
	Host string
}

func (self Addr) Network() string { return self.Net }
func (self Addr) String() string  { return self.Host }

// Conn is net.Conn over connected module socket.
// Deadlines bound each module command, zero deadline means ctx of Dial.
type Conn struct {
	c      *Connected
	ctx    context.Context
	local  Addr
	remote Addr

	rmu  sync.Mutex
	rbuf []byte
	wmu  sync.Mutex

	dmu   sync.Mutex
	rdead time.Time
	wdead time.Time
}

var _ net.Conn = (*Conn)(nil)

// Dial creates and connects socket, address is "host:port".
func Dial(ctx context.Context, ex modem.Executor, opt Options, address string) (*Conn, error) {
	host, ports, err := net.SplitHostPort(address)
	if err != nil {
		return nil, errors.Annotate(err, "socket dial")
	}
	port, err := strconv.Atoi(ports)
	if err != nil {
		return nil, errors.NotValidf("socket dial port=%s", ports)
	}
	p, err := Create(ctx, ex, opt)
	if err != nil {
		return nil, err
	}
	c, err := p.Connect(ctx, port, host)
	if err != nil {
		_ = p.Close(ctx)
		return nil, err
	}
	return NewConn(ctx, c), nil
}

func NewConn(ctx context.Context, c *Connected) *Conn {
	network := "tcp"
	if c.opt.Type == command.UDP {
		network = "udp"
	}
	return &Conn{
		c:      c,
		ctx:    ctx,
		local:  Addr{Net: network, Host: "module:" + strconv.Itoa(c.id)},
		remote: Addr{Net: network, Host: c.remote},
	}
}

func (self *Conn) Socket() *Connected { return self.c }

// Read returns buffered remains of last push first.
// Module reported close is io.EOF.
func (self *Conn) Read(p []byte) (int, error) {
	self.rmu.Lock()
	defer self.rmu.Unlock()
	if len(self.rbuf) == 0 {
		ctx, cancel := self.deadline(&self.rdead)
		b, err := self.c.Receive(ctx)
		cancel()
		if err != nil {
			if IsClosed(err) || modem.IsSpent(err) {
				return 0, io.EOF
			}
			return 0, err
		}
		self.rbuf = b
	}
	n := copy(p, self.rbuf)
	self.rbuf = self.rbuf[n:]
	return n, nil
}

func (self *Conn) Write(p []byte) (int, error) {
	self.wmu.Lock()
	defer self.wmu.Unlock()
	ctx, cancel := self.deadline(&self.wdead)
	defer cancel()
	written := 0
	for written < len(p) {
		chunk := p[written:]
		if len(chunk) > MaxChunk {
			chunk = chunk[:MaxChunk]
		}
		if err := self.c.Send(ctx, chunk); err != nil {
			return written, err
		}
		written += len(chunk)
	}
	return written, nil
}

func (self *Conn) Close() error { return self.c.Close(self.ctx) }

func (self *Conn) LocalAddr() net.Addr  { return self.local }
func (self *Conn) RemoteAddr() net.Addr { return self.remote }

func (self *Conn) SetDeadline(t time.Time) error {
	_ = self.SetReadDeadline(t)
	return self.SetWriteDeadline(t)
}

// SetReadDeadline applies to next Read, not one already waiting.
func (self *Conn) SetReadDeadline(t time.Time) error {
	self.dmu.Lock()
	self.rdead = t
	self.dmu.Unlock()
	return nil
}

func (self *Conn) SetWriteDeadline(t time.Time) error {
	self.dmu.Lock()
	self.wdead = t
	self.dmu.Unlock()
	return nil
}

func (self *Conn) deadline(pt *time.Time) (context.Context, context.CancelFunc) {
	self.dmu.Lock()
	t := *pt
	self.dmu.Unlock()
	if t.IsZero() {
		return context.WithCancel(self.ctx)
	}
	return context.WithDeadline(self.ctx, t)
}
