// Package modem is the session engine: single owner of the serial channel
// and frame reader, executes one AT command at a time.
package modem

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/atomic_clock"
	"github.com/temoto/nbiot/at"
	"github.com/temoto/nbiot/hardware/pin"
	"github.com/temoto/nbiot/helpers"
	"github.com/temoto/nbiot/log2"
)

// Transport is byte channel with non blocking readiness probe.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
	Buffered() (int, error)
}

type Hardware struct {
	Port  Transport
	Power pin.Output
	// Wake is DTR equivalent line.
	Wake pin.Output
}

func (self Hardware) Close() error {
	var cs []io.Closer
	for _, c := range []io.Closer{self.Port, self.Power, self.Wake} {
		if c != nil {
			cs = append(cs, c)
		}
	}
	return helpers.CloseAll(cs...)
}

// Op is type erased command, Decode captures typed result.
// Decode runs while reply buffer is valid and must not keep reply.
type Op struct {
	Request at.Request
	Decode  func(reply []byte) error
}

// Executor runs commands strictly one at a time.
// *Modem fails fast on contention, *Owner queues callers.
type Executor interface {
	Do(ctx context.Context, op Op) error
	// Take drains pending transport bytes and pops first queued push with
	// prefix accepted by match, nil match accepts any.
	Take(ctx context.Context, prefix string, match func(line []byte) bool) ([]byte, bool, error)
	Requeue(line []byte)
}

// Execute is encode, send, read frame, decode.
func Execute[T any](ctx context.Context, ex Executor, cmd at.Command[T]) (T, error) {
	var result T
	err := ex.Do(ctx, Op{
		Request: cmd,
		Decode: func(reply []byte) error {
			var err error
			result, err = cmd.Decode(reply)
			return err
		},
	})
	return result, err
}

type Stat struct {
	Commands     uint64
	Errors       uint64
	BytesOut     uint64
	BytesIn      uint64
	Unsolicited  uint64
	Dropped      uint64
	LastActivity time.Time
}

type Modem struct {
	Log *log2.Log

	config  Config
	hw      Hardware
	lk      sync.Mutex
	fr      *at.FrameReader
	scratch []byte
	inbox   *Inbox
	sleep   uint32
	closed  uint32
	// desync is set when command was sent but reply did not complete,
	// late reply is discarded before next command. Guarded by lk.
	desync bool

	commands uint64
	failures uint64
	bytesOut uint64
	bytesIn  uint64
	last     atomic_clock.Clock
}

// New runs bring-up: power on, wake line low, settle delay, echo off.
// Hardware is closed when bring-up fails.
func New(ctx context.Context, config Config, hw Hardware, log *log2.Log) (*Modem, error) {
	self := newModem(config, hw, log)
	if err := self.PowerOn(ctx); err != nil {
		_ = hw.Close()
		return nil, errors.Annotate(err, "modem bring-up")
	}
	return self, nil
}

func newModem(config Config, hw Hardware, log *log2.Log) *Modem {
	config = config.withDefaults()
	if hw.Power == nil {
		hw.Power = pin.Null{}
	}
	if hw.Wake == nil {
		hw.Wake = pin.Null{}
	}
	return &Modem{
		Log:     log,
		config:  config,
		hw:      hw,
		fr:      at.NewFrameReader(hw.Port, config.BufferSize, log),
		scratch: make([]byte, config.BufferSize),
		inbox:   NewInbox(config.UnsolicitedQueue, log),
	}
}

func (self *Modem) Config() Config { return self.config }
func (self *Modem) Inbox() *Inbox  { return self.inbox }

func (self *Modem) Stat() Stat {
	s := Stat{
		Commands:    atomic.LoadUint64(&self.commands),
		Errors:      atomic.LoadUint64(&self.failures),
		BytesOut:    atomic.LoadUint64(&self.bytesOut),
		BytesIn:     atomic.LoadUint64(&self.bytesIn),
		Unsolicited: atomic.LoadUint64(&self.inbox.total),
		Dropped:     atomic.LoadUint64(&self.inbox.dropped),
	}
	if !self.last.IsZero() {
		s.LastActivity = time.Now().Add(-atomic_clock.Since(&self.last))
	}
	return s
}

// Idle is time since last byte exchanged with module.
func (self *Modem) Idle() time.Duration {
	if self.last.IsZero() {
		return 0
	}
	return atomic_clock.Since(&self.last)
}

// acquire fails fast when another command is in flight.
func (self *Modem) acquire() error {
	if atomic.LoadUint32(&self.closed) != 0 {
		return ErrClosed
	}
	if !self.lk.TryLock() {
		return ErrBusy
	}
	return nil
}

func (self *Modem) locked(f func() error) error {
	if err := self.acquire(); err != nil {
		return err
	}
	defer self.lk.Unlock()
	return f()
}

func (self *Modem) Do(ctx context.Context, op Op) error {
	return self.locked(func() error { return self.exec(ctx, op) })
}

// call is Execute for callers already holding lk.
func call[T any](ctx context.Context, self *Modem, cmd at.Command[T]) (T, error) {
	var result T
	err := self.exec(ctx, Op{
		Request: cmd,
		Decode: func(reply []byte) error {
			var err error
			result, err = cmd.Decode(reply)
			return err
		},
	})
	return result, err
}

func (self *Modem) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, self.config.CommandTimeout)
}

func (self *Modem) exec(ctx context.Context, op Op) error {
	atomic.AddUint64(&self.commands, 1)
	err := self.execInner(ctx, op)
	if err != nil {
		atomic.AddUint64(&self.failures, 1)
	}
	return err
}

func (self *Modem) execInner(ctx context.Context, op Op) error {
	if self.desync {
		if err := self.resync(ctx); err != nil {
			return errors.Annotate(err, "resync before command")
		}
	}
	ctx, cancel := self.deadline(ctx)
	defer cancel()

	if err := self.drain(); err != nil {
		return errors.Annotate(err, "drain before command")
	}
	b, err := op.Request.Encode(self.scratch)
	if err != nil {
		return errors.Annotatef(err, "encode %T", op.Request)
	}
	if err := ctx.Err(); err != nil {
		return errors.Annotatef(at.ErrDeadline, "command=%s not sent: %v", log2.Printable(trimCRLF(b)), err)
	}
	if err := self.write(b); err != nil {
		return err
	}

	f, err := self.fr.ReadFrame(ctx)
	self.received(f.Consumed)
	if err != nil {
		if re, ok := at.AsRemote(err); ok {
			self.Log.Debugf("modem rx=%s err=%v", log2.Printable(re.Raw), err)
			self.inbox.splitPushes(append([]byte(nil), re.Raw...), self.config.Pushes)
			return errors.Annotatef(err, "command=%s", log2.Printable(trimCRLF(b)))
		}
		if at.IsDeadline(err) || at.IsFraming(err) {
			self.desync = true
		}
		self.Log.Errorf("modem command=%s err=%v", log2.Printable(trimCRLF(b)), err)
		return errors.Trace(err)
	}
	self.Log.Wire("modem rx", f.Data)
	reply := self.inbox.splitPushes(f.Data, self.config.Pushes)
	if err := op.Decode(reply); err != nil {
		return errors.Annotatef(err, "command=%s", log2.Printable(trimCRLF(b)))
	}
	return nil
}

// resync waits up to CommandTimeout for reply to previous unfinished
// command and discards it, pushes inside are kept.
func (self *Modem) resync(ctx context.Context) error {
	wait, cancel := context.WithTimeout(ctx, self.config.CommandTimeout)
	defer cancel()
	f, err := self.fr.ReadFrame(wait)
	self.received(f.Consumed)
	switch {
	case err == nil:
		self.Log.Debugf("modem discard late reply=%s", log2.Printable(f.Data))
		self.inbox.splitPushes(f.Data, self.config.Pushes)
	case at.IsRemote(err):
		re, _ := at.AsRemote(err)
		self.Log.Debugf("modem discard late reply=%s", log2.Printable(re.Raw))
		self.inbox.splitPushes(append([]byte(nil), re.Raw...), self.config.Pushes)
	case at.IsDeadline(err) && ctx.Err() == nil:
		self.Log.Debugf("modem no late reply")
	default:
		return errors.Trace(err)
	}
	self.desync = false
	return nil
}

func (self *Modem) received(n int) {
	if n > 0 {
		atomic.AddUint64(&self.bytesIn, uint64(n))
		self.last.SetNow()
	}
}

func (self *Modem) write(b []byte) error {
	self.Log.Wire("modem tx", b)
	if err := helpers.WriteAll(self.hw.Port, b); err != nil {
		return errors.Trace(&at.TransportError{Op: "write", Err: err})
	}
	atomic.AddUint64(&self.bytesOut, uint64(len(b)))
	self.last.SetNow()
	return nil
}

// drain moves bytes read past last reply and transport pending bytes into inbox.
func (self *Modem) drain() error {
	self.inbox.Feed(self.fr.TakeRest())
	for {
		n, err := self.hw.Port.Buffered()
		if err != nil {
			return errors.Trace(&at.TransportError{Op: "buffered", Err: err})
		}
		if n <= 0 {
			return nil
		}
		if n > len(self.scratch) {
			n = len(self.scratch)
		}
		k, err := self.hw.Port.Read(self.scratch[:n])
		if k > 0 {
			atomic.AddUint64(&self.bytesIn, uint64(k))
			self.last.SetNow()
			self.Log.Wire("modem unsolicited", self.scratch[:k])
			self.inbox.Feed(self.scratch[:k])
		}
		if err != nil {
			if isTransient(err) {
				return nil
			}
			return errors.Trace(&at.TransportError{Op: "read", Err: err})
		}
		if k == 0 {
			return nil
		}
	}
}

// Poll drains pending unsolicited data into inbox.
func (self *Modem) Poll(ctx context.Context) error {
	return self.locked(self.drain)
}

func (self *Modem) Take(ctx context.Context, prefix string, match func(line []byte) bool) ([]byte, bool, error) {
	if err := self.Poll(ctx); err != nil {
		return nil, false, err
	}
	line, ok := self.inbox.NextFunc(prefix, match)
	return line, ok, nil
}

func (self *Modem) Requeue(line []byte) { self.inbox.Requeue(line) }

// Subscribe routes pushes with prefix to fn. fn must not call Modem.
func (self *Modem) Subscribe(prefix string, fn func(line []byte)) {
	self.inbox.Subscribe(prefix, fn)
}

// Close releases uart and pins. Further commands return ErrClosed.
func (self *Modem) Close() error {
	if !atomic.CompareAndSwapUint32(&self.closed, 0, 1) {
		return nil
	}
	self.lk.Lock()
	defer self.lk.Unlock()
	self.Log.Info("modem close")
	return self.hw.Close()
}

func isTransient(err error) bool {
	if t, ok := err.(interface{ Timeout() bool }); ok && t.Timeout() {
		return true
	}
	return false
}

func trimCRLF(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
