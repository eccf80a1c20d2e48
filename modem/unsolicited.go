package modem

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/nbiot/at"
	"github.com/temoto/nbiot/hardware/pin"
	"github.com/temoto/nbiot/log2"
)

// Inbox is bounded FIFO of lines pushed by module between commands.
// Lines are owned copies without CR LF.
type Inbox struct {
	log     *log2.Log
	mu      sync.Mutex
	lines   [][]byte
	limit   int
	partial []byte
	subs    []subscription
	dropped uint64
	total   uint64
}

type subscription struct {
	prefix string
	fn     func(line []byte)
}

func NewInbox(limit int, log *log2.Log) *Inbox {
	if limit <= 0 {
		limit = DefaultUnsolicitedQueue
	}
	return &Inbox{limit: limit, log: log}
}

// Subscribe routes lines with prefix to fn instead of queue.
// fn runs on command goroutine and must not call Modem.
func (self *Inbox) Subscribe(prefix string, fn func(line []byte)) {
	self.mu.Lock()
	self.subs = append(self.subs, subscription{prefix: prefix, fn: fn})
	self.mu.Unlock()
}

// Feed accepts raw bytes, incomplete tail line waits for next Feed.
func (self *Inbox) Feed(b []byte) {
	if len(b) == 0 {
		return
	}
	self.mu.Lock()
	self.partial = append(self.partial, b...)
	i := bytes.LastIndexByte(self.partial, '\n')
	if i < 0 {
		self.mu.Unlock()
		return
	}
	complete := self.partial[:i+1]
	self.partial = append([]byte(nil), self.partial[i+1:]...)
	self.mu.Unlock()

	at.SplitLines(complete, func(line []byte) {
		switch at.Classify(line) {
		case at.LineEmpty, at.LineOK, at.LineEcho:
		case at.LineError:
			self.log.Errorf("modem unsolicited stray error line=%s", log2.Printable(line))
		default:
			self.Push(line)
		}
	})
}

// Push queues copy of single line, dropping oldest when full.
func (self *Inbox) Push(line []byte) {
	line = append([]byte(nil), bytes.TrimSpace(line)...)
	self.mu.Lock()
	for _, s := range self.subs {
		if bytes.HasPrefix(line, []byte(s.prefix)) {
			self.mu.Unlock()
			atomic.AddUint64(&self.total, 1)
			s.fn(line)
			return
		}
	}
	atomic.AddUint64(&self.total, 1)
	var dropped []byte
	if len(self.lines) >= self.limit {
		dropped = self.lines[0]
		self.lines = self.lines[1:]
		atomic.AddUint64(&self.dropped, 1)
	}
	self.lines = append(self.lines, line)
	self.mu.Unlock()
	if dropped != nil {
		self.log.Errorf("modem unsolicited queue full, dropped line=%s", log2.Printable(dropped))
	}
}

// Next pops first queued line starting with prefix. Empty prefix matches any line.
func (self *Inbox) Next(prefix string) ([]byte, bool) { return self.NextFunc(prefix, nil) }

// NextFunc pops first queued line with prefix accepted by match, other lines
// keep their order. Nil match accepts any line. match runs under inbox lock.
func (self *Inbox) NextFunc(prefix string, match func(line []byte) bool) ([]byte, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	for i, line := range self.lines {
		if !strings.HasPrefix(string(line), prefix) {
			continue
		}
		if match != nil && !match(line) {
			continue
		}
		self.lines = append(self.lines[:i:i], self.lines[i+1:]...)
		return line, true
	}
	return nil, false
}

// Requeue returns line to queue front. When full, newest line is dropped.
func (self *Inbox) Requeue(line []byte) {
	self.mu.Lock()
	self.lines = append([][]byte{line}, self.lines...)
	var dropped []byte
	if len(self.lines) > self.limit {
		dropped = self.lines[self.limit]
		self.lines = self.lines[:self.limit]
		atomic.AddUint64(&self.dropped, 1)
	}
	self.mu.Unlock()
	if dropped != nil {
		self.log.Errorf("modem unsolicited queue full, dropped line=%s", log2.Printable(dropped))
	}
}

// Dropped counts lines lost to queue limit.
func (self *Inbox) Dropped() uint64 { return atomic.LoadUint64(&self.dropped) }

func (self *Inbox) Len() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return len(self.lines)
}

// isPush reports whether line starts with any of prefixes.
func isPush(line []byte, prefixes []string) bool {
	for _, p := range prefixes {
		if bytes.HasPrefix(line, []byte(p)) {
			return true
		}
	}
	return false
}

// splitPushes moves known push lines from reply data to inbox.
// Compacts data in place and returns remaining reply.
func (self *Inbox) splitPushes(data []byte, prefixes []string) []byte {
	out := data[:0]
	for len(data) > 0 {
		n := bytes.IndexByte(data, '\n') + 1
		if n == 0 {
			n = len(data)
		}
		line := data[:n]
		data = data[n:]
		if isPush(bytes.TrimSpace(line), prefixes) {
			self.Push(line)
			continue
		}
		out = append(out, line...)
	}
	return out
}

// Receive pops first queued push accepted by u, after draining pending
// transport bytes. ok=false when there is none yet.
// Decode failure is returned, line is consumed.
func Receive[T any](ctx context.Context, ex Executor, u at.Unsolicited[T]) (T, bool, error) {
	var zero T
	line, ok, err := ex.Take(ctx, u.Prefix(), nil)
	if err != nil || !ok {
		return zero, false, errors.Trace(err)
	}
	v, err := u.Decode(line)
	if err != nil {
		return zero, false, errors.Trace(err)
	}
	return v, true, nil
}

// Await polls Receive every interval until push arrives or ctx ends.
func Await[T any](ctx context.Context, ex Executor, u at.Unsolicited[T], interval time.Duration) (T, error) {
	if interval <= 0 {
		interval = DefaultPoll
	}
	for {
		v, ok, err := Receive(ctx, ex, u)
		if err != nil || ok {
			return v, err
		}
		if err := pin.Delay(ctx, interval); err != nil {
			return v, errors.Annotatef(at.ErrDeadline, "await %s: %v", u.Prefix(), err)
		}
	}
}

// ReceiveID is Receive for pushes tagged with session id.
// Pushes for other sessions stay queued in place. When only those are queued,
// ok=false and *MismatchError names the first of them.
// Line that fails to decode is consumed and its error returned.
func ReceiveID[T any](ctx context.Context, ex Executor, u at.Unsolicited[T], want int, idOf func(T) int) (T, bool, error) {
	var zero, found T
	var decodeErr error
	foreign := -1
	_, ok, err := ex.Take(ctx, u.Prefix(), func(line []byte) bool {
		v, err := u.Decode(line)
		if err != nil {
			decodeErr = err
			return true
		}
		if got := idOf(v); got != want {
			if foreign < 0 {
				foreign = got
			}
			return false
		}
		found = v
		return true
	})
	switch {
	case err != nil:
		return zero, false, errors.Trace(err)
	case ok && decodeErr != nil:
		return zero, false, errors.Trace(decodeErr)
	case ok:
		return found, true, nil
	case foreign >= 0:
		return zero, false, &MismatchError{Prefix: u.Prefix(), Want: want, Got: foreign}
	}
	return zero, false, nil
}

// AwaitID polls ReceiveID every interval until matching push arrives or ctx ends.
// Pushes for other sessions do not interrupt waiting.
func AwaitID[T any](ctx context.Context, ex Executor, u at.Unsolicited[T], want int, idOf func(T) int, interval time.Duration) (T, error) {
	if interval <= 0 {
		interval = DefaultPoll
	}
	for {
		v, ok, err := ReceiveID(ctx, ex, u, want, idOf)
		if ok {
			return v, nil
		}
		if err != nil && !IsMismatch(err) {
			return v, err
		}
		if err := pin.Delay(ctx, interval); err != nil {
			return v, errors.Annotatef(at.ErrDeadline, "await %s id=%d: %v", u.Prefix(), want, err)
		}
	}
}

const DefaultPoll = 100 * time.Millisecond
