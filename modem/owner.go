package modem

import (
	"context"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/nbiot/at"
	"github.com/temoto/nbiot/helpers"
	"github.com/temoto/nbiot/log2"
)

// Owner is single goroutine serving queued requests against one Modem.
// Sessions sharing the channel pass *Owner as Executor.
type Owner struct {
	Log   *log2.Log
	m     *Modem
	alive *alive.Alive
	reqs  chan ownerRequest

	mu       sync.Mutex
	nextID   uint64
	teardown map[uint64]Teardown
}

// Teardown is best effort release of remote session, run by Shutdown.
type Teardown func(ctx context.Context, ex Executor) error

type ownerRequest struct {
	fn   func(*Modem) error
	done chan error
}

func NewOwner(m *Modem, queue int) *Owner {
	if queue <= 0 {
		queue = 1
	}
	self := &Owner{
		Log:      m.Log,
		m:        m,
		alive:    alive.NewAlive(),
		reqs:     make(chan ownerRequest, queue),
		teardown: make(map[uint64]Teardown),
	}
	self.alive.Add(1)
	go self.loop()
	return self
}

func (self *Owner) loop() {
	defer self.alive.Done()
	stopch := self.alive.StopChan()
	for {
		select {
		case r := <-self.reqs:
			r.done <- r.fn(self.m)
		case <-stopch:
			for {
				select {
				case r := <-self.reqs:
					r.done <- ErrClosed
				default:
					return
				}
			}
		}
	}
}

// Run executes fn on owner goroutine, fn has exclusive use of Modem.
func (self *Owner) Run(ctx context.Context, fn func(*Modem) error) error {
	if !self.alive.IsRunning() {
		return ErrClosed
	}
	r := ownerRequest{fn: fn, done: make(chan error, 1)}
	select {
	case self.reqs <- r:
	case <-ctx.Done():
		return errors.Annotatef(at.ErrDeadline, "owner queue: %v", ctx.Err())
	case <-self.alive.StopChan():
		return ErrClosed
	}
	select {
	case err := <-r.done:
		return err
	case <-ctx.Done():
		return errors.Annotatef(at.ErrDeadline, "owner wait: %v", ctx.Err())
	case <-self.alive.WaitChan():
		select {
		case err := <-r.done:
			return err
		default:
			return ErrClosed
		}
	}
}

func (self *Owner) Do(ctx context.Context, op Op) error {
	return self.Run(ctx, func(m *Modem) error { return m.Do(ctx, op) })
}

func (self *Owner) Take(ctx context.Context, prefix string, match func(line []byte) bool) ([]byte, bool, error) {
	var line []byte
	var ok bool
	err := self.Run(ctx, func(m *Modem) error {
		var err error
		line, ok, err = m.Take(ctx, prefix, match)
		return err
	})
	return line, ok, err
}

func (self *Owner) Requeue(line []byte) { self.m.Requeue(line) }

// Track registers teardown to run on Shutdown, returned func cancels it.
func (self *Owner) Track(t Teardown) (untrack func()) {
	self.mu.Lock()
	self.nextID++
	id := self.nextID
	self.teardown[id] = t
	self.mu.Unlock()
	return func() {
		self.mu.Lock()
		delete(self.teardown, id)
		self.mu.Unlock()
	}
}

// Shutdown runs tracked teardowns through queue, then stops owner goroutine.
// Modem is not closed.
func (self *Owner) Shutdown(ctx context.Context) error {
	self.mu.Lock()
	ts := make([]Teardown, 0, len(self.teardown))
	for id, t := range self.teardown {
		ts = append(ts, t)
		delete(self.teardown, id)
	}
	self.mu.Unlock()

	errs := make([]error, 0, len(ts))
	for _, t := range ts {
		if err := t(ctx, self); err != nil {
			self.Log.Errorf("owner teardown err=%v", err)
			errs = append(errs, err)
		}
	}
	self.alive.Stop()
	select {
	case <-self.alive.WaitChan():
	case <-ctx.Done():
		errs = append(errs, errors.Annotatef(at.ErrDeadline, "owner stop: %v", ctx.Err()))
	}
	return helpers.FoldErrors(errs)
}
