package socket

import (
	"context"

	"github.com/temoto/nbiot/helpers"
	"github.com/temoto/nbiot/modem"
)

// Async runs the same socket state graph on modem.Owner goroutine,
// every operation returns future instead of blocking caller.
// Sockets left open are closed by Shutdown.
type Async struct {
	owner *modem.Owner
}

func NewAsync(owner *modem.Owner) *Async { return &Async{owner: owner} }

func (self *Async) Owner() *modem.Owner { return self.owner }

func (self *Async) Create(ctx context.Context, opt Options) *helpers.Future[*Pending] {
	return spawn(func() (*Pending, error) { return Create(ctx, self.owner, opt) })
}

func (self *Async) Connect(ctx context.Context, p *Pending, port int, addr string) *helpers.Future[*Connected] {
	return spawn(func() (*Connected, error) { return p.Connect(ctx, port, addr) })
}

func (self *Async) Send(ctx context.Context, c *Connected, b []byte) *helpers.Future[struct{}] {
	return spawn(func() (struct{}, error) { return struct{}{}, c.Send(ctx, b) })
}

func (self *Async) SendText(ctx context.Context, c *Connected, s string) *helpers.Future[struct{}] {
	return spawn(func() (struct{}, error) { return struct{}{}, c.SendText(ctx, s) })
}

func (self *Async) Receive(ctx context.Context, c *Connected) *helpers.Future[[]byte] {
	return spawn(func() ([]byte, error) { return c.Receive(ctx) })
}

// Close accepts *Pending or *Connected.
func (self *Async) Close(ctx context.Context, s interface{ Close(context.Context) error }) *helpers.Future[struct{}] {
	return spawn(func() (struct{}, error) { return struct{}{}, s.Close(ctx) })
}

// Shutdown closes sockets still open and stops owner goroutine.
func (self *Async) Shutdown(ctx context.Context) error { return self.owner.Shutdown(ctx) }

func spawn[T any](f func() (T, error)) *helpers.Future[T] {
	fu := helpers.NewFuture[T]()
	go func() {
		v, err := f()
		fu.Complete(v, err)
	}()
	return fu
}
