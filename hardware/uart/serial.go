package uart

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/nbiot/log2"
	"go.bug.st/serial"
)

// serialUart reads the port in background goroutine, so Buffered()
// answers without touching the port.
type serialUart struct {
	log   *log2.Log
	poll  time.Duration
	port  io.ReadWriteCloser
	alive *alive.Alive

	mu     sync.Mutex
	rbuf   bytes.Buffer
	rerr   error
	notify chan struct{}
}

func NewSerialUart(log *log2.Log, poll time.Duration) *serialUart {
	return &serialUart{log: log, poll: poll}
}

func (self *serialUart) Open(path string, baud int) error {
	if self.port != nil {
		_ = self.Close()
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return errors.Annotatef(err, "serial open path=%s baud=%d", path, baud)
	}
	if err = port.SetReadTimeout(self.poll); err != nil {
		port.Close()
		return errors.Annotate(err, "serial SetReadTimeout")
	}
	self.start(port)
	return nil
}

func (self *serialUart) start(port io.ReadWriteCloser) {
	self.port = port
	self.rbuf.Reset()
	self.rerr = nil
	self.notify = make(chan struct{}, 1)
	self.alive = alive.NewAlive()
	self.alive.Add(1)
	go self.readLoop()
}

func (self *serialUart) readLoop() {
	defer self.alive.Done()
	buf := make([]byte, 256)
	for self.alive.IsRunning() {
		n, err := self.port.Read(buf)
		if n > 0 || err != nil {
			self.mu.Lock()
			self.rbuf.Write(buf[:n])
			if err != nil && self.alive.IsRunning() {
				self.rerr = err
			}
			self.mu.Unlock()
			select {
			case self.notify <- struct{}{}:
			default:
			}
		}
		if err != nil {
			if self.alive.IsRunning() {
				self.log.Errorf("serial read loop err=%v", err)
			}
			return
		}
	}
}

func (self *serialUart) Buffered() (int, error) {
	if self.port == nil {
		return 0, ErrClosed
	}
	self.mu.Lock()
	defer self.mu.Unlock()
	if n := self.rbuf.Len(); n > 0 {
		return n, nil
	}
	return 0, self.rerr
}

// Read returns (0,nil) when nothing arrived within poll interval.
func (self *serialUart) Read(p []byte) (int, error) {
	if self.port == nil {
		return 0, ErrClosed
	}
	for attempt := 0; attempt < 2; attempt++ {
		self.mu.Lock()
		if self.rbuf.Len() > 0 {
			n, _ := self.rbuf.Read(p)
			self.mu.Unlock()
			return n, nil
		}
		err := self.rerr
		self.mu.Unlock()
		if err != nil {
			return 0, err
		}
		if attempt > 0 {
			break
		}
		select {
		case <-self.notify:
		case <-time.After(self.poll):
		case <-self.alive.StopChan():
			return 0, ErrClosed
		}
	}
	return 0, nil
}

func (self *serialUart) Write(p []byte) (int, error) {
	if self.port == nil {
		return 0, ErrClosed
	}
	return self.port.Write(p)
}

func (self *serialUart) Close() error {
	if self.port == nil {
		return nil
	}
	self.alive.Stop()
	err := self.port.Close()
	self.alive.Wait()
	self.port = nil
	return err
}
