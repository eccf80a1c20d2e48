//go:build linux

package uart

import (
	"os"
	"syscall"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/nbiot/log2"
	"golang.org/x/sys/unix"
)

// fileUart talks to already configured tty or pty, i.e. socat bridge to
// module emulator. Line settings are left to stty.
type fileUart struct {
	log  *log2.Log
	poll time.Duration
	f    *os.File
}

func NewFileUart(log *log2.Log, poll time.Duration) (*fileUart, error) {
	return &fileUart{log: log, poll: poll}, nil
}

func (self *fileUart) Open(path string, baud int) (err error) {
	if self.f != nil {
		self.f.Close()
	}
	self.f, err = os.OpenFile(path, syscall.O_RDWR|syscall.O_NOCTTY, 0600)
	if err != nil {
		return errors.Annotatef(err, "uart file open path=%s", path)
	}
	self.log.Debugf("uart file open path=%s baud=%d ignored", path, baud)
	return nil
}

func (self *fileUart) wait(timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(self.f.Fd()), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, int(timeout/time.Millisecond))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, errors.Annotate(err, "poll")
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
			return false, ErrClosed
		}
		return n > 0, nil
	}
}

func (self *fileUart) Buffered() (int, error) {
	if self.f == nil {
		return 0, ErrClosed
	}
	ready, err := self.wait(0)
	if err != nil || !ready {
		return 0, err
	}
	n, err := unix.IoctlGetInt(int(self.f.Fd()), unix.TIOCINQ)
	if err != nil || n == 0 {
		// pipes and some pty do not support FIONREAD, poll said ready
		return 1, nil
	}
	return n, nil
}

func (self *fileUart) Read(p []byte) (int, error) {
	if self.f == nil {
		return 0, ErrClosed
	}
	ready, err := self.wait(self.poll)
	if err != nil {
		return 0, err
	}
	if !ready {
		return 0, nil
	}
	return self.f.Read(p)
}

func (self *fileUart) Write(p []byte) (int, error) {
	if self.f == nil {
		return 0, ErrClosed
	}
	return self.f.Write(p)
}

func (self *fileUart) Close() error {
	if self.f == nil {
		return nil
	}
	err := self.f.Close()
	self.f = nil
	return err
}
