package uart

// Public API to create modem stubs for tests.
import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
)

type exchange struct {
	request string
	reply   string
}

// Mock is scripted Uarter: each written request must match next Expect(),
// then its reply becomes readable.
type Mock struct {
	mu      sync.Mutex
	script  []exchange
	wpend   []byte
	rbuf    bytes.Buffer
	rerrs   []error
	written bytes.Buffer
	chunk   int
	closed  bool
}

func NewMock() *Mock { return &Mock{} }

// Expect appends request/reply pair. Empty reply means module stays silent.
func (self *Mock) Expect(request, reply string) *Mock {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.script = append(self.script, exchange{request: request, reply: reply})
	return self
}

// Push makes bytes readable immediately, like module pushed them unsolicited.
func (self *Mock) Push(s string) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.rbuf.WriteString(s)
}

// InjectReadError makes next Read return err before any data.
func (self *Mock) InjectReadError(err error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.rerrs = append(self.rerrs, err)
}

// SetChunk limits bytes returned by one Read, simulates slow uart.
func (self *Mock) SetChunk(n int) {
	self.mu.Lock()
	self.chunk = n
	self.mu.Unlock()
}

func (self *Mock) Open(path string, baud int) error {
	self.mu.Lock()
	self.closed = false
	self.mu.Unlock()
	return nil
}

func (self *Mock) Close() error {
	self.mu.Lock()
	self.closed = true
	self.mu.Unlock()
	return nil
}

func (self *Mock) Closed() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.closed
}

func (self *Mock) Buffered() (int, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.closed {
		return 0, ErrClosed
	}
	return self.rbuf.Len(), nil
}

// Read returns io.EOF when script has nothing more to say.
func (self *Mock) Read(p []byte) (int, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.closed {
		return 0, ErrClosed
	}
	if len(self.rerrs) > 0 {
		err := self.rerrs[0]
		self.rerrs = self.rerrs[1:]
		return 0, err
	}
	if self.rbuf.Len() == 0 {
		return 0, io.EOF
	}
	if self.chunk > 0 && len(p) > self.chunk {
		p = p[:self.chunk]
	}
	return self.rbuf.Read(p)
}

func (self *Mock) Write(p []byte) (int, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.closed {
		return 0, ErrClosed
	}
	self.written.Write(p)
	self.wpend = append(self.wpend, p...)
	for len(self.script) > 0 {
		ex := self.script[0]
		pend := string(self.wpend)
		if strings.HasPrefix(pend, ex.request) {
			self.wpend = self.wpend[len(ex.request):]
			self.script = self.script[1:]
			self.rbuf.WriteString(ex.reply)
			continue
		}
		if !strings.HasPrefix(ex.request, pend) {
			return 0, fmt.Errorf("uart mock: unexpected write=%q expected=%q", pend, ex.request)
		}
		break
	}
	if len(self.script) == 0 && len(self.wpend) > 0 {
		return 0, fmt.Errorf("uart mock: unexpected write=%q script is over", self.wpend)
	}
	return len(p), nil
}

// Written returns everything ever written.
func (self *Mock) Written() string {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.written.String()
}

// ExpectationsWereMet returns error when script still has exchanges.
func (self *Mock) ExpectationsWereMet() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if len(self.script) > 0 {
		return fmt.Errorf("uart mock: %d exchanges left, next request=%q", len(self.script), self.script[0].request)
	}
	return nil
}
