package at

import (
	"bytes"
	"context"
	"io"
	"strconv"

	"github.com/juju/errors"
	"github.com/temoto/nbiot/log2"
)

const (
	OKTerminator    = "\r\nOK\r\n"
	ErrorTerminator = "RROR\r\n"
	EchoPrefix      = "AT"

	MinBufferSize     = 64
	DefaultBufferSize = 1024
)

var (
	okTerm   = []byte(OKTerminator)
	okBare   = []byte(OKTerminator[2:])
	errTerm  = []byte(ErrorTerminator)
	cmePfx   = []byte(RemoteCME + ":")
	cmsPfx   = []byte(RemoteCMS + ":")
	echoPfx  = []byte(EchoPrefix)
	crlfTrim = "\r\n"
)

type FrameKind uint8

const (
	FrameOK FrameKind = iota + 1
	FrameError
)

// Frame is one complete reply.
// Data aliases reader buffer and is valid until next ReadFrame.
type Frame struct {
	Kind FrameKind
	Data []byte
	// Consumed is count of bytes read for this frame, terminator included.
	Consumed int
}

// FrameReader accumulates transport bytes into fixed buffer until
// success or failure terminator.
type FrameReader struct {
	r    io.Reader
	log  *log2.Log
	buf  []byte
	rest []byte // bytes after terminator, belong to next frame or unsolicited push
}

func NewFrameReader(r io.Reader, size int, log *log2.Log) *FrameReader {
	if size < MinBufferSize {
		size = MinBufferSize
	}
	return &FrameReader{
		r:   r,
		log: log,
		buf: make([]byte, size),
	}
}

func (self *FrameReader) Size() int { return len(self.buf) }

// TakeRest returns bytes read past last terminator and forgets them.
func (self *FrameReader) TakeRest() []byte {
	r := self.rest
	self.rest = nil
	return r
}

// ReadFrame blocks until terminator, ctx end or terminal transport failure.
// Remote failure is returned as *RemoteError with raw consumed bytes.
func (self *FrameReader) ReadFrame(ctx context.Context) (Frame, error) {
	n := copy(self.buf, self.rest)
	self.rest = self.rest[n:]
	if len(self.rest) == 0 {
		self.rest = nil
	}
	scanned := 0
	lineStart := 0
	for {
		for ; scanned < n; scanned++ {
			end := scanned + 1
			if f, done, err := self.check(end, &lineStart); done {
				if end < n {
					self.rest = append(append([]byte(nil), self.buf[end:n]...), self.rest...)
				}
				return f, err
			}
		}
		if n >= len(self.buf) {
			self.log.Wire("frame overflow", self.buf[:n])
			return Frame{Consumed: n}, errors.Annotatef(ErrOverflow, "size=%d", len(self.buf))
		}
		if err := ctx.Err(); err != nil {
			return Frame{Consumed: n}, errors.Annotatef(ErrDeadline, "%v partial=%q", err, self.buf[:n])
		}

		k, err := self.r.Read(self.buf[n:])
		n += k
		if err != nil {
			if isTransient(err) {
				self.log.Debugf("frame read transient err=%v", err)
				continue
			}
			if n > scanned {
				// terminator may have arrived together with error
				continue
			}
			return Frame{Consumed: n}, errors.Annotatef(ErrNotReady, "read err=%v", err)
		}
	}
}

// check looks for terminator ending exactly at end.
// Windows are only evaluated once enough bytes accumulated.
func (self *FrameReader) check(end int, lineStart *int) (Frame, bool, error) {
	b := self.buf[:end]
	if end >= len(okTerm) && bytes.Equal(b[end-len(okTerm):], okTerm) {
		return Frame{Kind: FrameOK, Data: trimReply(b[:end-len(okTerm)]), Consumed: end}, true, nil
	}
	if end == len(okBare) && bytes.Equal(b, okBare) {
		return Frame{Kind: FrameOK, Data: b[:0], Consumed: end}, true, nil
	}
	if end >= len(errTerm) && bytes.Equal(b[end-len(errTerm):], errTerm) {
		re := &RemoteError{Kind: RemotePlain, Code: -1, Raw: append([]byte(nil), b...)}
		line := bytes.TrimSpace(b[*lineStart:])
		if bytes.HasPrefix(line, cmePfx) || bytes.HasPrefix(line, cmsPfx) {
			fillRemote(re, line)
		}
		return Frame{Kind: FrameError, Consumed: end}, true, re
	}
	if b[end-1] == '\n' {
		line := bytes.TrimSpace(b[*lineStart:])
		*lineStart = end
		if bytes.HasPrefix(line, cmePfx) || bytes.HasPrefix(line, cmsPfx) {
			re := &RemoteError{Code: -1, Raw: append([]byte(nil), b...)}
			fillRemote(re, line)
			return Frame{Kind: FrameError, Consumed: end}, true, re
		}
	}
	return Frame{}, false, nil
}

func fillRemote(re *RemoteError, line []byte) {
	re.Kind = RemoteCME
	if bytes.HasPrefix(line, cmsPfx) {
		re.Kind = RemoteCMS
	}
	text := string(bytes.TrimSpace(line[len(cmePfx):]))
	re.Text = text
	if code, err := strconv.Atoi(text); err == nil {
		re.Code = code
	}
}

// trimReply drops leading line breaks and echoed command lines.
func trimReply(b []byte) []byte {
	b = bytes.TrimLeft(b, crlfTrim)
	for bytes.HasPrefix(b, echoPfx) {
		i := bytes.IndexByte(b, '\n')
		if i < 0 {
			return b[:0]
		}
		b = bytes.TrimLeft(b[i+1:], crlfTrim)
	}
	return b
}

func isTransient(err error) bool {
	if t, ok := err.(interface{ Timeout() bool }); ok && t.Timeout() {
		return true
	}
	if t, ok := err.(interface{ Temporary() bool }); ok && t.Temporary() {
		return true
	}
	return false
}

type LineKind uint8

const (
	LineEmpty LineKind = iota
	LineEcho
	LineData
	LineOK
	LineError
)

func (k LineKind) String() string {
	switch k {
	case LineEmpty:
		return "empty"
	case LineEcho:
		return "echo"
	case LineData:
		return "data"
	case LineOK:
		return "ok"
	case LineError:
		return "error"
	}
	return "line(" + strconv.Itoa(int(k)) + ")"
}

// Classify single line without CR LF.
func Classify(line []byte) LineKind {
	line = bytes.TrimSpace(line)
	switch {
	case len(line) == 0:
		return LineEmpty
	case bytes.Equal(line, okBare[:2]):
		return LineOK
	case bytes.HasSuffix(line, []byte("ERROR")), bytes.HasPrefix(line, cmePfx), bytes.HasPrefix(line, cmsPfx):
		return LineError
	case bytes.HasPrefix(line, echoPfx):
		return LineEcho
	}
	return LineData
}

// SplitLines calls f for every non-empty CR LF separated line.
func SplitLines(b []byte, f func(line []byte)) {
	for len(b) > 0 {
		i := bytes.IndexByte(b, '\n')
		var line []byte
		if i < 0 {
			line, b = b, nil
		} else {
			line, b = b[:i], b[i+1:]
		}
		line = bytes.TrimRight(line, crlfTrim)
		if len(line) > 0 {
			f(line)
		}
	}
}
