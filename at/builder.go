package at

import (
	"strconv"

	"github.com/temoto/nbiot/helpers"
)

// Builder writes AT command line into caller scratch without growing it.
// First error sticks, Finish reports it.
type Builder struct {
	buf    []byte
	params int
	err    error
}

// NewBuilder starts "AT<name>".
func NewBuilder(scratch []byte, name string) *Builder {
	b := &Builder{buf: scratch[:0:len(scratch)]}
	b.write(EchoPrefix)
	b.write(name)
	return b
}

// Exec is "AT<name>\r\n".
func Exec(scratch []byte, name string) ([]byte, error) {
	return NewBuilder(scratch, name).Finish()
}

// Query is "AT<name>?\r\n".
func Query(scratch []byte, name string) ([]byte, error) {
	b := NewBuilder(scratch, name)
	b.write("?")
	return b.Finish()
}

// Set starts "AT<name>=", parameters follow.
func Set(scratch []byte, name string) *Builder {
	b := NewBuilder(scratch, name)
	b.write("=")
	return b
}

func (self *Builder) write(s string) {
	if self.err != nil {
		return
	}
	if len(self.buf)+len(s) > cap(self.buf) {
		self.err = ErrScratchTooSmall
		return
	}
	self.buf = append(self.buf, s...)
}

func (self *Builder) sep() {
	if self.params > 0 {
		self.write(",")
	}
	self.params++
}

func (self *Builder) Int(v int) *Builder {
	self.sep()
	var tmp [20]byte
	self.write(string(strconv.AppendInt(tmp[:0], int64(v), 10)))
	return self
}

func (self *Builder) Bool(v bool) *Builder {
	if v {
		return self.Int(1)
	}
	return self.Int(0)
}

// OptInt writes nothing when v is nil, including separator.
func (self *Builder) OptInt(v *int) *Builder {
	if v == nil {
		return self
	}
	return self.Int(*v)
}

// String writes quoted parameter. Quote characters are not escaped,
// module grammar has no escape.
func (self *Builder) String(s string) *Builder {
	self.sep()
	self.write(`"`)
	self.write(s)
	self.write(`"`)
	return self
}

// Hex writes bytes as unquoted lowercase hex.
func (self *Builder) Hex(data []byte) *Builder {
	self.sep()
	self.hex(data)
	return self
}

// QuotedHex writes bytes as quoted lowercase hex.
func (self *Builder) QuotedHex(data []byte) *Builder {
	self.sep()
	self.write(`"`)
	self.hex(data)
	self.write(`"`)
	return self
}

func (self *Builder) hex(data []byte) {
	if self.err != nil {
		return
	}
	if len(self.buf)+2*len(data) > cap(self.buf) {
		self.err = ErrScratchTooSmall
		return
	}
	self.buf = helpers.AppendHex(self.buf, data)
}

// Text appends raw text without separator.
func (self *Builder) Text(s string) *Builder {
	self.write(s)
	return self
}

func (self *Builder) Finish() ([]byte, error) {
	self.write("\r\n")
	if self.err != nil {
		return nil, self.err
	}
	return self.buf, nil
}
