package at

import (
	"bytes"
	"encoding/hex"
	"strconv"
)

// Parser walks "+NAME: f1,f2,"s"" reply lines.
// First error sticks, Finish reports it as *DecodeError.
type Parser struct {
	command string
	reply   []byte
	rest    []byte // unparsed lines after current
	line    []byte // current line tail after cursor
	err     *DecodeError
}

func NewParser(command string, reply []byte) *Parser {
	return &Parser{command: command, reply: reply, rest: reply}
}

func (self *Parser) fail(reason string) {
	if self.err == nil {
		self.err = NewDecodeError(self.command, reason, self.reply)
	}
}

func (self *Parser) Err() error {
	if self.err == nil {
		return nil
	}
	return self.err
}

// Next moves cursor to next line starting with prefix and returns false
// when there is none. Lines between are skipped.
func (self *Parser) Next(prefix string) bool {
	if self.err != nil {
		return false
	}
	p := []byte(prefix)
	for len(self.rest) > 0 {
		var line []byte
		i := bytes.IndexByte(self.rest, '\n')
		if i < 0 {
			line, self.rest = self.rest, nil
		} else {
			line, self.rest = self.rest[:i], self.rest[i+1:]
		}
		line = bytes.TrimSpace(line)
		if bytes.HasPrefix(line, p) {
			self.line = bytes.TrimLeft(line[len(p):], " ")
			return true
		}
	}
	self.line = nil
	return false
}

// Expect is Next that fails when line is missing.
func (self *Parser) Expect(prefix string) *Parser {
	if self.err == nil && !self.Next(prefix) {
		self.fail("missing " + strconv.Quote(prefix))
	}
	return self
}

func (self *Parser) field() ([]byte, bool) {
	if self.err != nil {
		return nil, false
	}
	if self.line == nil {
		self.fail("missing field")
		return nil, false
	}
	line := bytes.TrimLeft(self.line, " ")
	var f []byte
	if len(line) > 0 && line[0] == '"' {
		end := bytes.IndexByte(line[1:], '"')
		if end < 0 {
			self.fail("unterminated string")
			return nil, false
		}
		f = line[1 : 1+end]
		line = line[2+end:]
		line = bytes.TrimLeft(line, " ")
		if len(line) > 0 && line[0] != ',' {
			self.fail("garbage after string")
			return nil, false
		}
	} else {
		end := bytes.IndexByte(line, ',')
		if end < 0 {
			end = len(line)
		}
		f = bytes.TrimSpace(line[:end])
		line = line[end:]
	}
	if len(line) > 0 {
		line = line[1:] // comma
	} else {
		line = nil
	}
	self.line = line
	return f, true
}

func (self *Parser) Int() int {
	f, ok := self.field()
	if !ok {
		return 0
	}
	v, err := strconv.Atoi(string(f))
	if err != nil {
		self.fail("expected integer got " + strconv.Quote(string(f)))
		return 0
	}
	return v
}

// OptInt returns ok=false for empty or absent field.
func (self *Parser) OptInt() (int, bool) {
	if self.err != nil || self.line == nil {
		return 0, false
	}
	f, ok := self.field()
	if !ok || len(f) == 0 {
		return 0, false
	}
	v, err := strconv.Atoi(string(f))
	if err != nil {
		self.fail("expected integer got " + strconv.Quote(string(f)))
		return 0, false
	}
	return v, true
}

func (self *Parser) String() string {
	f, ok := self.field()
	if !ok {
		return ""
	}
	return string(f)
}

// Hex decodes field of hex digits, quoted or not.
func (self *Parser) Hex() []byte {
	f, ok := self.field()
	if !ok {
		return nil
	}
	b := make([]byte, hex.DecodedLen(len(f)))
	if _, err := hex.Decode(b, f); err != nil {
		self.fail("invalid hex: " + err.Error())
		return nil
	}
	return b
}

// Raw returns rest of current line unparsed.
func (self *Parser) Raw() string {
	if self.err != nil {
		return ""
	}
	s := string(bytes.TrimSpace(self.line))
	self.line = nil
	return s
}

// More reports whether current line has unparsed fields.
func (self *Parser) More() bool { return self.err == nil && self.line != nil }

// Finish fails if current line has unparsed fields.
func (self *Parser) Finish() error {
	if self.err == nil && len(bytes.TrimSpace(self.line)) > 0 {
		self.fail("unexpected fields " + strconv.Quote(string(self.line)))
	}
	return self.Err()
}
