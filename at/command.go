package at

import (
	"bytes"
)

// Request is the encoding half of command codec.
// Encode writes complete command line including CR LF into scratch
// and returns the filled prefix, or ErrScratchTooSmall. Encode must not
// keep scratch or any state between calls.
type Request interface {
	Encode(scratch []byte) ([]byte, error)
}

// Command is request with typed reply. Decode receives frame data with echo
// and blank leading lines removed and must return *DecodeError on mismatch.
type Command[T any] interface {
	Request
	Decode(reply []byte) (T, error)
}

// Empty is reply of commands that answer with bare OK.
type Empty struct{}

// DecodeEmpty accepts only blank reply.
func DecodeEmpty(name string, reply []byte) (Empty, error) {
	if len(bytes.TrimSpace(reply)) != 0 {
		return Empty{}, NewDecodeError(name, "expected empty reply", reply)
	}
	return Empty{}, nil
}

// Unsolicited decodes data pushed by module between commands.
type Unsolicited[T any] interface {
	// Prefix selects pushed lines this decoder accepts, i.e. "+CSONMI:"
	Prefix() string
	Decode(line []byte) (T, error)
}

// Raw is command given as text, reply is returned as is.
// Used by interactive console.
type Raw string

func (self Raw) Encode(scratch []byte) ([]byte, error) {
	b := NewBuilder(scratch, "")
	b.Text(string(self))
	return b.Finish()
}

func (self Raw) Decode(reply []byte) (string, error) { return string(reply), nil }
