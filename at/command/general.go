// Package command holds SIM7020 AT command grammars.
// Every type is an immutable request with typed reply decoder, see at.Command.
package command

import (
	"bytes"
	"strings"

	"github.com/temoto/nbiot/at"
)

// Probe is bare "AT", readiness check.
type Probe struct{}

func (Probe) Encode(b []byte) ([]byte, error)   { return at.Exec(b, "") }
func (Probe) Decode(r []byte) (at.Empty, error) { return at.DecodeEmpty("AT", r) }

// Echo is ATE0/ATE1.
type Echo struct{ On bool }

func (self Echo) Encode(b []byte) ([]byte, error) {
	if self.On {
		return at.Exec(b, "E1")
	}
	return at.Exec(b, "E0")
}
func (Echo) Decode(r []byte) (at.Empty, error) { return at.DecodeEmpty("ATE", r) }

// ProductInfo is ATI, reply lines joined with space.
type ProductInfo struct{}

func (ProductInfo) Encode(b []byte) ([]byte, error) { return at.Exec(b, "I") }
func (ProductInfo) Decode(r []byte) (string, error) { return textReply("ATI", r) }

// Model is AT+CGMM.
type Model struct{}

func (Model) Encode(b []byte) ([]byte, error) { return at.Exec(b, "+CGMM") }
func (Model) Decode(r []byte) (string, error) { return textReply("+CGMM", r) }

func textReply(name string, r []byte) (string, error) {
	var parts []string
	at.SplitLines(r, func(line []byte) {
		if s := string(bytes.TrimSpace(line)); s != "" {
			parts = append(parts, s)
		}
	})
	if len(parts) == 0 {
		return "", at.NewDecodeError(name, "empty reply", r)
	}
	return strings.Join(parts, " "), nil
}

type ErrorVerbosity uint8

const (
	ErrorsPlain   ErrorVerbosity = 0 // bare ERROR
	ErrorsNumeric ErrorVerbosity = 1 // +CME ERROR: <code>
	ErrorsVerbose ErrorVerbosity = 2 // +CME ERROR: <text>
)

// SetErrorVerbosity is AT+CMEE=<n>.
type SetErrorVerbosity struct{ Mode ErrorVerbosity }

func (self SetErrorVerbosity) Encode(b []byte) ([]byte, error) {
	if self.Mode > ErrorsVerbose {
		return nil, errNotValid("CMEE mode", int(self.Mode))
	}
	return at.Set(b, "+CMEE").Int(int(self.Mode)).Finish()
}
func (SetErrorVerbosity) Decode(r []byte) (at.Empty, error) { return at.DecodeEmpty("+CMEE", r) }

// GetErrorVerbosity is AT+CMEE?.
type GetErrorVerbosity struct{}

func (GetErrorVerbosity) Encode(b []byte) ([]byte, error) { return at.Query(b, "+CMEE") }
func (GetErrorVerbosity) Decode(r []byte) (ErrorVerbosity, error) {
	p := at.NewParser("+CMEE?", r)
	v := p.Expect("+CMEE:").Int()
	if err := p.Finish(); err != nil {
		return 0, err
	}
	if v < 0 || v > int(ErrorsVerbose) {
		return 0, at.NewDecodeError("+CMEE?", "unknown mode", r)
	}
	return ErrorVerbosity(v), nil
}

// ExtendedError is AT+CEER, text report of last failure cause.
type ExtendedError struct{}

func (ExtendedError) Encode(b []byte) ([]byte, error) { return at.Exec(b, "+CEER") }
func (ExtendedError) Decode(r []byte) (string, error) {
	p := at.NewParser("+CEER", r)
	s := p.Expect("+CEER:").Raw()
	return s, p.Finish()
}

// SetHexPayload is AT+CREVHEX, selects hex (true) or raw text for received data.
type SetHexPayload struct{ Hex bool }

func (self SetHexPayload) Encode(b []byte) ([]byte, error) {
	return at.Set(b, "+CREVHEX").Bool(self.Hex).Finish()
}
func (SetHexPayload) Decode(r []byte) (at.Empty, error) { return at.DecodeEmpty("+CREVHEX", r) }
