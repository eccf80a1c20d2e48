package command

import (
	"github.com/temoto/nbiot/at"
)

type Domain uint8

const (
	IPv4 Domain = 1
	IPv6 Domain = 2
)

type SocketType uint8

const (
	TCP SocketType = 1
	UDP SocketType = 2
	RAW SocketType = 3
)

type Protocol uint8

const (
	ProtoIP      Protocol = 1
	ProtoICMP    Protocol = 2
	ProtoUDPLite Protocol = 3
)

// CreateSocket is AT+CSOC=domain,type,proto[,cid], reply is socket id.
type CreateSocket struct {
	Domain   Domain
	Type     SocketType
	Protocol Protocol
	// PDP context id, nil for default
	CID *int
}

func (self CreateSocket) Encode(b []byte) ([]byte, error) {
	if self.Domain == 0 || self.Type == 0 || self.Protocol == 0 {
		return nil, errNotValid("socket options", self)
	}
	return at.Set(b, "+CSOC").
		Int(int(self.Domain)).Int(int(self.Type)).Int(int(self.Protocol)).OptInt(self.CID).
		Finish()
}
func (CreateSocket) Decode(r []byte) (int, error) { return decodeID("+CSOC", r) }

// ConnectSocket is AT+CSOCON=id,port,"addr".
type ConnectSocket struct {
	ID      int
	Port    int
	Address string
}

func (self ConnectSocket) Encode(b []byte) ([]byte, error) {
	if self.Port <= 0 || self.Port > 65535 {
		return nil, errNotValid("port", self.Port)
	}
	if self.Address == "" {
		return nil, errNotValid("address", `""`)
	}
	return at.Set(b, "+CSOCON").Int(self.ID).Int(self.Port).String(self.Address).Finish()
}
func (ConnectSocket) Decode(r []byte) (at.Empty, error) { return at.DecodeEmpty("+CSOCON", r) }

// SendSocket is AT+CSOSEND=id,<hexlen>,<hex>.
type SendSocket struct {
	ID   int
	Data []byte
}

func (self SendSocket) Encode(b []byte) ([]byte, error) {
	if len(self.Data) == 0 {
		return nil, errNotValid("data length", 0)
	}
	return at.Set(b, "+CSOSEND").Int(self.ID).Int(2 * len(self.Data)).Hex(self.Data).Finish()
}
func (SendSocket) Decode(r []byte) (at.Empty, error) { return at.DecodeEmpty("+CSOSEND", r) }

// SendSocketText is AT+CSOSEND=id,0,"text".
type SendSocketText struct {
	ID   int
	Text string
}

func (self SendSocketText) Encode(b []byte) ([]byte, error) {
	if self.Text == "" {
		return nil, errNotValid("text", `""`)
	}
	return at.Set(b, "+CSOSEND").Int(self.ID).Int(0).String(self.Text).Finish()
}
func (SendSocketText) Decode(r []byte) (at.Empty, error) { return at.DecodeEmpty("+CSOSEND", r) }

// CloseSocket is AT+CSOCL=id.
type CloseSocket struct{ ID int }

func (self CloseSocket) Encode(b []byte) ([]byte, error) {
	return at.Set(b, "+CSOCL").Int(self.ID).Finish()
}
func (CloseSocket) Decode(r []byte) (at.Empty, error) { return at.DecodeEmpty("+CSOCL", r) }

const (
	PrefixSocketData  = "+CSONMI:"
	PrefixSocketError = "+CSOERR:"
)

// SocketData is inbound payload pushed by module.
type SocketData struct {
	SocketID int
	Data     []byte
}

// SocketPush decodes "+CSONMI: <id>,<len>,<hex>". Length field is
// informational, payload is whatever hex follows.
type SocketPush struct{}

func (SocketPush) Prefix() string { return PrefixSocketData }
func (SocketPush) Decode(line []byte) (SocketData, error) {
	p := at.NewParser("+CSONMI push", line)
	d := SocketData{SocketID: p.Expect(PrefixSocketData).Int()}
	p.Int()
	d.Data = p.Hex()
	return d, p.Finish()
}

type SocketFailure struct {
	SocketID int
	Code     int
}

// SocketErrorPush decodes "+CSOERR: <id>,<code>", socket is dead after it.
type SocketErrorPush struct{}

func (SocketErrorPush) Prefix() string { return PrefixSocketError }
func (SocketErrorPush) Decode(line []byte) (SocketFailure, error) {
	p := at.NewParser("+CSOERR push", line)
	f := SocketFailure{SocketID: p.Expect(PrefixSocketError).Int()}
	f.Code = p.Int()
	return f, p.Finish()
}
