package command

import (
	"strconv"

	"github.com/temoto/nbiot/at"
)

// CreateHTTP is AT+CHTTPCREATE="host"[,"user","pass"], reply is client id.
type CreateHTTP struct {
	Host     string
	Username string
	Password string
}

func (self CreateHTTP) Encode(b []byte) ([]byte, error) {
	if self.Host == "" {
		return nil, errNotValid("http host", `""`)
	}
	w := at.Set(b, "+CHTTPCREATE").String(self.Host)
	if self.Username != "" || self.Password != "" {
		w.String(self.Username).String(self.Password)
	}
	return w.Finish()
}
func (CreateHTTP) Decode(r []byte) (int, error) { return decodeID("+CHTTPCREATE", r) }

type HTTPClientInfo struct {
	ID        int
	Connected bool
	Host      string
}

// GetHTTPClients is AT+CHTTPCREATE?.
type GetHTTPClients struct{}

func (GetHTTPClients) Encode(b []byte) ([]byte, error) { return at.Query(b, "+CHTTPCREATE") }
func (GetHTTPClients) Decode(r []byte) ([]HTTPClientInfo, error) {
	p := at.NewParser("+CHTTPCREATE?", r)
	var cs []HTTPClientInfo
	for p.Next("+CHTTPCREATE:") {
		c := HTTPClientInfo{ID: p.Int(), Connected: p.Int() == 1}
		if p.More() {
			c.Host = p.Raw()
		}
		cs = append(cs, c)
	}
	return cs, p.Err()
}

// ConnectHTTP is AT+CHTTPCON=id.
type ConnectHTTP struct{ ID int }

func (self ConnectHTTP) Encode(b []byte) ([]byte, error) {
	return at.Set(b, "+CHTTPCON").Int(self.ID).Finish()
}
func (ConnectHTTP) Decode(r []byte) (at.Empty, error) { return at.DecodeEmpty("+CHTTPCON", r) }

// DisconnectHTTP is AT+CHTTPDISCON=id.
type DisconnectHTTP struct{ ID int }

func (self DisconnectHTTP) Encode(b []byte) ([]byte, error) {
	return at.Set(b, "+CHTTPDISCON").Int(self.ID).Finish()
}
func (DisconnectHTTP) Decode(r []byte) (at.Empty, error) { return at.DecodeEmpty("+CHTTPDISCON", r) }

// DestroyHTTP is AT+CHTTPDESTROY=id.
type DestroyHTTP struct{ ID int }

func (self DestroyHTTP) Encode(b []byte) ([]byte, error) {
	return at.Set(b, "+CHTTPDESTROY").Int(self.ID).Finish()
}
func (DestroyHTTP) Decode(r []byte) (at.Empty, error) { return at.DecodeEmpty("+CHTTPDESTROY", r) }

type HTTPMethod uint8

const (
	HTTPGet    HTTPMethod = 0
	HTTPPost   HTTPMethod = 1
	HTTPPut    HTTPMethod = 2
	HTTPDelete HTTPMethod = 3
)

func (self HTTPMethod) String() string {
	switch self {
	case HTTPGet:
		return "GET"
	case HTTPPost:
		return "POST"
	case HTTPPut:
		return "PUT"
	case HTTPDelete:
		return "DELETE"
	}
	return "method(" + strconv.Itoa(int(self)) + ")"
}

// SendHTTP is AT+CHTTPSEND=id,method,"path"[,"<hex header>","content type","<hex body>"].
// Content type and body are only valid for POST and PUT.
type SendHTTP struct {
	ID          int
	Method      HTTPMethod
	Path        string
	Header      []byte
	ContentType string
	Body        []byte
}

func (self SendHTTP) Encode(b []byte) ([]byte, error) {
	if self.Method > HTTPDelete {
		return nil, errNotValid("http method", int(self.Method))
	}
	if self.Path == "" {
		return nil, errNotValid("http path", `""`)
	}
	hasBody := self.Method == HTTPPost || self.Method == HTTPPut
	if !hasBody && (self.ContentType != "" || len(self.Body) != 0) {
		return nil, errNotValid("http body for method", self.Method)
	}
	w := at.Set(b, "+CHTTPSEND").Int(self.ID).Int(int(self.Method)).String(self.Path)
	if len(self.Header) != 0 || hasBody {
		w.QuotedHex(self.Header)
	}
	if hasBody {
		w.String(self.ContentType).QuotedHex(self.Body)
	}
	return w.Finish()
}
func (SendHTTP) Decode(r []byte) (at.Empty, error) { return at.DecodeEmpty("+CHTTPSEND", r) }

const (
	PrefixHTTPHeader  = "+CHTTPNMIH:"
	PrefixHTTPContent = "+CHTTPNMIC:"
	PrefixHTTPError   = "+CHTTPERR:"
)

// HTTPHeader is response status and header pushed by module.
type HTTPHeader struct {
	ClientID int
	Status   int
	Header   []byte
}

// HTTPHeaderPush decodes "+CHTTPNMIH: <id>,<status>,<len>,<hex header>".
type HTTPHeaderPush struct{}

func (HTTPHeaderPush) Prefix() string { return PrefixHTTPHeader }
func (HTTPHeaderPush) Decode(line []byte) (HTTPHeader, error) {
	p := at.NewParser("+CHTTPNMIH push", line)
	h := HTTPHeader{ClientID: p.Expect(PrefixHTTPHeader).Int()}
	h.Status = p.Int()
	p.Int()
	h.Header = p.Hex()
	return h, p.Finish()
}

// HTTPContent is one body chunk. Chunks repeat until Sum bytes received.
type HTTPContent struct {
	ClientID int
	More     bool
	Sum      int
	Data     []byte
}

// HTTPContentPush decodes "+CHTTPNMIC: <id>,<flag>,<sum>,<len>,<hex>".
type HTTPContentPush struct{}

func (HTTPContentPush) Prefix() string { return PrefixHTTPContent }
func (HTTPContentPush) Decode(line []byte) (HTTPContent, error) {
	p := at.NewParser("+CHTTPNMIC push", line)
	c := HTTPContent{ClientID: p.Expect(PrefixHTTPContent).Int()}
	c.More = p.Int() == 1
	c.Sum = p.Int()
	p.Int()
	c.Data = p.Hex()
	return c, p.Finish()
}

type HTTPFailure struct {
	ClientID int
	Code     int
}

// HTTPErrorPush decodes "+CHTTPERR: <id>,<code>".
type HTTPErrorPush struct{}

func (HTTPErrorPush) Prefix() string { return PrefixHTTPError }
func (HTTPErrorPush) Decode(line []byte) (HTTPFailure, error) {
	p := at.NewParser("+CHTTPERR push", line)
	f := HTTPFailure{ClientID: p.Expect(PrefixHTTPError).Int()}
	f.Code = p.Int()
	return f, p.Finish()
}

// Prefixes lists every push this package decodes.
var Prefixes = []string{
	PrefixSocketData, PrefixSocketError,
	PrefixMQTTPublish, PrefixMQTTDisconnect,
	PrefixHTTPHeader, PrefixHTTPContent, PrefixHTTPError,
}
