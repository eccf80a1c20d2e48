// Package httpclient is HTTP client inside the module (AT+CHTTPCREATE family).
//
//	Create -> Created -Connect-> Connected -Disconnect-> Created
//	Created -Destroy-> (terminal)
//
// Responses arrive as +CHTTPNMIH header push and +CHTTPNMIC body chunks.
package httpclient

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/textproto"
	"sort"
	"strconv"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/nbiot/at"
	"github.com/temoto/nbiot/at/command"
	"github.com/temoto/nbiot/hardware/pin"
	"github.com/temoto/nbiot/modem"
)

var ErrSpent = modem.ErrSpent

type Options struct {
	// Host is base URL, i.e. "http://example.com:8080/"
	Host     string
	Username string
	Password string
	Poll     time.Duration
}

type Request struct {
	Method      command.HTTPMethod
	Path        string
	Header      http.Header
	ContentType string
	Body        []byte
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Error is +CHTTPERR push.
type Error struct {
	ID   int
	Code int
}

func (self *Error) Error() string {
	return fmt.Sprintf("http client id=%d error code=%d", self.ID, self.Code)
}

type core struct {
	ex      modem.Executor
	opt     Options
	id      int
	untrack func()
}

type Created struct {
	h modem.Handle
	*core
}

type Connected struct {
	h modem.Handle
	*core
}

// Create allocates client on module. When ex is *modem.Owner, client is
// destroyed on Owner.Shutdown unless Destroy was called.
func Create(ctx context.Context, ex modem.Executor, opt Options) (*Created, error) {
	if opt.Poll <= 0 {
		opt.Poll = modem.DefaultPoll
	}
	id, err := modem.Execute[int](ctx, ex, command.CreateHTTP{Host: opt.Host, Username: opt.Username, Password: opt.Password})
	if err != nil {
		return nil, errors.Annotatef(err, "http create host=%s", opt.Host)
	}
	c := &core{ex: ex, opt: opt, id: id}
	if tr, ok := ex.(interface {
		Track(modem.Teardown) func()
	}); ok {
		c.untrack = tr.Track(func(ctx context.Context, ex modem.Executor) error {
			_, err := modem.Execute[at.Empty](ctx, ex, command.DestroyHTTP{ID: id})
			return errors.Annotatef(err, "http id=%d teardown", id)
		})
	}
	return &Created{core: c}, nil
}

func (self *Created) ID() int { return self.id }

func (self *Created) Connect(ctx context.Context) (*Connected, error) {
	if err := self.h.Begin(); err != nil {
		return nil, err
	}
	_, err := modem.Execute[at.Empty](ctx, self.ex, command.ConnectHTTP{ID: self.id})
	self.h.End(err == nil)
	if err != nil {
		return nil, errors.Annotatef(err, "http id=%d connect", self.id)
	}
	return &Connected{core: self.core}, nil
}

// Destroy is terminal regardless of module reply.
func (self *Created) Destroy(ctx context.Context) error {
	if err := self.h.Begin(); err != nil {
		return err
	}
	self.h.End(true)
	if self.untrack != nil {
		self.untrack()
	}
	_, err := modem.Execute[at.Empty](ctx, self.ex, command.DestroyHTTP{ID: self.id})
	return errors.Annotatef(err, "http id=%d destroy", self.id)
}

func (self *Connected) ID() int { return self.id }

func (self *Connected) Disconnect(ctx context.Context) (*Created, error) {
	if err := self.h.Begin(); err != nil {
		return nil, err
	}
	_, err := modem.Execute[at.Empty](ctx, self.ex, command.DisconnectHTTP{ID: self.id})
	self.h.End(err == nil)
	if err != nil {
		return nil, errors.Annotatef(err, "http id=%d disconnect", self.id)
	}
	return &Created{core: self.core}, nil
}

func (self *Connected) Send(ctx context.Context, req Request) error {
	if err := self.h.Check(); err != nil {
		return err
	}
	_, err := modem.Execute[at.Empty](ctx, self.ex, command.SendHTTP{
		ID:          self.id,
		Method:      req.Method,
		Path:        req.Path,
		Header:      FormatHeader(req.Header),
		ContentType: req.ContentType,
		Body:        req.Body,
	})
	return errors.Annotatef(err, "http id=%d send %s %s", self.id, req.Method, req.Path)
}

// Do is Send then Response.
func (self *Connected) Do(ctx context.Context, req Request) (*Response, error) {
	if err := self.Send(ctx, req); err != nil {
		return nil, err
	}
	return self.Response(ctx)
}

// Response waits for header push and all body chunks.
func (self *Connected) Response(ctx context.Context) (*Response, error) {
	var resp *Response
	sum := -1
	for {
		if err := self.h.Check(); err != nil {
			return nil, err
		}
		progress := false
		if resp == nil {
			h, ok, err := modem.ReceiveID[command.HTTPHeader](ctx, self.ex, command.HTTPHeaderPush{}, self.id, headerClient)
			if err != nil && !modem.IsMismatch(err) {
				return nil, err
			}
			if ok {
				progress = true
				if resp, err = newResponse(h); err != nil {
					return nil, err
				}
				if !hasBody(resp) {
					return resp, nil
				}
			}
		}
		if resp != nil {
			c, ok, err := modem.ReceiveID[command.HTTPContent](ctx, self.ex, command.HTTPContentPush{}, self.id, contentClient)
			if err != nil && !modem.IsMismatch(err) {
				return nil, err
			}
			if ok {
				progress = true
				resp.Body = append(resp.Body, c.Data...)
				sum = c.Sum
				if !c.More || (sum >= 0 && len(resp.Body) >= sum) {
					return resp, nil
				}
			}
		}
		f, ok, err := modem.ReceiveID[command.HTTPFailure](ctx, self.ex, command.HTTPErrorPush{}, self.id, failureClient)
		if err != nil && !modem.IsMismatch(err) {
			return nil, err
		}
		if ok {
			return nil, &Error{ID: f.ClientID, Code: f.Code}
		}
		if progress {
			continue
		}
		if err := pin.Delay(ctx, self.opt.Poll); err != nil {
			return nil, errors.Annotatef(at.ErrDeadline, "http id=%d response: %v", self.id, err)
		}
	}
}

// FormatHeader renders header lines in stable key order.
func FormatHeader(h http.Header) []byte {
	if len(h) == 0 {
		return nil
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b bytes.Buffer
	for _, k := range keys {
		for _, v := range h[k] {
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteString("\r\n")
		}
	}
	return b.Bytes()
}

func newResponse(h command.HTTPHeader) (*Response, error) {
	r := &Response{Status: h.Status, Header: http.Header{}}
	if len(bytes.TrimSpace(h.Header)) == 0 {
		return r, nil
	}
	raw := append(append([]byte(nil), h.Header...), "\r\n\r\n"...)
	mh, err := textproto.NewReader(bufio.NewReader(bytes.NewReader(raw))).ReadMIMEHeader()
	if err != nil {
		return nil, at.NewDecodeError("+CHTTPNMIH push", "header: "+err.Error(), h.Header)
	}
	r.Header = http.Header(mh)
	return r, nil
}

func hasBody(r *Response) bool {
	if r.Status == http.StatusNoContent || r.Status == http.StatusNotModified || (r.Status >= 100 && r.Status < 200) {
		return false
	}
	if cl := r.Header.Get("Content-Length"); cl != "" {
		n, err := strconv.Atoi(cl)
		return err != nil || n > 0
	}
	return true
}

func headerClient(h command.HTTPHeader) int   { return h.ClientID }
func contentClient(c command.HTTPContent) int { return c.ClientID }
func failureClient(f command.HTTPFailure) int { return f.ClientID }
