package main

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/nbiot/at/command"
	"github.com/temoto/nbiot/httpclient"
)

type httpCommand struct {
	Method      string        `short:"X" long:"method" default:"GET" choice:"GET" choice:"POST" choice:"PUT" choice:"DELETE"`
	Header      []string      `short:"H" long:"header" description:"Name: value, may repeat"`
	ContentType string        `short:"t" long:"content-type" default:"application/octet-stream"`
	Data        string        `short:"d" long:"data" description:"request body"`
	User        string        `long:"user"`
	Password    string        `long:"password"`
	Wait        time.Duration `long:"wait" default:"60s" description:"response wait limit"`
	Args        struct {
		Host string `positional-arg-name:"host" required:"yes" description:"base URL, i.e. http://example.com/"`
		Path string `positional-arg-name:"path" default:"/"`
	} `positional-args:"yes"`
}

var httpMethods = map[string]command.HTTPMethod{
	"GET":    command.HTTPGet,
	"POST":   command.HTTPPost,
	"PUT":    command.HTTPPut,
	"DELETE": command.HTTPDelete,
}

func (self *httpCommand) Execute(args []string) error {
	req := httpclient.Request{
		Method: httpMethods[self.Method],
		Path:   self.Args.Path,
		Header: http.Header{},
	}
	if req.Path == "" {
		req.Path = "/"
	}
	for _, h := range self.Header {
		parts := strings.SplitN(h, ":", 2)
		if len(parts) != 2 {
			return errors.NotValidf("header=%s", h)
		}
		req.Header.Add(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
	}
	if req.Method == command.HTTPPost || req.Method == command.HTTPPut {
		req.ContentType = self.ContentType
		req.Body = []byte(self.Data)
	}

	ctx, g, cancel := setup()
	defer teardown(g, cancel)
	owner, err := g.Owner(ctx)
	if err != nil {
		return errors.Annotate(err, "http")
	}
	created, err := httpclient.Create(ctx, owner, httpclient.Options{Host: self.Args.Host, Username: self.User, Password: self.Password})
	if err != nil {
		return err
	}
	conn, err := created.Connect(ctx)
	if err != nil {
		g.Error(created.Destroy(ctx), "http destroy")
		return err
	}
	defer func() {
		dctx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		c, err := conn.Disconnect(dctx)
		if err != nil {
			g.Error(err, "http disconnect")
			// destroy still runs on owner shutdown
			return
		}
		g.Error(c.Destroy(dctx), "http destroy")
	}()

	wctx, wcancel := context.WithTimeout(ctx, self.Wait)
	defer wcancel()
	resp, err := conn.Do(wctx, req)
	if err != nil {
		return err
	}
	g.Log.Infof("status=%d header=%v len=%d", resp.Status, resp.Header, len(resp.Body))
	_, err = os.Stdout.Write(resp.Body)
	return errors.Trace(err)
}
