package main

import (
	"encoding/hex"
	"io"
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/nbiot/at/command"
	"github.com/temoto/nbiot/socket"
)

type sendCommand struct {
	UDP  bool          `short:"u" long:"udp"`
	Hex  bool          `short:"x" long:"hex" description:"payload is hex"`
	Wait time.Duration `short:"w" long:"wait" default:"10s" description:"reply wait, 0 to skip reading"`
	Args struct {
		Address string `positional-arg-name:"host:port" required:"yes"`
		Payload string `positional-arg-name:"payload" description:"default is stdin"`
	} `positional-args:"yes"`
}

func (self *sendCommand) Execute(args []string) error {
	var payload []byte
	var err error
	switch {
	case self.Args.Payload == "":
		payload, err = io.ReadAll(os.Stdin)
	case self.Hex:
		payload, err = hex.DecodeString(self.Args.Payload)
	default:
		payload = []byte(self.Args.Payload)
	}
	if err != nil {
		return errors.Annotate(err, "send payload")
	}

	ctx, g, cancel := setup()
	defer teardown(g, cancel)
	owner, err := g.Owner(ctx)
	if err != nil {
		return errors.Annotate(err, "send")
	}
	opt := socket.Options{}
	if self.UDP {
		opt.Type = command.UDP
	}
	conn, err := socket.Dial(ctx, owner, opt, self.Args.Address)
	if err != nil {
		return err
	}
	defer func() { g.Error(conn.Close(), "send close") }()

	if _, err := conn.Write(payload); err != nil {
		return err
	}
	g.Log.Infof("sent %d bytes to %s", len(payload), conn.RemoteAddr())
	if self.Wait <= 0 {
		return nil
	}
	if err := conn.SetReadDeadline(time.Now().Add(self.Wait)); err != nil {
		return err
	}
	buf := make([]byte, socket.MaxChunk)
	n, err := conn.Read(buf)
	if err != nil {
		return err
	}
	g.Log.Infof("received %d bytes\n%s", n, hex.Dump(buf[:n]))
	return nil
}
