package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	flags "github.com/jessevdk/go-flags"
	"github.com/juju/errors"
	"github.com/temoto/nbiot/log2"
	"github.com/temoto/nbiot/state"
)

type globalOptions struct {
	Config string `short:"c" long:"config" default:"nbiot.hcl" description:"config file"`
	Debug  bool   `short:"d" long:"debug" description:"log wire traffic"`
}

var opts globalOptions

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	mustCommand(parser.AddCommand("probe", "Bring up module and print status", "", &probeCommand{}))
	mustCommand(parser.AddCommand("console", "Interactive AT console", "", &consoleCommand{}))
	mustCommand(parser.AddCommand("publish", "Publish one MQTT message through module", "", &publishCommand{}))
	mustCommand(parser.AddCommand("send", "Send data over module socket", "", &sendCommand{}))
	mustCommand(parser.AddCommand("http", "HTTP request through module", "", &httpCommand{}))
	mustCommand(parser.AddCommand("bridge", "Relay local MQTT broker through module", "", &bridgeCommand{}))
	mustCommand(parser.AddCommand("serve", "Bridge as systemd service", "", &bridgeCommand{notify: true}))

	if _, err := parser.Parse(); err != nil {
		if ferr, ok := err.(*flags.Error); ok && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

func mustCommand(_ *flags.Command, err error) {
	if err != nil {
		panic("code error flags: " + err.Error())
	}
}

// setup reads config and returns context cancelled by termination signals.
func setup() (context.Context, *state.Global, context.CancelFunc) {
	log := log2.NewStderr(log2.LInfo)
	if sdnotify("start") {
		// we're under systemd, assume systemd journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}
	if opts.Debug {
		log.SetLevel(log2.LDebug)
	}

	ctx, g := state.NewContext(log)
	config := state.MustReadConfig(log, state.NewOsFullReader(), opts.Config)
	g.MustInit(ctx, config)
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		<-ctx.Done()
		g.Alive.Stop()
	}()
	return ctx, g, cancel
}

func teardown(g *state.Global, cancel context.CancelFunc) {
	cancel()
	ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	g.Error(g.Stop(ctx), "teardown")
}

func sdnotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log2.NewStderr(log2.LError).Fatal("sdnotify: ", errors.ErrorStack(err))
	}
	return ok
}
