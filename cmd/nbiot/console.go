package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
	"github.com/temoto/nbiot/at"
	"github.com/temoto/nbiot/at/command"
	"github.com/temoto/nbiot/log2"
	"github.com/temoto/nbiot/modem"
)

const consoleUsage = `syntax: one command per line
- AT...    send command as typed, AT prefix is optional
- /poll    drain pending module output
- /sN      pause N milliseconds
- /stat    engine counters
- help     this text
pushed lines are printed as they arrive`

var consoleSuggest = []prompt.Suggest{
	{Text: "AT", Description: "probe"},
	{Text: "ATI", Description: "product info"},
	{Text: "AT+CGMM", Description: "model"},
	{Text: "AT+CPIN?", Description: "SIM PIN state"},
	{Text: "AT+CSQ", Description: "signal quality"},
	{Text: "AT+CGREG?", Description: "GPRS registration"},
	{Text: "AT+CGATT?", Description: "GPRS attach"},
	{Text: "AT+COPS?", Description: "operator"},
	{Text: "AT+CGCONTRDP", Description: "PDP contexts"},
	{Text: "AT+CBC", Description: "battery"},
	{Text: "AT+CCLK?", Description: "clock"},
	{Text: "AT+CSCLK?", Description: "sleep mode"},
	{Text: "AT+CMEE=2", Description: "verbose errors"},
	{Text: "AT+CMQNEW?", Description: "MQTT sessions"},
	{Text: "AT+CHTTPCREATE?", Description: "HTTP clients"},
	{Text: "/poll", Description: "drain module output"},
	{Text: "/stat", Description: "engine counters"},
	{Text: "help"},
}

type consoleCommand struct{}

func (self *consoleCommand) Execute(args []string) error {
	ctx, g, cancel := setup()
	defer teardown(g, cancel)

	m, err := g.Modem(ctx)
	if err != nil {
		return errors.Annotate(err, "console")
	}
	for _, prefix := range command.Prefixes {
		m.Subscribe(prefix, func(line []byte) {
			g.Log.Infof("push %s", log2.Printable(line))
		})
	}

	exec := newConsoleExecutor(ctx, g.Log, m)
	complete := func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterHasPrefix(consoleSuggest, d.GetWordBeforeCursor(), true)
	}
	if isatty.IsTerminal(os.Stdin.Fd()) {
		prompt.New(exec, complete, prompt.OptionPrefix("nbiot> ")).Run()
		return nil
	}
	stdinAll, err := io.ReadAll(os.Stdin)
	if err != nil {
		return errors.Annotate(err, "console stdin")
	}
	for _, lineb := range bytes.Split(stdinAll, []byte{'\n'}) {
		if ctx.Err() != nil {
			break
		}
		exec(string(bytes.TrimSpace(lineb)))
	}
	return nil
}

func newConsoleExecutor(ctx context.Context, log *log2.Log, m *modem.Modem) func(string) {
	return func(line string) {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			return
		case line == "help" || line == "/help":
			log.Infof(consoleUsage)
		case line == "/poll":
			if err := m.Poll(ctx); err != nil {
				log.Error(err)
			}
		case line == "/stat":
			log.Infof("stat %+v", m.Stat())
		case strings.HasPrefix(line, "/s"):
			i, err := strconv.ParseUint(line[2:], 10, 32)
			if err != nil {
				log.Errorf("line=%s err=%v", line, err)
				return
			}
			time.Sleep(time.Duration(i) * time.Millisecond)
		default:
			tbegin := time.Now()
			reply, err := modem.Execute[string](ctx, m, at.Raw(stripAT(line)))
			if err != nil {
				log.Errorf(errors.ErrorStack(err))
				return
			}
			log.Infof("%s\nOK duration=%v", strings.TrimRight(reply, "\r\n"), time.Since(tbegin))
		}
	}
}

func stripAT(s string) string {
	if len(s) >= 2 && strings.EqualFold(s[:2], "AT") {
		return s[2:]
	}
	return s
}
