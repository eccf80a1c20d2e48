package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/nbiot/at"
	"github.com/temoto/nbiot/at/command"
	"github.com/temoto/nbiot/helpers"
	"github.com/temoto/nbiot/log2"
	"github.com/temoto/nbiot/modem"
)

// Global is process wide state of one module: config, lazily opened modem
// and its owner goroutine.
type Global struct {
	Alive  *alive.Alive
	Config *Config
	Log    *log2.Log

	lk     sync.Mutex
	modem  *modem.Modem
	owner  *modem.Owner
	testhw *modem.Hardware
}

const ContextKey = "run/state-global"

func NewContext(log *log2.Log) (context.Context, *Global) {
	g := &Global{
		Alive: alive.NewAlive(),
		Log:   log,
	}
	ctx := context.WithValue(context.Background(), ContextKey, g)
	return ctx, g
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg
	if err := cfg.Validate(); err != nil {
		return errors.Annotate(err, "config")
	}
	if cfg.Modem.LogDebug {
		g.Log.SetLevel(log2.LDebug)
	}
	g.Log.Debugf("config: uart=%s:%s pins=%s power=%s wake=%s",
		cfg.Hardware.UartDriver, cfg.Hardware.UartDevice, cfg.Hardware.PinDriver, cfg.Hardware.PowerPin, cfg.Hardware.WakePin)
	return nil
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Log.Fatal(errors.ErrorStack(err))
	}
}

// Modem opens hardware and runs bring-up once. Failed attempt is not cached.
func (g *Global) Modem(ctx context.Context) (*modem.Modem, error) {
	g.lk.Lock()
	defer g.lk.Unlock()
	if g.modem != nil {
		return g.modem, nil
	}

	hw, err := NewHardware(g.Config, g.Log, g.testhw)
	if err != nil {
		return nil, err
	}
	m, err := modem.New(ctx, g.Config.EngineConfig(), hw, g.Log)
	if err != nil {
		return nil, err
	}
	if err := g.setup(ctx, m); err != nil {
		_ = m.Close()
		return nil, errors.Annotate(err, "modem setup")
	}
	g.modem = m
	return m, nil
}

// Owner is queued executor shared by sessions of this process.
func (g *Global) Owner(ctx context.Context) (*modem.Owner, error) {
	m, err := g.Modem(ctx)
	if err != nil {
		return nil, err
	}
	g.lk.Lock()
	defer g.lk.Unlock()
	if g.owner == nil {
		g.owner = modem.NewOwner(m, 0)
	}
	return g.owner, nil
}

func (g *Global) setup(ctx context.Context, m *modem.Modem) error {
	c := &g.Config.Modem
	if c.ErrorVerbosity != 0 {
		if err := m.SetErrorVerbosity(ctx, command.ErrorVerbosity(c.ErrorVerbosity)); err != nil {
			return err
		}
	}
	if err := m.UnlockSIM(ctx, c.SimPin, c.UnlockTries); err != nil {
		return err
	}
	if _, err := modem.Execute[at.Empty](ctx, m, command.SetHexPayload{Hex: true}); err != nil {
		return errors.Annotate(err, "hex payload")
	}
	mode, err := g.Config.SleepMode()
	if err != nil {
		return err
	}
	if mode != command.SleepDisabled {
		return m.SetSleepMode(ctx, mode)
	}
	return nil
}

// Stop tears down sessions tracked by owner and closes modem.
func (g *Global) Stop(ctx context.Context) error {
	g.Alive.Stop()
	g.lk.Lock()
	owner, m := g.owner, g.modem
	g.owner, g.modem = nil, nil
	g.lk.Unlock()

	errs := make([]error, 0, 2)
	if owner != nil {
		if err := owner.Shutdown(ctx); err != nil {
			errs = append(errs, errors.Annotate(err, "owner shutdown"))
		}
	}
	if m != nil {
		if err := m.Close(); err != nil {
			errs = append(errs, errors.Annotate(err, "modem close"))
		}
	}
	return helpers.FoldErrors(errs)
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Errorf(errors.ErrorStack(err))
	}
}
