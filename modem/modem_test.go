package modem_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/nbiot/at"
	"github.com/temoto/nbiot/at/command"
	"github.com/temoto/nbiot/hardware/pin"
	"github.com/temoto/nbiot/hardware/uart"
	"github.com/temoto/nbiot/helpers"
	"github.com/temoto/nbiot/log2"
	"github.com/temoto/nbiot/modem"
)

func TestNew(t *testing.T) {
	t.Parallel()
	mock := uart.NewMock().Expect("ATE0\r\n", "ATE0\r\r\nOK\r\n")
	power, wake := &pin.Recorder{}, &pin.Recorder{}
	config := modem.Config{PowerUpDelay: -1}
	m, err := modem.New(context.Background(), config, modem.Hardware{Port: mock, Power: power, Wake: wake}, log2.NewTest(t, log2.LDebug))
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, power.Levels())
	assert.Equal(t, []bool{false}, wake.Levels())
	assert.Equal(t, command.SleepDisabled, m.SleepMode())
	assert.NoError(t, mock.ExpectationsWereMet())

	require.NoError(t, m.Close())
	assert.True(t, mock.Closed())
	assert.True(t, power.Closed())
	assert.Equal(t, modem.ErrClosed, errors.Cause(m.Ping(context.Background())))
}

func TestNewEchoFail(t *testing.T) {
	t.Parallel()
	mock := uart.NewMock().Expect("ATE0\r\n", "\r\nERROR\r\n")
	power := &pin.Recorder{}
	config := modem.Config{PowerUpDelay: -1}
	_, err := modem.New(context.Background(), config, modem.Hardware{Port: mock, Power: power}, log2.NewTest(t, log2.LDebug))
	require.Error(t, err)
	assert.True(t, at.IsRemote(err))
	assert.True(t, mock.Closed())
	assert.True(t, power.Closed())
}

func TestExecute(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, th := modem.NewTestModem(t, modem.Config{})
	th.Mock.
		Expect("AT+CGATT?\r\n", "\r\n+CGATT: 1\r\n\r\nOK\r\n").
		Expect("AT+CSQ\r\n", "\r\n+CSQ: 24,0\r\n\r\nOK\r\n").
		Expect("AT+CMQNEW=\"broker\",1883,5000,600\r\n", "\r\n+CMQNEW: 3\r\n\r\nOK\r\n")

	attach, err := modem.Execute[command.Attach](ctx, m, command.GetGPRSAttach{})
	require.NoError(t, err)
	assert.Equal(t, command.Attached, attach)

	sq, err := modem.Execute[command.SignalQuality](ctx, m, command.GetSignalQuality{})
	require.NoError(t, err)
	assert.Equal(t, command.SignalQuality{RSSI: 24, BER: 0}, sq)

	id, err := modem.Execute[int](ctx, m, command.NewMQTT{Server: "broker", Port: 1883})
	require.NoError(t, err)
	assert.Equal(t, 3, id)

	stat := m.Stat()
	assert.Equal(t, uint64(3), stat.Commands)
	assert.Equal(t, uint64(0), stat.Errors)
	assert.NotZero(t, stat.BytesOut)
	assert.NotZero(t, stat.BytesIn)
	assert.WithinDuration(t, time.Now(), stat.LastActivity, time.Second)
}

func TestExecuteErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, th := modem.NewTestModem(t, modem.Config{})
	th.Mock.
		Expect("AT+CGATT?\r\n", "\r\n+CME ERROR: 10\r\n").
		Expect("AT+CGATT?\r\n", "\r\n+CSQ: 1,1\r\n\r\nOK\r\n").
		Expect("AT+CSOCL=1\r\n", "\r\n+CSOCL: 1\r\n\r\nOK\r\n")

	_, err := modem.Execute[command.Attach](ctx, m, command.GetGPRSAttach{})
	re, ok := at.AsRemote(err)
	require.True(t, ok, "err=%v", err)
	assert.Equal(t, 10, re.Code)
	assert.Equal(t, "\r\n+CME ERROR: 10\r\n", string(re.Raw))

	_, err = modem.Execute[command.Attach](ctx, m, command.GetGPRSAttach{})
	assert.True(t, at.IsDecode(err), "err=%v", err)
	assert.False(t, at.IsRemote(err))

	// garbage after bare OK is not success
	_, err = modem.Execute[at.Empty](ctx, m, command.CloseSocket{ID: 1})
	assert.True(t, at.IsDecode(err), "err=%v", err)

	_, err = modem.Execute[at.Empty](ctx, m, command.SendSocket{ID: 1})
	assert.True(t, errors.IsNotValid(err), "err=%v", err)

	assert.Equal(t, uint64(4), m.Stat().Errors)
}

func TestExecuteScratchTooSmall(t *testing.T) {
	t.Parallel()
	m, _ := modem.NewTestModem(t, modem.Config{BufferSize: 64})
	_, err := modem.Execute[at.Empty](context.Background(), m, command.SendSocket{ID: 1, Data: make([]byte, 64)})
	assert.Equal(t, at.ErrScratchTooSmall, errors.Cause(err))
}

func TestExecuteTransport(t *testing.T) {
	t.Parallel()
	m, th := modem.NewTestModem(t, modem.Config{})
	th.Mock.Expect("AT\r\n", "")
	err := m.Ping(context.Background())
	assert.True(t, at.IsTransport(err), "err=%v", err)
}

func TestExecuteDeadline(t *testing.T) {
	t.Parallel()
	m, th := modem.NewTestModem(t, modem.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Ping(ctx)
	assert.True(t, at.IsDeadline(err), "err=%v", err)
	assert.Equal(t, "", th.Mock.Written())
}

// delayPort answers known requests after configurable delay.
type delayPort struct {
	mu      sync.Mutex
	delay   time.Duration
	replies map[string]string
	in      bytes.Buffer
}

func (p *delayPort) setDelay(d time.Duration) {
	p.mu.Lock()
	p.delay = d
	p.mu.Unlock()
}

func (p *delayPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	reply, delay := p.replies[string(b)], p.delay
	p.mu.Unlock()
	deliver := func() {
		p.mu.Lock()
		p.in.WriteString(reply)
		p.mu.Unlock()
	}
	if delay == 0 {
		deliver()
	} else {
		time.AfterFunc(delay, deliver)
	}
	return len(b), nil
}

func (p *delayPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	n, _ := p.in.Read(b)
	p.mu.Unlock()
	if n == 0 {
		time.Sleep(2 * time.Millisecond)
		return 0, uart.ErrTimeoutT{}
	}
	return n, nil
}

func (p *delayPort) Buffered() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.in.Len(), nil
}

func (p *delayPort) Close() error { return nil }

func TestExecuteLateReply(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	port := &delayPort{replies: map[string]string{
		"ATE0\r\n":      "\r\nOK\r\n",
		"AT+CSQ\r\n":    "\r\n+CSQ: 24,0\r\n\r\nOK\r\n",
		"AT+CGATT?\r\n": "\r\n+CGATT: 1\r\n\r\nOK\r\n",
	}}
	config := modem.Config{PowerUpDelay: -1, CommandTimeout: 50 * time.Millisecond}
	m, err := modem.New(ctx, config, modem.Hardware{Port: port}, log2.NewTest(t, log2.LDebug))
	require.NoError(t, err)

	port.setDelay(80 * time.Millisecond)
	_, err = modem.Execute[command.SignalQuality](ctx, m, command.GetSignalQuality{})
	assert.True(t, at.IsDeadline(err), "err=%v", err)

	port.setDelay(0)
	attach, err := modem.Execute[command.Attach](ctx, m, command.GetGPRSAttach{})
	require.NoError(t, err)
	assert.Equal(t, command.Attached, attach)
	assert.Equal(t, 0, m.Inbox().Len())

	// no reply at all, next command waits once and proceeds
	port.mu.Lock()
	delete(port.replies, "AT+CSQ\r\n")
	port.mu.Unlock()
	_, err = modem.Execute[command.SignalQuality](ctx, m, command.GetSignalQuality{})
	assert.True(t, at.IsDeadline(err), "err=%v", err)
	attach, err = modem.Execute[command.Attach](ctx, m, command.GetGPRSAttach{})
	require.NoError(t, err)
	assert.Equal(t, command.Attached, attach)
	assert.Equal(t, uint64(2), m.Stat().Errors)
}

func TestBusy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, th := modem.NewTestModem(t, modem.Config{})
	th.Mock.Expect("AT\r\n", "\r\nOK\r\n")
	var inner error
	err := m.Do(ctx, modem.Op{
		Request: command.Probe{},
		Decode: func(reply []byte) error {
			inner = m.Ping(ctx)
			return nil
		},
	})
	require.NoError(t, err)
	assert.True(t, modem.IsBusy(inner), "inner=%v", inner)
}

func TestUnlockSIM(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	type Case struct {
		name      string
		script    [][2]string
		pin       string
		tries     int
		expectErr string
	}
	cases := []Case{
		{name: "ready", script: [][2]string{{"AT+CPIN?\r\n", "\r\n+CPIN: READY\r\n\r\nOK\r\n"}}},
		{name: "enter", pin: "1234", script: [][2]string{
			{"AT+CPIN?\r\n", "\r\n+CPIN: SIM PIN\r\n\r\nOK\r\n"},
			{"AT+CPIN=\"1234\"\r\n", "\r\nOK\r\n"},
			{"AT+CPIN?\r\n", "\r\n+CPIN: READY\r\n\r\nOK\r\n"},
		}},
		{name: "no-pin", script: [][2]string{{"AT+CPIN?\r\n", "\r\n+CPIN: SIM PIN\r\n\r\nOK\r\n"}}, expectErr: `modem: SIM status="SIM PIN"`},
		{name: "puk", pin: "1234", script: [][2]string{{"AT+CPIN?\r\n", "\r\n+CPIN: SIM PUK\r\n\r\nOK\r\n"}}, expectErr: `modem: SIM status="SIM PUK"`},
		{name: "tries", pin: "1234", tries: 1, script: [][2]string{
			{"AT+CPIN?\r\n", "\r\n+CPIN: SIM PIN\r\n\r\nOK\r\n"},
			{"AT+CPIN=\"1234\"\r\n", "\r\nOK\r\n"},
			{"AT+CPIN?\r\n", "\r\n+CPIN: SIM PIN\r\n\r\nOK\r\n"},
		}, expectErr: `modem: SIM status="SIM PIN"`},
		{name: "wrong-pin", pin: "0000", script: [][2]string{
			{"AT+CPIN?\r\n", "\r\n+CPIN: SIM PIN\r\n\r\nOK\r\n"},
			{"AT+CPIN=\"0000\"\r\n", "\r\n+CME ERROR: 16\r\n"},
		}, expectErr: "enter pin: command=AT+CPIN=\"0000\": at: remote +CME ERROR: 16"},
	}
	helpers.Shuffle(helpers.RandUnix(), cases)
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			m, th := modem.NewTestModem(t, modem.Config{})
			for _, ex := range c.script {
				th.Mock.Expect(ex[0], ex[1])
			}
			err := m.UnlockSIM(ctx, c.pin, c.tries)
			if c.expectErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, c.expectErr, err.Error())
		})
	}
}

func TestPinStatusError(t *testing.T) {
	t.Parallel()
	m, th := modem.NewTestModem(t, modem.Config{})
	th.Mock.Expect("AT+CPIN?\r\n", "\r\n+CPIN: PH_SIM PIN\r\n\r\nOK\r\n")
	err := m.UnlockSIM(context.Background(), "1", 3)
	pe, ok := errors.Cause(err).(*modem.PinStatusError)
	require.True(t, ok, "err=%v", err)
	assert.Equal(t, command.PinPhSIM, pe.Status)
}

func TestSleep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, th := modem.NewTestModem(t, modem.Config{})

	// disabled
	require.NoError(t, m.WakeUp(ctx))
	err := m.StartSleeping(ctx)
	assert.Equal(t, modem.ErrIllegalState, errors.Cause(err))

	th.Mock.Expect("AT+CSCLK=1\r\n", "\r\nOK\r\n")
	require.NoError(t, m.SetSleepMode(ctx, command.SleepHardware))
	assert.Equal(t, command.SleepHardware, m.SleepMode())
	require.NoError(t, m.StartSleeping(ctx))
	require.NoError(t, m.WakeUp(ctx))
	assert.Equal(t, []bool{false, true, false}, th.Wake.Levels())

	th.Mock.
		Expect("AT+CSCLK=2\r\n", "\r\nOK\r\n").
		Expect("AT\r\nAT\r\n", "\r\nOK\r\n\r\nOK\r\n")
	require.NoError(t, m.SetSleepMode(ctx, command.SleepSoftware))
	err = m.StartSleeping(ctx)
	assert.Equal(t, modem.ErrIllegalState, errors.Cause(err))
	require.NoError(t, m.WakeUp(ctx))
	assert.Equal(t, "AT+CSCLK=1\r\nAT+CSCLK=2\r\nAT\r\nAT\r\n", th.Mock.Written())

	th.Mock.Expect("AT+CSCLK=1\r\n", "\r\nERROR\r\n")
	err = m.SetSleepMode(ctx, command.SleepHardware)
	assert.True(t, at.IsRemote(err))
	assert.Equal(t, command.SleepSoftware, m.SleepMode())
}

func TestWakeUpSoftwareSilent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, th := modem.NewTestModem(t, modem.Config{})
	th.Mock.
		Expect("AT+CSCLK=2\r\n", "\r\nOK\r\n").
		Expect("AT\r\nAT\r\n", "")
	require.NoError(t, m.SetSleepMode(ctx, command.SleepSoftware))
	err := m.WakeUp(ctx)
	assert.True(t, at.IsTransport(err), "err=%v", err)
}

func TestFlowControl(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, th := modem.NewTestModem(t, modem.Config{})
	th.Mock.
		Expect("AT+IFC=2,2\r\n", "\r\nOK\r\n").
		Expect("AT+IFC?\r\n", "\r\n+IFC: 2,2\r\n\r\nOK\r\n").
		Expect("AT+CMEE=1\r\n", "\r\nOK\r\n")
	hw := command.FlowControl{DCE: command.FlowHardware, DTE: command.FlowHardware}
	require.NoError(t, m.SetFlowControl(ctx, hw))
	fc, err := m.FlowControl(ctx)
	require.NoError(t, err)
	assert.Equal(t, hw, fc)
	require.NoError(t, m.SetErrorVerbosity(ctx, command.ErrorsNumeric))
}

func TestPower(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, th := modem.NewTestModem(t, modem.Config{})
	th.Mock.Expect("ATE0\r\n", "\r\nOK\r\n")
	require.NoError(t, m.PowerOff())
	require.NoError(t, m.PowerOn(ctx))
	assert.Equal(t, []bool{false, true}, th.Power.Levels())

	th.Power.Err = errors.New("gpio gone")
	assert.Error(t, m.PowerOff())
}

func TestWaitReady(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, th := modem.NewTestModem(t, modem.Config{})
	th.Mock.
		Expect("AT\r\n", "\r\nERROR\r\n").
		Expect("AT\r\n", "\r\nERROR\r\n").
		Expect("AT\r\n", "\r\nOK\r\n")
	b := &helpers.Backoff{Min: time.Millisecond, Max: 5 * time.Millisecond, K: 2}
	require.NoError(t, m.WaitReady(ctx, b))

	th.Mock.Expect("AT\r\n", "\r\nERROR\r\n")
	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := m.WaitReady(ctx, &helpers.Backoff{Min: time.Second, Max: time.Second, K: 2})
	require.Error(t, err)
}

func TestOwner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, th := modem.NewTestModem(t, modem.Config{})
	const N = 8
	for i := 0; i < N; i++ {
		th.Mock.Expect("AT\r\n", "\r\nOK\r\n")
	}
	th.Mock.Expect("AT+CSOCL=0\r\n", "\r\nOK\r\n")
	owner := modem.NewOwner(m, 2)

	var wg sync.WaitGroup
	errs := make([]error, N)
	for i := 0; i < N; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = modem.Execute[at.Empty](ctx, owner, command.Probe{})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}

	tornDown := 0
	owner.Track(func(ctx context.Context, ex modem.Executor) error {
		tornDown++
		_, err := modem.Execute[at.Empty](ctx, ex, command.CloseSocket{ID: 0})
		return err
	})
	untrack := owner.Track(func(ctx context.Context, ex modem.Executor) error {
		t.Error("untracked teardown must not run")
		return nil
	})
	untrack()
	require.NoError(t, owner.Shutdown(ctx))
	assert.Equal(t, 1, tornDown)

	err := owner.Run(ctx, func(*modem.Modem) error { return nil })
	assert.Equal(t, modem.ErrClosed, err)
}
