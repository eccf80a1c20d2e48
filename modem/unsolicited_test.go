package modem_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/nbiot/at"
	"github.com/temoto/nbiot/at/command"
	"github.com/temoto/nbiot/log2"
	"github.com/temoto/nbiot/modem"
)

func TestInbox(t *testing.T) {
	t.Parallel()
	in := modem.NewInbox(2, log2.NewTest(t, log2.LDebug))
	in.Feed([]byte("\r\n+CSONMI: 1,2,aa\r\n\r\nOK\r\nAT\r\n+CSON"))
	assert.Equal(t, 1, in.Len())
	in.Feed([]byte("MI: 2,2,bb\r\n"))
	assert.Equal(t, 2, in.Len())
	in.Push([]byte("+CMQDISCON: 0\r\n"))
	assert.Equal(t, 2, in.Len())

	_, ok := in.Next("+CSONMI: 1")
	assert.False(t, ok, "oldest line must be dropped")
	line, ok := in.Next("+CMQDISCON:")
	require.True(t, ok)
	assert.Equal(t, "+CMQDISCON: 0", string(line))
	in.Requeue(line)
	line, ok = in.Next("")
	require.True(t, ok)
	assert.Equal(t, "+CMQDISCON: 0", string(line))
	line, ok = in.Next("")
	require.True(t, ok)
	assert.Equal(t, "+CSONMI: 2,2,bb", string(line))
	assert.Equal(t, 0, in.Len())
}

func TestInboxRequeueFull(t *testing.T) {
	t.Parallel()
	in := modem.NewInbox(2, log2.NewTest(t, log2.LDebug))
	in.Push([]byte("+CSONMI: 1,2,aa\r\n"))
	in.Push([]byte("+CSONMI: 2,2,bb\r\n"))
	in.Requeue([]byte("+CSONMI: 3,2,cc"))
	assert.Equal(t, 2, in.Len())
	assert.Equal(t, uint64(1), in.Dropped())

	line, ok := in.Next("")
	require.True(t, ok)
	assert.Equal(t, "+CSONMI: 3,2,cc", string(line))
	line, ok = in.Next("")
	require.True(t, ok)
	assert.Equal(t, "+CSONMI: 1,2,aa", string(line))
	_, ok = in.Next("")
	assert.False(t, ok)
}

func TestInboxNextFunc(t *testing.T) {
	t.Parallel()
	in := modem.NewInbox(0, nil)
	in.Push([]byte("+CSONMI: 0,2,aa\r\n"))
	in.Push([]byte("+CSONMI: 1,2,bb\r\n"))
	line, ok := in.NextFunc(command.PrefixSocketData, func(line []byte) bool {
		return string(line) == "+CSONMI: 1,2,bb"
	})
	require.True(t, ok)
	assert.Equal(t, "+CSONMI: 1,2,bb", string(line))
	_, ok = in.NextFunc(command.PrefixSocketData, func([]byte) bool { return false })
	assert.False(t, ok)
	assert.Equal(t, 1, in.Len())
}

func TestReceiveIDSkipsForeign(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, th := modem.NewTestModem(t, modem.Config{})
	th.Mock.Push("+CSONMI: 0,4,dead\r\n+CSONMI: 1,4,beef\r\n")
	socketID := func(d command.SocketData) int { return d.SocketID }

	d, ok, err := modem.ReceiveID[command.SocketData](ctx, m, command.SocketPush{}, 1, socketID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{0xbe, 0xef}, d.Data)
	assert.Equal(t, 1, m.Inbox().Len())

	_, ok, err = modem.ReceiveID[command.SocketData](ctx, m, command.SocketPush{}, 1, socketID)
	assert.False(t, ok)
	assert.True(t, modem.IsMismatch(err), "err=%v", err)
	assert.Equal(t, 1, m.Inbox().Len())

	d, ok, err = modem.ReceiveID[command.SocketData](ctx, m, command.SocketPush{}, 0, socketID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{0xde, 0xad}, d.Data)
}

func TestPushInsideError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, th := modem.NewTestModem(t, modem.Config{})
	th.Mock.Expect("AT\r\n", "\r\n+CSONMI: 1,4,cafe\r\n\r\nERROR\r\n")
	err := m.Ping(ctx)
	assert.True(t, at.IsRemote(err), "err=%v", err)
	assert.Equal(t, 1, m.Inbox().Len())

	d, ok, err := modem.Receive[command.SocketData](ctx, m, command.SocketPush{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, command.SocketData{SocketID: 1, Data: []byte{0xca, 0xfe}}, d)
}

func TestInboxSubscribe(t *testing.T) {
	t.Parallel()
	in := modem.NewInbox(0, nil)
	var got []string
	in.Subscribe(command.PrefixMQTTPublish, func(line []byte) { got = append(got, string(line)) })
	in.Feed([]byte("+CMQPUB: 0,\"t\",0,0,0,2,\"aa\"\r\n+CSONMI: 1,2,aa\r\n"))
	assert.Equal(t, []string{"+CMQPUB: 0,\"t\",0,0,0,2,\"aa\""}, got)
	assert.Equal(t, 1, in.Len())
}

func TestReceiveBetweenCommands(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, th := modem.NewTestModem(t, modem.Config{})
	th.Mock.Push("\r\n+CSONMI: 1,8,deadbeef\r\n")

	d, ok, err := modem.Receive[command.SocketData](ctx, m, command.SocketPush{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, command.SocketData{SocketID: 1, Data: []byte{0xde, 0xad, 0xbe, 0xef}}, d)

	_, ok, err = modem.Receive[command.SocketData](ctx, m, command.SocketPush{})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), m.Stat().Unsolicited)
}

func TestPushInsideReply(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, th := modem.NewTestModem(t, modem.Config{})
	th.Mock.
		Expect("AT+CSQ\r\n", "\r\n+CSONMI: 2,2,ff\r\n\r\n+CSQ: 24,0\r\n\r\nOK\r\n").
		Expect("AT\r\n", "\r\nOK\r\n\r\n+CMQDISCON: 1\r\n")
	sq, err := modem.Execute[command.SignalQuality](ctx, m, command.GetSignalQuality{})
	require.NoError(t, err)
	assert.Equal(t, 24, sq.RSSI)
	require.NoError(t, m.Ping(ctx))

	d, ok, err := modem.Receive[command.SocketData](ctx, m, command.SocketPush{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{0xff}, d.Data)

	// bytes after OK terminator reach inbox on next poll
	id, ok, err := modem.Receive[int](ctx, m, command.MQTTLost{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, id)
}

func TestReceiveDecodeError(t *testing.T) {
	t.Parallel()
	m, th := modem.NewTestModem(t, modem.Config{})
	th.Mock.Push("+CSONMI: 1,2,zz\r\n")
	_, ok, err := modem.Receive[command.SocketData](context.Background(), m, command.SocketPush{})
	assert.False(t, ok)
	assert.True(t, at.IsDecode(err))
}

func TestAwait(t *testing.T) {
	t.Parallel()
	m, th := modem.NewTestModem(t, modem.Config{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		th.Mock.Push("+CSONMI: 3,2,01\r\n")
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d, err := modem.Await[command.SocketData](ctx, m, command.SocketPush{}, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, d.SocketID)

	ctx, cancel = context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = modem.Await[command.SocketData](ctx, m, command.SocketPush{}, 5*time.Millisecond)
	assert.True(t, at.IsDeadline(err), "err=%v", err)
}
