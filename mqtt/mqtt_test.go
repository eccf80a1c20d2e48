package mqtt_test

import (
	"context"
	"testing"

	"github.com/256dpi/gomqtt/packet"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/nbiot/at"
	"github.com/temoto/nbiot/modem"
	"github.com/temoto/nbiot/mqtt"
)

var testSettings = mqtt.Settings{Server: "broker.example", Port: 1883}

const (
	wireNew     = "AT+CMQNEW=\"broker.example\",1883,5000,600\r\n"
	wireConnect = "AT+CMQCON=3,4,\"dev1\",60,1,0,\"\",\"\"\r\n"
)

func TestLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, th := modem.NewTestModem(t, modem.Config{})
	th.Mock.
		Expect(wireNew, "\r\n+CMQNEW: 3\r\n\r\nOK\r\n").
		Expect(wireConnect, "\r\nOK\r\n").
		Expect("AT+CMQSUB=3,\"in/#\",1\r\n", "\r\nOK\r\n").
		Expect("AT+CMQPUB=3,\"out/1\",1,0,0,4,\"6869\"\r\n", "\r\nOK\r\n").
		Expect("AT+CMQPUB=3,\"out/1\",0,1,0,2,\"00\"\r\n", "\r\nOK\r\n").
		Expect("AT+CMQUNSUB=3,\"in/#\"\r\n", "\r\nOK\r\n").
		Expect("AT+CMQDISCON=3\r\n", "\r\nOK\r\n")

	d := mqtt.New(testSettings)
	c, err := d.Create(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, 3, c.ID())
	_, err = d.Create(ctx, m)
	assert.True(t, modem.IsSpent(err))

	l, err := c.Connect(ctx, m, mqtt.ConnectOptions{ClientID: "dev1", KeepaliveSec: 60, CleanSession: true})
	require.NoError(t, err)
	assert.Equal(t, "dev1", l.ClientID())
	_, err = c.Connect(ctx, m, mqtt.ConnectOptions{ClientID: "dev1"})
	assert.True(t, modem.IsSpent(err))
	_, err = c.Disconnect(ctx, m)
	assert.True(t, modem.IsSpent(err))

	require.NoError(t, l.Subscribe(ctx, m, packet.Subscription{Topic: "in/#", QOS: packet.QOSAtLeastOnce}))
	require.NoError(t, l.Publish(ctx, m, &packet.Message{Topic: "out/1", Payload: []byte("hi"), QOS: packet.QOSAtLeastOnce}))
	require.NoError(t, l.Publish(ctx, m, &packet.Message{Topic: "out/1", Payload: []byte{0}, Retain: true}))
	require.NoError(t, l.Unsubscribe(ctx, m, "in/#"))

	d2, err := l.Disconnect(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, testSettings, d2.Settings())
	err = l.Publish(ctx, m, &packet.Message{Topic: "out/1", Payload: []byte("x")})
	assert.Equal(t, mqtt.ErrSpent, err)
}

// Create reply "+CMQNEW: 3" gives session id 3, publish before connect is rejected
// without any bytes written.
func TestPublishBeforeConnect(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, th := modem.NewTestModem(t, modem.Config{})
	th.Mock.Expect(wireNew, "\r\n+CMQNEW: 3\r\n\r\nOK\r\n")

	s := mqtt.NewSession(m, testSettings)
	assert.Equal(t, mqtt.ErrDisconnected, s.Publish(ctx, &packet.Message{Topic: "t", Payload: []byte("x")}))
	assert.Equal(t, mqtt.ErrDisconnected, s.Connect(ctx, mqtt.ConnectOptions{ClientID: "dev1"}))
	assert.Equal(t, mqtt.ErrDisconnected, s.Disconnect(ctx))

	require.NoError(t, s.Create(ctx))
	id, ok := s.ID()
	assert.True(t, ok)
	assert.Equal(t, 3, id)
	assert.Equal(t, mqtt.StateCreated, s.State())

	assert.Equal(t, mqtt.ErrNotConnected, s.Publish(ctx, &packet.Message{Topic: "t", Payload: []byte("x")}))
	assert.Equal(t, mqtt.ErrNotConnected, s.Subscribe(ctx, packet.Subscription{Topic: "t"}))
	err := s.Create(ctx)
	assert.Equal(t, modem.ErrIllegalState, errors.Cause(err))
	assert.Equal(t, wireNew, th.Mock.Written())
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, th := modem.NewTestModem(t, modem.Config{})
	th.Mock.
		Expect(wireNew, "\r\n+CMQNEW: 3\r\n\r\nOK\r\n").
		Expect(wireConnect, "\r\nOK\r\n").
		Expect("AT+CMQDISCON=3\r\n", "\r\nOK\r\n").
		Expect(wireNew, "\r\n+CMQNEW: 0\r\n\r\nOK\r\n").
		Expect("AT+CMQDISCON=0\r\n", "\r\nOK\r\n")

	s := mqtt.NewSession(m, testSettings)
	require.NoError(t, s.Create(ctx))
	require.NoError(t, s.Connect(ctx, mqtt.ConnectOptions{ClientID: "dev1", KeepaliveSec: 60, CleanSession: true}))
	assert.Equal(t, mqtt.StateLive, s.State())
	require.NoError(t, s.Disconnect(ctx))
	assert.Equal(t, mqtt.StateDisconnected, s.State())
	_, ok := s.ID()
	assert.False(t, ok)

	// disconnect straight from created
	require.NoError(t, s.Create(ctx))
	require.NoError(t, s.Disconnect(ctx))
	assert.Equal(t, mqtt.StateDisconnected, s.State())
}

func TestCreateFailureRetry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, th := modem.NewTestModem(t, modem.Config{})
	th.Mock.
		Expect(wireNew, "\r\n+CME ERROR: 50\r\n").
		Expect(wireNew, "\r\n+CMQNEW: 1\r\n\r\nOK\r\n")

	d := mqtt.New(testSettings)
	_, err := d.Create(ctx, m)
	require.Error(t, err)
	re, ok := at.AsRemote(err)
	require.True(t, ok)
	assert.Equal(t, 50, re.Code)

	c, err := d.Create(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, 1, c.ID())
}

func TestInvalidPublish(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, th := modem.NewTestModem(t, modem.Config{})
	th.Mock.
		Expect(wireNew, "\r\n+CMQNEW: 3\r\n\r\nOK\r\n").
		Expect(wireConnect, "\r\nOK\r\n")
	c, err := mqtt.New(testSettings).Create(ctx, m)
	require.NoError(t, err)
	l, err := c.Connect(ctx, m, mqtt.ConnectOptions{ClientID: "dev1", KeepaliveSec: 60, CleanSession: true})
	require.NoError(t, err)

	err = l.Publish(ctx, m, &packet.Message{Topic: "", Payload: []byte("x")})
	assert.True(t, errors.IsNotValid(errors.Cause(err)), "err=%v", err)
	err = l.Publish(ctx, m, &packet.Message{Topic: "t", Payload: []byte("x"), QOS: 3})
	assert.True(t, errors.IsNotValid(errors.Cause(err)), "err=%v", err)
}

func TestReceive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, th := modem.NewTestModem(t, modem.Config{})
	th.Mock.
		Expect(wireNew, "\r\n+CMQNEW: 3\r\n\r\nOK\r\n").
		Expect(wireConnect, "\r\nOK\r\n")
	c, err := mqtt.New(testSettings).Create(ctx, m)
	require.NoError(t, err)
	l, err := c.Connect(ctx, m, mqtt.ConnectOptions{ClientID: "dev1", KeepaliveSec: 60, CleanSession: true})
	require.NoError(t, err)

	_, ok, err := l.Receive(ctx, m)
	require.NoError(t, err)
	assert.False(t, ok)

	th.Mock.Push("\r\n+CMQPUB: 1,\"other\",0,0,0,2,\"00\"\r\n")
	_, _, err = l.Receive(ctx, m)
	mismatch, ok := errors.Cause(err).(*modem.MismatchError)
	require.True(t, ok, "err=%v", err)
	assert.Equal(t, 3, mismatch.Want)
	assert.Equal(t, 1, mismatch.Got)
	assert.Equal(t, 1, m.Inbox().Len())
	_, ok = m.Inbox().Next("")
	require.True(t, ok)

	th.Mock.Push("\r\n+CMQPUB: 3,\"in/cmd\",1,1,0,4,\"6869\"\r\n")
	msg, ok, err := l.Receive(ctx, m)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, &packet.Message{Topic: "in/cmd", Payload: []byte("hi"), QOS: packet.QOSAtLeastOnce, Retain: true}, msg)

	th.Mock.Push("\r\n+CMQDISCON: 0\r\n\r\n+CMQPUB: 1,\"other\",0,0,0,2,\"00\"\r\n")
	d, err := l.Lost(ctx, m)
	require.NoError(t, err)
	assert.Nil(t, d)

	th.Mock.Push("\r\n+CMQPUB: 3,\"in/cmd\",0,0,0,2,\"21\"\r\n\r\n+CMQDISCON: 3\r\n")
	msg, ok, err = l.Receive(ctx, m)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("!"), msg.Payload)
	d, err = l.Lost(ctx, m)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, mqtt.ErrSpent, l.Publish(ctx, m, &packet.Message{Topic: "t", Payload: []byte("x")}))
	assert.Equal(t, 2, m.Inbox().Len())
}
