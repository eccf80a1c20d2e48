package command

import (
	"strconv"

	"github.com/temoto/nbiot/at"
)

const (
	MQTTServerMaxLen     = 50
	MQTTTopicMaxLen      = 128
	MQTTBufferMin        = 20
	MQTTBufferMax        = 1132
	MQTTDefaultTimeoutMS = 5000
	MQTTDefaultBuffer    = 600
)

// NewMQTT is AT+CMQNEW, reply is session id.
type NewMQTT struct {
	Server     string
	Port       int
	TimeoutMS  int
	BufferSize int
}

func (self NewMQTT) Encode(b []byte) ([]byte, error) {
	switch {
	case self.Server == "" || len(self.Server) > MQTTServerMaxLen:
		return nil, errNotValid("mqtt server", self.Server)
	case self.Port <= 0 || self.Port > 65535:
		return nil, errNotValid("mqtt port", self.Port)
	}
	timeout := self.TimeoutMS
	if timeout == 0 {
		timeout = MQTTDefaultTimeoutMS
	}
	bufsize := self.BufferSize
	if bufsize == 0 {
		bufsize = MQTTDefaultBuffer
	}
	if bufsize < MQTTBufferMin || bufsize > MQTTBufferMax {
		return nil, errNotValid("mqtt buffer size", bufsize)
	}
	return at.Set(b, "+CMQNEW").String(self.Server).Int(self.Port).Int(timeout).Int(bufsize).Finish()
}

func (NewMQTT) Decode(r []byte) (int, error) { return decodeID("+CMQNEW", r) }

func decodeID(name string, r []byte) (int, error) {
	p := at.NewParser(name, r)
	id := p.Expect(name + ":").Int()
	if err := p.Finish(); err != nil {
		return 0, err
	}
	if id < 0 {
		return 0, at.NewDecodeError(name, "negative id "+strconv.Itoa(id), r)
	}
	return id, nil
}

type MQTTSessionInfo struct {
	ID     int
	Used   bool
	Server string
}

// GetMQTTSessions is AT+CMQNEW?.
type GetMQTTSessions struct{}

func (GetMQTTSessions) Encode(b []byte) ([]byte, error) { return at.Query(b, "+CMQNEW") }
func (GetMQTTSessions) Decode(r []byte) ([]MQTTSessionInfo, error) {
	p := at.NewParser("+CMQNEW?", r)
	var ss []MQTTSessionInfo
	for p.Next("+CMQNEW:") {
		s := MQTTSessionInfo{ID: p.Int(), Used: p.Int() == 1}
		if p.More() {
			s.Server = p.String()
		}
		ss = append(ss, s)
	}
	return ss, p.Err()
}

type MQTTVersion uint8

const (
	MQTT31  MQTTVersion = 3
	MQTT311 MQTTVersion = 4
)

// ConnectMQTT is AT+CMQCON.
type ConnectMQTT struct {
	ID           int
	Version      MQTTVersion
	ClientID     string
	KeepAliveSec int
	Clean        bool
	Will         bool
	Username     string
	Password     string
}

func (self ConnectMQTT) Encode(b []byte) ([]byte, error) {
	v := self.Version
	if v == 0 {
		v = MQTT311
	}
	if v != MQTT31 && v != MQTT311 {
		return nil, errNotValid("mqtt version", int(v))
	}
	if self.ClientID == "" {
		return nil, errNotValid("mqtt client id", `""`)
	}
	return at.Set(b, "+CMQCON").
		Int(self.ID).Int(int(v)).String(self.ClientID).Int(self.KeepAliveSec).
		Bool(self.Clean).Bool(self.Will).String(self.Username).String(self.Password).
		Finish()
}
func (ConnectMQTT) Decode(r []byte) (at.Empty, error) { return at.DecodeEmpty("+CMQCON", r) }

// PublishMQTT is AT+CMQPUB, payload is sent hex encoded, length counts hex digits.
type PublishMQTT struct {
	ID       int
	Topic    string
	QoS      int
	Retained bool
	Dup      bool
	Payload  []byte
}

func (self PublishMQTT) Encode(b []byte) ([]byte, error) {
	if err := validTopic(self.Topic, self.QoS); err != nil {
		return nil, err
	}
	return at.Set(b, "+CMQPUB").
		Int(self.ID).String(self.Topic).Int(self.QoS).Bool(self.Retained).Bool(self.Dup).
		Int(2 * len(self.Payload)).QuotedHex(self.Payload).
		Finish()
}
func (PublishMQTT) Decode(r []byte) (at.Empty, error) { return at.DecodeEmpty("+CMQPUB", r) }

func validTopic(topic string, qos int) error {
	if topic == "" || len(topic) > MQTTTopicMaxLen {
		return errNotValid("mqtt topic", topic)
	}
	if qos < 0 || qos > 2 {
		return errNotValid("mqtt qos", qos)
	}
	return nil
}

// SubscribeMQTT is AT+CMQSUB.
type SubscribeMQTT struct {
	ID    int
	Topic string
	QoS   int
}

func (self SubscribeMQTT) Encode(b []byte) ([]byte, error) {
	if err := validTopic(self.Topic, self.QoS); err != nil {
		return nil, err
	}
	return at.Set(b, "+CMQSUB").Int(self.ID).String(self.Topic).Int(self.QoS).Finish()
}
func (SubscribeMQTT) Decode(r []byte) (at.Empty, error) { return at.DecodeEmpty("+CMQSUB", r) }

// UnsubscribeMQTT is AT+CMQUNSUB.
type UnsubscribeMQTT struct {
	ID    int
	Topic string
}

func (self UnsubscribeMQTT) Encode(b []byte) ([]byte, error) {
	if err := validTopic(self.Topic, 0); err != nil {
		return nil, err
	}
	return at.Set(b, "+CMQUNSUB").Int(self.ID).String(self.Topic).Finish()
}
func (UnsubscribeMQTT) Decode(r []byte) (at.Empty, error) { return at.DecodeEmpty("+CMQUNSUB", r) }

// DisconnectMQTT is AT+CMQDISCON.
type DisconnectMQTT struct{ ID int }

func (self DisconnectMQTT) Encode(b []byte) ([]byte, error) {
	return at.Set(b, "+CMQDISCON").Int(self.ID).Finish()
}
func (DisconnectMQTT) Decode(r []byte) (at.Empty, error) { return at.DecodeEmpty("+CMQDISCON", r) }

// MQTTMessage is inbound publish pushed by module.
type MQTTMessage struct {
	SessionID int
	Topic     string
	QoS       int
	Retained  bool
	Dup       bool
	Payload   []byte
}

const (
	PrefixMQTTPublish    = "+CMQPUB:"
	PrefixMQTTDisconnect = "+CMQDISCON:"
)

// MQTTPush decodes "+CMQPUB: <id>,"topic",qos,retained,dup,<len>,"<hex>"".
// Requires AT+CREVHEX=1.
type MQTTPush struct{}

func (MQTTPush) Prefix() string { return PrefixMQTTPublish }
func (MQTTPush) Decode(line []byte) (MQTTMessage, error) {
	p := at.NewParser("+CMQPUB push", line)
	p.Expect(PrefixMQTTPublish)
	m := MQTTMessage{
		SessionID: p.Int(),
		Topic:     p.String(),
		QoS:       p.Int(),
		Retained:  p.Int() == 1,
		Dup:       p.Int() == 1,
	}
	p.Int() // length
	m.Payload = p.Hex()
	return m, p.Finish()
}

// MQTTLost decodes "+CMQDISCON: <id>", broker connection lost.
type MQTTLost struct{}

func (MQTTLost) Prefix() string { return PrefixMQTTDisconnect }
func (MQTTLost) Decode(line []byte) (int, error) {
	return decodeID("+CMQDISCON", line)
}
