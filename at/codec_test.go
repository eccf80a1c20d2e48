package at_test

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/nbiot/at"
)

func TestBuilder(t *testing.T) {
	t.Parallel()
	scratch := make([]byte, 128)
	seven := 7

	b, err := at.Exec(scratch, "+CSQ")
	require.NoError(t, err)
	assert.Equal(t, "AT+CSQ\r\n", string(b))

	b, err = at.Query(scratch, "+CPIN")
	require.NoError(t, err)
	assert.Equal(t, "AT+CPIN?\r\n", string(b))

	b, err = at.Set(scratch, "+CMQNEW").String("broker").Int(1883).Int(5000).Int(600).Finish()
	require.NoError(t, err)
	assert.Equal(t, "AT+CMQNEW=\"broker\",1883,5000,600\r\n", string(b))

	b, err = at.Set(scratch, "+CSOC").Int(1).Int(1).Bool(true).OptInt(nil).Finish()
	require.NoError(t, err)
	assert.Equal(t, "AT+CSOC=1,1,1\r\n", string(b))

	b, err = at.Set(scratch, "+CSOC").Int(1).Int(1).Int(1).OptInt(&seven).Finish()
	require.NoError(t, err)
	assert.Equal(t, "AT+CSOC=1,1,1,7\r\n", string(b))

	b, err = at.Set(scratch, "+CSOSEND").Int(0).Int(8).Hex([]byte{0xde, 0xad, 0xbe, 0xef}).Finish()
	require.NoError(t, err)
	assert.Equal(t, "AT+CSOSEND=0,8,deadbeef\r\n", string(b))

	b, err = at.Set(scratch, "+CMQPUB").QuotedHex([]byte{0x01, 0xff}).Finish()
	require.NoError(t, err)
	assert.Equal(t, "AT+CMQPUB=\"01ff\"\r\n", string(b))
}

func TestBuilderDeterministic(t *testing.T) {
	t.Parallel()
	encode := func() string {
		b, err := at.Set(make([]byte, 64), "+CSOCON").Int(1).Int(1111).String("127.0.0.1").Finish()
		require.NoError(t, err)
		return string(b)
	}
	assert.Equal(t, encode(), encode())
}

func TestBuilderScratchTooSmall(t *testing.T) {
	t.Parallel()
	scratch := make([]byte, 10)
	_, err := at.Set(scratch, "+CSOSEND").Int(0).Int(8).Hex([]byte{1, 2, 3, 4}).Finish()
	assert.Equal(t, at.ErrScratchTooSmall, errors.Cause(err))

	// exact fit
	b, err := at.Exec(make([]byte, 8), "+CSQ")
	require.NoError(t, err)
	assert.Equal(t, "AT+CSQ\r\n", string(b))
	_, err = at.Exec(make([]byte, 7), "+CSQ")
	assert.Equal(t, at.ErrScratchTooSmall, err)
}

func TestParser(t *testing.T) {
	t.Parallel()
	p := at.NewParser("+CMQNEW?", []byte("+CMQNEW: 0,1,\"broker\"\r\n+CMQNEW: 1,0,\"\"\r\n"))
	type row struct {
		id, used int
		server   string
	}
	var rows []row
	for p.Next("+CMQNEW: ") {
		r := row{id: p.Int(), used: p.Int(), server: p.String()}
		rows = append(rows, r)
	}
	require.NoError(t, p.Finish())
	assert.Equal(t, []row{{0, 1, "broker"}, {1, 0, ""}}, rows)

	p = at.NewParser("+CSONMI", []byte("+CSONMI: 1,8,deadbeef"))
	p.Expect("+CSONMI:")
	assert.Equal(t, 1, p.Int())
	assert.Equal(t, 8, p.Int())
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, p.Hex())
	assert.False(t, p.More())
	require.NoError(t, p.Finish())

	p = at.NewParser("+COPS?", []byte("+COPS: 0"))
	p.Expect("+COPS: ")
	assert.Equal(t, 0, p.Int())
	_, ok := p.OptInt()
	assert.False(t, ok)
	require.NoError(t, p.Finish())

	p = at.NewParser("ATI", []byte("+CEER: No cause, unspecified\r\n"))
	p.Expect("+CEER:")
	assert.Equal(t, "No cause, unspecified", p.Raw())
	require.NoError(t, p.Finish())
}

func TestParserErrors(t *testing.T) {
	t.Parallel()
	type Case struct {
		name   string
		input  string
		parse  func(p *at.Parser)
		reason string
	}
	cases := []Case{
		{"missing-line", "+CSQ: 1,2", func(p *at.Parser) { p.Expect("+CGATT: ").Int() }, `missing "+CGATT: "`},
		{"not-int", "+CGATT: x", func(p *at.Parser) { p.Expect("+CGATT: ").Int() }, `expected integer got "x"`},
		{"missing-field", "+CSQ: 24", func(p *at.Parser) { p.Expect("+CSQ: ").Int(); p.Int() }, "missing field"},
		{"unterminated", "+COPS: 0,0,\"abc", func(p *at.Parser) { p.Expect("+COPS: ").Int(); p.Int(); _ = p.String() }, "unterminated string"},
		{"extra", "+CGATT: 1,2", func(p *at.Parser) { p.Expect("+CGATT: ").Int() }, `unexpected fields "2"`},
		{"bad-hex", "+CSONMI: 1,2,zz", func(p *at.Parser) { p.Expect("+CSONMI: ").Int(); p.Int(); p.Hex() }, "invalid hex: encoding/hex: invalid byte: U+007A 'z'"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			p := at.NewParser("TEST", []byte(c.input))
			c.parse(p)
			err := p.Finish()
			require.Error(t, err)
			require.True(t, at.IsDecode(err))
			de := errors.Cause(err).(*at.DecodeError)
			assert.Equal(t, c.reason, de.Reason)
			assert.Equal(t, c.input, string(de.Raw))
			assert.Equal(t, "TEST", de.Command)
		})
	}
}

func TestDecodeEmpty(t *testing.T) {
	t.Parallel()
	_, err := at.DecodeEmpty("+CSOCL", []byte("\r\n"))
	assert.NoError(t, err)
	_, err = at.DecodeEmpty("+CSOCL", []byte("+CSOCL: 1\r\n"))
	assert.True(t, at.IsDecode(err))
}

func TestRaw(t *testing.T) {
	t.Parallel()
	b, err := at.Raw("+CGMM").Encode(make([]byte, 32))
	require.NoError(t, err)
	assert.Equal(t, "AT+CGMM\r\n", string(b))
	s, err := at.Raw("").Decode([]byte("SIM7020E\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "SIM7020E\r\n", s)
}
