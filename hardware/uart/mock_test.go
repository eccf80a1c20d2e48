package uart

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockExchange(t *testing.T) {
	t.Parallel()

	m := NewMock().
		Expect("AT\r\n", "\r\nOK\r\n").
		Expect("AT+CSQ\r\n", "\r\n+CSQ: 24,0\r\n\r\nOK\r\n")
	var u Uarter = m

	n, err := u.Buffered()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// split write must still match
	_, err = u.Write([]byte("A"))
	require.NoError(t, err)
	_, err = u.Write([]byte("T\r\n"))
	require.NoError(t, err)
	n, _ = u.Buffered()
	assert.Equal(t, 6, n)

	m.SetChunk(4)
	buf := make([]byte, 64)
	n, err = u.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "\r\nOK", string(buf[:n]))
	n, _ = u.Read(buf)
	assert.Equal(t, "\r\n", string(buf[:n]))
	_, err = u.Read(buf)
	assert.Equal(t, io.EOF, err)

	assert.Error(t, m.ExpectationsWereMet())
	_, err = u.Write([]byte("AT+CSQ\r\n"))
	require.NoError(t, err)
	assert.NoError(t, m.ExpectationsWereMet())
	assert.Equal(t, "AT\r\nAT+CSQ\r\n", m.Written())
}

func TestMockUnexpected(t *testing.T) {
	t.Parallel()

	m := NewMock().Expect("AT\r\n", "\r\nOK\r\n")
	_, err := m.Write([]byte("ATE0\r\n"))
	assert.Error(t, err)

	m2 := NewMock()
	_, err = m2.Write([]byte("AT\r\n"))
	assert.Error(t, err)
}

func TestMockPushAndErrors(t *testing.T) {
	t.Parallel()

	m := NewMock()
	m.Push("\r\n+CSONMI: 1,4,abcd\r\n")
	m.InjectReadError(ErrTimeoutT{})
	buf := make([]byte, 64)
	_, err := m.Read(buf)
	assert.Equal(t, ErrTimeoutT{}, err)
	n, err := m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "\r\n+CSONMI: 1,4,abcd\r\n", string(buf[:n]))

	require.NoError(t, m.Close())
	assert.True(t, m.Closed())
	_, err = m.Buffered()
	assert.Equal(t, ErrClosed, err)
}
