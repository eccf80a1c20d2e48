package helpers

import (
	"bytes"
	"io"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkWriter accepts at most n bytes per Write, like a uart with small FIFO.
type chunkWriter struct {
	bytes.Buffer
	n     int
	calls int
}

func (self *chunkWriter) Write(p []byte) (int, error) {
	self.calls++
	if len(p) > self.n {
		p = p[:self.n]
	}
	return self.Buffer.Write(p)
}

type stuckWriter struct{}

func (stuckWriter) Write([]byte) (int, error) { return 0, nil }

func TestWriteAll(t *testing.T) {
	t.Parallel()

	cmd := []byte("AT+CMQPUB=0,\"nbiot/out\",1,0,0,8,\"deadbeef\"\r\n")
	w := &chunkWriter{n: 16}
	require.NoError(t, WriteAll(w, cmd))
	assert.Equal(t, string(cmd), w.String())
	assert.Equal(t, (len(cmd)+15)/16, w.calls)

	assert.NoError(t, WriteAll(w, nil))
	assert.Equal(t, io.ErrShortWrite, WriteAll(stuckWriter{}, cmd))
}

func TestWriteAllError(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	pr.CloseWithError(errors.New("port gone"))
	err := WriteAll(pw, []byte("AT\r\n"))
	assert.EqualError(t, err, "port gone")
}
