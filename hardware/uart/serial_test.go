package uart

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/nbiot/log2"
)

type pipePort struct {
	r *io.PipeReader
	w io.Writer
}

func (self pipePort) Read(p []byte) (int, error)  { return self.r.Read(p) }
func (self pipePort) Write(p []byte) (int, error) { return self.w.Write(p) }
func (self pipePort) Close() error                { return self.r.Close() }

func TestSerialReadLoop(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	sink := &mockSink{}
	u := NewSerialUart(log2.NewTest(t, log2.LDebug), 10*time.Millisecond)
	u.start(pipePort{r: pr, w: sink})

	n, err := u.Buffered()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	buf := make([]byte, 32)
	n, err = u.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "poll interval with no data returns (0,nil)")

	go pw.Write([]byte("\r\nOK\r\n"))
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if n, _ = u.Buffered(); n == 6 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, 6, n)
	n, err = u.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "\r\nOK\r\n", string(buf[:n]))

	_, err = u.Write([]byte("AT\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "AT\r\n", sink.String())

	require.NoError(t, u.Close())
	_, err = u.Read(buf)
	assert.Equal(t, ErrClosed, err)
}

type mockSink struct{ b []byte }

func (self *mockSink) Write(p []byte) (int, error) { self.b = append(self.b, p...); return len(p), nil }
func (self *mockSink) String() string              { return string(self.b) }
