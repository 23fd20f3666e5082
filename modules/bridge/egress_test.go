package bridge

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/Azure/go-amqp"
	kitlog "github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/infrawatch/sg-bridge/pkg/ring"
)

func encodedMessage(t *testing.T, body []byte) []byte {
	t.Helper()
	b, err := (&amqp.Message{Data: [][]byte{body}}).MarshalBinary()
	require.NoError(t, err)
	return b
}

func udpEgress(t *testing.T) (*Egress, net.PacketConn) {
	t.Helper()

	listener, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	host, port, err := net.SplitHostPort(listener.LocalAddr().String())
	require.NoError(t, err)

	rb, err := ring.New(4, 2048, nil)
	require.NoError(t, err)
	t.Cleanup(rb.Close)

	e := newEgress(Config{
		Domain:   DomainInet,
		InetHost: host,
		InetPort: port,
	}, rb, kitlog.NewNopLogger())
	require.NoError(t, e.openInet())
	t.Cleanup(func() { _ = unix.Close(e.sock) })

	return e, listener
}

func TestForwardSendsBodyVerbatim(t *testing.T) {
	e, listener := udpEgress(t)

	e.forward(encodedMessage(t, []byte("hello")))
	assert.Equal(t, int64(1), e.Sent())

	buf := make([]byte, 2048)
	require.NoError(t, listener.SetReadDeadline(time.Now().Add(time.Second)))
	n, _, err := listener.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), buf[:n])
}

func TestForwardCountsDecodeErrors(t *testing.T) {
	e, _ := udpEgress(t)

	e.forward([]byte("this is not an amqp message"))
	assert.Equal(t, int64(1), e.DecodeErrors())
	assert.Equal(t, int64(0), e.Sent())
}

func TestForwardSkipsEmptyBody(t *testing.T) {
	e, _ := udpEgress(t)

	b, err := (&amqp.Message{Value: "not binary"}).MarshalBinary()
	require.NoError(t, err)

	e.forward(b)
	assert.Equal(t, int64(0), e.Sent())
	assert.Equal(t, int64(0), e.DecodeErrors())
}

func TestForwardCountsWouldBlock(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})

	e := &Egress{
		logger:    kitlog.NewNopLogger(),
		sock:      fds[0],
		connected: true,
		flags:     unix.MSG_DONTWAIT,
	}

	// nobody reads fds[1]: the send buffer must eventually push back
	slot := encodedMessage(t, make([]byte, 1024))
	attempts := int64(0)
	for i := 0; i < 10000 && e.WouldBlock() == 0; i++ {
		e.forward(slot)
		attempts++
	}

	assert.Greater(t, e.WouldBlock(), int64(0))
	assert.Equal(t, attempts, e.Sent()+e.WouldBlock())
	assert.Equal(t, int64(0), e.DecodeErrors())
}

func TestRunningDrainsRingUntilClosed(t *testing.T) {
	e, listener := udpEgress(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error)
	go func() {
		done <- e.running(ctx)
	}()

	require.True(t, e.rb.Append(encodedMessage(t, []byte("one"))))
	require.True(t, e.rb.Commit())

	buf := make([]byte, 2048)
	require.NoError(t, listener.SetReadDeadline(time.Now().Add(time.Second)))
	n, _, err := listener.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), buf[:n])

	e.rb.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("egress did not stop on ring close")
	}
}
