package dispatcher

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shmel1k/mysqlrouter/internal/cluster"
	"github.com/shmel1k/mysqlrouter/internal/netio"
	"github.com/shmel1k/mysqlrouter/internal/quarantine"
)

func destAt(port uint16) cluster.Destination {
	return cluster.Destination{Host: "10.0.0.1", Port: port}
}

func newDispatcher(syscalls netio.Syscalls, reg *quarantine.Registry) *Dispatcher {
	cfg := Config{
		Name:                 "test",
		ConnectTimeout:       time.Second,
		ClientConnectTimeout: time.Second,
		MaxConnections:       4,
		NetBufferLength:      4096,
	}
	return New(cfg, nil, reg, syscalls, zerolog.Nop())
}

func TestConnectToCandidateReturnsFirstSuccessful(t *testing.T) {
	fake := netio.NewFake()
	fake.Refuse("10.0.0.1", 1)

	reg := quarantine.New(1)
	d := newDispatcher(fake, reg)

	fd, ok := d.connectToCandidate(context.Background(), []cluster.Destination{destAt(1), destAt(2)})

	require.True(t, ok)
	assert.NotEqual(t, -1, fd)
	assert.True(t, reg.IsQuarantined(destAt(1)))
	assert.False(t, reg.IsQuarantined(destAt(2)))
}

func TestConnectToCandidateExhaustsAllCandidates(t *testing.T) {
	fake := netio.NewFake()
	fake.Refuse("10.0.0.1", 1)
	fake.Refuse("10.0.0.1", 2)

	reg := quarantine.New(1)
	d := newDispatcher(fake, reg)

	_, ok := d.connectToCandidate(context.Background(), []cluster.Destination{destAt(1), destAt(2)})

	assert.False(t, ok)
	assert.True(t, reg.IsQuarantined(destAt(1)))
	assert.True(t, reg.IsQuarantined(destAt(2)))
}

func TestConnectToCandidateNoCandidates(t *testing.T) {
	fake := netio.NewFake()
	d := newDispatcher(fake, quarantine.New(1))

	_, ok := d.connectToCandidate(context.Background(), nil)

	assert.False(t, ok)
}

func TestTryConnectTimesOut(t *testing.T) {
	fake := netio.NewFake()
	fake.Timeout("10.0.0.1", 1)

	d := newDispatcher(fake, quarantine.New(1))

	_, err := d.tryConnect(context.Background(), destAt(1))

	require.Error(t, err)
	_, isTimeout := err.(errConnectTimeout)
	assert.True(t, isTimeout)
}

// fixedSelector always returns the same candidate list, used to drive an
// end-to-end Serve test against real loopback sockets.
type fixedSelector struct {
	candidates []cluster.Destination
}

func (f fixedSelector) Candidates() []cluster.Destination { return f.candidates }

func TestServeRelaysAcceptedConnectionToBackend(t *testing.T) {
	backendLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer backendLn.Close()

	backendAddr := backendLn.Addr().(*net.TCPAddr)
	go func() {
		conn, err := backendLn.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		_, _ = conn.Write(buf[:n])
	}()

	sel := fixedSelector{candidates: []cluster.Destination{
		{Host: "127.0.0.1", Port: uint16(backendAddr.Port)},
	}}

	cfg := Config{
		Name:                 "test",
		ConnectTimeout:       2 * time.Second,
		ClientConnectTimeout: 2 * time.Second,
		MaxConnections:       4,
		NetBufferLength:      4096,
	}
	d := New(cfg, sel, quarantine.New(3), netio.Unix{}, zerolog.Nop())

	frontLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer frontLn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = d.Serve(ctx, frontLn) }()

	client, err := net.Dial("tcp", frontLn.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("ping"))
	require.NoError(t, err)

	_ = client.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 64)
	n, err := io.ReadFull(client, buf[:4])
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))
}
