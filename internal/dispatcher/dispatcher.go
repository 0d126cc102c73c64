// Package dispatcher is the accept loop: per client connection it pulls a
// candidate destination list from a selector, performs a time-bounded
// non-blocking connect to each candidate in turn with failover, tracks
// per-destination quarantine, and hands the winning pair off to the relay.
// It depends on a narrow netio.Syscalls capability instead of reaching for
// process-wide socket state, so tests can substitute a fake.
package dispatcher

import (
	"context"
	"net"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/shmel1k/mysqlrouter/internal/cluster"
	"github.com/shmel1k/mysqlrouter/internal/metrics"
	"github.com/shmel1k/mysqlrouter/internal/netio"
	"github.com/shmel1k/mysqlrouter/internal/quarantine"
	"github.com/shmel1k/mysqlrouter/internal/selector"
)

// Config bounds a Dispatcher's behavior.
type Config struct {
	Name                 string // listener identity, used for metrics labels
	ConnectTimeout       time.Duration
	ClientConnectTimeout time.Duration
	MaxConnections       int
	NetBufferLength      int
}

// Dispatcher is one accept loop bound to one listener, one selector and one
// quarantine registry.
type Dispatcher struct {
	cfg        Config
	selector   selector.Selector
	quarantine *quarantine.Registry
	syscalls   netio.Syscalls
	logger     zerolog.Logger

	sem chan struct{}
}

// New builds a Dispatcher. syscalls is normally netio.Unix{}; tests pass a
// *netio.Fake.
func New(cfg Config, sel selector.Selector, reg *quarantine.Registry, syscalls netio.Syscalls, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:        cfg,
		selector:   sel,
		quarantine: reg,
		syscalls:   syscalls,
		logger:     logger,
		sem:        make(chan struct{}, cfg.MaxConnections),
	}
}

// Serve runs the accept loop on ln until ctx is cancelled or ln is closed.
func (d *Dispatcher) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}

		go d.handle(ctx, conn)
	}
}

func (d *Dispatcher) handle(ctx context.Context, client net.Conn) {
	select {
	case d.sem <- struct{}{}:
	default:
		// At max_connections, reject immediately rather than queue.
		_ = client.Close()
		return
	}
	defer func() { <-d.sem }()

	metrics.IncActiveConnections(d.cfg.Name)
	defer metrics.DecActiveConnections(d.cfg.Name)

	dispatchCtx, cancel := context.WithTimeout(ctx, d.cfg.ClientConnectTimeout)
	defer cancel()

	backendFD, ok := d.connectToCandidate(dispatchCtx, d.selector.Candidates())
	if !ok {
		_ = client.Close()
		return
	}

	clientFD, err := fdOf(client)
	if err != nil {
		d.logger.Error().Err(err).Msg("client connection has no accessible file descriptor; closing")
		_ = d.syscalls.Close(backendFD)
		_ = client.Close()
		return
	}
	// clientFD is a dup of client's fd; release the net.Conn wrapper now so
	// the relay owns the only remaining reference to the client socket.
	_ = client.Close()

	Relay(clientFD, backendFD, d.cfg.NetBufferLength, d.syscalls, d.logger, d.cfg.Name)
}

// connectToCandidate tries each candidate in order, returning the first
// successfully connected backend file descriptor.
func (d *Dispatcher) connectToCandidate(ctx context.Context, candidates []cluster.Destination) (int, bool) {
	for _, dest := range candidates {
		fd, err := d.tryConnect(ctx, dest)
		if err != nil {
			d.quarantine.RecordFailure(dest)
			continue
		}
		d.quarantine.RecordSuccess(dest)
		return fd, true
	}
	return -1, false
}

func (d *Dispatcher) tryConnect(ctx context.Context, dest cluster.Destination) (int, error) {
	fd, err := d.syscalls.Socket()
	if err != nil {
		return -1, err
	}

	if err := d.syscalls.Connect(fd, dest.Host, dest.Port); err != nil {
		_ = d.syscalls.Close(fd)
		return -1, err
	}

	timeout := d.cfg.ConnectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	results, err := d.syscalls.Poll([]netio.PollFD{{FD: fd, Event: netio.PollWrite}}, timeout)
	if err != nil {
		_ = d.syscalls.Close(fd)
		return -1, err
	}
	if len(results) == 0 {
		// Poll returned zero ready descriptors: the connect attempt timed out.
		_ = d.syscalls.Close(fd)
		return -1, errConnectTimeout{dest}
	}

	if err := d.syscalls.SocketError(fd); err != nil {
		_ = d.syscalls.Close(fd)
		return -1, err
	}

	return fd, nil
}

type errConnectTimeout struct {
	dest cluster.Destination
}

func (e errConnectTimeout) Error() string {
	return "connect to " + e.dest.String() + " timed out"
}

// fdOf extracts the raw file descriptor backing a net.Conn returned by
// net.Listener.Accept, so the relay can hand it to the netio.Syscalls
// capability alongside the backend's non-blocking-connect fd.
func fdOf(conn net.Conn) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1, errNoSyscallConn{conn}
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return -1, err
	}

	var fd int
	var ctrlErr error
	err = raw.Control(func(p uintptr) {
		dup, dupErr := unix.Dup(int(p))
		if dupErr != nil {
			ctrlErr = dupErr
			return
		}
		fd = dup
	})
	if err != nil {
		return -1, err
	}
	if ctrlErr != nil {
		return -1, ctrlErr
	}
	return fd, nil
}

type errNoSyscallConn struct {
	conn net.Conn
}

func (e errNoSyscallConn) Error() string {
	return "dispatcher: connection type does not expose a raw file descriptor"
}
