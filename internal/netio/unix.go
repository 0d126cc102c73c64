package netio

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// Unix is the production Syscalls binding: a non-blocking connect, a poll
// for POLLOUT to learn when it completes, and a getsockopt SO_ERROR to tell
// a successful connect from a refused one.
type Unix struct{}

func (Unix) Socket() (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func (Unix) Connect(fd int, host string, port uint16) error {
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil {
			return err
		}
		ip = ips[0]
	}

	if v4 := ip.To4(); v4 != nil {
		addr := unix.SockaddrInet4{Port: int(port)}
		copy(addr.Addr[:], v4)
		err := unix.Connect(fd, &addr)
		return ignoreInProgress(err)
	}

	v6 := ip.To16()
	if v6 == nil {
		return fmt.Errorf("netio: unresolvable host %q", host)
	}
	addr := unix.SockaddrInet6{Port: int(port)}
	copy(addr.Addr[:], v6)
	return ignoreInProgress(unix.Connect(fd, &addr))
}

func ignoreInProgress(err error) error {
	if err == unix.EINPROGRESS || err == unix.EALREADY || err == unix.EWOULDBLOCK {
		return nil
	}
	return err
}

func (Unix) Poll(fds []PollFD, timeout time.Duration) ([]PollResult, error) {
	pfds := make([]unix.PollFd, len(fds))
	for i, f := range fds {
		var events int16 = unix.POLLIN
		if f.Event == PollWrite {
			events = unix.POLLOUT
		}
		pfds[i] = unix.PollFd{Fd: int32(f.FD), Events: events}
	}

	n, err := unix.Poll(pfds, int(timeout.Milliseconds()))
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	results := make([]PollResult, len(fds))
	for i, p := range pfds {
		results[i] = PollResult{FD: fds[i].FD, Ready: p.Revents&(unix.POLLOUT|unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0}
	}
	return results, nil
}

func (Unix) SocketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

func (Unix) Read(fd int, buf []byte) (int, error) {
	return unix.Read(fd, buf)
}

func (Unix) Write(fd int, buf []byte) (int, error) {
	return unix.Write(fd, buf)
}

func (Unix) Shutdown(fd int) error {
	return unix.Shutdown(fd, unix.SHUT_RDWR)
}

func (Unix) Close(fd int) error {
	return unix.Close(fd)
}
