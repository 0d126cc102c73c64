package netio

import (
	"errors"
	"io"
	"sync"
	"time"
)

// ErrRefused is returned by Fake's SocketError for fds configured to fail.
var ErrRefused = errors.New("netio: connection refused")

// Fake is an in-memory Syscalls implementation for tests: no real sockets
// are opened. Destinations are identified by "host:port" and routed to
// either an always-failing outcome or a pipe-backed connection, so dispatch
// and relay logic can be exercised without a network.
type Fake struct {
	mu sync.Mutex

	refused map[string]bool  // host:port -> always fail to connect
	timeout map[string]bool  // host:port -> connect attempt always times out (Poll returns empty)
	conns   map[int]*fakeConn
	nextFD  int
}

type fakeConn struct {
	addr   string
	reader io.Reader
	writer io.Writer
	closed bool
	err    error
}

// NewFake builds an empty Fake. Use Refuse/Timeout/Accept to script behavior
// before handing it to a dispatcher or relay under test.
func NewFake() *Fake {
	return &Fake{
		refused: map[string]bool{},
		timeout: map[string]bool{},
		conns:   map[int]*fakeConn{},
		nextFD:  3,
	}
}

func key(host string, port uint16) string {
	return host + ":" + itoa(port)
}

func itoa(p uint16) string {
	// avoid importing strconv in a file this small; fmt.Sprintf would work
	// equally well but this keeps the fake dependency-free.
	if p == 0 {
		return "0"
	}
	digits := [5]byte{}
	i := len(digits)
	for p > 0 {
		i--
		digits[i] = byte('0' + p%10)
		p /= 10
	}
	return string(digits[i:])
}

// Refuse marks host:port as always refusing connections.
func (f *Fake) Refuse(host string, port uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refused[key(host, port)] = true
}

// Timeout marks host:port as never completing a connect within Poll's wait.
func (f *Fake) Timeout(host string, port uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeout[key(host, port)] = true
}

// Accept wires host:port to a connected pair of pipes, r for Read and w for
// Write on the accepted side.
func (f *Fake) Accept(host string, port uint16, r io.Reader, w io.Writer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns[f.reserveFD()] = &fakeConn{addr: key(host, port), reader: r, writer: w}
}

func (f *Fake) reserveFD() int {
	fd := f.nextFD
	f.nextFD++
	return fd
}

func (f *Fake) Socket() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fd := f.nextFD
	f.nextFD++
	f.conns[fd] = &fakeConn{}
	return fd, nil
}

func (f *Fake) Connect(fd int, host string, port uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conns[fd]
	if !ok {
		return errors.New("netio: unknown fd")
	}
	c.addr = key(host, port)
	if f.refused[c.addr] {
		c.err = ErrRefused
	}
	for _, other := range f.conns {
		if other != c && other.addr == c.addr && (other.reader != nil || other.writer != nil) {
			c.reader, c.writer = other.reader, other.writer
			break
		}
	}
	return nil
}

func (f *Fake) Poll(fds []PollFD, timeout time.Duration) ([]PollResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]PollResult, 0, len(fds))
	for _, pf := range fds {
		c, ok := f.conns[pf.FD]
		if !ok {
			continue
		}
		if f.timeout[c.addr] {
			continue // simulate a poll timeout: fd never reported ready
		}
		out = append(out, PollResult{FD: pf.FD, Ready: true})
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func (f *Fake) SocketError(fd int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conns[fd]
	if !ok {
		return errors.New("netio: unknown fd")
	}
	return c.err
}

func (f *Fake) Read(fd int, buf []byte) (int, error) {
	f.mu.Lock()
	c, ok := f.conns[fd]
	f.mu.Unlock()
	if !ok || c.reader == nil {
		return 0, io.EOF
	}
	return c.reader.Read(buf)
}

func (f *Fake) Write(fd int, buf []byte) (int, error) {
	f.mu.Lock()
	c, ok := f.conns[fd]
	f.mu.Unlock()
	if !ok || c.writer == nil {
		return 0, io.ErrClosedPipe
	}
	return c.writer.Write(buf)
}

func (f *Fake) Shutdown(fd int) error {
	return nil
}

func (f *Fake) Close(fd int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conns[fd]
	if !ok {
		return nil
	}
	c.closed = true
	return nil
}

// SetupPipe attaches r/w to an fd already created by Socket, for tests that
// drive the relay directly against known file descriptors rather than going
// through Connect.
func (f *Fake) SetupPipe(fd int, r io.Reader, w io.Writer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conns[fd]
	if !ok {
		c = &fakeConn{}
		f.conns[fd] = c
	}
	c.reader = r
	c.writer = w
}

// IsClosed reports whether Close has been called on fd.
func (f *Fake) IsClosed(fd int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conns[fd]
	if !ok {
		return false
	}
	return c.closed
}
