// Package netio is the narrow socket capability the dispatcher and relay
// depend on instead of a process-wide platform shim: socket, connect, poll,
// read, write, close. Production code binds it to golang.org/x/sys/unix;
// tests bind it to the in-memory Fake in fake.go.
package netio

import "time"

// PollEvent mirrors the subset of poll(2) events this package's callers
// need: writability (connect completion) and readability (relay).
type PollEvent int

const (
	PollWrite PollEvent = iota
	PollRead
)

// PollFD is one descriptor to wait on and the event it's being watched for.
type PollFD struct {
	FD    int
	Event PollEvent
}

// PollResult reports which watched descriptors became ready.
type PollResult struct {
	FD    int
	Ready bool
}

// Syscalls is the capability the dispatcher (non-blocking connect) and the
// relay (bidirectional copy) are parameterized over.
type Syscalls interface {
	// Socket creates a non-blocking TCP socket, unconnected.
	Socket() (fd int, err error)

	// Connect begins a non-blocking connect to host:port on fd. A nil error
	// means either immediate success or, far more commonly for a
	// non-blocking socket, that the connect is in progress — callers must
	// still Poll for writability and check SocketError.
	Connect(fd int, host string, port uint16) error

	// Poll waits up to timeout for fds to become ready, returning the
	// subset that are. A zero-length result with a nil error means timeout.
	Poll(fds []PollFD, timeout time.Duration) ([]PollResult, error)

	// SocketError returns the pending error on fd (SO_ERROR), or nil if
	// the socket is healthy. Used after Poll reports writability to tell a
	// successful connect from a refused one.
	SocketError(fd int) error

	Read(fd int, buf []byte) (int, error)
	Write(fd int, buf []byte) (int, error)

	// Shutdown performs a full-duplex shutdown (both directions) ahead of
	// Close, so a blocked peer read/write unblocks instead of waiting for an
	// fd that's about to disappear.
	Shutdown(fd int) error
	Close(fd int) error
}
