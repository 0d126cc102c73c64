package dispatcher

import (
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/shmel1k/mysqlrouter/internal/metrics"
	"github.com/shmel1k/mysqlrouter/internal/netio"
)

// relayPollTimeout bounds each Poll call in the relay's readiness loop; a
// Poll that times out with nothing ready is simply issued again. It sets no
// deadline on the connection: the relay runs until either side closes.
const relayPollTimeout = 5 * time.Second

// Relay performs a full-duplex byte copy between two sockets: wait for
// readability on either fd, read up to bufferSize, write all of it to the
// other side (retrying partial writes until drained or the write fails),
// until EOF, a write error, or a peer reset. It always ends with a
// half-shutdown then close of both descriptors.
func Relay(clientFD, backendFD int, bufferSize int, syscalls netio.Syscalls, logger zerolog.Logger, listener string) {
	defer teardown(clientFD, syscalls)
	defer teardown(backendFD, syscalls)

	buf := make([]byte, bufferSize)

	watch := []netio.PollFD{
		{FD: clientFD, Event: netio.PollRead},
		{FD: backendFD, Event: netio.PollRead},
	}

	for {
		results, err := syscalls.Poll(watch, relayPollTimeout)
		if err != nil {
			logger.Debug().Err(err).Msg("relay poll failed, closing connection")
			return
		}

		done := false
		for _, r := range results {
			if !r.Ready {
				continue
			}

			var dst int
			var direction string
			if r.FD == clientFD {
				dst = backendFD
				direction = "client_to_backend"
			} else {
				dst = clientFD
				direction = "backend_to_client"
			}

			n, err := syscalls.Read(r.FD, buf)
			if n > 0 {
				if !writeAll(dst, buf[:n], syscalls) {
					done = true
					break
				}
				metrics.AddRelayedBytes(listener, direction, n)
			}
			if err != nil || n == 0 {
				// EOF (n==0) or any other read error ends the relay once
				// the rest of this ready batch has been drained; a broken
				// pipe on the write side is handled in writeAll.
				done = true
			}
		}
		if done {
			return
		}
	}
}

// writeAll retries partial writes until the buffer is drained or a write
// fails. A failure caused by the peer having reset or closed its side
// (EPIPE/ECONNRESET) is treated as an orderly end of the relay rather than
// a logged error — a broken pipe ends the relay regardless of the
// process's signal disposition.
func writeAll(fd int, buf []byte, syscalls netio.Syscalls) bool {
	for len(buf) > 0 {
		n, err := syscalls.Write(fd, buf)
		if n > 0 {
			buf = buf[n:]
		}
		if err != nil {
			if err == unix.EPIPE || err == unix.ECONNRESET {
				return false
			}
			return false
		}
	}
	return true
}

func teardown(fd int, syscalls netio.Syscalls) {
	_ = syscalls.Shutdown(fd)
	_ = syscalls.Close(fd)
}
