//go:build linux

package ws

import (
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Epoll multiplexes read readiness for every registered connection through a
// single kernel epoll instance. The event loop wakes only when a client has
// sent something, so idle sockets cost no goroutines.
type Epoll struct {
	fd     int
	mu     sync.RWMutex
	conns  map[int]*Connection // keyed by socket fd
	events []unix.EpollEvent   // reusable buffer for Wait
}

// NewEpoll creates the epoll instance via epoll_create1.
func NewEpoll() (*Epoll, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &Epoll{
		fd:     fd,
		conns:  make(map[int]*Connection),
		events: make([]unix.EpollEvent, 128),
	}, nil
}

// Add puts the connection's socket on the epoll interest list. EPOLLRDHUP is
// requested alongside EPOLLIN so a peer that half-closes its end wakes the
// loop immediately instead of lingering until the heartbeat notices.
func (e *Epoll) Add(c *Connection) error {
	if err := unix.EpollCtl(e.fd, unix.EPOLL_CTL_ADD, c.Fd, &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLHUP,
		Fd:     int32(c.Fd),
	}); err != nil {
		return err
	}

	e.mu.Lock()
	e.conns[c.Fd] = c
	e.mu.Unlock()
	return nil
}

// Remove takes the connection's socket off the interest list. The map entry
// is cleared even when the kernel call fails: a socket that was already
// closed is deregistered by the kernel on its own.
func (e *Epoll) Remove(c *Connection) error {
	err := unix.EpollCtl(e.fd, unix.EPOLL_CTL_DEL, c.Fd, nil)

	e.mu.Lock()
	delete(e.conns, c.Fd)
	e.mu.Unlock()
	return err
}

// Wait blocks until at least one registered socket is readable and returns
// the matching connections. Sockets removed between the kernel wakeup and
// the map lookup are skipped.
func (e *Epoll) Wait() ([]*Connection, error) {
	n, err := unix.EpollWait(e.fd, e.events, -1)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	ready := make([]*Connection, 0, n)
	for i := 0; i < n; i++ {
		if c, ok := e.conns[int(e.events[i].Fd)]; ok {
			ready = append(ready, c)
		}
	}
	e.mu.RUnlock()
	return ready, nil
}

// Close releases the epoll file descriptor.
func (e *Epoll) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conns = nil
	return unix.Close(e.fd)
}

// socketFD digs the file descriptor out of a net.Conn without duplicating it
// the way File() would, so the original stays valid for epoll registration.
func socketFD(conn net.Conn) int {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return -1
	}

	var fd int
	_ = raw.Control(func(sfd uintptr) {
		fd = int(sfd)
	})
	return fd
}
