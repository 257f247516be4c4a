//go:build linux

package poll

import (
	"errors"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// FD is a raw non-blocking descriptor. It is not safe for concurrent use.
type FD struct {
	fd int
}

// Fd returns the descriptor number, or -1 once closed.
func (f *FD) Fd() int { return f.fd }

// Read reads into p once. A descriptor with nothing to read yields
// ErrWouldBlock; end of stream yields 0, nil.
func (f *FD) Read(p []byte) (int, error) {
	if f.fd < 0 {
		return 0, ErrClosed
	}
	n, err := unix.Read(f.fd, p)
	if err != nil {
		return 0, ioError(err)
	}
	return n, nil
}

// Write writes from p once, possibly partially.
func (f *FD) Write(p []byte) (int, error) {
	if f.fd < 0 {
		return 0, ErrClosed
	}
	n, err := unix.Write(f.fd, p)
	if err != nil {
		return 0, ioError(err)
	}
	return n, nil
}

// SocketError returns the pending error of a socket, which is how the outcome
// of a non-blocking connect is reported.
func (f *FD) SocketError() error {
	if f.fd < 0 {
		return ErrClosed
	}
	v, err := unix.GetsockoptInt(f.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return fmt.Errorf("poll: getsockopt: %w", err)
	}
	if v != 0 {
		return syscall.Errno(v)
	}
	return nil
}

// Close closes the descriptor. Closing twice is a no-op.
func (f *FD) Close() error {
	if f.fd < 0 {
		return nil
	}
	err := unix.Close(f.fd)
	f.fd = -1
	return err
}

func ioError(err error) error {
	if err == unix.EAGAIN || err == unix.EINTR {
		return ErrWouldBlock
	}
	return err
}

// Dial starts a TCP connect to addr without waiting for it to complete. The
// descriptor becomes writable once the handshake finishes; SocketError then
// reports whether it succeeded.
func Dial(addr string) (*FD, error) {
	raddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}

	var (
		family int
		sa     unix.Sockaddr
	)
	if ip4 := raddr.IP.To4(); ip4 != nil {
		family = unix.AF_INET
		sa4 := &unix.SockaddrInet4{Port: raddr.Port}
		copy(sa4.Addr[:], ip4)
		sa = sa4
	} else {
		family = unix.AF_INET6
		sa6 := &unix.SockaddrInet6{Port: raddr.Port}
		copy(sa6.Addr[:], raddr.IP.To16())
		sa = sa6
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("poll: socket: %w", err)
	}
	unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, &net.OpError{Op: "dial", Net: "tcp", Addr: raddr, Err: err}
	}
	return &FD{fd: fd}, nil
}

// Detach takes the socket behind conn away from the Go runtime poller and
// returns it as a non-blocking FD. conn is closed; the socket stays open.
func Detach(conn net.Conn) (*FD, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil, errors.New("poll: connection does not expose a descriptor")
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return nil, err
	}

	nfd := -1
	var dupErr error
	if err := rc.Control(func(fd uintptr) {
		nfd, dupErr = unix.FcntlInt(fd, unix.F_DUPFD_CLOEXEC, 0)
	}); err != nil {
		return nil, err
	}
	if dupErr != nil {
		return nil, fmt.Errorf("poll: dup: %w", dupErr)
	}
	conn.Close()

	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return nil, fmt.Errorf("poll: set non-blocking: %w", err)
	}
	return &FD{fd: nfd}, nil
}
