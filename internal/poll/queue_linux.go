//go:build linux

package poll

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	readEvents  = unix.EPOLLIN | unix.EPOLLRDHUP
	writeEvents = unix.EPOLLOUT
)

// Queue is a level-triggered epoll instance that tracks which operations each
// registered descriptor is interested in.
//
// All methods except Wake must be called from a single goroutine.
type Queue struct {
	epfd     int
	wakefd   int
	interest map[int]uint32
	events   []unix.EpollEvent
}

// NewQueue creates an event queue able to report up to batch events per Wait.
func NewQueue(batch int) (*Queue, error) {
	if batch <= 0 {
		batch = 128
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("poll: epoll_create1: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("poll: eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, fmt.Errorf("poll: register eventfd: %w", err)
	}
	return &Queue{
		epfd:     epfd,
		wakefd:   wakefd,
		interest: make(map[int]uint32),
		events:   make([]unix.EpollEvent, batch),
	}, nil
}

// AddRead adds read interest for fd.
func (q *Queue) AddRead(fd int) error { return q.set(fd, q.interest[fd]|readEvents) }

// AddWrite adds write interest for fd.
func (q *Queue) AddWrite(fd int) error { return q.set(fd, q.interest[fd]|writeEvents) }

// DelRead removes read interest for fd.
func (q *Queue) DelRead(fd int) error { return q.set(fd, q.interest[fd]&^readEvents) }

// ReadToWrite replaces read interest for fd with write interest.
func (q *Queue) ReadToWrite(fd int) error {
	return q.set(fd, q.interest[fd]&^readEvents|writeEvents)
}

// WriteToRead replaces write interest for fd with read interest.
func (q *Queue) WriteToRead(fd int) error {
	return q.set(fd, q.interest[fd]&^writeEvents|readEvents)
}

// Remove drops every interest for fd.
func (q *Queue) Remove(fd int) error { return q.set(fd, 0) }

func (q *Queue) set(fd int, mask uint32) error {
	old, registered := q.interest[fd]
	var op int
	switch {
	case mask == 0 && !registered:
		return nil
	case mask == 0:
		delete(q.interest, fd)
		if err := unix.EpollCtl(q.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
			return fmt.Errorf("poll: epoll_ctl del %d: %w", fd, err)
		}
		return nil
	case !registered:
		op = unix.EPOLL_CTL_ADD
	case old == mask:
		return nil
	default:
		op = unix.EPOLL_CTL_MOD
	}

	ev := unix.EpollEvent{Events: mask, Fd: int32(fd)}
	if err := unix.EpollCtl(q.epfd, op, fd, &ev); err != nil {
		return fmt.Errorf("poll: epoll_ctl %d: %w", fd, err)
	}
	q.interest[fd] = mask
	return nil
}

// Wait blocks until at least one descriptor is ready, Wake is called, or
// timeout milliseconds pass (-1 waits forever). Ready descriptors are appended
// to ready[:0]; the wake-up descriptor is never reported.
func (q *Queue) Wait(ready []int, timeout int) ([]int, error) {
	ready = ready[:0]
	n, err := unix.EpollWait(q.epfd, q.events, timeout)
	if err != nil {
		if err == unix.EINTR {
			return ready, nil
		}
		return ready, fmt.Errorf("poll: epoll_wait: %w", err)
	}
	for _, ev := range q.events[:n] {
		fd := int(ev.Fd)
		if fd == q.wakefd {
			q.drainWake()
			continue
		}
		ready = append(ready, fd)
	}
	return ready, nil
}

// Wake interrupts a pending Wait. It is safe to call from any goroutine.
func (q *Queue) Wake() error {
	var one = [8]byte{1}
	_, err := unix.Write(q.wakefd, one[:])
	if err != nil && err != unix.EAGAIN {
		return fmt.Errorf("poll: wake: %w", err)
	}
	return nil
}

func (q *Queue) drainWake() {
	var b [8]byte
	unix.Read(q.wakefd, b[:])
}

// Close releases the epoll instance. Registered descriptors are not closed.
func (q *Queue) Close() error {
	q.interest = nil
	err := unix.Close(q.epfd)
	unix.Close(q.wakefd)
	return err
}
