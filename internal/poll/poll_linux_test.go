//go:build linux

package poll

import (
	"errors"
	"net"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func socketpair(t *testing.T) (*FD, *FD) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatal(err)
	}
	a, b := &FD{fd: fds[0]}, &FD{fd: fds[1]}
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func newQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := NewQueue(16)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func contains(fds []int, fd int) bool {
	for _, f := range fds {
		if f == fd {
			return true
		}
	}
	return false
}

func TestFDReadWouldBlock(t *testing.T) {
	a, b := socketpair(t)

	buf := make([]byte, 16)
	if _, err := a.Read(buf); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("got %v want ErrWouldBlock", err)
	}

	if _, err := b.Write([]byte("ping")); err != nil {
		t.Fatal(err)
	}
	n, err := a.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "ping" {
		t.Errorf("got %q want %q", buf[:n], "ping")
	}

	b.Close()
	if n, err := a.Read(buf); n != 0 || err != nil {
		t.Errorf("end of stream: got (%d, %v) want (0, nil)", n, err)
	}
}

func TestFDCloseTwice(t *testing.T) {
	a, _ := socketpair(t)
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if _, err := a.Read(make([]byte, 1)); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v want ErrClosed", err)
	}
}

func TestQueueReadiness(t *testing.T) {
	q := newQueue(t)
	a, b := socketpair(t)

	if err := q.AddRead(a.Fd()); err != nil {
		t.Fatal(err)
	}
	ready, err := q.Wait(nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if contains(ready, a.Fd()) {
		t.Fatal("descriptor reported readable before any data arrived")
	}

	b.Write([]byte("x"))
	ready, err = q.Wait(ready, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if !contains(ready, a.Fd()) {
		t.Fatalf("expected %d readable, got %v", a.Fd(), ready)
	}

	// a connected socket with an empty send buffer is always writable
	if err := q.ReadToWrite(a.Fd()); err != nil {
		t.Fatal(err)
	}
	if got := q.interest[a.Fd()]; got != writeEvents {
		t.Errorf("interest: got %#x want %#x", got, writeEvents)
	}
	ready, _ = q.Wait(ready, 1000)
	if !contains(ready, a.Fd()) {
		t.Fatalf("expected %d writable, got %v", a.Fd(), ready)
	}

	if err := q.WriteToRead(a.Fd()); err != nil {
		t.Fatal(err)
	}
	if got := q.interest[a.Fd()]; got != readEvents {
		t.Errorf("interest: got %#x want %#x", got, readEvents)
	}

	if err := q.DelRead(a.Fd()); err != nil {
		t.Fatal(err)
	}
	if _, ok := q.interest[a.Fd()]; ok {
		t.Error("descriptor still registered after last interest was removed")
	}
	// removing an unregistered descriptor is a no-op
	if err := q.Remove(a.Fd()); err != nil {
		t.Error(err)
	}
}

func TestQueueWake(t *testing.T) {
	q := newQueue(t)

	done := make(chan []int)
	go func() {
		ready, _ := q.Wait(nil, 5000)
		done <- ready
	}()

	time.Sleep(10 * time.Millisecond)
	if err := q.Wake(); err != nil {
		t.Fatal(err)
	}
	select {
	case ready := <-done:
		if len(ready) != 0 {
			t.Errorf("wake-up reported descriptors %v", ready)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait was not interrupted by Wake")
	}
}

func TestDial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	fd, err := Dial(ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer fd.Close()

	q := newQueue(t)
	if err := q.AddWrite(fd.Fd()); err != nil {
		t.Fatal(err)
	}
	ready, err := q.Wait(nil, 2000)
	if err != nil {
		t.Fatal(err)
	}
	if !contains(ready, fd.Fd()) {
		t.Fatal("connect did not complete")
	}
	if err := fd.SocketError(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	conn, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := fd.Write([]byte("hi")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 2)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(buf); err != nil || string(buf) != "hi" {
		t.Errorf("got (%q, %v)", buf, err)
	}
}

func TestDialBadAddress(t *testing.T) {
	if _, err := Dial("not an address"); err == nil {
		t.Fatal("expected error")
	}
}

func TestDetach(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	server, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}

	fd, err := Detach(server)
	if err != nil {
		t.Fatal(err)
	}
	defer fd.Close()

	// the detached descriptor keeps the connection alive
	client.Write([]byte("hello"))
	q := newQueue(t)
	q.AddRead(fd.Fd())
	if ready, _ := q.Wait(nil, 2000); !contains(ready, fd.Fd()) {
		t.Fatal("detached descriptor never became readable")
	}
	buf := make([]byte, 5)
	n, err := fd.Read(buf)
	if err != nil || string(buf[:n]) != "hello" {
		t.Errorf("got (%q, %v)", buf[:n], err)
	}
}
