//go:build !linux

package poll

import "net"

// Queue is unavailable on this platform.
type Queue struct{}

func NewQueue(batch int) (*Queue, error) { return nil, ErrUnsupported }

func (q *Queue) AddRead(fd int) error     { return ErrUnsupported }
func (q *Queue) AddWrite(fd int) error    { return ErrUnsupported }
func (q *Queue) DelRead(fd int) error     { return ErrUnsupported }
func (q *Queue) ReadToWrite(fd int) error { return ErrUnsupported }
func (q *Queue) WriteToRead(fd int) error { return ErrUnsupported }
func (q *Queue) Remove(fd int) error      { return ErrUnsupported }
func (q *Queue) Wake() error              { return ErrUnsupported }
func (q *Queue) Close() error             { return nil }

func (q *Queue) Wait(ready []int, timeout int) ([]int, error) {
	return ready[:0], ErrUnsupported
}

// FD is unavailable on this platform.
type FD struct{}

func (f *FD) Fd() int                     { return -1 }
func (f *FD) Read(p []byte) (int, error)  { return 0, ErrUnsupported }
func (f *FD) Write(p []byte) (int, error) { return 0, ErrUnsupported }
func (f *FD) SocketError() error          { return ErrUnsupported }
func (f *FD) Close() error                { return nil }

func Dial(addr string) (*FD, error)     { return nil, ErrUnsupported }
func Detach(conn net.Conn) (*FD, error) { return nil, ErrUnsupported }
