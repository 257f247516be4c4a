// Package buffer provides the growable byte buffers a relay session reads
// upstream bytes into and builds outbound frames with.
package buffer

import (
	"errors"
	"fmt"

	"github.com/valyala/bytebufferpool"
)

// ErrTooLarge is returned when growing a buffer would exceed its limit.
var ErrTooLarge = errors.New("buffer: size limit exceeded")

var pool bytebufferpool.Pool

// Accumulator is an append-only buffer whose head can be dropped once the
// bytes there have been consumed.
//
// An Accumulator is not safe for concurrent use.
type Accumulator struct {
	b     *bytebufferpool.ByteBuffer
	limit int
}

// New returns an empty Accumulator backed by pooled storage. A positive limit
// caps the number of bytes it may hold.
func New(limit int) *Accumulator {
	return &Accumulator{b: pool.Get(), limit: limit}
}

// Bytes returns the buffered bytes. The slice aliases the buffer and is
// invalidated by any call that modifies it.
func (a *Accumulator) Bytes() []byte { return a.b.B }

// Len returns the number of buffered bytes.
func (a *Accumulator) Len() int { return len(a.b.B) }

// Append copies p to the tail of the buffer.
func (a *Accumulator) Append(p []byte) error {
	if err := a.check(len(p)); err != nil {
		return err
	}
	a.b.B = append(a.b.B, p...)
	return nil
}

// AppendString copies s to the tail of the buffer.
func (a *Accumulator) AppendString(s string) error {
	if err := a.check(len(s)); err != nil {
		return err
	}
	a.b.B = append(a.b.B, s...)
	return nil
}

// Ensure grows the buffer so at least n more bytes fit without reallocating.
func (a *Accumulator) Ensure(n int) {
	if cap(a.b.B)-len(a.b.B) >= n {
		return
	}
	grown := make([]byte, len(a.b.B), len(a.b.B)+n)
	copy(grown, a.b.B)
	a.b.B = grown
}

// Fit returns how many of the next n bytes fit under the limit.
func (a *Accumulator) Fit(n int) int {
	if a.limit <= 0 {
		return n
	}
	return max(0, min(n, a.limit-len(a.b.B)))
}

// Full reports whether the buffer holds as many bytes as its limit allows.
func (a *Accumulator) Full() bool {
	return a.limit > 0 && len(a.b.B) >= a.limit
}

// Tail returns the unused capacity at the end of the buffer, to be filled by a
// read and then claimed with Commit.
func (a *Accumulator) Tail() []byte {
	return a.b.B[len(a.b.B):cap(a.b.B)]
}

// Commit extends the buffer over n bytes previously written into Tail.
func (a *Accumulator) Commit(n int) error {
	if err := a.check(n); err != nil {
		return err
	}
	a.b.B = a.b.B[:len(a.b.B)+n]
	return nil
}

// Decapitate drops the first n bytes, sliding any remaining bytes to the head.
func (a *Accumulator) Decapitate(n int) error {
	if n < 0 || n > len(a.b.B) {
		return fmt.Errorf("buffer: cannot drop %d of %d bytes", n, len(a.b.B))
	}
	rest := copy(a.b.B, a.b.B[n:])
	a.b.B = a.b.B[:rest]
	return nil
}

// Detach transfers ownership of the buffered bytes to the caller and leaves
// the Accumulator empty.
func (a *Accumulator) Detach() []byte {
	b := a.b.B
	a.b.B = nil
	return b
}

// Release returns the storage to the pool. The Accumulator must not be used
// afterwards.
func (a *Accumulator) Release() {
	if a.b == nil {
		return
	}
	a.b.Reset()
	pool.Put(a.b)
	a.b = nil
}

func (a *Accumulator) check(grow int) error {
	if a.limit > 0 && len(a.b.B)+grow > a.limit {
		return fmt.Errorf("%w: %d+%d bytes over %d", ErrTooLarge, len(a.b.B), grow, a.limit)
	}
	return nil
}
