package buffer

import (
	"errors"
	"testing"
)

func TestAppendAndDecapitate(t *testing.T) {
	a := New(0)
	defer a.Release()

	if err := a.AppendString("hello world"); err != nil {
		t.Fatal(err)
	}
	if err := a.Decapitate(6); err != nil {
		t.Fatal(err)
	}
	if got := string(a.Bytes()); got != "world" {
		t.Errorf("got %q want %q", got, "world")
	}

	// dropping everything leaves an empty, still usable buffer
	if err := a.Decapitate(a.Len()); err != nil {
		t.Fatal(err)
	}
	if a.Len() != 0 {
		t.Errorf("got len %d want 0", a.Len())
	}
	if err := a.Append([]byte("again")); err != nil {
		t.Fatal(err)
	}
	if got := string(a.Bytes()); got != "again" {
		t.Errorf("got %q want %q", got, "again")
	}
}

func TestDecapitateOutOfRange(t *testing.T) {
	a := New(0)
	defer a.Release()
	a.AppendString("abc")

	for _, n := range []int{-1, 4} {
		if err := a.Decapitate(n); err == nil {
			t.Errorf("Decapitate(%d): expected error", n)
		}
	}
	if got := string(a.Bytes()); got != "abc" {
		t.Errorf("failed decapitate modified buffer: %q", got)
	}
}

func TestEnsureTailCommit(t *testing.T) {
	a := New(0)
	defer a.Release()
	a.AppendString("ab")

	a.Ensure(8)
	tail := a.Tail()
	if len(tail) < 8 {
		t.Fatalf("tail too small: %d", len(tail))
	}
	n := copy(tail, "cdef")
	if err := a.Commit(n); err != nil {
		t.Fatal(err)
	}
	if got := string(a.Bytes()); got != "abcdef" {
		t.Errorf("got %q want %q", got, "abcdef")
	}
}

func TestLimit(t *testing.T) {
	a := New(4)
	defer a.Release()

	if err := a.AppendString("abc"); err != nil {
		t.Fatal(err)
	}
	if err := a.AppendString("de"); !errors.Is(err, ErrTooLarge) {
		t.Errorf("got %v want ErrTooLarge", err)
	}

	a.Ensure(16)
	copy(a.Tail(), "xyz")
	if err := a.Commit(3); !errors.Is(err, ErrTooLarge) {
		t.Errorf("got %v want ErrTooLarge", err)
	}
	if got := string(a.Bytes()); got != "abc" {
		t.Errorf("rejected growth modified buffer: %q", got)
	}
}

func TestDetach(t *testing.T) {
	a := New(0)
	a.AppendString("frame")
	b := a.Detach()
	a.Release()

	if string(b) != "frame" {
		t.Errorf("got %q want %q", b, "frame")
	}
	// the detached bytes must survive the buffer going back to the pool
	c := New(0)
	defer c.Release()
	c.AppendString("XXXXX")
	if string(b) != "frame" {
		t.Errorf("detached bytes were reused: %q", b)
	}
}

func TestReleaseTwice(t *testing.T) {
	a := New(0)
	a.Release()
	a.Release()
}

func TestFit(t *testing.T) {
	a := New(8)
	defer a.Release()

	if got := a.Fit(100); got != 8 {
		t.Errorf("empty: got %d want 8", got)
	}
	a.AppendString("abcde")
	if got := a.Fit(100); got != 3 {
		t.Errorf("partial: got %d want 3", got)
	}
	if got := a.Fit(2); got != 2 {
		t.Errorf("small read: got %d want 2", got)
	}
	if a.Full() {
		t.Error("reported full below the limit")
	}
	a.AppendString("fgh")
	if got := a.Fit(100); got != 0 || !a.Full() {
		t.Errorf("at limit: got fit %d full %v", got, a.Full())
	}

	unlimited := New(0)
	defer unlimited.Release()
	unlimited.AppendString("abcdefghij")
	if got := unlimited.Fit(4096); got != 4096 || unlimited.Full() {
		t.Errorf("unlimited: got fit %d full %v", got, unlimited.Full())
	}
}
