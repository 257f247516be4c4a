// Package resp implements the subset of the Redis serialization protocol needed
// to subscribe to a pub/sub channel and decode the events pushed back.
//
// Decoding is stateless: every call starts from the first byte of the buffer it
// is given. A buffer that ends in the middle of a value yields ErrIncomplete and
// the caller is expected to offer the same bytes again, plus whatever arrived
// since, on the next attempt.
package resp

import (
	"errors"
	"fmt"
	"math"
)

// RESP type prefixes
const (
	SimpleString = '+'
	Error        = '-'
	Integer      = ':'
	BulkString   = '$'
	Array        = '*'
)

// maxDepth bounds nested arrays so hostile input cannot exhaust the stack.
const maxDepth = 32

var (
	// ErrIncomplete means the buffer holds a prefix of a valid value.
	ErrIncomplete = errors.New("resp: incomplete value")
	// ErrMalformed means the buffer can never become a valid value.
	ErrMalformed = errors.New("resp: malformed value")
)

// Value is a single decoded RESP value.
//
// Str aliases the decoded buffer; it is only valid as long as that buffer is
// left untouched. For arrays Int holds the element count and the elements
// themselves are not retained.
type Value struct {
	Type byte
	Int  int64
	Str  []byte
}

// Decode decodes one value from the head of b and reports the number of bytes
// it occupies. The returned error is nil, ErrIncomplete, or wraps ErrMalformed.
func Decode(b []byte) (Value, int, error) {
	return decode(b, 0)
}

func decode(b []byte, depth int) (Value, int, error) {
	if len(b) == 0 {
		return Value{}, 0, ErrIncomplete
	}
	v := Value{Type: b[0]}
	body := b[1:]

	var (
		n   int
		err error
	)
	switch v.Type {
	case SimpleString, Error:
		v.Str, n, err = line(body)
	case Integer:
		v.Int, n, err = integer(body)
	case BulkString:
		v.Str, v.Int, n, err = bulk(body)
	case Array:
		v.Int, n, err = array(body, depth)
	default:
		return Value{}, 0, fmt.Errorf("%w: unknown type byte %q", ErrMalformed, v.Type)
	}
	if err != nil {
		return Value{}, 0, err
	}
	return v, n + 1, nil
}

// line scans up to the first CRLF. The text in between is not interpreted.
func line(b []byte) ([]byte, int, error) {
	for i := 0; i < len(b); i++ {
		if b[i] != '\r' {
			continue
		}
		if i+1 == len(b) {
			return nil, 0, ErrIncomplete
		}
		if b[i+1] != '\n' {
			return nil, 0, fmt.Errorf("%w: expected LF after CR", ErrMalformed)
		}
		return b[:i], i + 2, nil
	}
	return nil, 0, ErrIncomplete
}

// integer parses an optionally negative run of digits terminated by CRLF.
func integer(b []byte) (int64, int, error) {
	i := 0
	neg := false
	if len(b) > 0 && b[0] == '-' {
		neg = true
		i++
	}

	var num int64
	digits := 0
	for {
		if i == len(b) {
			return 0, 0, ErrIncomplete
		}
		c := b[i]
		if c == '\r' {
			break
		}
		if c < '0' || c > '9' {
			return 0, 0, fmt.Errorf("%w: non-digit %q in integer", ErrMalformed, c)
		}
		d := int64(c - '0')
		if num > (math.MaxInt64-d)/10 {
			return 0, 0, fmt.Errorf("%w: integer overflows int64", ErrMalformed)
		}
		num = num*10 + d
		digits++
		i++
	}
	if digits == 0 {
		return 0, 0, fmt.Errorf("%w: integer without digits", ErrMalformed)
	}

	i++ // CR
	if i == len(b) {
		return 0, 0, ErrIncomplete
	}
	if b[i] != '\n' {
		return 0, 0, fmt.Errorf("%w: expected LF after CR", ErrMalformed)
	}
	i++

	if neg {
		num = -num
	}
	return num, i, nil
}

// bulk parses a length header followed by exactly that many raw bytes and CRLF.
func bulk(b []byte) ([]byte, int64, int, error) {
	size, n, err := integer(b)
	if err != nil {
		return nil, 0, 0, err
	}
	if size < 0 {
		return nil, 0, 0, fmt.Errorf("%w: negative bulk length %d", ErrMalformed, size)
	}

	rest := b[n:]
	if int64(len(rest)) <= size {
		return nil, 0, 0, ErrIncomplete
	}
	end := int(size)
	if rest[end] != '\r' {
		return nil, 0, 0, fmt.Errorf("%w: bulk string not terminated by CRLF", ErrMalformed)
	}
	if end+1 == len(rest) {
		return nil, 0, 0, ErrIncomplete
	}
	if rest[end+1] != '\n' {
		return nil, 0, 0, fmt.Errorf("%w: expected LF after CR", ErrMalformed)
	}
	return rest[:end], size, n + end + 2, nil
}

// array parses the element count and then every element in turn. The first
// element that fails decides the outcome for the whole array.
func array(b []byte, depth int) (int64, int, error) {
	if depth >= maxDepth {
		return 0, 0, fmt.Errorf("%w: arrays nested deeper than %d", ErrMalformed, maxDepth)
	}
	count, n, err := integer(b)
	if err != nil {
		return 0, 0, err
	}
	if count < 0 {
		return 0, 0, fmt.Errorf("%w: negative array length %d", ErrMalformed, count)
	}

	for i := int64(0); i < count; i++ {
		_, m, err := decode(b[n:], depth+1)
		if err != nil {
			return 0, 0, err
		}
		n += m
	}
	return count, n, nil
}
