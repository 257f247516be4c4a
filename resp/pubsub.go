package resp

import (
	"bytes"
	"fmt"
)

var messageKind = []byte("message")

// Push is a pub/sub event decoded from the head of a buffer.
type Push struct {
	// N is the number of bytes the whole event occupies.
	N int
	// Kind is the event subtype, e.g. "message" or "subscribe".
	Kind []byte
	// Channel and Payload are only set for "message" events.
	Channel []byte
	Payload []byte
}

// IsMessage reports whether the event carries a published payload, as opposed
// to a subscription confirmation that should be skipped.
func (p Push) IsMessage() bool {
	return bytes.Equal(p.Kind, messageKind)
}

// ExtractPush decodes the pub/sub event at the head of b.
//
// Events are three element arrays whose first element is a bulk string naming
// the event. For "message" events the remaining two elements must be bulk
// strings holding the channel and the payload; for anything else they may be
// of any type and are discarded. Kind, Channel and Payload alias b.
func ExtractPush(b []byte) (Push, error) {
	if len(b) == 0 {
		return Push{}, ErrIncomplete
	}
	if b[0] != Array {
		return Push{}, fmt.Errorf("%w: pub/sub event is not an array", ErrMalformed)
	}
	count, n, err := integer(b[1:])
	if err != nil {
		return Push{}, err
	}
	if count != 3 {
		return Push{}, fmt.Errorf("%w: pub/sub event has %d elements", ErrMalformed, count)
	}
	off := 1 + n

	kind, n, err := bulkElement(b[off:])
	if err != nil {
		return Push{}, err
	}
	if len(kind) == 0 {
		return Push{}, fmt.Errorf("%w: empty pub/sub event kind", ErrMalformed)
	}
	off += n
	p := Push{Kind: kind}

	if p.IsMessage() {
		if p.Channel, n, err = bulkElement(b[off:]); err != nil {
			return Push{}, err
		}
		off += n
		if p.Payload, n, err = bulkElement(b[off:]); err != nil {
			return Push{}, err
		}
		off += n
	} else {
		for i := 0; i < 2; i++ {
			if _, n, err = Decode(b[off:]); err != nil {
				return Push{}, err
			}
			off += n
		}
	}

	p.N = off
	return p, nil
}

// bulkElement decodes an array element that is required to be a bulk string.
func bulkElement(b []byte) ([]byte, int, error) {
	if len(b) == 0 {
		return nil, 0, ErrIncomplete
	}
	if b[0] != BulkString {
		return nil, 0, fmt.Errorf("%w: expected bulk string, got %q", ErrMalformed, b[0])
	}
	s, _, n, err := bulk(b[1:])
	if err != nil {
		return nil, 0, err
	}
	return s, n + 1, nil
}
