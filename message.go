package sserelay

import (
	"bytes"

	"github.com/mroth/sserelay/internal/buffer"
)

const dataField = "data: "

// FormatData formats payload as a single Server-Sent Event.
//
// Every line of payload becomes its own "data: " field so that multi-line
// payloads arrive as one event; line feeds are kept, carriage returns are not
// treated specially. The event is terminated by a blank line, so an empty
// payload still yields "data: \n\n".
func FormatData(payload []byte) []byte {
	frame, err := newFrame(payload)
	if err != nil {
		// frames are unbounded
		panic(err)
	}
	defer frame.Release()
	return frame.Detach()
}

// newFrame formats payload into pooled storage. The caller owns the returned
// buffer and must Release it once the frame has been written.
func newFrame(payload []byte) (*buffer.Accumulator, error) {
	frame := buffer.New(0)
	lines := bytes.Count(payload, []byte{'\n'}) + 1
	frame.Ensure(lines*len(dataField) + len(payload) + 2)

	if err := appendData(frame, payload); err != nil {
		frame.Release()
		return nil, err
	}
	return frame, nil
}

func appendData(frame *buffer.Accumulator, payload []byte) error {
	for {
		i := bytes.IndexByte(payload, '\n')
		if i < 0 {
			break
		}
		if err := frame.AppendString(dataField); err != nil {
			return err
		}
		if err := frame.Append(payload[:i+1]); err != nil {
			return err
		}
		payload = payload[i+1:]
	}
	if err := frame.AppendString(dataField); err != nil {
		return err
	}
	if err := frame.Append(payload); err != nil {
		return err
	}
	return frame.AppendString("\n\n")
}
