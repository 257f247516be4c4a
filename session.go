package sserelay

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mroth/sserelay/internal/buffer"
	"github.com/mroth/sserelay/internal/poll"
	"github.com/mroth/sserelay/resp"
)

var (
	// ErrUpstreamClosed is returned when the pub/sub server closes the connection.
	ErrUpstreamClosed = errors.New("upstream closed the connection")
	// ErrClientGone is returned when the client disconnects or sends data.
	ErrClientGone = errors.New("client went away")
	// ErrUnexpectedEvent is returned for readiness a session never asked for.
	ErrUnexpectedEvent = errors.New("unexpected readiness event")
)

// EventQueue is the set of interest operations a session performs on its
// descriptors. Readiness for registered interests is reported back through
// Session.Handle.
type EventQueue interface {
	AddRead(fd int) error
	AddWrite(fd int) error
	DelRead(fd int) error
	ReadToWrite(fd int) error
	WriteToRead(fd int) error
}

// Descriptor is a non-blocking descriptor. Read and Write must return
// poll.ErrWouldBlock instead of waiting.
type Descriptor interface {
	Fd() int
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// socketErrorer is implemented by descriptors that can report the outcome of
// a non-blocking connect.
type socketErrorer interface {
	SocketError() error
}

// State is the phase a relay session is in.
type State int32

const (
	// StateConnecting waits for the upstream connect to complete.
	StateConnecting State = iota
	// StateSubscribing writes the SUBSCRIBE command upstream.
	StateSubscribing
	// StateWaiting reads upstream until a message is published.
	StateWaiting
	// StateForwarding writes a formatted event to the client.
	StateForwarding
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribing:
		return "subscribing"
	case StateWaiting:
		return "waiting"
	case StateForwarding:
		return "forwarding"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// observer is told about traffic a session relays.
type observer interface {
	relayed(bytes int)
	skipped(kind []byte)
}

// A Session relays one pub/sub channel to one SSE client.
//
// Session is driven entirely by its owner calling Start once and then Handle
// for every readiness event on either descriptor; it is not safe for
// concurrent use, apart from Status.
type Session struct {
	id       string
	route    Route
	upstream Descriptor
	client   Descriptor
	state    atomic.Int32

	// SUBSCRIBE command bytes still to be written
	command []byte
	written int

	// unparsed upstream bytes
	inbound *buffer.Accumulator

	// formatted event being written to the client, owned until fully written
	frame   *buffer.Accumulator
	pos     int
	toWrite int

	created   time.Time
	msgsSent  atomic.Uint64
	path      string
	clientIP  string
	userAgent string

	obs observer
	log zerolog.Logger
}

// NewSession creates a session relaying route.Channel from upstream, a
// descriptor with a connect in flight to route.Server, to client. A positive
// maxMessage bounds the encoded size of a single upstream event.
func NewSession(route Route, upstream, client Descriptor, maxMessage int) *Session {
	if route.BufferSize <= 0 {
		route.BufferSize = DefaultBufferSize
	}
	s := &Session{
		id:       uuid.NewString(),
		route:    route,
		upstream: upstream,
		client:   client,
		command:  resp.Subscribe(route.Channel),
		inbound:  buffer.New(maxMessage),
		created:  time.Now(),
		log:      zerolog.Nop(),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

// ID returns the unique identifier of the session.
func (s *Session) ID() string { return s.id }

// State returns the current phase of the session.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) {
	s.log.Debug().Stringer("from", s.State()).Stringer("to", st).Msg("state change")
	s.state.Store(int32(st))
}

// Start registers interest in the upstream connect completing.
func (s *Session) Start(q EventQueue) error {
	return q.AddWrite(s.upstream.Fd())
}

// Handle advances the session after fd became ready. Any error is fatal: the
// owner must stop calling Handle and Close the session.
func (s *Session) Handle(q EventQueue, fd int) error {
	fromUpstream := fd == s.upstream.Fd()
	fromClient := fd == s.client.Fd()
	if !fromUpstream && !fromClient {
		return fmt.Errorf("%w: descriptor %d does not belong to session", ErrUnexpectedEvent, fd)
	}

	switch st := s.State(); st {
	case StateConnecting:
		if !fromUpstream {
			return s.unexpected("client", st)
		}
		if se, ok := s.upstream.(socketErrorer); ok {
			if err := se.SocketError(); err != nil {
				return fmt.Errorf("connect %s: %w", s.route.Server, err)
			}
		}
		s.setState(StateSubscribing)
		return s.Handle(q, fd)

	case StateSubscribing:
		if !fromUpstream {
			return s.unexpected("client", st)
		}
		return s.subscribe(q)

	case StateWaiting:
		if fromClient {
			// the client has nothing to say on an event stream
			return ErrClientGone
		}
		return s.receive(q)

	case StateForwarding:
		if !fromClient {
			return s.unexpected("upstream", st)
		}
		return s.forward(q)

	default:
		return fmt.Errorf("%w: invalid state %v", ErrUnexpectedEvent, st)
	}
}

func (s *Session) unexpected(side string, st State) error {
	return fmt.Errorf("%w: %s ready while %v", ErrUnexpectedEvent, side, st)
}

func (s *Session) subscribe(q EventQueue) error {
	n, err := s.upstream.Write(s.command[s.written:])
	if err != nil {
		if errors.Is(err, poll.ErrWouldBlock) {
			return nil
		}
		return fmt.Errorf("write SUBSCRIBE to %s: %w", s.route.Server, err)
	}
	s.written += n
	if s.written < len(s.command) {
		return nil
	}
	s.command, s.written = nil, 0

	// from now on any client readiness can only mean a disconnect
	if err := q.AddRead(s.client.Fd()); err != nil {
		return err
	}
	if err := q.WriteToRead(s.upstream.Fd()); err != nil {
		return err
	}
	s.setState(StateWaiting)
	return nil
}

func (s *Session) receive(q EventQueue) error {
	want := s.inbound.Fit(s.route.BufferSize)
	if want == 0 {
		return s.tooLarge()
	}
	s.inbound.Ensure(want)
	n, err := s.upstream.Read(s.inbound.Tail()[:want])
	switch {
	case errors.Is(err, poll.ErrWouldBlock):
		return nil
	case err != nil:
		return fmt.Errorf("read from %s: %w", s.route.Server, err)
	case n == 0:
		return ErrUpstreamClosed
	}
	if err := s.inbound.Commit(n); err != nil {
		return err
	}
	return s.extract(q)
}

// extract consumes buffered events until a message is ready to forward or the
// buffer runs out of complete events.
func (s *Session) extract(q EventQueue) error {
	for s.inbound.Len() > 0 {
		p, err := resp.ExtractPush(s.inbound.Bytes())
		if errors.Is(err, resp.ErrIncomplete) {
			// reads are capped at the limit, so a full buffer holds one event
			if s.inbound.Full() {
				return s.tooLarge()
			}
			return nil
		}
		if err != nil {
			return err
		}

		if !p.IsMessage() {
			s.log.Debug().Bytes("kind", p.Kind).Msg("skipped pub/sub event")
			if s.obs != nil {
				s.obs.skipped(p.Kind)
			}
			if err := s.inbound.Decapitate(p.N); err != nil {
				return err
			}
			continue
		}

		// the payload aliases inbound, so format it before dropping the event
		frame, err := newFrame(p.Payload)
		if err != nil {
			return err
		}
		s.frame = frame
		s.pos, s.toWrite = 0, frame.Len()
		if err := s.inbound.Decapitate(p.N); err != nil {
			return err
		}

		if err := q.DelRead(s.upstream.Fd()); err != nil {
			return err
		}
		if err := q.ReadToWrite(s.client.Fd()); err != nil {
			return err
		}
		s.setState(StateForwarding)
		return nil
	}
	return nil
}

func (s *Session) forward(q EventQueue) error {
	n, err := s.client.Write(s.frame.Bytes()[s.pos:])
	if err != nil {
		if errors.Is(err, poll.ErrWouldBlock) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrClientGone, err)
	}
	s.pos += n
	s.toWrite -= n
	if s.toWrite > 0 {
		return nil
	}

	sent := s.frame.Len()
	s.frame.Release()
	s.frame, s.pos = nil, 0
	s.msgsSent.Add(1)
	if s.obs != nil {
		s.obs.relayed(sent)
	}

	if err := q.WriteToRead(s.client.Fd()); err != nil {
		return err
	}
	if err := q.AddRead(s.upstream.Fd()); err != nil {
		return err
	}
	s.setState(StateWaiting)
	return s.extract(q)
}

func (s *Session) tooLarge() error {
	return fmt.Errorf("%w: event from %s exceeds %d bytes", buffer.ErrTooLarge, s.route.Server, s.inbound.Len())
}

// Close closes both descriptors and releases the session's buffers.
func (s *Session) Close() error {
	errU := s.upstream.Close()
	errC := s.client.Close()
	if s.inbound != nil {
		s.inbound.Release()
		s.inbound = nil
	}
	if s.frame != nil {
		s.frame.Release()
		s.frame = nil
	}
	s.command = nil
	if errU != nil {
		return errU
	}
	return errC
}

// SessionStatus is a snapshot of a Session for status reporting.
type SessionStatus struct {
	ID        string `json:"id"`
	Path      string `json:"request_path"`
	Channel   string `json:"channel"`
	Upstream  string `json:"upstream"`
	State     string `json:"state"`
	Created   int64  `json:"created_at"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent"`
	MsgsSent  uint64 `json:"msgs_sent"`
}

// Status returns a snapshot of the session. It is safe to call concurrently
// with Handle.
func (s *Session) Status() SessionStatus {
	return SessionStatus{
		ID:        s.id,
		Path:      s.path,
		Channel:   s.route.Channel,
		Upstream:  s.route.Server,
		State:     s.State().String(),
		Created:   s.created.Unix(),
		ClientIP:  s.clientIP,
		UserAgent: s.userAgent,
		MsgsSent:  s.msgsSent.Load(),
	}
}

// failureReason classifies a fatal session error for logs and metrics.
func failureReason(err error) string {
	switch {
	case errors.Is(err, resp.ErrMalformed):
		return "protocol"
	case errors.Is(err, buffer.ErrTooLarge):
		return "resource"
	case errors.Is(err, ErrClientGone):
		return "client"
	case errors.Is(err, ErrServerClosed):
		return "shutdown"
	default:
		return "connection"
	}
}
