package sserelay

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/mroth/sserelay/internal/poll"
)

// ErrServerClosed is returned when submitting a session to a stopped server.
var ErrServerClosed = errors.New("sserelay: server closed")

// eventLoop is the readiness queue a hub waits on.
type eventLoop interface {
	EventQueue
	Remove(fd int) error
	Wait(ready []int, timeout int) ([]int, error)
	Wake() error
	Close() error
}

// A hub is a single event loop goroutine that owns a set of relay sessions.
// Sessions are handed over through register; from then on only the loop
// goroutine touches them.
type hub struct {
	queue       eventLoop
	register    chan *Session    // Sessions waiting to join the loop.
	sessions    map[int]*Session // Loop-owned, keyed by both descriptors.
	sentMsgs    atomic.Uint64    // Msgs relayed since startup
	startupTime time.Time        // Time hub was created

	activeMu sync.Mutex
	active   map[*Session]struct{} // Snapshot source for status reporting.

	mu      sync.RWMutex // guards closed against in-flight submits
	closed  bool
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
	started  atomic.Bool
	once     sync.Once

	metrics *metrics
	log     zerolog.Logger
}

func newHub(m *metrics, log zerolog.Logger) (*hub, error) {
	q, err := poll.NewQueue(256)
	if err != nil {
		return nil, err
	}
	return newHubWithQueue(q, m, log), nil
}

func newHubWithQueue(q eventLoop, m *metrics, log zerolog.Logger) *hub {
	return &hub{
		queue:       q,
		register:    make(chan *Session, 64),
		sessions:    make(map[int]*Session),
		startupTime: time.Now(),
		active:      make(map[*Session]struct{}),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		metrics:     m,
		log:         log,
	}
}

// Start runs the event loop in its own goroutine.
func (h *hub) Start() {
	if h.started.CompareAndSwap(false, true) {
		go h.run()
	}
}

// submit hands s over to the event loop. On error the caller still owns s.
func (h *hub) submit(s *Session) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrServerClosed
	}

	// wake first, so a full register chan is drained by the loop
	h.queue.Wake()
	select {
	case h.register <- s:
	case <-h.quit:
		return ErrServerClosed
	}
	return h.queue.Wake()
}

// Shutdown stops the loop and tears down every session. It is safe to call
// more than once.
func (h *hub) Shutdown() {
	h.once.Do(func() {
		h.halt()
		if !h.started.Load() {
			h.teardown()
			return
		}
		h.mu.RLock()
		if !h.closed {
			h.queue.Wake()
		}
		h.mu.RUnlock()
	})
	if h.started.Load() {
		<-h.done
	}
}

func (h *hub) run() {
	defer close(h.done)
	defer h.teardown()

	var ready []int
	for {
		h.accept()

		var err error
		ready, err = h.queue.Wait(ready, -1)
		if err != nil {
			h.log.Error().Err(err).Msg("event loop stopped")
			// release submitters blocked on a full register chan before
			// teardown takes the write lock
			h.halt()
			return
		}
		select {
		case <-h.quit:
			return
		default:
		}

		for _, fd := range ready {
			s, ok := h.sessions[fd]
			if !ok {
				// torn down earlier in this batch
				continue
			}
			if err := s.Handle(h.queue, fd); err != nil {
				h.unregister(s, err)
			}
		}
	}
}

// halt closes quit once.
func (h *hub) halt() {
	h.quitOnce.Do(func() { close(h.quit) })
}

// accept registers every session waiting in the register chan.
func (h *hub) accept() {
	for {
		select {
		case s := <-h.register:
			h.add(s)
		default:
			return
		}
	}
}

func (h *hub) add(s *Session) {
	s.obs = h
	h.sessions[s.upstream.Fd()] = s
	h.sessions[s.client.Fd()] = s
	h.activeMu.Lock()
	h.active[s] = struct{}{}
	h.activeMu.Unlock()
	if h.metrics != nil {
		h.metrics.sessionsActive.Inc()
		h.metrics.sessionsTotal.Inc()
	}
	s.log.Info().Str("client_ip", s.clientIP).Msg("CONNECT")

	if err := s.Start(h.queue); err != nil {
		h.unregister(s, err)
	}
}

func (h *hub) unregister(s *Session, err error) {
	upFd, clFd := s.upstream.Fd(), s.client.Fd()
	h.queue.Remove(upFd)
	h.queue.Remove(clFd)
	delete(h.sessions, upFd)
	delete(h.sessions, clFd)
	h.activeMu.Lock()
	delete(h.active, s)
	h.activeMu.Unlock()

	reason := failureReason(err)
	if h.metrics != nil {
		h.metrics.sessionsActive.Dec()
		h.metrics.failures.WithLabelValues(reason).Inc()
	}
	ev := s.log.Info()
	if reason != "client" && reason != "shutdown" {
		ev = s.log.Error()
	}
	ev.Err(err).Str("reason", reason).Stringer("state", s.State()).
		Uint64("msgs_sent", s.msgsSent.Load()).Msg("DISCONNECT")

	s.Close()
}

// teardown closes every session the hub still knows about.
func (h *hub) teardown() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	h.accept()
	for _, s := range h.sessions {
		if _, ok := h.sessions[s.upstream.Fd()]; ok {
			h.unregister(s, ErrServerClosed)
		}
	}
	h.queue.Close()
}

// relayed implements observer.
func (h *hub) relayed(n int) {
	h.sentMsgs.Add(1)
	if h.metrics != nil {
		h.metrics.messages.Inc()
		h.metrics.bytes.Add(float64(n))
	}
}

// skipped implements observer.
func (h *hub) skipped(kind []byte) {
	if h.metrics != nil {
		h.metrics.skipped.WithLabelValues(string(kind)).Inc()
	}
}

// status returns a snapshot of every session owned by the hub.
func (h *hub) status() []SessionStatus {
	h.activeMu.Lock()
	defer h.activeMu.Unlock()
	sl := make([]SessionStatus, 0, len(h.active))
	for s := range h.active {
		sl = append(sl, s.Status())
	}
	return sl
}
