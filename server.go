package sserelay

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mroth/sserelay/router"
)

// Server relays pub/sub channels to Server-Sent Events clients.
//
// Server implements the http.Handler interface, and can be chained into
// existing HTTP routing muxes if desired. A request for /subscribe/<channel>
// relays <channel> from the default upstream; paths configured with SetRoutes
// relay whatever their route action names.
type Server struct {
	hubs []*hub
	next atomic.Uint64

	conf    serverConfig
	routes  atomic.Pointer[router.Node[Route]]
	metrics *metrics
	health  *redis.Client

	startupTime time.Time
	once        sync.Once
}

// serverConfig defines configurable options that can be customized for a Server.
type serverConfig struct {
	CORSAllowOrigin string // Access-Control-Allow-Origin header value (dont send header if blank)
	Upstream        string // host:port for routes that do not name a server
	BufferSize      int    // read chunk size for routes that do not name one
	MaxMessageSize  int    // cap on unparsed upstream bytes per session, 0 for none
	Workers         int    // number of event loops
	DisableAdmin    bool
	Logger          zerolog.Logger
	Registry        *prometheus.Registry
}

// NewServer creates a new Server with optional ServerOptions for configuration.
func NewServer(opts ...ServerOption) (*Server, error) {
	s := &Server{
		conf: serverConfig{
			Upstream:   DefaultUpstream,
			BufferSize: DefaultBufferSize,
			Workers:    1,
			Logger:     zerolog.Nop(),
		},
		startupTime: time.Now(),
	}
	s.routes.Store(router.New[Route]())

	// set configuration from provided options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.conf.Registry == nil {
		s.conf.Registry = prometheus.NewRegistry()
		s.conf.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	m, err := newMetrics(s.conf.Registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	s.metrics = m

	for i := 0; i < s.conf.Workers; i++ {
		h, err := newHub(m, s.conf.Logger.With().Int("worker", i).Logger())
		if err != nil {
			for _, started := range s.hubs {
				started.Shutdown()
			}
			return nil, fmt.Errorf("start worker %d: %w", i, err)
		}
		s.hubs = append(s.hubs, h)
	}
	for _, h := range s.hubs {
		h.Start()
	}

	s.health = redis.NewClient(&redis.Options{
		Addr:        s.conf.Upstream,
		DialTimeout: 2 * time.Second,
		MaxRetries:  -1,
	})
	return s, nil
}

// ServerOption defines a set of high-level user options that can be customized
type ServerOption func(s *Server) error

// WithCORSAllowOrigin sets the Access-Control-Allow-Origin header value to origin.
// If set to the zero value (""), the header will not be sent.
//
// If you want to allow connections from browsers at any origin, set to "*".
//
// See https://developer.mozilla.org/en-US/docs/Web/HTTP/Headers/Access-Control-Allow-Origin.
func WithCORSAllowOrigin(origin string) ServerOption {
	return func(s *Server) error {
		s.conf.CORSAllowOrigin = origin
		return nil
	}
}

// WithUpstream sets the host:port of the pub/sub server used by routes that do
// not name one.
func WithUpstream(addr string) ServerOption {
	return func(s *Server) error {
		if addr == "" {
			return fmt.Errorf("upstream address must not be empty")
		}
		s.conf.Upstream = addr
		return nil
	}
}

// WithBufferSize sets the default number of bytes read from upstream at once.
func WithBufferSize(n int) ServerOption {
	return func(s *Server) error {
		if n <= 0 {
			return fmt.Errorf("buffer size must be positive, got %d", n)
		}
		s.conf.BufferSize = n
		return nil
	}
}

// WithMaxMessageSize bounds the unparsed upstream bytes a session may hold.
// Sessions exceeding it are torn down. Zero disables the limit.
func WithMaxMessageSize(n int) ServerOption {
	return func(s *Server) error {
		if n < 0 {
			return fmt.Errorf("max message size must not be negative, got %d", n)
		}
		s.conf.MaxMessageSize = n
		return nil
	}
}

// WithWorkers sets the number of event loops sessions are spread across.
func WithWorkers(n int) ServerOption {
	return func(s *Server) error {
		if n < 1 {
			return fmt.Errorf("workers must be at least 1, got %d", n)
		}
		s.conf.Workers = n
		return nil
	}
}

// WithLogger sets the logger used for session and worker events.
func WithLogger(log zerolog.Logger) ServerOption {
	return func(s *Server) error {
		s.conf.Logger = log
		return nil
	}
}

// WithRegistry registers the server's metrics with reg instead of a private
// registry.
func WithRegistry(reg *prometheus.Registry) ServerOption {
	return func(s *Server) error {
		s.conf.Registry = reg
		return nil
	}
}

// WithRoutes installs path to route action mappings, see SetRoutes.
func WithRoutes(routes map[string]string) ServerOption {
	return func(s *Server) error {
		return s.SetRoutes(routes)
	}
}

// WithAdminDisabled makes the admin endpoints refuse requests.
func WithAdminDisabled() ServerOption {
	return func(s *Server) error {
		s.conf.DisableAdmin = true
		return nil
	}
}

// SetRoutes atomically replaces the configured routes. Keys are request paths,
// values route actions as accepted by ParseAction. On error the previous
// routes stay in effect.
func (s *Server) SetRoutes(routes map[string]string) error {
	tree := router.New[Route]()
	for path, action := range routes {
		rt, err := ParseAction(action)
		if err != nil {
			return fmt.Errorf("route %s: %w", path, err)
		}
		tree.InsertAt(router.NS(path), rt)
	}
	s.routes.Store(tree)
	return nil
}

// Routes returns the configured routes keyed by path.
func (s *Server) Routes() map[string]Route {
	out := make(map[string]Route)
	s.routes.Load().Walk(func(ns router.Namespace, rt Route) {
		out[ns.String()] = rt
	})
	return out
}

// AdminDisabled reports whether admin endpoints should refuse requests.
func (s *Server) AdminDisabled() bool {
	return s.conf.DisableAdmin
}

// ServeHTTP implements the http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "405 method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rt, ok := s.route(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	s.relay(w, r, rt.withDefaults(s.conf))
}

// route resolves a request path to the route it relays.
func (s *Server) route(path string) (Route, bool) {
	if rt, _, ok := s.routes.Load().Lookup(router.NS(path)); ok {
		return rt, true
	}
	if channel, ok := strings.CutPrefix(path, "/subscribe/"); ok && channel != "" {
		return Route{Channel: channel}, true
	}
	return Route{}, false
}

// pick returns the next worker in round-robin order.
func (s *Server) pick() *hub {
	return s.hubs[(s.next.Add(1)-1)%uint64(len(s.hubs))]
}

// MetricsHandler serves the server's metrics registry in the Prometheus
// exposition format.
func (s *Server) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.conf.Registry, promhttp.HandlerOpts{Registry: s.conf.Registry})
}

// Shutdown a server gracefully, closing active sessions. It blocks until
// every worker has stopped and is safe to call more than once.
func (s *Server) Shutdown() {
	for _, h := range s.hubs {
		h.Shutdown()
	}
	s.once.Do(func() {
		if err := s.health.Close(); err != nil {
			s.conf.Logger.Warn().Err(err).Msg("closing health check client")
		}
	})
}
