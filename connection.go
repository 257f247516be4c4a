package sserelay

import (
	"bufio"
	"fmt"
	"net"
	"net/http"

	"github.com/mroth/sserelay/internal/poll"
)

// relay dials upstream for rt, answers the request with event stream headers,
// and hands the hijacked connection to a worker.
func (s *Server) relay(w http.ResponseWriter, r *http.Request, rt Route) {
	log := s.conf.Logger.With().Str("channel", rt.Channel).Str("upstream", rt.Server).Logger()

	hj, ok := w.(http.Hijacker)
	if !ok {
		log.Error().Msg("response writer does not support hijacking")
		http.Error(w, "500 streaming unsupported", http.StatusInternalServerError)
		return
	}

	upstream, err := poll.Dial(rt.Server)
	if err != nil {
		log.Error().Err(err).Msg("upstream dial failed")
		if s.metrics != nil {
			s.metrics.failures.WithLabelValues("connection").Inc()
		}
		http.Error(w, "502 upstream unavailable", http.StatusBadGateway)
		return
	}

	conn, rw, err := hj.Hijack()
	if err != nil {
		upstream.Close()
		log.Error().Err(err).Msg("hijack failed")
		http.Error(w, "500 streaming unsupported", http.StatusInternalServerError)
		return
	}

	// an event stream client has nothing more to send, and anything already
	// buffered here would never reach the detached descriptor
	if n := rw.Reader.Buffered(); n > 0 {
		upstream.Close()
		conn.Close()
		log.Info().Int("buffered", n).Msg("client sent data after the request")
		if s.metrics != nil {
			s.metrics.failures.WithLabelValues("client").Inc()
		}
		return
	}

	if err := s.writeHeader(rw.Writer, r); err != nil {
		upstream.Close()
		conn.Close()
		log.Info().Err(err).Msg("client gone before headers were sent")
		return
	}

	client, err := poll.Detach(conn)
	if err != nil {
		upstream.Close()
		conn.Close()
		log.Error().Err(err).Msg("detach client connection")
		return
	}

	sess := NewSession(rt, upstream, client, s.conf.MaxMessageSize)
	sess.path = r.URL.Path
	sess.clientIP = clientIP(r)
	sess.userAgent = r.UserAgent()
	sess.log = log.With().Str("session", sess.ID()).Logger()

	if err := s.pick().submit(sess); err != nil {
		sess.log.Info().Err(err).Msg("session rejected")
		sess.Close()
	}
}

// writeHeader writes the response head of an event stream straight to the
// hijacked connection. The body has no length and ends when either side closes.
func (s *Server) writeHeader(bw *bufio.Writer, r *http.Request) error {
	headers := make(http.Header)
	if s.conf.CORSAllowOrigin != "" {
		headers.Set("Access-Control-Allow-Origin", s.conf.CORSAllowOrigin)
	}
	headers.Set("Content-Type", "text/event-stream; charset=utf-8")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("Server", "mroth/sserelay")

	proto := "HTTP/1.1"
	if r.ProtoMajor == 1 && r.ProtoMinor == 0 {
		proto = "HTTP/1.0"
	}
	fmt.Fprintf(bw, "%s 200 OK\r\n", proto)
	if err := headers.Write(bw); err != nil {
		return err
	}
	bw.WriteString("\r\n")
	return bw.Flush()
}

// clientIP trusts proxy headers if they exist, pattern taken from
// http://git.io/xDD3Mw
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
