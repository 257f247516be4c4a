package sserelay

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// healthTimeout bounds how long a health check waits for the upstream PING.
const healthTimeout = 2 * time.Second

type healthStatus struct {
	Status   string `json:"status"`
	Upstream string `json:"upstream"`
	Error    string `json:"error,omitempty"`
}

// CheckUpstream sends a PING to the default upstream.
func (s *Server) CheckUpstream(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	return s.health.Ping(ctx).Err()
}

// HealthHandler reports whether the default upstream answers a PING. It
// responds 200 when it does and 503 otherwise.
func (s *Server) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hs := healthStatus{Status: "ok", Upstream: s.conf.Upstream}
		code := http.StatusOK
		if err := s.CheckUpstream(r.Context()); err != nil {
			hs.Status, hs.Error = "unavailable", err.Error()
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(hs)
	})
}
