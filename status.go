package sserelay

import (
	"fmt"
	"os"
	"sort"
	"time"
)

// ServerStatus is snapshot of metadata about the status of a Server
//
// It can be serialized to JSON and is what gets reported to admin API endpoint.
type ServerStatus struct {
	Node        string            `json:"node"`
	Status      string            `json:"status"`
	Reported    int64             `json:"reported_at"`
	StartupTime int64             `json:"startup_time"`
	Upstream    string            `json:"upstream"`
	Workers     int               `json:"workers"`
	SentMsgs    uint64            `json:"msgs_relayed"`
	Routes      map[string]string `json:"routes"`
	Sessions    []SessionStatus   `json:"sessions"`
}

// Status returns a snaphot of status metadata for the Server.
//
// Primarily intended for logging and reporting.
func (s *Server) Status() ServerStatus {
	stats := ServerStatus{
		Node:        fmt.Sprintf("%s-%s-%s", platform(), env(), nodeName()),
		Status:      "OK",
		Reported:    time.Now().Unix(),
		StartupTime: s.startupTime.Unix(),
		Upstream:    s.conf.Upstream,
		Workers:     len(s.hubs),
		Routes:      make(map[string]string),
		Sessions:    []SessionStatus{},
	}
	for path, rt := range s.Routes() {
		stats.Routes[path] = rt.String()
	}
	for _, h := range s.hubs {
		stats.SentMsgs += h.sentMsgs.Load()
		stats.Sessions = append(stats.Sessions, h.status()...)
	}

	// sort by age of session
	sort.Slice(stats.Sessions, func(i, j int) bool {
		return stats.Sessions[i].Created < stats.Sessions[j].Created
	})
	return stats
}

// The name of the platform we are running on.
func platform() string {
	return "go"
}

// Attempts to intelligently get the name of the node we are running on.
//
// First checks for a Heroku $DYNO variable (e.g. `web.2` etc), if that isn't
// found will default to the local hostname.
func nodeName() string {
	if dyno := os.Getenv("DYNO"); dyno != "" {
		return dyno
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "unknown.X"
}

// A string representing the environment (dev/staging/prod), for reporting.
func env() string {
	if env := os.Getenv("SSERELAY_ENV"); env != "" {
		return env
	}
	return "development"
}
