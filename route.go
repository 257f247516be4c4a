package sserelay

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Defaults applied to routes that do not set their own values.
const (
	DefaultUpstream   = "127.0.0.1:6379"
	DefaultBufferSize = 4096
)

// ErrNoChannel is returned for route actions that do not name a channel.
var ErrNoChannel = errors.New("route has no pub/sub channel")

// Route describes where a relay session subscribes.
type Route struct {
	Server     string // upstream host:port
	Channel    string // pub/sub channel to SUBSCRIBE to
	BufferSize int    // bytes requested per upstream read
}

// ParseAction parses a route action. An action is either a bare channel name,
// or a comma separated key=value list using the keys server, subscribe and
// buffer_size:
//
//	news
//	server=10.0.0.5:6379,subscribe=news,buffer_size=8192
//
// Keys left out are zero in the returned Route.
func ParseAction(action string) (Route, error) {
	action = strings.TrimSpace(action)
	if !strings.Contains(action, "=") {
		if action == "" {
			return Route{}, ErrNoChannel
		}
		return Route{Channel: action}, nil
	}

	var r Route
	for _, kv := range strings.Split(action, ",") {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return Route{}, fmt.Errorf("invalid route action item %q", kv)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch key {
		case "server":
			r.Server = value
		case "subscribe":
			r.Channel = value
		case "buffer_size":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return Route{}, fmt.Errorf("invalid buffer_size %q", value)
			}
			r.BufferSize = n
		default:
			return Route{}, fmt.Errorf("unknown route action key %q", key)
		}
	}
	if r.Channel == "" {
		return Route{}, ErrNoChannel
	}
	return r, nil
}

// withDefaults fills unset fields from the server configuration.
func (r Route) withDefaults(conf serverConfig) Route {
	if r.Server == "" {
		r.Server = conf.Upstream
	}
	if r.BufferSize <= 0 {
		r.BufferSize = conf.BufferSize
	}
	return r
}

// String formats r as a route action ParseAction accepts.
func (r Route) String() string {
	if r.Server == "" && r.BufferSize == 0 {
		return r.Channel
	}
	var b strings.Builder
	if r.Server != "" {
		b.WriteString("server=" + r.Server + ",")
	}
	b.WriteString("subscribe=" + r.Channel)
	if r.BufferSize > 0 {
		b.WriteString(",buffer_size=" + strconv.Itoa(r.BufferSize))
	}
	return b.String()
}
