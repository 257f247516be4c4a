/*
Package sserelay relays Redis pub/sub channels to web browsers as
Server-Sent Events.

Every client connection gets its own upstream connection: the relay subscribes
to the requested channel, and each published message is written to the client
as one SSE event before the next one is read. A slow client therefore holds
back its own upstream socket instead of growing a queue in the relay.

# Server-Sent Events

Each message payload is sent as an event made only of data lines:

	data: first line
	data: second line

No event names, IDs or retry fields are sent. For more on the format see
https://html.spec.whatwg.org/multipage/server-sent-events.html

# Routes

A request for /subscribe/<channel> relays <channel> from the default upstream.
Additional routes map a request path to a route action, either a bare channel
name or a key=value list:

	/time           clock
	/feeds          server=10.0.0.5:6379,subscribe=feeds,buffer_size=8192

Routes match by path prefix, the longest configured path wins, so /feeds/eu is
served by the /feeds route.

# Event loops

Sessions do not get a goroutine each. Once the response head is written the
connection is hijacked and its descriptor handed to one of a small number of
workers, each running a readiness-driven event loop that owns its sessions
outright. Only Linux is supported for relaying.
*/
package sserelay
