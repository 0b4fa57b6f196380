// Package transport implements C3: the dual-mode chat channel. In "ws"
// mode it holds a persistent websocket to the marketplace's push gateway;
// in "dom" mode it drives a remote browser-control endpoint; in "auto"
// mode it prefers the websocket and falls over to DOM control when the
// socket cannot be established or goes unhealthy.
package transport

import (
	"context"
	"time"
)

// UnreadMessage is one inbound chat message observed by either transport.
type UnreadMessage struct {
	SessionID  string
	PeerUserID string
	PeerName   string
	ItemTitle  string
	Text       string
	ReceivedAt time.Time
	Fingerprint string // dedup key, first 20 hex chars of sha1(session_id|create time ms|text)
}

// Channel is the transport-agnostic surface the worker and message
// pipeline depend on.
type Channel interface {
	// Start establishes the connection (websocket) or verifies the
	// browser-control endpoint is reachable (DOM); it must be safe to call
	// once before the first Poll/SendText.
	Start(ctx context.Context) error
	Stop() error
	IsReady() bool

	// GetUnreadSessions returns newly observed messages since the last
	// call. The websocket transport drops repeats within its fingerprint
	// window; the DOM transport returns its current unread snapshot
	// without deduplication.
	GetUnreadSessions(ctx context.Context) ([]UnreadMessage, error)

	SendText(ctx context.Context, sessionID, text string) error
}

// Config mirrors pkg/config.TransportConfig; kept as its own type so
// transport does not import pkg/config (config depends on nothing,
// transport depends on config's resolved values only).
type Config struct {
	Mode                  string // ws | dom | auto
	AppKey                string
	Cookie                string
	TokenRefreshInterval  time.Duration
	HeartbeatInterval     time.Duration
	HeartbeatTimeout      time.Duration
	ReconnectDelay        time.Duration
	MaxBackoff            time.Duration
	MessageExpire         time.Duration
	MaxQueueSize          int
	QueueWait             time.Duration
	DOMControlBaseURL     string
	DOMControlProfile     string
	AllowTransportFailover bool
}
