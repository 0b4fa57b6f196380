package transport

import (
	"context"
	"fmt"
	"log/slog"
)

// NewChannel builds the transport named by cfg.Mode. "auto" wraps both
// implementations, preferring the websocket and falling over to DOM
// control if the socket never becomes ready within Start or drops and
// AllowTransportFailover is set.
func NewChannel(cfg Config, logger *slog.Logger) (Channel, error) {
	switch cfg.Mode {
	case "ws":
		return NewWSChannel(cfg, logger), nil
	case "dom":
		return NewDOMChannel(cfg, logger), nil
	case "auto", "":
		return newFailoverChannel(cfg, logger), nil
	default:
		return nil, fmt.Errorf("transport: unknown mode %q", cfg.Mode)
	}
}

// failoverChannel tries the websocket first and transparently switches to
// DOM control when it cannot connect, or on a later send/poll failure if
// AllowTransportFailover is set.
type failoverChannel struct {
	cfg    Config
	logger *slog.Logger

	ws  *WSChannel
	dom *DOMChannel

	active Channel
}

func newFailoverChannel(cfg Config, logger *slog.Logger) *failoverChannel {
	return &failoverChannel{
		cfg:    cfg,
		logger: logger.With("component", "transport-auto"),
		ws:     NewWSChannel(cfg, logger),
		dom:    NewDOMChannel(cfg, logger),
	}
}

func (f *failoverChannel) Start(ctx context.Context) error {
	if err := f.ws.Start(ctx); err != nil {
		f.logger.Warn("websocket transport unavailable, falling back to DOM control", "error", err)
		if domErr := f.dom.Start(ctx); domErr != nil {
			return fmt.Errorf("both transports failed: ws=%v dom=%v", err, domErr)
		}
		f.active = f.dom
		return nil
	}
	f.active = f.ws
	return nil
}

func (f *failoverChannel) Stop() error {
	var firstErr error
	if err := f.ws.Stop(); err != nil {
		firstErr = err
	}
	if err := f.dom.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (f *failoverChannel) IsReady() bool {
	return f.active != nil && f.active.IsReady()
}

func (f *failoverChannel) GetUnreadSessions(ctx context.Context) ([]UnreadMessage, error) {
	msgs, err := f.active.GetUnreadSessions(ctx)
	if err != nil && f.cfg.AllowTransportFailover {
		return f.failover(ctx).GetUnreadSessions(ctx)
	}
	return msgs, err
}

func (f *failoverChannel) SendText(ctx context.Context, sessionID, text string) error {
	err := f.active.SendText(ctx, sessionID, text)
	if err != nil && f.cfg.AllowTransportFailover {
		return f.failover(ctx).SendText(ctx, sessionID, text)
	}
	return err
}

// failover switches the active transport to the other implementation,
// starting it if necessary, and returns it for the caller to retry against.
func (f *failoverChannel) failover(ctx context.Context) Channel {
	if f.active == Channel(f.ws) {
		f.logger.Warn("websocket transport degraded, failing over to DOM control")
		if !f.dom.IsReady() {
			if err := f.dom.Start(ctx); err != nil {
				f.logger.Error("dom failover start failed", "error", err)
				return f.active
			}
		}
		f.active = f.dom
		return f.dom
	}
	f.logger.Warn("dom transport degraded, failing over to websocket")
	if !f.ws.IsReady() {
		if err := f.ws.Start(ctx); err != nil {
			f.logger.Error("websocket failover start failed", "error", err)
			return f.active
		}
	}
	f.active = f.ws
	return f.ws
}
