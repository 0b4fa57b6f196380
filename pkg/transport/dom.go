package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DOMChannel drives a remote browser-control endpoint (a companion
// process that owns a real logged-in browser tab) via a small documented
// HTTP surface: /start, /tabs/*, /navigate, /act, /snapshot, /cookies*,
// /hooks/*. It is the fallback transport for accounts where the push
// gateway cannot be reached or its token handshake fails, and the primary
// transport when TransportConfig.Mode is "dom".
type DOMChannel struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
	ready  bool
}

func NewDOMChannel(cfg Config, logger *slog.Logger) *DOMChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &DOMChannel{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger.With("component", "transport-dom"),
	}
}

func (d *DOMChannel) Start(ctx context.Context) error {
	if err := d.post(ctx, "/start", map[string]any{"profile": d.cfg.DOMControlProfile}, nil); err != nil {
		return fmt.Errorf("start browser profile: %w", err)
	}
	if err := d.post(ctx, "/cookies/set", map[string]any{"cookie": d.cfg.Cookie}, nil); err != nil {
		return fmt.Errorf("seed cookies: %w", err)
	}
	if err := d.post(ctx, "/navigate", map[string]any{"url": "https://www.goofish.com/im"}, nil); err != nil {
		return fmt.Errorf("navigate to message center: %w", err)
	}
	d.ready = true
	return nil
}

func (d *DOMChannel) Stop() error {
	d.ready = false
	return nil
}

func (d *DOMChannel) IsReady() bool { return d.ready }

// unreadSnapshot is the shape the /snapshot endpoint returns for the
// message-list hook: one entry per conversation with unread content.
type unreadSnapshot struct {
	Sessions []struct {
		SessionID  string `json:"session_id"`
		PeerUserID string `json:"peer_user_id"`
		PeerName   string `json:"peer_name"`
		ItemTitle  string `json:"item_title"`
		Text       string `json:"text"`
	} `json:"sessions"`
}

func (d *DOMChannel) GetUnreadSessions(ctx context.Context) ([]UnreadMessage, error) {
	var snap unreadSnapshot
	if err := d.post(ctx, "/snapshot", map[string]any{"hook": "unread_messages"}, &snap); err != nil {
		return nil, fmt.Errorf("snapshot unread messages: %w", err)
	}

	now := time.Now().UTC()
	out := make([]UnreadMessage, 0, len(snap.Sessions))
	for _, s := range snap.Sessions {
		out = append(out, UnreadMessage{
			SessionID:   s.SessionID,
			PeerUserID:  s.PeerUserID,
			PeerName:    s.PeerName,
			ItemTitle:   s.ItemTitle,
			Text:        s.Text,
			ReceivedAt:  now,
			Fingerprint: fingerprint(s.SessionID, now.UnixMilli(), s.Text),
		})
	}
	return out, nil
}

func (d *DOMChannel) SendText(ctx context.Context, sessionID, text string) error {
	action := map[string]any{
		"type":       "reply",
		"session_id": sessionID,
		"text":       text,
	}
	if err := d.post(ctx, "/act", action, nil); err != nil {
		return fmt.Errorf("act reply: %w", err)
	}
	return nil
}

func (d *DOMChannel) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := d.cfg.DOMControlBaseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
