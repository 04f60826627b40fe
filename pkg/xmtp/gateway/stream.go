package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"xmtp-agents/gm-agent/pkg/x/httpx"
)

const streamPath = "/v1/stream/messages"

type MessageHandler func(ctx context.Context, msg MessageDTO) error

type StreamOptions struct {
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
}

func (o StreamOptions) withDefaults() StreamOptions {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 90 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	return o
}

type ReconnectOptions struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	OnDisconnect   func(err error, nextBackoff time.Duration)
}

// WebsocketURL maps an http(s) gateway base to the ws(s) stream endpoint.
func WebsocketURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}

	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid gateway url scheme: %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + streamPath
	u.RawQuery = ""
	return u.String(), nil
}

// StreamMessagesOnce holds one stream connection until it fails, ctx ends or
// handler returns an error.
func (c *Client) StreamMessagesOnce(ctx context.Context, handler MessageHandler, opts StreamOptions) error {
	if handler == nil {
		return fmt.Errorf("handler is required")
	}
	opts = opts.withDefaults()

	wsURL, err := WebsocketURL(c.base.String())
	if err != nil {
		return err
	}

	route, err := httpx.ProxyFromString(c.opts.Proxy)
	if err != nil {
		return err
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: opts.HandshakeTimeout,
		Proxy:            route.ProxyFunc,
		NetDialContext:   route.Dial,
	}

	header := http.Header{}
	if c.opts.ClientVersion != "" {
		header.Set(HeaderClientVersion, c.opts.ClientVersion)
	}
	if c.creds.valid() {
		u, _ := url.Parse(wsURL)
		signHeaders(header, c.creds, http.MethodGet, u.Path, c.opts.Now())
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return fmt.Errorf("stream dial: %w", &APIError{StatusCode: resp.StatusCode, Message: err.Error()})
		}
		return fmt.Errorf("stream dial: %w", err)
	}
	defer conn.Close()

	var writeMu sync.Mutex
	sendText := func(payload string) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(opts.WriteTimeout))
		return conn.WriteMessage(websocket.TextMessage, []byte(payload))
	}

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"), time.Now().Add(2*time.Second))
			writeMu.Unlock()
			_ = conn.Close()
		case <-stop:
		}
	}()
	defer close(stop)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if !gjson.ValidBytes(frame) {
			continue
		}

		switch gjson.GetBytes(frame, "type").String() {
		case "ping":
			if err := sendText(`{"type":"pong"}`); err != nil {
				return err
			}
		case "error":
			return fmt.Errorf("stream error: %s", gjson.GetBytes(frame, "error").String())
		case "message":
			raw := gjson.GetBytes(frame, "message")
			if !raw.IsObject() {
				continue
			}
			var msg MessageDTO
			if err := json.Unmarshal([]byte(raw.Raw), &msg); err != nil {
				return fmt.Errorf("decode stream message: %w", err)
			}
			if msg.ID == "" {
				continue
			}
			if err := handler(ctx, msg); err != nil {
				return err
			}
		default:
		}
	}
}

// StreamMessages reconnects with exponential backoff until ctx ends.
// Errors that can never succeed on retry (4xx other than 429) are returned.
func (c *Client) StreamMessages(ctx context.Context, handler MessageHandler, streamOpts StreamOptions, reconnectOpts ReconnectOptions) error {
	backoff := reconnectOpts.InitialBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	maxBackoff := reconnectOpts.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := c.StreamMessagesOnce(ctx, handler, streamOpts)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return err
		}

		if reconnectOpts.OnDisconnect != nil {
			reconnectOpts.OnDisconnect(err, backoff)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}
