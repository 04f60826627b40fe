// Package gateway is the HTTP and WebSocket transport to an XMTP network gateway.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"xmtp-agents/gm-agent/pkg/x/httpx"
)

const (
	maxResponseBytes = 8 << 20
	maxErrorBytes    = 64 << 10
)

type Options struct {
	BaseURL string

	// Proxy accepts the httpx.ProxyFromString forms. Ignored when HTTPClient is set.
	Proxy      string
	HTTPClient *http.Client
	Timeout    time.Duration

	// MaxRetries bounds retries of idempotent requests on 5xx/429/network errors.
	MaxRetries   int
	RetryBackoff time.Duration

	ClientVersion string
	Now           func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	} else if o.MaxRetries == 0 {
		o.MaxRetries = 2
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 250 * time.Millisecond
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type Client struct {
	base  *url.URL
	http  *http.Client
	opts  Options
	creds Credentials
}

func New(opts Options) (*Client, error) {
	opts = opts.withDefaults()

	raw := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if raw == "" {
		return nil, fmt.Errorf("gateway base url is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid gateway url scheme %q", base.Scheme)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc, err = httpx.NewClient(httpx.ClientOptions{Timeout: opts.Timeout, Proxy: opts.Proxy})
		if err != nil {
			return nil, fmt.Errorf("invalid gateway proxy: %w", err)
		}
	}

	return &Client{base: base, http: hc, opts: opts}, nil
}

// WithCredentials returns a copy of c that signs requests as the given installation.
func (c *Client) WithCredentials(creds Credentials) *Client {
	cp := *c
	cp.creds = creds
	return &cp
}

func (c *Client) BaseURL() string { return c.base.String() }

func (c *Client) GetInbox(ctx context.Context, inboxID string) (InboxStateDTO, error) {
	var out InboxStateDTO
	err := c.do(ctx, http.MethodGet, "/v1/inboxes/"+url.PathEscape(inboxID), nil, nil, &out, true)
	return out, err
}

func (c *Client) RegisterInbox(ctx context.Context, req RegisterInboxRequest) (InboxStateDTO, error) {
	var out InboxStateDTO
	err := c.do(ctx, http.MethodPost, "/v1/inboxes", nil, req, &out, false)
	return out, err
}

func (c *Client) AddInstallation(ctx context.Context, inboxID string, req AddInstallationRequest) (InboxStateDTO, error) {
	var out InboxStateDTO
	err := c.do(ctx, http.MethodPost, "/v1/inboxes/"+url.PathEscape(inboxID)+"/installations", nil, req, &out, false)
	return out, err
}

func (c *Client) RevokeInstallations(ctx context.Context, inboxID string, req RevokeInstallationsRequest) (InboxStateDTO, error) {
	var out InboxStateDTO
	err := c.do(ctx, http.MethodPost, "/v1/inboxes/"+url.PathEscape(inboxID)+"/installations/revoke", nil, req, &out, false)
	return out, err
}

func (c *Client) KeyPackageStatuses(ctx context.Context, installationIDs []string) (map[string]KeyPackageStatusDTO, error) {
	var out struct {
		Statuses map[string]KeyPackageStatusDTO `json:"statuses"`
	}
	body := map[string][]string{"installationIds": installationIDs}
	// Read-only lookup: safe to retry even though it is a POST.
	if err := c.do(ctx, http.MethodPost, "/v1/key-packages/status", nil, body, &out, true); err != nil {
		return nil, err
	}
	if out.Statuses == nil {
		out.Statuses = map[string]KeyPackageStatusDTO{}
	}
	return out.Statuses, nil
}

func (c *Client) ListConversations(ctx context.Context, since int64) (ConversationPage, error) {
	q := url.Values{}
	q.Set("since", strconv.FormatInt(since, 10))
	var out ConversationPage
	err := c.do(ctx, http.MethodGet, "/v1/conversations", q, nil, &out, true)
	return out, err
}

func (c *Client) SendMessage(ctx context.Context, conversationID string, req SendMessageRequest) (MessageDTO, error) {
	var out MessageDTO
	err := c.do(ctx, http.MethodPost, "/v1/conversations/"+url.PathEscape(conversationID)+"/messages", nil, req, &out, false)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, idempotent bool) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		payload = b
	}

	attempts := 1
	if idempotent {
		attempts += c.opts.MaxRetries
	}
	backoff := c.opts.RetryBackoff

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			backoff *= 2
		}

		lastErr = c.doOnce(ctx, method, path, query, payload, out)
		if lastErr == nil || !retryable(ctx, lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, payload []byte, out any) error {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	u.RawQuery = query.Encode()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.opts.ClientVersion != "" {
		req.Header.Set(HeaderClientVersion, c.opts.ClientVersion)
	}
	if c.creds.valid() {
		signHeaders(req.Header, c.creds, method, u.Path, c.opts.Now())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(b)}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if len(b) > maxResponseBytes {
		return fmt.Errorf("%s %s: response exceeds %d bytes", method, path, maxResponseBytes)
	}
	if out == nil || len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		return parsed.Error
	}
	return strings.TrimSpace(string(body))
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	// Transport failures; decode errors are not worth retrying.
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
