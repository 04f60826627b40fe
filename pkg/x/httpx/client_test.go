package httpx

import (
	"net/http"
	"testing"
	"time"
)

func TestNewClient_DefaultIsDirect_EvenIfEnvProxySet(t *testing.T) {
	t.Setenv("HTTP_PROXY", "http://127.0.0.1:7890")
	t.Setenv("HTTPS_PROXY", "http://127.0.0.1:7890")

	c, err := NewClient(ClientOptions{})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	tr, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport, got %T", c.Transport)
	}
	if tr.Proxy != nil {
		t.Fatalf("expected nil proxy func (direct), got %T", tr.Proxy)
	}
	if c.Timeout != 15*time.Second {
		t.Fatalf("default timeout=%s", c.Timeout)
	}
}

func TestNewClient_SOCKS5InstallsDialer(t *testing.T) {
	c, err := NewClient(ClientOptions{Proxy: "socks5://127.0.0.1:1080", Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	tr := c.Transport.(*http.Transport)
	if tr.Proxy != nil {
		t.Fatalf("socks5 should not set an HTTP proxy func")
	}
	if tr.DialContext == nil {
		t.Fatalf("expected custom DialContext")
	}
	if c.Timeout != time.Second {
		t.Fatalf("timeout=%s", c.Timeout)
	}
}

func TestNewClient_InvalidProxy(t *testing.T) {
	if _, err := NewClient(ClientOptions{Proxy: "ftp://x"}); err == nil {
		t.Fatalf("expected error")
	}
}
