package httpx

import (
	"context"
	"net"
	"net/http"
	"time"
)

type ClientOptions struct {
	Timeout time.Duration

	// Proxy accepts the ProxyFromString forms:
	// - "" / "direct": no proxy (even if HTTP_PROXY / HTTPS_PROXY is set)
	// - "env": ProxyFromEnvironment
	// - http(s)://host:port or host:port: fixed HTTP proxy
	// - socks5://host:port: SOCKS5 dialer
	Proxy string

	// Transport allows providing a pre-configured transport.
	// When nil, it clones http.DefaultTransport.
	Transport *http.Transport
}

func NewClient(opts ClientOptions) (*http.Client, error) {
	var transport *http.Transport
	if opts.Transport != nil {
		transport = opts.Transport.Clone()
	} else {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}

	route, err := ProxyFromString(opts.Proxy)
	if err != nil {
		return nil, err
	}
	transport.Proxy = route.ProxyFunc
	if route.Dial != nil {
		dial := route.Dial
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dial(ctx, network, addr)
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}, nil
}
