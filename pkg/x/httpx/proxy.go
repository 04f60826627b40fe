package httpx

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	netproxy "golang.org/x/net/proxy"
)

// DialContextFunc matches net.Dialer.DialContext.
type DialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Route is how outbound connections reach the network: either an HTTP proxy
// (ProxyFunc) or a custom dialer (Dial, used for SOCKS5). Both nil means direct.
type Route struct {
	ProxyFunc func(*http.Request) (*url.URL, error)
	Dial      DialContextFunc
}

func ProxyFromString(raw string) (Route, error) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "", "0", "false", "off", "no", "none", "direct":
		return Route{}, nil
	case "env":
		return Route{ProxyFunc: http.ProxyFromEnvironment}, nil
	}

	if strings.HasPrefix(strings.ToLower(raw), "socks5://") {
		dial, err := SOCKS5Dialer(raw)
		if err != nil {
			return Route{}, err
		}
		return Route{Dial: dial}, nil
	}

	u, err := ParseProxyURL(raw)
	if err != nil {
		return Route{}, err
	}
	return Route{ProxyFunc: http.ProxyURL(u)}, nil
}

func ParseProxyURL(raw string) (*url.URL, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("empty proxy url")
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q (only http/https/socks5)", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return nil, fmt.Errorf("missing host")
	}
	return u, nil
}

// SOCKS5Dialer returns a dialer that tunnels through the socks5:// proxy in raw.
func SOCKS5Dialer(raw string) (DialContextFunc, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(u.Host) == "" {
		return nil, fmt.Errorf("missing host")
	}

	var auth *netproxy.Auth
	if u.User != nil {
		pass, _ := u.User.Password()
		auth = &netproxy.Auth{User: u.User.Username(), Password: pass}
	}

	forward := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	d, err := netproxy.SOCKS5("tcp", u.Host, auth, forward)
	if err != nil {
		return nil, err
	}

	if cd, ok := d.(netproxy.ContextDialer); ok {
		return cd.DialContext, nil
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(network, addr)
	}, nil
}
