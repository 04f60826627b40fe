package xmtp

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"xmtp-agents/gm-agent/pkg/state"
)

type ClientOptions struct {
	Env Env

	// GatewayURL is required unless Env has a DefaultGatewayURL.
	GatewayURL string
	// Proxy accepts the httpx.ProxyFromString forms.
	Proxy      string
	HTTPClient *http.Client

	// DBPath overrides the default <DBDir>/xmtp-<env>-<inboxId>.db3.
	DBPath string
	DBDir  string
	// DBEncryptionKey is the 32-byte local database key.
	DBEncryptionKey []byte

	Logger *zap.Logger

	// StreamBackoff bounds stream reconnect delays.
	StreamInitialBackoff time.Duration
	StreamMaxBackoff     time.Duration
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.Env == "" {
		o.Env = EnvDev
	}
	if strings.TrimSpace(o.GatewayURL) == "" {
		o.GatewayURL = DefaultGatewayURL(o.Env)
	}
	if strings.TrimSpace(o.DBDir) == "" {
		o.DBDir = state.DBDir()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func (o ClientOptions) validate() error {
	if strings.TrimSpace(o.GatewayURL) == "" {
		return fmt.Errorf("%w for env %s", ErrGatewayURLRequired, o.Env)
	}
	return nil
}

func (o ClientOptions) dbPath(inboxID string) string {
	if p := strings.TrimSpace(o.DBPath); p != "" {
		return p
	}
	return state.DBPath(o.DBDir, string(o.Env), inboxID)
}
