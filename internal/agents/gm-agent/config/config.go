package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joeshaw/envdecode"

	"xmtp-agents/gm-agent/pkg/runtime"
	"xmtp-agents/gm-agent/pkg/wallet"
	"xmtp-agents/gm-agent/pkg/xmtp"
)

type Variant string

const (
	// VariantAPI serves HTTP only and restores the client by WALLET_ADDRESS.
	VariantAPI Variant = "api"
	// VariantBot additionally streams messages and replies.
	VariantBot Variant = "bot"
)

const (
	ReplyModeStatic = "static"
	ReplyModeOpenAI = "openai"
)

type Config struct {
	WalletKey     string `env:"WALLET_KEY"`
	EncryptionKey string `env:"ENCRYPTION_KEY"`
	XMTPEnv       string `env:"XMTP_ENV"`
	Port          int    `env:"PORT,default=3000"`
	WalletAddress string `env:"WALLET_ADDRESS"`

	GatewayURL   string `env:"XMTP_GATEWAY_URL"`
	GatewayProxy string `env:"XMTP_GATEWAY_PROXY"`
	DBDir        string `env:"RAILWAY_VOLUME_MOUNT_PATH"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS,default=*"`

	ReplyText          string  `env:"REPLY_TEXT,default=gm"`
	ReplyMode          string  `env:"REPLY_MODE,default=static"`
	ReplyRatePerSecond float64 `env:"REPLY_RATE_PER_SECOND,default=1"`
	ReplyBurst         int     `env:"REPLY_BURST,default=3"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	OpenAIModel   string `env:"OPENAI_MODEL"`

	SyncInterval time.Duration `env:"SYNC_INTERVAL,default=60s"`

	// Derived by Load.
	Variant Variant
	Env     xmtp.Env
	DBKey   []byte
}

// RequiredVars lists the variables a variant cannot start without.
func RequiredVars(v Variant) []string {
	vars := []string{"WALLET_KEY", "ENCRYPTION_KEY", "XMTP_ENV"}
	if v == VariantAPI {
		vars = append(vars, "PORT", "WALLET_ADDRESS")
	}
	return vars
}

// Load checks required variables (falling back to envFiles, default .env),
// decodes the environment and validates the result.
func Load(variant Variant, envFiles ...string) (Config, error) {
	if variant != VariantAPI && variant != VariantBot {
		return Config{}, fmt.Errorf("unknown variant %q", variant)
	}
	if _, err := runtime.ValidateEnvironment(RequiredVars(variant), envFiles...); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode env: %w", err)
	}
	cfg.Variant = variant
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	c.WalletKey = strings.TrimSpace(c.WalletKey)
	c.WalletAddress = strings.ToLower(strings.TrimSpace(c.WalletAddress))
	c.ReplyMode = strings.ToLower(strings.TrimSpace(c.ReplyMode))
	c.GatewayURL = strings.TrimSpace(c.GatewayURL)

	env, err := xmtp.ParseEnv(c.XMTPEnv)
	if err != nil {
		return err
	}
	c.Env = env

	key, err := wallet.EncryptionKeyFromHex(c.EncryptionKey)
	if err != nil {
		return fmt.Errorf("invalid ENCRYPTION_KEY: %w", err)
	}
	c.DBKey = key

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}
	if c.Variant == VariantAPI && !common.IsHexAddress(c.WalletAddress) {
		return fmt.Errorf("invalid WALLET_ADDRESS: %q", c.WalletAddress)
	}
	if c.GatewayURL != "" {
		if err := runtime.ValidateHTTPURL(c.GatewayURL); err != nil {
			return fmt.Errorf("invalid XMTP_GATEWAY_URL: %w", err)
		}
	} else if xmtp.DefaultGatewayURL(c.Env) == "" {
		return fmt.Errorf("XMTP_GATEWAY_URL is required for XMTP_ENV=%s", c.Env)
	}

	if err := runtime.RequireOneOf("REPLY_MODE", c.ReplyMode, ReplyModeStatic, ReplyModeOpenAI); err != nil {
		return err
	}
	if c.ReplyMode == ReplyModeOpenAI && strings.TrimSpace(c.OpenAIAPIKey) == "" {
		return fmt.Errorf("REPLY_MODE=openai requires OPENAI_API_KEY")
	}
	if strings.TrimSpace(c.ReplyText) == "" {
		c.ReplyText = "gm"
	}
	if c.ReplyRatePerSecond < 0 {
		return fmt.Errorf("invalid REPLY_RATE_PER_SECOND: %v", c.ReplyRatePerSecond)
	}
	if c.ReplyBurst < 1 {
		c.ReplyBurst = 1
	}
	if c.SyncInterval < 0 {
		return fmt.Errorf("invalid SYNC_INTERVAL: %s", c.SyncInterval)
	}
	return nil
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas. Empty means "*".
func (c Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// GatewayBaseURL is XMTP_GATEWAY_URL or, for the local env, LocalGatewayURL.
func (c Config) GatewayBaseURL() string {
	if c.GatewayURL != "" {
		return c.GatewayURL
	}
	return xmtp.DefaultGatewayURL(c.Env)
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
