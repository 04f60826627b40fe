package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"xmtp-agents/gm-agent/internal/agents/gm-agent/agent"
	"xmtp-agents/gm-agent/internal/agents/gm-agent/config"
	"xmtp-agents/gm-agent/internal/agents/gm-agent/httpapi"
	"xmtp-agents/gm-agent/internal/agents/gm-agent/metrics"
	"xmtp-agents/gm-agent/pkg/logging"
	"xmtp-agents/gm-agent/pkg/runtime"
	"xmtp-agents/gm-agent/pkg/state"
	"xmtp-agents/gm-agent/pkg/wallet"
	"xmtp-agents/gm-agent/pkg/x/llm"
	"xmtp-agents/gm-agent/pkg/xmtp"
)

const shutdownTimeout = 10 * time.Second

func runVariant(cmd *cobra.Command, variant config.Variant, f *rootFlags) error {
	if err := applyFlagOverrides(cmd, f); err != nil {
		return err
	}

	var loaded []string
	var err error
	if len(f.envFiles) > 0 {
		loaded, err = runtime.LoadDotEnvFiles(f.envFiles...)
	} else {
		loaded, err = runtime.LoadDotEnv()
	}
	if err != nil {
		return err
	}

	cfg, err := config.Load(variant, f.envFiles...)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	for _, p := range loaded {
		log.Debug("loaded env file", zap.String("path", p))
	}

	return runtime.RunWithSignals(func(ctx context.Context) error {
		if err := serve(ctx, cfg, log, cmd.OutOrStdout()); err != nil {
			log.Error("Failed to start application", zap.Error(err))
			return err
		}
		return nil
	})
}

// serve runs the HTTP API and, once the client is ready, the sync loop and
// (bot variant) the message stream. It returns when ctx ends or any part fails.
func serve(ctx context.Context, cfg config.Config, log *zap.Logger, stdout io.Writer) error {
	signer, err := wallet.NewSigner(cfg.WalletKey)
	if err != nil {
		return err
	}
	if cfg.Variant == config.VariantAPI && cfg.WalletAddress != signer.Address() {
		log.Warn("WALLET_ADDRESS does not match WALLET_KEY",
			zap.String("walletAddress", cfg.WalletAddress),
			zap.String("signerAddress", signer.Address()))
	}

	m := metrics.New(nil)
	srv := httpapi.New(httpapi.Options{
		Logger:         log,
		Metrics:        m,
		AllowedOrigins: cfg.AllowedOrigins(),
		Debug:          strings.EqualFold(cfg.LogLevel, "debug"),
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server running", zap.String("addr", cfg.Addr()))
		return srv.Serve(ctx, cfg.Addr(), shutdownTimeout)
	})

	var client *xmtp.Client
	g.Go(func() error {
		c, err := openClient(ctx, cfg, signer, log)
		if err != nil {
			return err
		}
		client = c

		details, err := agent.CollectDetails(ctx, c)
		if err != nil {
			return fmt.Errorf("collect agent details: %w", err)
		}
		if err := agent.WriteDetails(stdout, details); err != nil {
			return err
		}

		log.Info("Syncing conversations...")
		err = c.Conversations().Sync(ctx)
		m.SyncResult(err)
		if err != nil {
			return fmt.Errorf("sync conversations: %w", err)
		}

		srv.SetClient(c)
		log.Info("XMTP client ready", zap.String("inboxId", c.InboxID()), zap.String("env", string(c.Env())))

		if cfg.SyncInterval > 0 {
			g.Go(func() error {
				runtime.RunInterval(ctx, cfg.SyncInterval, false, func(ctx context.Context) {
					err := c.Conversations().Sync(ctx)
					m.SyncResult(err)
					if err != nil && ctx.Err() == nil {
						log.Warn("periodic conversation sync failed", zap.Error(err))
					}
				})
				return nil
			})
		}

		if cfg.Variant == config.VariantBot {
			responder, err := newResponder(cfg, log)
			if err != nil {
				return err
			}
			bot := agent.New(c, agent.Options{
				Responder: responder,
				Limiter:   agent.NewReplyLimiter(cfg.ReplyRatePerSecond, cfg.ReplyBurst),
				Logger:    log,
				Metrics:   m,
			})
			g.Go(func() error { return bot.Run(ctx) })
		}
		return nil
	})

	err = g.Wait()
	srv.SetClient(nil)
	if client != nil {
		if cerr := client.Close(); cerr != nil {
			log.Warn("close client", zap.Error(cerr))
		}
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// openClient restores the client from a local database when one exists and
// otherwise registers a fresh installation, revoking all others.
func openClient(ctx context.Context, cfg config.Config, signer *wallet.Signer, log *zap.Logger) (*xmtp.Client, error) {
	dbDir := cfg.DBDir
	if dbDir == "" {
		dbDir = state.DefaultDBDir
	}
	opts := xmtp.ClientOptions{
		Env:             cfg.Env,
		GatewayURL:      cfg.GatewayBaseURL(),
		Proxy:           cfg.GatewayProxy,
		DBDir:           dbDir,
		DBEncryptionKey: cfg.DBKey,
		Logger:          log,
	}

	identifier := signer.Identifier()
	if cfg.Variant == config.VariantAPI {
		identifier = xmtp.NewEthereumIdentifier(cfg.WalletAddress)
	}

	if state.HasDBFiles(dbDir) {
		c, err := xmtp.Build(ctx, identifier, opts)
		if err == nil {
			log.Info("Restored XMTP client from local database", zap.String("path", c.DBPath()))
			return c, nil
		}
		if !errors.Is(err, xmtp.ErrClientNotFound) {
			return nil, err
		}
		log.Info("No local database for this identity, creating client", zap.String("identifier", identifier.Identifier))
	}

	c, err := xmtp.Create(ctx, signer, opts)
	if err != nil {
		return nil, err
	}
	if err := c.RevokeAllOtherInstallations(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("revoke other installations: %w", err)
	}
	log.Info("Created XMTP client", zap.String("path", c.DBPath()))
	return c, nil
}

func newResponder(cfg config.Config, log *zap.Logger) (agent.Responder, error) {
	static := agent.StaticResponder{Text: cfg.ReplyText}
	if cfg.ReplyMode != config.ReplyModeOpenAI {
		return static, nil
	}
	chat, err := llm.NewChatClient(nil, llm.OpenAIChatConfig{
		BaseURL: cfg.OpenAIBaseURL,
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	return agent.LLMResponder{Completer: chat, Fallback: static, Logger: log.Named("llm")}, nil
}
