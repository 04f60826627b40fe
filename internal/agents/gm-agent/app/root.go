// Package app wires configuration, the messaging client, the HTTP API and
// the reply agent into the gm-agent command.
package app

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"xmtp-agents/gm-agent/internal/agents/gm-agent/config"
)

type rootFlags struct {
	envFiles []string
	port     int
	logLevel string
}

// Run executes the gm-agent command line.
func Run() error {
	return NewRootCommand().Execute()
}

func NewRootCommand() *cobra.Command {
	f := &rootFlags{}

	root := &cobra.Command{
		Use:   "gm-agent",
		Short: "XMTP agent that answers every message with gm",
		Long: `gm-agent connects a wallet to the XMTP network, keeps its conversations
in a local encrypted database and serves a small HTTP API.

Without a subcommand it runs the bot.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVariant(cmd, config.VariantBot, f)
		},
	}

	pf := root.PersistentFlags()
	pf.StringSliceVar(&f.envFiles, "env-file", nil, "dotenv files to load (default .env.local, .env)")
	pf.IntVar(&f.port, "port", 0, "HTTP port (overrides PORT)")
	pf.StringVar(&f.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	root.AddCommand(
		&cobra.Command{
			Use:   "api",
			Short: "Serve the HTTP API for the inbox of WALLET_ADDRESS",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runVariant(cmd, config.VariantAPI, f)
			},
		},
		&cobra.Command{
			Use:   "bot",
			Short: "Stream messages and reply to each one",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runVariant(cmd, config.VariantBot, f)
			},
		},
		newKeysCommand(),
	)
	return root
}

// applyFlagOverrides exports flag values so config.Load sees them like env vars.
func applyFlagOverrides(cmd *cobra.Command, f *rootFlags) error {
	if cmd.Flags().Changed("port") {
		if err := os.Setenv("PORT", strconv.Itoa(f.port)); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("log-level") {
		if err := os.Setenv("LOG_LEVEL", f.logLevel); err != nil {
			return err
		}
	}
	return nil
}
