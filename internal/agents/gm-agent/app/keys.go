package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"xmtp-agents/gm-agent/pkg/wallet"
)

func newKeysCommand() *cobra.Command {
	var (
		env string
		out string
	)
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Generate a wallet key and database encryption key into a dotenv file",
		Long: `keys creates WALLET_KEY, ENCRYPTION_KEY, XMTP_ENV and PUBLIC_KEY entries.
Values already present in the file are left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keys, err := wallet.GenerateKeys(env)
			if err != nil {
				return err
			}
			added, err := wallet.WriteKeysEnv(out, keys)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(added) == 0 {
				fmt.Fprintf(w, "%s already has keys, nothing written\n", out)
				return nil
			}
			fmt.Fprintf(w, "Keys written to %s: %s\n", out, strings.Join(added, ", "))
			for _, name := range added {
				if name == "PUBLIC_KEY" {
					fmt.Fprintf(w, "Public key: %s\n", keys.PublicKey)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&env, "env", "dev", "XMTP network env written as XMTP_ENV")
	cmd.Flags().StringVarP(&out, "output", "o", ".env", "dotenv file to write")
	return cmd
}
