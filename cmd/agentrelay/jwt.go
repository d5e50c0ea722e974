package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/agentrelay/pkg/auth"
)

func newJWTCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "jwt",
		Short: "Mint a key-pair JWT for the configured account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Context(), opts)
			if err != nil {
				return err
			}

			tok, err := auth.NewKeyPairSigner(cfg.Snowflake).Mint()
			if err != nil {
				return fmt.Errorf("failed to generate JWT: %w", err)
			}

			out := cmd.OutOrStdout()
			if !asJSON {
				_, err = fmt.Fprintln(out, tok.Token)
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"token": tok})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the token with its expiry as JSON")
	return cmd
}
