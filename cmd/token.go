package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/replypilot/enrich-cli/internal/api"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for local API testing",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ttl, _ := cmd.Flags().GetDuration("ttl")
		tok, err := api.MintToken(cfg.Auth.JWTSecret, userID, ttl)
		if err != nil {
			return eris.Wrap(err, "token")
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Duration("ttl", 0, "token lifetime (0 = no expiry)")
	rootCmd.AddCommand(tokenCmd)
}
