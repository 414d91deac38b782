package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/replypilot/enrich-cli/internal/discover"
)

var discoverCmd = &cobra.Command{
	Use:   "discover <query>",
	Short: "Import leads from a Google Places text search",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("discover"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		region, _ := cmd.Flags().GetString("region")
		limit, _ := cmd.Flags().GetInt("limit")

		res, err := newImporter(st).Run(ctx, userID, discover.Request{
			Query:      args[0],
			RegionCode: region,
			MaxResults: limit,
		})
		if err != nil {
			return eris.Wrap(err, "discover")
		}

		formatLeads(os.Stdout, res.Created)
		fmt.Fprintf(os.Stderr, "Created %d, skipped %d already imported, %d failed.\n",
			len(res.Created), res.Skipped, res.Failed)
		return nil
	},
}

func init() {
	discoverCmd.Flags().String("region", "CA", "CLDR region code biasing results")
	discoverCmd.Flags().Int("limit", 20, "maximum places to import")
	rootCmd.AddCommand(discoverCmd)
}
