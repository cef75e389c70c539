package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/niche-scout/internal/discovery"
)

var discoverCmd = &cobra.Command{
	Use:   "discover <seed keyword>...",
	Short: "Discover product opportunities from seed keywords",
	Long: `Discover product opportunities starting from seed keywords.

Stages:
  1. Related topics for each seed from the trends source (batches of 5).
  2. Product-like topics expanded into accessory, alternative and kit keywords.
  3. Marketplace search per keyword; each listing becomes a candidate.
  4. Social sentiment per candidate.
  5. Opportunity score 0-100, ranked.

Examples:
  # Discover from two seeds
  discover "home office" kitchen

  # Offline run against a fixture file, CSV to a file
  discover kitchen --fixtures testdata/fixtures.yaml --format csv --output kitchen.csv

  # Skip trends and search the seeds directly
  discover "yoga mat" --skip-trends --max-products 20`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd, "discover", discovery.Request{Seeds: args})
	},
}

func init() {
	addRunFlags(discoverCmd)
	rootCmd.AddCommand(discoverCmd)
}
