package main

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/niche-scout/internal/discovery"
)

var researchCmd = &cobra.Command{
	Use:   "research [product]...",
	Short: "Score a manual list of products",
	Long: `Score a manual list of products. Each product is checked against its own
trend interest, marketplace competition and social sentiment.

Examples:
  research "air fryer" "standing desk"

  # One product per line; blank lines and # comments are ignored
  research --file products.txt --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		products := args
		if path, _ := cmd.Flags().GetString("file"); path != "" {
			fromFile, err := readProductFile(path)
			if err != nil {
				return err
			}
			products = append(products, fromFile...)
		}
		if len(products) == 0 {
			return eris.New("research: at least one product is required (args or --file)")
		}
		return execute(cmd, "research", discovery.Request{Products: products})
	},
}

func init() {
	addRunFlags(researchCmd)
	researchCmd.Flags().String("file", "", "file with one product name per line")
	rootCmd.AddCommand(researchCmd)
}

func readProductFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "research: read %s", path)
	}
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}
