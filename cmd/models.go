package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/KaramelBytes/autodq-cli/internal/ai"
	"github.com/spf13/cobra"
)

var (
	modelsProvider string
	modelsJSON     bool
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List known models per provider",
	Example: `  autodq models
  autodq models --provider gemini
  autodq models --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		list := ai.ModelsFor(modelsProvider)
		out := cmd.OutOrStdout()
		if modelsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(list)
		}
		if len(list) == 0 {
			fmt.Fprintf(out, "No known models for provider %q (providers: %v)\n", modelsProvider, ai.Providers())
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "MODEL\tPROVIDER\tCONTEXT\tDEFAULT")
		for _, m := range list {
			def := ""
			if d, ok := ai.DefaultModel(m.Provider); ok && d == m.Name {
				def = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", m.Name, m.Provider, m.ContextTokens, def)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().StringVar(&modelsProvider, "provider", "", "filter by provider: local|remote|gemini")
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "print as JSON")
}
