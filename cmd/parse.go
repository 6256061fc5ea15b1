package cmd

import (
	"fmt"
	"os"

	"github.com/KaramelBytes/autodq-cli/internal/checks"
	"github.com/KaramelBytes/autodq-cli/internal/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var parseOutput string

var parseCmd = &cobra.Command{
	Use:   "parse <response.txt>",
	Short: "Normalize a saved model response into a checks document",
	Example: `  autodq parse llm_response.txt
  autodq parse llm_response.txt --output checks.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		cs, err := checks.Parser{Logger: logger.With(zap.String("input", args[0]))}.Parse(string(raw))
		if err != nil {
			return err
		}
		b, err := utils.PrettyJSON(cs)
		if err != nil {
			return err
		}
		b = append(b, '\n')
		if parseOutput == "" {
			_, err := cmd.OutOrStdout().Write(b)
			return err
		}
		if _, err := utils.WriteArtifact(".", parseOutput, b); err != nil {
			return fmt.Errorf("write checks: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Parsed %d checks -> %s\n", len(cs), parseOutput)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)
	parseCmd.Flags().StringVarP(&parseOutput, "output", "o", "", "write checks JSON to this path instead of stdout")
}
