package cmd

import (
	"fmt"

	"github.com/KaramelBytes/autodq-cli/internal/profile"
	"github.com/KaramelBytes/autodq-cli/internal/utils"
	"github.com/spf13/cobra"
)

var (
	profOutputPath string
	profDelimiter  string
	profSampleRows int
	profMarkdown   bool
)

var profileCmd = &cobra.Command{
	Use:   "profile <file>",
	Short: "Profile a CSV/TSV and print or save the column statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		opt := profile.DefaultOptions()
		if profSampleRows > 0 {
			opt.SampleRows = profSampleRows
		} else if cfg != nil && cfg.SampleRows > 0 {
			opt.SampleRows = cfg.SampleRows
		}
		delim, err := parseDelimiter(profDelimiter)
		if err != nil {
			return err
		}
		opt.Delimiter = delim

		ds, err := profile.ProfileCSV(path, opt)
		if err != nil {
			return err
		}
		var body []byte
		if profMarkdown {
			body = []byte(ds.Markdown())
		} else {
			b, err := utils.PrettyJSON(ds)
			if err != nil {
				return err
			}
			body = append(b, '\n')
		}

		if profOutputPath == "" {
			_, err := cmd.OutOrStdout().Write(body)
			return err
		}
		written, err := utils.WriteArtifact(".", profOutputPath, body)
		if err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote profile to %s\n", written)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.Flags().StringVarP(&profOutputPath, "output", "o", "", "optional path to write the profile")
	profileCmd.Flags().StringVar(&profDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' | 'pipe'")
	profileCmd.Flags().IntVar(&profSampleRows, "sample-rows", 0, "maximum rows to profile (default from config, 5000)")
	profileCmd.Flags().BoolVar(&profMarkdown, "markdown", false, "print a Markdown summary instead of JSON")
}
