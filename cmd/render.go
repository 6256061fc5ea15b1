package cmd

import (
	"fmt"

	"github.com/KaramelBytes/autodq-cli/internal/profile"
	"github.com/KaramelBytes/autodq-cli/internal/sqlgen"
	"github.com/spf13/cobra"
)

var (
	renderChecks  string
	renderProfile string
	renderDialect string
	renderOut     string
	renderSummary string
	renderTable   string
	renderOutDir  string
	renderYAML    string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render SQL and a summary table from a saved checks document",
	Example: `  autodq render --checks checks.json --profile profile.json
  autodq render --checks checks.json --dialect spark --table events --yaml checks.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dialectName := renderDialect
		if !cmd.Flags().Changed("dialect") && cfg != nil && cfg.Dialect != "" {
			dialectName = cfg.Dialect
		}
		dialect, err := sqlgen.ParseDialect(dialectName)
		if err != nil {
			return err
		}
		cs, err := loadChecks(renderChecks)
		if err != nil {
			return err
		}
		// without a profile every column type is unknown
		var ds *profile.Dataset
		dataset := datasetName(renderChecks)
		if renderProfile != "" {
			if ds, err = profile.Load(renderProfile); err != nil {
				return err
			}
			if ds.FilePath != "" {
				dataset = datasetName(ds.FilePath)
			}
		}
		sqlName := renderOut
		if sqlName == "" {
			sqlName = fmt.Sprintf("checks_%s.sql", dialect)
		}
		ro := renderOptions{
			Dialect:      dialect,
			OutDir:       renderOutDir,
			SQLPath:      sqlName,
			SummaryPath:  renderSummary,
			YAMLPath:     renderYAML,
			ScriptTable:  renderTable,
			SummaryTable: renderTable,
			Dataset:      dataset,
			TemplateDirs: templateDirs(cfg),
		}
		if ro.SummaryTable == "" {
			ro.SummaryTable = dataset
		}
		res, err := renderOutputs(cs, ds, ro)
		if err != nil {
			return err
		}
		printRendered(cmd, res)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().StringVar(&renderChecks, "checks", "", "checks JSON written by run or parse (required)")
	renderCmd.Flags().StringVar(&renderProfile, "profile", "", "profile JSON used for column types")
	renderCmd.Flags().StringVar(&renderDialect, "dialect", string(sqlgen.BigQuery), "SQL dialect: postgres|bigquery|spark")
	renderCmd.Flags().StringVar(&renderOut, "out", "", "SQL output file (default checks_<dialect>.sql)")
	renderCmd.Flags().StringVar(&renderSummary, "summary", summaryArtifact, "summary CSV output file")
	renderCmd.Flags().StringVar(&renderTable, "table", "", "table name used in generated SQL")
	renderCmd.Flags().StringVar(&renderOutDir, "out-dir", ".", "directory for relative output paths")
	renderCmd.Flags().StringVar(&renderYAML, "yaml", "", "also write a checks YAML file to this path")
	_ = renderCmd.MarkFlagRequired("checks")
}
